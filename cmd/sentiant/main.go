// Command sentiant serves the sentiment and report API and runs one-shot
// reports from the command line.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/KamdynS/sentiant/config"
	"github.com/KamdynS/sentiant/observability"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := newRootCommand().ExecuteContext(ctx)
	if err != nil && !errors.Is(err, pflag.ErrHelp) {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configFile string
	logLevel   string
	logFormat  string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	a := &app{}
	cmd := &cobra.Command{
		Use:           "sentiant",
		Short:         "Topic sentiment aggregation and LLM report generation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd, opts)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", os.Getenv("SENTIANT_CONFIG"), "Path to a config file (yaml, json or toml)")
	pf.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&opts.logFormat, "log-format", "", "Log format (json, console)")

	cmd.AddCommand(
		newServeCommand(a),
		newReportCommand(a),
		newGenerateCommand(a),
	)
	return cmd
}

// init loads configuration and builds the logger. Flags override the
// config file and environment.
func (a *app) init(cmd *cobra.Command, opts *rootOptions) error {
	v := config.NewViper(opts.configFile)
	flags := cmd.Root().PersistentFlags()
	if err := v.BindPFlag("log.level", flags.Lookup("log-level")); err != nil {
		return err
	}
	if err := v.BindPFlag("log.format", flags.Lookup("log-format")); err != nil {
		return err
	}
	cfg, err := config.Load(v, opts.configFile != "")
	if err != nil {
		return err
	}
	logger, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logger
	a.log.Debug("configuration loaded", zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("store", cfg.Store.Driver), zap.String("queue", cfg.Queue.Backend))
	return nil
}
