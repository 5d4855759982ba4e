package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KamdynS/sentiant/server"
	"github.com/KamdynS/sentiant/worker"
)

func newServeCommand(a *app) *cobra.Command {
	var addr string
	var noWorker bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the report worker pool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			return runServe(cmd.Context(), a, !noWorker)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&noWorker, "no-worker", false, "Only accept jobs; let other instances run them")
	return cmd
}

func runServe(ctx context.Context, a *app, withWorker bool) error {
	svc, err := a.reportService(ctx)
	if err != nil {
		return err
	}
	sessions, err := a.sessionStore(ctx)
	if err != nil {
		return err
	}
	q, err := a.jobQueue(ctx)
	if err != nil {
		return err
	}
	jobs, err := a.jobStates(ctx)
	if err != nil {
		return err
	}

	srv, err := server.New(server.Config{
		Addr:         a.cfg.Server.Addr,
		Reports:      svc,
		Sessions:     sessions,
		Queue:        q,
		QueueName:    a.cfg.Queue.Name,
		Jobs:         jobs,
		AllowOrigin:  a.cfg.Server.AllowOrigin,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		Logger:       a.log.Named("http"),
	})
	if err != nil {
		return err
	}

	var w *worker.Worker
	if withWorker {
		w, err = worker.New(worker.Config{
			Queue:         q,
			QueueName:     a.cfg.Queue.Name,
			Runner:        svc,
			StateStore:    jobs,
			PollInterval:  a.cfg.Worker.PollInterval,
			MaxConcurrent: a.cfg.Worker.Concurrency,
			MaxAttempts:   a.cfg.Worker.MaxAttempts,
			JobTimeout:    a.cfg.Worker.JobTimeout,
			Logger:        a.log.Named("worker"),
		})
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err = <-errCh:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	var errs []error
	if err != nil {
		errs = append(errs, err)
	}
	if stopErr := srv.Stop(shutdownCtx); stopErr != nil {
		errs = append(errs, stopErr)
	}
	if w != nil {
		if stopErr := w.Stop(shutdownCtx); stopErr != nil {
			errs = append(errs, stopErr)
		}
	}
	a.log.Info("shutdown complete", zap.Int("errors", len(errs)))
	return errors.Join(errs...)
}
