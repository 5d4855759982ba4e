package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KamdynS/sentiant/llm"
)

func newGenerateCommand(a *app) *cobra.Command {
	var prompt, system string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Send one prompt through the model rotation and print the reply",
		Long:  "Reads the prompt from --prompt, or from stdin when --prompt is \"-\".",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if prompt == "-" {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				prompt = string(raw)
			}
			if strings.TrimSpace(prompt) == "" {
				return fmt.Errorf("prompt is empty")
			}
			gen, err := a.textGenerator()
			if err != nil {
				return err
			}
			var msgs []llm.Message
			if system != "" {
				msgs = append(msgs, llm.SystemMessage(system))
			}
			msgs = append(msgs, llm.UserMessage(prompt))
			text, err := gen.Generate(cmd.Context(), msgs)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "Prompt text, or - for stdin")
	cmd.Flags().StringVar(&system, "system", "", "Optional system instruction")
	_ = cmd.MarkFlagRequired("prompt")
	return cmd
}
