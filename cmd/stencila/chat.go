package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stencila/stencila/internal/auth"
	"github.com/stencila/stencila/internal/config"
	"github.com/stencila/stencila/internal/llm"
	"github.com/stencila/stencila/internal/routing"
)

func chatCmd() *cobra.Command {
	var provider string
	var model string
	var stream bool

	cmd := &cobra.Command{
		Use:   "chat <prompt...>",
		Short: "Send a prompt to a model and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspaceDir, err := os.Getwd()
			if err != nil {
				return err
			}
			cfg, err := config.Load(workspaceDir)
			if err != nil {
				return err
			}

			client, err := auth.ClientFromEnv(cfg.ConfiguredProviders(), nil)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			decision, err := routing.RouteSessionExplained(provider, model, client)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stderr, decision.Summary())
			if warning := decision.FallbackWarning(); warning != "" {
				fmt.Fprintln(os.Stderr, warning)
			}
			if decision.Route.IsCLI() {
				return fmt.Errorf("route resolved to CLI backend %s; run the tool directly", decision.Route.Provider)
			}

			req := llm.Request{
				Provider: decision.Route.Provider,
				Model:    decision.Route.Model,
				Messages: []llm.Message{llm.User(strings.Join(args, " "))},
			}

			if stream {
				st, err := client.Stream(cmd.Context(), req)
				if err != nil {
					return err
				}
				defer func() { _ = st.Close() }()
				for ev := range st.Events() {
					switch ev.Type {
					case llm.StreamEventTextDelta:
						fmt.Print(ev.Delta)
					case llm.StreamEventError:
						return ev.Err
					case llm.StreamEventFinish:
						fmt.Println()
					}
				}
				return nil
			}

			resp, err := client.Complete(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Println(resp.Text())
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "Model provider")
	cmd.Flags().StringVar(&model, "model", "", "Model id or alias")
	cmd.Flags().BoolVar(&stream, "stream", true, "Stream the response")
	return cmd
}
