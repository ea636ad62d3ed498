package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/stencila/stencila/internal/agent"
	"github.com/stencila/stencila/internal/mcp"
)

func mcpCmd() *cobra.Command {
	var configPath string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "mcp call <server> <method> [params-json]",
		Short: "Call a method on a configured MCP server",
		Args:  cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] != "call" {
				return fmt.Errorf("unknown mcp subcommand %q", args[0])
			}
			serverID, method := args[1], args[2]
			var params json.RawMessage
			if len(args) == 4 {
				params = json.RawMessage(args[3])
			}

			defs, err := mcp.LoadServerDefinitions(configPath)
			if err != nil {
				return err
			}
			var def *mcp.ServerDefinition
			for i := range defs {
				if defs[i].ID == serverID {
					def = &defs[i]
					break
				}
			}
			if def == nil {
				return fmt.Errorf("no server %q in %s", serverID, configPath)
			}

			if err := agent.EnsureInstalled(def.Command); err != nil {
				return err
			}
			transport, err := mcp.Spawn(def.ID, def.Command, def.Args, def.Env)
			if err != nil {
				return err
			}
			defer func() { _ = transport.Shutdown() }()

			result, err := transport.Request(cmd.Context(), method, params, timeout)
			if err != nil {
				return err
			}
			fmt.Println(string(result))
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "mcp.yaml", "MCP servers definition file")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")
	return cmd
}
