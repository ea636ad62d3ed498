package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/stencila/stencila/internal/llm"
)

// RegisterCoreTools registers the built-in file tools on a registry.
func RegisterCoreTools(reg *ToolRegistry) error {
	if err := reg.Register(RegisteredTool{
		Definition: llm.ToolDefinition{
			Name: "apply_patch",
			Description: "Apply code changes using the patch format. Supports creating, " +
				"deleting, and modifying files in a single operation.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"patch": map[string]any{
						"type":        "string",
						"description": "The patch content in v4a format.",
					},
				},
				"required":             []any{"patch"},
				"additionalProperties": false,
			},
		},
		Exec: func(ctx context.Context, env ExecutionEnvironment, args map[string]any) (any, error) {
			patchStr, err := requiredString(args, "patch")
			if err != nil {
				return nil, err
			}
			patch, err := ParsePatch(patchStr)
			if err != nil {
				return nil, err
			}
			summaries, err := ApplyPatchOps(patch, env)
			if err != nil {
				return nil, err
			}
			return strings.Join(summaries, "\n"), nil
		},
	}); err != nil {
		return err
	}

	if err := reg.Register(RegisteredTool{
		Definition: llm.ToolDefinition{
			Name:        "read_file",
			Description: "Read the content of a file.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{"type": "string"},
				},
				"required":             []any{"path"},
				"additionalProperties": false,
			},
		},
		Exec: func(ctx context.Context, env ExecutionEnvironment, args map[string]any) (any, error) {
			path, err := requiredString(args, "path")
			if err != nil {
				return nil, err
			}
			return env.ReadFile(path)
		},
	}); err != nil {
		return err
	}

	if err := reg.Register(RegisteredTool{
		Definition: llm.ToolDefinition{
			Name:        "write_file",
			Description: "Write content to a file, creating it if needed.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path":    map[string]any{"type": "string"},
					"content": map[string]any{"type": "string"},
				},
				"required":             []any{"path", "content"},
				"additionalProperties": false,
			},
		},
		Exec: func(ctx context.Context, env ExecutionEnvironment, args map[string]any) (any, error) {
			path, err := requiredString(args, "path")
			if err != nil {
				return nil, err
			}
			content, _ := args["content"].(string)
			if err := env.WriteFile(path, content); err != nil {
				return nil, err
			}
			return fmt.Sprintf("Wrote %s (%d bytes)", path, len(content)), nil
		},
	}); err != nil {
		return err
	}

	return reg.Register(RegisteredTool{
		Definition: llm.ToolDefinition{
			Name:        "delete_file",
			Description: "Delete a file.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{"type": "string"},
				},
				"required":             []any{"path"},
				"additionalProperties": false,
			},
		},
		Exec: func(ctx context.Context, env ExecutionEnvironment, args map[string]any) (any, error) {
			path, err := requiredString(args, "path")
			if err != nil {
				return nil, err
			}
			if err := env.DeleteFile(path); err != nil {
				return nil, err
			}
			return fmt.Sprintf("Deleted %s", path), nil
		},
	})
}

func requiredString(args map[string]any, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("missing required string argument %q", key)
	}
	return v, nil
}
