package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stencila/stencila/internal/config"
	"github.com/stencila/stencila/internal/remotes"
)

func workspaceAndConfig() (string, []remotes.ConfigRemote, error) {
	workspaceDir, err := os.Getwd()
	if err != nil {
		return "", nil, err
	}
	cfg, err := config.Load(workspaceDir)
	if err != nil {
		return "", nil, err
	}
	entries := make([]remotes.ConfigRemote, 0, len(cfg.Remotes))
	for _, entry := range cfg.Remotes {
		entries = append(entries, remotes.ConfigRemote{
			Path:  entry.Path,
			URL:   entry.URL,
			Watch: entry.Watch,
		})
	}
	return workspaceDir, entries, nil
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [path]",
		Short: "Show the sync status of tracked remotes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspaceDir, entries, err := workspaceAndConfig()
			if err != nil {
				return err
			}

			var paths []string
			if len(args) == 1 {
				paths, err = remotes.ExpandPathToFiles(workspaceDir, args[0])
				if err != nil {
					return err
				}
			} else {
				seen := map[string]bool{}
				for _, entry := range entries {
					files, err := remotes.ExpandPathToFiles(workspaceDir, entry.Path)
					if err != nil {
						continue
					}
					for _, file := range files {
						if !seen[file] {
							seen[file] = true
							paths = append(paths, file)
						}
					}
				}
			}

			for _, path := range paths {
				infos, err := remotes.RemotesForPath(workspaceDir, path, entries)
				if err != nil {
					return err
				}
				if len(infos) == 0 {
					continue
				}
				for _, status := range remotes.CalculateStatuses(cmd.Context(), workspaceDir, path, infos) {
					fmt.Printf("%-40s %-10s %s\n", path, status.Status, status.URL)
				}
			}
			return nil
		},
	}
}

func pushCmd() *cobra.Command {
	var remote string
	var watch bool
	var watchDirection string
	var all bool

	cmd := &cobra.Command{
		Use:   "push [path]",
		Short: "Push local files to their remotes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspaceDir, entries, err := workspaceAndConfig()
			if err != nil {
				return err
			}

			opts := remotes.PushOptions{
				Remote:         remote,
				Watch:          watch,
				WatchDirection: remotes.WatchDirection(watchDirection),
				All:            all,
			}

			var result *remotes.PushResult
			if all || len(args) == 0 {
				opts.All = true
				result = remotes.PushAll(cmd.Context(), workspaceDir, entries, opts)
			} else {
				result = remotes.PushFile(cmd.Context(), workspaceDir, args[0], entries, opts)
			}

			for _, url := range result.Pushed {
				fmt.Printf("Pushed %s\n", url)
			}
			// Report every error before deciding the exit status.
			for _, err := range result.Errors {
				fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
			}
			if !result.Ok() {
				return fmt.Errorf("%d of %d pushes failed", len(result.Errors), len(result.Errors)+len(result.Pushed))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&remote, "remote", "", "Target remote URL")
	cmd.Flags().BoolVar(&watch, "watch", false, "Create a server-side watch after pushing")
	cmd.Flags().StringVar(&watchDirection, "watch-direction", "bi", "Watch direction: bi, from-remote or to-remote")
	cmd.Flags().BoolVar(&all, "all", false, "Push every file with a configured remote")
	return cmd
}

func pullCmd() *cobra.Command {
	var remote string

	cmd := &cobra.Command{
		Use:   "pull <path>",
		Short: "Pull a file from its remote",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspaceDir, entries, err := workspaceAndConfig()
			if err != nil {
				return err
			}
			path := args[0]

			url := remote
			if url == "" {
				infos, err := remotes.RemotesForPath(workspaceDir, path, entries)
				if err != nil {
					return err
				}
				if len(infos) == 0 {
					return fmt.Errorf("no remotes tracked for %s; supply --remote", path)
				}
				if len(infos) > 1 {
					return fmt.Errorf("%s has %d remotes; supply --remote to pick one", path, len(infos))
				}
				for u := range infos {
					url = u
				}
			}

			service := remotes.ServiceFor(url)
			if service == nil {
				return fmt.Errorf("unsupported remote service: %s", url)
			}
			if err := service.Pull(cmd.Context(), url, path); err != nil {
				return err
			}
			if err := remotes.UpdateTimestamp(workspaceDir, path, url, "pulled"); err != nil {
				return err
			}
			fmt.Printf("Pulled %s from %s\n", path, url)
			return nil
		},
	}
	cmd.Flags().StringVar(&remote, "remote", "", "Remote URL to pull from")
	return cmd
}

func watchesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watches reconcile",
		Short: "Reconcile local watch ids with the Cloud API (no Cloud client is configured, so this always errors)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] != "reconcile" {
				return fmt.Errorf("unknown watches subcommand %q", args[0])
			}
			return fmt.Errorf("watches reconcile requires Stencila Cloud credentials; not configured")
		},
	}
}
