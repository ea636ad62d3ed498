package remotes

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/oklog/ulid/v2"
)

// CloudClient is the Stencila Cloud API surface used for watch
// lifecycles.
type CloudClient interface {
	// CreateWatch registers a server-side watch and returns its id.
	CreateWatch(ctx context.Context, repo, path, url string, direction WatchDirection) (string, error)

	// ListWatchIDs returns the ids of all watches the API still knows
	// about.
	ListWatchIDs(ctx context.Context) ([]string, error)
}

// PushOptions controls a push operation.
type PushOptions struct {
	// Remote is the explicit target URL; empty means all tracked
	// remotes of the file.
	Remote string

	// Watch creates a server-side watch after a successful push.
	Watch          bool
	WatchDirection WatchDirection

	// All pushes every file with a configured remote. Incompatible with
	// Watch.
	All bool

	Cloud CloudClient
}

// PushResult summarizes a push across one or more remotes.
type PushResult struct {
	Pushed []string
	Errors []error
}

// Ok reports whether every remote pushed cleanly.
func (r *PushResult) Ok() bool { return len(r.Errors) == 0 }

// PushFile pushes one file to its remotes. With no explicit target every
// tracked remote is pushed: an unsupported URL counts as an error but
// does not abort the other remotes. With multiple remotes of the same
// service and no explicit target the push is refused with an actionable
// message.
func PushFile(ctx context.Context, workspaceDir, path string, configEntries []ConfigRemote, opts PushOptions) *PushResult {
	result := &PushResult{}

	if opts.Watch && opts.All {
		result.Errors = append(result.Errors, fmt.Errorf("--watch cannot be combined with pushing all files; push a single file"))
		return result
	}

	infos, err := RemotesForPath(workspaceDir, path, configEntries)
	if err != nil {
		result.Errors = append(result.Errors, err)
		return result
	}

	var targets []string
	if opts.Remote != "" {
		targets = []string{opts.Remote}
	} else {
		if len(infos) == 0 {
			result.Errors = append(result.Errors, fmt.Errorf(
				"no remotes tracked for %s; supply a remote URL to push to", path))
			return result
		}
		// Refuse ambiguous pushes: more than one remote of the same
		// service needs an explicit target.
		byService := map[ServiceKind]int{}
		for url := range infos {
			byService[ServiceFromURL(url)]++
		}
		for kind, count := range byService {
			if kind != "" && count > 1 {
				result.Errors = append(result.Errors, fmt.Errorf(
					"%s has %d %s remotes; pass the remote URL to push to, use --force-new to create another, or untrack one",
					path, count, kind))
				return result
			}
		}
		if opts.Watch && len(infos) > 1 {
			result.Errors = append(result.Errors, fmt.Errorf(
				"--watch requires a single target remote; %s has %d", path, len(infos)))
			return result
		}
		for url := range infos {
			targets = append(targets, url)
		}
	}

	for _, url := range targets {
		service := ServiceFor(url)
		if service == nil {
			result.Errors = append(result.Errors, fmt.Errorf("unsupported remote service: %s", url))
			continue
		}
		pushedURL, err := service.Push(ctx, path, url)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("push %s to %s: %w", path, url, err))
			continue
		}
		if pushedURL == "" {
			pushedURL = url
		}
		if err := UpdateTimestamp(workspaceDir, path, pushedURL, "pushed"); err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		result.Pushed = append(result.Pushed, pushedURL)

		if opts.Watch {
			if err := createWatch(ctx, workspaceDir, path, pushedURL, opts); err != nil {
				result.Errors = append(result.Errors, err)
			}
		}
	}

	return result
}

// PushAll pushes every file matched by the config entries. Per-remote
// errors are aggregated; all are reported before the caller decides the
// process exit status.
func PushAll(ctx context.Context, workspaceDir string, configEntries []ConfigRemote, opts PushOptions) *PushResult {
	result := &PushResult{}
	if opts.Watch {
		result.Errors = append(result.Errors, fmt.Errorf("--watch cannot be combined with pushing all files"))
		return result
	}

	seen := map[string]bool{}
	for _, entry := range configEntries {
		files, err := ExpandPathToFiles(workspaceDir, entry.Path)
		if err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		for _, file := range files {
			if seen[file] {
				continue
			}
			seen[file] = true
			fileResult := PushFile(ctx, workspaceDir, file, configEntries, PushOptions{Cloud: opts.Cloud})
			result.Pushed = append(result.Pushed, fileResult.Pushed...)
			result.Errors = append(result.Errors, fileResult.Errors...)
		}
	}
	return result
}

// createWatch registers a server-side watch for a pushed file. Requires
// the workspace to be a git repository with an origin remote, so the
// watch can open pull requests against it.
func createWatch(ctx context.Context, workspaceDir, path, url string, opts PushOptions) error {
	origin, err := gitOriginURL(workspaceDir)
	if err != nil {
		return fmt.Errorf("--watch requires a git repository with an origin remote: %w", err)
	}

	direction := opts.WatchDirection
	if direction == "" {
		direction = WatchBi
	}

	watchID := ""
	if opts.Cloud != nil {
		watchID, err = opts.Cloud.CreateWatch(ctx, origin, path, url, direction)
		if err != nil {
			return fmt.Errorf("create watch for %s: %w", url, err)
		}
	} else {
		// Without a Cloud client (tests, offline) generate a local id so
		// the binding is still recorded.
		watchID = "watch_" + ulid.Make().String()
	}

	slog.Debug("created watch", "path", path, "url", url, "watch", watchID)
	return UpdateWatchID(workspaceDir, path, url, watchID, direction)
}

// ReconcileWatches fetches the valid watch ids from the Cloud API and
// clears any local watch id no longer among them.
func ReconcileWatches(ctx context.Context, workspaceDir string, cloud CloudClient) (int, error) {
	ids, err := cloud.ListWatchIDs(ctx)
	if err != nil {
		return 0, err
	}
	valid := map[string]bool{}
	for _, id := range ids {
		valid[id] = true
	}
	return RemoveDeletedWatches(workspaceDir, valid)
}

// gitOriginURL returns the workspace's origin remote URL.
func gitOriginURL(workspaceDir string) (string, error) {
	cmd := exec.Command("git", "remote", "get-url", "origin")
	cmd.Dir = workspaceDir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git remote get-url origin: %w", err)
	}
	origin := strings.TrimSpace(string(out))
	if origin == "" {
		return "", fmt.Errorf("origin remote has no URL")
	}
	return origin, nil
}
