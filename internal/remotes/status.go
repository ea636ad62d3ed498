package remotes

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// URLStatus is the computed status of one remote binding.
type URLStatus struct {
	URL              string
	RemoteModifiedAt *uint64
	Status           RemoteStatus
}

// localModifiedAt returns the file's modification time as UNIX seconds,
// nil when the file does not exist.
func localModifiedAt(workspaceDir, path string) *uint64 {
	info, err := os.Stat(filepath.Join(workspaceDir, path))
	if err != nil {
		return nil
	}
	mod := uint64(info.ModTime().Unix())
	return &mod
}

// CalculateStatuses computes the status of every remote of a file,
// fetching remote modification times concurrently. An unsupported URL or
// a fetch failure yields a nil remote time, classifying as Unknown (or
// Ahead for deleted locals only when the remote is confirmed).
func CalculateStatuses(ctx context.Context, workspaceDir, path string, infos map[string]*RemoteInfo) []URLStatus {
	if len(infos) == 0 {
		return nil
	}

	localMod := localModifiedAt(workspaceDir, path)
	localStatus := StatusUnknown
	if localMod == nil {
		localStatus = StatusDeleted
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var out []URLStatus

	for url, info := range infos {
		wg.Add(1)
		go func(url string, info *RemoteInfo) {
			defer wg.Done()

			var remoteMod *uint64
			if service := ServiceFor(url); service != nil {
				if mod, err := service.ModifiedAt(ctx, url); err == nil {
					remoteMod = &mod
				} else {
					slog.Debug("failed to fetch remote modification time", "url", url, "error", err)
				}
			} else {
				slog.Debug("unsupported remote service", "url", url)
			}

			status := CalculateStatus(localStatus, localMod, remoteMod, info.PushedAt, info.PulledAt)

			mu.Lock()
			out = append(out, URLStatus{URL: url, RemoteModifiedAt: remoteMod, Status: status})
			mu.Unlock()
		}(url, info)
	}
	wg.Wait()

	return out
}
