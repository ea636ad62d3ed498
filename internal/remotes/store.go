package remotes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// Entries is the tracking store: relative file path to url to info.
// Invariant: a (path, url) pair has at most one RemoteInfo.
type Entries map[string]map[string]*RemoteInfo

// StencilaDir is the per-workspace tracking directory.
const StencilaDir = ".stencila"

const entriesFileName = "remotes.json"

// ReadEntries reads the tracking store from <stencilaDir>/remotes.json.
// A missing file is an empty store.
func ReadEntries(stencilaDir string) (Entries, error) {
	path := filepath.Join(stencilaDir, entriesFileName)
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Entries{}, nil
		}
		return nil, err
	}
	var entries Entries
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if entries == nil {
		entries = Entries{}
	}
	return entries, nil
}

// WriteEntries writes the tracking store, creating the directory if
// needed.
func WriteEntries(stencilaDir string, entries Entries) error {
	if err := os.MkdirAll(stencilaDir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(stencilaDir, entriesFileName), append(b, '\n'), 0o644)
}

// NormalizePath strips a leading "./" and cleans the path so tracking
// keys are stable.
func NormalizePath(path string) string {
	cleaned := filepath.Clean(strings.TrimPrefix(path, "./"))
	if cleaned == "." {
		return ""
	}
	return cleaned
}

// PathMatches reports whether a config path entry matches a file path.
// Entries may be literal paths or doublestar glob patterns
// (e.g. "docs/**/*.md").
func PathMatches(configPath, filePath string) bool {
	configPath = NormalizePath(configPath)
	filePath = NormalizePath(filePath)
	if configPath == filePath {
		return true
	}
	ok, err := doublestar.Match(configPath, filePath)
	return err == nil && ok
}

// UpdateTimestamp records a successful push or pull for a (path, url)
// binding. kind is "pushed" or "pulled". Timestamps are monotonic: an
// update never moves a recorded time backwards.
func UpdateTimestamp(workspaceDir, path, url, kind string) error {
	stencilaDir := filepath.Join(workspaceDir, StencilaDir)
	entries, err := ReadEntries(stencilaDir)
	if err != nil {
		return err
	}

	key := NormalizePath(path)
	if entries[key] == nil {
		entries[key] = map[string]*RemoteInfo{}
	}
	info := entries[key][url]
	if info == nil {
		info = &RemoteInfo{}
		entries[key][url] = info
	}

	now := uint64(time.Now().Unix())
	switch kind {
	case "pushed":
		if info.PushedAt == nil || now > *info.PushedAt {
			info.PushedAt = &now
		}
	case "pulled":
		if info.PulledAt == nil || now > *info.PulledAt {
			info.PulledAt = &now
		}
	default:
		return fmt.Errorf("unknown timestamp kind %q", kind)
	}

	return WriteEntries(stencilaDir, entries)
}

// UpdateWatchID sets or clears the watch id for a (path, url) binding.
func UpdateWatchID(workspaceDir, path, url, watchID string, direction WatchDirection) error {
	stencilaDir := filepath.Join(workspaceDir, StencilaDir)
	entries, err := ReadEntries(stencilaDir)
	if err != nil {
		return err
	}

	key := NormalizePath(path)
	if entries[key] == nil {
		entries[key] = map[string]*RemoteInfo{}
	}
	info := entries[key][url]
	if info == nil {
		info = &RemoteInfo{}
		entries[key][url] = info
	}
	info.WatchID = watchID
	if watchID == "" {
		info.WatchDirection = ""
	} else if direction != "" {
		info.WatchDirection = direction
	}

	return WriteEntries(stencilaDir, entries)
}

// RemoveDeletedWatches sweeps the store, clearing any watch id not in
// the set of ids the Cloud API still knows about. Returns the number of
// watches removed.
func RemoveDeletedWatches(workspaceDir string, validIDs map[string]bool) (int, error) {
	stencilaDir := filepath.Join(workspaceDir, StencilaDir)
	entries, err := ReadEntries(stencilaDir)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, urls := range entries {
		for _, info := range urls {
			if info.WatchID != "" && !validIDs[info.WatchID] {
				info.WatchID = ""
				info.WatchDirection = ""
				removed++
			}
		}
	}
	if removed > 0 {
		if err := WriteEntries(stencilaDir, entries); err != nil {
			return 0, err
		}
	}
	return removed, nil
}

// RemotesForPath collects the remotes bound to a file, joining the
// declarative config entries with the tracking store by (path, url).
func RemotesForPath(workspaceDir, path string, configEntries []ConfigRemote) (map[string]*RemoteInfo, error) {
	stencilaDir := filepath.Join(workspaceDir, StencilaDir)
	entries, err := ReadEntries(stencilaDir)
	if err != nil {
		return nil, err
	}

	key := NormalizePath(path)
	out := map[string]*RemoteInfo{}
	for url, info := range entries[key] {
		out[url] = info
	}
	for _, entry := range configEntries {
		if !PathMatches(entry.Path, path) {
			continue
		}
		if _, ok := out[entry.URL]; !ok {
			out[entry.URL] = &RemoteInfo{}
		}
	}
	return out, nil
}

// ExpandPathToFiles expands a path argument to the files it names: a
// file is itself, a directory is walked recursively, and a glob pattern
// is matched against the workspace.
func ExpandPathToFiles(workspaceDir, path string) ([]string, error) {
	full := filepath.Join(workspaceDir, path)
	if info, err := os.Stat(full); err == nil {
		if !info.IsDir() {
			return []string{NormalizePath(path)}, nil
		}
		var files []string
		err := filepath.WalkDir(full, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if d.Name() == StencilaDir || d.Name() == ".git" {
					return filepath.SkipDir
				}
				return nil
			}
			rel, err := filepath.Rel(workspaceDir, p)
			if err != nil {
				return err
			}
			files = append(files, NormalizePath(rel))
			return nil
		})
		return files, err
	}

	// Not an existing path: try as a glob pattern.
	matches, err := doublestar.Glob(os.DirFS(workspaceDir), NormalizePath(path))
	if err != nil {
		return nil, fmt.Errorf("invalid path or pattern %q: %w", path, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("path %q matches no files", path)
	}
	return matches, nil
}

// ConfigRemote is the declarative remote binding from stencila.toml,
// re-declared here so the store does not depend on the config package.
type ConfigRemote struct {
	Path  string
	URL   string
	Watch bool
}
