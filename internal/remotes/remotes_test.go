package remotes

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func u64(v uint64) *uint64 { return &v }

func TestCalculateStatus_Table(t *testing.T) {
	cases := []struct {
		name                               string
		localStatus                        RemoteStatus
		localMod, remoteMod, pushed, pulled *uint64
		want                               RemoteStatus
	}{
		// Both sync times: last_synced = max(pushed, pulled).
		{"synced", StatusUnknown, u64(1000), u64(1000), u64(1000), u64(999), StatusSynced},
		{"local changed", StatusUnknown, u64(1100), u64(1000), u64(1000), u64(900), StatusBehind},
		{"remote changed", StatusUnknown, u64(1000), u64(1100), u64(1000), u64(900), StatusAhead},
		{"both changed", StatusUnknown, u64(1100), u64(1200), u64(1000), u64(900), StatusDiverged},

		// Tolerances: changes within the windows are not changes.
		{"local within tolerance", StatusUnknown, u64(1004), u64(1000), u64(1000), nil, StatusSynced},
		{"remote within tolerance", StatusUnknown, u64(1000), u64(1029), u64(1000), nil, StatusSynced},

		// Only pushed_at: 1000 > 505 and 1100 > 530.
		{"pushed only diverged", StatusUnknown, u64(1000), u64(1100), u64(500), nil, StatusDiverged},

		// Only pulled_at.
		{"pulled only ahead", StatusUnknown, u64(500), u64(1100), nil, u64(500), StatusAhead},

		// No sync times: direct comparison with the remote tolerance.
		{"no sync local newer", StatusUnknown, u64(2000), u64(1000), nil, nil, StatusBehind},
		{"no sync remote newer", StatusUnknown, u64(1000), u64(2000), nil, nil, StatusAhead},
		{"no sync close", StatusUnknown, u64(1010), u64(1000), nil, nil, StatusSynced},

		// Missing timestamps.
		{"no local mod", StatusUnknown, nil, u64(1000), u64(900), nil, StatusUnknown},
		{"no remote mod", StatusUnknown, u64(1000), nil, u64(900), nil, StatusUnknown},

		// Deleted local: Ahead only when the remote is confirmed.
		{"deleted remote exists", StatusDeleted, nil, u64(1000), nil, nil, StatusAhead},
		{"deleted remote unknown", StatusDeleted, nil, nil, nil, nil, StatusUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CalculateStatus(tc.localStatus, tc.localMod, tc.remoteMod, tc.pushed, tc.pulled)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEntries_ReadWriteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	stencilaDir := filepath.Join(dir, StencilaDir)

	entries, err := ReadEntries(stencilaDir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	pushed := uint64(1234)
	entries = Entries{
		"docs/report.md": {
			"https://docs.google.com/document/d/abc": {
				PushedAt:       &pushed,
				WatchID:        "watch_1",
				WatchDirection: WatchBi,
			},
		},
	}
	require.NoError(t, WriteEntries(stencilaDir, entries))

	loaded, err := ReadEntries(stencilaDir)
	require.NoError(t, err)
	info := loaded["docs/report.md"]["https://docs.google.com/document/d/abc"]
	require.NotNil(t, info)
	assert.Equal(t, pushed, *info.PushedAt)
	assert.True(t, info.IsWatched())
	assert.Equal(t, WatchBi, info.WatchDirection)
}

func TestUpdateTimestamp_PushedAtMonotonic(t *testing.T) {
	dir := t.TempDir()
	url := "https://docs.google.com/document/d/abc"

	require.NoError(t, UpdateTimestamp(dir, "a.md", url, "pushed"))
	entries, err := ReadEntries(filepath.Join(dir, StencilaDir))
	require.NoError(t, err)
	first := *entries["a.md"][url].PushedAt

	time.Sleep(1100 * time.Millisecond)
	require.NoError(t, UpdateTimestamp(dir, "a.md", url, "pushed"))
	entries, err = ReadEntries(filepath.Join(dir, StencilaDir))
	require.NoError(t, err)
	second := *entries["a.md"][url].PushedAt

	assert.GreaterOrEqual(t, second, first)
	assert.Greater(t, second, first, "pushed_at should advance across pushes")
}

func TestUpdateTimestamp_KeysNormalizedPath(t *testing.T) {
	dir := t.TempDir()
	url := "https://docs.google.com/document/d/abc"
	require.NoError(t, UpdateTimestamp(dir, "./a.md", url, "pulled"))
	entries, err := ReadEntries(filepath.Join(dir, StencilaDir))
	require.NoError(t, err)
	require.Contains(t, entries, "a.md")
	assert.NotNil(t, entries["a.md"][url].PulledAt)
}

func TestRemoveDeletedWatches(t *testing.T) {
	dir := t.TempDir()
	url := "https://docs.google.com/document/d/abc"
	require.NoError(t, UpdateWatchID(dir, "a.md", url, "watch_live", WatchBi))
	require.NoError(t, UpdateWatchID(dir, "b.md", url, "watch_dead", WatchBi))

	removed, err := RemoveDeletedWatches(dir, map[string]bool{"watch_live": true})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	entries, err := ReadEntries(filepath.Join(dir, StencilaDir))
	require.NoError(t, err)
	assert.Equal(t, "watch_live", entries["a.md"][url].WatchID)
	assert.Equal(t, "", entries["b.md"][url].WatchID)
	assert.Equal(t, WatchDirection(""), entries["b.md"][url].WatchDirection)
}

func TestPathMatches_LiteralAndGlob(t *testing.T) {
	assert.True(t, PathMatches("docs/report.md", "./docs/report.md"))
	assert.True(t, PathMatches("docs/**/*.md", "docs/sub/deep/file.md"))
	assert.False(t, PathMatches("docs/*.md", "other/file.md"))
}

func TestServiceFromURL(t *testing.T) {
	assert.Equal(t, ServiceGoogleDocs, ServiceFromURL("https://docs.google.com/document/d/abc/edit"))
	assert.Equal(t, ServiceGitHub, ServiceFromURL("https://github.com/o/r/issues/1"))
	assert.Equal(t, ServiceMicrosoft365, ServiceFromURL("https://example.sharepoint.com/doc"))
	assert.Equal(t, ServiceKind(""), ServiceFromURL("https://example.com/doc"))
}

// fakeService counts pushes and serves fixed modification times.
type fakeService struct {
	kind     ServiceKind
	mu       sync.Mutex
	pushes   []string
	modified uint64
	pushErr  error
}

func (s *fakeService) Kind() ServiceKind { return s.kind }
func (s *fakeService) ModifiedAt(ctx context.Context, url string) (uint64, error) {
	return s.modified, nil
}
func (s *fakeService) Push(ctx context.Context, localPath, url string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pushErr != nil {
		return "", s.pushErr
	}
	s.pushes = append(s.pushes, url)
	return url, nil
}
func (s *fakeService) Pull(ctx context.Context, url, localPath string) error { return nil }

func withFakeGDocs(t *testing.T, s *fakeService) {
	t.Helper()
	s.kind = ServiceGoogleDocs
	RegisterService(s)
	t.Cleanup(func() {
		servicesMu.Lock()
		delete(services, ServiceGoogleDocs)
		servicesMu.Unlock()
	})
}

func TestPushFile_SingleTrackedRemote(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("x"), 0o644))
	url := "https://docs.google.com/document/d/abc"
	require.NoError(t, UpdateTimestamp(dir, "a.md", url, "pulled"))

	svc := &fakeService{}
	withFakeGDocs(t, svc)

	result := PushFile(context.Background(), dir, "a.md", nil, PushOptions{})
	require.True(t, result.Ok(), "%v", result.Errors)
	assert.Equal(t, []string{url}, result.Pushed)

	entries, err := ReadEntries(filepath.Join(dir, StencilaDir))
	require.NoError(t, err)
	assert.NotNil(t, entries["a.md"][url].PushedAt)
}

func TestPushFile_UnsupportedRemoteDoesNotAbortOthers(t *testing.T) {
	dir := t.TempDir()
	gdoc := "https://docs.google.com/document/d/abc"
	unsupported := "https://example.com/doc/1"
	require.NoError(t, UpdateTimestamp(dir, "a.md", gdoc, "pulled"))
	require.NoError(t, UpdateTimestamp(dir, "a.md", unsupported, "pulled"))

	svc := &fakeService{}
	withFakeGDocs(t, svc)

	result := PushFile(context.Background(), dir, "a.md", nil, PushOptions{})
	assert.Len(t, result.Pushed, 1)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Error(), "unsupported remote service")
}

func TestPushFile_MultipleSameServiceRefused(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, UpdateTimestamp(dir, "a.md", "https://docs.google.com/document/d/one", "pulled"))
	require.NoError(t, UpdateTimestamp(dir, "a.md", "https://docs.google.com/document/d/two", "pulled"))

	svc := &fakeService{}
	withFakeGDocs(t, svc)

	result := PushFile(context.Background(), dir, "a.md", nil, PushOptions{})
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Error(), "--force-new")
	assert.Empty(t, result.Pushed)
}

func TestPushFile_ExplicitRemoteBypassesAmbiguity(t *testing.T) {
	dir := t.TempDir()
	one := "https://docs.google.com/document/d/one"
	require.NoError(t, UpdateTimestamp(dir, "a.md", one, "pulled"))
	require.NoError(t, UpdateTimestamp(dir, "a.md", "https://docs.google.com/document/d/two", "pulled"))

	svc := &fakeService{}
	withFakeGDocs(t, svc)

	result := PushFile(context.Background(), dir, "a.md", nil, PushOptions{Remote: one})
	require.True(t, result.Ok(), "%v", result.Errors)
	assert.Equal(t, []string{one}, result.Pushed)
}

func TestPushFile_WatchIncompatibleWithAll(t *testing.T) {
	result := PushFile(context.Background(), t.TempDir(), "a.md", nil, PushOptions{Watch: true, All: true})
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Error(), "--watch")
}

func TestPushAll_AggregatesErrors(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.md"), []byte("x"), 0o644))

	svc := &fakeService{}
	withFakeGDocs(t, svc)

	entries := []ConfigRemote{
		{Path: "a.md", URL: "https://docs.google.com/document/d/a"},
		{Path: "b.md", URL: "https://example.com/unsupported"},
		{Path: "missing.md", URL: "https://docs.google.com/document/d/m"},
	}
	result := PushAll(context.Background(), dir, entries, PushOptions{})
	assert.Equal(t, []string{"https://docs.google.com/document/d/a"}, result.Pushed)
	assert.Len(t, result.Errors, 2)
	assert.False(t, result.Ok())
}

type fakeCloud struct {
	created []string
	ids     []string
}

func (c *fakeCloud) CreateWatch(ctx context.Context, repo, path, url string, direction WatchDirection) (string, error) {
	id := "watch_" + path
	c.created = append(c.created, id)
	return id, nil
}
func (c *fakeCloud) ListWatchIDs(ctx context.Context) ([]string, error) { return c.ids, nil }

func TestPushFile_WatchRequiresGitOrigin(t *testing.T) {
	dir := t.TempDir()
	url := "https://docs.google.com/document/d/abc"
	require.NoError(t, UpdateTimestamp(dir, "a.md", url, "pulled"))

	svc := &fakeService{}
	withFakeGDocs(t, svc)

	result := PushFile(context.Background(), dir, "a.md", nil, PushOptions{Watch: true, Cloud: &fakeCloud{}})
	// The push itself succeeds; watch creation fails without a git
	// origin and is reported.
	assert.Len(t, result.Pushed, 1)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0].Error(), "git repository")
}

func TestReconcileWatches_SweepsStaleIDs(t *testing.T) {
	dir := t.TempDir()
	url := "https://docs.google.com/document/d/abc"
	require.NoError(t, UpdateWatchID(dir, "a.md", url, "watch_keep", WatchBi))
	require.NoError(t, UpdateWatchID(dir, "b.md", url, "watch_stale", WatchBi))

	removed, err := ReconcileWatches(context.Background(), dir, &fakeCloud{ids: []string{"watch_keep"}})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestCalculateStatuses_UsesService(t *testing.T) {
	dir := t.TempDir()
	path := "a.md"
	require.NoError(t, os.WriteFile(filepath.Join(dir, path), []byte("x"), 0o644))

	now := uint64(time.Now().Unix())
	svc := &fakeService{modified: now + 3600}
	withFakeGDocs(t, svc)

	pushed := now
	infos := map[string]*RemoteInfo{
		"https://docs.google.com/document/d/abc": {PushedAt: &pushed},
	}
	statuses := CalculateStatuses(context.Background(), dir, path, infos)
	require.Len(t, statuses, 1)
	assert.Equal(t, StatusAhead, statuses[0].Status)
	require.NotNil(t, statuses[0].RemoteModifiedAt)
	assert.Equal(t, now+3600, *statuses[0].RemoteModifiedAt)
}

func TestExpandPathToFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "docs", "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docs", "a.md"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docs", "sub", "b.md"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docs", "c.txt"), nil, 0o644))

	files, err := ExpandPathToFiles(dir, "docs/a.md")
	require.NoError(t, err)
	assert.Equal(t, []string{"docs/a.md"}, files)

	files, err = ExpandPathToFiles(dir, "docs")
	require.NoError(t, err)
	assert.Len(t, files, 3)

	files, err = ExpandPathToFiles(dir, "docs/**/*.md")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"docs/a.md", "docs/sub/b.md"}, files)

	_, err = ExpandPathToFiles(dir, "nope/**/*.md")
	require.Error(t, err)
}
