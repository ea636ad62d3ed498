package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirEnvironment_RoundTrip(t *testing.T) {
	env := NewDirEnvironment(t.TempDir())

	require.NoError(t, env.WriteFile("sub/dir/file.txt", "content\n"))
	got, err := env.ReadFile("sub/dir/file.txt")
	require.NoError(t, err)
	assert.Equal(t, "content\n", got)

	require.NoError(t, env.DeleteFile("sub/dir/file.txt"))
	_, err = env.ReadFile("sub/dir/file.txt")
	require.Error(t, err)
}

func TestDirEnvironment_ConfinesEscapingPaths(t *testing.T) {
	env := NewDirEnvironment(t.TempDir())
	// Parent traversal is cleaned into the root rather than escaping it.
	require.NoError(t, env.WriteFile("../escape.txt", "x"))
	got, err := env.ReadFile("escape.txt")
	require.NoError(t, err)
	assert.Equal(t, "x", got)

	_, err = env.ReadFile("")
	require.Error(t, err)
}

func TestMemEnvironment_DeleteMissing(t *testing.T) {
	env := NewMemEnvironment()
	require.Error(t, env.DeleteFile("nope"))
	require.NoError(t, env.WriteFile("a", "1"))
	require.NoError(t, env.DeleteFile("a"))
}
