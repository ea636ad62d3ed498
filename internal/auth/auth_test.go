package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stencila/stencila/internal/providerspec"
)

func mustSpec(t *testing.T, name string) providerspec.Spec {
	t.Helper()
	spec, ok := providerspec.Builtin(name)
	require.True(t, ok)
	return spec
}

func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, env := range []string{
		"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY",
		"GOOGLE_API_KEY", "MISTRAL_API_KEY", "DEEPSEEK_API_KEY",
	} {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}
	// Point HOME away from any real CLI credentials.
	t.Setenv("HOME", t.TempDir())
}

func TestOptions_ValidateUnknownKey(t *testing.T) {
	opts := &Options{Keys: map[string]string{"not-a-provider": "k"}}
	err := opts.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not-a-provider")
	assert.Contains(t, err.Error(), "anthropic")
	assert.Contains(t, err.Error(), "openai")
}

func TestOptions_ValidateKnownKeys(t *testing.T) {
	opts := &Options{Keys: map[string]string{"openai": "k", "anthropic": "k"}}
	require.NoError(t, opts.Validate())
	require.NoError(t, (*Options)(nil).Validate())
}

func TestClientFromEnv_EnvVarRegistersProvider(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	client, err := ClientFromEnv(nil, nil)
	require.NoError(t, err)
	assert.True(t, client.HasProvider("anthropic"))
	assert.False(t, client.HasProvider("openai"))
}

func TestClientFromEnv_ConfigGateExcludesEnvProviders(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("OPENAI_API_KEY", "sk-test-2")

	client, err := ClientFromEnv([]string{"openai"}, nil)
	require.NoError(t, err)
	assert.False(t, client.HasProvider("anthropic"), "gated out despite env var")
	assert.True(t, client.HasProvider("openai"))
}

func TestClientFromEnv_OverrideBeatsEnv(t *testing.T) {
	clearProviderEnv(t)
	client, err := ClientFromEnv(nil, &Options{Keys: map[string]string{"openai": "override-key"}})
	require.NoError(t, err)
	assert.True(t, client.HasProvider("openai"))
}

func TestClientFromEnv_CLIOAuthFallback(t *testing.T) {
	clearProviderEnv(t)
	home := os.Getenv("HOME")
	codexDir := filepath.Join(home, ".codex")
	require.NoError(t, os.MkdirAll(codexDir, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(codexDir, "auth.json"),
		[]byte(`{"OPENAI_API_KEY":"from-codex"}`), 0o600))

	client, err := ClientFromEnv(nil, nil)
	require.NoError(t, err)
	assert.True(t, client.HasProvider("openai"))
}

func TestClientFromEnv_EnvBeatsCLIOAuth(t *testing.T) {
	clearProviderEnv(t)
	home := os.Getenv("HOME")
	claudeDir := filepath.Join(home, ".claude")
	require.NoError(t, os.MkdirAll(claudeDir, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(claudeDir, ".credentials.json"),
		[]byte(`{"claudeAiOauth":{"accessToken":"oauth-token"}}`), 0o600))
	t.Setenv("ANTHROPIC_API_KEY", "sk-env")

	client, err := ClientFromEnv(nil, nil)
	require.NoError(t, err)
	assert.True(t, client.HasProvider("anthropic"))
}

func TestCodexAuthKey_Forms(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "auth.json")

	require.NoError(t, os.WriteFile(path, []byte(`{"OPENAI_API_KEY":"plain"}`), 0o600))
	assert.Equal(t, "plain", codexAuthKey(path))

	require.NoError(t, os.WriteFile(path, []byte(`{"tokens":{"access_token":"oauth"}}`), 0o600))
	assert.Equal(t, "oauth", codexAuthKey(path))

	require.NoError(t, os.WriteFile(path, []byte(`not json`), 0o600))
	assert.Equal(t, "", codexAuthKey(path))

	assert.Equal(t, "", codexAuthKey(filepath.Join(dir, "missing.json")))
}

func TestClientFromEnv_GoogleAPIKeyFallbackForGemini(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("GOOGLE_API_KEY", "g-key")

	spec := mustSpec(t, "gemini")
	assert.Equal(t, "g-key", apiKeyFromEnv(spec))
}
