package providerspec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalProviderKey(t *testing.T) {
	assert.Equal(t, "gemini", CanonicalProviderKey("google"))
	assert.Equal(t, "gemini", CanonicalProviderKey("GOOGLE_AI_STUDIO"))
	assert.Equal(t, "openai", CanonicalProviderKey(" OpenAI "))
	assert.Equal(t, "claude-cli", CanonicalProviderKey("claude-cli"))
	assert.Equal(t, "something-else", CanonicalProviderKey("something-else"))
	assert.Equal(t, "", CanonicalProviderKey("  "))
}

func TestCanonicalizeProviderList(t *testing.T) {
	got := CanonicalizeProviderList([]string{"google", "gemini", "", "OpenAI"})
	assert.Equal(t, []string{"gemini", "openai"}, got)
	assert.Nil(t, CanonicalizeProviderList(nil))
	assert.Nil(t, CanonicalizeProviderList([]string{"", "  "}))
}

func TestCLIMappings(t *testing.T) {
	assert.Equal(t, "claude-cli", APIToCLI("anthropic"))
	assert.Equal(t, "codex-cli", APIToCLI("openai"))
	assert.Equal(t, "gemini-cli", APIToCLI("gemini"))
	assert.Equal(t, "", APIToCLI("mistral"))

	assert.Equal(t, "anthropic", CLIToAPI("claude-cli"))
	assert.Equal(t, "openai", CLIToAPI("codex-cli"))
	assert.Equal(t, "", CLIToAPI("other-cli"))

	assert.True(t, IsCLIProvider("claude-cli"))
	assert.True(t, IsCLIProvider("gemini-cli"))
	assert.False(t, IsCLIProvider("anthropic"))
}

func TestDefaultModelAndEnvHints(t *testing.T) {
	assert.Equal(t, "claude-sonnet-4-5", DefaultModel("anthropic"))
	assert.Equal(t, "gpt-5.2", DefaultModel("openai"))
	assert.Equal(t, "", DefaultModel("unknown"))

	assert.Equal(t, "ANTHROPIC_API_KEY", APIKeyEnvHint("anthropic"))
	assert.Equal(t, "GEMINI_API_KEY", APIKeyEnvHint("google"))
}

func TestBuiltin_ReturnsClones(t *testing.T) {
	a, ok := Builtin("gemini")
	assert.True(t, ok)
	a.API.APIKeyEnv = "MUTATED"
	b, _ := Builtin("gemini")
	assert.Equal(t, "GEMINI_API_KEY", b.API.APIKeyEnv)
}
