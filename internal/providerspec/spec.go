package providerspec

import (
	"strings"
	"sync"
)

// APIProtocol names the wire protocol an API provider speaks.
type APIProtocol string

const (
	ProtocolOpenAIResponses   APIProtocol = "openai_responses"
	ProtocolAnthropicMessages APIProtocol = "anthropic_messages"
	ProtocolOpenAIChat        APIProtocol = "openai_chat_completions"
	ProtocolGoogleGenerate    APIProtocol = "google_generate_content"
)

// APISpec describes how to reach a provider's HTTP API.
type APISpec struct {
	Protocol APIProtocol

	DefaultBaseURL string

	// APIKeyEnv is the environment variable holding the API key;
	// FallbackAPIKeyEnvs are accepted when it is unset.
	APIKeyEnv          string
	FallbackAPIKeyEnvs []string

	// DefaultModel is the catalog model id used when an agent names the
	// provider but no model.
	DefaultModel string
}

// CLISpec describes the local coding-agent CLI paired with a provider.
type CLISpec struct {
	// Key is the *-cli provider name, e.g. "claude-cli".
	Key string
	// Executable is the binary probed for on PATH.
	Executable string
}

// Spec is the full description of one provider.
type Spec struct {
	Key     string
	Aliases []string
	API     *APISpec
	CLI     *CLISpec
}

var (
	aliasOnce  sync.Once
	aliasIndex map[string]string
)

func aliases() map[string]string {
	aliasOnce.Do(func() {
		aliasIndex = map[string]string{}
		for rawKey, spec := range builtinSpecs {
			key := strings.ToLower(strings.TrimSpace(rawKey))
			if key == "" {
				continue
			}
			aliasIndex[key] = key
			for _, rawAlias := range spec.Aliases {
				if alias := strings.ToLower(strings.TrimSpace(rawAlias)); alias != "" {
					aliasIndex[alias] = key
				}
			}
			if spec.CLI != nil {
				cli := strings.ToLower(strings.TrimSpace(spec.CLI.Key))
				if cli != "" {
					aliasIndex[cli] = cli
				}
			}
		}
	})
	return aliasIndex
}

// CanonicalProviderKey lowercases and resolves aliases to the canonical
// provider key. Unknown names pass through lowercased.
func CanonicalProviderKey(in string) string {
	key := strings.ToLower(strings.TrimSpace(in))
	if key == "" {
		return ""
	}
	if canonical, ok := aliases()[key]; ok {
		return canonical
	}
	return key
}

// CanonicalizeProviderList canonicalizes and de-duplicates provider
// names, preserving order.
func CanonicalizeProviderList(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, raw := range in {
		key := CanonicalProviderKey(raw)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
