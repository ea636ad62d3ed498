package providerspec

import "strings"

var builtinSpecs = map[string]Spec{
	"openai": {
		Key: "openai",
		API: &APISpec{
			Protocol:       ProtocolOpenAIResponses,
			DefaultBaseURL: "https://api.openai.com",
			APIKeyEnv:      "OPENAI_API_KEY",
			DefaultModel:   "gpt-5.2",
		},
		CLI: &CLISpec{Key: "codex-cli", Executable: "codex"},
	},
	"anthropic": {
		Key: "anthropic",
		API: &APISpec{
			Protocol:       ProtocolAnthropicMessages,
			DefaultBaseURL: "https://api.anthropic.com",
			APIKeyEnv:      "ANTHROPIC_API_KEY",
			DefaultModel:   "claude-sonnet-4-5",
		},
		CLI: &CLISpec{Key: "claude-cli", Executable: "claude"},
	},
	"gemini": {
		Key:     "gemini",
		Aliases: []string{"google", "google_ai_studio"},
		API: &APISpec{
			Protocol:           ProtocolGoogleGenerate,
			DefaultBaseURL:     "https://generativelanguage.googleapis.com",
			APIKeyEnv:          "GEMINI_API_KEY",
			FallbackAPIKeyEnvs: []string{"GOOGLE_API_KEY"},
			DefaultModel:       "gemini-2.5-pro",
		},
		CLI: &CLISpec{Key: "gemini-cli", Executable: "gemini"},
	},
	"mistral": {
		Key: "mistral",
		API: &APISpec{
			Protocol:       ProtocolOpenAIChat,
			DefaultBaseURL: "https://api.mistral.ai",
			APIKeyEnv:      "MISTRAL_API_KEY",
			DefaultModel:   "mistral-large-latest",
		},
	},
	"deepseek": {
		Key: "deepseek",
		API: &APISpec{
			Protocol:       ProtocolOpenAIChat,
			DefaultBaseURL: "https://api.deepseek.com",
			APIKeyEnv:      "DEEPSEEK_API_KEY",
			DefaultModel:   "deepseek-chat",
		},
	},
}

// Builtin returns the spec for a provider key or alias.
func Builtin(key string) (Spec, bool) {
	s, ok := builtinSpecs[CanonicalProviderKey(key)]
	if !ok {
		return Spec{}, false
	}
	return cloneSpec(s), true
}

// Builtins returns a copy of all builtin specs keyed by canonical name.
func Builtins() map[string]Spec {
	out := make(map[string]Spec, len(builtinSpecs))
	for key, spec := range builtinSpecs {
		out[key] = cloneSpec(spec)
	}
	return out
}

// Names returns the canonical API provider names, in a stable order.
func Names() []string {
	return []string{"openai", "anthropic", "gemini", "mistral", "deepseek"}
}

// IsCLIProvider reports whether a provider name is one of the *-cli
// providers.
func IsCLIProvider(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, spec := range builtinSpecs {
		if spec.CLI != nil && spec.CLI.Key == name {
			return true
		}
	}
	return false
}

// APIToCLI maps an API provider to its paired CLI provider name, ""
// when the provider has no CLI counterpart.
func APIToCLI(provider string) string {
	spec, ok := Builtin(provider)
	if !ok || spec.CLI == nil {
		return ""
	}
	return spec.CLI.Key
}

// CLIToAPI maps a *-cli provider name back to its API provider, "" when
// unknown.
func CLIToAPI(cli string) string {
	cli = strings.ToLower(strings.TrimSpace(cli))
	for key, spec := range builtinSpecs {
		if spec.CLI != nil && spec.CLI.Key == cli {
			return key
		}
	}
	return ""
}

// DefaultModel returns the default model for a provider, "" when the
// provider has none.
func DefaultModel(provider string) string {
	spec, ok := Builtin(provider)
	if !ok || spec.API == nil {
		return ""
	}
	return spec.API.DefaultModel
}

// APIKeyEnvHint returns the env var a user should set to configure the
// provider, for error messages.
func APIKeyEnvHint(provider string) string {
	spec, ok := Builtin(provider)
	if !ok || spec.API == nil {
		return "an API key"
	}
	return spec.API.APIKeyEnv
}

// CLIBinaries returns (cli provider, executable) pairs in detection
// order: claude, codex, gemini.
func CLIBinaries() [][2]string {
	return [][2]string{
		{"claude-cli", "claude"},
		{"codex-cli", "codex"},
		{"gemini-cli", "gemini"},
	}
}

func cloneSpec(in Spec) Spec {
	out := in
	out.Aliases = append([]string(nil), in.Aliases...)
	if in.API != nil {
		api := *in.API
		api.FallbackAPIKeyEnvs = append([]string(nil), in.API.FallbackAPIKeyEnvs...)
		out.API = &api
	}
	if in.CLI != nil {
		cli := *in.CLI
		out.CLI = &cli
	}
	return out
}
