// Package auth resolves model-provider credentials and builds the model
// client from them.
//
// Resolution order per provider: explicit override, environment variable,
// then local CLI-tool OAuth credentials. When models.providers is present
// in config only the named providers are registered, regardless of what
// the environment carries.
package auth

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/stencila/stencila/internal/llm"
	"github.com/stencila/stencila/internal/llm/providers/anthropic"
	"github.com/stencila/stencila/internal/llm/providers/openai"
	"github.com/stencila/stencila/internal/providerspec"
)

// Options carries explicit credential overrides passed to the client
// builder: provider name to API key.
type Options struct {
	Keys map[string]string
}

// Validate checks override keys against the known provider names,
// failing with the accepted set listed.
func (o *Options) Validate() error {
	if o == nil {
		return nil
	}
	accepted := providerspec.Names()
	for name := range o.Keys {
		if _, ok := providerspec.Builtin(name); !ok {
			sort.Strings(accepted)
			return &llm.ConfigurationError{Message: fmt.Sprintf(
				"unknown provider %q in auth overrides; accepted: %s",
				name, strings.Join(accepted, ", "),
			)}
		}
	}
	return nil
}

// providerEnabled applies the models.providers config gate.
func providerEnabled(configured []string, provider string) bool {
	if configured == nil {
		return true
	}
	provider = providerspec.CanonicalProviderKey(provider)
	for _, name := range configured {
		if providerspec.CanonicalProviderKey(name) == provider {
			return true
		}
	}
	return false
}

// apiKeyFromEnv resolves a provider's API key from its env var or the
// documented fallbacks (GOOGLE_API_KEY for gemini).
func apiKeyFromEnv(spec providerspec.Spec) string {
	if spec.API == nil {
		return ""
	}
	if key := strings.TrimSpace(os.Getenv(spec.API.APIKeyEnv)); key != "" {
		return key
	}
	for _, env := range spec.API.FallbackAPIKeyEnvs {
		if key := strings.TrimSpace(os.Getenv(env)); key != "" {
			return key
		}
	}
	return ""
}

// ClientFromEnv builds a client from the environment, the configured
// provider gate (nil means no gate) and optional explicit overrides.
func ClientFromEnv(configured []string, options *Options) (*llm.Client, error) {
	if err := options.Validate(); err != nil {
		return nil, err
	}

	client := llm.NewClient()
	client.SetConfiguredProviders(configured)

	// Adapters discoverable from the environment, via the factories the
	// provider packages register in their init functions.
	envAdapters := map[string]llm.ProviderAdapter{}
	for _, factory := range llm.EnvAdapterFactories() {
		adapter, present, err := factory()
		if err != nil {
			return nil, err
		}
		if present {
			envAdapters[adapter.Name()] = adapter
		}
	}

	fromKey := func(provider, key string) llm.ProviderAdapter {
		switch provider {
		case "openai":
			return openai.New(key, os.Getenv("OPENAI_BASE_URL"))
		case "anthropic":
			return anthropic.New(key, os.Getenv("ANTHROPIC_BASE_URL"))
		default:
			return nil
		}
	}

	for _, provider := range providerspec.Names() {
		if !providerEnabled(configured, provider) {
			continue
		}
		spec, _ := providerspec.Builtin(provider)

		// 1. Explicit override
		if options != nil {
			if key := strings.TrimSpace(options.Keys[provider]); key != "" {
				if adapter := fromKey(provider, key); adapter != nil {
					client.Register(adapter)
					slog.Debug("registered provider", "provider", provider, "source", "override")
				}
				continue
			}
		}

		// 2. Environment variable
		if adapter, ok := envAdapters[provider]; ok {
			client.Register(adapter)
			slog.Debug("registered provider", "provider", provider, "source", "env")
			continue
		}
		if key := apiKeyFromEnv(spec); key != "" {
			// Configured in the environment but no adapter is bundled;
			// routing falls back to the provider's CLI counterpart.
			slog.Debug("no adapter bundled for provider", "provider", provider)
			continue
		}

		// 3. CLI-tool OAuth credentials, only when 1 and 2 are absent
		if key := cliOAuthKey(provider); key != "" {
			if adapter := fromKey(provider, key); adapter != nil {
				client.Register(adapter)
				slog.Debug("registered provider", "provider", provider, "source", "cli-oauth")
			}
		}
	}

	return client, nil
}
