// Package routing decides whether an agent session speaks to an HTTP API
// provider or spawns a local CLI tool, and with which model.
package routing

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/stencila/stencila/internal/llm"
	"github.com/stencila/stencila/internal/providerspec"
)

// SessionRoute is the resolved backend for a session.
type SessionRoute struct {
	// Backend is "API" or "CLI".
	Backend string
	// Provider is the API provider name or *-cli provider name.
	Provider string
	// Model is the model to use; empty for a CLI route means the CLI
	// tool's own default.
	Model string
}

func (r SessionRoute) IsCLI() bool { return r.Backend == "CLI" }

// ProviderSource records where the provider decision came from.
type ProviderSource string

const (
	ProviderAgentExplicit     ProviderSource = "agent-explicit"
	ProviderInferredFromModel ProviderSource = "inferred-from-model"
	ProviderDefaultConfig     ProviderSource = "default-config"
	ProviderCliDefault        ProviderSource = "cli-default"
)

// ModelSource records where the model decision came from.
type ModelSource string

const (
	ModelAgentExplicit ModelSource = "agent-explicit"
	ModelDefaultAlias  ModelSource = "default-alias"
	ModelCliDefault    ModelSource = "cli-default"
)

// Decision is a resolved route plus the explanation metadata UX surfaces
// display.
type Decision struct {
	Route           SessionRoute
	ProviderSource  ProviderSource
	ModelSource     ModelSource
	// AliasResolution is (alias, concrete id) when the model name was an
	// alias for a different concrete catalog id.
	AliasResolution *[2]string
	FallbackUsed    bool
	FallbackReason  string
}

// Summary formats a concise one-line description for user display:
// "Using <provider> / <model-or-alias→concrete> (API|CLI; <source>)".
func (d Decision) Summary() string {
	model := d.Route.Model
	display := "default"
	if d.AliasResolution != nil {
		display = fmt.Sprintf("%s → %s", d.AliasResolution[0], d.AliasResolution[1])
	} else if model != "" {
		display = model
	}
	return fmt.Sprintf("Using %s / %s (%s; %s)", d.Route.Provider, display, d.Route.Backend, d.ProviderSource)
}

// FallbackWarning formats the API→CLI fallback warning, "" when no
// fallback occurred.
func (d Decision) FallbackWarning() string {
	if !d.FallbackUsed || !d.Route.IsCLI() {
		return ""
	}
	reason := d.FallbackReason
	if reason == "" {
		reason = "no API credentials"
	}
	return fmt.Sprintf("Falling back to %s — %s", d.Route.Provider, reason)
}

// RouteSession resolves the backend for an agent's optional provider and
// model declaration, discarding the explanation metadata.
func RouteSession(agentProvider, agentModel string, client *llm.Client) (SessionRoute, error) {
	decision, err := RouteSessionExplained(agentProvider, agentModel, client)
	if err != nil {
		return SessionRoute{}, err
	}
	return decision.Route, nil
}

// RouteSessionExplained resolves the backend with full metadata.
//
// Decision order:
//  1. an explicit *-cli provider always routes to CLI;
//  2. resolve an API provider and model (explicit, inferred from the
//     model, or the first configured provider with its default model;
//     with no API provider configured at all, detect a local CLI);
//  3. API credentials present routes to API;
//  4. otherwise fall back to the provider's paired CLI tool;
//  5. otherwise fail with an API-key hint.
func RouteSessionExplained(agentProvider, agentModel string, client *llm.Client) (Decision, error) {
	agentProvider = strings.TrimSpace(agentProvider)
	agentModel = strings.TrimSpace(agentModel)

	// 1. Explicit CLI provider
	if agentProvider != "" && providerspec.IsCLIProvider(agentProvider) {
		modelSource := ModelCliDefault
		if agentModel != "" {
			modelSource = ModelAgentExplicit
		}
		return Decision{
			Route:           SessionRoute{Backend: "CLI", Provider: agentProvider, Model: agentModel},
			ProviderSource:  ProviderAgentExplicit,
			ModelSource:     modelSource,
			AliasResolution: resolveAliasPreview(client, agentModel),
		}, nil
	}

	// 2. Resolve API provider + model
	var apiProvider, model string
	var providerSource ProviderSource
	var modelSource ModelSource

	switch {
	case agentProvider != "" && agentModel != "":
		apiProvider, model = agentProvider, agentModel
		providerSource, modelSource = ProviderAgentExplicit, ModelAgentExplicit
	case agentProvider != "":
		model = providerspec.DefaultModel(agentProvider)
		if model == "" {
			return Decision{}, &llm.ConfigurationError{Message: fmt.Sprintf(
				"No default model for provider '%s'. Please specify a model explicitly.", agentProvider,
			)}
		}
		apiProvider = agentProvider
		providerSource, modelSource = ProviderAgentExplicit, ModelDefaultAlias
	case agentModel != "":
		inferred, err := client.InferProviderFromModel(agentModel)
		if err != nil {
			return Decision{}, err
		}
		if inferred == "" {
			return Decision{}, &llm.ConfigurationError{Message: fmt.Sprintf(
				"Cannot infer provider for model '%s'. Please specify the provider explicitly.", agentModel,
			)}
		}
		apiProvider, model = inferred, agentModel
		providerSource, modelSource = ProviderInferredFromModel, ModelAgentExplicit
	default:
		if selected := client.SelectProvider(); selected != "" {
			model = providerspec.DefaultModel(selected)
			if model == "" {
				return Decision{}, &llm.ConfigurationError{Message: fmt.Sprintf(
					"No default model for provider '%s'. Please specify a model explicitly.", selected,
				)}
			}
			apiProvider = selected
			providerSource, modelSource = ProviderDefaultConfig, ModelDefaultAlias
		} else {
			// No API providers: fall back to the first CLI tool on PATH.
			cliProvider := detectCLIProvider()
			if cliProvider == "" {
				return Decision{}, &llm.ConfigurationError{Message: "No API providers configured and no supported CLI tool found on PATH.\n" +
					"Install one of: claude, codex, gemini — or set an API key (e.g. ANTHROPIC_API_KEY, OPENAI_API_KEY)."}
			}
			return Decision{
				Route:          SessionRoute{Backend: "CLI", Provider: cliProvider},
				ProviderSource: ProviderCliDefault,
				ModelSource:    ModelCliDefault,
			}, nil
		}
	}

	aliasResolution := resolveAliasPreview(client, model)

	// 3. API auth available
	if client.HasProvider(apiProvider) {
		return Decision{
			Route:           SessionRoute{Backend: "API", Provider: providerspec.CanonicalProviderKey(apiProvider), Model: model},
			ProviderSource:  providerSource,
			ModelSource:     modelSource,
			AliasResolution: aliasResolution,
		}, nil
	}

	// 4. No auth: mapped CLI fallback
	if cli := providerspec.APIToCLI(apiProvider); cli != "" {
		envHint := providerspec.APIKeyEnvHint(apiProvider)
		return Decision{
			Route:           SessionRoute{Backend: "CLI", Provider: cli, Model: model},
			ProviderSource:  providerSource,
			ModelSource:     modelSource,
			AliasResolution: aliasResolution,
			FallbackUsed:    true,
			FallbackReason:  fmt.Sprintf("No API key for %s (set %s)", apiProvider, envHint),
		}, nil
	}

	// 5. No mapping
	return Decision{}, &llm.ConfigurationError{Message: fmt.Sprintf(
		"Provider '%s' is not configured. Set the appropriate API key (e.g. %s).",
		apiProvider, providerspec.APIKeyEnvHint(apiProvider),
	)}
}

// resolveAliasPreview previews alias resolution without mutating any
// request; the client still rewrites request.model at dispatch.
func resolveAliasPreview(client *llm.Client, model string) *[2]string {
	if model == "" {
		return nil
	}
	if alias, concrete, ok := client.Catalog().ResolveAlias(model); ok {
		return &[2]string{alias, concrete}
	}
	return nil
}

// lookPath is swapped out in tests.
var lookPath = exec.LookPath

// detectCLIProvider probes PATH for supported coding-agent CLIs in
// preference order, returning the matching *-cli provider name.
func detectCLIProvider() string {
	for _, pair := range providerspec.CLIBinaries() {
		if _, err := lookPath(pair[1]); err == nil {
			return pair[0]
		}
	}
	return ""
}
