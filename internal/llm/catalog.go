package llm

import (
	"strings"
	"sync"
)

// ModelInfo is the normalized model metadata entry for the built-in
// catalog. Aliases resolve to the concrete ID before dispatch.
type ModelInfo struct {
	ID                string   `json:"id"`
	Provider          string   `json:"provider"`
	DisplayName       string   `json:"display_name"`
	ContextWindow     int      `json:"context_window"`
	SupportsTools     bool     `json:"supports_tools"`
	SupportsReasoning bool     `json:"supports_reasoning"`
	Aliases           []string `json:"aliases,omitempty"`
}

// builtinModels is the snapshot catalog used for alias resolution and
// provider inference when no refreshed catalog is available.
var builtinModels = []ModelInfo{
	{
		ID: "gpt-5.2", Provider: "openai", DisplayName: "GPT 5.2",
		ContextWindow: 400_000, SupportsTools: true, SupportsReasoning: true,
		Aliases: []string{"gpt-5", "gpt"},
	},
	{
		ID: "gpt-5.2-mini", Provider: "openai", DisplayName: "GPT 5.2 Mini",
		ContextWindow: 400_000, SupportsTools: true,
		Aliases: []string{"gpt-mini"},
	},
	{
		ID: "claude-sonnet-4-5", Provider: "anthropic", DisplayName: "Claude Sonnet 4.5",
		ContextWindow: 200_000, SupportsTools: true, SupportsReasoning: true,
		Aliases: []string{"claude-sonnet-4", "sonnet", "claude"},
	},
	{
		ID: "claude-haiku-4-5", Provider: "anthropic", DisplayName: "Claude Haiku 4.5",
		ContextWindow: 200_000, SupportsTools: true,
		Aliases: []string{"haiku"},
	},
	{
		ID: "gemini-2.5-pro", Provider: "gemini", DisplayName: "Gemini 2.5 Pro",
		ContextWindow: 1_000_000, SupportsTools: true, SupportsReasoning: true,
		Aliases: []string{"gemini-pro", "gemini"},
	},
	{
		ID: "gemini-2.5-flash", Provider: "gemini", DisplayName: "Gemini 2.5 Flash",
		ContextWindow: 1_000_000, SupportsTools: true,
		Aliases: []string{"flash"},
	},
	{
		ID: "mistral-large-latest", Provider: "mistral", DisplayName: "Mistral Large",
		ContextWindow: 128_000, SupportsTools: true,
		Aliases: []string{"mistral-large"},
	},
	{
		ID: "deepseek-chat", Provider: "deepseek", DisplayName: "DeepSeek Chat",
		ContextWindow: 128_000, SupportsTools: true,
	},
}

// ModelCatalog resolves model ids and aliases to metadata.
type ModelCatalog struct {
	mu     sync.RWMutex
	models []ModelInfo
	byName map[string]int
}

// NewModelCatalog builds a catalog over the given entries.
func NewModelCatalog(models []ModelInfo) *ModelCatalog {
	c := &ModelCatalog{models: append([]ModelInfo(nil), models...)}
	c.buildIndex()
	return c
}

var (
	defaultCatalogOnce sync.Once
	defaultCatalog     *ModelCatalog
)

// DefaultCatalog returns the process-wide built-in catalog.
func DefaultCatalog() *ModelCatalog {
	defaultCatalogOnce.Do(func() {
		defaultCatalog = NewModelCatalog(builtinModels)
	})
	return defaultCatalog
}

func (c *ModelCatalog) buildIndex() {
	by := make(map[string]int, len(c.models))
	for i, m := range c.models {
		if _, exists := by[m.ID]; !exists {
			by[m.ID] = i
		}
		for _, alias := range m.Aliases {
			if _, exists := by[alias]; !exists {
				by[alias] = i
			}
		}
	}
	c.byName = by
}

// GetModelInfo looks up a model by concrete id or alias. Returns nil when
// unknown.
func (c *ModelCatalog) GetModelInfo(model string) *ModelInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i, ok := c.byName[strings.TrimSpace(model)]; ok {
		out := c.models[i]
		return &out
	}
	return nil
}

// ResolveAlias returns (alias, concreteID) when model is an alias that
// maps to a different concrete catalog id, otherwise ok=false.
func (c *ModelCatalog) ResolveAlias(model string) (string, string, bool) {
	info := c.GetModelInfo(model)
	if info == nil || info.ID == model {
		return "", "", false
	}
	return model, info.ID, true
}

// ProvidersForModel returns the distinct providers whose catalog entries
// match the model id or alias.
func (c *ModelCatalog) ProvidersForModel(model string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	model = strings.TrimSpace(model)
	var out []string
	for _, m := range c.models {
		matched := m.ID == model
		if !matched {
			for _, alias := range m.Aliases {
				if alias == model {
					matched = true
					break
				}
			}
		}
		if matched && !containsFold(out, m.Provider) {
			out = append(out, m.Provider)
		}
	}
	return out
}

// ListModels returns the models for a provider, or all models when the
// provider is empty.
func (c *ModelCatalog) ListModels(provider string) []ModelInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p := strings.ToLower(strings.TrimSpace(provider))
	if p == "" {
		return append([]ModelInfo(nil), c.models...)
	}
	var out []ModelInfo
	for _, m := range c.models {
		if strings.ToLower(m.Provider) == p {
			out = append(out, m)
		}
	}
	return out
}

func containsFold(values []string, target string) bool {
	target = strings.ToLower(strings.TrimSpace(target))
	for _, v := range values {
		if strings.ToLower(strings.TrimSpace(v)) == target {
			return true
		}
	}
	return false
}
