package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/stencila/stencila/internal/providerspec"
)

// ProviderAdapter is the capability set a model provider implements.
type ProviderAdapter interface {
	Name() string
	Complete(ctx context.Context, req Request) (Response, error)
	Stream(ctx context.Context, req Request) (Stream, error)
}

// ProviderCloser is implemented by adapters that hold resources needing
// explicit release.
type ProviderCloser interface {
	Close() error
}

// Client routes requests to registered provider adapters through an
// ordered middleware chain.
type Client struct {
	providers       map[string]ProviderAdapter
	order           []string
	defaultProvider string
	configured      []string
	middleware      []Middleware
	catalog         *ModelCatalog
}

func NewClient() *Client {
	return &Client{providers: map[string]ProviderAdapter{}, catalog: DefaultCatalog()}
}

// Register adds an adapter; the first registered adapter becomes the
// default provider.
func (c *Client) Register(adapter ProviderAdapter) {
	if c.providers == nil {
		c.providers = map[string]ProviderAdapter{}
	}
	name := adapter.Name()
	if _, exists := c.providers[name]; !exists {
		c.order = append(c.order, name)
	}
	c.providers[name] = adapter
	if c.defaultProvider == "" {
		c.defaultProvider = name
	}
}

func (c *Client) SetDefaultProvider(name string) {
	c.defaultProvider = name
}

// SetConfiguredProviders records the models.providers config gate: when
// non-empty, SelectProvider prefers providers in this order.
func (c *Client) SetConfiguredProviders(names []string) {
	c.configured = providerspec.CanonicalizeProviderList(names)
}

// SetCatalog overrides the model catalog used for alias resolution and
// provider inference.
func (c *Client) SetCatalog(catalog *ModelCatalog) {
	if catalog != nil {
		c.catalog = catalog
	}
}

func (c *Client) Catalog() *ModelCatalog {
	if c == nil || c.catalog == nil {
		return DefaultCatalog()
	}
	return c.catalog
}

// ProviderNames returns registered provider names in registration order.
func (c *Client) ProviderNames() []string {
	if c == nil || len(c.providers) == 0 {
		return nil
	}
	return append([]string(nil), c.order...)
}

// HasProvider reports whether a provider with the given name (or alias)
// is registered.
func (c *Client) HasProvider(name string) bool {
	if c == nil {
		return false
	}
	_, ok := c.providers[normalizeProviderName(name)]
	return ok
}

// SelectProvider picks the provider used when a request names none:
// the first configured provider that is registered, else the default.
func (c *Client) SelectProvider() string {
	if c == nil {
		return ""
	}
	for _, name := range c.configured {
		if _, ok := c.providers[name]; ok {
			return name
		}
	}
	return c.defaultProvider
}

// InferProviderFromModel infers a provider from a model id or alias via
// the catalog. Returns "" when the model is unknown; returns a
// ConfigurationError when the model is ambiguous across providers and
// the registered providers do not narrow it to one.
func (c *Client) InferProviderFromModel(model string) (string, error) {
	matches := c.Catalog().ProvidersForModel(model)
	if len(matches) == 0 {
		return "", nil
	}
	if len(matches) == 1 {
		return matches[0], nil
	}
	var configured []string
	for _, name := range matches {
		if c.HasProvider(name) {
			configured = append(configured, name)
		}
	}
	if len(configured) == 1 {
		return configured[0], nil
	}
	return "", &ConfigurationError{
		Message: fmt.Sprintf("model '%s' is ambiguous across providers; specify request.provider", model),
	}
}

// resolveModel rewrites a catalog alias to its concrete model id so the
// adapter sends the canonical value upstream.
func (c *Client) resolveModel(req *Request) {
	if _, concrete, ok := c.Catalog().ResolveAlias(req.Model); ok {
		req.Model = concrete
	}
}

// resolveProvider resolves the adapter for a request: explicit provider,
// else inferred from the model, else the selected default.
func (c *Client) resolveProvider(req Request) (ProviderAdapter, string, error) {
	prov := strings.TrimSpace(req.Provider)
	if prov == "" {
		inferred, err := c.InferProviderFromModel(req.Model)
		if err != nil {
			return nil, "", err
		}
		prov = inferred
	}
	if prov == "" {
		prov = c.SelectProvider()
	}
	if prov == "" {
		return nil, "", &ConfigurationError{Message: "no provider specified and no default provider configured"}
	}
	prov = normalizeProviderName(prov)
	adapter, ok := c.providers[prov]
	if !ok {
		return nil, "", &ConfigurationError{Message: fmt.Sprintf("unknown provider: %s", prov)}
	}
	return adapter, prov, nil
}

func (c *Client) Complete(ctx context.Context, req Request) (Response, error) {
	if err := req.Validate(); err != nil {
		return Response{}, err
	}
	adapter, prov, err := c.resolveProvider(req)
	if err != nil {
		return Response{}, err
	}
	req.Provider = prov
	c.resolveModel(&req)

	base := func(ctx context.Context, req Request) (Response, error) {
		return adapter.Complete(ctx, req)
	}
	handler := applyMiddlewareComplete(base, c.middleware)
	return handler(ctx, req)
}

func (c *Client) Stream(ctx context.Context, req Request) (Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	adapter, prov, err := c.resolveProvider(req)
	if err != nil {
		return nil, err
	}
	req.Provider = prov
	c.resolveModel(&req)

	base := func(ctx context.Context, req Request) (Stream, error) {
		return adapter.Stream(ctx, req)
	}
	handler := applyMiddlewareStream(base, c.middleware)
	return handler(ctx, req)
}

// Use appends middleware to the client. Middleware is applied in
// registration order for the request phase and in reverse order for the
// response/event phases.
func (c *Client) Use(mw ...Middleware) {
	if c == nil {
		return
	}
	c.middleware = append(c.middleware, mw...)
}

// Close closes every registered provider. The first error is remembered;
// the remaining providers are still closed.
func (c *Client) Close() error {
	var first error
	for _, name := range c.order {
		if closer, ok := c.providers[name].(ProviderCloser); ok {
			if err := closer.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

func normalizeProviderName(name string) string {
	return providerspec.CanonicalProviderKey(name)
}
