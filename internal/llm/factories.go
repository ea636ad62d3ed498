package llm

import "sync"

// EnvAdapterFactory probes the environment for a provider's credentials.
// It returns (nil, false, nil) when the provider is not configured,
// (adapter, true, nil) when it is, and (nil, true, err) when it is
// configured but construction failed.
type EnvAdapterFactory func() (ProviderAdapter, bool, error)

var (
	envFactoriesMu sync.Mutex
	envFactories   []EnvAdapterFactory
)

// RegisterEnvAdapterFactory is called from provider package init
// functions so that importing a provider package makes it discoverable
// from the environment.
func RegisterEnvAdapterFactory(f EnvAdapterFactory) {
	envFactoriesMu.Lock()
	defer envFactoriesMu.Unlock()
	envFactories = append(envFactories, f)
}

// EnvAdapterFactories returns the registered factories in registration
// order.
func EnvAdapterFactories() []EnvAdapterFactory {
	envFactoriesMu.Lock()
	defer envFactoriesMu.Unlock()
	return append([]EnvAdapterFactory(nil), envFactories...)
}
