package llm

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ephram/relay/internal/config"
	"github.com/ephram/relay/pkg/api"
)

// Factory constructs a provider for one backend type. Field-level validation
// (missing api_key, bad url) belongs to the constructor, not the dispatch.
type Factory func(name string, cfg config.BackendConfig) (Provider, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register adds a backend type to the registry. Provider packages call it
// from init(); registering the same type twice is a programming error.
func Register(backendType string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := factories[backendType]; exists {
		panic(fmt.Sprintf("backend factory %s already registered", backendType))
	}
	factories[backendType] = f
}

// Types returns the registered backend type names, sorted.
func Types() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for t := range factories {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

type ProviderFactory struct{}

func NewProviderFactory() *ProviderFactory {
	return &ProviderFactory{}
}

// Create dispatches cfg.Type to its registered constructor. This is the
// single extension point: a new backend family needs one Register call and
// one provider package, nothing else changes.
func (f *ProviderFactory) Create(name string, cfg config.BackendConfig) (Provider, error) {
	if cfg.Type == "" {
		return nil, api.ConfigError(fmt.Sprintf("backend %q is missing required field \"type\"", name))
	}

	mu.RLock()
	factoryFunc, ok := factories[cfg.Type]
	mu.RUnlock()
	if !ok {
		return nil, api.ConfigError(fmt.Sprintf("unsupported backend type %q (supported: %s)",
			cfg.Type, strings.Join(Types(), ", ")))
	}

	return factoryFunc(name, cfg)
}
