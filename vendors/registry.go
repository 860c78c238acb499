package vendors

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a Client for one provider from shared Settings.
type Factory func(settings Settings) (*Client, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register installs a provider factory. Adapter packages call this
// from init; a duplicate name is a programmer error.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[name]; ok {
		panic(fmt.Sprintf("vendor %q registered twice", name))
	}
	registry[name] = factory
}

// New builds the Client registered under the provider name.
func New(name string, settings Settings) (*Client, error) {
	registryMu.RLock()
	var factory, ok = registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (have %v)", name, Registered())
	}
	return factory(settings)
}

// Registered lists the installed provider names, sorted.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	var names = make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
