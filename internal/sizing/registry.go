package sizing

import (
	"fmt"

	"trade-routerv1/config"
	"trade-routerv1/internal/model"
)

// Constructor builds a sizer instance from one policy block.
type Constructor func(p config.PolicyConfig, defaultCurrency model.Currency) Sizer

// constructors is the compile-time policy catalogue. New policy types are
// added here, not discovered at runtime.
var constructors = map[string]Constructor{
	"Basic":   func(p config.PolicyConfig, c model.Currency) Sizer { return NewBasic(p, c) },
	"OnlyOne": func(p config.PolicyConfig, c model.Currency) Sizer { return NewOnlyOne(p, c) },
}

// Registry holds the named sizer instances built from configuration.
type Registry struct {
	sizers map[string]Sizer
}

// NewRegistry instantiates every configured policy. An unknown policy type
// is a configuration error.
func NewRegistry(cfg config.SizingConfig) (*Registry, error) {
	defaultCurrency := model.Currency(cfg.DefaultCurrency)
	sizers := make(map[string]Sizer, len(cfg.Policies))
	for _, p := range cfg.Policies {
		ctor, ok := constructors[p.Type]
		if !ok {
			return nil, fmt.Errorf("sizing: unknown policy type %q for policy %q", p.Type, p.Name)
		}
		sizers[p.Name] = ctor(p, defaultCurrency)
	}
	return &Registry{sizers: sizers}, nil
}

// Get returns the named sizer, or nil.
func (r *Registry) Get(name string) Sizer {
	return r.sizers[name]
}

// PolicyMapper selects the sizing policy for a strategy tag, with a "*"
// wildcard fallback. Every mapped name is resolved against the registry at
// construction so a typo in the mapping kills the service at startup rather
// than dropping signals at runtime.
type PolicyMapper struct {
	registry *Registry
	byTag    map[string]string
}

// NewPolicyMapper validates that every mapping target exists in the registry.
func NewPolicyMapper(registry *Registry, byTag map[string]string) (*PolicyMapper, error) {
	for tag, name := range byTag {
		if registry.Get(name) == nil {
			return nil, fmt.Errorf("sizing: strategy %q maps to undefined policy %q", tag, name)
		}
	}
	return &PolicyMapper{registry: registry, byTag: byTag}, nil
}

// SizerForStrategy resolves the strategy's sizer, falling back to the "*"
// mapping. Returns nil when neither mapping exists.
func (m *PolicyMapper) SizerForStrategy(strategy string) Sizer {
	if name, ok := m.byTag[strategy]; ok {
		return m.registry.Get(name)
	}
	if name, ok := m.byTag["*"]; ok {
		return m.registry.Get(name)
	}
	return nil
}
