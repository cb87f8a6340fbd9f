package compose

import (
	"trade-routerv1/config"
	"trade-routerv1/internal/model"
)

// ConfigAccountMapper resolves strategy tags to account aliases from the
// strategies block, with a "*" wildcard fallback.
type ConfigAccountMapper struct {
	byTag map[string][]string
}

// NewConfigAccountMapper builds the mapper from configuration.
func NewConfigAccountMapper(cfg config.StrategiesConfig) *ConfigAccountMapper {
	return &ConfigAccountMapper{byTag: cfg.Accounts}
}

// AccountAliasesForStrategy returns the mapped aliases, the wildcard aliases,
// or nil.
func (m *ConfigAccountMapper) AccountAliasesForStrategy(strategy string) []string {
	if aliases, ok := m.byTag[strategy]; ok {
		return aliases
	}
	return m.byTag["*"]
}

// ConfigAccountRegistry maps a settlement currency to the single account
// trading it, for the one-account-per-currency deployment.
type ConfigAccountRegistry struct {
	byCurrency map[model.Currency]string
}

// NewConfigAccountRegistry builds the registry from configuration.
func NewConfigAccountRegistry(cfg config.AccountsConfig) *ConfigAccountRegistry {
	byCurrency := make(map[model.Currency]string, len(cfg.Currencies))
	for c, alias := range cfg.Currencies {
		byCurrency[model.Currency(c)] = alias
	}
	return &ConfigAccountRegistry{byCurrency: byCurrency}
}

// AccountAliasForCurrency returns "" when no mapping exists.
func (r *ConfigAccountRegistry) AccountAliasForCurrency(c model.Currency) string {
	return r.byCurrency[c]
}
