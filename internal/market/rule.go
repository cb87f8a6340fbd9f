// Package market implements the per-exchange trading-hours and currency
// policy engine. Each Rule answers for a set of exchange codes and decides,
// for a UTC instant, whether that market is open and which currency it
// settles in. No holiday calendar is consulted; weekends only.
package market

import (
	"fmt"
	"strings"
	"time"

	"trade-routerv1/config"
	"trade-routerv1/internal/model"
)

// Rule is the market policy contract.
type Rule interface {
	// CanHandle reports whether this rule answers for the exchange code
	// (case-insensitive).
	CanHandle(exchange string) bool

	// IsMarketOpen reports whether the market trades at the given UTC instant.
	IsMarketOpen(ts time.Time) bool

	// Currency is the market's settlement currency.
	Currency() model.Currency
}

// FirstMatch returns the first rule handling the exchange, or nil.
func FirstMatch(rules []Rule, exchange string) Rule {
	for _, r := range rules {
		if r.CanHandle(exchange) {
			return r
		}
	}
	return nil
}

// sessionShape selects how the trading-hours windows are interpreted.
type sessionShape int

const (
	shapeSimple    sessionShape = iota // single window, inclusive at both ends
	shapeUS                            // regular + optional pre-market, exclusive at close
	shapeTwoSession                    // morning + afternoon, inclusive at both ends
)

// minuteOfDay is minutes since local midnight.
type minuteOfDay int

// ConfigurableRule is a Rule built from one config.MarketConfig block.
// Read-only after construction and therefore safe for concurrent use.
type ConfigurableRule struct {
	name      string
	exchanges map[string]struct{} // upper-cased codes
	loc       *time.Location
	currency  model.Currency
	shape     sessionShape

	// shapeSimple
	open, close_ minuteOfDay

	// shapeUS
	regOpen, regClose minuteOfDay
	preOpen           minuteOfDay
	allowPreMarket    bool

	// shapeTwoSession
	amOpen, amClose minuteOfDay
	pmOpen, pmClose minuteOfDay
}

// UTC-offset fallbacks for runtimes without a timezone database. The handful
// of supported zones and their C#-era aliases.
var fixedZoneOffsets = map[string]int{
	"Asia/Seoul":            9 * 3600,
	"Korea Standard Time":   9 * 3600,
	"America/New_York":      -5 * 3600,
	"Eastern Standard Time": -5 * 3600,
	"Asia/Shanghai":         8 * 3600,
	"Asia/Hong_Kong":        8 * 3600,
	"China Standard Time":   8 * 3600,
	"Asia/Tokyo":            9 * 3600,
	"Tokyo Standard Time":   9 * 3600,
	"Asia/Ho_Chi_Minh":      7 * 3600,
	"SE Asia Standard Time": 7 * 3600,
}

// NewRule validates the market block and builds its rule. All configuration
// errors are fatal here, at construction, never at signal time.
func NewRule(mc config.MarketConfig) (*ConfigurableRule, error) {
	if len(mc.Exchanges) == 0 {
		return nil, fmt.Errorf("market %q: exchange list is missing", mc.Name)
	}
	if mc.Timezone == "" {
		return nil, fmt.Errorf("market %q: timezone is missing", mc.Name)
	}

	loc, err := loadLocation(mc.Timezone)
	if err != nil {
		return nil, fmt.Errorf("market %q: %w", mc.Name, err)
	}

	r := &ConfigurableRule{
		name:      mc.Name,
		exchanges: make(map[string]struct{}, len(mc.Exchanges)),
		loc:       loc,
		currency:  model.Currency(mc.Currency),
	}
	for _, ex := range mc.Exchanges {
		r.exchanges[strings.ToUpper(ex)] = struct{}{}
	}

	if err := r.parseHours(mc.Hours); err != nil {
		return nil, fmt.Errorf("market %q: %w", mc.Name, err)
	}
	return r, nil
}

// loadLocation resolves an IANA zone, falling back to a fixed UTC offset for
// the supported zones when the runtime has no tz database.
func loadLocation(name string) (*time.Location, error) {
	if loc, err := time.LoadLocation(name); err == nil {
		return loc, nil
	}
	if off, ok := fixedZoneOffsets[name]; ok {
		return time.FixedZone(name, off), nil
	}
	return nil, fmt.Errorf("unknown timezone %q", name)
}

// parseHours detects the session shape from which fields are present,
// mirroring the three supported market styles.
func (r *ConfigurableRule) parseHours(h config.HoursConfig) error {
	switch {
	case h.Open != "" && h.Close != "":
		r.shape = shapeSimple
		var err error
		if r.open, err = parseClock(h.Open); err != nil {
			return err
		}
		if r.close_, err = parseClock(h.Close); err != nil {
			return err
		}
		return nil

	case h.RegularOpen != "" && h.RegularClose != "":
		r.shape = shapeUS
		var err error
		if r.regOpen, err = parseClock(h.RegularOpen); err != nil {
			return err
		}
		if r.regClose, err = parseClock(h.RegularClose); err != nil {
			return err
		}
		r.allowPreMarket = h.AllowPreMarket
		if h.PreMarketOpen != "" {
			if r.preOpen, err = parseClock(h.PreMarketOpen); err != nil {
				return err
			}
		} else if h.AllowPreMarket {
			return fmt.Errorf("allow_pre_market set without pre_market_open")
		}
		return nil

	case h.MorningOpen != "" && h.AfternoonClose != "":
		r.shape = shapeTwoSession
		var err error
		if r.amOpen, err = parseClock(h.MorningOpen); err != nil {
			return err
		}
		if r.amClose, err = parseClock(h.MorningClose); err != nil {
			return err
		}
		if r.pmOpen, err = parseClock(h.AfternoonOpen); err != nil {
			return err
		}
		if r.pmClose, err = parseClock(h.AfternoonClose); err != nil {
			return err
		}
		return nil
	}
	return fmt.Errorf("unrecognized trading-hours block")
}

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(s string) (minuteOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("malformed time %q (want HH:MM)", s)
	}
	return minuteOfDay(t.Hour()*60 + t.Minute()), nil
}

// Name returns the market's configured name.
func (r *ConfigurableRule) Name() string { return r.name }

// CanHandle reports whether exchange belongs to this market.
func (r *ConfigurableRule) CanHandle(exchange string) bool {
	_, ok := r.exchanges[strings.ToUpper(exchange)]
	return ok
}

// Currency is the market's settlement currency.
func (r *ConfigurableRule) Currency() model.Currency { return r.currency }

// IsMarketOpen converts ts to market-local time, rejects weekends, then
// tests the configured window(s). Boundary behavior is deliberately
// asymmetric: simple and two-session markets are inclusive at close, the
// US shape is exclusive at close (and at the pre-market upper bound).
func (r *ConfigurableRule) IsMarketOpen(ts time.Time) bool {
	local := ts.In(r.loc)
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	now := minuteOfDay(local.Hour()*60 + local.Minute())

	switch r.shape {
	case shapeTwoSession:
		morning := now >= r.amOpen && now <= r.amClose
		afternoon := now >= r.pmOpen && now <= r.pmClose
		return morning || afternoon

	case shapeUS:
		if now >= r.regOpen && now < r.regClose {
			return true
		}
		if r.allowPreMarket && now >= r.preOpen && now < r.regOpen {
			return true
		}
		return false

	default: // shapeSimple
		return now >= r.open && now <= r.close_
	}
}

// RulesFromConfig builds every configured market rule, failing on the first
// invalid block.
func RulesFromConfig(markets []config.MarketConfig) ([]Rule, error) {
	rules := make([]Rule, 0, len(markets))
	for _, mc := range markets {
		r, err := NewRule(mc)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}
