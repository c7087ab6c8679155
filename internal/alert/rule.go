package alert

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"polytrader/internal/condition"
)

// RuleSpec is the configured form of an alert rule. Empty thresholds are
// unused; at least one must be set.
type RuleSpec struct {
	Name          string        `yaml:"name"`
	Instruments   []string      `yaml:"instruments"`
	Match         string        `yaml:"match"`
	PriceBelow    string        `yaml:"price_below"`
	PriceAbove    string        `yaml:"price_above"`
	VolumeAbove   string        `yaml:"volume_above"`
	ChangePercent string        `yaml:"change_percent"`
	ChangeWindow  time.Duration `yaml:"change_window"`
	Cooldown      time.Duration `yaml:"cooldown"`
}

// Rule is a built alert rule.
type Rule struct {
	condition.Rule
	Instruments map[string]struct{}
	Cooldown    time.Duration
}

// Applies reports whether the rule watches an instrument. A rule without
// instruments watches all of them.
func (r Rule) Applies(instrumentID string) bool {
	if len(r.Instruments) == 0 {
		return true
	}
	_, ok := r.Instruments[instrumentID]
	return ok
}

// Build validates the spec and composes its predicates.
func (s RuleSpec) Build() (Rule, error) {
	if s.Name == "" {
		return Rule{}, fmt.Errorf("alert rule without name")
	}
	match, err := condition.ParseMatch(s.Match)
	if err != nil {
		return Rule{}, fmt.Errorf("alert rule %s: %w", s.Name, err)
	}
	if s.Cooldown < 0 {
		return Rule{}, fmt.Errorf("alert rule %s: negative cooldown", s.Name)
	}

	rule := Rule{
		Rule:     condition.Rule{Name: s.Name, Match: match},
		Cooldown: s.Cooldown,
	}

	for _, p := range []struct {
		raw  string
		make func(decimal.Decimal) condition.Predicate
	}{
		{s.PriceBelow, condition.PriceBelow},
		{s.PriceAbove, condition.PriceAbove},
		{s.VolumeAbove, condition.VolumeAbove},
	} {
		if p.raw == "" {
			continue
		}
		v, err := decimal.NewFromString(p.raw)
		if err != nil {
			return Rule{}, fmt.Errorf("alert rule %s: %w", s.Name, err)
		}
		rule.Predicates = append(rule.Predicates, p.make(v))
	}

	if s.ChangePercent != "" {
		pct, err := decimal.NewFromString(s.ChangePercent)
		if err != nil {
			return Rule{}, fmt.Errorf("alert rule %s: %w", s.Name, err)
		}
		if s.ChangeWindow <= 0 {
			return Rule{}, fmt.Errorf("alert rule %s: change_percent needs change_window", s.Name)
		}
		rule.Predicates = append(rule.Predicates, condition.ChangePercentOver(s.ChangeWindow, pct))
	}

	if len(rule.Predicates) == 0 {
		return Rule{}, fmt.Errorf("alert rule %s: no condition", s.Name)
	}

	if len(s.Instruments) > 0 {
		rule.Instruments = make(map[string]struct{}, len(s.Instruments))
		for _, id := range s.Instruments {
			rule.Instruments[id] = struct{}{}
		}
	}
	return rule, nil
}

// BuildRules builds every spec, failing on the first invalid one.
func BuildRules(specs []RuleSpec) ([]Rule, error) {
	rules := make([]Rule, 0, len(specs))
	seen := make(map[string]struct{}, len(specs))
	for _, s := range specs {
		if _, dup := seen[s.Name]; dup {
			return nil, fmt.Errorf("duplicate alert rule %s", s.Name)
		}
		seen[s.Name] = struct{}{}
		r, err := s.Build()
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}
