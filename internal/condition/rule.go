package condition

import (
	"fmt"
	"strings"

	"polytrader/internal/model"
)

// Match combines the predicates of a rule.
type Match uint8

const (
	MatchAny Match = iota
	MatchAll
)

func ParseMatch(str string) (Match, error) {
	switch strings.ToLower(str) {
	case "", "any":
		return MatchAny, nil
	case "all":
		return MatchAll, nil
	}
	return MatchAny, fmt.Errorf("unknown match mode %q", str)
}

// Rule is a named composition of predicates. An empty rule never matches.
type Rule struct {
	Name       string
	Match      Match
	Predicates []Predicate
}

func (r Rule) Evaluate(tick model.Tick, history *History) bool {
	if len(r.Predicates) == 0 {
		return false
	}

	for _, p := range r.Predicates {
		ok := p.Match(tick, history)
		if r.Match == MatchAny && ok {
			return true
		}
		if r.Match == MatchAll && !ok {
			return false
		}
	}
	return r.Match == MatchAll
}

func (r Rule) String() string {
	parts := make([]string, 0, len(r.Predicates))
	for _, p := range r.Predicates {
		parts = append(parts, p.String())
	}
	sep := " OR "
	if r.Match == MatchAll {
		sep = " AND "
	}
	return strings.Join(parts, sep)
}
