package condition

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polytrader/internal/model"
)

var base = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

func tickAt(price string, offset time.Duration) model.Tick {
	return model.Tick{
		InstrumentID: "token-a",
		Price:        decimal.RequireFromString(price),
		Volume:       decimal.NewFromInt(10),
		Timestamp:    base.Add(offset),
	}
}

func TestHistoryEvictsOldest(t *testing.T) {
	h := NewHistory(3)
	for i, p := range []string{"0.1", "0.2", "0.3", "0.4", "0.5"} {
		h.Push(tickAt(p, time.Duration(i)*time.Second))
	}

	require.Equal(t, 3, h.Len())
	oldest, ok := h.Oldest()
	require.True(t, ok)
	assert.Equal(t, "0.3", oldest.Price.String())
	latest, _ := h.Latest()
	assert.Equal(t, "0.5", latest.Price.String())

	snap := h.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "0.4", snap[1].Price.String())
}

func TestEmptyHistory(t *testing.T) {
	var h *History
	_, ok := h.Oldest()
	assert.False(t, ok)
	assert.Equal(t, 0, h.Len())
}

func TestPricePredicates(t *testing.T) {
	tick := tickAt("0.25", 0)
	assert.True(t, PriceBelow(decimal.RequireFromString("0.30")).Match(tick, nil))
	assert.False(t, PriceBelow(decimal.RequireFromString("0.25")).Match(tick, nil))
	assert.True(t, PriceAbove(decimal.RequireFromString("0.20")).Match(tick, nil))
	assert.False(t, PriceAbove(decimal.RequireFromString("0.25")).Match(tick, nil))
	assert.True(t, VolumeAbove(decimal.NewFromInt(5)).Match(tick, nil))
	assert.False(t, VolumeAbove(decimal.NewFromInt(10)).Match(tick, nil))
}

func TestChangePercentOver(t *testing.T) {
	h := NewHistory(10)
	h.Push(tickAt("0.40", 0))
	h.Push(tickAt("0.42", 2*time.Minute))

	rise := ChangePercentOver(5*time.Minute, decimal.NewFromInt(10))
	fall := ChangePercentOver(5*time.Minute, decimal.NewFromInt(-10))

	testCases := []struct {
		desc     string
		tick     model.Tick
		wantRise bool
		wantFall bool
	}{
		{desc: "not enough history", tick: tickAt("0.50", 4*time.Minute)},
		{desc: "rise over threshold", tick: tickAt("0.44", 5*time.Minute), wantRise: true},
		{desc: "small move", tick: tickAt("0.41", 6*time.Minute)},
		{desc: "fall over threshold", tick: tickAt("0.36", 7*time.Minute), wantFall: true},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.wantRise, rise.Match(tc.tick, h))
			assert.Equal(t, tc.wantFall, fall.Match(tc.tick, h))
		})
	}

	assert.False(t, rise.Match(tickAt("0.9", time.Hour), NewHistory(4)))
}

func TestChangePercentOverUsesWindowStart(t *testing.T) {
	h := NewHistory(10)
	h.Push(tickAt("0.20", 0))
	h.Push(tickAt("0.40", 10*time.Minute))
	h.Push(tickAt("0.41", 12*time.Minute))

	rise := ChangePercentOver(5*time.Minute, decimal.NewFromInt(10))
	assert.False(t, rise.Match(tickAt("0.42", 16*time.Minute), h), "compares with the 10m sample, not the first one")
	assert.True(t, rise.Match(tickAt("0.45", 16*time.Minute), h))

	ref, ok := h.AtOrBefore(base.Add(11 * time.Minute))
	require.True(t, ok)
	assert.Equal(t, "0.4", ref.Price.String())
	_, ok = h.AtOrBefore(base.Add(-time.Second))
	assert.False(t, ok)
}

func TestRuleMatchModes(t *testing.T) {
	below := PriceBelow(decimal.RequireFromString("0.30"))
	loud := VolumeAbove(decimal.NewFromInt(100))

	anyRule := Rule{Name: "any", Match: MatchAny, Predicates: []Predicate{below, loud}}
	allRule := Rule{Name: "all", Match: MatchAll, Predicates: []Predicate{below, loud}}

	quiet := tickAt("0.20", 0)
	assert.True(t, anyRule.Evaluate(quiet, nil))
	assert.False(t, allRule.Evaluate(quiet, nil))

	busy := quiet
	busy.Volume = decimal.NewFromInt(500)
	assert.True(t, allRule.Evaluate(busy, nil))

	assert.False(t, Rule{Match: MatchAll}.Evaluate(busy, nil))
	assert.Equal(t, "price < 0.3 AND volume > 100", allRule.String())
}

func TestParseMatch(t *testing.T) {
	m, err := ParseMatch("ALL")
	require.NoError(t, err)
	assert.Equal(t, MatchAll, m)

	_, err = ParseMatch("some")
	assert.Error(t, err)
}
