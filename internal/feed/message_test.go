package feed

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polytrader/internal/model"
	"polytrader/pkg/exception"
)

var now = time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

func TestDecodeBookSnapshot(t *testing.T) {
	raw := `[{"event_type":"book","asset_id":"tok-1","market":"0xm","timestamp":"1780000000000",
		"bids":[{"price":"0.40","size":"100"},{"price":"0.42","size":"30"}],
		"asks":[{"price":"0.47","size":"10"},{"price":"0.45","size":"20"}]},
		{"event_type":"book","asset_id":"tok-2","bids":[],"asks":[{"price":"0.6","size":"1"}]}]`

	ticks, errs := Decode([]byte(raw), now)
	require.Empty(t, errs)
	require.Len(t, ticks, 1, "one-sided book has no price")

	tick := ticks[0]
	assert.Equal(t, "tok-1", tick.InstrumentID)
	assert.Equal(t, "0.42", tick.BestBid.String())
	assert.Equal(t, "0.45", tick.BestAsk.String())
	assert.Equal(t, "0.435", tick.Price.String())
	assert.Equal(t, "50", tick.Volume.String())
	assert.Equal(t, time.UnixMilli(1780000000000).UTC(), tick.Timestamp)
}

func TestDecodePriceChanges(t *testing.T) {
	wrapped := `{"market":"0xm","timestamp":"1780000000500","price_changes":[
		{"asset_id":"tok-1","price":"0.43","size":"5","side":"BUY","best_bid":"0.43","best_ask":"0.45"},
		{"asset_id":"tok-2","price":"0.57","size":"5","side":"SELL","best_bid":"0.55","best_ask":"0.57","timestamp":"1780000000600"}]}`

	ticks, errs := Decode([]byte(wrapped), now)
	require.Empty(t, errs)
	require.Len(t, ticks, 2)
	assert.Equal(t, time.UnixMilli(1780000000500).UTC(), ticks[0].Timestamp, "inherits the wrapper timestamp")
	assert.Equal(t, time.UnixMilli(1780000000600).UTC(), ticks[1].Timestamp)
	assert.Equal(t, "0.57", ticks[1].Price.String())

	flat := `{"event_type":"last_trade_price","asset_id":"tok-3","price":"0.2","size":"12","side":"BUY"}`
	ticks, errs = Decode([]byte(flat), now)
	require.Empty(t, errs)
	require.Len(t, ticks, 1)
	assert.Equal(t, now, ticks[0].Timestamp)
	assert.Equal(t, "12", ticks[0].Volume.String())
}

func TestDecodeDropsInvalid(t *testing.T) {
	testCases := []struct {
		desc string
		raw  string
		want error
	}{
		{desc: "missing asset", raw: `{"event_type":"price_change","price":"0.5"}`, want: exception.ErrMissingInstrument},
		{desc: "missing price", raw: `{"event_type":"price_change","asset_id":"a"}`, want: exception.ErrMissingPrice},
		{desc: "price above one", raw: `{"event_type":"price_change","asset_id":"a","price":"1.2"}`, want: exception.ErrPriceOutOfRange},
		{desc: "negative price", raw: `{"event_type":"price_change","asset_id":"a","price":"-0.1"}`, want: exception.ErrPriceOutOfRange},
		{desc: "not a number", raw: `{"event_type":"price_change","asset_id":"a","price":"abc"}`, want: exception.ErrMalformedTick},
		{desc: "bad timestamp", raw: `{"event_type":"price_change","asset_id":"a","price":"0.5","timestamp":"soon"}`, want: exception.ErrMalformedTick},
		{desc: "not json", raw: `{"event_type":`, want: exception.ErrMalformedTick},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			ticks, errs := Decode([]byte(tc.raw), now)
			assert.Empty(t, ticks)
			require.Len(t, errs, 1)
			assert.ErrorIs(t, errs[0], tc.want)
		})
	}
}

func TestDecodeIgnoresControlMessages(t *testing.T) {
	for _, raw := range []string{"PONG", "", `{"event_type":"tick_size_change","old_tick_size":"0.01","new_tick_size":"0.001"}`} {
		ticks, errs := Decode([]byte(raw), now)
		assert.Empty(t, ticks)
		assert.Empty(t, errs)
	}
}

func TestValidate(t *testing.T) {
	ok := model.Tick{InstrumentID: "a", Price: decimal.NewFromInt(1)}
	assert.NoError(t, Validate(ok))

	bad := ok
	bad.Volume = decimal.NewFromInt(-1)
	assert.ErrorIs(t, Validate(bad), exception.ErrMalformedTick)

	resolved := model.Tick{InstrumentID: "a", Price: decimal.Zero}
	assert.NoError(t, Validate(resolved), "zero is a valid price")

	above := model.Tick{InstrumentID: "a", Price: decimal.RequireFromString("1.01")}
	assert.ErrorIs(t, Validate(above), exception.ErrPriceOutOfRange)
	assert.ErrorIs(t, Validate(model.Tick{Price: decimal.Zero}), exception.ErrMissingInstrument)
}
