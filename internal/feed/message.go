package feed

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"

	"polytrader/internal/model"
	"polytrader/pkg/exception"
)

const (
	eventBook           = "book"
	eventPriceChange    = "price_change"
	eventLastTradePrice = "last_trade_price"
)

type level struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type priceChange struct {
	AssetID   string `json:"asset_id"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Side      string `json:"side"`
	BestBid   string `json:"best_bid"`
	BestAsk   string `json:"best_ask"`
	Timestamp string `json:"timestamp"`
}

// event is one market channel message. Price changes arrive either flat or
// wrapped in PriceChanges.
type event struct {
	EventType    string        `json:"event_type"`
	AssetID      string        `json:"asset_id"`
	Market       string        `json:"market"`
	Price        string        `json:"price"`
	Size         string        `json:"size"`
	Side         string        `json:"side"`
	BestBid      string        `json:"best_bid"`
	BestAsk      string        `json:"best_ask"`
	Timestamp    string        `json:"timestamp"`
	Bids         []level       `json:"bids"`
	Asks         []level       `json:"asks"`
	PriceChanges []priceChange `json:"price_changes"`
}

// Decode parses a raw market channel message, which is a single event or an
// array of events, into ticks. Events that carry no price, such as tick size
// changes, yield nothing. Invalid events are reported and skipped. now stamps
// events without a timestamp.
func Decode(raw []byte, now time.Time) ([]model.Tick, []error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("PONG")) {
		return nil, nil
	}

	var events []event
	if raw[0] == '[' {
		if err := sonic.ConfigStd.Unmarshal(raw, &events); err != nil {
			return nil, []error{fmt.Errorf("%w: %v", exception.ErrMalformedTick, err)}
		}
	} else {
		var ev event
		if err := sonic.ConfigStd.Unmarshal(raw, &ev); err != nil {
			return nil, []error{fmt.Errorf("%w: %v", exception.ErrMalformedTick, err)}
		}
		events = []event{ev}
	}
	return normalize(events, now)
}

func normalize(events []event, now time.Time) ([]model.Tick, []error) {
	var (
		ticks []model.Tick
		errs  []error
	)
	add := func(t model.Tick, err error) {
		if err == nil {
			err = Validate(t)
		}
		if err != nil {
			errs = append(errs, err)
			return
		}
		ticks = append(ticks, t)
	}

	for _, ev := range events {
		switch {
		case len(ev.PriceChanges) > 0:
			for _, pc := range ev.PriceChanges {
				if pc.Timestamp == "" {
					pc.Timestamp = ev.Timestamp
				}
				add(fromPriceChange(pc, now))
			}
		case ev.EventType == eventPriceChange || ev.EventType == eventLastTradePrice:
			add(fromPriceChange(priceChange{
				AssetID:   ev.AssetID,
				Price:     ev.Price,
				Size:      ev.Size,
				Side:      ev.Side,
				BestBid:   ev.BestBid,
				BestAsk:   ev.BestAsk,
				Timestamp: ev.Timestamp,
			}, now))
		case ev.EventType == eventBook:
			if t, ok, err := fromBook(ev, now); ok || err != nil {
				add(t, err)
			}
		}
	}
	return ticks, errs
}

func fromPriceChange(pc priceChange, now time.Time) (model.Tick, error) {
	t := model.Tick{InstrumentID: pc.AssetID}
	var err error
	if t.Timestamp, err = parseMillis(pc.Timestamp, now); err != nil {
		return t, err
	}
	if pc.Price == "" {
		return t, fmt.Errorf("%w: %s", exception.ErrMissingPrice, pc.AssetID)
	}
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{{&t.Price, pc.Price}, {&t.Volume, pc.Size}, {&t.BestBid, pc.BestBid}, {&t.BestAsk, pc.BestAsk}} {
		if *f.dst, err = parseDecimal(f.src); err != nil {
			return t, err
		}
	}
	return t, nil
}

// fromBook turns a book snapshot into a midpoint tick. Books missing a side
// carry no price and are ignored.
func fromBook(ev event, now time.Time) (model.Tick, bool, error) {
	t := model.Tick{InstrumentID: ev.AssetID}
	var err error
	if t.Timestamp, err = parseMillis(ev.Timestamp, now); err != nil {
		return t, false, err
	}
	bid, bidSize, err := bestLevel(ev.Bids, true)
	if err != nil {
		return t, false, err
	}
	ask, askSize, err := bestLevel(ev.Asks, false)
	if err != nil {
		return t, false, err
	}
	if !bid.IsPositive() || !ask.IsPositive() {
		return t, false, nil
	}
	t.BestBid, t.BestAsk = bid, ask
	t.Price = bid.Add(ask).Div(decimal.NewFromInt(2))
	t.Volume = bidSize.Add(askSize)
	return t, true, nil
}

// bestLevel returns the highest bid or the lowest ask. Level order in the
// message is not relied on.
func bestLevel(levels []level, highest bool) (decimal.Decimal, decimal.Decimal, error) {
	best, size := decimal.Zero, decimal.Zero
	for _, l := range levels {
		p, err := parseDecimal(l.Price)
		if err != nil {
			return best, size, err
		}
		if !p.IsPositive() {
			continue
		}
		if best.IsZero() || (highest && p.GreaterThan(best)) || (!highest && p.LessThan(best)) {
			best = p
			if size, err = parseDecimal(l.Size); err != nil {
				return best, size, err
			}
		}
	}
	return best, size, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", exception.ErrMalformedTick, s)
	}
	return d, nil
}

func parseMillis(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return now.UTC(), nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp %q", exception.ErrMalformedTick, s)
	}
	return time.UnixMilli(ms).UTC(), nil
}

// Validate rejects ticks the engine must never see.
func Validate(t model.Tick) error {
	switch {
	case t.InstrumentID == "":
		return exception.ErrMissingInstrument
	case t.Price.IsNegative() || t.Price.GreaterThan(decimal.NewFromInt(1)):
		return fmt.Errorf("%w: %s at %s", exception.ErrPriceOutOfRange, t.InstrumentID, t.Price)
	case t.Volume.IsNegative() || t.BestBid.IsNegative() || t.BestAsk.IsNegative():
		return fmt.Errorf("%w: negative field on %s", exception.ErrMalformedTick, t.InstrumentID)
	}
	return nil
}
