package recorder

import (
	"context"
	"time"

	"github.com/yanun0323/logs"

	"polytrader/internal/codec"
	"polytrader/internal/model"
	"polytrader/internal/obs"
	"polytrader/internal/schema"
	"polytrader/pkg/exception"
)

// Log records ticks and fills into the WAL stamped by a shared sequencer.
type Log struct {
	w      *Writer
	source uint16
	seq    *obs.Sequencer
}

// NewLog wraps a writer. A nil sequencer starts a fresh sequence.
func NewLog(w *Writer, source uint16, seq *obs.Sequencer) *Log {
	if seq == nil {
		seq = obs.NewSequencer(0)
	}
	return &Log{w: w, source: source, seq: seq}
}

// Seq returns the last assigned sequence number.
func (l *Log) Seq() uint64 {
	return l.seq.Last()
}

// AppendTick records a tick.
func (l *Log) AppendTick(t model.Tick) error {
	return l.append(schema.EventTick, t.Timestamp, codec.EncodeTick(nil, t))
}

// AppendFill records an executed fill.
func (l *Log) AppendFill(f model.Fill) error {
	return l.append(schema.EventFill, f.Timestamp, codec.EncodeFill(nil, f))
}

func (l *Log) Name() string {
	return "recorder"
}

// ObserveTick records a tick published on the hub.
func (l *Log) ObserveTick(_ context.Context, t model.Tick) error {
	return l.AppendTick(t)
}

// OnFill records a fill reported by the engine. A full queue drops the
// record; recovery then relies on the last snapshot.
func (l *Log) OnFill(f model.Fill) {
	if err := l.AppendFill(f); err != nil {
		logs.Errorf("record fill %s, err: %+v", f.OrderID, err)
	}
}

func (l *Log) OnTrade(model.Trade) {}

func (l *Log) append(typ schema.EventType, ts time.Time, payload []byte) error {
	header := schema.NewHeader(typ, l.source, l.seq.Next(), ts.UnixNano(), time.Now().UnixNano())
	return l.w.TryAppend(header, payload)
}

// LoadTicks reads the recorded ticks of one instrument between from and to,
// in recorded order. An empty instrument loads every instrument.
func LoadTicks(ctx context.Context, dir, instrumentID string, from, to time.Time) ([]model.Tick, error) {
	pb, err := NewPlayback(PlaybackConfig{
		Dir:   dir,
		From:  from,
		To:    to,
		Types: []schema.EventType{schema.EventTick},
	})
	if err != nil {
		return nil, err
	}

	var ticks []model.Tick
	err = pb.Run(ctx, func(_ schema.EventHeader, payload []byte) error {
		t, ok := codec.DecodeTick(payload)
		if !ok {
			return exception.ErrMalformedTick
		}
		if instrumentID == "" || t.InstrumentID == instrumentID {
			ticks = append(ticks, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ticks, nil
}
