package state

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"

	"polytrader/internal/model"
)

// Snapshot captures the ledger at a point in time.
type Snapshot struct {
	Timestamp   int64            `json:"timestamp"`
	LastSeq     uint64           `json:"lastSeq"`
	LastEventTs int64            `json:"lastEventTs"`
	Cash        decimal.Decimal  `json:"cash"`
	InitialCash decimal.Decimal  `json:"initialCash"`
	Positions   []model.Position `json:"positions"`
}

// Snapshot builds a snapshot from current positions.
func (l *Ledger) Snapshot() Snapshot {
	return l.SnapshotWithMeta(0, 0)
}

// SnapshotWithMeta builds a snapshot with event metadata.
func (l *Ledger) SnapshotWithMeta(lastSeq uint64, lastEventTs int64) Snapshot {
	positions := l.Positions()
	for i := range positions {
		positions[i].UnrealizedPnL = decimal.Zero
	}
	return Snapshot{
		Timestamp:   time.Now().UTC().UnixNano(),
		LastSeq:     lastSeq,
		LastEventTs: lastEventTs,
		Cash:        l.Cash(),
		InitialCash: l.initialCash,
		Positions:   positions,
	}
}

// ApplySnapshot replaces the ledger content with a snapshot.
func (l *Ledger) ApplySnapshot(snapshot Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.positions)
	for _, pos := range snapshot.Positions {
		p := pos
		withCostBasis(&p)
		l.positions[p.InstrumentID] = &p
	}
	l.cash = snapshot.Cash
	if !snapshot.InitialCash.IsZero() {
		l.initialCash = snapshot.InitialCash
	}
}

// WriteSnapshot writes a snapshot to disk as JSON.
func WriteSnapshot(path string, snapshot Snapshot) error {
	data, err := sonic.ConfigStd.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadSnapshot loads a snapshot from disk.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := sonic.ConfigStd.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// CompareSnapshots checks if two snapshots hold the same positions and cash.
func CompareSnapshots(expected, actual Snapshot) error {
	if !expected.Cash.Equal(actual.Cash) {
		return fmt.Errorf("snapshot cash mismatch: expected=%s actual=%s", expected.Cash, actual.Cash)
	}
	if len(expected.Positions) != len(actual.Positions) {
		return fmt.Errorf("snapshot length mismatch: expected=%d actual=%d", len(expected.Positions), len(actual.Positions))
	}
	expectedMap := make(map[string]model.Position, len(expected.Positions))
	for _, pos := range expected.Positions {
		expectedMap[pos.InstrumentID] = pos
	}
	for _, pos := range actual.Positions {
		want, ok := expectedMap[pos.InstrumentID]
		if !ok {
			return fmt.Errorf("snapshot missing instrument: %s", pos.InstrumentID)
		}
		if !want.Size.Equal(pos.Size) || !want.AveragePrice.Equal(pos.AveragePrice) {
			return fmt.Errorf("snapshot position mismatch: instrument=%s expected=%s@%s actual=%s@%s",
				pos.InstrumentID, want.Size, want.AveragePrice, pos.Size, pos.AveragePrice)
		}
		if !want.RealizedPnL.Equal(pos.RealizedPnL) {
			return fmt.Errorf("snapshot realized pnl mismatch: instrument=%s expected=%s actual=%s",
				pos.InstrumentID, want.RealizedPnL, pos.RealizedPnL)
		}
	}
	return nil
}
