// Package sqlite stores price history in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/shopspring/decimal"

	"polytrader/internal/model"
	"polytrader/internal/store"
)

// History is a store.PriceHistory backed by SQLite in WAL journal mode.
type History struct {
	db *sql.DB
}

var _ store.PriceHistory = (*History)(nil)

// Open opens or creates the history database at path.
func Open(path string) (*History, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", pragma, err)
		}
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS price_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			instrument_id TEXT NOT NULL,
			price TEXT NOT NULL,
			volume TEXT NOT NULL,
			best_bid TEXT NOT NULL,
			best_ask TEXT NOT NULL,
			ts INTEGER NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_price_history_instrument_ts ON price_history (instrument_id, ts);",
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create price_history: %w", err)
		}
	}

	return &History{db: db}, nil
}

func (h *History) SaveTick(ctx context.Context, tick model.Tick) error {
	_, err := h.db.ExecContext(ctx,
		"INSERT INTO price_history (instrument_id, price, volume, best_bid, best_ask, ts) VALUES (?, ?, ?, ?, ?, ?)",
		tick.InstrumentID, tick.Price.String(), tick.Volume.String(), tick.BestBid.String(), tick.BestAsk.String(), tick.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert tick %s: %w", tick.InstrumentID, err)
	}
	return nil
}

func (h *History) Ticks(ctx context.Context, instrumentID string, from, to time.Time) ([]model.Tick, error) {
	rows, err := h.db.QueryContext(ctx,
		"SELECT price, volume, best_bid, best_ask, ts FROM price_history WHERE instrument_id = ? AND ts >= ? AND ts <= ? ORDER BY ts ASC, id ASC",
		instrumentID, from.UnixNano(), to.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("query ticks %s: %w", instrumentID, err)
	}
	defer rows.Close()

	var out []model.Tick
	for rows.Next() {
		var (
			price, volume, bid, ask string
			ts                      int64
		)
		if err := rows.Scan(&price, &volume, &bid, &ask, &ts); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		tick := model.Tick{InstrumentID: instrumentID, Timestamp: time.Unix(0, ts).UTC()}
		for _, f := range []struct {
			dst *decimal.Decimal
			src string
		}{{&tick.Price, price}, {&tick.Volume, volume}, {&tick.BestBid, bid}, {&tick.BestAsk, ask}} {
			if *f.dst, err = decimal.NewFromString(f.src); err != nil {
				return nil, fmt.Errorf("parse tick column %q: %w", f.src, err)
			}
		}
		out = append(out, tick)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// Prune deletes ticks recorded before the cutoff.
func (h *History) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := h.db.ExecContext(ctx, "DELETE FROM price_history WHERE ts < ?", before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune ticks: %w", err)
	}
	return res.RowsAffected()
}

// Name identifies the history store as a hub observer.
func (h *History) Name() string {
	return "price-history"
}

// ObserveTick records every tick published on the hub.
func (h *History) ObserveTick(ctx context.Context, tick model.Tick) error {
	return h.SaveTick(ctx, tick)
}

func (h *History) Close() error {
	return h.db.Close()
}
