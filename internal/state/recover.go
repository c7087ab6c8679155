package state

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"polytrader/internal/codec"
	"polytrader/internal/recorder"
	"polytrader/internal/schema"
)

// RecoverConfig controls snapshot + WAL recovery.
type RecoverConfig struct {
	WALDir          string
	SnapshotPath    string
	FilePrefix      string
	DisableChecksum bool
	MaxPayloadSize  int
	UseRecvTime     bool
	InitialCash     decimal.Decimal
}

// RecoverResult contains recovered state and metadata.
type RecoverResult struct {
	Ledger      *Ledger
	LastSeq     uint64
	LastEventTs int64
	Applied     int
}

// RecoverLedger loads a snapshot and replays the fill events of the WAL tail
// to rebuild the ledger.
func RecoverLedger(ctx context.Context, cfg RecoverConfig) (RecoverResult, error) {
	if cfg.WALDir == "" {
		return RecoverResult{}, fmt.Errorf("wal dir is empty")
	}
	ledger := NewLedger(cfg.InitialCash)
	var lastSeq uint64
	var lastEventTs int64

	if cfg.SnapshotPath != "" {
		snapshot, err := ReadSnapshot(cfg.SnapshotPath)
		if err != nil {
			return RecoverResult{}, err
		}
		ledger.ApplySnapshot(snapshot)
		lastSeq = snapshot.LastSeq
		lastEventTs = snapshot.LastEventTs
	}

	pb, err := recorder.NewPlayback(recorder.PlaybackConfig{
		Dir:             cfg.WALDir,
		FilePrefix:      cfg.FilePrefix,
		Speed:           0,
		UseRecvTime:     cfg.UseRecvTime,
		DisableChecksum: cfg.DisableChecksum,
		MaxPayloadSize:  cfg.MaxPayloadSize,
	})
	if err != nil {
		return RecoverResult{}, err
	}

	applied := 0
	err = pb.Run(ctx, func(header schema.EventHeader, payload []byte) error {
		if lastSeq > 0 && header.Seq <= lastSeq {
			return nil
		}
		if lastSeq == 0 && lastEventTs > 0 {
			ts := header.TsEvent
			if cfg.UseRecvTime {
				ts = header.TsRecv
			}
			if ts <= lastEventTs {
				return nil
			}
		}
		if header.Seq > lastSeq {
			lastSeq = header.Seq
		}
		if header.TsEvent > lastEventTs {
			lastEventTs = header.TsEvent
		}

		if header.Type != schema.EventFill {
			return nil
		}
		fill, ok := codec.DecodeFill(payload)
		if !ok {
			return fmt.Errorf("decode fill failed at seq %d", header.Seq)
		}
		if _, _, err := ledger.ApplyFill(fill); err != nil {
			logs.Warnf("skip fill %s during recovery, err: %+v", fill.OrderID, err)
			return nil
		}
		applied++
		return nil
	})
	if err != nil {
		return RecoverResult{}, err
	}

	return RecoverResult{
		Ledger:      ledger,
		LastSeq:     lastSeq,
		LastEventTs: lastEventTs,
		Applied:     applied,
	}, nil
}
