package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/yanun0323/logs"

	"polytrader/internal/codec"
	"polytrader/internal/recorder"
	"polytrader/internal/schema"
)

func main() {
	dir := flag.String("dir", "data/wal", "WAL directory")
	prefix := flag.String("prefix", "", "WAL file prefix (default: wal)")
	speed := flag.Float64("speed", 0, "Playback speed (1=real-time, 0=no pacing)")
	useRecv := flag.Bool("use-recv-time", false, "Use receive timestamp for pacing")
	noChecksum := flag.Bool("no-checksum", false, "Disable checksum validation")
	maxPayload := flag.Int("max-payload", 0, "Max payload size in bytes (0=unlimited)")
	decode := flag.Bool("decode", false, "Decode tick and fill payloads")
	flag.Parse()

	pb, err := recorder.NewPlayback(recorder.PlaybackConfig{
		Dir:             *dir,
		FilePrefix:      *prefix,
		Speed:           *speed,
		UseRecvTime:     *useRecv,
		DisableChecksum: *noChecksum,
		MaxPayloadSize:  *maxPayload,
	})
	if err != nil {
		fatal("playback init failed, err: %+v", err)
	}

	var index int
	err = pb.Run(context.Background(), func(header schema.EventHeader, payload []byte) error {
		index++
		fmt.Printf("%06d seq=%d type=%s ts_event=%d ts_recv=%d len=%d\n", index, header.Seq, header.Type, header.TsEvent, header.TsRecv, len(payload))
		if *decode {
			printDecoded(header.Type, payload)
		}
		return nil
	})
	if err != nil {
		fatal("playback run failed, err: %+v", err)
	}
}

func printDecoded(t schema.EventType, payload []byte) {
	switch t {
	case schema.EventTick:
		tick, ok := codec.DecodeTick(payload)
		if !ok {
			fmt.Println("  decode tick failed")
			return
		}
		fmt.Printf("  tick instrument=%s price=%s volume=%s bid=%s ask=%s\n",
			tick.InstrumentID, tick.Price, tick.Volume, tick.BestBid, tick.BestAsk)
	case schema.EventFill:
		fill, ok := codec.DecodeFill(payload)
		if !ok {
			fmt.Println("  decode fill failed")
			return
		}
		fmt.Printf("  fill order=%s instrument=%s side=%s price=%s size=%s\n",
			fill.OrderID, fill.InstrumentID, fill.Side, fill.Price, fill.Size)
	}
}

func fatal(format string, args ...any) {
	logs.Errorf(format, args...)
	os.Exit(1)
}
