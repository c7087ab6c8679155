package codec

import (
	"encoding/binary"
	"time"

	"polytrader/internal/model"
)

const tickFixedSize = 42

// TickPayloadSize returns the encoded size of a tick.
func TickPayloadSize(t model.Tick) int {
	return tickFixedSize + len(t.InstrumentID)
}

// EncodeTick serializes a tick. Decimal fields keep eight fractional digits.
func EncodeTick(dst []byte, t model.Tick) []byte {
	size := TickPayloadSize(t)
	if cap(dst) < size {
		dst = make([]byte, size)
	} else {
		dst = dst[:size]
	}

	binary.LittleEndian.PutUint64(dst[0:8], uint64(t.Timestamp.UnixNano()))
	binary.LittleEndian.PutUint64(dst[8:16], putDecimal(t.Price))
	binary.LittleEndian.PutUint64(dst[16:24], putDecimal(t.Volume))
	binary.LittleEndian.PutUint64(dst[24:32], putDecimal(t.BestBid))
	binary.LittleEndian.PutUint64(dst[32:40], putDecimal(t.BestAsk))
	binary.LittleEndian.PutUint16(dst[40:42], uint16(len(t.InstrumentID)))
	copy(dst[tickFixedSize:], t.InstrumentID)

	return dst
}

// DecodeTick parses a tick payload.
func DecodeTick(src []byte) (model.Tick, bool) {
	if len(src) < tickFixedSize {
		return model.Tick{}, false
	}
	idLen := int(binary.LittleEndian.Uint16(src[40:42]))
	if len(src) < tickFixedSize+idLen {
		return model.Tick{}, false
	}
	return model.Tick{
		InstrumentID: string(src[tickFixedSize : tickFixedSize+idLen]),
		Price:        getDecimal(binary.LittleEndian.Uint64(src[8:16])),
		Volume:       getDecimal(binary.LittleEndian.Uint64(src[16:24])),
		BestBid:      getDecimal(binary.LittleEndian.Uint64(src[24:32])),
		BestAsk:      getDecimal(binary.LittleEndian.Uint64(src[32:40])),
		Timestamp:    time.Unix(0, int64(binary.LittleEndian.Uint64(src[0:8]))).UTC(),
	}, true
}
