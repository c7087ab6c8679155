package codec

import (
	"encoding/binary"
	"time"

	"polytrader/internal/model"
	"polytrader/internal/model/enum"
)

const fillFixedSize = 30

// FillPayloadSize returns the encoded size of a fill.
func FillPayloadSize(f model.Fill) int {
	return fillFixedSize + len(f.InstrumentID) + len(f.OrderID)
}

// EncodeFill serializes a fill.
func EncodeFill(dst []byte, f model.Fill) []byte {
	size := FillPayloadSize(f)
	if cap(dst) < size {
		dst = make([]byte, size)
	} else {
		dst = dst[:size]
	}

	binary.LittleEndian.PutUint64(dst[0:8], uint64(f.Timestamp.UnixNano()))
	binary.LittleEndian.PutUint64(dst[8:16], putDecimal(f.Price))
	binary.LittleEndian.PutUint64(dst[16:24], putDecimal(f.Size))
	binary.LittleEndian.PutUint16(dst[24:26], uint16(f.Side))
	binary.LittleEndian.PutUint16(dst[26:28], uint16(len(f.InstrumentID)))
	binary.LittleEndian.PutUint16(dst[28:30], uint16(len(f.OrderID)))
	n := copy(dst[fillFixedSize:], f.InstrumentID)
	copy(dst[fillFixedSize+n:], f.OrderID)

	return dst
}

// DecodeFill parses a fill payload.
func DecodeFill(src []byte) (model.Fill, bool) {
	if len(src) < fillFixedSize {
		return model.Fill{}, false
	}
	instLen := int(binary.LittleEndian.Uint16(src[26:28]))
	orderLen := int(binary.LittleEndian.Uint16(src[28:30]))
	if len(src) < fillFixedSize+instLen+orderLen {
		return model.Fill{}, false
	}
	inst := src[fillFixedSize : fillFixedSize+instLen]
	order := src[fillFixedSize+instLen : fillFixedSize+instLen+orderLen]
	return model.Fill{
		OrderID:      string(order),
		InstrumentID: string(inst),
		Side:         enum.Side(binary.LittleEndian.Uint16(src[24:26])),
		Price:        getDecimal(binary.LittleEndian.Uint64(src[8:16])),
		Size:         getDecimal(binary.LittleEndian.Uint64(src[16:24])),
		Timestamp:    time.Unix(0, int64(binary.LittleEndian.Uint64(src[0:8]))).UTC(),
	}, true
}
