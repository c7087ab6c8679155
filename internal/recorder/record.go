package recorder

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"

	"polytrader/internal/schema"
)

// Record layout: fixed header, payload, CRC32-C over header and payload.
const (
	recordVersion      uint16 = 1
	recordHeaderSize          = 56
	recordChecksumSize        = 4
)

var (
	recordMagic = [4]byte{'P', 'T', 'W', '1'}
	crcTable    = crc32.MakeTable(crc32.Castagnoli)
)

var (
	ErrInvalidMagic            = errors.New("wal invalid magic")
	ErrUnsupportedRecordVer    = errors.New("wal unsupported record version")
	ErrInvalidRecordHeaderSize = errors.New("wal invalid header size")
	ErrChecksumMismatch        = errors.New("wal checksum mismatch")
)

func encodeHeader(dst []byte, header schema.EventHeader, payloadLen int) {
	_ = dst[recordHeaderSize-1]
	le := binary.LittleEndian
	copy(dst[0:4], recordMagic[:])
	le.PutUint16(dst[4:6], recordVersion)
	le.PutUint16(dst[6:8], uint16(recordHeaderSize))
	le.PutUint16(dst[8:10], uint16(header.Type))
	le.PutUint16(dst[10:12], header.Version)
	le.PutUint16(dst[12:14], header.Source)
	le.PutUint16(dst[14:16], header.Flags)
	le.PutUint32(dst[16:20], uint32(payloadLen))
	le.PutUint64(dst[20:28], header.Seq)
	le.PutUint64(dst[28:36], uint64(header.TsEvent))
	le.PutUint64(dst[36:44], uint64(header.TsRecv))
	le.PutUint64(dst[44:52], header.TraceID)
	le.PutUint32(dst[52:56], 0)
}

func checksum(header []byte, payload []byte) uint32 {
	return crc32.Update(crc32.Update(0, crcTable, header), crcTable, payload)
}

func decodeRecordHeader(src []byte) (schema.EventHeader, uint32, error) {
	if len(src) < recordHeaderSize {
		return schema.EventHeader{}, 0, ErrInvalidRecordHeaderSize
	}
	le := binary.LittleEndian
	switch {
	case !bytes.Equal(src[0:4], recordMagic[:]):
		return schema.EventHeader{}, 0, ErrInvalidMagic
	case le.Uint16(src[4:6]) != recordVersion:
		return schema.EventHeader{}, 0, ErrUnsupportedRecordVer
	case le.Uint16(src[6:8]) != recordHeaderSize:
		return schema.EventHeader{}, 0, ErrInvalidRecordHeaderSize
	}
	h := schema.EventHeader{
		Type:    schema.EventType(le.Uint16(src[8:10])),
		Version: le.Uint16(src[10:12]),
		Source:  le.Uint16(src[12:14]),
		Flags:   le.Uint16(src[14:16]),
		Seq:     le.Uint64(src[20:28]),
		TsEvent: int64(le.Uint64(src[28:36])),
		TsRecv:  int64(le.Uint64(src[36:44])),
		TraceID: le.Uint64(src[44:52]),
	}
	return h, le.Uint32(src[16:20]), nil
}
