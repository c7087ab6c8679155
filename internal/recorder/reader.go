package recorder

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"

	"polytrader/internal/schema"
)

// DefaultMaxPayloadSize bounds a record payload when ReaderOptions leaves
// MaxPayloadSize unset. Writers refuse larger payloads.
const DefaultMaxPayloadSize = 1 << 20

// ReaderOptions controls record decoding.
type ReaderOptions struct {
	DisableChecksum bool
	MaxPayloadSize  int
}

// Reader decodes WAL records sequentially.
type Reader struct {
	r       *bufio.Reader
	opts    ReaderOptions
	header  [recordHeaderSize]byte
	sum     [recordChecksumSize]byte
	payload []byte
}

// NewReader wraps r with WAL decoding.
func NewReader(r io.Reader, opts ReaderOptions) *Reader {
	return &Reader{
		r:    bufio.NewReader(r),
		opts: opts,
	}
}

// Next returns the next record. The payload is reused by the following call.
// A record cut short at the end of a segment reports io.ErrUnexpectedEOF.
func (r *Reader) Next() (schema.EventHeader, []byte, error) {
	n, err := io.ReadFull(r.r, r.header[:])
	switch {
	case errors.Is(err, io.EOF) && n == 0:
		return schema.EventHeader{}, nil, io.EOF
	case err != nil:
		return schema.EventHeader{}, nil, err
	}

	header, payloadLen, err := decodeRecordHeader(r.header[:])
	if err != nil {
		return header, nil, err
	}
	limit := r.opts.MaxPayloadSize
	if limit <= 0 {
		limit = DefaultMaxPayloadSize
	}
	if uint64(payloadLen) > uint64(limit) {
		return header, nil, ErrPayloadTooLarge
	}

	if cap(r.payload) < int(payloadLen) {
		r.payload = make([]byte, payloadLen)
	}
	r.payload = r.payload[:payloadLen]
	if _, err := io.ReadFull(r.r, r.payload); err != nil {
		return header, nil, err
	}
	if _, err := io.ReadFull(r.r, r.sum[:]); err != nil {
		return header, nil, err
	}

	if !r.opts.DisableChecksum {
		if checksum(r.header[:], r.payload) != binary.LittleEndian.Uint32(r.sum[:]) {
			return header, nil, ErrChecksumMismatch
		}
	}
	return header, r.payload, nil
}
