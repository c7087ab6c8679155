package recorder

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"polytrader/internal/schema"
)

var (
	ErrQueueFull       = errors.New("wal queue full")
	ErrClosed          = errors.New("wal writer closed")
	ErrNotStarted      = errors.New("wal writer not started")
	ErrAlreadyStarted  = errors.New("wal writer already started")
	ErrPayloadTooLarge = errors.New("wal payload too large")
)

const maxPayloadLen = uint64(DefaultMaxPayloadSize)

// Writer appends events to rotating WAL segments from a buffered queue.
// TryAppend never blocks; the single writer goroutine owns the files.
type Writer struct {
	cfg Config
	ch  chan recordRequest
	wg  sync.WaitGroup

	errMu sync.Mutex
	err   error

	started atomic.Bool
	closed  atomic.Bool
}

// NewWriter creates a WAL writer and ensures the target directory exists.
func NewWriter(cfg Config) (*Writer, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	return &Writer{
		cfg: cfg,
		ch:  make(chan recordRequest, cfg.QueueSize),
	}, nil
}

// Start runs the writer loop in a new goroutine.
func (w *Writer) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
	return nil
}

// Close stops the writer and flushes any buffered data.
func (w *Writer) Close() error {
	if w.closed.CompareAndSwap(false, true) {
		close(w.ch)
	}
	w.wg.Wait()
	return w.Err()
}

// Err returns the first error observed by the writer, if any.
func (w *Writer) Err() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}

// TryAppend enqueues an event without blocking.
func (w *Writer) TryAppend(header schema.EventHeader, payload []byte) error {
	switch {
	case w.closed.Load():
		return ErrClosed
	case !w.started.Load():
		return ErrNotStarted
	case uint64(len(payload)) > maxPayloadLen:
		return ErrPayloadTooLarge
	}
	if err := w.Err(); err != nil {
		return err
	}
	if header.Version == 0 {
		header.Version = schema.SchemaVersion
	}
	if w.cfg.CopyPayload && len(payload) > 0 {
		payload = append([]byte(nil), payload...)
	}

	select {
	case w.ch <- recordRequest{header: header, payload: payload}:
		return nil
	default:
		return ErrQueueFull
	}
}

// segmentState is owned by the writer goroutine.
type segmentState struct {
	cur       *segmentWriter
	nextID    uint64
	headerBuf [recordHeaderSize]byte
	sumBuf    [recordChecksumSize]byte
}

func (w *Writer) run(ctx context.Context) {
	st := &segmentState{}

	var flushC, syncC <-chan time.Time
	if w.cfg.FlushInterval > 0 {
		ticker := time.NewTicker(w.cfg.FlushInterval)
		defer ticker.Stop()
		flushC = ticker.C
	}
	if w.cfg.SyncInterval > 0 {
		ticker := time.NewTicker(w.cfg.SyncInterval)
		defer ticker.Stop()
		syncC = ticker.C
	}

	defer func() {
		if err := st.cur.close(); err != nil {
			w.setErr(err)
		}
	}()

	for {
		var err error
		select {
		case <-ctx.Done():
			w.drain(st)
			return
		case req, ok := <-w.ch:
			if !ok {
				return
			}
			err = w.write(st, req)
		case <-flushC:
			err = st.cur.flush()
		case <-syncC:
			err = st.cur.sync()
		}
		if err != nil {
			w.setErr(err)
			return
		}
	}
}

func (w *Writer) drain(st *segmentState) {
	for {
		select {
		case req, ok := <-w.ch:
			if !ok {
				return
			}
			if err := w.write(st, req); err != nil {
				w.setErr(err)
				return
			}
		default:
			return
		}
	}
}

func (w *Writer) write(st *segmentState, req recordRequest) error {
	if uint64(len(req.payload)) > maxPayloadLen {
		return ErrPayloadTooLarge
	}

	now := time.Now().UTC()
	size := int64(recordHeaderSize + len(req.payload) + recordChecksumSize)
	if w.shouldRotate(st.cur, now, size) {
		if err := st.cur.close(); err != nil {
			return err
		}
		seg, err := w.openSegment(&st.nextID, now)
		if err != nil {
			return err
		}
		st.cur = seg
	}

	encodeHeader(st.headerBuf[:], req.header, len(req.payload))
	binary.LittleEndian.PutUint32(st.sumBuf[:], checksum(st.headerBuf[:], req.payload))

	for _, part := range [][]byte{st.headerBuf[:], req.payload, st.sumBuf[:]} {
		if len(part) == 0 {
			continue
		}
		if _, err := st.cur.buf.Write(part); err != nil {
			return err
		}
	}
	st.cur.size += size
	return nil
}

func (w *Writer) shouldRotate(seg *segmentWriter, now time.Time, nextSize int64) bool {
	switch {
	case seg == nil:
		return true
	case w.cfg.SegmentMaxBytes > 0 && seg.size+nextSize > w.cfg.SegmentMaxBytes:
		return true
	case w.cfg.SegmentMaxDuration > 0 && now.Sub(seg.openedAt) >= w.cfg.SegmentMaxDuration:
		return true
	}
	return false
}

func (w *Writer) openSegment(nextID *uint64, now time.Time) (*segmentWriter, error) {
	ts := now.Format("20060102-150405")
	for {
		*nextID++
		name := fmt.Sprintf("%s-%s-%06d%s", w.cfg.FilePrefix, ts, *nextID, segmentSuffix)
		file, err := os.OpenFile(filepath.Join(w.cfg.Dir, name), os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &segmentWriter{
			file:     file,
			buf:      bufio.NewWriterSize(file, w.cfg.BufferSize),
			openedAt: now,
		}, nil
	}
}

func (w *Writer) setErr(err error) {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	if w.err == nil {
		w.err = err
	}
}

type recordRequest struct {
	header  schema.EventHeader
	payload []byte
}

type segmentWriter struct {
	file     *os.File
	buf      *bufio.Writer
	size     int64
	openedAt time.Time
}

func (s *segmentWriter) flush() error {
	if s == nil {
		return nil
	}
	return s.buf.Flush()
}

func (s *segmentWriter) sync() error {
	if s == nil {
		return nil
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	return s.file.Sync()
}

func (s *segmentWriter) close() error {
	if s == nil {
		return nil
	}
	if err := s.sync(); err != nil {
		_ = s.file.Close()
		return err
	}
	return s.file.Close()
}
