package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/V4T54L/baitwatch/internal/adapter/metrics"
	"github.com/V4T54L/baitwatch/internal/adapter/parser"
	"github.com/V4T54L/baitwatch/internal/adapter/tail"
	"github.com/V4T54L/baitwatch/internal/domain"
)

// IngestState is the lifecycle state of an Ingestor.
type IngestState int32

const (
	StateIdle IngestState = iota
	StateReading
	StateRotationDetected
	StateShuttingDown
)

var ingestStates = []IngestState{StateIdle, StateReading, StateRotationDetected, StateShuttingDown}

func (s IngestState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReading:
		return "reading"
	case StateRotationDetected:
		return "rotation_detected"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// IngestConfig controls how the access log is followed.
type IngestConfig struct {
	Path         string
	PollInterval time.Duration
	// BatchSize is the number of handled lines between cursor checkpoints.
	BatchSize      int
	ReadChunkBytes int
	MaxLineBytes   int
	// StartAtEnd skips existing content when no cursor has been saved yet.
	StartAtEnd bool
}

// IngestStats is a point-in-time snapshot of the ingestor counters.
type IngestStats struct {
	LinesRead     int64 `json:"lines_read"`
	Malformed     int64 `json:"malformed"`
	Persisted     int64 `json:"persisted"`
	Dropped       int64 `json:"dropped"`
	Rotations     int64 `json:"rotations"`
	CursorFlushes int64 `json:"cursor_flushes"`
	Offset        int64 `json:"offset"`
}

// Appender persists one raw traffic event.
type Appender interface {
	Append(ctx context.Context, event domain.RawTrafficEvent) error
}

// Ingestor follows an append-only access log, persisting one raw traffic
// event per line and checkpointing its progress in a durable cursor. A single
// goroutine runs Run; State and Stats may be called concurrently.
type Ingestor struct {
	cfg     IngestConfig
	cursors domain.CursorRepository
	writer  Appender
	metrics *metrics.IngestMetrics
	logger  *slog.Logger
	wake    <-chan struct{}
	warn    *rate.Limiter

	state atomic.Int32
	stats struct {
		linesRead     atomic.Int64
		malformed     atomic.Int64
		persisted     atomic.Int64
		dropped       atomic.Int64
		rotations     atomic.Int64
		cursorFlushes atomic.Int64
		offset        atomic.Int64
	}

	// Owned by the Run goroutine.
	file          *os.File
	fingerprint   string
	readOffset    int64
	commitOffset  int64
	flushedOffset int64
	flushedPrint  string
	sinceFlush    int
	pending       []byte
	discarding    bool
	chunk         []byte
}

// NewIngestor creates an ingestor. Zero-valued config fields fall back to
// conservative defaults.
func NewIngestor(cfg IngestConfig, cursors domain.CursorRepository, writer Appender, m *metrics.IngestMetrics, logger *slog.Logger) *Ingestor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.ReadChunkBytes <= 0 {
		cfg.ReadChunkBytes = 64 * 1024
	}
	if cfg.MaxLineBytes <= 0 {
		cfg.MaxLineBytes = 16 * 1024
	}

	in := &Ingestor{
		cfg:     cfg,
		cursors: cursors,
		writer:  writer,
		metrics: m,
		logger:  logger.With("component", "ingestor", "path", cfg.Path),
		warn:    rate.NewLimiter(rate.Every(time.Second), 5),
	}
	in.setState(StateIdle)
	return in
}

// WithWakeup makes the idle wait return early whenever c delivers.
func (in *Ingestor) WithWakeup(c <-chan struct{}) *Ingestor {
	in.wake = c
	return in
}

// State returns the current lifecycle state.
func (in *Ingestor) State() IngestState {
	return IngestState(in.state.Load())
}

// Stats returns a snapshot of the ingestor counters.
func (in *Ingestor) Stats() IngestStats {
	return IngestStats{
		LinesRead:     in.stats.linesRead.Load(),
		Malformed:     in.stats.malformed.Load(),
		Persisted:     in.stats.persisted.Load(),
		Dropped:       in.stats.dropped.Load(),
		Rotations:     in.stats.rotations.Load(),
		CursorFlushes: in.stats.cursorFlushes.Load(),
		Offset:        in.stats.offset.Load(),
	}
}

// Run ingests the log until ctx is cancelled. It returns nil on a clean
// shutdown, after the in-flight line is finished and the cursor is flushed.
// Only a cursor that cannot be loaded at startup is reported as an error.
func (in *Ingestor) Run(ctx context.Context) error {
	in.logger = in.logger.With("session_id", uuid.NewString())
	defer in.closeFile()

	cur, err := in.cursors.Load(ctx)
	hasCursor := true
	if errors.Is(err, domain.ErrCursorNotFound) {
		hasCursor = false
	} else if err != nil {
		return fmt.Errorf("failed to load cursor: %w", err)
	}

	if err := in.openInitial(ctx, cur, hasCursor); err != nil {
		in.setState(StateShuttingDown)
		return nil
	}
	in.logger.Info("ingestion started", "offset", in.commitOffset, "fingerprint", in.fingerprint)

	for ctx.Err() == nil {
		in.setState(StateReading)
		n, err := in.drain(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			in.logger.Warn("failed to read access log", "error", err)
		}
		if n > 0 && err == nil {
			continue
		}

		if in.checkRotation(ctx) {
			continue
		}
		in.setState(StateIdle)
		if !in.wait(ctx) {
			break
		}
	}

	in.setState(StateShuttingDown)
	in.flush(ctx, true)
	in.logger.Info("ingestion stopped", "offset", in.commitOffset, "stats", in.Stats())
	return nil
}

// openInitial waits for the log file to exist and positions the reader
// according to the saved cursor.
func (in *Ingestor) openInitial(ctx context.Context, cur domain.Cursor, hasCursor bool) error {
	var info os.FileInfo
	logged := false
	for {
		f, fi, err := openLog(in.cfg.Path)
		if err == nil {
			in.file, info = f, fi
			break
		}
		if !logged {
			in.logger.Warn("access log unavailable, waiting", "error", err)
			logged = true
		}
		if !in.wait(ctx) {
			return ctx.Err()
		}
	}

	in.fingerprint = tail.Fingerprint(info)
	size := info.Size()

	var offset int64
	switch {
	case !hasCursor && in.cfg.StartAtEnd:
		offset = size
	case !hasCursor:
		offset = 0
	case cur.Fingerprint != "" && in.fingerprint != "" && cur.Fingerprint != in.fingerprint:
		in.setState(StateRotationDetected)
		in.noteRotation("fingerprint changed while stopped", cur.Offset)
		offset = 0
	case size < cur.Offset:
		in.setState(StateRotationDetected)
		in.noteRotation("file shorter than saved offset", cur.Offset)
		offset = 0
	default:
		offset = cur.Offset
	}

	in.readOffset = offset
	in.commitOffset = offset
	if hasCursor {
		in.flushedOffset = cur.Offset
		in.flushedPrint = cur.Fingerprint
	}
	if offset > 0 && !in.atLineStart(offset) {
		in.discarding = true
	}
	in.publishOffset()
	in.flush(ctx, true)
	return nil
}

// drain reads every complete chunk available from the current handle.
func (in *Ingestor) drain(ctx context.Context) (int, error) {
	if in.chunk == nil {
		in.chunk = make([]byte, in.cfg.ReadChunkBytes)
	}

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := in.file.ReadAt(in.chunk, in.readOffset)
		if n > 0 {
			base := in.readOffset
			in.readOffset += int64(n)
			total += n
			cerr := in.consume(ctx, in.chunk[:n], base)
			in.flush(ctx, false)
			if cerr != nil {
				return total, cerr
			}
		}
		if errors.Is(err, io.EOF) || (err == nil && n == 0) {
			return total, nil
		}
		if err != nil {
			return total, fmt.Errorf("read %s at %d: %w", in.cfg.Path, in.readOffset, err)
		}
	}
}

// consume splits data, which starts at file offset base, into lines. Bytes
// after the last newline stay pending until the rest of the line arrives.
func (in *Ingestor) consume(ctx context.Context, data []byte, base int64) error {
	pos := 0
	for pos < len(data) {
		rest := data[pos:]
		i := bytes.IndexByte(rest, '\n')

		if in.discarding {
			if i < 0 {
				return nil
			}
			in.discarding = false
			pos += i + 1
			in.commit(ctx, base+int64(pos))
			continue
		}

		if i < 0 {
			if len(in.pending)+len(rest) > in.cfg.MaxLineBytes {
				in.rejectLongLine()
				return nil
			}
			in.pending = append(in.pending, rest...)
			return nil
		}

		line := rest[:i]
		if len(in.pending) > 0 {
			in.pending = append(in.pending, line...)
			line = in.pending
		}
		pos += i + 1

		var err error
		if len(line) > in.cfg.MaxLineBytes {
			in.stats.linesRead.Add(1)
			in.countMalformed(fmt.Errorf("%w: line exceeds %d bytes", domain.ErrMalformedLine, in.cfg.MaxLineBytes))
		} else {
			err = in.handleLine(ctx, line)
		}
		in.pending = in.pending[:0]
		if err != nil {
			return err
		}

		in.commit(ctx, base+int64(pos))
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

// handleLine parses and persists one line. It returns an error only when
// the write was interrupted by cancellation, in which case the line must be
// read again after restart.
func (in *Ingestor) handleLine(ctx context.Context, line []byte) error {
	in.stats.linesRead.Add(1)

	event, err := parser.Parse(string(line))
	if err != nil {
		in.countMalformed(err)
		return nil
	}
	in.metrics.LinesTotal.WithLabelValues("parsed").Inc()

	err = in.writer.Append(ctx, event)
	switch {
	case err == nil:
		in.stats.persisted.Add(1)
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		in.stats.dropped.Add(1)
		return nil
	}
}

func (in *Ingestor) rejectLongLine() {
	in.stats.linesRead.Add(1)
	in.countMalformed(fmt.Errorf("%w: line exceeds %d bytes", domain.ErrMalformedLine, in.cfg.MaxLineBytes))
	in.pending = in.pending[:0]
	in.discarding = true
}

func (in *Ingestor) countMalformed(err error) {
	in.stats.malformed.Add(1)
	in.metrics.LinesTotal.WithLabelValues("malformed").Inc()
	if in.warn.Allow() {
		in.logger.Warn("skipping malformed line", "error", err)
	}
}

func (in *Ingestor) commit(ctx context.Context, offset int64) {
	in.commitOffset = offset
	in.sinceFlush++
	if in.sinceFlush >= in.cfg.BatchSize {
		in.flush(ctx, false)
	}
}

// flush persists the cursor if it moved. The save is not bound to ctx so a
// checkpoint can still be written during shutdown.
func (in *Ingestor) flush(ctx context.Context, force bool) {
	if in.commitOffset == in.flushedOffset && in.fingerprint == in.flushedPrint {
		in.sinceFlush = 0
		return
	}
	if !force && in.sinceFlush == 0 {
		return
	}

	cur := domain.Cursor{
		Fingerprint: in.fingerprint,
		Offset:      in.commitOffset,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := in.cursors.Save(context.WithoutCancel(ctx), cur); err != nil {
		in.logger.Warn("failed to persist cursor", "offset", cur.Offset, "error", err)
		return
	}
	in.flushedOffset = cur.Offset
	in.flushedPrint = cur.Fingerprint
	in.sinceFlush = 0
	in.stats.cursorFlushes.Add(1)
	in.metrics.CursorFlushes.Inc()
	in.publishOffset()
}

// checkRotation re-stats the path while idle. It reports true when the
// reader was repositioned and reading should resume immediately.
func (in *Ingestor) checkRotation(ctx context.Context) bool {
	info, err := os.Stat(in.cfg.Path)
	if err != nil {
		return false
	}

	fp := tail.Fingerprint(info)
	switch {
	case fp != "" && in.fingerprint != "" && fp != in.fingerprint:
		f, fi, err := openLog(in.cfg.Path)
		if err != nil {
			in.logger.Warn("rotated access log not yet readable", "error", err)
			return false
		}
		in.setState(StateRotationDetected)
		// Lines appended to the old inode before the swap are still ours.
		if _, err := in.drain(ctx); err != nil {
			if ctx.Err() != nil {
				f.Close()
				return false
			}
			in.logger.Warn("failed to drain replaced access log", "error", err)
		}
		in.noteRotation("file replaced", in.commitOffset)
		in.closeFile()
		in.file = f
		in.fingerprint = tail.Fingerprint(fi)
	case info.Size() < in.readOffset:
		in.setState(StateRotationDetected)
		in.noteRotation("file truncated", in.commitOffset)
	default:
		return false
	}

	if len(in.pending) > 0 {
		in.logger.Warn("discarding partial line left in previous file", "bytes", len(in.pending))
	}
	in.pending = in.pending[:0]
	in.discarding = false
	in.readOffset = 0
	in.commitOffset = 0
	in.flush(ctx, true)
	return true
}

func (in *Ingestor) noteRotation(reason string, previousOffset int64) {
	in.stats.rotations.Add(1)
	in.metrics.Rotations.Inc()
	in.logger.Info("log rotation detected, restarting at offset 0",
		"reason", reason,
		"previous_offset", previousOffset,
	)
}

// atLineStart reports whether offset immediately follows a newline.
func (in *Ingestor) atLineStart(offset int64) bool {
	var b [1]byte
	if _, err := in.file.ReadAt(b[:], offset-1); err != nil {
		return true
	}
	return b[0] == '\n'
}

func (in *Ingestor) wait(ctx context.Context) bool {
	t := time.NewTimer(in.cfg.PollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
	case <-in.wake:
	}
	return true
}

func (in *Ingestor) setState(s IngestState) {
	in.state.Store(int32(s))
	for _, st := range ingestStates {
		v := 0.0
		if st == s {
			v = 1
		}
		in.metrics.IngestState.WithLabelValues(st.String()).Set(v)
	}
}

func (in *Ingestor) publishOffset() {
	in.stats.offset.Store(in.flushedOffset)
	in.metrics.CursorOffset.Set(float64(in.flushedOffset))
}

func (in *Ingestor) closeFile() {
	if in.file != nil {
		in.file.Close()
		in.file = nil
	}
}

func openLog(path string) (*os.File, os.FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, info, nil
}
