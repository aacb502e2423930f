// Package deadletter keeps raw traffic events the writer gave up on in an
// append-only, segmented JSONL spool so they can be replayed later.
package deadletter

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/V4T54L/baitwatch/internal/domain"
)

const (
	segmentPrefix = "deadletter-"
	segmentSuffix = ".jsonl"
	filePerm      = 0644
	maxRecordSize = 1 << 20
)

// Record is one spooled event with the reason it was dropped.
type Record struct {
	ID       string                 `json:"id"`
	FailedAt time.Time              `json:"failed_at"`
	Reason   string                 `json:"reason"`
	Event    domain.RawTrafficEvent `json:"event"`
}

// Spool implements domain.DeadLetterRepository on local segment files.
type Spool struct {
	dir            string
	maxSegmentSize int64
	maxTotalSize   int64
	logger         *slog.Logger

	mu             sync.Mutex
	currentSegment *os.File
	currentSize    int64
}

var _ domain.DeadLetterRepository = (*Spool)(nil)

// NewSpool opens (or creates) the spool in dir.
func NewSpool(dir string, maxSegmentSize, maxTotalSize int64, logger *slog.Logger) (*Spool, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create dead-letter directory %s: %w", dir, err)
	}

	s := &Spool{
		dir:            dir,
		maxSegmentSize: maxSegmentSize,
		maxTotalSize:   maxTotalSize,
		logger:         logger.With("component", "deadletter_spool"),
	}

	if err := s.openLatestSegment(); err != nil {
		return nil, err
	}
	return s, nil
}

// Write appends event to the current segment and syncs it.
func (s *Spool) Write(ctx context.Context, event domain.RawTrafficEvent, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(Record{
		ID:       uuid.NewString(),
		FailedAt: time.Now().UTC(),
		Reason:   reason,
		Event:    event,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal dead-letter record: %w", err)
	}
	data = append(data, '\n')

	if s.currentSegment == nil {
		if err := s.rotate(); err != nil {
			return err
		}
	}

	totalSize, err := s.totalSize()
	if err != nil {
		return fmt.Errorf("could not verify dead-letter disk usage: %w", err)
	}
	if totalSize+int64(len(data)) > s.maxTotalSize {
		return fmt.Errorf("dead-letter spool full (%d + %d > %d bytes)", totalSize, len(data), s.maxTotalSize)
	}

	n, err := s.currentSegment.Write(data)
	if err != nil {
		return fmt.Errorf("failed to write dead-letter segment: %w", err)
	}
	s.currentSize += int64(n)
	if err := s.currentSegment.Sync(); err != nil {
		return fmt.Errorf("failed to sync dead-letter segment: %w", err)
	}

	if s.currentSize >= s.maxSegmentSize {
		if err := s.rotate(); err != nil {
			s.logger.Error("failed to rotate dead-letter segment", "error", err)
		}
	}
	return nil
}

// Replay hands every spooled event to handler, oldest segment first, and
// returns the segments it read. The current segment is sealed first, so
// events written during or after replay go to a new segment. Records that
// cannot be decoded are skipped. The first handler error stops replay.
func (s *Spool) Replay(ctx context.Context, handler func(event domain.RawTrafficEvent) error) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.currentSegment != nil {
		s.currentSegment.Close()
		s.currentSegment = nil
	}

	segments, err := s.sortedSegments()
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, nil
	}
	s.logger.Info("replaying dead-letter spool", "segment_count", len(segments))

	replayed := 0
	for _, path := range segments {
		n, err := s.replaySegment(ctx, path, handler)
		replayed += n
		if err != nil {
			return nil, err
		}
	}

	s.logger.Info("dead-letter replay completed", "events", replayed)
	return segments, nil
}

func (s *Spool) replaySegment(ctx context.Context, path string, handler func(event domain.RawTrafficEvent) error) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open segment %s for replay: %w", path, err)
	}
	defer file.Close()

	replayed := 0
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordSize)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return replayed, ctx.Err()
		}
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			s.logger.Warn("skipping undecodable dead-letter record", "segment", path, "error", err)
			continue
		}
		if err := handler(rec.Event); err != nil {
			return replayed, fmt.Errorf("replay handler failed on record %s: %w", rec.ID, err)
		}
		replayed++
	}
	if err := scanner.Err(); err != nil {
		return replayed, fmt.Errorf("error scanning segment %s: %w", path, err)
	}
	return replayed, nil
}

// Truncate removes the given segments. The segment currently open for
// writing is never removed.
func (s *Spool) Truncate(ctx context.Context, segments []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := ""
	if s.currentSegment != nil {
		current = s.currentSegment.Name()
	}

	removed := 0
	for _, path := range segments {
		if path == current || filepath.Dir(path) != filepath.Clean(s.dir) {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove dead-letter segment %s: %w", path, err)
		}
		removed++
	}

	s.logger.Info("dead-letter spool truncated", "segments", removed)
	return nil
}

// Close closes the current segment.
func (s *Spool) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentSegment != nil {
		err := s.currentSegment.Close()
		s.currentSegment = nil
		return err
	}
	return nil
}

func (s *Spool) rotate() error {
	if s.currentSegment != nil {
		if err := s.currentSegment.Close(); err != nil {
			s.logger.Error("failed to close dead-letter segment before rotating", "error", err)
		}
		s.currentSegment = nil
	}

	// Segment names must be new so a sealed segment is never reopened.
	var (
		f    *os.File
		path string
		err  error
	)
	for stamp := time.Now().UnixNano(); ; stamp++ {
		path = filepath.Join(s.dir, fmt.Sprintf("%s%020d%s", segmentPrefix, stamp, segmentSuffix))
		f, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePerm)
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			return fmt.Errorf("failed to create dead-letter segment %s: %w", path, err)
		}
	}

	s.currentSegment = f
	s.currentSize = 0
	s.logger.Debug("rotated to new dead-letter segment", "path", path)
	return nil
}

func (s *Spool) openLatestSegment() error {
	segments, err := s.sortedSegments()
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return s.rotate()
	}

	latest := segments[len(segments)-1]
	stat, err := os.Stat(latest)
	if err != nil {
		return fmt.Errorf("failed to stat dead-letter segment %s: %w", latest, err)
	}
	if stat.Size() >= s.maxSegmentSize {
		return s.rotate()
	}

	f, err := os.OpenFile(latest, os.O_APPEND|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("failed to open dead-letter segment %s: %w", latest, err)
	}
	s.currentSegment = f
	s.currentSize = stat.Size()
	return nil
}

func (s *Spool) sortedSegments() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read dead-letter directory: %w", err)
	}

	var segments []string
	for _, entry := range entries {
		if isSegment(entry) {
			segments = append(segments, filepath.Join(s.dir, entry.Name()))
		}
	}
	sort.Strings(segments)
	return segments, nil
}

func (s *Spool) totalSize() (int64, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, entry := range entries {
		if !isSegment(entry) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}

func isSegment(entry os.DirEntry) bool {
	name := entry.Name()
	return !entry.IsDir() && strings.HasPrefix(name, segmentPrefix) && strings.HasSuffix(name, segmentSuffix)
}
