package deadletter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/V4T54L/baitwatch/internal/domain"
)

func newTestSpool(t *testing.T, dir string, maxSegmentSize, maxTotalSize int64) *Spool {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := NewSpool(dir, maxSegmentSize, maxTotalSize, logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleEvent(path string) domain.RawTrafficEvent {
	return domain.RawTrafficEvent{
		Timestamp: time.Date(2023, 10, 10, 13, 55, 36, 0, time.UTC),
		IP:        "203.0.113.7",
		UserAgent: "curl/7.68.0",
		Path:      path,
		Status:    404,
	}
}

func collect(t *testing.T, s *Spool) []domain.RawTrafficEvent {
	t.Helper()
	got, _ := replayAll(t, s)
	return got
}

func replayAll(t *testing.T, s *Spool) ([]domain.RawTrafficEvent, []string) {
	t.Helper()
	var got []domain.RawTrafficEvent
	segments, err := s.Replay(context.Background(), func(e domain.RawTrafficEvent) error {
		got = append(got, e)
		return nil
	})
	require.NoError(t, err)
	return got, segments
}

func TestSpool_WriteAndReplayAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	s := newTestSpool(t, dir, 1024, 64*1024)

	paths := []string{"/.env", "/wp-admin/", "/.git/config"}
	for _, p := range paths {
		require.NoError(t, s.Write(context.Background(), sampleEvent(p), "store unavailable"))
	}
	require.NoError(t, s.Close())

	reopened := newTestSpool(t, dir, 1024, 64*1024)
	got := collect(t, reopened)

	require.Len(t, got, len(paths))
	for i, p := range paths {
		assert.Equal(t, p, got[i].Path)
		assert.True(t, got[i].Timestamp.Equal(sampleEvent(p).Timestamp))
	}
}

func TestSpool_RotatesSegments(t *testing.T) {
	dir := t.TempDir()
	s := newTestSpool(t, dir, 200, 64*1024)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Write(context.Background(), sampleEvent("/admin"), "timeout"))
	}

	segments, err := filepath.Glob(filepath.Join(dir, segmentPrefix+"*"+segmentSuffix))
	require.NoError(t, err)
	assert.Greater(t, len(segments), 1)
	assert.Len(t, collect(t, s), 5)
}

func TestSpool_RejectsWritesWhenFull(t *testing.T) {
	s := newTestSpool(t, t.TempDir(), 1024, 100)

	err := s.Write(context.Background(), sampleEvent("/.env"), "timeout")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "spool full")
}

func TestSpool_Truncate(t *testing.T) {
	t.Run("removes replayed segments", func(t *testing.T) {
		s := newTestSpool(t, t.TempDir(), 1024, 64*1024)

		require.NoError(t, s.Write(context.Background(), sampleEvent("/.env"), "timeout"))
		got, segments := replayAll(t, s)
		require.Len(t, got, 1)
		require.NotEmpty(t, segments)

		require.NoError(t, s.Truncate(context.Background(), segments))
		assert.Empty(t, collect(t, s))

		require.NoError(t, s.Write(context.Background(), sampleEvent("/phpmyadmin"), "timeout"))
		got = collect(t, s)
		require.Len(t, got, 1)
		assert.Equal(t, "/phpmyadmin", got[0].Path)
	})

	t.Run("keeps events written after replay", func(t *testing.T) {
		dir := t.TempDir()
		s := newTestSpool(t, dir, 1024, 64*1024)

		require.NoError(t, s.Write(context.Background(), sampleEvent("/old"), "timeout"))
		_, segments := replayAll(t, s)
		require.NoError(t, s.Write(context.Background(), sampleEvent("/new"), "timeout"))

		require.NoError(t, s.Truncate(context.Background(), segments))

		for _, seg := range segments {
			assert.NoFileExists(t, seg)
		}
		got := collect(t, s)
		require.Len(t, got, 1)
		assert.Equal(t, "/new", got[0].Path)
	})

	t.Run("replayed segments stay on disk until truncated", func(t *testing.T) {
		dir := t.TempDir()
		s := newTestSpool(t, dir, 1024, 64*1024)
		require.NoError(t, s.Write(context.Background(), sampleEvent("/.env"), "timeout"))

		_, segments := replayAll(t, s)
		for _, seg := range segments {
			assert.FileExists(t, seg)
		}
		require.NoError(t, s.Close())

		reopened := newTestSpool(t, dir, 1024, 64*1024)
		got := collect(t, reopened)
		require.Len(t, got, 1)
		assert.Equal(t, "/.env", got[0].Path)
	})
}

func TestSpool_ReplaySkipsCorruptRecords(t *testing.T) {
	dir := t.TempDir()
	s := newTestSpool(t, dir, 1024, 64*1024)
	require.NoError(t, s.Write(context.Background(), sampleEvent("/.env"), "timeout"))
	require.NoError(t, s.Close())

	corrupt := filepath.Join(dir, segmentPrefix+"99999999999999999999"+segmentSuffix)
	require.NoError(t, os.WriteFile(corrupt, []byte("{not json\n"), 0644))

	reopened := newTestSpool(t, dir, 1024, 64*1024)
	got := collect(t, reopened)
	require.Len(t, got, 1)
	assert.Equal(t, "/.env", got[0].Path)
}

func TestSpool_ReplayStopsOnHandlerError(t *testing.T) {
	s := newTestSpool(t, t.TempDir(), 1024, 64*1024)
	require.NoError(t, s.Write(context.Background(), sampleEvent("/a"), "timeout"))
	require.NoError(t, s.Write(context.Background(), sampleEvent("/b"), "timeout"))

	boom := errors.New("still down")
	calls := 0
	_, err := s.Replay(context.Background(), func(domain.RawTrafficEvent) error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}
