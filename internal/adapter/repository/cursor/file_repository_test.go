package cursor

import (
	"context"
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

func newTestRepo(t *testing.T) (*FileRepository, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state", "access.cursor")
	repo, err := NewFileRepository(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return repo, path
}

func TestFileRepository_LoadMissing(t *testing.T) {
	repo, _ := newTestRepo(t)

	_, err := repo.Load(context.Background())
	assert.ErrorIs(t, err, domain.ErrCursorNotFound)
}

func TestFileRepository_SaveAndLoad(t *testing.T) {
	repo, path := newTestRepo(t)
	ctx := context.Background()

	want := domain.Cursor{Fingerprint: "2049:1234", Offset: 4096, UpdatedAt: time.Now().UTC().Truncate(time.Second)}
	require.NoError(t, repo.Save(ctx, want))
	require.NoError(t, repo.Save(ctx, domain.Cursor{Fingerprint: "2049:1234", Offset: 8192}))

	got, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(8192), got.Offset)
	assert.Equal(t, "2049:1234", got.Fingerprint)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}

func TestFileRepository_LoadCorrupt(t *testing.T) {
	repo, path := newTestRepo(t)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := repo.Load(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrCursorNotFound)
}

func TestFileRepository_LoadNegativeOffset(t *testing.T) {
	repo, path := newTestRepo(t)
	require.NoError(t, os.WriteFile(path, []byte(`{"fingerprint":"x","offset":-5}`), 0644))

	_, err := repo.Load(context.Background())
	assert.Error(t, err)
}
