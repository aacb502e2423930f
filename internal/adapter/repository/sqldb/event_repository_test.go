package sqldb

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/V4T54L/baitwatch/internal/domain"
)

func setupTestRepo(t *testing.T, dsn string) *EventRepository {
	t.Helper()
	ctx := context.Background()

	db, err := Open(ctx, SQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewEventRepository(db, SQLite, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, repo.Migrate(ctx))
	return repo
}

func sampleEvent(path string) domain.RawTrafficEvent {
	return domain.RawTrafficEvent{
		Timestamp: time.Date(2025, 1, 2, 3, 4, 5, 600, time.UTC),
		IP:        "203.0.113.9",
		UserAgent: "curl/7.68.0",
		Path:      path,
		Status:    404,
	}
}

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect("SQLite")
	require.NoError(t, err)
	assert.Equal(t, SQLite, d)

	d, err = ParseDialect("postgres")
	require.NoError(t, err)
	assert.Equal(t, Postgres, d)

	_, err = ParseDialect("mysql")
	assert.Error(t, err)
}

func TestDialect_Placeholders(t *testing.T) {
	assert.Equal(t, "?, ?, ?", SQLite.placeholders(3))
	assert.Equal(t, "$1, $2, $3", Postgres.placeholders(3))
}

func TestEventRepository_InsertAndRead(t *testing.T) {
	repo := setupTestRepo(t, ":memory:")
	ctx := context.Background()

	id1, err := repo.Insert(ctx, sampleEvent("/.env"))
	require.NoError(t, err)
	id2, err := repo.Insert(ctx, sampleEvent("/wp-admin/"))
	require.NoError(t, err)
	assert.Greater(t, id2, id1, "ids are sequential")

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	events, err := repo.ListAfter(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, id1, events[0].ID)
	assert.Equal(t, "/.env", events[0].Path)
	assert.Equal(t, "", events[0].Referer)
	assert.Equal(t, 404, events[0].Status)
	assert.True(t, sampleEvent("").Timestamp.Equal(events[0].Timestamp))

	events, err = repo.ListAfter(ctx, id1, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "/wp-admin/", events[0].Path)

	recent, err := repo.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, id2, recent[0].ID)
}

func TestEventRepository_StoresNoClassificationColumns(t *testing.T) {
	repo := setupTestRepo(t, ":memory:")

	rows, err := repo.db.Query("SELECT * FROM raw_traffic")
	require.NoError(t, err)
	defer rows.Close()

	cols, err := rows.Columns()
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "timestamp", "ip", "user_agent", "path", "status", "referer"}, cols)
}

func TestEventRepository_SurvivesReopen(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "traffic.db")
	ctx := context.Background()

	repo := setupTestRepo(t, dsn)
	_, err := repo.Insert(ctx, sampleEvent("/a"))
	require.NoError(t, err)
	require.NoError(t, repo.db.Close())

	reopened := setupTestRepo(t, dsn)
	n, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestEventRepository_InsertFailsOnClosedDB(t *testing.T) {
	repo := setupTestRepo(t, ":memory:")
	require.NoError(t, repo.db.Close())

	_, err := repo.Insert(context.Background(), sampleEvent("/"))
	assert.Error(t, err)
}
