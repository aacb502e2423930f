package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/baitwatch/internal/domain"
)

const cursorKeyPrefix = "baitwatch:cursor:"

// CursorRepository implements domain.CursorRepository on a Redis string key,
// one key per tailed log path.
type CursorRepository struct {
	client *redis.Client
	key    string
	logger *slog.Logger
}

var _ domain.CursorRepository = (*CursorRepository)(nil)

// NewCursorRepository creates a Redis-backed cursor store for logPath.
func NewCursorRepository(client *redis.Client, logPath string, logger *slog.Logger) *CursorRepository {
	key := CursorKey(logPath)
	return &CursorRepository{
		client: client,
		key:    key,
		logger: logger.With("component", "redis_cursor", "key", key),
	}
}

// CursorKey returns the Redis key holding the cursor of logPath.
func CursorKey(logPath string) string {
	return cursorKeyPrefix + logPath
}

// Load returns domain.ErrCursorNotFound when the key does not exist.
func (r *CursorRepository) Load(ctx context.Context) (domain.Cursor, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Cursor{}, domain.ErrCursorNotFound
		}
		return domain.Cursor{}, fmt.Errorf("failed to read cursor from redis: %w", err)
	}

	var c domain.Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return domain.Cursor{}, fmt.Errorf("failed to decode cursor %s: %w", r.key, err)
	}
	return c, nil
}

// Save overwrites the cursor. Redis persistence (AOF/RDB) governs durability.
func (r *CursorRepository) Save(ctx context.Context, c domain.Cursor) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode cursor: %w", err)
	}
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write cursor to redis: %w", err)
	}
	return nil
}
