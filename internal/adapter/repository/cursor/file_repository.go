// Package cursor persists the ingestion cursor in a small local file.
package cursor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/V4T54L/baitwatch/internal/domain"
)

const filePerm = 0644

// FileRepository stores the cursor as JSON. Saves go through a temp file,
// fsync and rename so a crash leaves either the old or the new cursor.
type FileRepository struct {
	path   string
	logger *slog.Logger
}

var _ domain.CursorRepository = (*FileRepository)(nil)

// NewFileRepository creates the parent directory of path if needed.
func NewFileRepository(path string, logger *slog.Logger) (*FileRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cursor directory for %s: %w", path, err)
	}
	return &FileRepository{
		path:   path,
		logger: logger.With("component", "cursor_file", "path", path),
	}, nil
}

// Load reads the cursor, returning domain.ErrCursorNotFound if none was saved.
func (r *FileRepository) Load(ctx context.Context) (domain.Cursor, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.Cursor{}, domain.ErrCursorNotFound
		}
		return domain.Cursor{}, fmt.Errorf("failed to read cursor: %w", err)
	}

	var c domain.Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return domain.Cursor{}, fmt.Errorf("failed to decode cursor %s: %w", r.path, err)
	}
	if c.Offset < 0 {
		return domain.Cursor{}, fmt.Errorf("cursor %s has negative offset %d", r.path, c.Offset)
	}
	return c, nil
}

// Save atomically replaces the cursor file.
func (r *FileRepository) Save(ctx context.Context, c domain.Cursor) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode cursor: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(r.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp cursor: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp cursor: %w", err)
	}
	if err := tmp.Chmod(filePerm); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod temp cursor: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp cursor: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp cursor: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		return fmt.Errorf("failed to replace cursor: %w", err)
	}

	if d, err := os.Open(dir); err == nil {
		if err := d.Sync(); err != nil {
			r.logger.Debug("failed to sync cursor directory", "error", err)
		}
		d.Close()
	}
	return nil
}
