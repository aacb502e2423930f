package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/V4T54L/baitwatch/internal/domain"
)

const columns = "timestamp, ip, user_agent, path, status, referer"

// EventRepository implements domain.EventRepository on a relational store.
// It writes raw fields only; classification is never stored.
type EventRepository struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

var _ domain.EventRepository = (*EventRepository)(nil)

// NewEventRepository creates a new event repository.
func NewEventRepository(db *sql.DB, dialect Dialect, logger *slog.Logger) *EventRepository {
	return &EventRepository{
		db:      db,
		dialect: dialect,
		logger:  logger.With("component", "event_repository", "dialect", string(dialect)),
	}
}

// Migrate creates the raw_traffic table and its index if missing.
func (r *EventRepository) Migrate(ctx context.Context) error {
	for _, stmt := range r.dialect.schema() {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate raw_traffic: %w", err)
		}
	}
	r.logger.Debug("schema ready")
	return nil
}

// Insert appends one row in its own implicit transaction, so the row is
// durable when Insert returns.
func (r *EventRepository) Insert(ctx context.Context, event domain.RawTrafficEvent) (int64, error) {
	query := "INSERT INTO raw_traffic (" + columns + ") VALUES (" + r.dialect.placeholders(6) + ") RETURNING id"

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		r.encodeTime(event.Timestamp),
		event.IP,
		event.UserAgent,
		event.Path,
		event.Status,
		event.Referer,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert raw_traffic: %w", err)
	}
	return id, nil
}

// Count returns the number of stored rows.
func (r *EventRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM raw_traffic").Scan(&n); err != nil {
		return 0, fmt.Errorf("count raw_traffic: %w", err)
	}
	return n, nil
}

// ListAfter returns up to limit rows with id > afterID in id order. It lets a
// reader page through the table without missing rows appended meanwhile.
func (r *EventRepository) ListAfter(ctx context.Context, afterID int64, limit int) ([]domain.RawTrafficEvent, error) {
	query := "SELECT id, " + columns + " FROM raw_traffic WHERE id > " + r.dialect.placeholder(1) +
		" ORDER BY id ASC LIMIT " + r.dialect.placeholder(2)
	return r.query(ctx, query, afterID, limit)
}

// Recent returns the newest limit rows, newest first.
func (r *EventRepository) Recent(ctx context.Context, limit int) ([]domain.RawTrafficEvent, error) {
	query := "SELECT id, " + columns + " FROM raw_traffic ORDER BY id DESC LIMIT " + r.dialect.placeholder(1)
	return r.query(ctx, query, limit)
}

func (r *EventRepository) query(ctx context.Context, query string, args ...any) ([]domain.RawTrafficEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query raw_traffic: %w", err)
	}
	defer rows.Close()

	var events []domain.RawTrafficEvent
	for rows.Next() {
		var (
			e  domain.RawTrafficEvent
			ts string
		)
		if err := rows.Scan(&e.ID, &ts, &e.IP, &e.UserAgent, &e.Path, &e.Status, &e.Referer); err != nil {
			return nil, fmt.Errorf("scan raw_traffic: %w", err)
		}
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("decode timestamp of row %d: %w", e.ID, err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// encodeTime keeps SQLite timestamps as RFC 3339 text; PostgreSQL
// takes time.Time natively.
func (r *EventRepository) encodeTime(t time.Time) any {
	if r.dialect == SQLite {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return t.UTC()
}
