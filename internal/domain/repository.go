package domain

import "context"

// EventRepository stores raw traffic events in the relational sink.
type EventRepository interface {
	// Insert appends exactly one row and returns its id. The row is durable
	// once Insert returns without error.
	Insert(ctx context.Context, event RawTrafficEvent) (int64, error)

	// Count returns the number of stored rows.
	Count(ctx context.Context) (int64, error)

	// ListAfter returns up to limit rows with id > afterID, ordered by id.
	ListAfter(ctx context.Context, afterID int64, limit int) ([]RawTrafficEvent, error)
}

// CursorRepository persists the ingestion cursor.
type CursorRepository interface {
	// Load returns ErrCursorNotFound when nothing was saved yet.
	Load(ctx context.Context) (Cursor, error)
	Save(ctx context.Context, cursor Cursor) error
}

// DeadLetterRepository keeps events the writer gave up on so they can be
// re-submitted later.
type DeadLetterRepository interface {
	// Write appends an event to the spool.
	Write(ctx context.Context, event RawTrafficEvent, reason string) error

	// Replay hands every spooled event to handler, oldest first, and returns
	// the segments it read. Writes made after Replay land in a new segment.
	Replay(ctx context.Context, handler func(event RawTrafficEvent) error) ([]string, error)

	// Truncate removes the given segments, as returned by Replay.
	Truncate(ctx context.Context, segments []string) error
}
