package domain

import "time"

// Cursor is the durable ingestion progress marker for the tailed log file.
// Offset always points just past the last fully handled line.
type Cursor struct {
	Fingerprint string    `json:"fingerprint"`
	Offset      int64     `json:"offset"`
	UpdatedAt   time.Time `json:"updated_at"`
}
