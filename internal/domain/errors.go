package domain

import "errors"

var (
	// ErrMalformedLine marks a log line that does not match the access-log layout.
	// It is a data-level error: the line is skipped and counted.
	ErrMalformedLine = errors.New("malformed log line")

	// ErrInvalidSignatures marks a signature configuration that must prevent startup.
	ErrInvalidSignatures = errors.New("invalid signature configuration")

	// ErrEventDropped is returned when an event could not be persisted after
	// all retries were exhausted.
	ErrEventDropped = errors.New("event dropped after exhausting retries")

	// ErrCursorNotFound is returned when no cursor has been persisted yet.
	ErrCursorNotFound = errors.New("cursor not found")
)
