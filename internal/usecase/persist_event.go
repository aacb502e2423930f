package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/V4T54L/baitwatch/internal/adapter/metrics"
	"github.com/V4T54L/baitwatch/internal/domain"
)

// WriterConfig bounds the retry behaviour of EventWriter.
type WriterConfig struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// EventWriter appends raw traffic events to the event store, retrying
// transient failures with bounded exponential backoff.
type EventWriter struct {
	repo       domain.EventRepository
	deadLetter domain.DeadLetterRepository
	metrics    *metrics.IngestMetrics
	logger     *slog.Logger
	cfg        WriterConfig

	sleep func(ctx context.Context, d time.Duration) error
}

// NewEventWriter creates a writer. deadLetter may be nil, in which case
// dropped events are only counted and logged.
func NewEventWriter(repo domain.EventRepository, deadLetter domain.DeadLetterRepository, m *metrics.IngestMetrics, cfg WriterConfig, logger *slog.Logger) *EventWriter {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BackoffMax < cfg.BackoffBase {
		cfg.BackoffMax = cfg.BackoffBase
	}
	return &EventWriter{
		repo:       repo,
		deadLetter: deadLetter,
		metrics:    m,
		logger:     logger.With("component", "event_writer"),
		cfg:        cfg,
		sleep:      sleepCtx,
	}
}

// Append persists event. It returns nil once the row is durable,
// domain.ErrEventDropped when every attempt failed, or the context error if
// ctx was cancelled before the event could be written.
func (w *EventWriter) Append(ctx context.Context, event domain.RawTrafficEvent) error {
	var lastErr error
	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		// An insert that has started runs to completion even if ctx is
		// cancelled meanwhile; only the backoff between attempts is interruptible.
		_, err := w.repo.Insert(context.WithoutCancel(ctx), event)
		if err == nil {
			w.metrics.EventsPersisted.Inc()
			return nil
		}
		lastErr = err

		if attempt == w.cfg.MaxAttempts {
			break
		}
		delay := w.backoff(attempt)
		w.logger.Warn("failed to write event, retrying",
			"attempt", attempt,
			"max_attempts", w.cfg.MaxAttempts,
			"retry_in", delay,
			"error", err,
		)
		w.metrics.WriteRetries.Inc()
		if err := w.sleep(ctx, delay); err != nil {
			return err
		}
	}

	w.drop(ctx, event, lastErr)
	return fmt.Errorf("%w: %v", domain.ErrEventDropped, lastErr)
}

func (w *EventWriter) drop(ctx context.Context, event domain.RawTrafficEvent, cause error) {
	w.metrics.EventsDropped.Inc()
	w.logger.Error("dropping event after exhausting retries",
		"attempts", w.cfg.MaxAttempts,
		"ip", event.IP,
		"path", event.Path,
		"error", cause,
	)
	if w.deadLetter == nil {
		return
	}
	if err := w.deadLetter.Write(context.WithoutCancel(ctx), event, cause.Error()); err != nil {
		w.logger.Error("failed to spool dropped event", "error", err)
		return
	}
	w.metrics.DeadLettered.Inc()
}

// backoff returns base * 2^(attempt-1), capped at BackoffMax.
func (w *EventWriter) backoff(attempt int) time.Duration {
	d := w.cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= w.cfg.BackoffMax {
			return w.cfg.BackoffMax
		}
	}
	return d
}

// ReplayDeadLetters re-submits spooled events through the writer. The
// replayed segments are removed only after every event was handled; events
// that are dropped again are spooled anew by Append. An interrupted replay
// leaves the spool in place, so its events are offered again on next start.
func (w *EventWriter) ReplayDeadLetters(ctx context.Context) (int, error) {
	if w.deadLetter == nil {
		return 0, nil
	}

	var pending []domain.RawTrafficEvent
	segments, err := w.deadLetter.Replay(ctx, func(event domain.RawTrafficEvent) error {
		pending = append(pending, event)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read dead-letter spool: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	written := 0
	for _, event := range pending {
		err := w.Append(ctx, event)
		if err == nil {
			written++
			continue
		}
		if errors.Is(err, domain.ErrEventDropped) {
			continue
		}
		w.logger.Warn("dead-letter replay interrupted, keeping spool",
			"total", len(pending),
			"written", written,
		)
		return written, err
	}

	if err := w.deadLetter.Truncate(context.WithoutCancel(ctx), segments); err != nil {
		return written, fmt.Errorf("failed to truncate dead-letter spool: %w", err)
	}
	w.logger.Info("re-submitted dead-lettered events", "total", len(pending), "written", written)
	return written, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
