package events

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"datamarket/pkg/domain"
)

// Source reads committed events after a sequence number.
type Source interface {
	Events(ctx context.Context, after uint64, limit int) ([]domain.Event, error)
}

// DispatcherConfig tunes the polling loop. Zero values take defaults.
type DispatcherConfig struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	// StartAfter is the last sequence already delivered, from a checkpoint.
	StartAfter uint64
}

// Stats summarizes one ProcessOnce pass.
type Stats struct {
	Published    int
	Failed       int
	DeadLettered int
}

// Dispatcher publishes outbox events in sequence order. An event that keeps
// failing is retried on later passes and skipped once it has failed
// MaxAttempts times; nothing after it is published in the meantime.
type Dispatcher struct {
	logger      *slog.Logger
	source      Source
	publisher   Publisher
	interval    time.Duration
	batchSize   int
	maxAttempts int

	mu       sync.Mutex
	cursor   uint64
	attempts int
}

// NewDispatcher constructs the outbox publish loop.
func NewDispatcher(logger *slog.Logger, source Source, publisher Publisher, cfg DispatcherConfig) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &Dispatcher{
		logger:      logger,
		source:      source,
		publisher:   publisher,
		interval:    cfg.Interval,
		batchSize:   cfg.BatchSize,
		maxAttempts: cfg.MaxAttempts,
		cursor:      cfg.StartAfter,
	}
}

// Cursor returns the sequence of the last event delivered or dead-lettered.
func (d *Dispatcher) Cursor() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cursor
}

// Run executes the periodic publish loop until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if _, err := d.ProcessOnce(ctx); err != nil {
			d.logger.ErrorContext(ctx, "outbox iteration failed",
				"module", "events.dispatcher",
				"layer", "adapter",
				"operation", "outbox_process_once",
				"outcome", "failure",
				"error", err,
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ProcessOnce publishes up to one batch of events after the cursor. It stops
// at the first event that fails without being dead-lettered.
func (d *Dispatcher) ProcessOnce(ctx context.Context) (Stats, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var stats Stats
	batch, err := d.source.Events(ctx, d.cursor, d.batchSize)
	if err != nil {
		return stats, err
	}
	for _, event := range batch {
		if err := d.publisher.Publish(ctx, event); err != nil {
			stats.Failed++
			d.attempts++
			if d.attempts >= d.maxAttempts {
				stats.DeadLettered++
				d.logger.ErrorContext(ctx, "outbox event dead-lettered",
					"module", "events.dispatcher",
					"layer", "adapter",
					"operation", "publish_event",
					"outcome", "dead_letter",
					"event_id", event.ID,
					"event_type", string(event.Type),
					"sequence", event.Sequence,
					"attempts", d.attempts,
					"error", err,
				)
				d.advance(event.Sequence)
				continue
			}
			d.logger.WarnContext(ctx, "outbox publish failed; retry scheduled",
				"module", "events.dispatcher",
				"layer", "adapter",
				"operation", "publish_event",
				"outcome", "failure",
				"event_id", event.ID,
				"event_type", string(event.Type),
				"sequence", event.Sequence,
				"attempts", d.attempts,
				"error", err,
			)
			break
		}
		stats.Published++
		d.advance(event.Sequence)
	}
	if len(batch) > 0 {
		d.logger.InfoContext(ctx, "outbox batch processed",
			"module", "events.dispatcher",
			"layer", "adapter",
			"operation", "outbox_process_once",
			"outcome", "success",
			"batch_size", len(batch),
			"published_count", stats.Published,
			"failed_count", stats.Failed,
			"dead_lettered_count", stats.DeadLettered,
			"cursor", d.cursor,
		)
	}
	return stats, nil
}

func (d *Dispatcher) advance(sequence uint64) {
	d.cursor = sequence
	d.attempts = 0
}
