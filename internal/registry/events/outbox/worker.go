package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"poe/internal/registry/metrics"
)

// Source is the outbox table as seen by the worker.
type Source interface {
	FetchUnpublished(ctx context.Context, limit int) ([]Message, error)
	MarkPublished(ctx context.Context, sequences []int64) error
}

// Pruner deletes rows published before a cutoff.
type Pruner interface {
	PrunePublished(ctx context.Context, cutoff time.Time) (int64, error)
}

// Publisher delivers a batch in order. It returns nil only once every
// message in the batch is durably accepted.
type Publisher interface {
	Publish(ctx context.Context, batch []Message) error
}

const (
	defaultPollInterval = time.Second
	defaultBatchSize    = 100
)

// Worker relays committed outbox rows to a Publisher. Delivery is
// at-least-once: a crash between Publish and MarkPublished republishes the
// batch. Sequence order is preserved because a batch is only marked after it
// is fully published and the next poll starts from the oldest unpublished row.
type Worker struct {
	source    Source
	publisher Publisher
	interval  time.Duration
	batchSize int
	retention time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

type WorkerOption func(*Worker)

func WithPollInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithBatchSize(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

// WithRetention deletes published rows older than d on every poll. Pruning
// needs a source that implements Pruner; d <= 0 disables it.
func WithRetention(d time.Duration) WorkerOption {
	return func(w *Worker) {
		w.retention = d
	}
}

func WithLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) WorkerOption {
	return func(w *Worker) {
		w.metrics = m
	}
}

func NewWorker(source Source, publisher Publisher, opts ...WorkerOption) *Worker {
	w := &Worker{
		source:    source,
		publisher: publisher,
		interval:  defaultPollInterval,
		batchSize: defaultBatchSize,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run polls until ctx is cancelled. Publish failures are logged and retried
// on the next tick.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.Drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.ErrorContext(ctx, "outbox relay failed", "error", err)
		}
		if _, err := w.Prune(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.ErrorContext(ctx, "outbox prune failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Drain publishes batches until the outbox is empty or a step fails, and
// returns the number of messages published.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := w.ProcessBatch(ctx)
		total += n
		if err != nil || n < w.batchSize {
			return total, err
		}
	}
}

// Prune deletes rows published longer ago than the retention period and
// returns how many were removed.
func (w *Worker) Prune(ctx context.Context) (int64, error) {
	pruner, ok := w.source.(Pruner)
	if !ok || w.retention <= 0 {
		return 0, nil
	}
	n, err := pruner.PrunePublished(ctx, w.now().Add(-w.retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		if w.metrics != nil {
			w.metrics.IncrementOutboxPruned(n)
		}
		w.logger.DebugContext(ctx, "outbox pruned", "count", n)
	}
	return n, nil
}

// ProcessBatch publishes at most one batch.
func (w *Worker) ProcessBatch(ctx context.Context) (int, error) {
	batch, err := w.source.FetchUnpublished(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}
	if w.metrics != nil {
		w.metrics.SetOutboxBacklog(len(batch))
	}
	if len(batch) == 0 {
		return 0, nil
	}

	if err := w.publisher.Publish(ctx, batch); err != nil {
		if w.metrics != nil {
			w.metrics.IncrementOutboxFailed()
		}
		return 0, err
	}

	sequences := make([]int64, len(batch))
	for i, msg := range batch {
		sequences[i] = msg.Sequence
	}
	if err := w.source.MarkPublished(ctx, sequences); err != nil {
		return 0, err
	}
	if w.metrics != nil {
		w.metrics.IncrementOutboxPublished(len(batch))
	}
	w.logger.DebugContext(ctx, "outbox batch published",
		"count", len(batch),
		"first_sequence", sequences[0],
		"last_sequence", sequences[len(sequences)-1],
	)
	return len(batch), nil
}
