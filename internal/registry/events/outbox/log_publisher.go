package outbox

import (
	"context"
	"log/slog"
)

// LogPublisher writes outbox rows as structured log lines when no broker is
// configured. Published rows are removed later by Worker.Prune.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (l *LogPublisher) Publish(ctx context.Context, batch []Message) error {
	for _, msg := range batch {
		l.logger.InfoContext(ctx, "registry event",
			"event", msg.Kind.String(),
			"event_id", msg.ID.String(),
			"record_id", msg.RecordID.String(),
			"sequence", msg.Sequence,
			"log_type", "registry_event",
		)
	}
	return nil
}
