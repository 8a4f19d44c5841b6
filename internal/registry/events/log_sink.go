package events

import (
	"context"
	"log/slog"

	"poe/internal/registry/models"
)

// LogSink writes each event as a structured log line. Used when no broker
// is configured.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (l *LogSink) Append(ctx context.Context, event models.Event) error {
	args := []any{
		"event", event.Kind.String(),
		"record_id", event.RecordID.String(),
		"actor", event.Actor.String(),
		"height", uint64(event.Height),
		"log_type", "registry_event",
	}
	if !event.Recipient.IsNil() {
		args = append(args, "recipient", event.Recipient.String())
	}
	if event.RequestID != "" {
		args = append(args, "request_id", event.RequestID)
	}
	l.logger.InfoContext(ctx, "registry event", args...)
	return nil
}

// Fanout appends each event to every sink in order, stopping at the first error.
type Fanout []interface {
	Append(ctx context.Context, event models.Event) error
}

func (f Fanout) Append(ctx context.Context, event models.Event) error {
	for _, sink := range f {
		if err := sink.Append(ctx, event); err != nil {
			return err
		}
	}
	return nil
}
