package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"poe/internal/registry/metrics"
	"poe/internal/registry/models"
	id "poe/pkg/domain"
	dErrors "poe/pkg/domain-errors"
	"poe/pkg/requestcontext"
)

// Store is the ownership map keyed by content identity.
// Get returns sentinel.ErrNotFound when no entry exists. Insert overwrites.
// Remove of an absent key is a no-op.
type Store interface {
	Contains(ctx context.Context, rid models.RecordID) (bool, error)
	Get(ctx context.Context, rid models.RecordID) (*models.Ownership, error)
	Insert(ctx context.Context, rid models.RecordID, entry models.Ownership) error
	Remove(ctx context.Context, rid models.RecordID) error
}

// StoreTx provides the transactional boundary for registry mutations.
// Writes made through the store passed to fn, and events appended with the
// ctx passed to fn, become visible together when fn returns nil and are
// discarded when it returns an error. Implementations serialise operations.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}

// HeightSource supplies the ledger height at which an operation applies.
type HeightSource interface {
	Height(ctx context.Context) (id.BlockNumber, error)
}

// EventSink receives one event per successful operation, in application order.
// Append is called inside the transaction with the transaction's context.
type EventSink interface {
	Append(ctx context.Context, event models.Event) error
}

const (
	opCreate   = "create"
	opDelete   = "delete"
	opTransfer = "transfer"
	opLookup   = "lookup"
)

// Service applies create, delete and transfer to the ownership registry.
type Service struct {
	records Store
	tx      StoreTx
	heights HeightSource
	sink    EventSink
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTracer enables spans around each operation. Without it spans are no-ops.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// New constructs a Service. records serves lookups outside transactions;
// tx serves every mutation.
func New(records Store, tx StoreTx, heights HeightSource, sink EventSink, opts ...Option) *Service {
	s := &Service{
		records: records,
		tx:      tx,
		heights: heights,
		sink:    sink,
		logger:  slog.Default(),
		tracer:  noop.NewTracerProvider().Tracer(""),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) startSpan(ctx context.Context, op string) (context.Context, trace.Span, time.Time) {
	ctx, span := s.tracer.Start(ctx, "registry."+op)
	return ctx, span, time.Now()
}

// finish records the outcome of an operation on the span, the metrics and the log.
func (s *Service) finish(ctx context.Context, span trace.Span, op string, start time.Time, err error) {
	defer span.End()
	outcome := "ok"
	if err != nil {
		outcome = string(dErrors.CodeInternal)
		if code, ok := dErrors.CodeOf(err); ok {
			outcome = string(code)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		if dErrors.HasCode(err, dErrors.CodeInternal) {
			s.logger.ErrorContext(ctx, "registry operation failed", "op", op, "error", err)
		} else {
			s.logger.InfoContext(ctx, "registry operation rejected", "op", op, "reason", outcome, "error", err.Error())
		}
	}
	span.SetAttributes(attribute.String("registry.outcome", outcome))
	if s.metrics != nil {
		s.metrics.ObserveOperation(op, outcome, start)
	}
}

func (s *Service) height(ctx context.Context) (id.BlockNumber, error) {
	h, err := s.heights.Height(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read ledger height")
	}
	return h, nil
}

func (s *Service) emit(ctx context.Context, event models.Event) error {
	event.RequestID = requestcontext.RequestID(ctx)
	if err := s.sink.Append(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record event")
	}
	return nil
}

// internal classifies an error returned from inside a transaction. Coded
// errors pass through; anything else is an infrastructure failure.
func internal(err error, msg string) error {
	if _, ok := dErrors.CodeOf(err); ok {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func validateAccount(account id.AccountID, role string) error {
	if _, err := id.ParseAccountID(account.String()); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid "+role)
	}
	return nil
}

func (s *Service) logAudit(ctx context.Context, event models.EventKind, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	if tokenID := requestcontext.TokenID(ctx); tokenID != "" {
		attributes = append(attributes, "token_id", tokenID)
	}
	if clientIP := requestcontext.ClientIP(ctx); clientIP != "" {
		attributes = append(attributes, "client_ip", clientIP)
	}
	args := append(attributes, "event", event.String(), "log_type", "audit")
	s.logger.InfoContext(ctx, event.String(), args...)
}
