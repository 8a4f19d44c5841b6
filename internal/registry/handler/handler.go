package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"poe/internal/platform/metrics"
	"poe/internal/platform/middleware"
	"poe/internal/registry/models"
	id "poe/pkg/domain"
	dErrors "poe/pkg/domain-errors"
	"poe/pkg/platform/httputil"
	"poe/pkg/requestcontext"
)

const maxBodyBytes = 16 << 10

// Service defines the registry operations exposed over HTTP.
type Service interface {
	CreateRecord(ctx context.Context, record models.Record, caller id.AccountID) (*models.Entry, error)
	DeleteRecord(ctx context.Context, record models.Record, caller id.AccountID) (models.RecordID, error)
	TransferRecord(ctx context.Context, record models.Record, caller, recipient id.AccountID) (*models.Entry, error)
	Lookup(ctx context.Context, record models.Record) (*models.Entry, error)
	LookupByID(ctx context.Context, rid models.RecordID) (*models.Entry, error)
}

// Handler handles the /v1/records endpoints.
type Handler struct {
	logger       *slog.Logger
	registry     Service
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
	timeout      time.Duration
}

// New creates a new registry Handler.
func New(
	registry Service,
	logger *slog.Logger,
	metrics *metrics.Metrics,
	jwtValidator middleware.JWTValidator,
	timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Handler{
		logger:       logger,
		registry:     registry,
		metrics:      metrics,
		jwtValidator: jwtValidator,
		timeout:      timeout,
	}
}

// Register registers the registry routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1/records", func(rr chi.Router) {
		rr.Use(middleware.Recovery(h.logger, h.metrics))
		rr.Use(middleware.RequestID)
		rr.Use(middleware.RequestTime)
		rr.Use(middleware.ClientMetadata)
		rr.Use(middleware.Logger(h.logger))
		rr.Use(middleware.Timeout(h.timeout))
		rr.Use(middleware.ContentTypeJSON)
		rr.Use(middleware.LatencyMiddleware(h.metrics))

		// Lookups are public: existence of an entry is the proof.
		rr.Post("/lookup", h.handleLookup)
		rr.Get("/{recordID}", h.handleLookupByID)

		rr.Group(func(authed chi.Router) {
			authed.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
			authed.Post("/", h.handleCreate)
			authed.Post("/delete", h.handleDelete)
			authed.Post("/transfer", h.handleTransfer)
		})
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req models.RecordRequest
	if !h.decode(w, r, &req) {
		return
	}
	record, err := req.ToRecord()
	if err != nil {
		h.writeError(ctx, w, "create", err)
		return
	}

	entry, err := h.registry.CreateRecord(ctx, record, caller)
	if err != nil {
		h.writeError(ctx, w, "create", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req models.RecordRequest
	if !h.decode(w, r, &req) {
		return
	}
	record, err := req.ToRecord()
	if err != nil {
		h.writeError(ctx, w, "delete", err)
		return
	}

	if _, err := h.registry.DeleteRecord(ctx, record, caller); err != nil {
		h.writeError(ctx, w, "delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req models.TransferRequest
	if !h.decode(w, r, &req) {
		return
	}
	record, err := req.ToRecord()
	if err != nil {
		h.writeError(ctx, w, "transfer", err)
		return
	}
	recipient, err := req.Recipient()
	if err != nil {
		h.writeError(ctx, w, "transfer", err)
		return
	}

	entry, err := h.registry.TransferRecord(ctx, record, caller, recipient)
	if err != nil {
		h.writeError(ctx, w, "transfer", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.RecordRequest
	if !h.decode(w, r, &req) {
		return
	}
	record, err := req.ToRecord()
	if err != nil {
		h.writeError(ctx, w, "lookup", err)
		return
	}

	entry, err := h.registry.Lookup(ctx, record)
	if err != nil {
		h.writeError(ctx, w, "lookup", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleLookupByID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rid, err := models.ParseRecordID(chi.URLParam(r, "recordID"))
	if err != nil {
		h.writeError(ctx, w, "lookup", err)
		return
	}

	entry, err := h.registry.LookupByID(ctx, rid)
	if err != nil {
		h.writeError(ctx, w, "lookup", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entry)
}

// caller returns the account bound by RequireAuth.
func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (id.AccountID, bool) {
	ctx := r.Context()
	caller := requestcontext.Caller(ctx)
	if caller.IsNil() {
		// RequireAuth guards every route that reaches here.
		h.logger.ErrorContext(ctx, "caller missing from context despite auth middleware",
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return "", false
	}
	return caller, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	ctx := r.Context()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.logger.WarnContext(ctx, "invalid registry request",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return false
	}
	return true
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	code, _ := dErrors.CodeOf(err)
	if code == dErrors.CodeInternal || code == "" {
		h.logger.ErrorContext(ctx, "registry request failed",
			"op", op,
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}
