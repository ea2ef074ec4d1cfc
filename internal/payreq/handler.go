package payreq

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lodestar-scm/lodestar/internal/platform/httpx"
	"github.com/lodestar-scm/lodestar/internal/shared"
	"github.com/lodestar-scm/lodestar/internal/sourcing"
)

const dateLayout = "2006-01-02"

// SnapshotInvalidator drops cached reconciliation snapshots after a
// mutation so readers recompute from fresh state.
type SnapshotInvalidator interface {
	Invalidate(ctx context.Context) error
}

// TaskEnqueuer schedules background snapshot warmups.
type TaskEnqueuer interface {
	EnqueueReconRefresh(ctx context.Context) error
}

// Handler wires payment request HTTP endpoints.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	validator   *validator.Validate
	invalidator SnapshotInvalidator
	enqueuer    TaskEnqueuer
}

// NewHandler constructs a Handler. invalidator and enqueuer may be nil.
func NewHandler(logger *slog.Logger, service *Service, invalidator SnapshotInvalidator, enqueuer TaskEnqueuer) *Handler {
	return &Handler{
		logger:      logger,
		service:     service,
		validator:   validator.New(),
		invalidator: invalidator,
		enqueuer:    enqueuer,
	}
}

// MountRoutes registers payment request routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Delete("/{id}", h.delete)
	r.Post("/{id}/complete", h.complete)
	r.Post("/{id}/revert", h.revert)
	r.Post("/batch/complete", h.batchComplete)
	r.Post("/batch/revert", h.batchRevert)
	r.Get("/source/{sourceType}/{sourceID}", h.listBySource)
}

type createRequestPayload struct {
	SourceType  string          `json:"source_type" validate:"required"`
	SourceID    int64           `json:"source_id" validate:"required,gt=0"`
	PaymentType string          `json:"payment_type" validate:"required"`
	Amount      decimal.Decimal `json:"amount" validate:"required"`
	Memo        string          `json:"memo" validate:"max=500"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var payload createRequestPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	request, err := h.service.Create(r.Context(), CreateInput{
		SourceType:     SourceType(payload.SourceType),
		SourceID:       payload.SourceID,
		PaymentType:    PaymentType(payload.PaymentType),
		Amount:         payload.Amount,
		RequestedBy:    shared.ActorFromContext(r.Context()),
		Memo:           payload.Memo,
		IdempotencyKey: r.Header.Get("X-Idempotency-Key"),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.afterMutation(r.Context())
	httpx.JSON(w, http.StatusCreated, request)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "request id must be a UUID")
		return
	}
	request, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, request)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", err.Error())
		return
	}
	requests, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": requests})
}

func (h *Handler) listBySource(w http.ResponseWriter, r *http.Request) {
	sourceType := SourceType(chi.URLParam(r, "sourceType"))
	if !sourceType.Valid() {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Source Type", "unknown source type")
		return
	}
	sourceID, err := strconv.ParseInt(chi.URLParam(r, "sourceID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Source ID", "source id must be numeric")
		return
	}
	paymentType := PaymentType(r.URL.Query().Get("payment_type"))
	if paymentType != "" && !paymentType.Valid() {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payment Type", "unknown payment type")
		return
	}

	requests, err := h.service.ListBySource(r.Context(), sourceType, sourceID, paymentType)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": requests})
}

type completePayload struct {
	PaymentDate string `json:"payment_date" validate:"required"`
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "request id must be a UUID")
		return
	}
	var payload completePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	paymentDate, err := time.Parse(dateLayout, payload.PaymentDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "payment_date must be YYYY-MM-DD")
		return
	}

	request, err := h.service.Complete(r.Context(), id, paymentDate, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.afterMutation(r.Context())
	httpx.JSON(w, http.StatusOK, request)
}

func (h *Handler) revert(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "request id must be a UUID")
		return
	}
	request, err := h.service.Revert(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.afterMutation(r.Context())
	httpx.JSON(w, http.StatusOK, request)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "request id must be a UUID")
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}

	h.afterMutation(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

type batchCompletePayload struct {
	IDs         []uuid.UUID `json:"ids" validate:"required,min=1"`
	PaymentDate string      `json:"payment_date" validate:"required"`
}

func (h *Handler) batchComplete(w http.ResponseWriter, r *http.Request) {
	var payload batchCompletePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	paymentDate, err := time.Parse(dateLayout, payload.PaymentDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "payment_date must be YYYY-MM-DD")
		return
	}

	affected, err := h.service.BatchComplete(r.Context(), payload.IDs, paymentDate, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.afterMutation(r.Context())
	httpx.JSON(w, http.StatusOK, map[string]int64{"affected_rows": affected})
}

type batchRevertPayload struct {
	IDs []uuid.UUID `json:"ids" validate:"required,min=1"`
}

func (h *Handler) batchRevert(w http.ResponseWriter, r *http.Request) {
	var payload batchRevertPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	affected, err := h.service.BatchRevert(r.Context(), payload.IDs)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.afterMutation(r.Context())
	httpx.JSON(w, http.StatusOK, map[string]int64{"affected_rows": affected})
}

// afterMutation invalidates the dashboard cache and schedules a warmup so
// the next dashboard read is cheap again.
func (h *Handler) afterMutation(ctx context.Context) {
	if h.invalidator != nil {
		if err := h.invalidator.Invalidate(ctx); err != nil {
			h.logger.Warn("invalidate recon snapshot", slog.Any("error", err))
		}
	}
	if h.enqueuer != nil {
		if err := h.enqueuer.EnqueueReconRefresh(ctx); err != nil {
			h.logger.Warn("enqueue recon refresh", slog.Any("error", err))
		}
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, sourcing.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateRequest):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Submission", err.Error())
	case errors.Is(err, ErrStateConflict):
		httpx.Problem(w, http.StatusConflict, "State Conflict", err.Error())
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidPaymentType):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrSourceWrite):
		httpx.Problem(w, http.StatusBadGateway, "Source Update Failed", err.Error())
	default:
		h.logger.Error("payment request handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func filterFromQuery(r *http.Request) (ListFilter, error) {
	q := r.URL.Query()
	filter := ListFilter{
		Status:      RequestStatus(q.Get("status")),
		SourceType:  SourceType(q.Get("source_type")),
		PaymentType: PaymentType(q.Get("payment_type")),
		Search:      q.Get("search"),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return ListFilter{}, errors.New("unknown status")
	}
	if filter.SourceType != "" && !filter.SourceType.Valid() {
		return ListFilter{}, errors.New("unknown source type")
	}
	if filter.PaymentType != "" && !filter.PaymentType.Valid() {
		return ListFilter{}, errors.New("unknown payment type")
	}
	if raw := q.Get("from"); raw != "" {
		from, err := time.Parse(dateLayout, raw)
		if err != nil {
			return ListFilter{}, errors.New("from must be YYYY-MM-DD")
		}
		filter.FromDate = &from
	}
	if raw := q.Get("to"); raw != "" {
		to, err := time.Parse(dateLayout, raw)
		if err != nil {
			return ListFilter{}, errors.New("to must be YYYY-MM-DD")
		}
		filter.ToDate = &to
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return ListFilter{}, errors.New("limit must be a non-negative integer")
		}
		filter.Limit = limit
	}
	return filter, nil
}
