package ledger

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lodestar-scm/lodestar/internal/platform/httpx"
	"github.com/lodestar-scm/lodestar/internal/shared"
)

// SnapshotInvalidator drops cached reconciliation snapshots after a
// mutation so readers recompute from fresh state.
type SnapshotInvalidator interface {
	Invalidate(ctx context.Context) error
}

// Handler exposes the date-grouped ledger and day-level batch actions.
type Handler struct {
	logger      *slog.Logger
	processor   *Processor
	invalidator SnapshotInvalidator
}

func NewHandler(logger *slog.Logger, processor *Processor, invalidator SnapshotInvalidator) *Handler {
	return &Handler{logger: logger, processor: processor, invalidator: invalidator}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.groups)
	r.Post("/{date}/complete", h.completeDay)
	r.Post("/{date}/revert", h.revertDay)
}

func (h *Handler) groups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.processor.Groups(r.Context())
	if err != nil {
		h.logger.Error("ledger groups", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"groups": groups})
}

func (h *Handler) completeDay(w http.ResponseWriter, r *http.Request) {
	date, err := time.Parse("2006-01-02", chi.URLParam(r, "date"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "date must be YYYY-MM-DD")
		return
	}
	affected, err := h.processor.CompleteDay(r.Context(), date, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("complete day", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	h.afterMutation(r.Context())
	httpx.JSON(w, http.StatusOK, map[string]int64{"affected_rows": affected})
}

func (h *Handler) revertDay(w http.ResponseWriter, r *http.Request) {
	date, err := time.Parse("2006-01-02", chi.URLParam(r, "date"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "date must be YYYY-MM-DD")
		return
	}
	affected, err := h.processor.RevertDay(r.Context(), date)
	if err != nil {
		h.logger.Error("revert day", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	h.afterMutation(r.Context())
	httpx.JSON(w, http.StatusOK, map[string]int64{"affected_rows": affected})
}

func (h *Handler) afterMutation(ctx context.Context) {
	if h.invalidator == nil {
		return
	}
	if err := h.invalidator.Invalidate(ctx); err != nil {
		h.logger.Warn("invalidate recon snapshot", slog.Any("error", err))
	}
}
