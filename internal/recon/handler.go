package recon

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lodestar-scm/lodestar/internal/payreq"
	"github.com/lodestar-scm/lodestar/internal/platform/httpx"
	"github.com/lodestar-scm/lodestar/internal/shared"
)

// Handler exposes the reconciliation dashboard and payment history.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers reconciliation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/dashboard", h.dashboard)
	r.Post("/dashboard/refresh", h.refresh)
	r.Get("/history", h.history)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := h.service.Dashboard(r.Context())
	if err != nil {
		h.logger.Error("dashboard", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, dashboard)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	dashboard, err := h.service.Refresh(r.Context())
	if err != nil {
		h.logger.Error("dashboard refresh", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, dashboard)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	filter, err := historyFilterFromQuery(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", err.Error())
		return
	}
	rows, err := h.service.History(r.Context(), filter)
	if err != nil {
		h.logger.Error("payment history", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	p := shared.NewPagination(page, perPage, len(rows))
	start := (p.Page - 1) * p.PerPage
	if start > len(rows) {
		start = len(rows)
	}
	end := start + p.PerPage
	if end > len(rows) {
		end = len(rows)
	}

	httpx.JSON(w, http.StatusOK, map[string]any{
		"items": rows[start:end],
		"pagination": map[string]int{
			"page":        p.Page,
			"per_page":    p.PerPage,
			"total":       p.Total,
			"total_pages": p.TotalPages,
		},
	})
}

func historyFilterFromQuery(r *http.Request) (HistoryFilter, error) {
	q := r.URL.Query()
	filter := HistoryFilter{
		SourceType: payreq.SourceType(q.Get("source_type")),
		State:      PaymentState(q.Get("state")),
		Search:     q.Get("search"),
	}
	if filter.SourceType != "" && !filter.SourceType.Valid() {
		return HistoryFilter{}, errors.New("unknown source type")
	}
	switch filter.State {
	case StateAny, StatePaid, StateUnpaid:
	default:
		return HistoryFilter{}, errors.New("state must be paid or unpaid")
	}
	if raw := q.Get("from"); raw != "" {
		from, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return HistoryFilter{}, errors.New("from must be YYYY-MM-DD")
		}
		filter.FromDate = &from
	}
	if raw := q.Get("to"); raw != "" {
		to, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return HistoryFilter{}, errors.New("to must be YYYY-MM-DD")
		}
		filter.ToDate = &to
	}
	return filter, nil
}
