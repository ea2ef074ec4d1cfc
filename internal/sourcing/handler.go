package sourcing

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/lodestar-scm/lodestar/internal/platform/httpx"
)

// SnapshotInvalidator drops cached reconciliation snapshots after a
// mutation so readers recompute from fresh state.
type SnapshotInvalidator interface {
	Invalidate(ctx context.Context) error
}

// Handler exposes purchase order and packing list read endpoints plus
// the admin cost settlement toggles.
type Handler struct {
	logger      *slog.Logger
	gateway     Gateway
	invalidator SnapshotInvalidator
	now         func() time.Time
}

// NewHandler constructs a Handler. invalidator may be nil.
func NewHandler(logger *slog.Logger, gateway Gateway, invalidator SnapshotInvalidator) *Handler {
	return &Handler{
		logger:      logger,
		gateway:     gateway,
		invalidator: invalidator,
		now:         time.Now,
	}
}

// MountRoutes registers sourcing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/purchase-orders", h.listPurchaseOrders)
	r.Get("/purchase-orders/{id}", h.getPurchaseOrder)
	r.Get("/purchase-orders/{id}/settlement", h.purchaseOrderSettlement)
	r.Post("/purchase-orders/{id}/admin-cost-paid", h.setPurchaseOrderAdminCostPaid)
	r.Get("/packing-lists", h.listPackingLists)
	r.Get("/packing-lists/{id}", h.getPackingList)
	r.Post("/packing-lists/{id}/admin-cost-paid", h.setPackingListAdminCostPaid)
}

func (h *Handler) listPurchaseOrders(w http.ResponseWriter, r *http.Request) {
	filter, err := listFilterFromQuery(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", err.Error())
		return
	}
	orders, err := h.gateway.ListPurchaseOrders(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": orders})
}

func (h *Handler) getPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	order, err := h.gateway.GetPurchaseOrder(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

// settlementView is the computed breakdown for a purchase order, derived
// from the formula set in effect on its order date.
type settlementView struct {
	BasicCostTotal     decimal.Decimal `json:"basic_cost_total"`
	CommissionAmount   decimal.Decimal `json:"commission_amount"`
	FinalPaymentAmount decimal.Decimal `json:"final_payment_amount"`
	AdvanceAmount      decimal.Decimal `json:"advance_amount"`
	BalanceAmount      decimal.Decimal `json:"balance_amount"`
	AdminBillable      decimal.Decimal `json:"admin_billable_amount"`
}

func (h *Handler) purchaseOrderSettlement(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	order, err := h.gateway.GetPurchaseOrder(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, settlementView{
		BasicCostTotal:     order.BasicCostTotal(),
		CommissionAmount:   order.CommissionAmount(),
		FinalPaymentAmount: order.FinalPaymentAmount(),
		AdvanceAmount:      order.EffectiveAdvanceAmount(),
		BalanceAmount:      order.EffectiveBalanceAmount(),
		AdminBillable:      order.AdminBillableAmount(),
	})
}

type adminCostPaidPayload struct {
	Paid bool `json:"paid"`
}

func (h *Handler) setPurchaseOrderAdminCostPaid(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var payload adminCostPaidPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}

	var paidAt *time.Time
	if payload.Paid {
		now := h.now().UTC()
		paidAt = &now
	}
	if err := h.gateway.SetPurchaseOrderAdminCostPaid(r.Context(), id, payload.Paid, paidAt); err != nil {
		h.respondError(w, err)
		return
	}

	h.afterMutation(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listPackingLists(w http.ResponseWriter, r *http.Request) {
	filter, err := listFilterFromQuery(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", err.Error())
		return
	}
	lists, err := h.gateway.ListPackingLists(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": lists})
}

func (h *Handler) getPackingList(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	list, err := h.gateway.GetPackingList(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) setPackingListAdminCostPaid(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var payload adminCostPaidPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}

	var paidAt *time.Time
	if payload.Paid {
		now := h.now().UTC()
		paidAt = &now
	}
	if err := h.gateway.SetPackingListAdminCostPaid(r.Context(), id, payload.Paid, paidAt); err != nil {
		h.respondError(w, err)
		return
	}

	h.afterMutation(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) afterMutation(ctx context.Context) {
	if h.invalidator == nil {
		return
	}
	if err := h.invalidator.Invalidate(ctx); err != nil {
		h.logger.Warn("invalidate recon snapshot", slog.Any("error", err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		return
	}
	h.logger.Error("sourcing handler", slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("id must be a positive integer")
	}
	return id, nil
}

func listFilterFromQuery(r *http.Request) (ListFilter, error) {
	q := r.URL.Query()
	filter := ListFilter{Search: q.Get("search")}
	if raw := q.Get("from"); raw != "" {
		from, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return ListFilter{}, errors.New("from must be YYYY-MM-DD")
		}
		filter.FromDate = &from
	}
	if raw := q.Get("to"); raw != "" {
		to, err := time.Parse("2006-01-02", raw)
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
