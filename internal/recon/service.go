package recon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/lodestar-scm/lodestar/internal/payreq"
	"github.com/lodestar-scm/lodestar/internal/sourcing"
)

// RequestReader is the slice of the payment request store the aggregator
// consumes.
type RequestReader interface {
	List(ctx context.Context, filter payreq.ListFilter) ([]payreq.PaymentRequest, error)
}

// Service serves the reconciliation dashboard and payment history.
type Service struct {
	sources  sourcing.Gateway
	requests RequestReader
	cache    *Cache
	logger   *slog.Logger
	group    singleflight.Group
	now      func() time.Time
}

// NewService constructs a Service. cache may be nil.
func NewService(sources sourcing.Gateway, requests RequestReader, cache *Cache, logger *slog.Logger) *Service {
	return &Service{
		sources:  sources,
		requests: requests,
		cache:    cache,
		logger:   logger,
		now:      time.Now,
	}
}

// Snapshot reads everything the aggregator needs in one pass.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	orders, err := s.sources.ListPurchaseOrders(ctx, sourcing.ListFilter{})
	if err != nil {
		return Snapshot{}, fmt.Errorf("recon: snapshot purchase orders: %w", err)
	}
	lists, err := s.sources.ListPackingLists(ctx, sourcing.ListFilter{})
	if err != nil {
		return Snapshot{}, fmt.Errorf("recon: snapshot packing lists: %w", err)
	}
	requests, err := s.requests.List(ctx, payreq.ListFilter{})
	if err != nil {
		return Snapshot{}, fmt.Errorf("recon: snapshot requests: %w", err)
	}
	return Snapshot{PurchaseOrders: orders, PackingLists: lists, Requests: requests}, nil
}

// Dashboard returns the reconciliation totals, served from cache when
// possible. Concurrent cache misses collapse into one recomputation.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	if cached, ok, err := s.cache.GetDashboard(ctx); err != nil {
		s.logger.Warn("dashboard cache read failed", slog.Any("error", err))
	} else if ok {
		return cached, nil
	}

	result, err, _ := s.group.Do("dashboard", func() (any, error) {
		return s.Refresh(ctx)
	})
	if err != nil {
		return Dashboard{}, err
	}
	return result.(Dashboard), nil
}

// Refresh recomputes the dashboard from a fresh snapshot and repopulates
// the cache.
func (s *Service) Refresh(ctx context.Context) (Dashboard, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	dashboard := Aggregate(snap, s.now())
	if err := s.cache.PutDashboard(ctx, dashboard); err != nil {
		s.logger.Warn("dashboard cache write failed", slog.Any("error", err))
	}
	return dashboard, nil
}

// Invalidate drops cached dashboards after a mutation.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

// History returns the composite payment history view.
func (s *Service) History(ctx context.Context, filter HistoryFilter) ([]HistoryRow, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return BuildHistory(snap, filter), nil
}
