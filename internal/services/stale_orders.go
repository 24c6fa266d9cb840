package services

import (
	"context"
	"time"

	"payment-api/internal/models"
	"payment-api/pkg/logging"
)

// StaleOrderLister finds pending orders created before a cutoff.
type StaleOrderLister interface {
	ListStalePending(ctx context.Context, before time.Time, limit int) ([]models.Order, error)
}

// StaleOrderReporter lists orders stuck in pending for manual reconciliation.
// It never changes order state.
type StaleOrderReporter struct {
	orders StaleOrderLister
	maxAge time.Duration
	limit  int
	now    func() time.Time
}

func NewStaleOrderReporter(orders StaleOrderLister, maxAge time.Duration) *StaleOrderReporter {
	return &StaleOrderReporter{orders: orders, maxAge: maxAge, limit: 200, now: time.Now}
}

// Find returns pending orders older than the configured age, oldest first.
func (r *StaleOrderReporter) Find(ctx context.Context) ([]models.Order, error) {
	return r.orders.ListStalePending(ctx, r.now().Add(-r.maxAge), r.limit)
}

// Run logs every stale order; it is the cron entry point.
func (r *StaleOrderReporter) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	orders, err := r.Find(ctx)
	if err != nil {
		logging.Errorf("Stale order sweep failed: %v", err)
		return
	}
	if len(orders) == 0 {
		return
	}
	for _, o := range orders {
		logging.Warnf("Stale pending order - order: %s, user: %s, amount: %s, age: %s",
			o.OutTradeNo, o.UserID, o.Amount.StringFixed(2), r.now().Sub(o.CreatedAt).Round(time.Second))
	}
	logging.Warnf("Stale order sweep found %d pending orders older than %s", len(orders), r.maxAge)
}
