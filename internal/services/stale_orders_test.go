package services

import (
	"context"
	"testing"
	"time"

	"payment-api/internal/database"
	"payment-api/internal/models"
)

func TestStaleOrderReporterFindsOldPendingOrders(t *testing.T) {
	db := newTestDB(t)
	store := database.NewOrderStore(db)
	ctx := context.Background()

	for _, id := range []string{"pending", "paid"} {
		o := oneTimeOrder(id)
		o.Status = models.OrderStatusPending
		o.PaymentType = models.PaymentMethodAlipay
		o.OrderType = models.OrderTypePayment
		if err := store.Create(ctx, o); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := store.UpdateStatus(ctx, "paid", models.OrderStatusPaid); err != nil {
		t.Fatal(err)
	}

	reporter := NewStaleOrderReporter(store, 30*time.Minute)
	found, err := reporter.Find(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 0 {
		t.Fatalf("fresh orders reported stale: %d", len(found))
	}

	reporter.now = func() time.Time { return time.Now().Add(time.Hour) }
	found, err = reporter.Find(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || found[0].OutTradeNo != "pending" {
		t.Fatalf("found = %+v", found)
	}
	reporter.Run()
}
