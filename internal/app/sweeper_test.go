package app

import (
	"context"
	"testing"
	"time"

	"github.com/akriventsev/checkout/internal/domain/inventory"
)

func TestSweeperReleasesExpiredReservations(t *testing.T) {
	_, _, items := testFixture(t)
	ctx := context.Background()

	err := items.InitializeStock(ctx, InitializeStock{
		ItemID: "item-1", ProductID: "prod-1", VariantID: "var-1", WarehouseID: "wh-1", OnHand: 10,
	})
	if err != nil {
		t.Fatalf("InitializeStock failed: %v", err)
	}

	expired, err := items.ReserveStock(ctx, ReserveStock{
		ItemID: "item-1", OrderID: "order-1", Quantity: 3,
		ExpiresAt: time.Now().UTC().Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("ReserveStock failed: %v", err)
	}
	held, err := items.ReserveStock(ctx, ReserveStock{
		ItemID: "item-1", OrderID: "order-2", Quantity: 2,
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("ReserveStock failed: %v", err)
	}

	source := NewEventStoreExpiredReservations(items, func() []string { return []string{"item-1"} })
	sweeper, err := NewSweeper(DefaultSweeperConfig(), source, items)
	if err != nil {
		t.Fatalf("NewSweeper failed: %v", err)
	}

	released, err := sweeper.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if released != 1 {
		t.Fatalf("expected 1 released reservation, got %d", released)
	}

	item, _ := items.GetItem(ctx, "item-1")
	if item.Available() != 8 {
		t.Errorf("expected available 8 after sweep, got %d", item.Available())
	}
	if _, ok := item.Reservation(expired); ok {
		t.Error("released reservation must be pruned from live state")
	}
	if r, ok := item.Reservation(held); !ok || r.Status != inventory.ReservationActive {
		t.Error("live reservation must survive the sweep")
	}

	// повторный проход ничего не находит
	released, err = sweeper.Sweep(ctx)
	if err != nil {
		t.Fatalf("second Sweep failed: %v", err)
	}
	if released != 0 {
		t.Errorf("expected 0 on second sweep, got %d", released)
	}
}

func TestSweeperSkipsConfirmedReservations(t *testing.T) {
	_, _, items := testFixture(t)
	ctx := context.Background()

	err := items.InitializeStock(ctx, InitializeStock{
		ItemID: "item-1", ProductID: "prod-1", VariantID: "var-1", WarehouseID: "wh-1", OnHand: 10,
	})
	if err != nil {
		t.Fatalf("InitializeStock failed: %v", err)
	}
	reservationID, err := items.ReserveStock(ctx, ReserveStock{
		ItemID: "item-1", OrderID: "order-1", Quantity: 3,
		ExpiresAt: time.Now().UTC().Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("ReserveStock failed: %v", err)
	}
	if err := items.ConfirmReservation(ctx, "item-1", reservationID); err != nil {
		t.Fatalf("ConfirmReservation failed: %v", err)
	}

	source := NewEventStoreExpiredReservations(items, func() []string { return []string{"item-1"} })
	sweeper, err := NewSweeper(DefaultSweeperConfig(), source, items)
	if err != nil {
		t.Fatalf("NewSweeper failed: %v", err)
	}

	released, err := sweeper.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if released != 0 {
		t.Errorf("confirmed reservation must not be swept, released %d", released)
	}
	item, _ := items.GetItem(ctx, "item-1")
	if item.Available() != 7 {
		t.Errorf("expected available 7, got %d", item.Available())
	}
}
