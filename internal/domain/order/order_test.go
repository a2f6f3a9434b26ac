package order

import (
	"errors"
	"reflect"
	"testing"

	"pgregory.net/rapid"

	"github.com/akriventsev/checkout/internal/events"
)

func testItems() []Item {
	return []Item{
		{ProductID: "prod-1", VariantID: "var-1", Name: "Keyboard", Quantity: 1, UnitPrice: 5000},
		{ProductID: "prod-2", VariantID: "var-1", Name: "Mouse", Quantity: 2, UnitPrice: 1500},
	}
}

func testAddress() Address {
	return Address{Country: "RU", City: "Moscow", Street: "Tverskaya", Building: "1", PostalCode: "125009"}
}

func newCreatedOrder(t *testing.T) *Order {
	t.Helper()
	o := NewOrder("order-1")
	if err := o.Create("customer-1", testItems(), testAddress(), testAddress(), 500, 800); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return o
}

// orderInStatus проводит заказ по жизненному циклу до указанного статуса
func orderInStatus(t *testing.T, status Status) *Order {
	t.Helper()
	o := newCreatedOrder(t)

	steps := map[Status][]func() error{
		StatusCreated:   {},
		StatusConfirmed: {o.Confirm},
		StatusPaymentPending: {
			o.Confirm,
			func() error { return o.RecordPaymentPending("pay-1") },
		},
		StatusPaid: {
			o.Confirm,
			func() error { return o.RecordPaymentPending("pay-1") },
			func() error { return o.RecordPaymentSuccess("pay-1") },
		},
		StatusCancelled: {
			func() error { return o.Cancel("customer", "changed mind") },
		},
	}

	if path, ok := steps[status]; ok {
		for _, step := range path {
			if err := step(); err != nil {
				t.Fatalf("failed to reach status %s: %v", status, err)
			}
		}
		return o
	}

	// Дальние статусы строятся поверх paid
	base := []func() error{
		o.Confirm,
		func() error { return o.RecordPaymentPending("pay-1") },
		func() error { return o.RecordPaymentSuccess("pay-1") },
		o.MarkProcessing,
	}
	extra := map[Status][]func() error{
		StatusProcessing: {},
		StatusPartiallyShipped: {
			func() error {
				return o.RecordPartialShipment(Shipment{TrackingNumber: "trk-1", Carrier: "dhl", ProductIDs: []string{"prod-1"}})
			},
		},
		StatusShipped: {
			func() error { return o.RecordShipment(Shipment{TrackingNumber: "trk-2", Carrier: "dhl"}) },
		},
		StatusDelivered: {
			func() error { return o.RecordShipment(Shipment{TrackingNumber: "trk-2", Carrier: "dhl"}) },
			o.RecordDelivery,
		},
		StatusCompleted: {
			func() error { return o.RecordShipment(Shipment{TrackingNumber: "trk-2", Carrier: "dhl"}) },
			o.RecordDelivery,
			o.Complete,
		},
		StatusReturnRequested: {
			func() error { return o.RecordShipment(Shipment{TrackingNumber: "trk-2", Carrier: "dhl"}) },
			o.RecordDelivery,
			func() error { return o.RequestReturn("defective") },
		},
		StatusReturnApproved: {
			func() error { return o.RecordShipment(Shipment{TrackingNumber: "trk-2", Carrier: "dhl"}) },
			o.RecordDelivery,
			func() error { return o.RequestReturn("defective") },
			func() error { return o.ApproveReturn("manager-1") },
		},
		StatusReturned: {
			func() error { return o.RecordShipment(Shipment{TrackingNumber: "trk-2", Carrier: "dhl"}) },
			o.RecordDelivery,
			func() error { return o.RequestReturn("defective") },
			func() error { return o.ApproveReturn("manager-1") },
			o.RecordReturn,
		},
		StatusRefunded: {
			func() error { return o.RecordShipment(Shipment{TrackingNumber: "trk-2", Carrier: "dhl"}) },
			o.RecordDelivery,
			func() error { return o.RequestReturn("defective") },
			func() error { return o.ApproveReturn("manager-1") },
			o.RecordReturn,
			o.Refund,
		},
	}

	path, ok := extra[status]
	if !ok {
		t.Fatalf("no path to status %s", status)
	}
	for _, step := range append(base, path...) {
		if err := step(); err != nil {
			t.Fatalf("failed to reach status %s: %v", status, err)
		}
	}
	return o
}

func TestOrderCreate(t *testing.T) {
	o := newCreatedOrder(t)

	if o.Status() != StatusCreated {
		t.Errorf("expected created status, got %s", o.Status())
	}
	if len(o.Items()) != 2 {
		t.Errorf("expected 2 items, got %d", len(o.Items()))
	}

	pricing := o.Pricing()
	if pricing.Subtotal != 8000 {
		t.Errorf("expected subtotal 8000, got %d", pricing.Subtotal)
	}
	if pricing.Total != 9300 {
		t.Errorf("expected total 9300, got %d", pricing.Total)
	}
	if len(o.UncommittedEvents()) != 1 {
		t.Errorf("create must raise exactly one event, got %d", len(o.UncommittedEvents()))
	}
}

func TestOrderCreateValidation(t *testing.T) {
	o := NewOrder("order-1")
	if err := o.Create("customer-1", nil, testAddress(), testAddress(), 0, 0); !errors.Is(err, ErrEmptyOrder) {
		t.Errorf("expected ErrEmptyOrder, got %v", err)
	}

	o = NewOrder("order-2")
	items := testItems()
	items[0].Quantity = 0
	if err := o.Create("customer-1", items, testAddress(), testAddress(), 0, 0); !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("expected ErrInvalidQuantity, got %v", err)
	}

	o = newCreatedOrder(t)
	if err := o.Create("customer-1", testItems(), testAddress(), testAddress(), 0, 0); !errors.Is(err, ErrOrderAlreadyCreated) {
		t.Errorf("expected ErrOrderAlreadyCreated, got %v", err)
	}
}

func TestOrderItemsMutableOnlyInCreated(t *testing.T) {
	o := newCreatedOrder(t)

	newItem := Item{ProductID: "prod-3", VariantID: "var-1", Name: "Monitor", Quantity: 1, UnitPrice: 20000}
	if err := o.AddItem(newItem); err != nil {
		t.Fatalf("AddItem in created must succeed: %v", err)
	}
	if o.Pricing().Subtotal != 28000 {
		t.Errorf("pricing not recalculated after add: %d", o.Pricing().Subtotal)
	}

	if err := o.UpdateItemQuantity("prod-2", "var-1", 3); err != nil {
		t.Fatalf("UpdateItemQuantity failed: %v", err)
	}
	if o.Pricing().Subtotal != 29500 {
		t.Errorf("pricing not recalculated after update: %d", o.Pricing().Subtotal)
	}

	if err := o.RemoveItem("prod-3", "var-1"); err != nil {
		t.Fatalf("RemoveItem failed: %v", err)
	}
	if err := o.RemoveItem("missing", "var-1"); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("expected ErrItemNotFound, got %v", err)
	}

	if err := o.ApplyCoupon(Coupon{Code: "SALE10", Discount: 1000}); err != nil {
		t.Fatalf("ApplyCoupon failed: %v", err)
	}
	if o.Pricing().Discount != 1000 {
		t.Errorf("coupon discount not applied: %d", o.Pricing().Discount)
	}

	if err := o.Confirm(); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if err := o.AddItem(newItem); !errors.Is(err, ErrItemsLocked) {
		t.Errorf("expected ErrItemsLocked after confirm, got %v", err)
	}
	if err := o.ApplyCoupon(Coupon{Code: "SALE20", Discount: 2000}); !errors.Is(err, ErrItemsLocked) {
		t.Errorf("expected ErrItemsLocked after confirm, got %v", err)
	}
}

// Мутации состояния не должны задевать payload уже поднятых событий:
// история обязана воспроизводиться на любую версию без искажений
func TestOrderMutationDoesNotAliasEventPayload(t *testing.T) {
	o := newCreatedOrder(t)
	created, ok := o.UncommittedEvents()[0].(*OrderCreatedEvent)
	if !ok {
		t.Fatalf("expected OrderCreatedEvent, got %T", o.UncommittedEvents()[0])
	}

	if err := o.UpdateItemQuantity("prod-2", "var-1", 7); err != nil {
		t.Fatalf("UpdateItemQuantity failed: %v", err)
	}
	if err := o.Confirm(); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}

	if created.Items[1].Quantity != 2 {
		t.Fatalf("created payload mutated: quantity %d, want 2", created.Items[1].Quantity)
	}

	replayed := NewOrder("order-1")
	if err := replayed.LoadFromHistory([]events.Event{created}); err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if got := replayed.Items()[1].Quantity; got != 2 {
		t.Errorf("version-1 quantity = %d, want 2", got)
	}
}

// Неуспешный платеж возвращает заказ в confirmed для повторной оплаты,
// а не отменяет его
func TestOrderPaymentRetryPath(t *testing.T) {
	o := orderInStatus(t, StatusPaymentPending)

	if err := o.RecordPaymentFailure("pay-1", "card declined"); err != nil {
		t.Fatalf("RecordPaymentFailure failed: %v", err)
	}
	if o.Status() != StatusConfirmed {
		t.Fatalf("expected confirmed after payment failure, got %s", o.Status())
	}

	if err := o.RecordPaymentPending("pay-2"); err != nil {
		t.Fatalf("retry payment failed: %v", err)
	}
	if err := o.RecordPaymentSuccess("pay-2"); err != nil {
		t.Fatalf("RecordPaymentSuccess failed: %v", err)
	}
	if o.Status() != StatusPaid {
		t.Errorf("expected paid, got %s", o.Status())
	}
}

func TestOrderTransitionTotality(t *testing.T) {
	commands := []struct {
		name   string
		target Status
		invoke func(o *Order) error
		// legal перекрывает таблицу для команд с дополнительными условиями
		legal func(from Status) bool
	}{
		{"Confirm", StatusConfirmed, func(o *Order) error { return o.Confirm() },
			func(from Status) bool { return from == StatusCreated }},
		{"RecordPaymentPending", StatusPaymentPending, func(o *Order) error { return o.RecordPaymentPending("p") }, nil},
		{"RecordPaymentSuccess", StatusPaid, func(o *Order) error { return o.RecordPaymentSuccess("p") }, nil},
		{"RecordPaymentFailure", StatusConfirmed, func(o *Order) error { return o.RecordPaymentFailure("p", "r") },
			func(from Status) bool { return from == StatusPaymentPending }},
		{"MarkProcessing", StatusProcessing, func(o *Order) error { return o.MarkProcessing() }, nil},
		{"RecordPartialShipment", StatusPartiallyShipped, func(o *Order) error {
			return o.RecordPartialShipment(Shipment{TrackingNumber: "t", ProductIDs: []string{"prod-1"}})
		}, nil},
		{"RecordShipment", StatusShipped, func(o *Order) error {
			return o.RecordShipment(Shipment{TrackingNumber: "t"})
		}, nil},
		{"RecordDelivery", StatusDelivered, func(o *Order) error { return o.RecordDelivery() }, nil},
		{"Complete", StatusCompleted, func(o *Order) error { return o.Complete() }, nil},
		{"RequestReturn", StatusReturnRequested, func(o *Order) error { return o.RequestReturn("r") }, nil},
		{"ApproveReturn", StatusReturnApproved, func(o *Order) error { return o.ApproveReturn("m") }, nil},
		{"RecordReturn", StatusReturned, func(o *Order) error { return o.RecordReturn() }, nil},
		{"Refund", StatusRefunded, func(o *Order) error { return o.Refund() }, nil},
		{"Cancel", StatusCancelled, func(o *Order) error { return o.Cancel("a", "r") }, nil},
	}

	for _, from := range AllStatuses() {
		for _, cmd := range commands {
			o := orderInStatus(t, from)
			versionBefore := o.Version()

			legal := CanTransition(from, cmd.target)
			if cmd.legal != nil {
				legal = cmd.legal(from)
			}
			// Повторная отмена и повторная фиксация оплаты безвредны
			idempotent := (cmd.name == "Cancel" && from == StatusCancelled) ||
				(cmd.name == "RecordPaymentSuccess" && from == StatusPaid)

			err := cmd.invoke(o)
			switch {
			case idempotent:
				if err != nil {
					t.Errorf("%s from %s must be a no-op, got %v", cmd.name, from, err)
				}
				if o.Version() != versionBefore {
					t.Errorf("%s from %s must not raise events", cmd.name, from)
				}
			case legal:
				if err != nil {
					t.Errorf("%s from %s must succeed, got %v", cmd.name, from, err)
				}
				if o.Status() != cmd.target {
					t.Errorf("%s from %s: expected status %s, got %s", cmd.name, from, cmd.target, o.Status())
				}
				if o.Version() != versionBefore+1 {
					t.Errorf("%s from %s must raise exactly one event", cmd.name, from)
				}
			default:
				if !IsInvalidTransition(err) {
					t.Errorf("%s from %s: expected InvalidTransitionError, got %v", cmd.name, from, err)
				}
				if o.Status() != from {
					t.Errorf("%s from %s: rejected command changed status to %s", cmd.name, from, o.Status())
				}
				if o.Version() != versionBefore {
					t.Errorf("%s from %s: rejected command raised events", cmd.name, from)
				}
			}
		}
	}
}

func TestOrderCancelOnlyBeforeProcessing(t *testing.T) {
	for _, from := range []Status{StatusCreated, StatusConfirmed, StatusPaymentPending, StatusPaid} {
		o := orderInStatus(t, from)
		if err := o.Cancel("admin", "fraud"); err != nil {
			t.Errorf("Cancel from %s must succeed: %v", from, err)
		}
		if o.Cancellation() == nil || o.Cancellation().Reason != "fraud" {
			t.Errorf("cancellation record not stored for %s", from)
		}
	}

	for _, from := range []Status{StatusProcessing, StatusShipped, StatusDelivered, StatusCompleted} {
		o := orderInStatus(t, from)
		if err := o.Cancel("admin", "fraud"); !IsInvalidTransition(err) {
			t.Errorf("Cancel from %s must fail with InvalidTransitionError, got %v", from, err)
		}
	}
}

func TestOrderShipmentUpdatesItemStatus(t *testing.T) {
	o := orderInStatus(t, StatusProcessing)

	if err := o.RecordPartialShipment(Shipment{TrackingNumber: "trk-1", ProductIDs: []string{"prod-1"}}); err != nil {
		t.Fatalf("RecordPartialShipment failed: %v", err)
	}
	items := o.Items()
	if items[0].Status != ItemStatusShipped {
		t.Errorf("shipped item must be marked shipped, got %s", items[0].Status)
	}
	if items[1].Status != ItemStatusPending {
		t.Errorf("unshipped item must stay pending, got %s", items[1].Status)
	}

	if err := o.RecordShipment(Shipment{TrackingNumber: "trk-2"}); err != nil {
		t.Fatalf("RecordShipment failed: %v", err)
	}
	for _, item := range o.Items() {
		if item.Status != ItemStatusShipped {
			t.Errorf("item %s must be shipped, got %s", item.ProductID, item.Status)
		}
	}
}

func TestOrderRefundAfterCancellation(t *testing.T) {
	o := orderInStatus(t, StatusCancelled)
	if err := o.Refund(); err != nil {
		t.Fatalf("Refund from cancelled must succeed: %v", err)
	}
	if o.Status() != StatusRefunded {
		t.Errorf("expected refunded, got %s", o.Status())
	}
}

func orderSnapshot(o *Order) map[string]interface{} {
	return map[string]interface{}{
		"customer": o.CustomerID(),
		"status":   o.Status(),
		"items":    o.Items(),
		"pricing":  o.Pricing(),
		"version":  o.Version(),
	}
}

// Повторное воспроизведение одной и той же истории из пустого состояния
// дает идентичное состояние агрегата
func TestOrderReplayDeterminism(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		itemCount := rapid.IntRange(1, 4).Draw(rt, "item_count")
		items := make([]Item, 0, itemCount)
		for i := 0; i < itemCount; i++ {
			items = append(items, Item{
				ProductID: rapid.StringMatching(`prod-[a-z]{3}`).Draw(rt, "product_id"),
				VariantID: "var-1",
				Name:      "Item",
				Quantity:  int64(rapid.IntRange(1, 10).Draw(rt, "quantity")),
				UnitPrice: int64(rapid.IntRange(0, 100000).Draw(rt, "unit_price")),
			})
		}

		source := NewOrder("order-1")
		if err := source.Create("customer-1", items, testAddress(), testAddress(), 500, 800); err != nil {
			rt.Fatalf("Create failed: %v", err)
		}
		if rapid.Bool().Draw(rt, "confirm") {
			if err := source.Confirm(); err != nil {
				rt.Fatalf("Confirm failed: %v", err)
			}
			if rapid.Bool().Draw(rt, "pay") {
				if err := source.RecordPaymentPending("pay-1"); err != nil {
					rt.Fatalf("RecordPaymentPending failed: %v", err)
				}
			}
		}

		history := make([]events.Event, len(source.UncommittedEvents()))
		copy(history, source.UncommittedEvents())

		first := NewOrder("order-1")
		if err := first.LoadFromHistory(history); err != nil {
			rt.Fatalf("first replay failed: %v", err)
		}
		second := NewOrder("order-1")
		if err := second.LoadFromHistory(history); err != nil {
			rt.Fatalf("second replay failed: %v", err)
		}

		if !reflect.DeepEqual(orderSnapshot(first), orderSnapshot(second)) {
			rt.Fatalf("replay is not deterministic:\nfirst:  %+v\nsecond: %+v",
				orderSnapshot(first), orderSnapshot(second))
		}
		if !reflect.DeepEqual(orderSnapshot(first), orderSnapshot(source)) {
			rt.Fatalf("replayed state differs from source:\nsource: %+v\nreplay: %+v",
				orderSnapshot(source), orderSnapshot(first))
		}
	})
}
