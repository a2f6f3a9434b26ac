package order

import (
	"time"

	"github.com/akriventsev/checkout/internal/events"
	"github.com/akriventsev/checkout/internal/eventsourcing"
)

// Типы событий жизненного цикла заказа
const (
	EventOrderCreated      = "order.created"
	EventItemAdded         = "order.item_added"
	EventItemRemoved       = "order.item_removed"
	EventItemUpdated       = "order.item_updated"
	EventCouponApplied     = "order.coupon_applied"
	EventOrderConfirmed    = "order.confirmed"
	EventPaymentPending    = "order.payment_pending"
	EventPaymentSucceeded  = "order.payment_succeeded"
	EventPaymentFailed     = "order.payment_failed"
	EventProcessingStarted = "order.processing_started"
	EventPartiallyShipped  = "order.partially_shipped"
	EventOrderShipped      = "order.shipped"
	EventOrderDelivered    = "order.delivered"
	EventOrderCompleted    = "order.completed"
	EventReturnRequested   = "order.return_requested"
	EventReturnApproved    = "order.return_approved"
	EventOrderReturned     = "order.returned"
	EventOrderCancelled    = "order.cancelled"
	EventOrderRefunded     = "order.refunded"
)

// OrderCreatedEvent заказ создан
type OrderCreatedEvent struct {
	*events.BaseEvent
	CustomerID      string  `json:"customer_id"`
	Items           []Item  `json:"items"`
	ShippingAddress Address `json:"shipping_address"`
	BillingAddress  Address `json:"billing_address"`
	ShippingCost    int64   `json:"shipping_cost"`
	Tax             int64   `json:"tax"`
	Pricing         Pricing `json:"pricing"`
}

// ItemAddedEvent позиция добавлена в заказ
type ItemAddedEvent struct {
	*events.BaseEvent
	Item    Item    `json:"item"`
	Pricing Pricing `json:"pricing"`
}

// ItemRemovedEvent позиция удалена из заказа
type ItemRemovedEvent struct {
	*events.BaseEvent
	ProductID string  `json:"product_id"`
	VariantID string  `json:"variant_id"`
	Pricing   Pricing `json:"pricing"`
}

// ItemUpdatedEvent количество позиции изменено
type ItemUpdatedEvent struct {
	*events.BaseEvent
	ProductID string  `json:"product_id"`
	VariantID string  `json:"variant_id"`
	Quantity  int64   `json:"quantity"`
	Pricing   Pricing `json:"pricing"`
}

// CouponAppliedEvent купон применен к заказу
type CouponAppliedEvent struct {
	*events.BaseEvent
	Coupon  Coupon  `json:"coupon"`
	Pricing Pricing `json:"pricing"`
}

// OrderConfirmedEvent заказ подтвержден покупателем.
// Событие несет снимок позиций: подписчикам не нужно загружать агрегат,
// чтобы зарезервировать остатки
type OrderConfirmedEvent struct {
	*events.BaseEvent
	Items       []Item    `json:"items"`
	Total       int64     `json:"total"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// PaymentPendingEvent платеж инициирован
type PaymentPendingEvent struct {
	*events.BaseEvent
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
}

// PaymentSucceededEvent платеж успешно завершен
type PaymentSucceededEvent struct {
	*events.BaseEvent
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
}

// PaymentFailedEvent платеж не прошел, заказ возвращается в confirmed для повтора
type PaymentFailedEvent struct {
	*events.BaseEvent
	PaymentID string `json:"payment_id"`
	Reason    string `json:"reason"`
}

// ProcessingStartedEvent заказ передан в обработку
type ProcessingStartedEvent struct {
	*events.BaseEvent
	StartedAt time.Time `json:"started_at"`
}

// PartiallyShippedEvent часть позиций отправлена
type PartiallyShippedEvent struct {
	*events.BaseEvent
	Shipment Shipment `json:"shipment"`
}

// OrderShippedEvent все позиции отправлены
type OrderShippedEvent struct {
	*events.BaseEvent
	Shipment Shipment `json:"shipment"`
}

// OrderDeliveredEvent заказ доставлен
type OrderDeliveredEvent struct {
	*events.BaseEvent
	DeliveredAt time.Time `json:"delivered_at"`
}

// OrderCompletedEvent заказ завершен
type OrderCompletedEvent struct {
	*events.BaseEvent
	CompletedAt time.Time `json:"completed_at"`
}

// ReturnRequestedEvent покупатель запросил возврат
type ReturnRequestedEvent struct {
	*events.BaseEvent
	Reason string `json:"reason"`
}

// ReturnApprovedEvent возврат одобрен
type ReturnApprovedEvent struct {
	*events.BaseEvent
	ApprovedBy string `json:"approved_by"`
}

// OrderReturnedEvent товар получен обратно
type OrderReturnedEvent struct {
	*events.BaseEvent
	ReturnedAt time.Time `json:"returned_at"`
}

// OrderCancelledEvent заказ отменен
type OrderCancelledEvent struct {
	*events.BaseEvent
	Actor       string    `json:"actor"`
	Reason      string    `json:"reason"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// OrderRefundedEvent средства возвращены покупателю
type OrderRefundedEvent struct {
	*events.BaseEvent
	Amount     int64     `json:"amount"`
	RefundedAt time.Time `json:"refunded_at"`
}

// RegisterEvents регистрирует фабрики событий заказа в реестре
func RegisterEvents(registry *eventsourcing.Registry) {
	factories := map[string]eventsourcing.EventFactory{
		EventOrderCreated:      func() events.Event { return &OrderCreatedEvent{BaseEvent: &events.BaseEvent{}} },
		EventItemAdded:         func() events.Event { return &ItemAddedEvent{BaseEvent: &events.BaseEvent{}} },
		EventItemRemoved:       func() events.Event { return &ItemRemovedEvent{BaseEvent: &events.BaseEvent{}} },
		EventItemUpdated:       func() events.Event { return &ItemUpdatedEvent{BaseEvent: &events.BaseEvent{}} },
		EventCouponApplied:     func() events.Event { return &CouponAppliedEvent{BaseEvent: &events.BaseEvent{}} },
		EventOrderConfirmed:    func() events.Event { return &OrderConfirmedEvent{BaseEvent: &events.BaseEvent{}} },
		EventPaymentPending:    func() events.Event { return &PaymentPendingEvent{BaseEvent: &events.BaseEvent{}} },
		EventPaymentSucceeded:  func() events.Event { return &PaymentSucceededEvent{BaseEvent: &events.BaseEvent{}} },
		EventPaymentFailed:     func() events.Event { return &PaymentFailedEvent{BaseEvent: &events.BaseEvent{}} },
		EventProcessingStarted: func() events.Event { return &ProcessingStartedEvent{BaseEvent: &events.BaseEvent{}} },
		EventPartiallyShipped:  func() events.Event { return &PartiallyShippedEvent{BaseEvent: &events.BaseEvent{}} },
		EventOrderShipped:      func() events.Event { return &OrderShippedEvent{BaseEvent: &events.BaseEvent{}} },
		EventOrderDelivered:    func() events.Event { return &OrderDeliveredEvent{BaseEvent: &events.BaseEvent{}} },
		EventOrderCompleted:    func() events.Event { return &OrderCompletedEvent{BaseEvent: &events.BaseEvent{}} },
		EventReturnRequested:   func() events.Event { return &ReturnRequestedEvent{BaseEvent: &events.BaseEvent{}} },
		EventReturnApproved:    func() events.Event { return &ReturnApprovedEvent{BaseEvent: &events.BaseEvent{}} },
		EventOrderReturned:     func() events.Event { return &OrderReturnedEvent{BaseEvent: &events.BaseEvent{}} },
		EventOrderCancelled:    func() events.Event { return &OrderCancelledEvent{BaseEvent: &events.BaseEvent{}} },
		EventOrderRefunded:     func() events.Event { return &OrderRefundedEvent{BaseEvent: &events.BaseEvent{}} },
	}
	for eventType, factory := range factories {
		registry.Register(eventType, factory)
	}
}
