// Package order реализует Event Sourced агрегат заказа с фиксированной
// таблицей переходов жизненного цикла.
package order

import (
	"fmt"
	"time"

	"github.com/akriventsev/checkout/internal/events"
	"github.com/akriventsev/checkout/internal/eventsourcing"
)

// AggregateType тип агрегата заказа
const AggregateType = "order"

// Order Event Sourced агрегат заказа. Текущее состояние является сверткой
// событий жизненного цикла; каждый принятый переход порождает ровно одно
// событие, и только оно меняет статус при применении
type Order struct {
	*eventsourcing.Aggregate

	customerID      string
	items           []Item
	shippingAddress Address
	billingAddress  Address
	shippingCost    int64
	tax             int64
	coupon          *Coupon
	pricing         Pricing
	status          Status
	cancellation    *Cancellation
	shipments       []Shipment
	paymentID       string
}

// NewOrder создает пустой агрегат заказа
func NewOrder(id string) *Order {
	o := &Order{Aggregate: eventsourcing.NewAggregate(id, AggregateType)}
	o.SetApplier(o)
	return o
}

// CustomerID возвращает идентификатор покупателя
func (o *Order) CustomerID() string { return o.customerID }

// Items возвращает копию позиций заказа
func (o *Order) Items() []Item {
	items := make([]Item, len(o.items))
	copy(items, o.items)
	return items
}

// Status возвращает текущий статус заказа
func (o *Order) Status() Status { return o.status }

// Pricing возвращает сводку стоимости заказа
func (o *Order) Pricing() Pricing { return o.pricing }

// Coupon возвращает примененный купон или nil
func (o *Order) Coupon() *Coupon { return o.coupon }

// Cancellation возвращает запись об отмене или nil
func (o *Order) Cancellation() *Cancellation { return o.cancellation }

// PaymentID возвращает идентификатор последнего платежа
func (o *Order) PaymentID() string { return o.paymentID }

// Shipments возвращает копию списка отправлений
func (o *Order) Shipments() []Shipment {
	shipments := make([]Shipment, len(o.shipments))
	copy(shipments, o.shipments)
	return shipments
}

// Create создает заказ. Заказ должен содержать хотя бы одну позицию,
// цены позиций фиксируются на момент создания
func (o *Order) Create(customerID string, items []Item, shipping, billing Address, shippingCost, tax int64) error {
	if o.status != "" {
		return ErrOrderAlreadyCreated
	}
	if customerID == "" {
		return fmt.Errorf("%w: customer id is required", ErrOrderNotCreated)
	}
	if len(items) == 0 {
		return ErrEmptyOrder
	}
	for i := range items {
		if items[i].Quantity <= 0 {
			return ErrInvalidQuantity
		}
		if items[i].UnitPrice < 0 {
			return ErrInvalidPrice
		}
		items[i].Status = ItemStatusPending
	}

	event := &OrderCreatedEvent{
		BaseEvent:       events.NewBaseEvent(EventOrderCreated, o.ID()),
		CustomerID:      customerID,
		Items:           items,
		ShippingAddress: shipping,
		BillingAddress:  billing,
		ShippingCost:    shippingCost,
		Tax:             tax,
		Pricing:         calculatePricing(items, shippingCost, tax, nil),
	}
	return o.Raise(event)
}

// AddItem добавляет позицию. Состав заказа можно менять только в статусе created
func (o *Order) AddItem(item Item) error {
	if err := o.guardItemsMutable(); err != nil {
		return err
	}
	if item.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if item.UnitPrice < 0 {
		return ErrInvalidPrice
	}
	item.Status = ItemStatusPending

	next := append(o.Items(), item)
	event := &ItemAddedEvent{
		BaseEvent: events.NewBaseEvent(EventItemAdded, o.ID()),
		Item:      item,
		Pricing:   calculatePricing(next, o.shippingCost, o.tax, o.coupon),
	}
	return o.Raise(event)
}

// RemoveItem удаляет позицию из заказа
func (o *Order) RemoveItem(productID, variantID string) error {
	if err := o.guardItemsMutable(); err != nil {
		return err
	}
	idx := o.findItem(productID, variantID)
	if idx < 0 {
		return ErrItemNotFound
	}
	if len(o.items) == 1 {
		return ErrEmptyOrder
	}

	next := o.Items()
	next = append(next[:idx], next[idx+1:]...)
	event := &ItemRemovedEvent{
		BaseEvent: events.NewBaseEvent(EventItemRemoved, o.ID()),
		ProductID: productID,
		VariantID: variantID,
		Pricing:   calculatePricing(next, o.shippingCost, o.tax, o.coupon),
	}
	return o.Raise(event)
}

// UpdateItemQuantity изменяет количество позиции
func (o *Order) UpdateItemQuantity(productID, variantID string, quantity int64) error {
	if err := o.guardItemsMutable(); err != nil {
		return err
	}
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	idx := o.findItem(productID, variantID)
	if idx < 0 {
		return ErrItemNotFound
	}

	next := o.Items()
	next[idx].Quantity = quantity
	event := &ItemUpdatedEvent{
		BaseEvent: events.NewBaseEvent(EventItemUpdated, o.ID()),
		ProductID: productID,
		VariantID: variantID,
		Quantity:  quantity,
		Pricing:   calculatePricing(next, o.shippingCost, o.tax, o.coupon),
	}
	return o.Raise(event)
}

// ApplyCoupon применяет купон к заказу
func (o *Order) ApplyCoupon(coupon Coupon) error {
	if err := o.guardItemsMutable(); err != nil {
		return err
	}
	if coupon.Discount < 0 {
		return ErrInvalidPrice
	}

	event := &CouponAppliedEvent{
		BaseEvent: events.NewBaseEvent(EventCouponApplied, o.ID()),
		Coupon:    coupon,
		Pricing:   calculatePricing(o.items, o.shippingCost, o.tax, &coupon),
	}
	return o.Raise(event)
}

// Confirm подтверждает заказ. Подтверждение возможно только из created:
// возврат в confirmed из payment_pending происходит только по событию
// неуспешного платежа
func (o *Order) Confirm() error {
	if o.status == "" {
		return ErrOrderNotCreated
	}
	if o.status != StatusCreated {
		return &InvalidTransitionError{From: o.status, To: StatusConfirmed}
	}
	return o.Raise(&OrderConfirmedEvent{
		BaseEvent:   events.NewBaseEvent(EventOrderConfirmed, o.ID()),
		Items:       o.Items(),
		Total:       o.pricing.Total,
		ConfirmedAt: time.Now().UTC(),
	})
}

// RecordPaymentPending фиксирует инициацию платежа
func (o *Order) RecordPaymentPending(paymentID string) error {
	if err := o.guardTransition(StatusPaymentPending); err != nil {
		return err
	}
	return o.Raise(&PaymentPendingEvent{
		BaseEvent: events.NewBaseEvent(EventPaymentPending, o.ID()),
		PaymentID: paymentID,
		Amount:    o.pricing.Total,
	})
}

// RecordPaymentSuccess фиксирует успешный платеж.
// Повторный вызов на уже оплаченном заказе безвреден: команды саги
// могут доставляться более одного раза
func (o *Order) RecordPaymentSuccess(paymentID string) error {
	if o.status == StatusPaid {
		return nil
	}
	if err := o.guardTransition(StatusPaid); err != nil {
		return err
	}
	return o.Raise(&PaymentSucceededEvent{
		BaseEvent: events.NewBaseEvent(EventPaymentSucceeded, o.ID()),
		PaymentID: paymentID,
		Amount:    o.pricing.Total,
	})
}

// RecordPaymentFailure фиксирует неуспешный платеж.
// Заказ возвращается в confirmed и может быть оплачен повторно
func (o *Order) RecordPaymentFailure(paymentID, reason string) error {
	if o.status == "" {
		return ErrOrderNotCreated
	}
	if o.status != StatusPaymentPending {
		return &InvalidTransitionError{From: o.status, To: StatusConfirmed}
	}
	return o.Raise(&PaymentFailedEvent{
		BaseEvent: events.NewBaseEvent(EventPaymentFailed, o.ID()),
		PaymentID: paymentID,
		Reason:    reason,
	})
}

// MarkProcessing передает заказ в обработку
func (o *Order) MarkProcessing() error {
	if err := o.guardTransition(StatusProcessing); err != nil {
		return err
	}
	return o.Raise(&ProcessingStartedEvent{
		BaseEvent: events.NewBaseEvent(EventProcessingStarted, o.ID()),
		StartedAt: time.Now().UTC(),
	})
}

// RecordPartialShipment фиксирует отправку части позиций
func (o *Order) RecordPartialShipment(shipment Shipment) error {
	if err := o.guardTransition(StatusPartiallyShipped); err != nil {
		return err
	}
	if len(shipment.ProductIDs) == 0 {
		return ErrItemNotFound
	}
	if shipment.ShippedAt.IsZero() {
		shipment.ShippedAt = time.Now().UTC()
	}
	return o.Raise(&PartiallyShippedEvent{
		BaseEvent: events.NewBaseEvent(EventPartiallyShipped, o.ID()),
		Shipment:  shipment,
	})
}

// RecordShipment фиксирует отправку всех оставшихся позиций
func (o *Order) RecordShipment(shipment Shipment) error {
	if err := o.guardTransition(StatusShipped); err != nil {
		return err
	}
	if shipment.ShippedAt.IsZero() {
		shipment.ShippedAt = time.Now().UTC()
	}
	return o.Raise(&OrderShippedEvent{
		BaseEvent: events.NewBaseEvent(EventOrderShipped, o.ID()),
		Shipment:  shipment,
	})
}

// RecordDelivery фиксирует доставку заказа
func (o *Order) RecordDelivery() error {
	if err := o.guardTransition(StatusDelivered); err != nil {
		return err
	}
	return o.Raise(&OrderDeliveredEvent{
		BaseEvent:   events.NewBaseEvent(EventOrderDelivered, o.ID()),
		DeliveredAt: time.Now().UTC(),
	})
}

// Complete завершает заказ
func (o *Order) Complete() error {
	if err := o.guardTransition(StatusCompleted); err != nil {
		return err
	}
	return o.Raise(&OrderCompletedEvent{
		BaseEvent:   events.NewBaseEvent(EventOrderCompleted, o.ID()),
		CompletedAt: time.Now().UTC(),
	})
}

// RequestReturn запрашивает возврат доставленного заказа
func (o *Order) RequestReturn(reason string) error {
	if err := o.guardTransition(StatusReturnRequested); err != nil {
		return err
	}
	return o.Raise(&ReturnRequestedEvent{
		BaseEvent: events.NewBaseEvent(EventReturnRequested, o.ID()),
		Reason:    reason,
	})
}

// ApproveReturn одобряет запрошенный возврат
func (o *Order) ApproveReturn(approvedBy string) error {
	if err := o.guardTransition(StatusReturnApproved); err != nil {
		return err
	}
	return o.Raise(&ReturnApprovedEvent{
		BaseEvent:  events.NewBaseEvent(EventReturnApproved, o.ID()),
		ApprovedBy: approvedBy,
	})
}

// RecordReturn фиксирует получение товара обратно
func (o *Order) RecordReturn() error {
	if err := o.guardTransition(StatusReturned); err != nil {
		return err
	}
	return o.Raise(&OrderReturnedEvent{
		BaseEvent:  events.NewBaseEvent(EventOrderReturned, o.ID()),
		ReturnedAt: time.Now().UTC(),
	})
}

// Refund фиксирует возврат средств покупателю
func (o *Order) Refund() error {
	if err := o.guardTransition(StatusRefunded); err != nil {
		return err
	}
	return o.Raise(&OrderRefundedEvent{
		BaseEvent:  events.NewBaseEvent(EventOrderRefunded, o.ID()),
		Amount:     o.pricing.Total,
		RefundedAt: time.Now().UTC(),
	})
}

// Cancel отменяет заказ. Отмена возможна только до начала обработки.
// Повторная отмена уже отмененного заказа безвредна
func (o *Order) Cancel(actor, reason string) error {
	if o.status == StatusCancelled {
		return nil
	}
	if err := o.guardTransition(StatusCancelled); err != nil {
		return err
	}
	return o.Raise(&OrderCancelledEvent{
		BaseEvent:   events.NewBaseEvent(EventOrderCancelled, o.ID()),
		Actor:       actor,
		Reason:      reason,
		CancelledAt: time.Now().UTC(),
	})
}

// Apply применяет событие к состоянию заказа. Функция чиста: без побочных
// эффектов, тотальна по известным типам событий, не паникует
func (o *Order) Apply(event events.Event) error {
	switch e := event.(type) {
	case *OrderCreatedEvent:
		o.customerID = e.CustomerID
		// срез копируется: позднейшие мутации состояния не должны
		// задевать сохраненный payload события
		o.items = append([]Item(nil), e.Items...)
		o.shippingAddress = e.ShippingAddress
		o.billingAddress = e.BillingAddress
		o.shippingCost = e.ShippingCost
		o.tax = e.Tax
		o.pricing = e.Pricing
		o.status = StatusCreated
	case *ItemAddedEvent:
		o.items = append(o.items, e.Item)
		o.pricing = e.Pricing
	case *ItemRemovedEvent:
		if idx := o.findItem(e.ProductID, e.VariantID); idx >= 0 {
			o.items = append(o.items[:idx], o.items[idx+1:]...)
		}
		o.pricing = e.Pricing
	case *ItemUpdatedEvent:
		if idx := o.findItem(e.ProductID, e.VariantID); idx >= 0 {
			o.items[idx].Quantity = e.Quantity
		}
		o.pricing = e.Pricing
	case *CouponAppliedEvent:
		coupon := e.Coupon
		o.coupon = &coupon
		o.pricing = e.Pricing
	case *OrderConfirmedEvent:
		o.status = StatusConfirmed
	case *PaymentPendingEvent:
		o.paymentID = e.PaymentID
		o.status = StatusPaymentPending
	case *PaymentSucceededEvent:
		o.paymentID = e.PaymentID
		o.status = StatusPaid
	case *PaymentFailedEvent:
		o.status = StatusConfirmed
	case *ProcessingStartedEvent:
		o.status = StatusProcessing
	case *PartiallyShippedEvent:
		o.shipments = append(o.shipments, e.Shipment)
		o.markItemsShipped(e.Shipment.ProductIDs)
		o.status = StatusPartiallyShipped
	case *OrderShippedEvent:
		o.shipments = append(o.shipments, e.Shipment)
		o.markAllItems(ItemStatusShipped)
		o.status = StatusShipped
	case *OrderDeliveredEvent:
		o.markAllItems(ItemStatusDelivered)
		o.status = StatusDelivered
	case *OrderCompletedEvent:
		o.status = StatusCompleted
	case *ReturnRequestedEvent:
		o.status = StatusReturnRequested
	case *ReturnApprovedEvent:
		o.status = StatusReturnApproved
	case *OrderReturnedEvent:
		o.markAllItems(ItemStatusReturned)
		o.status = StatusReturned
	case *OrderCancelledEvent:
		o.cancellation = &Cancellation{Actor: e.Actor, Reason: e.Reason, CancelledAt: e.CancelledAt}
		o.status = StatusCancelled
	case *OrderRefundedEvent:
		o.status = StatusRefunded
	default:
		return fmt.Errorf("unknown order event type: %s", event.EventType())
	}
	return nil
}

func (o *Order) guardTransition(to Status) error {
	if o.status == "" {
		return ErrOrderNotCreated
	}
	if !CanTransition(o.status, to) {
		return &InvalidTransitionError{From: o.status, To: to}
	}
	return nil
}

func (o *Order) guardItemsMutable() error {
	if o.status == "" {
		return ErrOrderNotCreated
	}
	if o.status != StatusCreated {
		return ErrItemsLocked
	}
	return nil
}

func (o *Order) findItem(productID, variantID string) int {
	for i, item := range o.items {
		if item.ProductID == productID && item.VariantID == variantID {
			return i
		}
	}
	return -1
}

func (o *Order) markItemsShipped(productIDs []string) {
	shipped := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		shipped[id] = struct{}{}
	}
	for i := range o.items {
		if _, ok := shipped[o.items[i].ProductID]; ok {
			o.items[i].Status = ItemStatusShipped
		}
	}
}

func (o *Order) markAllItems(status ItemStatus) {
	for i := range o.items {
		o.items[i].Status = status
	}
}
