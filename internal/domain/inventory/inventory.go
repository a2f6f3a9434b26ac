// Package inventory реализует Event Sourced агрегат складской позиции
// с резервированием остатков под заказы.
package inventory

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/akriventsev/checkout/internal/events"
	"github.com/akriventsev/checkout/internal/eventsourcing"
)

// AggregateType тип агрегата складской позиции
const AggregateType = "inventory_item"

// DefaultReservationTTL срок жизни резервирования по умолчанию
const DefaultReservationTTL = 30 * time.Minute

// MakeItemID формирует идентификатор агрегата из тройки (товар, вариант, склад)
func MakeItemID(productID, variantID, warehouseID string) string {
	return productID + ":" + variantID + ":" + warehouseID
}

// Item Event Sourced агрегат складской позиции, ограниченный одной тройкой
// (товар, вариант, склад). Инварианты: reserved <= onHand, available никогда
// не отрицателен; количество резервирования вычитается из доступного остатка
// ровно один раз при создании и возвращается (или списывается) ровно один раз
type Item struct {
	*eventsourcing.Aggregate

	productID    string
	variantID    string
	warehouseID  string
	onHand       int64
	reserved     int64
	inTransit    int64
	damaged      int64
	reorderPoint int64
	reservations map[string]Reservation
	initialized  bool
}

// NewItem создает пустой агрегат складской позиции
func NewItem(id string) *Item {
	item := &Item{
		Aggregate:    eventsourcing.NewAggregate(id, AggregateType),
		reservations: make(map[string]Reservation),
	}
	item.SetApplier(item)
	return item
}

// ProductID возвращает идентификатор товара
func (it *Item) ProductID() string { return it.productID }

// WarehouseID возвращает идентификатор склада
func (it *Item) WarehouseID() string { return it.warehouseID }

// OnHand возвращает физический остаток
func (it *Item) OnHand() int64 { return it.onHand }

// Reserved возвращает зарезервированное количество
func (it *Item) Reserved() int64 { return it.reserved }

// Available возвращает доступный остаток. Производный инвариант:
// available = onHand - reserved, никогда не отрицателен
func (it *Item) Available() int64 { return it.onHand - it.reserved }

// InTransit возвращает количество в пути
func (it *Item) InTransit() int64 { return it.inTransit }

// Damaged возвращает поврежденное количество
func (it *Item) Damaged() int64 { return it.damaged }

// ReorderPoint возвращает порог дозаказа
func (it *Item) ReorderPoint() int64 { return it.reorderPoint }

// Reservation возвращает живое резервирование по идентификатору
func (it *Item) Reservation(reservationID string) (Reservation, bool) {
	r, ok := it.reservations[reservationID]
	return r, ok
}

// Reservations возвращает копию живых резервирований
func (it *Item) Reservations() []Reservation {
	result := make([]Reservation, 0, len(it.reservations))
	for _, r := range it.reservations {
		result = append(result, r)
	}
	return result
}

// Initialize создает складскую позицию. Повторная инициализация
// существующей позиции безвредна
func (it *Item) Initialize(productID, variantID, warehouseID string, onHand, reorderPoint int64) error {
	if it.initialized {
		return nil
	}
	if onHand < 0 || reorderPoint < 0 {
		return ErrInvalidQuantity
	}
	return it.Raise(&StockInitializedEvent{
		BaseEvent:    events.NewBaseEvent(EventStockInitialized, it.ID()),
		ProductID:    productID,
		VariantID:    variantID,
		WarehouseID:  warehouseID,
		OnHand:       onHand,
		ReorderPoint: reorderPoint,
	})
}

// Receive оприходует поставку и увеличивает физический остаток
func (it *Item) Receive(quantity int64, reference string) error {
	if err := it.guardInitialized(); err != nil {
		return err
	}
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	return it.Raise(&StockReceivedEvent{
		BaseEvent: events.NewBaseEvent(EventStockReceived, it.ID()),
		Quantity:  quantity,
		Reference: reference,
	})
}

// RecordInbound фиксирует поставку в пути
func (it *Item) RecordInbound(quantity int64, reference string, expectedAt time.Time) error {
	if err := it.guardInitialized(); err != nil {
		return err
	}
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	return it.Raise(&InboundRecordedEvent{
		BaseEvent:  events.NewBaseEvent(EventInboundRecorded, it.ID()),
		Quantity:   quantity,
		Reference:  reference,
		ExpectedAt: expectedAt,
	})
}

// Reserve резервирует остаток под заказ. Проверка доступности выполняется
// по свежезагруженному состоянию; совместно с проверкой версии при записи
// это исключает продажу сверх остатка при конкурентном спросе
func (it *Item) Reserve(orderID string, quantity int64, expiresAt time.Time) (string, error) {
	if err := it.guardInitialized(); err != nil {
		return "", err
	}
	if quantity <= 0 {
		return "", ErrInvalidQuantity
	}

	available := it.Available()
	if available < quantity {
		return "", fmt.Errorf("%w: requested %d, available %d", ErrInsufficientStock, quantity, available)
	}
	if expiresAt.IsZero() {
		expiresAt = time.Now().UTC().Add(DefaultReservationTTL)
	}

	reservationID := uuid.New().String()
	err := it.Raise(&StockReservedEvent{
		BaseEvent:         events.NewBaseEvent(EventStockReserved, it.ID()),
		ReservationID:     reservationID,
		OrderID:           orderID,
		Quantity:          quantity,
		PreviousAvailable: available,
		NewAvailable:      available - quantity,
		ExpiresAt:         expiresAt,
	})
	if err != nil {
		return "", err
	}
	return reservationID, it.checkReorderPoint()
}

// ConfirmReservation подтверждает активное резервирование.
// Остатки не меняются: удержание произошло при создании резервирования.
// Подтверждение уже обработанного и удаленного резервирования безвредно
func (it *Item) ConfirmReservation(reservationID string) error {
	if err := it.guardInitialized(); err != nil {
		return err
	}
	reservation, ok := it.reservations[reservationID]
	if !ok {
		return nil
	}
	if reservation.Status == ReservationConfirmed {
		return nil
	}
	if reservation.Status != ReservationActive {
		return &InvalidReservationStateError{
			ReservationID: reservationID,
			From:          reservation.Status,
			To:            ReservationConfirmed,
		}
	}
	return it.Raise(&ReservationConfirmedEvent{
		BaseEvent:     events.NewBaseEvent(EventReservationConfirmed, it.ID()),
		ReservationID: reservationID,
		OrderID:       reservation.OrderID,
	})
}

// Release снимает активное резервирование и возвращает остаток.
// Снятие уже обработанного и удаленного резервирования безвредно:
// события доставляются как минимум один раз
func (it *Item) Release(reservationID, reason string) error {
	if err := it.guardInitialized(); err != nil {
		return err
	}
	reservation, ok := it.reservations[reservationID]
	if !ok {
		return nil
	}
	if reservation.Status != ReservationActive {
		return &InvalidReservationStateError{
			ReservationID: reservationID,
			From:          reservation.Status,
			To:            ReservationReleased,
		}
	}

	available := it.Available()
	return it.Raise(&ReservationReleasedEvent{
		BaseEvent:         events.NewBaseEvent(EventReservationReleased, it.ID()),
		ReservationID:     reservationID,
		OrderID:           reservation.OrderID,
		Quantity:          reservation.Quantity,
		Reason:            reason,
		PreviousAvailable: available,
		NewAvailable:      available + reservation.Quantity,
	})
}

// ReleaseOrder снимает все активные резервирования заказа. Используется
// компенсацией оформления, когда идентификаторы резервирований еще не
// известны вызывающему. Отсутствие активных резервирований безвредно
func (it *Item) ReleaseOrder(orderID, reason string) error {
	if err := it.guardInitialized(); err != nil {
		return err
	}
	for reservationID, reservation := range it.reservations {
		if reservation.OrderID != orderID || reservation.Status != ReservationActive {
			continue
		}
		if err := it.Release(reservationID, reason); err != nil {
			return err
		}
	}
	return nil
}

// Commit списывает подтвержденное резервирование: физический остаток и
// резерв уменьшаются на его количество, резервирование удаляется из
// живого состояния. Повторное списание удаленного резервирования безвредно
func (it *Item) Commit(reservationID string) error {
	if err := it.guardInitialized(); err != nil {
		return err
	}
	reservation, ok := it.reservations[reservationID]
	if !ok {
		return nil
	}
	if reservation.Status != ReservationConfirmed {
		return &InvalidReservationStateError{
			ReservationID: reservationID,
			From:          reservation.Status,
			To:            ReservationCommitted,
		}
	}
	return it.Raise(&StockCommittedEvent{
		BaseEvent:     events.NewBaseEvent(EventStockCommitted, it.ID()),
		ReservationID: reservationID,
		OrderID:       reservation.OrderID,
		Quantity:      reservation.Quantity,
		NewOnHand:     it.onHand - reservation.Quantity,
	})
}

// Adjust корректирует физический остаток по результатам инвентаризации.
// Остаток не может опуститься ниже зарезервированного количества
func (it *Item) Adjust(delta int64, reason string) error {
	if err := it.guardInitialized(); err != nil {
		return err
	}
	if delta == 0 {
		return ErrInvalidQuantity
	}
	newOnHand := it.onHand + delta
	if newOnHand < it.reserved {
		return fmt.Errorf("%w: adjustment would break reserved stock", ErrInsufficientStock)
	}

	err := it.Raise(&StockAdjustedEvent{
		BaseEvent: events.NewBaseEvent(EventStockAdjusted, it.ID()),
		Delta:     delta,
		NewOnHand: newOnHand,
		Reason:    reason,
	})
	if err != nil {
		return err
	}
	if delta < 0 {
		return it.checkReorderPoint()
	}
	return nil
}

// MarkDamaged помечает часть остатка поврежденной и выводит ее из оборота
func (it *Item) MarkDamaged(quantity int64, reason string) error {
	if err := it.guardInitialized(); err != nil {
		return err
	}
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if it.onHand-quantity < it.reserved {
		return fmt.Errorf("%w: damaged quantity exceeds unreserved stock", ErrInsufficientStock)
	}

	err := it.Raise(&StockDamagedEvent{
		BaseEvent: events.NewBaseEvent(EventStockDamaged, it.ID()),
		Quantity:  quantity,
		Reason:    reason,
	})
	if err != nil {
		return err
	}
	return it.checkReorderPoint()
}

// ExpiredReservations возвращает активные резервирования, истекшие к moment
func (it *Item) ExpiredReservations(now time.Time) []Reservation {
	var expired []Reservation
	for _, r := range it.reservations {
		if r.Status == ReservationActive && r.Expired(now) {
			expired = append(expired, r)
		}
	}
	return expired
}

// checkReorderPoint поднимает уведомительное событие, если доступный остаток
// опустился до порога дозаказа. Событие не меняет состояние и может
// подниматься повторно
func (it *Item) checkReorderPoint() error {
	if it.reorderPoint <= 0 || it.Available() > it.reorderPoint {
		return nil
	}
	return it.Raise(&LowStockDetectedEvent{
		BaseEvent:    events.NewBaseEvent(EventLowStockDetected, it.ID()),
		ProductID:    it.productID,
		VariantID:    it.variantID,
		WarehouseID:  it.warehouseID,
		Available:    it.Available(),
		ReorderPoint: it.reorderPoint,
	})
}

func (it *Item) guardInitialized() error {
	if !it.initialized {
		return ErrNotInitialized
	}
	return nil
}

// Apply применяет событие к состоянию позиции. Функция чиста и тотальна
// по известным типам событий
func (it *Item) Apply(event events.Event) error {
	switch e := event.(type) {
	case *StockInitializedEvent:
		it.productID = e.ProductID
		it.variantID = e.VariantID
		it.warehouseID = e.WarehouseID
		it.onHand = e.OnHand
		it.reorderPoint = e.ReorderPoint
		it.initialized = true
	case *StockReceivedEvent:
		it.onHand += e.Quantity
		// оприходование закрывает поставку в пути
		it.inTransit -= e.Quantity
		if it.inTransit < 0 {
			it.inTransit = 0
		}
	case *InboundRecordedEvent:
		it.inTransit += e.Quantity
	case *StockReservedEvent:
		it.reserved += e.Quantity
		it.reservations[e.ReservationID] = Reservation{
			ID:        e.ReservationID,
			OrderID:   e.OrderID,
			Quantity:  e.Quantity,
			Status:    ReservationActive,
			CreatedAt: e.OccurredAt(),
			ExpiresAt: e.ExpiresAt,
		}
	case *ReservationConfirmedEvent:
		if r, ok := it.reservations[e.ReservationID]; ok {
			r.Status = ReservationConfirmed
			it.reservations[e.ReservationID] = r
		}
	case *ReservationReleasedEvent:
		if _, ok := it.reservations[e.ReservationID]; ok {
			it.reserved -= e.Quantity
			delete(it.reservations, e.ReservationID)
		}
	case *StockCommittedEvent:
		if _, ok := it.reservations[e.ReservationID]; ok {
			it.onHand -= e.Quantity
			it.reserved -= e.Quantity
			delete(it.reservations, e.ReservationID)
		}
	case *StockAdjustedEvent:
		it.onHand = e.NewOnHand
	case *StockDamagedEvent:
		it.onHand -= e.Quantity
		it.damaged += e.Quantity
	case *LowStockDetectedEvent:
		// уведомительное событие, состояние не меняется
	default:
		return fmt.Errorf("unknown inventory event type: %s", event.EventType())
	}
	return nil
}
