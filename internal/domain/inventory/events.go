package inventory

import (
	"time"

	"github.com/akriventsev/checkout/internal/events"
	"github.com/akriventsev/checkout/internal/eventsourcing"
)

// Типы событий складской позиции
const (
	EventStockInitialized     = "inventory.stock_initialized"
	EventStockReceived        = "inventory.stock_received"
	EventInboundRecorded      = "inventory.inbound_recorded"
	EventStockReserved        = "inventory.stock_reserved"
	EventReservationConfirmed = "inventory.reservation_confirmed"
	EventReservationReleased  = "inventory.reservation_released"
	EventStockCommitted       = "inventory.stock_committed"
	EventStockAdjusted        = "inventory.stock_adjusted"
	EventStockDamaged         = "inventory.stock_damaged"
	EventLowStockDetected     = "inventory.low_stock_detected"
)

// StockInitializedEvent складская позиция создана
type StockInitializedEvent struct {
	*events.BaseEvent
	ProductID    string `json:"product_id"`
	VariantID    string `json:"variant_id"`
	WarehouseID  string `json:"warehouse_id"`
	OnHand       int64  `json:"on_hand"`
	ReorderPoint int64  `json:"reorder_point"`
}

// StockReceivedEvent поставка оприходована, остаток увеличен
type StockReceivedEvent struct {
	*events.BaseEvent
	Quantity  int64  `json:"quantity"`
	Reference string `json:"reference,omitempty"`
}

// InboundRecordedEvent поставка зафиксирована как находящаяся в пути
type InboundRecordedEvent struct {
	*events.BaseEvent
	Quantity   int64     `json:"quantity"`
	Reference  string    `json:"reference,omitempty"`
	ExpectedAt time.Time `json:"expected_at"`
}

// StockReservedEvent остаток зарезервирован под заказ.
// Событие несет доступный остаток до и после: подписчики обновляют
// производные представления без повторной загрузки агрегата
type StockReservedEvent struct {
	*events.BaseEvent
	ReservationID     string    `json:"reservation_id"`
	OrderID           string    `json:"order_id"`
	Quantity          int64     `json:"quantity"`
	PreviousAvailable int64     `json:"previous_available"`
	NewAvailable      int64     `json:"new_available"`
	ExpiresAt         time.Time `json:"expires_at"`
}

// ReservationConfirmedEvent резервирование подтверждено, остатки не меняются
type ReservationConfirmedEvent struct {
	*events.BaseEvent
	ReservationID string `json:"reservation_id"`
	OrderID       string `json:"order_id"`
}

// ReservationReleasedEvent резервирование снято, остаток возвращен
type ReservationReleasedEvent struct {
	*events.BaseEvent
	ReservationID     string `json:"reservation_id"`
	OrderID           string `json:"order_id"`
	Quantity          int64  `json:"quantity"`
	Reason            string `json:"reason"`
	PreviousAvailable int64  `json:"previous_available"`
	NewAvailable      int64  `json:"new_available"`
}

// StockCommittedEvent резервирование списано: физический остаток уменьшен
type StockCommittedEvent struct {
	*events.BaseEvent
	ReservationID string `json:"reservation_id"`
	OrderID       string `json:"order_id"`
	Quantity      int64  `json:"quantity"`
	NewOnHand     int64  `json:"new_on_hand"`
}

// StockAdjustedEvent ручная корректировка остатка (инвентаризация)
type StockAdjustedEvent struct {
	*events.BaseEvent
	Delta     int64  `json:"delta"`
	NewOnHand int64  `json:"new_on_hand"`
	Reason    string `json:"reason"`
}

// StockDamagedEvent часть остатка помечена поврежденной
type StockDamagedEvent struct {
	*events.BaseEvent
	Quantity int64  `json:"quantity"`
	Reason   string `json:"reason"`
}

// LowStockDetectedEvent доступный остаток опустился до порога дозаказа.
// Событие уведомительное и не меняет состояние агрегата
type LowStockDetectedEvent struct {
	*events.BaseEvent
	ProductID    string `json:"product_id"`
	VariantID    string `json:"variant_id"`
	WarehouseID  string `json:"warehouse_id"`
	Available    int64  `json:"available"`
	ReorderPoint int64  `json:"reorder_point"`
}

// RegisterEvents регистрирует фабрики событий склада в реестре
func RegisterEvents(registry *eventsourcing.Registry) {
	factories := map[string]eventsourcing.EventFactory{
		EventStockInitialized:     func() events.Event { return &StockInitializedEvent{BaseEvent: &events.BaseEvent{}} },
		EventStockReceived:        func() events.Event { return &StockReceivedEvent{BaseEvent: &events.BaseEvent{}} },
		EventInboundRecorded:      func() events.Event { return &InboundRecordedEvent{BaseEvent: &events.BaseEvent{}} },
		EventStockReserved:        func() events.Event { return &StockReservedEvent{BaseEvent: &events.BaseEvent{}} },
		EventReservationConfirmed: func() events.Event { return &ReservationConfirmedEvent{BaseEvent: &events.BaseEvent{}} },
		EventReservationReleased:  func() events.Event { return &ReservationReleasedEvent{BaseEvent: &events.BaseEvent{}} },
		EventStockCommitted:       func() events.Event { return &StockCommittedEvent{BaseEvent: &events.BaseEvent{}} },
		EventStockAdjusted:        func() events.Event { return &StockAdjustedEvent{BaseEvent: &events.BaseEvent{}} },
		EventStockDamaged:         func() events.Event { return &StockDamagedEvent{BaseEvent: &events.BaseEvent{}} },
		EventLowStockDetected:     func() events.Event { return &LowStockDetectedEvent{BaseEvent: &events.BaseEvent{}} },
	}
	for eventType, factory := range factories {
		registry.Register(eventType, factory)
	}
}
