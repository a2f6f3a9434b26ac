// Package saga реализует персистентную сагу оформления заказа: конечный
// автомат на каждый заказ, который реагирует на события и выпускает команды,
// никогда не изменяя агрегаты напрямую.
package saga

import (
	"time"

	"github.com/google/uuid"

	"github.com/akriventsev/checkout/internal/app"
)

// State состояние саги оформления заказа
type State string

const (
	StateAwaitingReservation State = "awaiting_reservation"
	StateAwaitingPayment     State = "awaiting_payment"
	StateRetrying            State = "retrying"
	StateCompleted           State = "completed"
	StateFailed              State = "failed"
)

// Terminal сообщает, является ли состояние терминальным
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// DefaultMaxPaymentRetries максимум повторов оплаты до компенсации
const DefaultMaxPaymentRetries = 3

// Instance персистентное состояние саги одного заказа. Состояние саги
// служит памятью распределенной транзакции: оно фиксирует, как далеко
// продвинулось оформление, и делает каждый шаг повторяемым
type Instance struct {
	OrderID string `json:"order_id"`
	State   State  `json:"state"`

	// Expected позиции, ожидающие резервирования: item id -> количество
	Expected map[string]int64 `json:"expected,omitempty"`
	// Reservations выданные резервирования: item id -> reservation id
	Reservations map[string]string `json:"reservations,omitempty"`

	PaymentID  string `json:"payment_id,omitempty"`
	RetryCount int    `json:"retry_count"`
	MaxRetries int    `json:"max_retries"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Типы триггеров саги. Имена совпадают с типами доменных событий;
// reservation_failed синтезируется менеджером при синхронном отказе
// команды резервирования
const (
	TriggerOrderConfirmed      = "order.confirmed"
	TriggerStockReserved       = "inventory.stock_reserved"
	TriggerReservationFailed   = "checkout.reservation_failed"
	TriggerReservationReleased = "inventory.reservation_released"
	TriggerPaymentSucceeded    = "payment.succeeded"
	TriggerPaymentFailed       = "payment.failed"
)

// Trigger событие, приводящее сагу в движение
type Trigger struct {
	Type    string
	EventID string
	OrderID string

	// Items заполняется для order.confirmed: item id -> количество
	Items map[string]int64

	ItemID        string
	ReservationID string
	PaymentID     string
	Reason        string
	Retryable     bool
}

// Decision результат шага саги: команды к выпуску и следующее состояние.
// Команды выпускаются до сохранения состояния: при падении между этими
// шагами повторная доставка триггера породит те же команды, а их цели
// идемпотентны
type Decision struct {
	Commands []app.Command
	Next     Instance
}

// Decide чистая переходная функция саги. Не имеет побочных эффектов:
// для одного и того же состояния и триггера всегда возвращает одно и
// то же решение. Поздние и повторные события разрешаются безвредно:
// выигрывает последний принятый переход
func Decide(instance Instance, trigger Trigger) Decision {
	next := cloneInstance(instance)
	next.UpdatedAt = time.Now().UTC()

	// терминальная сага игнорирует все последующие события
	if instance.State.Terminal() {
		return Decision{Next: next}
	}

	switch trigger.Type {
	case TriggerOrderConfirmed:
		return decideOrderConfirmed(next, trigger)
	case TriggerStockReserved:
		return decideStockReserved(next, trigger)
	case TriggerReservationFailed:
		return decideCompensate(next, "insufficient stock")
	case TriggerReservationReleased:
		return decideReservationReleased(next, trigger)
	case TriggerPaymentSucceeded:
		return decidePaymentSucceeded(next, trigger)
	case TriggerPaymentFailed:
		return decidePaymentFailed(next, trigger)
	default:
		return Decision{Next: next}
	}
}

// NewInstance создает сагу для подтвержденного заказа
func NewInstance(orderID string, maxRetries int) Instance {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxPaymentRetries
	}
	now := time.Now().UTC()
	return Instance{
		OrderID:      orderID,
		Expected:     make(map[string]int64),
		Reservations: make(map[string]string),
		MaxRetries:   maxRetries,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func decideOrderConfirmed(next Instance, trigger Trigger) Decision {
	// повторная доставка подтверждения после старта саги безвредна
	if next.State != "" {
		return Decision{Next: next}
	}

	next.State = StateAwaitingReservation
	commands := make([]app.Command, 0, len(trigger.Items))
	for itemID, quantity := range trigger.Items {
		next.Expected[itemID] = quantity
		commands = append(commands, app.ReserveStock{
			ItemID:   itemID,
			OrderID:  trigger.OrderID,
			Quantity: quantity,
		})
	}
	return Decision{Commands: commands, Next: next}
}

func decideStockReserved(next Instance, trigger Trigger) Decision {
	if next.State != StateAwaitingReservation {
		return Decision{Next: next}
	}
	// дубликат уже учтенного резервирования
	if _, ok := next.Reservations[trigger.ItemID]; ok {
		return Decision{Next: next}
	}

	next.Reservations[trigger.ItemID] = trigger.ReservationID
	delete(next.Expected, trigger.ItemID)
	if len(next.Expected) > 0 {
		return Decision{Next: next}
	}

	next.State = StateAwaitingPayment
	next.PaymentID = uuid.New().String()
	return Decision{
		Commands: []app.Command{
			app.RecordPaymentPending{OrderID: next.OrderID, PaymentID: next.PaymentID},
		},
		Next: next,
	}
}

func decideReservationReleased(next Instance, trigger Trigger) Decision {
	// снятие резервирования (например, по таймауту) на любом нетерминальном
	// этапе означает провал оформления
	if next.State != StateAwaitingPayment && next.State != StateRetrying && next.State != StateAwaitingReservation {
		return Decision{Next: next}
	}
	delete(next.Reservations, trigger.ItemID)
	return decideCompensate(next, "reservation released: "+trigger.Reason)
}

func decidePaymentSucceeded(next Instance, trigger Trigger) Decision {
	if next.State != StateAwaitingPayment && next.State != StateRetrying {
		return Decision{Next: next}
	}

	commands := []app.Command{
		app.RecordPaymentSuccess{OrderID: next.OrderID, PaymentID: next.PaymentID},
	}
	for itemID, reservationID := range next.Reservations {
		commands = append(commands, app.ConfirmReservation{
			ItemID:        itemID,
			ReservationID: reservationID,
		})
	}
	next.State = StateCompleted
	return Decision{Commands: commands, Next: next}
}

func decidePaymentFailed(next Instance, trigger Trigger) Decision {
	if next.State != StateAwaitingPayment && next.State != StateRetrying {
		return Decision{Next: next}
	}

	if trigger.Retryable && next.RetryCount < next.MaxRetries {
		next.RetryCount++
		next.State = StateRetrying
		return Decision{Next: next}
	}
	return decideCompensate(next, "payment failed: "+trigger.Reason)
}

// decideCompensate выпускает компенсирующие команды: отмена заказа и снятие
// резервирований. Снятие идет по заказу на каждой затронутой позиции, в том
// числе по ожидаемым: резервирование могло пройти синхронно до того, как его
// событие дошло до саги, и его идентификатор здесь еще неизвестен.
// Цели команд идемпотентны, повтор безвреден
func decideCompensate(next Instance, reason string) Decision {
	commands := []app.Command{
		app.CancelOrder{OrderID: next.OrderID, Actor: "checkout-saga", Reason: reason},
	}
	itemIDs := make(map[string]struct{}, len(next.Expected)+len(next.Reservations))
	for itemID := range next.Expected {
		itemIDs[itemID] = struct{}{}
	}
	for itemID := range next.Reservations {
		itemIDs[itemID] = struct{}{}
	}
	for itemID := range itemIDs {
		commands = append(commands, app.ReleaseOrderReservations{
			ItemID:  itemID,
			OrderID: next.OrderID,
			Reason:  reason,
		})
	}
	next.State = StateFailed
	return Decision{Commands: commands, Next: next}
}

func cloneInstance(instance Instance) Instance {
	clone := instance
	clone.Expected = make(map[string]int64, len(instance.Expected))
	for k, v := range instance.Expected {
		clone.Expected[k] = v
	}
	clone.Reservations = make(map[string]string, len(instance.Reservations))
	for k, v := range instance.Reservations {
		clone.Reservations[k] = v
	}
	return clone
}
