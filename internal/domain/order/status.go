package order

import "github.com/akriventsev/checkout/internal/fsm"

// Status статус жизненного цикла заказа
type Status string

const (
	StatusCreated          Status = "created"
	StatusConfirmed        Status = "confirmed"
	StatusPaymentPending   Status = "payment_pending"
	StatusPaid             Status = "paid"
	StatusProcessing       Status = "processing"
	StatusPartiallyShipped Status = "partially_shipped"
	StatusShipped          Status = "shipped"
	StatusDelivered        Status = "delivered"
	StatusCompleted        Status = "completed"
	StatusReturnRequested  Status = "return_requested"
	StatusReturnApproved   Status = "return_approved"
	StatusReturned         Status = "returned"
	StatusCancelled        Status = "cancelled"
	StatusRefunded         Status = "refunded"
)

// transitions фиксированная таблица переходов жизненного цикла заказа.
// Переход, отсутствующий в таблице, отклоняется с InvalidTransitionError.
// Отмена возможна только до начала физической обработки заказа
var transitions = fsm.NewTable(map[Status][]Status{
	StatusCreated:          {StatusConfirmed, StatusCancelled},
	StatusConfirmed:        {StatusPaymentPending, StatusCancelled},
	StatusPaymentPending:   {StatusPaid, StatusConfirmed, StatusCancelled},
	StatusPaid:             {StatusProcessing, StatusCancelled},
	StatusProcessing:       {StatusPartiallyShipped, StatusShipped},
	StatusPartiallyShipped: {StatusPartiallyShipped, StatusShipped},
	StatusShipped:          {StatusDelivered},
	StatusDelivered:        {StatusCompleted, StatusReturnRequested},
	StatusCompleted:        {},
	StatusReturnRequested:  {StatusReturnApproved},
	StatusReturnApproved:   {StatusReturned},
	StatusReturned:         {StatusRefunded},
	StatusCancelled:        {StatusRefunded},
	StatusRefunded:         {},
})

// AllStatuses все статусы жизненного цикла заказа
func AllStatuses() []Status {
	return []Status{
		StatusCreated, StatusConfirmed, StatusPaymentPending, StatusPaid,
		StatusProcessing, StatusPartiallyShipped, StatusShipped, StatusDelivered,
		StatusCompleted, StatusReturnRequested, StatusReturnApproved,
		StatusReturned, StatusCancelled, StatusRefunded,
	}
}

// CanTransition сообщает, разрешен ли переход между статусами
func CanTransition(from, to Status) bool {
	return transitions.Can(from, to)
}

// IsTerminal сообщает, является ли статус терминальным
func IsTerminal(status Status) bool {
	return transitions.Terminal(status)
}
