package inventory

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidQuantity количество должно быть положительным
	ErrInvalidQuantity = errors.New("quantity must be positive")
	// ErrInsufficientStock доступного остатка недостаточно для резервирования.
	// Это бизнес-отказ, а не ошибка системы
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrNotInitialized операция над неинициализированной позицией склада
	ErrNotInitialized = errors.New("inventory item not initialized")
)

// InvalidReservationStateError переход резервирования, нарушающий его жизненный цикл
type InvalidReservationStateError struct {
	ReservationID string
	From          ReservationStatus
	To            ReservationStatus
}

func (e *InvalidReservationStateError) Error() string {
	return fmt.Sprintf("invalid reservation %s transition from %s to %s", e.ReservationID, e.From, e.To)
}

// IsInvalidReservationState сообщает, является ли ошибка нарушением
// жизненного цикла резервирования
func IsInvalidReservationState(err error) bool {
	var target *InvalidReservationStateError
	return errors.As(err, &target)
}
