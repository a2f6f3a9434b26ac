package order

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyOrder заказ должен содержать хотя бы одну позицию
	ErrEmptyOrder = errors.New("order must contain at least one item")
	// ErrOrderAlreadyCreated заказ уже создан
	ErrOrderAlreadyCreated = errors.New("order already created")
	// ErrOrderNotCreated операция над несуществующим заказом
	ErrOrderNotCreated = errors.New("order not created")
	// ErrItemsLocked состав заказа можно менять только в статусе created
	ErrItemsLocked = errors.New("order items can only be modified in created status")
	// ErrItemNotFound позиция не найдена в заказе
	ErrItemNotFound = errors.New("order item not found")
	// ErrInvalidQuantity количество должно быть положительным
	ErrInvalidQuantity = errors.New("quantity must be positive")
	// ErrInvalidPrice цена не может быть отрицательной
	ErrInvalidPrice = errors.New("price must not be negative")
)

// InvalidTransitionError переход, отсутствующий в таблице жизненного цикла.
// Команда отклоняется целиком, состояние заказа не меняется
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid order transition from %s to %s", e.From, e.To)
}

// IsInvalidTransition сообщает, является ли ошибка нарушением таблицы переходов
func IsInvalidTransition(err error) bool {
	var target *InvalidTransitionError
	return errors.As(err, &target)
}
