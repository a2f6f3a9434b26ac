package http

import (
	"errors"
	"net/http"

	"github.com/akriventsev/checkout/internal/domain/inventory"
	"github.com/akriventsev/checkout/internal/domain/order"
	"github.com/akriventsev/checkout/internal/eventsourcing"
	"github.com/akriventsev/checkout/internal/saga"
)

// statusFor переводит доменные ошибки в HTTP статусы. Недопустимый переход
// жизненного цикла отличается от конфликта версий: первый означает, что
// запрос не применим к текущему состоянию, второй предлагает повторить
func statusFor(err error) int {
	switch {
	case errors.Is(err, eventsourcing.ErrStreamNotFound),
		errors.Is(err, saga.ErrInstanceNotFound):
		return http.StatusNotFound

	case errors.Is(err, eventsourcing.ErrConcurrencyConflict),
		errors.Is(err, order.ErrOrderAlreadyCreated),
		errors.Is(err, inventory.ErrInsufficientStock):
		return http.StatusConflict

	case order.IsInvalidTransition(err),
		inventory.IsInvalidReservationState(err),
		errors.Is(err, order.ErrItemsLocked),
		errors.Is(err, inventory.ErrNotInitialized):
		return http.StatusUnprocessableEntity

	case errors.Is(err, order.ErrEmptyOrder),
		errors.Is(err, order.ErrOrderNotCreated),
		errors.Is(err, order.ErrItemNotFound),
		errors.Is(err, order.ErrInvalidQuantity),
		errors.Is(err, order.ErrInvalidPrice),
		errors.Is(err, inventory.ErrInvalidQuantity):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}
