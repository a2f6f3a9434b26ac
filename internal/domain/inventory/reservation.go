package inventory

import "time"

// ReservationStatus статус резервирования
type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationReleased  ReservationStatus = "released"
	ReservationCommitted ReservationStatus = "committed"
)

// Reservation удержание остатка под конкретный заказ.
// Жизненный цикл: active -> confirmed -> committed (успешный путь),
// active -> released (отмена или таймаут). Терминальные резервирования
// удаляются из живого состояния агрегата, оставаясь в истории событий
type Reservation struct {
	ID        string            `json:"id"`
	OrderID   string            `json:"order_id"`
	Quantity  int64             `json:"quantity"`
	Status    ReservationStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// Expired сообщает, истекло ли резервирование к указанному моменту
func (r Reservation) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}
