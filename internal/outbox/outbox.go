// Package outbox реализует transactional outbox: события агрегатов записываются
// в ту же единицу работы, что и сами события, и доставляются наружу отдельным
// relay-процессом как минимум один раз.
package outbox

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRecordNotFound возникает когда запись outbox не найдена
	ErrRecordNotFound = errors.New("outbox record not found")
)

// Status статус доставки записи outbox
type Status string

const (
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
	// StatusFailed присваивается после исчерпания попыток доставки; запись
	// остается в хранилище для внимания оператора и никогда не удаляется молча
	StatusFailed Status = "failed"
)

// Record запись outbox: одно доменное событие, ожидающее доставки
type Record struct {
	EventID       string
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       []byte
	Metadata      []byte
	Status        Status
	Attempts      int
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
	DeliveredAt   *time.Time
}

// Store хранилище записей outbox
type Store interface {
	// Enqueue добавляет записи в outbox. Для PostgreSQL этот путь не используется:
	// записи вставляются в одной транзакции с событиями самим event store.
	Enqueue(ctx context.Context, records []Record) error
	// FetchPending возвращает pending-записи, готовые к доставке (next_attempt_at <= now),
	// в порядке создания
	FetchPending(ctx context.Context, limit int, now time.Time) ([]Record, error)
	// MarkDelivered помечает запись доставленной. Вызывается только после
	// подтверждения транспорта, никогда до
	MarkDelivered(ctx context.Context, eventID string, at time.Time) error
	// MarkAttemptFailed фиксирует неудачную попытку доставки; при final=true
	// запись переводится в StatusFailed
	MarkAttemptFailed(ctx context.Context, eventID string, attempt int, nextAttemptAt time.Time, lastError string, final bool) error
}
