// Package eventsourcing предоставляет поддержку Event Sourcing: append-only поток
// событий на агрегат с оптимистичной конкурентностью и восстановление состояния
// через replay.
package eventsourcing

import (
	"context"
	"errors"
	"time"

	"github.com/akriventsev/checkout/internal/events"
)

var (
	// ErrConcurrencyConflict возникает при конфликте версий при сохранении событий.
	// Вызывающий обязан перечитать агрегат и повторить команду, а не перезаписывать вслепую
	ErrConcurrencyConflict = errors.New("concurrency conflict: expected version does not match current version")
	// ErrStreamNotFound возникает когда поток событий агрегата не найден
	ErrStreamNotFound = errors.New("event stream not found")
	// ErrInvalidVersion возникает при некорректной версии события
	ErrInvalidVersion = errors.New("invalid event version")
	// ErrUnknownEventType возникает при десериализации события, не зарегистрированного в реестре
	ErrUnknownEventType = errors.New("unknown event type")
)

// StoredEvent представляет сохраненное событие с метаданными
type StoredEvent struct {
	ID            string
	AggregateID   string
	AggregateType string
	EventType     string
	EventData     events.Event
	Metadata      map[string]interface{}
	Version       int64
	Position      int64
	OccurredAt    time.Time
	CreatedAt     time.Time
}

// EventStore интерфейс для хранения событий
type EventStore interface {
	// AppendEvents добавляет события в поток агрегата с проверкой версии для
	// оптимистичной конкурентности. Вставка атомарна: либо все события вызова
	// записаны (вместе с записями outbox), либо ни одно
	AppendEvents(ctx context.Context, aggregateID string, expectedVersion int64, evs []events.Event) error

	// GetEvents возвращает все события агрегата начиная с указанной версии
	GetEvents(ctx context.Context, aggregateID string, fromVersion int64) ([]StoredEvent, error)

	// GetEventsToVersion возвращает события агрегата до указанной версии включительно.
	// Используется для replay на произвольную историческую версию (аудит, диагностика)
	GetEventsToVersion(ctx context.Context, aggregateID string, toVersion int64) ([]StoredEvent, error)

	// GetAllEvents возвращает все события начиная с указанной глобальной позиции
	GetAllEvents(ctx context.Context, fromPosition int64) (<-chan StoredEvent, error)
}

// ValidateExpectedVersion проверяет корректность ожидаемой версии
func ValidateExpectedVersion(expectedVersion int64) error {
	if expectedVersion < 0 {
		return ErrInvalidVersion
	}
	return nil
}
