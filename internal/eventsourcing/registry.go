package eventsourcing

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/akriventsev/checkout/internal/events"
)

// EventFactory фабричная функция, создающая пустое событие конкретного типа
type EventFactory func() events.Event

// rehydratable реализуется событиями, встраивающими *events.BaseEvent
type rehydratable interface {
	Rehydrate(eventID, eventType, aggregateID string, occurredAt time.Time, metadata events.EventMetadata)
}

// Registry реестр типов событий для десериализации из хранилища.
// Payload события хранится как JSON; идентификатор, тип, агрегат и время
// восстанавливаются из колонок хранилища через Rehydrate
type Registry struct {
	mu        sync.RWMutex
	factories map[string]EventFactory
}

// NewRegistry создает новый реестр событий
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]EventFactory),
	}
}

// Register регистрирует фабрику для типа события
func (r *Registry) Register(eventType string, factory EventFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[eventType] = factory
}

// Deserialize восстанавливает типизированное событие из сохраненных данных
func (r *Registry) Deserialize(stored StoredEvent, data []byte) (events.Event, error) {
	r.mu.RLock()
	factory, exists := r.factories[stored.EventType]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, stored.EventType)
	}

	event := factory()
	if len(data) > 0 {
		if err := json.Unmarshal(data, event); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event %s: %w", stored.EventType, err)
		}
	}

	if rh, ok := event.(rehydratable); ok {
		metadata := make(events.EventMetadata)
		for k, v := range stored.Metadata {
			metadata[k] = v
		}
		rh.Rehydrate(stored.ID, stored.EventType, stored.AggregateID, stored.OccurredAt, metadata)
	}

	return event, nil
}
