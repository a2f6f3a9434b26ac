package eventsourcing

import (
	"fmt"

	"github.com/akriventsev/checkout/internal/events"
)

// Applier интерфейс для агрегатов, которые могут применять события.
// Apply обязан быть чистой функцией над состоянием: без побочных эффектов,
// тотальной по известным типам событий и никогда не паниковать
type Applier interface {
	Apply(event events.Event) error
}

// AggregateRoot интерфейс Event Sourced агрегата для репозитория
type AggregateRoot interface {
	ID() string
	AggregateType() string
	Version() int64
	UncommittedEvents() []events.Event
	MarkEventsAsCommitted()
	SetVersion(int64)
	Apply(events.Event) error
}

// Aggregate базовый тип для агрегатов с Event Sourcing.
// Текущее состояние никогда не хранится напрямую: оно является сверткой
// упорядоченной последовательности событий
type Aggregate struct {
	id            string
	aggregateType string
	version       int64
	uncommitted   []events.Event
	applier       Applier
}

// NewAggregate создает новый Event Sourced агрегат
func NewAggregate(id, aggregateType string) *Aggregate {
	return &Aggregate{
		id:            id,
		aggregateType: aggregateType,
		uncommitted:   make([]events.Event, 0),
	}
}

// SetApplier устанавливает Applier для агрегата
func (a *Aggregate) SetApplier(applier Applier) {
	a.applier = applier
}

// ID возвращает идентификатор агрегата
func (a *Aggregate) ID() string {
	return a.id
}

// AggregateType возвращает тип агрегата
func (a *Aggregate) AggregateType() string {
	return a.aggregateType
}

// Version возвращает текущую версию агрегата
func (a *Aggregate) Version() int64 {
	return a.version
}

// Raise применяет новое событие к состоянию и добавляет его в uncommitted.
// Версия увеличивается только после успешного применения
func (a *Aggregate) Raise(event events.Event) error {
	if err := a.applyEvent(event); err != nil {
		return fmt.Errorf("failed to apply event %s: %w", event.EventType(), err)
	}
	a.uncommitted = append(a.uncommitted, event)
	a.version++
	return nil
}

// LoadFromHistory восстанавливает состояние агрегата из истории событий
func (a *Aggregate) LoadFromHistory(evs []events.Event) error {
	for i, event := range evs {
		if err := a.applyEvent(event); err != nil {
			return fmt.Errorf("failed to apply event at index %d: %w", i, err)
		}
		a.version++
	}
	return nil
}

func (a *Aggregate) applyEvent(event events.Event) error {
	if a.applier == nil {
		return fmt.Errorf("applier not set for aggregate %s", a.id)
	}
	return a.applier.Apply(event)
}

// UncommittedEvents возвращает несохраненные события
func (a *Aggregate) UncommittedEvents() []events.Event {
	return a.uncommitted
}

// MarkEventsAsCommitted очищает uncommitted события после сохранения
func (a *Aggregate) MarkEventsAsCommitted() {
	a.uncommitted = make([]events.Event, 0)
}

// SetVersion устанавливает версию агрегата (используется при загрузке)
func (a *Aggregate) SetVersion(version int64) {
	a.version = version
}
