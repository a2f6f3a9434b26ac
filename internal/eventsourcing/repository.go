package eventsourcing

import (
	"context"
	"errors"
	"fmt"

	"github.com/akriventsev/checkout/internal/events"
)

// AggregateFactory создает пустой агрегат с указанным идентификатором
type AggregateFactory[T AggregateRoot] func(id string) T

// Repository типизированный репозиторий Event Sourced агрегатов.
// Загрузка всегда выполняется воспроизведением полной истории событий,
// сохранение передает ожидаемую версию для оптимистичной блокировки
type Repository[T AggregateRoot] struct {
	store   EventStore
	factory AggregateFactory[T]
}

// NewRepository создает новый репозиторий агрегатов
func NewRepository[T AggregateRoot](store EventStore, factory AggregateFactory[T]) *Repository[T] {
	return &Repository[T]{
		store:   store,
		factory: factory,
	}
}

// Load восстанавливает агрегат из полной истории событий
func (r *Repository[T]) Load(ctx context.Context, aggregateID string) (T, error) {
	return r.LoadToVersion(ctx, aggregateID, 0)
}

// LoadToVersion восстанавливает агрегат до указанной версии включительно.
// version = 0 означает актуальное состояние
func (r *Repository[T]) LoadToVersion(ctx context.Context, aggregateID string, version int64) (T, error) {
	var zero T

	stored, err := r.store.GetEventsToVersion(ctx, aggregateID, version)
	if err != nil {
		return zero, err
	}

	history := make([]events.Event, 0, len(stored))
	lastVersion := int64(0)
	for _, se := range stored {
		history = append(history, se.EventData)
		lastVersion = se.Version
	}

	aggregate := r.factory(aggregateID)
	for _, event := range history {
		if err := aggregate.Apply(event); err != nil {
			return zero, fmt.Errorf("failed to replay aggregate %s: %w", aggregateID, err)
		}
	}
	aggregate.SetVersion(lastVersion)
	return aggregate, nil
}

// Save сохраняет несохраненные события агрегата.
// Версия агрегата на момент загрузки служит ожидаемой версией потока
func (r *Repository[T]) Save(ctx context.Context, aggregate T) error {
	uncommitted := aggregate.UncommittedEvents()
	if len(uncommitted) == 0 {
		return nil
	}

	expectedVersion := aggregate.Version() - int64(len(uncommitted))
	for _, event := range uncommitted {
		event.Metadata().Set("aggregate_type", aggregate.AggregateType())
	}

	if err := r.store.AppendEvents(ctx, aggregate.ID(), expectedVersion, uncommitted); err != nil {
		return err
	}

	aggregate.MarkEventsAsCommitted()
	return nil
}

// RetryOnConflict выполняет fn повторно при конфликте версий.
// fn обязана перечитывать агрегат на каждой попытке: конфликт означает,
// что решение принималось на устаревшем состоянии
func RetryOnConflict(ctx context.Context, attempts int, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		err = fn(ctx)
		if err == nil || !errors.Is(err, ErrConcurrencyConflict) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return err
}
