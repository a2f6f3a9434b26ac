package eventsourcing

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/akriventsev/checkout/internal/events"
	"github.com/akriventsev/checkout/internal/metrics"
	"github.com/akriventsev/checkout/internal/outbox"
)

// InMemoryEventStore реализация EventStore в памяти для тестирования и разработки.
// Проверка версии и запись outbox выполняются под одной блокировкой, имитируя
// атомарную единицу работы PostgreSQL-хранилища
type InMemoryEventStore struct {
	mu        sync.RWMutex
	streams   map[string][]StoredEvent
	allEvents []StoredEvent
	position  int64
	sink      outbox.Store
	metrics   *metrics.Metrics
}

// NewInMemoryEventStore создает новый InMemory Event Store
func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{
		streams: make(map[string][]StoredEvent),
	}
}

// WithOutbox подключает outbox: успешный append также ставит события в очередь доставки
func (s *InMemoryEventStore) WithOutbox(sink outbox.Store) *InMemoryEventStore {
	s.sink = sink
	return s
}

// WithMetrics подключает сборщик метрик
func (s *InMemoryEventStore) WithMetrics(m *metrics.Metrics) *InMemoryEventStore {
	s.metrics = m
	return s
}

// AppendEvents добавляет события в поток агрегата
func (s *InMemoryEventStore) AppendEvents(ctx context.Context, aggregateID string, expectedVersion int64, evs []events.Event) error {
	if err := ValidateExpectedVersion(expectedVersion); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.streams[aggregateID]
	currentVersion := int64(0)
	if len(stream) > 0 {
		currentVersion = stream[len(stream)-1].Version
	}

	if expectedVersion != currentVersion {
		if s.metrics != nil && len(evs) > 0 {
			s.metrics.RecordVersionConflict(ctx, aggregateTypeOf(evs[0]))
		}
		return fmt.Errorf("%w: expected %d, got %d", ErrConcurrencyConflict, expectedVersion, currentVersion)
	}

	records := make([]outbox.Record, 0, len(evs))
	for i, event := range evs {
		s.position++
		stored := StoredEvent{
			ID:            event.EventID(),
			AggregateID:   aggregateID,
			AggregateType: aggregateTypeOf(event),
			EventType:     event.EventType(),
			EventData:     event,
			Metadata:      copyMetadata(event.Metadata()),
			Version:       expectedVersion + int64(i) + 1,
			Position:      s.position,
			OccurredAt:    event.OccurredAt(),
			CreatedAt:     time.Now().UTC(),
		}
		stream = append(stream, stored)
		s.allEvents = append(s.allEvents, stored)

		if s.sink != nil {
			payload, err := json.Marshal(event)
			if err != nil {
				return fmt.Errorf("failed to marshal event for outbox: %w", err)
			}
			records = append(records, outbox.Record{
				EventID:       stored.ID,
				AggregateID:   stored.AggregateID,
				AggregateType: stored.AggregateType,
				EventType:     stored.EventType,
				Payload:       payload,
				Status:        outbox.StatusPending,
				CreatedAt:     stored.CreatedAt,
			})
		}
	}

	s.streams[aggregateID] = stream

	if s.sink != nil && len(records) > 0 {
		if err := s.sink.Enqueue(ctx, records); err != nil {
			return fmt.Errorf("failed to enqueue outbox records: %w", err)
		}
	}
	if s.metrics != nil && len(evs) > 0 {
		s.metrics.RecordEventsAppended(ctx, aggregateTypeOf(evs[0]), len(evs))
	}
	return nil
}

// GetEvents возвращает события агрегата начиная с указанной версии
func (s *InMemoryEventStore) GetEvents(ctx context.Context, aggregateID string, fromVersion int64) ([]StoredEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stream, exists := s.streams[aggregateID]
	if !exists {
		return nil, ErrStreamNotFound
	}

	var result []StoredEvent
	for _, event := range stream {
		if event.Version >= fromVersion {
			result = append(result, event)
		}
	}
	return result, nil
}

// GetEventsToVersion возвращает события агрегата до указанной версии включительно
func (s *InMemoryEventStore) GetEventsToVersion(ctx context.Context, aggregateID string, toVersion int64) ([]StoredEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stream, exists := s.streams[aggregateID]
	if !exists {
		return nil, ErrStreamNotFound
	}

	var result []StoredEvent
	for _, event := range stream {
		if toVersion > 0 && event.Version > toVersion {
			break
		}
		result = append(result, event)
	}
	return result, nil
}

// GetAllEvents возвращает все события начиная с указанной позиции
func (s *InMemoryEventStore) GetAllEvents(ctx context.Context, fromPosition int64) (<-chan StoredEvent, error) {
	s.mu.RLock()
	snapshot := make([]StoredEvent, 0, len(s.allEvents))
	for _, event := range s.allEvents {
		if event.Position >= fromPosition {
			snapshot = append(snapshot, event)
		}
	}
	s.mu.RUnlock()

	ch := make(chan StoredEvent, 100)
	go func() {
		defer close(ch)
		for _, event := range snapshot {
			select {
			case ch <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Clear очищает все события (для тестов)
func (s *InMemoryEventStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams = make(map[string][]StoredEvent)
	s.allEvents = nil
	s.position = 0
}

func aggregateTypeOf(event events.Event) string {
	if metadata := event.Metadata(); metadata != nil {
		if aggType, ok := metadata.Get("aggregate_type"); ok {
			if str, ok := aggType.(string); ok {
				return str
			}
		}
	}
	return "unknown"
}

func copyMetadata(metadata events.EventMetadata) map[string]interface{} {
	result := make(map[string]interface{})
	for k, v := range metadata {
		result[k] = v
	}
	return result
}
