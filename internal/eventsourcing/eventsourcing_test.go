package eventsourcing

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/akriventsev/checkout/internal/events"
	"github.com/akriventsev/checkout/internal/outbox"
)

type counterIncremented struct {
	*events.BaseEvent
	Delta int64 `json:"delta"`
}

func newCounterIncremented(aggregateID string, delta int64) *counterIncremented {
	return &counterIncremented{
		BaseEvent: events.NewBaseEvent("counter.incremented", aggregateID),
		Delta:     delta,
	}
}

type counterAggregate struct {
	*Aggregate
	total int64
}

func newCounterAggregate(id string) *counterAggregate {
	c := &counterAggregate{Aggregate: NewAggregate(id, "counter")}
	c.SetApplier(c)
	return c
}

func (c *counterAggregate) Apply(event events.Event) error {
	switch e := event.(type) {
	case *counterIncremented:
		c.total += e.Delta
		return nil
	default:
		return errors.New("unknown event type")
	}
}

func (c *counterAggregate) Increment(delta int64) error {
	return c.Raise(newCounterIncremented(c.ID(), delta))
}

func TestInMemoryEventStoreAppendAndGet(t *testing.T) {
	store := NewInMemoryEventStore()
	ctx := context.Background()

	evs := []events.Event{
		newCounterIncremented("agg-1", 1),
		newCounterIncremented("agg-1", 2),
	}
	if err := store.AppendEvents(ctx, "agg-1", 0, evs); err != nil {
		t.Fatalf("AppendEvents failed: %v", err)
	}

	stored, err := store.GetEvents(ctx, "agg-1", 0)
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected 2 events, got %d", len(stored))
	}
	if stored[0].Version != 1 || stored[1].Version != 2 {
		t.Errorf("unexpected versions: %d, %d", stored[0].Version, stored[1].Version)
	}
	if stored[1].Position <= stored[0].Position {
		t.Errorf("positions must be strictly increasing: %d, %d", stored[0].Position, stored[1].Position)
	}
}

func TestInMemoryEventStoreConcurrencyConflict(t *testing.T) {
	store := NewInMemoryEventStore()
	ctx := context.Background()

	if err := store.AppendEvents(ctx, "agg-1", 0, []events.Event{newCounterIncremented("agg-1", 1)}); err != nil {
		t.Fatalf("first append failed: %v", err)
	}

	err := store.AppendEvents(ctx, "agg-1", 0, []events.Event{newCounterIncremented("agg-1", 2)})
	if !errors.Is(err, ErrConcurrencyConflict) {
		t.Fatalf("expected ErrConcurrencyConflict, got %v", err)
	}

	stored, err := store.GetEvents(ctx, "agg-1", 0)
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(stored) != 1 {
		t.Errorf("conflicting append must not write events, got %d", len(stored))
	}
}

func TestInMemoryEventStoreNegativeExpectedVersion(t *testing.T) {
	store := NewInMemoryEventStore()

	err := store.AppendEvents(context.Background(), "agg-1", -1, []events.Event{newCounterIncremented("agg-1", 1)})
	if !errors.Is(err, ErrInvalidVersion) {
		t.Fatalf("expected ErrInvalidVersion, got %v", err)
	}
}

func TestInMemoryEventStoreStreamNotFound(t *testing.T) {
	store := NewInMemoryEventStore()

	_, err := store.GetEvents(context.Background(), "missing", 0)
	if !errors.Is(err, ErrStreamNotFound) {
		t.Fatalf("expected ErrStreamNotFound, got %v", err)
	}
}

func TestInMemoryEventStoreOutboxSink(t *testing.T) {
	sink := outbox.NewInMemoryStore()
	store := NewInMemoryEventStore().WithOutbox(sink)
	ctx := context.Background()

	event := newCounterIncremented("agg-1", 5)
	if err := store.AppendEvents(ctx, "agg-1", 0, []events.Event{event}); err != nil {
		t.Fatalf("AppendEvents failed: %v", err)
	}

	record, ok := sink.Get(event.EventID())
	if !ok {
		t.Fatalf("outbox record not enqueued")
	}
	if record.Status != outbox.StatusPending {
		t.Errorf("expected pending status, got %s", record.Status)
	}
	if record.EventType != "counter.incremented" {
		t.Errorf("unexpected event type: %s", record.EventType)
	}

	var payload struct {
		Delta int64 `json:"delta"`
	}
	if err := json.Unmarshal(record.Payload, &payload); err != nil {
		t.Fatalf("failed to unmarshal payload: %v", err)
	}
	if payload.Delta != 5 {
		t.Errorf("expected delta 5, got %d", payload.Delta)
	}
}

func TestRegistryDeserialize(t *testing.T) {
	registry := NewRegistry()
	registry.Register("counter.incremented", func() events.Event {
		return &counterIncremented{BaseEvent: &events.BaseEvent{}}
	})

	occurredAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	stored := StoredEvent{
		ID:          "event-1",
		AggregateID: "agg-1",
		EventType:   "counter.incremented",
		Metadata:    map[string]interface{}{"correlation_id": "corr-1"},
		OccurredAt:  occurredAt,
	}

	event, err := registry.Deserialize(stored, []byte(`{"delta":7}`))
	if err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}

	typed, ok := event.(*counterIncremented)
	if !ok {
		t.Fatalf("expected *counterIncremented, got %T", event)
	}
	if typed.Delta != 7 {
		t.Errorf("expected delta 7, got %d", typed.Delta)
	}
	if typed.EventID() != "event-1" || typed.AggregateID() != "agg-1" {
		t.Errorf("identity not rehydrated: %s, %s", typed.EventID(), typed.AggregateID())
	}
	if !typed.OccurredAt().Equal(occurredAt) {
		t.Errorf("occurred_at not rehydrated: %v", typed.OccurredAt())
	}
	if typed.Metadata().CorrelationID() != "corr-1" {
		t.Errorf("metadata not rehydrated: %v", typed.Metadata())
	}
}

func TestRegistryUnknownEventType(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.Deserialize(StoredEvent{EventType: "unknown.event"}, nil)
	if !errors.Is(err, ErrUnknownEventType) {
		t.Fatalf("expected ErrUnknownEventType, got %v", err)
	}
}

func TestRepositorySaveAndLoad(t *testing.T) {
	store := NewInMemoryEventStore()
	repo := NewRepository(store, newCounterAggregate)
	ctx := context.Background()

	counter := newCounterAggregate("agg-1")
	if err := counter.Increment(3); err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	if err := counter.Increment(4); err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	if err := repo.Save(ctx, counter); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if len(counter.UncommittedEvents()) != 0 {
		t.Errorf("uncommitted events must be cleared after save")
	}

	loaded, err := repo.Load(ctx, "agg-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.total != 7 {
		t.Errorf("expected total 7, got %d", loaded.total)
	}
	if loaded.Version() != 2 {
		t.Errorf("expected version 2, got %d", loaded.Version())
	}
}

func TestRepositoryLoadToVersion(t *testing.T) {
	store := NewInMemoryEventStore()
	repo := NewRepository(store, newCounterAggregate)
	ctx := context.Background()

	counter := newCounterAggregate("agg-1")
	for _, delta := range []int64{1, 2, 3} {
		if err := counter.Increment(delta); err != nil {
			t.Fatalf("Increment failed: %v", err)
		}
	}
	if err := repo.Save(ctx, counter); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := repo.LoadToVersion(ctx, "agg-1", 2)
	if err != nil {
		t.Fatalf("LoadToVersion failed: %v", err)
	}
	if loaded.total != 3 {
		t.Errorf("expected total 3 at version 2, got %d", loaded.total)
	}
	if loaded.Version() != 2 {
		t.Errorf("expected version 2, got %d", loaded.Version())
	}
}

func TestRepositoryStaleSaveConflicts(t *testing.T) {
	store := NewInMemoryEventStore()
	repo := NewRepository(store, newCounterAggregate)
	ctx := context.Background()

	first := newCounterAggregate("agg-1")
	if err := first.Increment(1); err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	if err := repo.Save(ctx, first); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	a, err := repo.Load(ctx, "agg-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	b, err := repo.Load(ctx, "agg-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if err := a.Increment(10); err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	if err := b.Increment(20); err != nil {
		t.Fatalf("Increment failed: %v", err)
	}

	if err := repo.Save(ctx, a); err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	if err := repo.Save(ctx, b); !errors.Is(err, ErrConcurrencyConflict) {
		t.Fatalf("expected ErrConcurrencyConflict, got %v", err)
	}
}

func TestRetryOnConflict(t *testing.T) {
	ctx := context.Background()

	calls := 0
	err := RetryOnConflict(ctx, 3, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return ErrConcurrencyConflict
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}

	calls = 0
	err = RetryOnConflict(ctx, 2, func(ctx context.Context) error {
		calls++
		return ErrConcurrencyConflict
	})
	if !errors.Is(err, ErrConcurrencyConflict) {
		t.Fatalf("expected ErrConcurrencyConflict after exhausting attempts, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 attempts, got %d", calls)
	}

	sentinel := errors.New("boom")
	calls = 0
	err = RetryOnConflict(ctx, 5, func(ctx context.Context) error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("non-conflict errors must not be retried, got %d attempts", calls)
	}
}
