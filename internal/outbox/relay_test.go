package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	published []string
	failures  map[string]error
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{failures: make(map[string]error)}
}

func (p *fakePublisher) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	if err, ok := p.failures[headers["event_id"]]; ok {
		return err
	}
	p.published = append(p.published, subject)
	return nil
}

func pendingRecord(eventID, eventType string) Record {
	return Record{
		EventID:       eventID,
		AggregateID:   "agg-1",
		AggregateType: "order",
		EventType:     eventType,
		Payload:       []byte(`{}`),
		Status:        StatusPending,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestRelayDeliversPendingRecords(t *testing.T) {
	store := NewInMemoryStore()
	publisher := newFakePublisher()
	relay, err := NewRelay(DefaultRelayConfig(), store, publisher)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Enqueue(ctx, []Record{
		pendingRecord("e1", "order.created"),
		pendingRecord("e2", "order.confirmed"),
	}))

	require.NoError(t, relay.ProcessBatch(ctx))

	assert.Equal(t, []string{"events.order.created", "events.order.confirmed"}, publisher.published)

	rec, ok := store.Get("e1")
	require.True(t, ok)
	assert.Equal(t, StatusDelivered, rec.Status)
	require.NotNil(t, rec.DeliveredAt)

	// повторный проход ничего не доставляет заново
	require.NoError(t, relay.ProcessBatch(ctx))
	assert.Len(t, publisher.published, 2)
}

func TestRelayRetriesWithBackoff(t *testing.T) {
	store := NewInMemoryStore()
	publisher := newFakePublisher()
	publisher.failures["e1"] = errors.New("broker unavailable")

	config := DefaultRelayConfig()
	config.InitialBackoff = time.Minute
	relay, err := NewRelay(config, store, publisher)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Enqueue(ctx, []Record{pendingRecord("e1", "order.created")}))
	require.NoError(t, relay.ProcessBatch(ctx))

	rec, ok := store.Get("e1")
	require.True(t, ok)
	assert.Equal(t, StatusPending, rec.Status)
	assert.Equal(t, 1, rec.Attempts)
	assert.Equal(t, "broker unavailable", rec.LastError)
	assert.True(t, rec.NextAttemptAt.After(time.Now()), "next attempt must be in the future")

	// до наступления next_attempt_at запись не выбирается
	require.NoError(t, relay.ProcessBatch(ctx))
	rec, _ = store.Get("e1")
	assert.Equal(t, 1, rec.Attempts)

	// после восстановления транспорта запись доставляется
	delete(publisher.failures, "e1")
	records, err := store.FetchPending(ctx, 10, time.Now().UTC().Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NoError(t, relay.deliver(ctx, records[0]))

	rec, _ = store.Get("e1")
	assert.Equal(t, StatusDelivered, rec.Status)
}

func TestRelayMarksExhaustedRecordsFailed(t *testing.T) {
	store := NewInMemoryStore()
	publisher := newFakePublisher()
	publisher.failures["e1"] = errors.New("broker unavailable")

	config := DefaultRelayConfig()
	config.MaxAttempts = 2
	config.InitialBackoff = 0
	relay, err := NewRelay(config, store, publisher)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Enqueue(ctx, []Record{pendingRecord("e1", "order.created")}))

	require.NoError(t, relay.ProcessBatch(ctx))
	require.NoError(t, relay.ProcessBatch(ctx))

	rec, ok := store.Get("e1")
	require.True(t, ok)
	assert.Equal(t, StatusFailed, rec.Status, "exhausted record must be surfaced, not dropped")
	assert.Equal(t, 2, rec.Attempts)

	// failed-записи больше не выбираются
	records, err := store.FetchPending(ctx, 10, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRelayBackoffGrowth(t *testing.T) {
	config := DefaultRelayConfig()
	config.InitialBackoff = time.Second
	config.MaxBackoff = 10 * time.Second
	relay, err := NewRelay(config, NewInMemoryStore(), newFakePublisher())
	require.NoError(t, err)

	assert.Equal(t, time.Second, relay.backoff(1))
	assert.Equal(t, 2*time.Second, relay.backoff(2))
	assert.Equal(t, 4*time.Second, relay.backoff(3))
	assert.Equal(t, 8*time.Second, relay.backoff(4))
	assert.Equal(t, 10*time.Second, relay.backoff(5))
	assert.Equal(t, 10*time.Second, relay.backoff(12))
}
