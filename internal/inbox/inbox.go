// Package inbox предоставляет дедупликацию входящих событий для потребителей
// с доставкой как минимум один раз.
package inbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Tracker учитывает обработанные события потребителя.
// MarkSeen атомарно помечает событие обработанным и сообщает, было ли оно
// уже помечено ранее: true означает дубликат, который потребитель пропускает.
// Forget снимает отметку: потребитель, пометивший событие до обработки,
// обязан вернуть его в доставку при неуспехе
type Tracker interface {
	MarkSeen(ctx context.Context, consumer, eventID string) (bool, error)
	Forget(ctx context.Context, consumer, eventID string) error
}

// InMemoryTracker реализация Tracker в памяти для тестирования и разработки
type InMemoryTracker struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewInMemoryTracker создает новый InMemory Tracker
func NewInMemoryTracker() *InMemoryTracker {
	return &InMemoryTracker{seen: make(map[string]struct{})}
}

// MarkSeen помечает событие обработанным
func (t *InMemoryTracker) MarkSeen(ctx context.Context, consumer, eventID string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := consumer + ":" + eventID
	if _, ok := t.seen[key]; ok {
		return true, nil
	}
	t.seen[key] = struct{}{}
	return false, nil
}

// Forget снимает отметку об обработке
func (t *InMemoryTracker) Forget(ctx context.Context, consumer, eventID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.seen, consumer+":"+eventID)
	return nil
}

// DefaultDedupTTL срок хранения отметки об обработке по умолчанию
const DefaultDedupTTL = 24 * time.Hour

// RedisTracker реализация Tracker на Redis. Отметка ставится атомарно
// через SETNX и истекает по TTL
type RedisTracker struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisTracker создает новый Redis Tracker
func NewRedisTracker(client *redis.Client, ttl time.Duration) *RedisTracker {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &RedisTracker{
		client: client,
		ttl:    ttl,
		prefix: "inbox",
	}
}

// MarkSeen помечает событие обработанным
func (t *RedisTracker) MarkSeen(ctx context.Context, consumer, eventID string) (bool, error) {
	key := fmt.Sprintf("%s:%s:%s", t.prefix, consumer, eventID)
	set, err := t.client.SetNX(ctx, key, 1, t.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark event seen: %w", err)
	}
	return !set, nil
}

// Forget снимает отметку об обработке
func (t *RedisTracker) Forget(ctx context.Context, consumer, eventID string) error {
	key := fmt.Sprintf("%s:%s:%s", t.prefix, consumer, eventID)
	if err := t.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to forget event: %w", err)
	}
	return nil
}

// PostgresTracker реализация Tracker на PostgreSQL. Отметка ставится
// вставкой в processed_events; конфликт по ключу означает дубликат
type PostgresTracker struct {
	pool *pgxpool.Pool
}

// NewPostgresTracker создает новый PostgreSQL Tracker
func NewPostgresTracker(pool *pgxpool.Pool) *PostgresTracker {
	return &PostgresTracker{pool: pool}
}

// MarkSeen помечает событие обработанным
func (t *PostgresTracker) MarkSeen(ctx context.Context, consumer, eventID string) (bool, error) {
	tag, err := t.pool.Exec(ctx,
		`INSERT INTO processed_events (consumer, event_id, processed_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (consumer, event_id) DO NOTHING`,
		consumer, eventID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark event seen: %w", err)
	}
	return tag.RowsAffected() == 0, nil
}

// Forget снимает отметку об обработке
func (t *PostgresTracker) Forget(ctx context.Context, consumer, eventID string) error {
	_, err := t.pool.Exec(ctx,
		`DELETE FROM processed_events WHERE consumer = $1 AND event_id = $2`,
		consumer, eventID,
	)
	if err != nil {
		return fmt.Errorf("failed to forget event: %w", err)
	}
	return nil
}
