package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore реализация Store на PostgreSQL. Enqueue этим хранилищем
// не используется: записи вставляет event store в одной транзакции
// с событиями агрегата
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore создает новое PostgreSQL хранилище outbox
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Enqueue добавляет записи в outbox вне транзакции event store
func (s *PostgresStore) Enqueue(ctx context.Context, records []Record) error {
	for _, rec := range records {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO outbox (event_id, aggregate_id, aggregate_type, event_type, payload, metadata, status, attempts, next_attempt_at, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, 'pending', 0, now(), now())
			 ON CONFLICT (event_id) DO NOTHING`,
			rec.EventID, rec.AggregateID, rec.AggregateType, rec.EventType, rec.Payload, rec.Metadata,
		)
		if err != nil {
			return fmt.Errorf("failed to enqueue outbox record: %w", err)
		}
	}
	return nil
}

// FetchPending возвращает pending-записи, готовые к доставке.
// Повторная выборка той же записи конкурентным relay безопасна:
// доставка как минимум один раз, потребители дедуплицируют по event_id
func (s *PostgresStore) FetchPending(ctx context.Context, limit int, now time.Time) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT event_id, aggregate_id, aggregate_type, event_type, payload, metadata,
		        status, attempts, next_attempt_at, COALESCE(last_error, ''), created_at, delivered_at
		 FROM outbox
		 WHERE status = 'pending' AND next_attempt_at <= $1
		 ORDER BY created_at ASC
		 LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending records: %w", err)
	}
	defer rows.Close()

	var result []Record
	for rows.Next() {
		var rec Record
		err := rows.Scan(
			&rec.EventID, &rec.AggregateID, &rec.AggregateType, &rec.EventType,
			&rec.Payload, &rec.Metadata, &rec.Status, &rec.Attempts,
			&rec.NextAttemptAt, &rec.LastError, &rec.CreatedAt, &rec.DeliveredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox row: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read outbox rows: %w", err)
	}
	return result, nil
}

// MarkDelivered помечает запись доставленной
func (s *PostgresStore) MarkDelivered(ctx context.Context, eventID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE outbox SET status = 'delivered', delivered_at = $2 WHERE event_id = $1`,
		eventID, at,
	)
	if err != nil {
		return fmt.Errorf("failed to mark record delivered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// MarkAttemptFailed фиксирует неудачную попытку доставки
func (s *PostgresStore) MarkAttemptFailed(ctx context.Context, eventID string, attempt int, nextAttemptAt time.Time, lastError string, final bool) error {
	status := StatusPending
	if final {
		status = StatusFailed
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE outbox SET attempts = $2, next_attempt_at = $3, last_error = $4, status = $5 WHERE event_id = $1`,
		eventID, attempt, nextAttemptAt, lastError, status,
	)
	if err != nil {
		return fmt.Errorf("failed to mark attempt failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}
