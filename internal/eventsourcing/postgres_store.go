package eventsourcing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/akriventsev/checkout/internal/events"
	"github.com/akriventsev/checkout/internal/metrics"
)

const uniqueViolationCode = "23505"

// PostgresEventStore реализация EventStore на PostgreSQL.
// События добавляются в одной транзакции с записями outbox: либо и событие,
// и сообщение для доставки зафиксированы, либо ни одно из них
type PostgresEventStore struct {
	pool     *pgxpool.Pool
	registry *Registry
	tracer   trace.Tracer
	metrics  *metrics.Metrics
}

// NewPostgresEventStore создает новый PostgreSQL Event Store
func NewPostgresEventStore(pool *pgxpool.Pool, registry *Registry) *PostgresEventStore {
	return &PostgresEventStore{
		pool:     pool,
		registry: registry,
		tracer:   otel.Tracer("eventsourcing.postgres"),
	}
}

// WithMetrics подключает сборщик метрик
func (s *PostgresEventStore) WithMetrics(m *metrics.Metrics) *PostgresEventStore {
	s.metrics = m
	return s
}

// AppendEvents добавляет события в поток агрегата с проверкой версии.
// Конфликт версий обнаруживается дважды: явной проверкой текущей версии и
// уникальным ограничением (aggregate_id, version) при конкурентной записи
func (s *PostgresEventStore) AppendEvents(ctx context.Context, aggregateID string, expectedVersion int64, evs []events.Event) error {
	ctx, span := s.tracer.Start(ctx, "EventStore.AppendEvents",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID),
			attribute.Int64("aggregate.expected_version", expectedVersion),
			attribute.Int("events.count", len(evs)),
		))
	defer span.End()

	if err := ValidateExpectedVersion(expectedVersion); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if len(evs) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var currentVersion int64
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM events WHERE aggregate_id = $1`,
		aggregateID,
	).Scan(&currentVersion)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to read stream version: %w", err)
	}
	if currentVersion != expectedVersion {
		err := fmt.Errorf("%w: expected %d, got %d", ErrConcurrencyConflict, expectedVersion, currentVersion)
		if s.metrics != nil {
			s.metrics.RecordVersionConflict(ctx, aggregateTypeOf(evs[0]))
		}
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	now := time.Now().UTC()
	for i, event := range evs {
		payload, err := json.Marshal(event)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("failed to marshal event %s: %w", event.EventType(), err)
		}
		metadata, err := json.Marshal(event.Metadata())
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("failed to marshal event metadata: %w", err)
		}

		aggregateType := aggregateTypeOf(event)
		version := expectedVersion + int64(i) + 1

		_, err = tx.Exec(ctx,
			`INSERT INTO events (id, aggregate_id, aggregate_type, event_type, payload, metadata, version, occurred_at, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			event.EventID(), aggregateID, aggregateType, event.EventType(),
			payload, metadata, version, event.OccurredAt(), now,
		)
		if err != nil {
			if isUniqueViolation(err) {
				err = fmt.Errorf("%w: version %d already written for aggregate %s", ErrConcurrencyConflict, version, aggregateID)
				if s.metrics != nil {
					s.metrics.RecordVersionConflict(ctx, aggregateType)
				}
			}
			span.SetStatus(codes.Error, err.Error())
			return err
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO outbox (event_id, aggregate_id, aggregate_type, event_type, payload, metadata, status, attempts, next_attempt_at, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, 'pending', 0, $7, $7)`,
			event.EventID(), aggregateID, aggregateType, event.EventType(),
			payload, metadata, now,
		)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("failed to insert outbox record: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			err = fmt.Errorf("%w: concurrent append to aggregate %s", ErrConcurrencyConflict, aggregateID)
			if s.metrics != nil {
				s.metrics.RecordVersionConflict(ctx, aggregateTypeOf(evs[0]))
			}
		}
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordEventsAppended(ctx, aggregateTypeOf(evs[0]), len(evs))
	}
	return nil
}

// GetEvents возвращает события агрегата начиная с указанной версии
func (s *PostgresEventStore) GetEvents(ctx context.Context, aggregateID string, fromVersion int64) ([]StoredEvent, error) {
	ctx, span := s.tracer.Start(ctx, "EventStore.GetEvents",
		trace.WithAttributes(attribute.String("aggregate.id", aggregateID)))
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT id, aggregate_id, aggregate_type, event_type, payload, metadata, version, position, occurred_at, created_at
		 FROM events
		 WHERE aggregate_id = $1 AND version >= $2
		 ORDER BY version ASC`,
		aggregateID, fromVersion,
	)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	result, err := s.scanEvents(rows)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(result) == 0 {
		return nil, ErrStreamNotFound
	}
	span.SetAttributes(attribute.Int("events.count", len(result)))
	return result, nil
}

// GetEventsToVersion возвращает события агрегата до указанной версии включительно.
// toVersion = 0 означает все события потока
func (s *PostgresEventStore) GetEventsToVersion(ctx context.Context, aggregateID string, toVersion int64) ([]StoredEvent, error) {
	ctx, span := s.tracer.Start(ctx, "EventStore.GetEventsToVersion",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID),
			attribute.Int64("aggregate.to_version", toVersion),
		))
	defer span.End()

	query := `SELECT id, aggregate_id, aggregate_type, event_type, payload, metadata, version, position, occurred_at, created_at
		 FROM events
		 WHERE aggregate_id = $1`
	args := []interface{}{aggregateID}
	if toVersion > 0 {
		query += ` AND version <= $2`
		args = append(args, toVersion)
	}
	query += ` ORDER BY version ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	result, err := s.scanEvents(rows)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(result) == 0 {
		return nil, ErrStreamNotFound
	}
	return result, nil
}

// GetAllEvents возвращает все события начиная с указанной позиции
func (s *PostgresEventStore) GetAllEvents(ctx context.Context, fromPosition int64) (<-chan StoredEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, aggregate_id, aggregate_type, event_type, payload, metadata, version, position, occurred_at, created_at
		 FROM events
		 WHERE position >= $1
		 ORDER BY position ASC`,
		fromPosition,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	stored, err := s.scanEvents(rows)
	if err != nil {
		return nil, err
	}

	ch := make(chan StoredEvent, 100)
	go func() {
		defer close(ch)
		for _, event := range stored {
			select {
			case ch <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (s *PostgresEventStore) scanEvents(rows pgx.Rows) ([]StoredEvent, error) {
	var result []StoredEvent
	for rows.Next() {
		var (
			stored       StoredEvent
			payload      []byte
			metadataJSON []byte
		)
		err := rows.Scan(
			&stored.ID, &stored.AggregateID, &stored.AggregateType, &stored.EventType,
			&payload, &metadataJSON, &stored.Version, &stored.Position,
			&stored.OccurredAt, &stored.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &stored.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event metadata: %w", err)
			}
		}

		event, err := s.registry.Deserialize(stored, payload)
		if err != nil {
			return nil, err
		}
		stored.EventData = event
		result = append(result, stored)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read event rows: %w", err)
	}
	return result, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
