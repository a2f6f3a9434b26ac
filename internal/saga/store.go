package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrInstanceNotFound сага для заказа не найдена
	ErrInstanceNotFound = errors.New("saga instance not found")
	// ErrVersionConflict конкурентное обновление саги; вызывающий обязан
	// перечитать состояние и повторить шаг
	ErrVersionConflict = errors.New("saga instance version conflict")
)

// Store хранилище экземпляров саги. Save принимает версию, с которой
// экземпляр был загружен: несовпадение означает конкурентный шаг
type Store interface {
	Load(ctx context.Context, orderID string) (Instance, error)
	Save(ctx context.Context, instance Instance) error
}

// InMemoryStore реализация Store в памяти для тестирования и разработки
type InMemoryStore struct {
	mu        sync.Mutex
	instances map[string]Instance
}

// NewInMemoryStore создает новое in-memory хранилище саг
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{instances: make(map[string]Instance)}
}

// Load загружает сагу по идентификатору заказа
func (s *InMemoryStore) Load(ctx context.Context, orderID string) (Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	instance, ok := s.instances[orderID]
	if !ok {
		return Instance{}, ErrInstanceNotFound
	}
	return cloneInstance(instance), nil
}

// Save сохраняет сагу с проверкой версии
func (s *InMemoryStore) Save(ctx context.Context, instance Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.instances[instance.OrderID]
	if exists && current.Version != instance.Version {
		return fmt.Errorf("%w: expected %d, got %d", ErrVersionConflict, instance.Version, current.Version)
	}
	if !exists && instance.Version != 0 {
		return fmt.Errorf("%w: instance does not exist", ErrVersionConflict)
	}

	saved := cloneInstance(instance)
	saved.Version++
	s.instances[instance.OrderID] = saved
	return nil
}

// PostgresStore реализация Store на PostgreSQL
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore создает новое PostgreSQL хранилище саг
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Load загружает сагу по идентификатору заказа
func (s *PostgresStore) Load(ctx context.Context, orderID string) (Instance, error) {
	var (
		instance         Instance
		expectedJSON     []byte
		reservationsJSON []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT order_id, state, expected, reservations, payment_id, retry_count, max_retries, version, created_at, updated_at
		 FROM saga_instances WHERE order_id = $1`,
		orderID,
	).Scan(
		&instance.OrderID, &instance.State, &expectedJSON, &reservationsJSON,
		&instance.PaymentID, &instance.RetryCount, &instance.MaxRetries,
		&instance.Version, &instance.CreatedAt, &instance.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Instance{}, ErrInstanceNotFound
	}
	if err != nil {
		return Instance{}, fmt.Errorf("failed to load saga instance: %w", err)
	}

	if err := json.Unmarshal(expectedJSON, &instance.Expected); err != nil {
		return Instance{}, fmt.Errorf("failed to unmarshal expected items: %w", err)
	}
	if err := json.Unmarshal(reservationsJSON, &instance.Reservations); err != nil {
		return Instance{}, fmt.Errorf("failed to unmarshal reservations: %w", err)
	}
	return instance, nil
}

// Save сохраняет сагу с проверкой версии
func (s *PostgresStore) Save(ctx context.Context, instance Instance) error {
	expectedJSON, err := json.Marshal(instance.Expected)
	if err != nil {
		return fmt.Errorf("failed to marshal expected items: %w", err)
	}
	reservationsJSON, err := json.Marshal(instance.Reservations)
	if err != nil {
		return fmt.Errorf("failed to marshal reservations: %w", err)
	}

	if instance.Version == 0 {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO saga_instances (order_id, state, expected, reservations, payment_id, retry_count, max_retries, version, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, 1, $8, $9)`,
			instance.OrderID, instance.State, expectedJSON, reservationsJSON,
			instance.PaymentID, instance.RetryCount, instance.MaxRetries,
			instance.CreatedAt, instance.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrVersionConflict, err)
		}
		return nil
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE saga_instances
		 SET state = $2, expected = $3, reservations = $4, payment_id = $5,
		     retry_count = $6, version = version + 1, updated_at = $7
		 WHERE order_id = $1 AND version = $8`,
		instance.OrderID, instance.State, expectedJSON, reservationsJSON,
		instance.PaymentID, instance.RetryCount, instance.UpdatedAt, instance.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to save saga instance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}
