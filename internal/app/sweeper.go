package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akriventsev/checkout/internal/domain/inventory"
)

// ExpiredReservation просроченное активное резервирование
type ExpiredReservation struct {
	ItemID        string
	ReservationID string
}

// ExpiredReservationSource источник просроченных резервирований
type ExpiredReservationSource interface {
	FindExpired(ctx context.Context, limit int, now time.Time) ([]ExpiredReservation, error)
}

// SweeperConfig конфигурация очистки просроченных резервирований
type SweeperConfig struct {
	Interval  time.Duration
	BatchSize int
}

// DefaultSweeperConfig возвращает конфигурацию очистки по умолчанию
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval:  30 * time.Second,
		BatchSize: 100,
	}
}

// Validate проверяет конфигурацию
func (c SweeperConfig) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	return nil
}

// Sweeper периодически снимает просроченные резервирования. Снятие
// публикует обычное событие reservation_released, поэтому сага увидит
// таймаут тем же путем, что и явную отмену
type Sweeper struct {
	config SweeperConfig
	source ExpiredReservationSource
	items  *InventoryService
}

// NewSweeper создает очистку просроченных резервирований
func NewSweeper(config SweeperConfig, source ExpiredReservationSource, items *InventoryService) (*Sweeper, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sweeper config: %w", err)
	}
	return &Sweeper{config: config, source: source, items: items}, nil
}

// Run запускает периодическую очистку до отмены контекста
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				log.Printf("sweeper: sweep failed: %v", err)
			}
		}
	}
}

// Sweep снимает одну партию просроченных резервирований и возвращает
// количество снятых
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	expired, err := s.source.FindExpired(ctx, s.config.BatchSize, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to find expired reservations: %w", err)
	}

	released := 0
	for _, r := range expired {
		err := s.items.ReleaseReservation(ctx, r.ItemID, r.ReservationID, "timeout")
		if err != nil {
			// резервирование могло быть подтверждено между выборкой и снятием
			if inventory.IsInvalidReservationState(err) {
				continue
			}
			log.Printf("sweeper: failed to release %s on %s: %v", r.ReservationID, r.ItemID, err)
			continue
		}
		released++
	}
	return released, nil
}

// PostgresExpiredReservations находит просроченные резервирования по
// журналу событий: активно то, по которому после stock_reserved не было
// подтверждения, снятия или списания
type PostgresExpiredReservations struct {
	pool *pgxpool.Pool
}

// NewPostgresExpiredReservations создает источник на PostgreSQL
func NewPostgresExpiredReservations(pool *pgxpool.Pool) *PostgresExpiredReservations {
	return &PostgresExpiredReservations{pool: pool}
}

// FindExpired выбирает резервирования с истекшим expires_at
func (p *PostgresExpiredReservations) FindExpired(ctx context.Context, limit int, now time.Time) ([]ExpiredReservation, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT e.aggregate_id, e.payload->>'reservation_id'
		 FROM events e
		 WHERE e.event_type = 'inventory.stock_reserved'
		   AND (e.payload->>'expires_at')::timestamptz <= $2
		   AND NOT EXISTS (
		       SELECT 1 FROM events f
		       WHERE f.aggregate_id = e.aggregate_id
		         AND f.event_type IN ('inventory.reservation_confirmed', 'inventory.reservation_released', 'inventory.stock_committed')
		         AND f.payload->>'reservation_id' = e.payload->>'reservation_id'
		   )
		 ORDER BY e.position
		 LIMIT $1`,
		limit, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired reservations: %w", err)
	}
	defer rows.Close()

	var expired []ExpiredReservation
	for rows.Next() {
		var r ExpiredReservation
		if err := rows.Scan(&r.ItemID, &r.ReservationID); err != nil {
			return nil, fmt.Errorf("failed to scan expired reservation: %w", err)
		}
		expired = append(expired, r)
	}
	return expired, rows.Err()
}

// EventStoreExpiredReservations источник на базе загрузки агрегатов,
// используется с in-memory хранилищем. Требует список отслеживаемых
// позиций, так как хранилище не индексирует агрегаты по типу
type EventStoreExpiredReservations struct {
	items   *InventoryService
	itemIDs func() []string
}

// NewEventStoreExpiredReservations создает источник поверх сервиса склада
func NewEventStoreExpiredReservations(items *InventoryService, itemIDs func() []string) *EventStoreExpiredReservations {
	return &EventStoreExpiredReservations{items: items, itemIDs: itemIDs}
}

// FindExpired перебирает позиции и собирает просроченные резервирования
func (p *EventStoreExpiredReservations) FindExpired(ctx context.Context, limit int, now time.Time) ([]ExpiredReservation, error) {
	var expired []ExpiredReservation
	for _, itemID := range p.itemIDs() {
		item, err := p.items.GetItem(ctx, itemID)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			continue
		}
		for _, r := range item.ExpiredReservations(now) {
			expired = append(expired, ExpiredReservation{ItemID: itemID, ReservationID: r.ID})
			if len(expired) >= limit {
				return expired, nil
			}
		}
	}
	return expired, nil
}
