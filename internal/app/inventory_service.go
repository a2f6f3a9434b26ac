package app

import (
	"context"
	"errors"
	"time"

	"github.com/akriventsev/checkout/internal/domain/inventory"
	"github.com/akriventsev/checkout/internal/eventsourcing"
)

// InventoryService выполняет команды над агрегатом складской позиции.
// Резервирование перечитывает доступный остаток на каждой попытке:
// конфликт версий означает, что другой писатель успел изменить остаток
type InventoryService struct {
	items   *eventsourcing.Repository[*inventory.Item]
	retries int
}

// NewInventoryService создает сервис склада
func NewInventoryService(store eventsourcing.EventStore) *InventoryService {
	return &InventoryService{
		items:   eventsourcing.NewRepository(store, inventory.NewItem),
		retries: DefaultConflictRetries,
	}
}

// GetItem загружает актуальное состояние складской позиции
func (s *InventoryService) GetItem(ctx context.Context, itemID string) (*inventory.Item, error) {
	return s.items.Load(ctx, itemID)
}

// InitializeStock создает складскую позицию. Повторная инициализация безвредна
func (s *InventoryService) InitializeStock(ctx context.Context, cmd InitializeStock) error {
	return eventsourcing.RetryOnConflict(ctx, s.retries, func(ctx context.Context) error {
		item, err := s.items.Load(ctx, cmd.ItemID)
		if errors.Is(err, eventsourcing.ErrStreamNotFound) {
			item = inventory.NewItem(cmd.ItemID)
		} else if err != nil {
			return err
		}
		if err := item.Initialize(cmd.ProductID, cmd.VariantID, cmd.WarehouseID, cmd.OnHand, cmd.ReorderPoint); err != nil {
			return err
		}
		return s.items.Save(ctx, item)
	})
}

// ReceiveStock оприходует поставку
func (s *InventoryService) ReceiveStock(ctx context.Context, itemID string, quantity int64, reference string) error {
	return s.mutate(ctx, itemID, func(item *inventory.Item) error {
		return item.Receive(quantity, reference)
	})
}

// RecordInbound фиксирует поставку в пути
func (s *InventoryService) RecordInbound(ctx context.Context, itemID string, quantity int64, reference string, expectedAt time.Time) error {
	return s.mutate(ctx, itemID, func(item *inventory.Item) error {
		return item.RecordInbound(quantity, reference, expectedAt)
	})
}

// ReserveStock резервирует остаток под заказ и возвращает идентификатор
// резервирования
func (s *InventoryService) ReserveStock(ctx context.Context, cmd ReserveStock) (string, error) {
	var reservationID string
	err := eventsourcing.RetryOnConflict(ctx, s.retries, func(ctx context.Context) error {
		item, err := s.items.Load(ctx, cmd.ItemID)
		if err != nil {
			return err
		}
		reservationID, err = item.Reserve(cmd.OrderID, cmd.Quantity, cmd.ExpiresAt)
		if err != nil {
			return err
		}
		return s.items.Save(ctx, item)
	})
	if err != nil {
		return "", err
	}
	return reservationID, nil
}

// ConfirmReservation подтверждает резервирование
func (s *InventoryService) ConfirmReservation(ctx context.Context, itemID, reservationID string) error {
	return s.mutate(ctx, itemID, func(item *inventory.Item) error {
		return item.ConfirmReservation(reservationID)
	})
}

// ReleaseReservation снимает резервирование и возвращает остаток
func (s *InventoryService) ReleaseReservation(ctx context.Context, itemID, reservationID, reason string) error {
	return s.mutate(ctx, itemID, func(item *inventory.Item) error {
		return item.Release(reservationID, reason)
	})
}

// ReleaseOrderReservations снимает все активные резервирования заказа
func (s *InventoryService) ReleaseOrderReservations(ctx context.Context, itemID, orderID, reason string) error {
	return s.mutate(ctx, itemID, func(item *inventory.Item) error {
		return item.ReleaseOrder(orderID, reason)
	})
}

// CommitStock списывает подтвержденное резервирование
func (s *InventoryService) CommitStock(ctx context.Context, itemID, reservationID string) error {
	return s.mutate(ctx, itemID, func(item *inventory.Item) error {
		return item.Commit(reservationID)
	})
}

// AdjustStock корректирует остаток по результатам инвентаризации
func (s *InventoryService) AdjustStock(ctx context.Context, itemID string, delta int64, reason string) error {
	return s.mutate(ctx, itemID, func(item *inventory.Item) error {
		return item.Adjust(delta, reason)
	})
}

// MarkDamaged помечает часть остатка поврежденной
func (s *InventoryService) MarkDamaged(ctx context.Context, itemID string, quantity int64, reason string) error {
	return s.mutate(ctx, itemID, func(item *inventory.Item) error {
		return item.MarkDamaged(quantity, reason)
	})
}

func (s *InventoryService) mutate(ctx context.Context, itemID string, fn func(item *inventory.Item) error) error {
	return eventsourcing.RetryOnConflict(ctx, s.retries, func(ctx context.Context) error {
		item, err := s.items.Load(ctx, itemID)
		if err != nil {
			return err
		}
		if err := fn(item); err != nil {
			return err
		}
		return s.items.Save(ctx, item)
	})
}
