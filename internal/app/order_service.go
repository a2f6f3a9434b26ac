package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/akriventsev/checkout/internal/domain/order"
	"github.com/akriventsev/checkout/internal/eventsourcing"
)

// DefaultConflictRetries число повторов команды при конфликте версий
const DefaultConflictRetries = 3

// OrderService выполняет команды над агрегатом заказа.
// Каждая команда работает по схеме load -> domain -> save внутри
// узкого цикла retry-on-conflict на границе обработчика
type OrderService struct {
	orders  *eventsourcing.Repository[*order.Order]
	retries int
}

// NewOrderService создает сервис заказов
func NewOrderService(store eventsourcing.EventStore) *OrderService {
	return &OrderService{
		orders:  eventsourcing.NewRepository(store, order.NewOrder),
		retries: DefaultConflictRetries,
	}
}

// GetOrder загружает актуальное состояние заказа
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*order.Order, error) {
	return s.orders.Load(ctx, orderID)
}

// GetOrderAtVersion загружает историческое состояние заказа
func (s *OrderService) GetOrderAtVersion(ctx context.Context, orderID string, version int64) (*order.Order, error) {
	return s.orders.LoadToVersion(ctx, orderID, version)
}

// CreateOrder создает новый заказ
func (s *OrderService) CreateOrder(ctx context.Context, cmd CreateOrder) error {
	if cmd.OrderID == "" {
		return fmt.Errorf("%w: order id is required", order.ErrOrderNotCreated)
	}

	_, err := s.orders.Load(ctx, cmd.OrderID)
	if err == nil {
		return order.ErrOrderAlreadyCreated
	}
	if !errors.Is(err, eventsourcing.ErrStreamNotFound) {
		return err
	}

	o := order.NewOrder(cmd.OrderID)
	if err := o.Create(cmd.CustomerID, cmd.Items, cmd.ShippingAddress, cmd.BillingAddress, cmd.ShippingCost, cmd.Tax); err != nil {
		return err
	}
	if cmd.Coupon != nil {
		if err := o.ApplyCoupon(*cmd.Coupon); err != nil {
			return err
		}
	}
	return s.orders.Save(ctx, o)
}

// AddItem добавляет позицию в заказ
func (s *OrderService) AddItem(ctx context.Context, orderID string, item order.Item) error {
	return s.mutate(ctx, orderID, func(o *order.Order) error {
		return o.AddItem(item)
	})
}

// RemoveItem удаляет позицию из заказа
func (s *OrderService) RemoveItem(ctx context.Context, orderID, productID, variantID string) error {
	return s.mutate(ctx, orderID, func(o *order.Order) error {
		return o.RemoveItem(productID, variantID)
	})
}

// UpdateItemQuantity изменяет количество позиции заказа
func (s *OrderService) UpdateItemQuantity(ctx context.Context, orderID, productID, variantID string, quantity int64) error {
	return s.mutate(ctx, orderID, func(o *order.Order) error {
		return o.UpdateItemQuantity(productID, variantID, quantity)
	})
}

// ApplyCoupon применяет купон к заказу
func (s *OrderService) ApplyCoupon(ctx context.Context, orderID string, coupon order.Coupon) error {
	return s.mutate(ctx, orderID, func(o *order.Order) error {
		return o.ApplyCoupon(coupon)
	})
}

// ConfirmOrder подтверждает заказ
func (s *OrderService) ConfirmOrder(ctx context.Context, orderID string) error {
	return s.mutate(ctx, orderID, func(o *order.Order) error {
		return o.Confirm()
	})
}

// RecordPaymentPending фиксирует инициацию платежа
func (s *OrderService) RecordPaymentPending(ctx context.Context, orderID, paymentID string) error {
	return s.mutate(ctx, orderID, func(o *order.Order) error {
		return o.RecordPaymentPending(paymentID)
	})
}

// RecordPaymentSuccess фиксирует успешный платеж
func (s *OrderService) RecordPaymentSuccess(ctx context.Context, orderID, paymentID string) error {
	return s.mutate(ctx, orderID, func(o *order.Order) error {
		return o.RecordPaymentSuccess(paymentID)
	})
}

// RecordPaymentFailure фиксирует неуспешный платеж
func (s *OrderService) RecordPaymentFailure(ctx context.Context, orderID, paymentID, reason string) error {
	return s.mutate(ctx, orderID, func(o *order.Order) error {
		return o.RecordPaymentFailure(paymentID, reason)
	})
}

// CancelOrder отменяет заказ
func (s *OrderService) CancelOrder(ctx context.Context, orderID, actor, reason string) error {
	return s.mutate(ctx, orderID, func(o *order.Order) error {
		return o.Cancel(actor, reason)
	})
}

// MarkProcessing передает заказ в обработку
func (s *OrderService) MarkProcessing(ctx context.Context, orderID string) error {
	return s.mutate(ctx, orderID, func(o *order.Order) error {
		return o.MarkProcessing()
	})
}

// RecordShipment фиксирует полную или частичную отправку заказа
func (s *OrderService) RecordShipment(ctx context.Context, cmd RecordShipment) error {
	return s.mutate(ctx, cmd.OrderID, func(o *order.Order) error {
		shipment := order.Shipment{
			TrackingNumber: cmd.TrackingNumber,
			Carrier:        cmd.Carrier,
			ProductIDs:     cmd.ProductIDs,
		}
		if cmd.Partial {
			return o.RecordPartialShipment(shipment)
		}
		return o.RecordShipment(shipment)
	})
}

// RecordDelivery фиксирует доставку заказа
func (s *OrderService) RecordDelivery(ctx context.Context, orderID string) error {
	return s.mutate(ctx, orderID, func(o *order.Order) error {
		return o.RecordDelivery()
	})
}

// CompleteOrder завершает заказ
func (s *OrderService) CompleteOrder(ctx context.Context, orderID string) error {
	return s.mutate(ctx, orderID, func(o *order.Order) error {
		return o.Complete()
	})
}

// RequestReturn запрашивает возврат
func (s *OrderService) RequestReturn(ctx context.Context, orderID, reason string) error {
	return s.mutate(ctx, orderID, func(o *order.Order) error {
		return o.RequestReturn(reason)
	})
}

// ApproveReturn одобряет возврат
func (s *OrderService) ApproveReturn(ctx context.Context, orderID, approvedBy string) error {
	return s.mutate(ctx, orderID, func(o *order.Order) error {
		return o.ApproveReturn(approvedBy)
	})
}

// RecordReturn фиксирует получение товара обратно
func (s *OrderService) RecordReturn(ctx context.Context, orderID string) error {
	return s.mutate(ctx, orderID, func(o *order.Order) error {
		return o.RecordReturn()
	})
}

// RefundOrder возвращает средства покупателю
func (s *OrderService) RefundOrder(ctx context.Context, orderID string) error {
	return s.mutate(ctx, orderID, func(o *order.Order) error {
		return o.Refund()
	})
}

// mutate загружает заказ, выполняет доменную операцию и сохраняет результат,
// повторяя цикл при конфликте версий
func (s *OrderService) mutate(ctx context.Context, orderID string, fn func(o *order.Order) error) error {
	return eventsourcing.RetryOnConflict(ctx, s.retries, func(ctx context.Context) error {
		o, err := s.orders.Load(ctx, orderID)
		if err != nil {
			return err
		}
		if err := fn(o); err != nil {
			return err
		}
		return s.orders.Save(ctx, o)
	})
}
