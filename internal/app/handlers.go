package app

import (
	"context"
	"fmt"
)

// RegisterHandlers регистрирует обработчики всех команд ядра на шине
func RegisterHandlers(bus CommandBus, orders *OrderService, items *InventoryService) error {
	handlers := []CommandHandler{
		HandlerFunc{CmdCreateOrder, func(ctx context.Context, cmd Command) error {
			c, err := commandAs[CreateOrder](cmd)
			if err != nil {
				return err
			}
			return orders.CreateOrder(ctx, c)
		}},
		HandlerFunc{CmdAddOrderItem, func(ctx context.Context, cmd Command) error {
			c, err := commandAs[AddOrderItem](cmd)
			if err != nil {
				return err
			}
			return orders.AddItem(ctx, c.OrderID, c.Item)
		}},
		HandlerFunc{CmdRemoveOrderItem, func(ctx context.Context, cmd Command) error {
			c, err := commandAs[RemoveOrderItem](cmd)
			if err != nil {
				return err
			}
			return orders.RemoveItem(ctx, c.OrderID, c.ProductID, c.VariantID)
		}},
		HandlerFunc{CmdUpdateItemQuantity, func(ctx context.Context, cmd Command) error {
			c, err := commandAs[UpdateItemQuantity](cmd)
			if err != nil {
				return err
			}
			return orders.UpdateItemQuantity(ctx, c.OrderID, c.ProductID, c.VariantID, c.Quantity)
		}},
		HandlerFunc{CmdApplyCoupon, func(ctx context.Context, cmd Command) error {
			c, err := commandAs[ApplyCoupon](cmd)
			if err != nil {
				return err
			}
			return orders.ApplyCoupon(ctx, c.OrderID, c.Coupon)
		}},
		HandlerFunc{CmdConfirmOrder, func(ctx context.Context, cmd Command) error {
			c, err := commandAs[ConfirmOrder](cmd)
			if err != nil {
				return err
			}
			return orders.ConfirmOrder(ctx, c.OrderID)
		}},
		HandlerFunc{CmdRecordPaymentPending, func(ctx context.Context, cmd Command) error {
			c, err := commandAs[RecordPaymentPending](cmd)
			if err != nil {
				return err
			}
			return orders.RecordPaymentPending(ctx, c.OrderID, c.PaymentID)
		}},
		HandlerFunc{CmdRecordPaymentSuccess, func(ctx context.Context, cmd Command) error {
			c, err := commandAs[RecordPaymentSuccess](cmd)
			if err != nil {
				return err
			}
			return orders.RecordPaymentSuccess(ctx, c.OrderID, c.PaymentID)
		}},
		HandlerFunc{CmdRecordPaymentFailure, func(ctx context.Context, cmd Command) error {
			c, err := commandAs[RecordPaymentFailure](cmd)
			if err != nil {
				return err
			}
			return orders.RecordPaymentFailure(ctx, c.OrderID, c.PaymentID, c.Reason)
		}},
		HandlerFunc{CmdCancelOrder, func(ctx context.Context, cmd Command) error {
			c, err := commandAs[CancelOrder](cmd)
			if err != nil {
				return err
			}
			return orders.CancelOrder(ctx, c.OrderID, c.Actor, c.Reason)
		}},
		HandlerFunc{CmdMarkOrderProcessing, func(ctx context.Context, cmd Command) error {
			c, err := commandAs[MarkOrderProcessing](cmd)
			if err != nil {
				return err
			}
			return orders.MarkProcessing(ctx, c.OrderID)
		}},
		HandlerFunc{CmdRecordShipment, func(ctx context.Context, cmd Command) error {
			c, err := commandAs[RecordShipment](cmd)
			if err != nil {
				return err
			}
			return orders.RecordShipment(ctx, c)
		}},
		HandlerFunc{CmdRecordDelivery, func(ctx context.Context, cmd Command) error {
			c, err := commandAs[RecordDelivery](cmd)
			if err != nil {
				return err
			}
			return orders.RecordDelivery(ctx, c.OrderID)
		}},
		HandlerFunc{CmdCompleteOrder, func(ctx context.Context, cmd Command) error {
			c, err := commandAs[CompleteOrder](cmd)
			if err != nil {
				return err
			}
			return orders.CompleteOrder(ctx, c.OrderID)
		}},
		HandlerFunc{CmdRefundOrder, func(ctx context.Context, cmd Command) error {
			c, err := commandAs[RefundOrder](cmd)
			if err != nil {
				return err
			}
			return orders.RefundOrder(ctx, c.OrderID)
		}},
		HandlerFunc{CmdInitializeStock, func(ctx context.Context, cmd Command) error {
			c, err := commandAs[InitializeStock](cmd)
			if err != nil {
				return err
			}
			return items.InitializeStock(ctx, c)
		}},
		HandlerFunc{CmdReceiveStock, func(ctx context.Context, cmd Command) error {
			c, err := commandAs[ReceiveStock](cmd)
			if err != nil {
				return err
			}
			return items.ReceiveStock(ctx, c.ItemID, c.Quantity, c.Reference)
		}},
		HandlerFunc{CmdReserveStock, func(ctx context.Context, cmd Command) error {
			c, err := commandAs[ReserveStock](cmd)
			if err != nil {
				return err
			}
			_, err = items.ReserveStock(ctx, c)
			return err
		}},
		HandlerFunc{CmdConfirmReservation, func(ctx context.Context, cmd Command) error {
			c, err := commandAs[ConfirmReservation](cmd)
			if err != nil {
				return err
			}
			return items.ConfirmReservation(ctx, c.ItemID, c.ReservationID)
		}},
		HandlerFunc{CmdReleaseReservation, func(ctx context.Context, cmd Command) error {
			c, err := commandAs[ReleaseReservation](cmd)
			if err != nil {
				return err
			}
			return items.ReleaseReservation(ctx, c.ItemID, c.ReservationID, c.Reason)
		}},
		HandlerFunc{CmdReleaseOrderReservations, func(ctx context.Context, cmd Command) error {
			c, err := commandAs[ReleaseOrderReservations](cmd)
			if err != nil {
				return err
			}
			return items.ReleaseOrderReservations(ctx, c.ItemID, c.OrderID, c.Reason)
		}},
		HandlerFunc{CmdCommitStock, func(ctx context.Context, cmd Command) error {
			c, err := commandAs[CommitStock](cmd)
			if err != nil {
				return err
			}
			return items.CommitStock(ctx, c.ItemID, c.ReservationID)
		}},
	}

	for _, handler := range handlers {
		if err := bus.Register(handler); err != nil {
			return err
		}
	}
	return nil
}

func commandAs[T Command](cmd Command) (T, error) {
	typed, ok := cmd.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("unexpected command payload %T for %s", cmd, cmd.CommandName())
	}
	return typed, nil
}
