// Package app реализует прикладной слой: команды, шину команд и сервисы,
// выполняющие команды над Event Sourced агрегатами.
package app

import (
	"time"

	"github.com/akriventsev/checkout/internal/domain/order"
)

// Command команда прикладного слоя
type Command interface {
	CommandName() string
}

// Имена команд заказа
const (
	CmdCreateOrder          = "order.create"
	CmdAddOrderItem         = "order.add_item"
	CmdRemoveOrderItem      = "order.remove_item"
	CmdUpdateItemQuantity   = "order.update_item_quantity"
	CmdApplyCoupon          = "order.apply_coupon"
	CmdConfirmOrder         = "order.confirm"
	CmdRecordPaymentPending = "order.record_payment_pending"
	CmdRecordPaymentSuccess = "order.record_payment_success"
	CmdRecordPaymentFailure = "order.record_payment_failure"
	CmdCancelOrder          = "order.cancel"
	CmdMarkOrderProcessing  = "order.mark_processing"
	CmdRecordShipment       = "order.record_shipment"
	CmdRecordDelivery       = "order.record_delivery"
	CmdCompleteOrder        = "order.complete"
	CmdRefundOrder          = "order.refund"
)

// Имена команд склада
const (
	CmdInitializeStock          = "inventory.initialize_stock"
	CmdReceiveStock             = "inventory.receive_stock"
	CmdReserveStock             = "inventory.reserve_stock"
	CmdConfirmReservation       = "inventory.confirm_reservation"
	CmdReleaseReservation       = "inventory.release_reservation"
	CmdReleaseOrderReservations = "inventory.release_order_reservations"
	CmdCommitStock              = "inventory.commit_stock"
)

// CreateOrder создает заказ
type CreateOrder struct {
	OrderID         string        `json:"order_id"`
	CustomerID      string        `json:"customer_id"`
	Items           []order.Item  `json:"items"`
	ShippingAddress order.Address `json:"shipping_address"`
	BillingAddress  order.Address `json:"billing_address"`
	ShippingCost    int64         `json:"shipping_cost"`
	Tax             int64         `json:"tax"`
	Coupon          *order.Coupon `json:"coupon,omitempty"`
}

func (CreateOrder) CommandName() string { return CmdCreateOrder }

// AddOrderItem добавляет позицию в заказ
type AddOrderItem struct {
	OrderID string     `json:"order_id"`
	Item    order.Item `json:"item"`
}

func (AddOrderItem) CommandName() string { return CmdAddOrderItem }

// RemoveOrderItem удаляет позицию из заказа
type RemoveOrderItem struct {
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
}

func (RemoveOrderItem) CommandName() string { return CmdRemoveOrderItem }

// UpdateItemQuantity изменяет количество позиции заказа
type UpdateItemQuantity struct {
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Quantity  int64  `json:"quantity"`
}

func (UpdateItemQuantity) CommandName() string { return CmdUpdateItemQuantity }

// ApplyCoupon применяет купон к заказу
type ApplyCoupon struct {
	OrderID string       `json:"order_id"`
	Coupon  order.Coupon `json:"coupon"`
}

func (ApplyCoupon) CommandName() string { return CmdApplyCoupon }

// ConfirmOrder подтверждает заказ
type ConfirmOrder struct {
	OrderID string `json:"order_id"`
}

func (ConfirmOrder) CommandName() string { return CmdConfirmOrder }

// RecordPaymentPending фиксирует инициацию платежа
type RecordPaymentPending struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
}

func (RecordPaymentPending) CommandName() string { return CmdRecordPaymentPending }

// RecordPaymentSuccess фиксирует успешный платеж
type RecordPaymentSuccess struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
}

func (RecordPaymentSuccess) CommandName() string { return CmdRecordPaymentSuccess }

// RecordPaymentFailure фиксирует неуспешный платеж
type RecordPaymentFailure struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Reason    string `json:"reason"`
}

func (RecordPaymentFailure) CommandName() string { return CmdRecordPaymentFailure }

// CancelOrder отменяет заказ
type CancelOrder struct {
	OrderID string `json:"order_id"`
	Actor   string `json:"actor"`
	Reason  string `json:"reason"`
}

func (CancelOrder) CommandName() string { return CmdCancelOrder }

// MarkOrderProcessing передает заказ в обработку
type MarkOrderProcessing struct {
	OrderID string `json:"order_id"`
}

func (MarkOrderProcessing) CommandName() string { return CmdMarkOrderProcessing }

// RecordShipment фиксирует отправку заказа.
// Partial = true отправляет только перечисленные позиции
type RecordShipment struct {
	OrderID        string   `json:"order_id"`
	TrackingNumber string   `json:"tracking_number"`
	Carrier        string   `json:"carrier"`
	Partial        bool     `json:"partial"`
	ProductIDs     []string `json:"product_ids,omitempty"`
}

func (RecordShipment) CommandName() string { return CmdRecordShipment }

// RecordDelivery фиксирует доставку заказа
type RecordDelivery struct {
	OrderID string `json:"order_id"`
}

func (RecordDelivery) CommandName() string { return CmdRecordDelivery }

// CompleteOrder завершает заказ
type CompleteOrder struct {
	OrderID string `json:"order_id"`
}

func (CompleteOrder) CommandName() string { return CmdCompleteOrder }

// RefundOrder возвращает средства покупателю
type RefundOrder struct {
	OrderID string `json:"order_id"`
}

func (RefundOrder) CommandName() string { return CmdRefundOrder }

// InitializeStock создает складскую позицию. Повторная инициализация безвредна
type InitializeStock struct {
	ItemID       string `json:"item_id"`
	ProductID    string `json:"product_id"`
	VariantID    string `json:"variant_id"`
	WarehouseID  string `json:"warehouse_id"`
	OnHand       int64  `json:"on_hand"`
	ReorderPoint int64  `json:"reorder_point"`
}

func (InitializeStock) CommandName() string { return CmdInitializeStock }

// ReceiveStock оприходует поставку
type ReceiveStock struct {
	ItemID    string `json:"item_id"`
	Quantity  int64  `json:"quantity"`
	Reference string `json:"reference,omitempty"`
}

func (ReceiveStock) CommandName() string { return CmdReceiveStock }

// ReserveStock резервирует остаток под заказ
type ReserveStock struct {
	ItemID    string    `json:"item_id"`
	OrderID   string    `json:"order_id"`
	Quantity  int64     `json:"quantity"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

func (ReserveStock) CommandName() string { return CmdReserveStock }

// ConfirmReservation подтверждает резервирование
type ConfirmReservation struct {
	ItemID        string `json:"item_id"`
	ReservationID string `json:"reservation_id"`
}

func (ConfirmReservation) CommandName() string { return CmdConfirmReservation }

// ReleaseReservation снимает резервирование
type ReleaseReservation struct {
	ItemID        string `json:"item_id"`
	ReservationID string `json:"reservation_id"`
	Reason        string `json:"reason"`
}

func (ReleaseReservation) CommandName() string { return CmdReleaseReservation }

// ReleaseOrderReservations снимает все активные резервирования заказа
// на позиции. Применяется компенсацией, когда идентификаторы отдельных
// резервирований вызывающему неизвестны
type ReleaseOrderReservations struct {
	ItemID  string `json:"item_id"`
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

func (ReleaseOrderReservations) CommandName() string { return CmdReleaseOrderReservations }

// CommitStock списывает подтвержденное резервирование
type CommitStock struct {
	ItemID        string `json:"item_id"`
	ReservationID string `json:"reservation_id"`
}

func (CommitStock) CommandName() string { return CmdCommitStock }
