package order

import "time"

// ItemStatus статус позиции заказа
type ItemStatus string

const (
	ItemStatusPending   ItemStatus = "pending"
	ItemStatusShipped   ItemStatus = "shipped"
	ItemStatusDelivered ItemStatus = "delivered"
	ItemStatusReturned  ItemStatus = "returned"
)

// Item позиция заказа. Цена фиксируется на момент добавления и не зависит
// от последующих изменений каталога. Суммы хранятся в минорных единицах валюты
type Item struct {
	ProductID string     `json:"product_id"`
	VariantID string     `json:"variant_id"`
	Name      string     `json:"name"`
	Quantity  int64      `json:"quantity"`
	UnitPrice int64      `json:"unit_price"`
	Status    ItemStatus `json:"status"`
}

// Total возвращает стоимость позиции
func (i Item) Total() int64 {
	return i.Quantity * i.UnitPrice
}

// Address снимок адреса доставки или оплаты
type Address struct {
	Country    string `json:"country"`
	City       string `json:"city"`
	Street     string `json:"street"`
	Building   string `json:"building"`
	Apartment  string `json:"apartment,omitempty"`
	PostalCode string `json:"postal_code"`
}

// Coupon примененный купон с фиксированной скидкой в минорных единицах
type Coupon struct {
	Code     string `json:"code"`
	Discount int64  `json:"discount"`
}

// Pricing сводка стоимости заказа в минорных единицах валюты
type Pricing struct {
	Subtotal int64 `json:"subtotal"`
	Shipping int64 `json:"shipping"`
	Tax      int64 `json:"tax"`
	Discount int64 `json:"discount"`
	Total    int64 `json:"total"`
}

// Cancellation запись об отмене заказа
type Cancellation struct {
	Actor       string    `json:"actor"`
	Reason      string    `json:"reason"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// Shipment запись об отправлении
type Shipment struct {
	TrackingNumber string    `json:"tracking_number"`
	Carrier        string    `json:"carrier"`
	ProductIDs     []string  `json:"product_ids"`
	ShippedAt      time.Time `json:"shipped_at"`
}

// calculatePricing пересчитывает сводку стоимости по позициям и купону.
// Скидка не может превышать сумму позиций
func calculatePricing(items []Item, shipping, tax int64, coupon *Coupon) Pricing {
	var subtotal int64
	for _, item := range items {
		subtotal += item.Total()
	}

	var discount int64
	if coupon != nil {
		discount = coupon.Discount
		if discount > subtotal {
			discount = subtotal
		}
	}

	return Pricing{
		Subtotal: subtotal,
		Shipping: shipping,
		Tax:      tax,
		Discount: discount,
		Total:    subtotal + shipping + tax - discount,
	}
}
