package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/akriventsev/checkout/internal/app"
	"github.com/akriventsev/checkout/internal/domain/inventory"
	"github.com/akriventsev/checkout/internal/domain/order"
)

type createOrderRequest struct {
	OrderID         string        `json:"order_id" binding:"required"`
	CustomerID      string        `json:"customer_id" binding:"required"`
	Items           []order.Item  `json:"items" binding:"required"`
	ShippingAddress order.Address `json:"shipping_address"`
	BillingAddress  order.Address `json:"billing_address"`
	ShippingCost    int64         `json:"shipping_cost"`
	Tax             int64         `json:"tax"`
	Coupon          *order.Coupon `json:"coupon,omitempty"`
}

func (s *Server) createOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := s.commands.Send(c.Request.Context(), app.CreateOrder{
		OrderID:         req.OrderID,
		CustomerID:      req.CustomerID,
		Items:           req.Items,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		ShippingCost:    req.ShippingCost,
		Tax:             req.Tax,
		Coupon:          req.Coupon,
	})
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"order_id": req.OrderID})
}

// getOrder возвращает текущее или историческое состояние заказа.
// Параметр version воспроизводит состояние на момент указанной версии
func (s *Server) getOrder(c *gin.Context) {
	ctx := c.Request.Context()
	orderID := c.Param("id")

	var (
		o   *order.Order
		err error
	)
	if raw := c.Query("version"); raw != "" {
		version, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil || version <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "version must be a positive integer"})
			return
		}
		o, err = s.orders.GetOrderAtVersion(ctx, orderID, version)
	} else {
		o, err = s.orders.GetOrder(ctx, orderID)
	}
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order_id":     o.ID(),
		"customer_id":  o.CustomerID(),
		"status":       o.Status(),
		"items":        o.Items(),
		"pricing":      o.Pricing(),
		"coupon":       o.Coupon(),
		"shipments":    o.Shipments(),
		"cancellation": o.Cancellation(),
		"payment_id":   o.PaymentID(),
		"version":      o.Version(),
	})
}

func (s *Server) addItem(c *gin.Context) {
	var req order.Item
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.send(c, app.AddOrderItem{OrderID: c.Param("id"), Item: req})
}

func (s *Server) updateItemQuantity(c *gin.Context) {
	var req struct {
		Quantity int64 `json:"quantity" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.send(c, app.UpdateItemQuantity{
		OrderID:   c.Param("id"),
		ProductID: c.Param("product_id"),
		VariantID: c.Param("variant_id"),
		Quantity:  req.Quantity,
	})
}

func (s *Server) removeItem(c *gin.Context) {
	s.send(c, app.RemoveOrderItem{
		OrderID:   c.Param("id"),
		ProductID: c.Param("product_id"),
		VariantID: c.Param("variant_id"),
	})
}

func (s *Server) applyCoupon(c *gin.Context) {
	var req order.Coupon
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.send(c, app.ApplyCoupon{OrderID: c.Param("id"), Coupon: req})
}

func (s *Server) confirmOrder(c *gin.Context) {
	s.send(c, app.ConfirmOrder{OrderID: c.Param("id")})
}

func (s *Server) cancelOrder(c *gin.Context) {
	var req struct {
		Actor  string `json:"actor"`
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Actor == "" {
		req.Actor = "customer"
	}
	s.send(c, app.CancelOrder{OrderID: c.Param("id"), Actor: req.Actor, Reason: req.Reason})
}

func (s *Server) markProcessing(c *gin.Context) {
	s.send(c, app.MarkOrderProcessing{OrderID: c.Param("id")})
}

func (s *Server) recordShipment(c *gin.Context) {
	var req struct {
		TrackingNumber string   `json:"tracking_number" binding:"required"`
		Carrier        string   `json:"carrier" binding:"required"`
		Partial        bool     `json:"partial"`
		ProductIDs     []string `json:"product_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.send(c, app.RecordShipment{
		OrderID:        c.Param("id"),
		TrackingNumber: req.TrackingNumber,
		Carrier:        req.Carrier,
		Partial:        req.Partial,
		ProductIDs:     req.ProductIDs,
	})
}

func (s *Server) recordDelivery(c *gin.Context) {
	s.send(c, app.RecordDelivery{OrderID: c.Param("id")})
}

func (s *Server) completeOrder(c *gin.Context) {
	s.send(c, app.CompleteOrder{OrderID: c.Param("id")})
}

func (s *Server) requestReturn(c *gin.Context) {
	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.orders.RequestReturn(c.Request.Context(), c.Param("id"), req.Reason); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

func (s *Server) approveReturn(c *gin.Context) {
	var req struct {
		ApprovedBy string `json:"approved_by" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.orders.ApproveReturn(c.Request.Context(), c.Param("id"), req.ApprovedBy); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

func (s *Server) recordReturn(c *gin.Context) {
	if err := s.orders.RecordReturn(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

func (s *Server) refundOrder(c *gin.Context) {
	s.send(c, app.RefundOrder{OrderID: c.Param("id")})
}

type initializeStockRequest struct {
	ProductID    string `json:"product_id" binding:"required"`
	VariantID    string `json:"variant_id" binding:"required"`
	WarehouseID  string `json:"warehouse_id" binding:"required"`
	OnHand       int64  `json:"on_hand"`
	ReorderPoint int64  `json:"reorder_point"`
}

func (s *Server) initializeStock(c *gin.Context) {
	var req initializeStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	itemID := inventory.MakeItemID(req.ProductID, req.VariantID, req.WarehouseID)
	err := s.commands.Send(c.Request.Context(), app.InitializeStock{
		ItemID:       itemID,
		ProductID:    req.ProductID,
		VariantID:    req.VariantID,
		WarehouseID:  req.WarehouseID,
		OnHand:       req.OnHand,
		ReorderPoint: req.ReorderPoint,
	})
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"item_id": itemID})
}

func (s *Server) getItem(c *gin.Context) {
	item, err := s.items.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"item_id":       item.ID(),
		"product_id":    item.ProductID(),
		"warehouse_id":  item.WarehouseID(),
		"on_hand":       item.OnHand(),
		"reserved":      item.Reserved(),
		"available":     item.Available(),
		"in_transit":    item.InTransit(),
		"damaged":       item.Damaged(),
		"reorder_point": item.ReorderPoint(),
		"reservations":  item.Reservations(),
		"version":       item.Version(),
	})
}

func (s *Server) receiveStock(c *gin.Context) {
	var req struct {
		Quantity  int64  `json:"quantity" binding:"required"`
		Reference string `json:"reference"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.send(c, app.ReceiveStock{ItemID: c.Param("id"), Quantity: req.Quantity, Reference: req.Reference})
}

// reserveStock резервирует остаток и возвращает идентификатор
// резервирования, поэтому обращается к сервису напрямую
func (s *Server) reserveStock(c *gin.Context) {
	var req struct {
		OrderID   string    `json:"order_id" binding:"required"`
		Quantity  int64     `json:"quantity" binding:"required"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	reservationID, err := s.items.ReserveStock(c.Request.Context(), app.ReserveStock{
		ItemID:    c.Param("id"),
		OrderID:   req.OrderID,
		Quantity:  req.Quantity,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"reservation_id": reservationID})
}

func (s *Server) confirmReservation(c *gin.Context) {
	s.send(c, app.ConfirmReservation{ItemID: c.Param("id"), ReservationID: c.Param("rid")})
}

func (s *Server) releaseReservation(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.send(c, app.ReleaseReservation{ItemID: c.Param("id"), ReservationID: c.Param("rid"), Reason: req.Reason})
}

func (s *Server) commitStock(c *gin.Context) {
	s.send(c, app.CommitStock{ItemID: c.Param("id"), ReservationID: c.Param("rid")})
}

func (s *Server) adjustStock(c *gin.Context) {
	var req struct {
		Delta  int64  `json:"delta" binding:"required"`
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.items.AdjustStock(c.Request.Context(), c.Param("id"), req.Delta, req.Reason); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

func (s *Server) markDamaged(c *gin.Context) {
	var req struct {
		Quantity int64  `json:"quantity" binding:"required"`
		Reason   string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.items.MarkDamaged(c.Request.Context(), c.Param("id"), req.Quantity, req.Reason); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

func (s *Server) getCheckout(c *gin.Context) {
	instance, err := s.sagas.Load(c.Request.Context(), c.Param("order_id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, instance)
}

type paymentWebhookRequest struct {
	OrderID   string `json:"order_id" binding:"required"`
	PaymentID string `json:"payment_id" binding:"required"`
	Status    string `json:"status" binding:"required"`
	Reason    string `json:"reason"`
	Retryable bool   `json:"retryable"`
}

// paymentWebhook принимает уведомление платежного шлюза и публикует его
// в шину событий. Идентификатор события берется из заголовка шлюза,
// чтобы повторная доставка вебхука схлопывалась на стороне подписчиков
func (s *Server) paymentWebhook(c *gin.Context) {
	var req paymentWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var subject string
	switch req.Status {
	case "succeeded":
		subject = "payment.succeeded"
	case "failed":
		subject = "payment.failed"
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be succeeded or failed"})
		return
	}

	eventID := c.GetHeader("X-Event-ID")
	if eventID == "" {
		eventID = uuid.New().String()
	}

	payload, err := json.Marshal(req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	headers := map[string]string{
		"event_id":   eventID,
		"event_type": subject,
	}
	if err := s.payments.Publish(c.Request.Context(), subject, payload, headers); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"event_id": eventID})
}
