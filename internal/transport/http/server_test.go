package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/akriventsev/checkout/internal/app"
	"github.com/akriventsev/checkout/internal/eventsourcing"
	"github.com/akriventsev/checkout/internal/messaging"
	"github.com/akriventsev/checkout/internal/saga"
)

func testServer(t *testing.T) (*Server, *messaging.InMemoryBus) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := eventsourcing.NewInMemoryEventStore()
	orders := app.NewOrderService(store)
	items := app.NewInventoryService(store)

	commands := app.NewInMemoryCommandBus()
	if err := app.RegisterHandlers(commands, orders, items); err != nil {
		t.Fatalf("RegisterHandlers failed: %v", err)
	}

	bus := messaging.NewInMemoryBus()
	server, err := NewServer(DefaultConfig(), commands, orders, items, saga.NewInMemoryStore(), bus)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	return server, bus
}

func doJSON(t *testing.T, server *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	return rec
}

func createOrderBody(orderID string) map[string]interface{} {
	return map[string]interface{}{
		"order_id":    orderID,
		"customer_id": "customer-1",
		"items": []map[string]interface{}{
			{"product_id": "prod-1", "variant_id": "var-1", "name": "Keyboard", "quantity": 2, "unit_price": 5000},
		},
		"shipping_address": map[string]string{"country": "RU", "city": "Moscow"},
		"billing_address":  map[string]string{"country": "RU", "city": "Moscow"},
		"shipping_cost":    500,
		"tax":              800,
	}
}

func TestCreateAndGetOrder(t *testing.T) {
	server, _ := testServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/orders", createOrderBody("order-1"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, server, http.MethodGet, "/api/v1/orders/order-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var view struct {
		Status  string `json:"status"`
		Version int64  `json:"version"`
		Pricing struct {
			Total int64 `json:"total"`
		} `json:"pricing"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if view.Status != "created" {
		t.Errorf("expected created, got %s", view.Status)
	}
	if view.Pricing.Total != 11300 {
		t.Errorf("expected total 11300, got %d", view.Pricing.Total)
	}
}

func TestCreateOrderConflictOnDuplicate(t *testing.T) {
	server, _ := testServer(t)

	doJSON(t, server, http.MethodPost, "/api/v1/orders", createOrderBody("order-1"))
	rec := doJSON(t, server, http.MethodPost, "/api/v1/orders", createOrderBody("order-1"))
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
}

func TestGetOrderNotFound(t *testing.T) {
	server, _ := testServer(t)

	rec := doJSON(t, server, http.MethodGet, "/api/v1/orders/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestInvalidTransitionIsUnprocessable(t *testing.T) {
	server, _ := testServer(t)

	doJSON(t, server, http.MethodPost, "/api/v1/orders", createOrderBody("order-1"))
	rec := doJSON(t, server, http.MethodPost, "/api/v1/orders/order-1/confirm", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm failed: %d", rec.Code)
	}
	rec = doJSON(t, server, http.MethodPost, "/api/v1/orders/order-1/confirm", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 on repeated confirm, got %d", rec.Code)
	}
}

func TestOrderItemMutations(t *testing.T) {
	server, _ := testServer(t)

	doJSON(t, server, http.MethodPost, "/api/v1/orders", createOrderBody("order-1"))

	rec := doJSON(t, server, http.MethodPost, "/api/v1/orders/order-1/items", map[string]interface{}{
		"product_id": "prod-2", "variant_id": "var-1", "name": "Mouse", "quantity": 1, "unit_price": 1500,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("add item failed: %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, server, http.MethodPatch, "/api/v1/orders/order-1/items/prod-1/var-1", map[string]interface{}{
		"quantity": 7,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update quantity failed: %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, server, http.MethodDelete, "/api/v1/orders/order-1/items/prod-2/var-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("remove item failed: %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, server, http.MethodPost, "/api/v1/orders/order-1/coupon", map[string]interface{}{
		"code": "SALE10", "discount": 1000,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("apply coupon failed: %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, server, http.MethodGet, "/api/v1/orders/order-1", nil)
	var view struct {
		Items []struct {
			ProductID string `json:"product_id"`
			Quantity  int64  `json:"quantity"`
		} `json:"items"`
		Pricing struct {
			Subtotal int64 `json:"subtotal"`
			Discount int64 `json:"discount"`
			Total    int64 `json:"total"`
		} `json:"pricing"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(view.Items) != 1 || view.Items[0].Quantity != 7 {
		t.Fatalf("unexpected items after mutations: %+v", view.Items)
	}
	// 7 x 5000 + 500 доставка + 800 налог - 1000 скидка
	if view.Pricing.Subtotal != 35000 || view.Pricing.Discount != 1000 || view.Pricing.Total != 34300 {
		t.Errorf("unexpected pricing: %+v", view.Pricing)
	}

	doJSON(t, server, http.MethodPost, "/api/v1/orders/order-1/confirm", nil)
	rec = doJSON(t, server, http.MethodPatch, "/api/v1/orders/order-1/items/prod-1/var-1", map[string]interface{}{
		"quantity": 2,
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 after confirm, got %d", rec.Code)
	}
}

// Историческая версия должна отражать состояние на момент записи, а не
// позднейшие изменения позиций
func TestHistoricalVersionSurvivesItemUpdate(t *testing.T) {
	server, _ := testServer(t)

	doJSON(t, server, http.MethodPost, "/api/v1/orders", createOrderBody("order-1"))
	rec := doJSON(t, server, http.MethodPatch, "/api/v1/orders/order-1/items/prod-1/var-1", map[string]interface{}{
		"quantity": 7,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update quantity failed: %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, server, http.MethodGet, "/api/v1/orders/order-1?version=1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var view struct {
		Items []struct {
			Quantity int64 `json:"quantity"`
		} `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(view.Items) != 1 || view.Items[0].Quantity != 2 {
		t.Errorf("version-1 quantity = %+v, want 2", view.Items)
	}
}

func TestHistoricalOrderVersion(t *testing.T) {
	server, _ := testServer(t)

	doJSON(t, server, http.MethodPost, "/api/v1/orders", createOrderBody("order-1"))
	doJSON(t, server, http.MethodPost, "/api/v1/orders/order-1/confirm", nil)

	rec := doJSON(t, server, http.MethodGet, "/api/v1/orders/order-1?version=1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var view struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if view.Status != "created" {
		t.Errorf("expected created at version 1, got %s", view.Status)
	}
}

func TestInventoryReserveFlow(t *testing.T) {
	server, _ := testServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/inventory", map[string]interface{}{
		"product_id":   "prod-1",
		"variant_id":   "var-1",
		"warehouse_id": "wh-main",
		"on_hand":      10,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		ItemID string `json:"item_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	rec = doJSON(t, server, http.MethodPost, "/api/v1/inventory/"+created.ItemID+"/reserve", map[string]interface{}{
		"order_id": "order-1",
		"quantity": 4,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var reserved struct {
		ReservationID string `json:"reservation_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &reserved); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if reserved.ReservationID == "" {
		t.Fatal("expected reservation id in response")
	}

	// остатка не хватает, конфликт
	rec = doJSON(t, server, http.MethodPost, "/api/v1/inventory/"+created.ItemID+"/reserve", map[string]interface{}{
		"order_id": "order-2",
		"quantity": 7,
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 on insufficient stock, got %d", rec.Code)
	}

	path := fmt.Sprintf("/api/v1/inventory/%s/reservations/%s/release", created.ItemID, reserved.ReservationID)
	rec = doJSON(t, server, http.MethodPost, path, map[string]string{"reason": "customer cancelled"})
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 on release, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, server, http.MethodGet, "/api/v1/inventory/"+created.ItemID, nil)
	var view struct {
		Available int64 `json:"available"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if view.Available != 10 {
		t.Errorf("expected available 10 after release, got %d", view.Available)
	}
}

func TestPaymentWebhookPublishes(t *testing.T) {
	server, bus := testServer(t)

	var received *messaging.Message
	err := bus.Subscribe(context.Background(), "payment.>", func(ctx context.Context, msg *messaging.Message) error {
		received = msg
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	rec := doJSON(t, server, http.MethodPost, "/api/v1/webhooks/payment", map[string]interface{}{
		"order_id":   "order-1",
		"payment_id": "pay-1",
		"status":     "succeeded",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if received == nil {
		t.Fatal("webhook did not publish a message")
	}
	if received.Subject != "payment.succeeded" {
		t.Errorf("expected payment.succeeded, got %s", received.Subject)
	}
	if received.Headers["event_id"] == "" {
		t.Error("expected event id header")
	}

	rec = doJSON(t, server, http.MethodPost, "/api/v1/webhooks/payment", map[string]interface{}{
		"order_id":   "order-1",
		"payment_id": "pay-1",
		"status":     "voided",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 on unknown status, got %d", rec.Code)
	}
}

func TestCheckoutStateNotFound(t *testing.T) {
	server, _ := testServer(t)

	rec := doJSON(t, server, http.MethodGet, "/api/v1/checkout/order-1", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}
