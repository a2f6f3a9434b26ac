// Package http предоставляет REST транспорт оформления заказов на gin.
package http

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/akriventsev/checkout/internal/app"
	"github.com/akriventsev/checkout/internal/messaging"
	"github.com/akriventsev/checkout/internal/saga"
)

// Config конфигурация REST сервера
type Config struct {
	Port            int
	BasePath        string
	ShutdownTimeout time.Duration
}

// DefaultConfig возвращает конфигурацию REST сервера по умолчанию
func DefaultConfig() Config {
	return Config{
		Port:            8080,
		BasePath:        "/api/v1",
		ShutdownTimeout: 30 * time.Second,
	}
}

// Validate проверяет конфигурацию
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.BasePath == "" {
		return fmt.Errorf("base path is required")
	}
	return nil
}

// Server REST адаптер поверх командной шины и сервисов приложения
type Server struct {
	config   Config
	router   *gin.Engine
	commands app.CommandBus
	orders   *app.OrderService
	items    *app.InventoryService
	sagas    saga.Store
	payments messaging.Publisher
	server   *http.Server
}

// NewServer создает REST сервер и регистрирует маршруты
func NewServer(config Config, commands app.CommandBus, orders *app.OrderService, items *app.InventoryService, sagas saga.Store, payments messaging.Publisher) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid http config: %w", err)
	}

	s := &Server{
		config:   config,
		router:   gin.Default(),
		commands: commands,
		orders:   orders,
		items:    items,
		sagas:    sagas,
		payments: payments,
	}
	s.registerRoutes()
	return s, nil
}

// Router возвращает маршрутизатор, в том числе для тестирования
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start запускает HTTP сервер
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Port),
		Handler: s.router,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()
	return nil
}

// Stop останавливает HTTP сервер с дожиданием активных запросов
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) registerRoutes() {
	api := s.router.Group(s.config.BasePath)

	orders := api.Group("/orders")
	orders.POST("", s.createOrder)
	orders.GET("/:id", s.getOrder)
	orders.POST("/:id/items", s.addItem)
	orders.PATCH("/:id/items/:product_id/:variant_id", s.updateItemQuantity)
	orders.DELETE("/:id/items/:product_id/:variant_id", s.removeItem)
	orders.POST("/:id/coupon", s.applyCoupon)
	orders.POST("/:id/confirm", s.confirmOrder)
	orders.POST("/:id/cancel", s.cancelOrder)
	orders.POST("/:id/processing", s.markProcessing)
	orders.POST("/:id/shipments", s.recordShipment)
	orders.POST("/:id/delivery", s.recordDelivery)
	orders.POST("/:id/complete", s.completeOrder)
	orders.POST("/:id/return", s.requestReturn)
	orders.POST("/:id/return/approve", s.approveReturn)
	orders.POST("/:id/return/received", s.recordReturn)
	orders.POST("/:id/refund", s.refundOrder)

	inventory := api.Group("/inventory")
	inventory.POST("", s.initializeStock)
	inventory.GET("/:id", s.getItem)
	inventory.POST("/:id/receive", s.receiveStock)
	inventory.POST("/:id/reserve", s.reserveStock)
	inventory.POST("/:id/reservations/:rid/confirm", s.confirmReservation)
	inventory.POST("/:id/reservations/:rid/release", s.releaseReservation)
	inventory.POST("/:id/reservations/:rid/commit", s.commitStock)
	inventory.POST("/:id/adjust", s.adjustStock)
	inventory.POST("/:id/damage", s.markDamaged)

	api.GET("/checkout/:order_id", s.getCheckout)
	api.POST("/webhooks/payment", s.paymentWebhook)
}

// send отправляет команду и переводит ошибку в HTTP статус.
// Метрики команд снимает перехватчик на самой шине
func (s *Server) send(c *gin.Context, cmd app.Command) {
	err := s.commands.Send(c.Request.Context(), cmd)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}
