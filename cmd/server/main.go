package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/akriventsev/checkout/internal/app"
	"github.com/akriventsev/checkout/internal/domain/inventory"
	"github.com/akriventsev/checkout/internal/domain/order"
	"github.com/akriventsev/checkout/internal/eventsourcing"
	"github.com/akriventsev/checkout/internal/inbox"
	"github.com/akriventsev/checkout/internal/messaging"
	"github.com/akriventsev/checkout/internal/metrics"
	"github.com/akriventsev/checkout/internal/migrate"
	"github.com/akriventsev/checkout/internal/outbox"
	"github.com/akriventsev/checkout/internal/saga"
	transport "github.com/akriventsev/checkout/internal/transport/http"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Метрики
	provider, err := metrics.Setup("checkout")
	if err != nil {
		log.Fatalf("Failed to setup metrics: %v", err)
	}
	collector, err := metrics.NewMetrics()
	if err != nil {
		log.Fatalf("Failed to create metrics collector: %v", err)
	}

	// Регистрация доменных событий
	registry := eventsourcing.NewRegistry()
	order.RegisterEvents(registry)
	inventory.RegisterEvents(registry)

	// Хранилища: PostgreSQL при наличии DATABASE_URL, иначе in-memory
	var (
		pool        *pgxpool.Pool
		eventStore  eventsourcing.EventStore
		outboxStore outbox.Store
		sagaStore   saga.Store
	)
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		migrationsDir := getEnv("MIGRATIONS_DIR", "migrations")
		if err := migrate.UpDSN(dsn, migrationsDir); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}

		pool, err = pgxpool.New(ctx, dsn)
		if err != nil {
			log.Fatalf("Failed to create connection pool: %v", err)
		}
		defer pool.Close()

		eventStore = eventsourcing.NewPostgresEventStore(pool, registry).WithMetrics(collector)
		outboxStore = outbox.NewPostgresStore(pool)
		sagaStore = saga.NewPostgresStore(pool)
	} else {
		log.Println("DATABASE_URL is not set, using in-memory storage")
		sink := outbox.NewInMemoryStore()
		eventStore = eventsourcing.NewInMemoryEventStore().WithOutbox(sink).WithMetrics(collector)
		outboxStore = sink
		sagaStore = saga.NewInMemoryStore()
	}

	// Сервисы и командная шина
	orders := app.NewOrderService(eventStore)
	items := app.NewInventoryService(eventStore)
	commandBus := app.NewInMemoryCommandBus().WithMiddleware(app.NewMetricsInterceptor(collector))
	if err := app.RegisterHandlers(commandBus, orders, items); err != nil {
		log.Fatalf("Failed to register command handlers: %v", err)
	}

	// Шина событий
	messagingConfig := messaging.DefaultConfig()
	messagingConfig.Kind = messaging.Kind(getEnv("MESSAGING", string(messagingConfig.Kind)))
	if url := os.Getenv("NATS_URL"); url != "" {
		messagingConfig.NATS.URL = url
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		messagingConfig.Kafka.Brokers = strings.Split(brokers, ",")
	}
	bus, err := messaging.NewBus(messagingConfig)
	if err != nil {
		log.Fatalf("Failed to create message bus: %v", err)
	}
	if err := bus.Start(ctx); err != nil {
		log.Fatalf("Failed to start message bus: %v", err)
	}

	// Реле outbox
	relay, err := outbox.NewRelay(outbox.DefaultRelayConfig(), outboxStore, bus)
	if err != nil {
		log.Fatalf("Failed to create outbox relay: %v", err)
	}
	relay = relay.WithMetrics(collector)
	go func() {
		if err := relay.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("Outbox relay stopped: %v", err)
		}
	}()

	// Трекер повторных доставок: Redis при наличии REDIS_ADDR, иначе
	// PostgreSQL, если сервис работает на нем
	var tracker inbox.Tracker
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr, Password: os.Getenv("REDIS_PASSWORD")})
		defer client.Close()
		tracker = inbox.NewRedisTracker(client, inbox.DefaultDedupTTL)
	} else if pool != nil {
		tracker = inbox.NewPostgresTracker(pool)
	} else {
		tracker = inbox.NewInMemoryTracker()
	}

	// Сага оформления заказа
	managerConfig := saga.DefaultManagerConfig()
	managerConfig.DefaultWarehouse = getEnv("WAREHOUSE_ID", managerConfig.DefaultWarehouse)
	manager := saga.NewManager(managerConfig, sagaStore, commandBus, tracker).WithMetrics(collector)
	if err := manager.Subscribe(ctx, bus); err != nil {
		log.Fatalf("Failed to subscribe saga manager: %v", err)
	}

	// REST сервер
	httpConfig := transport.DefaultConfig()
	httpConfig.Port = getEnvInt("HTTP_PORT", httpConfig.Port)
	server, err := transport.NewServer(httpConfig, commandBus, orders, items, sagaStore, bus)
	if err != nil {
		log.Fatalf("Failed to create http server: %v", err)
	}
	if err := server.Start(ctx); err != nil {
		log.Fatalf("Failed to start http server: %v", err)
	}

	// Endpoint метрик на отдельном порту
	metricsServer := &http.Server{
		Addr:    ":" + strconv.Itoa(getEnvInt("METRICS_PORT", 9090)),
		Handler: metrics.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Metrics server error: %v", err)
		}
	}()

	log.Printf("Checkout server started on :%d", httpConfig.Port)

	// Graceful shutdown
	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
	<-sigint

	log.Println("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Metrics server shutdown error: %v", err)
	}
	cancel()
	if err := bus.Stop(shutdownCtx); err != nil {
		log.Printf("Message bus shutdown error: %v", err)
	}
	if err := metrics.Shutdown(shutdownCtx, provider); err != nil {
		log.Printf("Metrics shutdown error: %v", err)
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Fatalf("Invalid value for %s: %v", key, err)
	}
	return value
}
