package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akriventsev/checkout/internal/app"
	"github.com/akriventsev/checkout/internal/domain/inventory"
	"github.com/akriventsev/checkout/internal/domain/order"
	"github.com/akriventsev/checkout/internal/eventsourcing"
)

// sweeper снимает просроченные резервирования. Работает отдельно от
// сервера, чтобы очистку можно было масштабировать и перезапускать
// независимо
func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	registry := eventsourcing.NewRegistry()
	order.RegisterEvents(registry)
	inventory.RegisterEvents(registry)

	store := eventsourcing.NewPostgresEventStore(pool, registry)
	items := app.NewInventoryService(store)
	source := app.NewPostgresExpiredReservations(pool)

	config := app.DefaultSweeperConfig()
	if raw := os.Getenv("SWEEP_INTERVAL"); raw != "" {
		interval, err := time.ParseDuration(raw)
		if err != nil {
			log.Fatalf("Invalid SWEEP_INTERVAL: %v", err)
		}
		config.Interval = interval
	}
	if raw := os.Getenv("SWEEP_BATCH_SIZE"); raw != "" {
		batch, err := strconv.Atoi(raw)
		if err != nil {
			log.Fatalf("Invalid SWEEP_BATCH_SIZE: %v", err)
		}
		config.BatchSize = batch
	}

	sweeper, err := app.NewSweeper(config, source, items)
	if err != nil {
		log.Fatalf("Failed to create sweeper: %v", err)
	}

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint
		log.Println("Shutting down sweeper...")
		cancel()
	}()

	log.Printf("Sweeper started, interval %s, batch size %d", config.Interval, config.BatchSize)
	if err := sweeper.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("Sweeper error: %v", err)
	}
}
