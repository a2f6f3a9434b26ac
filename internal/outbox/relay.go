package outbox

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/akriventsev/checkout/internal/messaging"
	"github.com/akriventsev/checkout/internal/metrics"
)

// SubjectPrefix префикс subject для публикуемых доменных событий
const SubjectPrefix = "events."

// RelayConfig конфигурация relay-процесса доставки
type RelayConfig struct {
	PollInterval   time.Duration
	BatchSize      int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRelayConfig возвращает конфигурацию relay по умолчанию
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		PollInterval:   time.Second,
		BatchSize:      100,
		MaxAttempts:    10,
		InitialBackoff: time.Second,
		MaxBackoff:     5 * time.Minute,
	}
}

// Validate проверяет корректность конфигурации
func (c RelayConfig) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive")
	}
	return nil
}

// Relay доставляет записи outbox в потоковый транспорт.
// Запись помечается доставленной только после подтверждения транспорта;
// неудачные попытки повторяются с экспоненциальной задержкой, а записи,
// исчерпавшие попытки, переводятся в failed для внимания оператора
type Relay struct {
	config    RelayConfig
	store     Store
	publisher messaging.Publisher
	metrics   *metrics.Metrics
}

// NewRelay создает новый relay доставки
func NewRelay(config RelayConfig, store Store, publisher messaging.Publisher) (*Relay, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid relay config: %w", err)
	}
	return &Relay{
		config:    config,
		store:     store,
		publisher: publisher,
	}, nil
}

// WithMetrics подключает сборщик метрик
func (r *Relay) WithMetrics(m *metrics.Metrics) *Relay {
	r.metrics = m
	return r
}

// Run опрашивает outbox до отмены контекста
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.ProcessBatch(ctx); err != nil {
				log.Printf("outbox relay: batch failed: %v", err)
			}
		}
	}
}

// ProcessBatch доставляет одну партию pending-записей
func (r *Relay) ProcessBatch(ctx context.Context) error {
	now := time.Now().UTC()
	records, err := r.store.FetchPending(ctx, r.config.BatchSize, now)
	if err != nil {
		return fmt.Errorf("failed to fetch pending records: %w", err)
	}

	for _, record := range records {
		if err := r.deliver(ctx, record); err != nil {
			r.recordFailure(ctx, record, err)
		}
	}
	return nil
}

func (r *Relay) deliver(ctx context.Context, record Record) error {
	headers := map[string]string{
		"event_id":       record.EventID,
		"event_type":     record.EventType,
		"aggregate_id":   record.AggregateID,
		"aggregate_type": record.AggregateType,
	}

	subject := SubjectPrefix + record.EventType
	if err := r.publisher.Publish(ctx, subject, record.Payload, headers); err != nil {
		return err
	}

	// транспорт подтвердил прием, только теперь помечаем доставку
	if err := r.store.MarkDelivered(ctx, record.EventID, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to mark record delivered: %w", err)
	}
	if r.metrics != nil {
		r.metrics.RecordOutboxDelivered(ctx, record.EventType)
	}
	return nil
}

func (r *Relay) recordFailure(ctx context.Context, record Record, cause error) {
	attempt := record.Attempts + 1
	final := attempt >= r.config.MaxAttempts
	nextAttempt := time.Now().UTC().Add(r.backoff(attempt))

	if final {
		log.Printf("outbox relay: record %s (%s) exhausted %d delivery attempts: %v",
			record.EventID, record.EventType, attempt, cause)
		if r.metrics != nil {
			r.metrics.RecordOutboxFailed(ctx, record.EventType)
		}
	}

	err := r.store.MarkAttemptFailed(ctx, record.EventID, attempt, nextAttempt, cause.Error(), final)
	if err != nil {
		log.Printf("outbox relay: failed to record attempt for %s: %v", record.EventID, err)
	}
}

// backoff возвращает экспоненциальную задержку для номера попытки
func (r *Relay) backoff(attempt int) time.Duration {
	delay := r.config.InitialBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= r.config.MaxBackoff {
			return r.config.MaxBackoff
		}
	}
	if delay > r.config.MaxBackoff {
		return r.config.MaxBackoff
	}
	return delay
}
