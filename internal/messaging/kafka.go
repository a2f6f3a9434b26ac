package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaConfig конфигурация Kafka транспорта
type KafkaConfig struct {
	Brokers      []string
	GroupID      string
	BatchTimeout time.Duration
	MinBytes     int
	MaxBytes     int
}

// DefaultKafkaConfig возвращает конфигурацию Kafka по умолчанию
func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Brokers:      []string{"localhost:9092"},
		GroupID:      "checkout",
		BatchTimeout: 10 * time.Millisecond,
		MinBytes:     1,
		MaxBytes:     10e6,
	}
}

// Validate проверяет корректность конфигурации
func (c KafkaConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("brokers cannot be empty")
	}
	if c.GroupID == "" {
		return fmt.Errorf("group id cannot be empty")
	}
	return nil
}

// KafkaBus реализация MessageBus через Kafka. Subject отображается в topic:
// точки заменяются дефисами, маски Kafka не поддерживает
type KafkaBus struct {
	mu      sync.Mutex
	config  KafkaConfig
	writer  *kafka.Writer
	readers map[string]*kafka.Reader
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewKafkaBus создает новый Kafka транспорт
func NewKafkaBus(config KafkaConfig) (*KafkaBus, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid kafka config: %w", err)
	}
	return &KafkaBus{
		config:  config,
		readers: make(map[string]*kafka.Reader),
		cancels: make(map[string]context.CancelFunc),
	}, nil
}

// Start создает writer
func (b *KafkaBus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return nil
	}
	b.writer = &kafka.Writer{
		Addr:         kafka.TCP(b.config.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: b.config.BatchTimeout,
		RequiredAcks: kafka.RequireAll,
	}
	b.running = true
	return nil
}

// Stop останавливает подписки и закрывает writer
func (b *KafkaBus) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	for _, cancel := range b.cancels {
		cancel()
	}
	readers := b.readers
	b.readers = make(map[string]*kafka.Reader)
	b.cancels = make(map[string]context.CancelFunc)
	writer := b.writer
	b.running = false
	b.mu.Unlock()

	b.wg.Wait()
	for _, reader := range readers {
		_ = reader.Close()
	}
	if writer != nil {
		return writer.Close()
	}
	return nil
}

// Publish публикует сообщение в topic. Возврат без ошибки означает
// подтверждение от всех реплик
func (b *KafkaBus) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	b.mu.Lock()
	writer := b.writer
	b.mu.Unlock()

	if writer == nil {
		return fmt.Errorf("kafka bus is not started")
	}

	kafkaHeaders := make([]kafka.Header, 0, len(headers))
	for k, v := range headers {
		kafkaHeaders = append(kafkaHeaders, kafka.Header{Key: k, Value: []byte(v)})
	}

	err := writer.WriteMessages(ctx, kafka.Message{
		Topic:   topicFor(subject),
		Key:     []byte(subject),
		Value:   data,
		Headers: kafkaHeaders,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Subscribe подписывается на topic и читает сообщения в отдельной горутине
func (b *KafkaBus) Subscribe(ctx context.Context, subject string, handler MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return fmt.Errorf("kafka bus is not started")
	}
	if _, exists := b.readers[subject]; exists {
		return fmt.Errorf("already subscribed to %s", subject)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  b.config.Brokers,
		GroupID:  b.config.GroupID,
		Topic:    topicFor(subject),
		MinBytes: b.config.MinBytes,
		MaxBytes: b.config.MaxBytes,
	})

	readCtx, cancel := context.WithCancel(ctx)
	b.readers[subject] = reader
	b.cancels[subject] = cancel

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			msg, err := reader.ReadMessage(readCtx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				continue
			}
			headers := make(map[string]string, len(msg.Headers))
			for _, h := range msg.Headers {
				headers[h.Key] = string(h.Value)
			}
			_ = handler(readCtx, &Message{
				Subject: string(msg.Key),
				Data:    msg.Value,
				Headers: headers,
			})
		}
	}()
	return nil
}

// Unsubscribe отписывается от subject
func (b *KafkaBus) Unsubscribe(subject string) error {
	b.mu.Lock()
	reader, exists := b.readers[subject]
	cancel := b.cancels[subject]
	delete(b.readers, subject)
	delete(b.cancels, subject)
	b.mu.Unlock()

	if !exists {
		return nil
	}
	cancel()
	return reader.Close()
}

func topicFor(subject string) string {
	return strings.ReplaceAll(subject, ".", "-")
}
