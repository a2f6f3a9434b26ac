package messaging

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSConfig конфигурация NATS транспорта
type NATSConfig struct {
	URL               string
	MaxReconnects     int
	ReconnectWait     time.Duration
	ConnectionTimeout time.Duration
	DrainTimeout      time.Duration
}

// DefaultNATSConfig возвращает конфигурацию NATS по умолчанию
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:               "nats://localhost:4222",
		MaxReconnects:     10,
		ReconnectWait:     2 * time.Second,
		ConnectionTimeout: 5 * time.Second,
		DrainTimeout:      30 * time.Second,
	}
}

// Validate проверяет корректность конфигурации
func (c NATSConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("URL cannot be empty")
	}
	if !strings.HasPrefix(c.URL, "nats://") && !strings.HasPrefix(c.URL, "tls://") {
		return fmt.Errorf("URL must start with nats:// or tls://")
	}
	return nil
}

// NATSBus реализация MessageBus через NATS
type NATSBus struct {
	mu      sync.RWMutex
	config  NATSConfig
	conn    *nats.Conn
	subs    map[string]*nats.Subscription
	running bool
}

// NewNATSBus создает новый NATS транспорт
func NewNATSBus(config NATSConfig) (*NATSBus, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid nats config: %w", err)
	}
	return &NATSBus{
		config: config,
		subs:   make(map[string]*nats.Subscription),
	}, nil
}

// Start подключается к NATS серверу
func (b *NATSBus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return nil
	}

	conn, err := nats.Connect(b.config.URL,
		nats.MaxReconnects(b.config.MaxReconnects),
		nats.ReconnectWait(b.config.ReconnectWait),
		nats.Timeout(b.config.ConnectionTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	b.conn = conn
	b.running = true
	return nil
}

// Stop отписывается от всех subject и закрывает соединение
func (b *NATSBus) Stop(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return nil
	}

	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.subs = make(map[string]*nats.Subscription)

	if b.conn != nil && b.conn.IsConnected() {
		_ = b.conn.Drain()
		b.conn.Close()
	}
	b.running = false
	return nil
}

// Publish публикует сообщение в subject. NATS подтверждает прием после flush
func (b *NATSBus) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	b.mu.RLock()
	conn := b.conn
	b.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return fmt.Errorf("nats bus is not connected")
	}

	msg := nats.NewMsg(subject)
	msg.Data = data
	for k, v := range headers {
		msg.Header.Set(k, v)
	}

	if err := conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	if err := conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("failed to flush publish to %s: %w", subject, err)
	}
	return nil
}

// Subscribe подписывается на subject
func (b *NATSBus) Subscribe(ctx context.Context, subject string, handler MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn == nil {
		return fmt.Errorf("nats bus is not connected")
	}
	if _, exists := b.subs[subject]; exists {
		return fmt.Errorf("already subscribed to %s", subject)
	}

	sub, err := b.conn.Subscribe(subject, func(m *nats.Msg) {
		headers := make(map[string]string, len(m.Header))
		for k := range m.Header {
			headers[k] = m.Header.Get(k)
		}
		_ = handler(ctx, &Message{Subject: m.Subject, Data: m.Data, Headers: headers})
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	b.subs[subject] = sub
	return nil
}

// Unsubscribe отписывается от subject
func (b *NATSBus) Unsubscribe(subject string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, exists := b.subs[subject]
	if !exists {
		return nil
	}
	delete(b.subs, subject)
	return sub.Unsubscribe()
}
