package messaging

import (
	"context"
	"strings"
	"sync"
)

// InMemoryBus реализация MessageBus в памяти для тестирования и разработки.
// Доставка синхронна: Publish возвращается после вызова всех подходящих
// обработчиков
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]MessageHandler
	running  bool
}

// NewInMemoryBus создает новую шину сообщений в памяти
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{
		handlers: make(map[string][]MessageHandler),
		running:  true,
	}
}

// Start запускает шину
func (b *InMemoryBus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = true
	return nil
}

// Stop останавливает шину
func (b *InMemoryBus) Stop(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = false
	return nil
}

// Publish доставляет сообщение всем подписчикам с подходящей маской
func (b *InMemoryBus) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	b.mu.RLock()
	if !b.running {
		b.mu.RUnlock()
		// возврат nil означал бы подтверждение приема, которого не было
		return ErrNotRunning
	}
	var matched []MessageHandler
	for pattern, handlers := range b.handlers {
		if matchSubject(pattern, subject) {
			matched = append(matched, handlers...)
		}
	}
	b.mu.RUnlock()

	msg := &Message{Subject: subject, Data: data, Headers: headers}
	for _, handler := range matched {
		if err := handler(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe подписывается на subject
func (b *InMemoryBus) Subscribe(ctx context.Context, subject string, handler MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[subject] = append(b.handlers[subject], handler)
	return nil
}

// Unsubscribe отписывается от subject
func (b *InMemoryBus) Unsubscribe(subject string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, subject)
	return nil
}

// matchSubject сопоставляет subject с маской в нотации NATS:
// "*" совпадает с одним токеном, ">" с любым хвостом
func matchSubject(pattern, subject string) bool {
	if pattern == subject {
		return true
	}

	patternTokens := strings.Split(pattern, ".")
	subjectTokens := strings.Split(subject, ".")

	for i, token := range patternTokens {
		if token == ">" {
			return true
		}
		if i >= len(subjectTokens) {
			return false
		}
		if token != "*" && token != subjectTokens[i] {
			return false
		}
	}
	return len(patternTokens) == len(subjectTokens)
}
