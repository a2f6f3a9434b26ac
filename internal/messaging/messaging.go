// Package messaging предоставляет абстракцию потокового транспорта
// и его адаптеры.
package messaging

import (
	"context"
	"errors"
)

// ErrNotRunning публикация или подписка на остановленной шине
var ErrNotRunning = errors.New("message bus is not running")

// Message сообщение потокового транспорта
type Message struct {
	Subject string
	Data    []byte
	Headers map[string]string
}

// MessageHandler обработчик сообщений
type MessageHandler func(ctx context.Context, msg *Message) error

// Publisher публикатор сообщений
type Publisher interface {
	// Publish публикует сообщение в subject. Возврат без ошибки означает,
	// что транспорт подтвердил прием сообщения
	Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error
}

// Subscriber подписчик на сообщения
type Subscriber interface {
	// Subscribe подписывается на subject и вызывает handler при получении
	// сообщения. Subject может содержать маски "*" и ">"
	Subscribe(ctx context.Context, subject string, handler MessageHandler) error
	// Unsubscribe отписывается от subject
	Unsubscribe(subject string) error
}

// MessageBus объединяет возможности публикации и подписки
type MessageBus interface {
	Publisher
	Subscriber
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
