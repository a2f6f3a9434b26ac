package app

import (
	"context"
	"fmt"
	"sync"
)

// CommandHandler обработчик команды
type CommandHandler interface {
	Handle(ctx context.Context, cmd Command) error
	CommandName() string
}

// CommandInterceptor перехватчик команд для сквозных задач (логирование, метрики)
type CommandInterceptor interface {
	Intercept(ctx context.Context, cmd Command, next func(ctx context.Context, cmd Command) error) error
}

// CommandBus шина команд
type CommandBus interface {
	Send(ctx context.Context, cmd Command) error
	Register(handler CommandHandler) error
}

// HandlerFunc адаптер функции к интерфейсу CommandHandler
type HandlerFunc struct {
	Name string
	Fn   func(ctx context.Context, cmd Command) error
}

func (h HandlerFunc) Handle(ctx context.Context, cmd Command) error { return h.Fn(ctx, cmd) }

func (h HandlerFunc) CommandName() string { return h.Name }

// InMemoryCommandBus реализация шины команд в памяти
type InMemoryCommandBus struct {
	mu         sync.RWMutex
	handlers   map[string]CommandHandler
	middleware []CommandInterceptor
}

// NewInMemoryCommandBus создает новую шину команд
func NewInMemoryCommandBus() *InMemoryCommandBus {
	return &InMemoryCommandBus{
		handlers: make(map[string]CommandHandler),
	}
}

// Send отправляет команду зарегистрированному обработчику
func (b *InMemoryCommandBus) Send(ctx context.Context, cmd Command) error {
	b.mu.RLock()
	handler, exists := b.handlers[cmd.CommandName()]
	middleware := b.middleware
	b.mu.RUnlock()

	if !exists {
		return fmt.Errorf("no handler registered for command: %s", cmd.CommandName())
	}

	next := func(ctx context.Context, cmd Command) error {
		return handler.Handle(ctx, cmd)
	}
	for i := len(middleware) - 1; i >= 0; i-- {
		mw := middleware[i]
		prevNext := next
		next = func(ctx context.Context, cmd Command) error {
			return mw.Intercept(ctx, cmd, prevNext)
		}
	}
	return next(ctx, cmd)
}

// Register регистрирует обработчик команды
func (b *InMemoryCommandBus) Register(handler CommandHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	name := handler.CommandName()
	if _, exists := b.handlers[name]; exists {
		return fmt.Errorf("handler already registered for command: %s", name)
	}
	b.handlers[name] = handler
	return nil
}

// WithMiddleware добавляет перехватчик к шине
func (b *InMemoryCommandBus) WithMiddleware(middleware CommandInterceptor) *InMemoryCommandBus {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, middleware)
	return b
}
