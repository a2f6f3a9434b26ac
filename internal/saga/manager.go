package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/akriventsev/checkout/internal/app"
	"github.com/akriventsev/checkout/internal/domain/inventory"
	"github.com/akriventsev/checkout/internal/inbox"
	"github.com/akriventsev/checkout/internal/messaging"
	"github.com/akriventsev/checkout/internal/metrics"
)

const consumerName = "checkout-saga"

// ManagerConfig конфигурация менеджера саг
type ManagerConfig struct {
	MaxPaymentRetries int
	// DefaultWarehouse склад, на котором резервируются позиции заказа
	DefaultWarehouse string
}

// DefaultManagerConfig возвращает конфигурацию менеджера по умолчанию
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		MaxPaymentRetries: DefaultMaxPaymentRetries,
		DefaultWarehouse:  "wh-main",
	}
}

// Manager связывает сагу с транспортом: принимает события, прогоняет их
// через чистую переходную функцию и выпускает команды. Команды выпускаются
// до сохранения состояния саги: при падении между этими шагами повторная
// доставка породит те же команды против идемпотентных целей
type Manager struct {
	config   ManagerConfig
	store    Store
	commands app.CommandBus
	dedup    inbox.Tracker
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

// NewManager создает менеджер саг
func NewManager(config ManagerConfig, store Store, commands app.CommandBus, dedup inbox.Tracker) *Manager {
	if config.MaxPaymentRetries <= 0 {
		config.MaxPaymentRetries = DefaultMaxPaymentRetries
	}
	if config.DefaultWarehouse == "" {
		config.DefaultWarehouse = DefaultManagerConfig().DefaultWarehouse
	}
	return &Manager{
		config:   config,
		store:    store,
		commands: commands,
		dedup:    dedup,
		tracer:   otel.Tracer("saga.manager"),
	}
}

// WithMetrics подключает сборщик метрик
func (m *Manager) WithMetrics(metrics *metrics.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// Subscribe подписывает менеджер на события доменов и платежного шлюза
func (m *Manager) Subscribe(ctx context.Context, bus messaging.Subscriber) error {
	subjects := []string{
		"events." + TriggerOrderConfirmed,
		"events." + TriggerStockReserved,
		"events." + TriggerReservationReleased,
		"payment.>",
	}
	for _, subject := range subjects {
		if err := bus.Subscribe(ctx, subject, m.HandleMessage); err != nil {
			return fmt.Errorf("failed to subscribe saga to %s: %w", subject, err)
		}
	}
	return nil
}

// HandleMessage обрабатывает одно доставленное сообщение
func (m *Manager) HandleMessage(ctx context.Context, msg *messaging.Message) error {
	trigger, ok, err := m.parseTrigger(msg)
	if err != nil {
		log.Printf("saga: dropping malformed message on %s: %v", msg.Subject, err)
		return nil
	}
	if !ok {
		return nil
	}

	if trigger.EventID != "" {
		seen, err := m.dedup.MarkSeen(ctx, consumerName, trigger.EventID)
		if err != nil {
			return fmt.Errorf("failed to deduplicate event %s: %w", trigger.EventID, err)
		}
		if seen {
			return nil
		}
	}

	err = m.Process(ctx, trigger)
	if err != nil && trigger.EventID != "" {
		// отметка снимается, иначе повторная доставка после сбоя
		// будет пропущена как дубликат и триггер потеряется
		if forgetErr := m.dedup.Forget(ctx, consumerName, trigger.EventID); forgetErr != nil {
			log.Printf("saga: failed to forget event %s after error: %v", trigger.EventID, forgetErr)
		}
	}
	return err
}

// Process прогоняет триггер через переходную функцию и выпускает команды.
// Конкурентный шаг саги обнаруживается при сохранении; в этом случае
// состояние перечитывается и шаг повторяется. Повторный выпуск команд
// безвреден, их цели идемпотентны
func (m *Manager) Process(ctx context.Context, trigger Trigger) error {
	ctx, span := m.tracer.Start(ctx, "Saga.Process",
		trace.WithAttributes(
			attribute.String("trigger.type", trigger.Type),
			attribute.String("order.id", trigger.OrderID),
		),
	)
	defer span.End()

	var err error
	for attempt := 0; attempt < saveRetries; attempt++ {
		err = m.processOnce(ctx, trigger)
		if !errors.Is(err, ErrVersionConflict) {
			break
		}
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

const saveRetries = 3

func (m *Manager) processOnce(ctx context.Context, trigger Trigger) error {
	instance, err := m.store.Load(ctx, trigger.OrderID)
	if errors.Is(err, ErrInstanceNotFound) {
		if trigger.Type != TriggerOrderConfirmed {
			// позднее событие для неизвестной саги игнорируется
			return nil
		}
		instance = NewInstance(trigger.OrderID, m.config.MaxPaymentRetries)
	} else if err != nil {
		return err
	}

	decision := Decide(instance, trigger)
	decision, err = m.issueCommands(ctx, decision)
	if err != nil {
		return err
	}

	if m.metrics != nil && decision.Next.State != instance.State {
		m.metrics.RecordSagaTransition(ctx, string(instance.State), string(decision.Next.State))
	}
	return m.store.Save(ctx, decision.Next)
}

// issueCommands выпускает команды решения. Синхронный отказ резервирования
// превращается в триггер reservation_failed, и сага немедленно компенсирует
func (m *Manager) issueCommands(ctx context.Context, decision Decision) (Decision, error) {
	for _, cmd := range decision.Commands {
		err := m.commands.Send(ctx, cmd)
		if err == nil {
			continue
		}
		if _, isReserve := cmd.(app.ReserveStock); isReserve && errors.Is(err, inventory.ErrInsufficientStock) {
			if m.metrics != nil {
				m.metrics.RecordReservation(ctx, "insufficient_stock")
			}
			failed := Decide(decision.Next, Trigger{
				Type:    TriggerReservationFailed,
				OrderID: decision.Next.OrderID,
			})
			return m.issueCommands(ctx, failed)
		}
		return decision, fmt.Errorf("saga command %s failed: %w", cmd.CommandName(), err)
	}
	return decision, nil
}

// parseTrigger разбирает сообщение транспорта в триггер саги
func (m *Manager) parseTrigger(msg *messaging.Message) (Trigger, bool, error) {
	eventType := msg.Headers["event_type"]
	if eventType == "" {
		eventType = strings.TrimPrefix(msg.Subject, "events.")
	}

	trigger := Trigger{
		Type:    eventType,
		EventID: msg.Headers["event_id"],
	}

	switch eventType {
	case TriggerOrderConfirmed:
		var payload struct {
			Items []struct {
				ProductID string `json:"product_id"`
				VariantID string `json:"variant_id"`
				Quantity  int64  `json:"quantity"`
			} `json:"items"`
		}
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return Trigger{}, false, err
		}
		trigger.OrderID = msg.Headers["aggregate_id"]
		trigger.Items = make(map[string]int64, len(payload.Items))
		for _, item := range payload.Items {
			itemID := inventory.MakeItemID(item.ProductID, item.VariantID, m.config.DefaultWarehouse)
			trigger.Items[itemID] += item.Quantity
		}
		return trigger, trigger.OrderID != "", nil

	case TriggerStockReserved:
		var payload struct {
			ReservationID string `json:"reservation_id"`
			OrderID       string `json:"order_id"`
		}
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return Trigger{}, false, err
		}
		trigger.OrderID = payload.OrderID
		trigger.ReservationID = payload.ReservationID
		trigger.ItemID = msg.Headers["aggregate_id"]
		return trigger, trigger.OrderID != "", nil

	case TriggerReservationReleased:
		var payload struct {
			ReservationID string `json:"reservation_id"`
			OrderID       string `json:"order_id"`
			Reason        string `json:"reason"`
		}
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return Trigger{}, false, err
		}
		trigger.OrderID = payload.OrderID
		trigger.ReservationID = payload.ReservationID
		trigger.ItemID = msg.Headers["aggregate_id"]
		trigger.Reason = payload.Reason
		return trigger, trigger.OrderID != "", nil

	case TriggerPaymentSucceeded, TriggerPaymentFailed:
		var payload struct {
			OrderID   string `json:"order_id"`
			PaymentID string `json:"payment_id"`
			Reason    string `json:"reason"`
			Retryable bool   `json:"retryable"`
		}
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return Trigger{}, false, err
		}
		trigger.OrderID = payload.OrderID
		trigger.PaymentID = payload.PaymentID
		trigger.Reason = payload.Reason
		trigger.Retryable = payload.Retryable
		return trigger, trigger.OrderID != "", nil

	default:
		return Trigger{}, false, nil
	}
}
