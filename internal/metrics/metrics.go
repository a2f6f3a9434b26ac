// Package metrics предоставляет систему метрик на основе OpenTelemetry.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics сборщик метрик ядра оформления заказа
type Metrics struct {
	meter             metric.Meter
	commandsTotal     metric.Int64Counter
	commandDuration   metric.Float64Histogram
	eventsAppended    metric.Int64Counter
	versionConflicts  metric.Int64Counter
	outboxDelivered   metric.Int64Counter
	outboxFailed      metric.Int64Counter
	sagaTransitions   metric.Int64Counter
	reservationsTotal metric.Int64Counter
	errorsTotal       metric.Int64Counter
}

// NewMetrics создает новый сборщик метрик
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("checkout")

	commandsTotal, err := meter.Int64Counter(
		"commands_total",
		metric.WithDescription("Total number of commands processed"),
	)
	if err != nil {
		return nil, err
	}

	commandDuration, err := meter.Float64Histogram(
		"command_duration_seconds",
		metric.WithDescription("Command processing duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	eventsAppended, err := meter.Int64Counter(
		"events_appended_total",
		metric.WithDescription("Total number of events appended to streams"),
	)
	if err != nil {
		return nil, err
	}

	versionConflicts, err := meter.Int64Counter(
		"version_conflicts_total",
		metric.WithDescription("Total number of optimistic concurrency conflicts"),
	)
	if err != nil {
		return nil, err
	}

	outboxDelivered, err := meter.Int64Counter(
		"outbox_delivered_total",
		metric.WithDescription("Total number of outbox records delivered"),
	)
	if err != nil {
		return nil, err
	}

	outboxFailed, err := meter.Int64Counter(
		"outbox_failed_total",
		metric.WithDescription("Total number of outbox records that exhausted delivery attempts"),
	)
	if err != nil {
		return nil, err
	}

	sagaTransitions, err := meter.Int64Counter(
		"saga_transitions_total",
		metric.WithDescription("Total number of checkout saga state transitions"),
	)
	if err != nil {
		return nil, err
	}

	reservationsTotal, err := meter.Int64Counter(
		"reservations_total",
		metric.WithDescription("Total number of stock reservation outcomes"),
	)
	if err != nil {
		return nil, err
	}

	errorsTotal, err := meter.Int64Counter(
		"errors_total",
		metric.WithDescription("Total number of errors"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		meter:             meter,
		commandsTotal:     commandsTotal,
		commandDuration:   commandDuration,
		eventsAppended:    eventsAppended,
		versionConflicts:  versionConflicts,
		outboxDelivered:   outboxDelivered,
		outboxFailed:      outboxFailed,
		sagaTransitions:   sagaTransitions,
		reservationsTotal: reservationsTotal,
		errorsTotal:       errorsTotal,
	}, nil
}

// RecordCommand фиксирует выполнение команды
func (m *Metrics) RecordCommand(ctx context.Context, name string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		m.errorsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("command", name)))
	}
	attrs := metric.WithAttributes(
		attribute.String("command", name),
		attribute.String("status", status),
	)
	m.commandsTotal.Add(ctx, 1, attrs)
	m.commandDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordEventsAppended фиксирует запись событий в поток
func (m *Metrics) RecordEventsAppended(ctx context.Context, aggregateType string, count int) {
	m.eventsAppended.Add(ctx, int64(count), metric.WithAttributes(
		attribute.String("aggregate_type", aggregateType),
	))
}

// RecordVersionConflict фиксирует конфликт версий
func (m *Metrics) RecordVersionConflict(ctx context.Context, aggregateType string) {
	m.versionConflicts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("aggregate_type", aggregateType),
	))
}

// RecordOutboxDelivered фиксирует доставку записи outbox
func (m *Metrics) RecordOutboxDelivered(ctx context.Context, eventType string) {
	m.outboxDelivered.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
	))
}

// RecordOutboxFailed фиксирует исчерпание попыток доставки
func (m *Metrics) RecordOutboxFailed(ctx context.Context, eventType string) {
	m.outboxFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
	))
}

// RecordSagaTransition фиксирует переход саги
func (m *Metrics) RecordSagaTransition(ctx context.Context, from, to string) {
	m.sagaTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordReservation фиксирует исход резервирования
func (m *Metrics) RecordReservation(ctx context.Context, outcome string) {
	m.reservationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}
