package app

import (
	"context"
	"time"

	"github.com/akriventsev/checkout/internal/metrics"
)

// MetricsInterceptor перехватчик, фиксирующий длительность и исход каждой
// команды. Вешается на шину через WithMiddleware, поэтому учитывает и
// команды REST слоя, и команды, выпущенные сагой
type MetricsInterceptor struct {
	metrics *metrics.Metrics
}

// NewMetricsInterceptor создает перехватчик метрик команд
func NewMetricsInterceptor(m *metrics.Metrics) *MetricsInterceptor {
	return &MetricsInterceptor{metrics: m}
}

// Intercept выполняет команду и фиксирует метрики
func (i *MetricsInterceptor) Intercept(ctx context.Context, cmd Command, next func(ctx context.Context, cmd Command) error) error {
	start := time.Now()
	err := next(ctx, cmd)
	i.metrics.RecordCommand(ctx, cmd.CommandName(), time.Since(start), err)
	return err
}
