package monitoring

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/aethra/keybot/engine/key"
	"github.com/aethra/keybot/pkg/logger"
)

// KeyMetrics records key lifecycle outcomes and dispatched commands.
// It implements key.Observer.
type KeyMetrics struct {
	operations metric.Int64Counter
	effects    metric.Int64Counter
	commands   metric.Int64Counter
}

var _ key.Observer = (*KeyMetrics)(nil)

func NewKeyMetrics(meter metric.Meter) *KeyMetrics {
	m := &KeyMetrics{}
	var err error
	m.operations, err = meter.Int64Counter(
		"keybot_key_operations_total",
		metric.WithDescription("Key lifecycle operations by outcome"),
	)
	if err != nil {
		logger.Error("Failed to create key operations counter", "error", err)
	}
	m.effects, err = meter.Int64Counter(
		"keybot_effect_failures_total",
		metric.WithDescription("Best-effort side effects that failed after a committed change"),
	)
	if err != nil {
		logger.Error("Failed to create effect failures counter", "error", err)
	}
	m.commands, err = meter.Int64Counter(
		"keybot_commands_total",
		metric.WithDescription("Dispatched bot commands by outcome"),
	)
	if err != nil {
		logger.Error("Failed to create commands counter", "error", err)
	}
	return m
}

func (m *KeyMetrics) OperationCompleted(op string, err error) {
	if m.operations == nil {
		return
	}
	m.operations.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", key.KindOf(err).String()),
	))
}

func (m *KeyMetrics) EffectFailed(effect string) {
	if m.effects == nil {
		return
	}
	m.effects.Add(context.Background(), 1, metric.WithAttributes(attribute.String("effect", effect)))
}

// CommandHandled counts one dispatched command. outcome is "ok", "rejected",
// "throttled" or an error kind.
func (m *KeyMetrics) CommandHandled(command, outcome string) {
	if m.commands == nil {
		return
	}
	m.commands.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("command", command),
		attribute.String("outcome", outcome),
	))
}
