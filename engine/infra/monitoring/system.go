package monitoring

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/aethra/keybot/pkg/logger"
	"github.com/aethra/keybot/pkg/version"
)

type systemMetrics struct {
	registration metric.Registration
}

// newSystemMetrics records build info once and registers an uptime gauge.
func newSystemMetrics(ctx context.Context, meter metric.Meter) *systemMetrics {
	log := logger.FromContext(ctx)
	info := version.Get()
	buildInfo, err := meter.Float64Gauge(
		"keybot_build_info",
		metric.WithDescription("Build information (value=1)"),
	)
	if err != nil {
		log.Error("Failed to create build info gauge", "error", err)
	} else {
		buildInfo.Record(ctx, 1, metric.WithAttributes(
			attribute.String("version", info.Version),
			attribute.String("commit_hash", info.CommitHash),
			attribute.String("go_version", info.GoVersion),
		))
	}
	uptime, err := meter.Float64ObservableGauge(
		"keybot_uptime_seconds",
		metric.WithDescription("Process uptime in seconds"),
	)
	if err != nil {
		log.Error("Failed to create uptime gauge", "error", err)
		return &systemMetrics{}
	}
	start := time.Now()
	registration, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveFloat64(uptime, time.Since(start).Seconds())
		return nil
	}, uptime)
	if err != nil {
		log.Error("Failed to register uptime callback", "error", err)
		return &systemMetrics{}
	}
	return &systemMetrics{registration: registration}
}

func (s *systemMetrics) close(ctx context.Context) {
	if s.registration == nil {
		return
	}
	if err := s.registration.Unregister(); err != nil {
		logger.FromContext(ctx).Error("Failed to unregister uptime callback", "error", err)
	}
	s.registration = nil
}
