package monitoring

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/aethra/keybot/engine/infra/monitoring/middleware"
	"github.com/aethra/keybot/pkg/logger"
)

const meterName = "keybot"

// Service owns the meter provider and the Prometheus registry it exports to.
type Service struct {
	meter       metric.Meter
	provider    *sdkmetric.MeterProvider
	registry    *prom.Registry
	config      *Config
	keys        *KeyMetrics
	system      *systemMetrics
	initialized bool
}

func newDisabledService(cfg *Config) *Service {
	meter := noop.NewMeterProvider().Meter(meterName)
	return &Service{
		config: cfg,
		meter:  meter,
		keys:   NewKeyMetrics(meter),
	}
}

func NewMonitoringService(ctx context.Context, cfg *Config) (*Service, error) {
	log := logger.FromContext(ctx)
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		log.Debug("Monitoring disabled, using no-op meter")
		return newDisabledService(cfg), nil
	}
	registry := prom.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(meterName)
	service := &Service{
		meter:       meter,
		provider:    provider,
		registry:    registry,
		config:      cfg,
		keys:        NewKeyMetrics(meter),
		system:      newSystemMetrics(ctx, meter),
		initialized: true,
	}
	log.Info("Monitoring service initialized", "path", cfg.Path)
	return service, nil
}

// NewMonitoringServiceWithFallback never fails: an initialization error
// is logged and a no-op service is returned.
func NewMonitoringServiceWithFallback(ctx context.Context, cfg *Config) *Service {
	service, err := NewMonitoringService(ctx, cfg)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to initialize monitoring, using no-op implementation", "error", err)
		if cfg == nil {
			cfg = DefaultConfig()
		}
		return newDisabledService(cfg)
	}
	return service
}

func (s *Service) Meter() metric.Meter { return s.meter }

// Keys returns the key lifecycle and command instruments.
func (s *Service) Keys() *KeyMetrics { return s.keys }

func (s *Service) Path() string { return s.config.Path }

func (s *Service) IsInitialized() bool { return s.initialized }

func (s *Service) GinMiddleware() gin.HandlerFunc {
	if !s.initialized {
		return func(c *gin.Context) { c.Next() }
	}
	return middleware.HTTPMetrics(s.meter)
}

// ExporterHandler serves the Prometheus exposition format.
func (s *Service) ExporterHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.initialized {
			w.WriteHeader(http.StatusServiceUnavailable)
			if _, err := w.Write([]byte("Monitoring service not initialized")); err != nil {
				logger.FromContext(r.Context()).Error("Failed to write response", "error", err)
			}
			return
		}
		promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}

func (s *Service) Shutdown(ctx context.Context) error {
	if s.system != nil {
		s.system.close(ctx)
	}
	if s.provider != nil {
		return s.provider.Shutdown(ctx)
	}
	return nil
}
