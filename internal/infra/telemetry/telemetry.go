package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arklim/abac-auth-service/internal/infra/config"
)

// Provider owns the metrics registry and, when enabled, the tracer provider.
type Provider struct {
	registry *prometheus.Registry
	tracer   *TracerProvider
}

// Attach creates the metrics registry and starts tracing when configured.
func Attach(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	p := &Provider{registry: registry}

	if cfg.Telemetry.TracingEnabled && cfg.Telemetry.OTLPEndpoint != "" {
		tracer, err := NewTracerProvider(ctx, cfg.Telemetry, logger)
		if err != nil {
			return nil, err
		}
		p.tracer = tracer
	}

	return p, nil
}

// Registry is where every collector of the service registers.
func (p *Provider) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Shutdown flushes tracing, if enabled.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tracer == nil {
		return nil
	}
	return p.tracer.Shutdown(ctx)
}
