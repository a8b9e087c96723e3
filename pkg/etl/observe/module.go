package observe

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/fx"

	config "github.com/vitoriamariadb/tidal/pkg/etl/core/config"
	logger "github.com/vitoriamariadb/tidal/pkg/etl/support/logger"
)

// Module is the Fx module for observability. It selects the metric recorder
// by configuration, exposes the Prometheus endpoint when enabled and wires
// telemetry shutdown into the application lifecycle.
var Module = fx.Options(
	fx.Provide(func(lc fx.Lifecycle, cfg *config.Config) MetricRecorder {
		if !cfg.Tidal.Observability.Metrics.Enabled {
			return NewNoOpMetricRecorder()
		}

		recorder := NewPrometheusRecorder()
		addr := cfg.Tidal.Observability.Metrics.Addr
		if addr == "" {
			return recorder
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", recorder.Handler())
		server := &http.Server{Addr: addr, Handler: mux}

		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				go func() {
					logger.Infof("Serving metrics on %s/metrics.", addr)
					if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Errorf("Metrics server failed: %v", err)
					}
				}()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return server.Shutdown(ctx)
			},
		})
		return recorder
	}),
	fx.Provide(func(lc fx.Lifecycle, cfg *config.Config) (*Telemetry, error) {
		t, err := NewTelemetry(context.Background(), cfg.Tidal.Observability.Tracing)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return t.Shutdown(ctx)
			},
		})
		return t, nil
	}),
)
