package telemetry

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arklim/social-platform-authguard/internal/infra/config"
)

// Attach registers service-level telemetry on the default Prometheus
// registerer. Request-scoped metrics live in the HTTP middleware; this only
// publishes the identity of the running build.
func Attach(_ context.Context, cfg *config.AppConfig) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	buildInfo := promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "authguard",
		Name:      "build_info",
		Help:      "Constant 1 labelled with the service name and environment.",
	}, []string{"service", "environment"})

	buildInfo.WithLabelValues(cfg.App.Name, cfg.App.Env).Set(1)

	return nil
}
