package bootstrap

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/detailing-booking-widget/internal/availability"
	appconfig "github.com/wolfman30/detailing-booking-widget/internal/config"
	"github.com/wolfman30/detailing-booking-widget/internal/host"
	"github.com/wolfman30/detailing-booking-widget/internal/observability/metrics"
	"github.com/wolfman30/detailing-booking-widget/internal/session"
	"github.com/wolfman30/detailing-booking-widget/internal/widget"
	"github.com/wolfman30/detailing-booking-widget/internal/widget/render"
	"github.com/wolfman30/detailing-booking-widget/pkg/logging"
)

// Widget bundles the pieces cmd/widget-host serves.
type Widget struct {
	Client  *availability.Client
	Host    *host.Handler
	Metrics *metrics.WidgetMetrics
}

// BuildWidget wires the availability client, controller options and host
// from configuration. reg receives the widget metrics.
func BuildWidget(cfg *appconfig.Config, store session.Store, reg prometheus.Registerer, logger *logging.Logger) (*Widget, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	loc := cfg.Location()
	policy, err := widget.ParseLoadPolicy(cfg.BookingLoadPolicy)
	if err != nil {
		return nil, err
	}
	renderer, err := render.New()
	if err != nil {
		return nil, err
	}

	widgetMetrics := metrics.NewWidgetMetrics(reg)
	client := availability.NewClient(cfg.BookingAPIBaseURL, logger.Component("availability"),
		availability.WithEndpoints(cfg.BookingAvailabilityPath, cfg.BookingSubmitPath),
		availability.WithTimeout(cfg.BookingHTTPTimeout),
		availability.WithMetrics(widgetMetrics),
	)

	handler := host.NewHandler(host.Config{
		Loader:    client,
		Submitter: client,
		Store:     store,
		Renderer:  renderer,
		Logger:    logger,
		Metrics:   widgetMetrics,
		ControllerOptions: []widget.Option{
			widget.WithLocation(loc),
			widget.WithWindowDays(cfg.BookingWindowDays),
			widget.WithFeedbackTTL(cfg.BookingFeedbackTTL),
			widget.WithLoadPolicy(policy),
		},
	})

	return &Widget{Client: client, Host: handler, Metrics: widgetMetrics}, nil
}
