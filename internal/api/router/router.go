package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/detailing-booking-widget/internal/host"
	httpmiddleware "github.com/wolfman30/detailing-booking-widget/internal/http/middleware"
	"github.com/wolfman30/detailing-booking-widget/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Widget             *host.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	// RateLimiter guards the event endpoints; nil disables limiting.
	RateLimiter *httpmiddleware.RateLimiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", healthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.Widget != nil {
		r.Route("/booking", func(booking chi.Router) {
			if cfg.RateLimiter != nil {
				booking.Use(cfg.RateLimiter.Middleware)
			}
			// websocket upgrades need the raw writer, so no compression here
			booking.Get("/ws", cfg.Widget.HandleWebSocket)
			booking.Group(func(api chi.Router) {
				api.Use(middleware.Compress(5))
				api.Post("/events", cfg.Widget.HandleEvent)
				api.Get("/view", cfg.Widget.HandleView)
			})
		})
	}

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
