package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	appconfig "github.com/wolfman30/detailing-booking-widget/internal/config"
	"github.com/wolfman30/detailing-booking-widget/internal/observability/metrics"
	"github.com/wolfman30/detailing-booking-widget/pkg/logging"
)

func TestSetupMetricsExposesWidgetMetrics(t *testing.T) {
	reg, handler := setupMetrics()
	if reg == nil || handler == nil {
		t.Fatalf("expected non-nil registry and handler")
	}

	m := metrics.NewWidgetMetrics(reg)
	m.ObserveEvent("submit", "ok")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "detailing_booking_widget_events_total") {
		t.Fatalf("expected events counter to be exported")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	t.Setenv("PORT", "0")
	cfg := appconfig.Load()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, logging.New("error")) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not return after cancel")
	}
}
