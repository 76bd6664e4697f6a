package availability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/detailing-booking-widget/internal/observability/metrics"
	"github.com/wolfman30/detailing-booking-widget/pkg/logging"
)

const (
	DefaultAvailabilityPath = "/api/bookings/availability"
	DefaultSubmitPath       = "/api/bookings"

	defaultTimeout = 15 * time.Second
	maxLoggedBody  = 300
)

// Client talks to the Availability and Booking Submission services.
type Client struct {
	httpClient       *http.Client
	baseURL          string
	availabilityPath string
	submitPath       string
	logger           *logging.Logger
	metrics          *metrics.WidgetMetrics
	tracer           trace.Tracer
}

// Option customises a Client.
type Option func(*Client)

// WithEndpoints overrides the availability and submit endpoints. Either value
// may be a path resolved against the base URL or an absolute URL; blanks keep
// the defaults.
func WithEndpoints(availabilityPath, submitPath string) Option {
	return func(c *Client) {
		if strings.TrimSpace(availabilityPath) != "" {
			c.availabilityPath = strings.TrimSpace(availabilityPath)
		}
		if strings.TrimSpace(submitPath) != "" {
			c.submitPath = strings.TrimSpace(submitPath)
		}
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithMetrics records upstream call counts and latency.
func WithMetrics(m *metrics.WidgetMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient constructs a client rooted at baseURL.
func NewClient(baseURL string, logger *logging.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	c := &Client{
		httpClient:       &http.Client{Timeout: defaultTimeout},
		baseURL:          strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		availabilityPath: DefaultAvailabilityPath,
		submitPath:       DefaultSubmitPath,
		logger:           logger,
		tracer:           otel.Tracer("detailing.internal.availability"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch loads days of availability. A nil start lets the server choose its
// today-anchored default window.
func (c *Client) Fetch(ctx context.Context, start *civil.Date, days int) (*Window, error) {
	ctx, span := c.tracer.Start(ctx, "availability.fetch")
	defer span.End()

	q := url.Values{}
	q.Set("days", strconv.Itoa(days))
	if start != nil {
		q.Set("start", start.String())
		span.SetAttributes(attribute.String("booking.start", start.String()))
	}
	span.SetAttributes(attribute.Int("booking.days", days))

	began := time.Now()
	status, body, err := c.do(ctx, http.MethodGet, c.resolve(c.availabilityPath)+"?"+q.Encode(), nil)
	if err != nil {
		c.observe("availability", "transport_error", began)
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport error")
		return nil, fmt.Errorf("availability: fetch: %w", err)
	}
	if !isSuccess(status) {
		c.observe("availability", "rejected", began)
		c.logger.Warn("availability API non-2xx response", "status", status, "body", truncate(body))
		statusErr := &StatusError{Status: status, Message: decodeError(body)}
		span.RecordError(statusErr)
		span.SetStatus(codes.Error, "non-2xx")
		return nil, statusErr
	}

	var window Window
	if err := json.Unmarshal(body, &window); err != nil {
		c.observe("availability", "decode_error", began)
		span.RecordError(err)
		return nil, fmt.Errorf("availability: decode response: %w", err)
	}
	normalized, err := window.Range.Normalize()
	if err != nil {
		c.observe("availability", "decode_error", began)
		span.RecordError(err)
		return nil, fmt.Errorf("availability: %w", err)
	}
	window.Range = normalized
	if window.Days == nil {
		window.Days = []Day{}
	}

	c.observe("availability", "ok", began)
	return &window, nil
}

// Submit posts a booking request. HTTP status decides success; the body only
// supplies display text.
func (c *Client) Submit(ctx context.Context, req BookingRequest) (*Confirmation, error) {
	ctx, span := c.tracer.Start(ctx, "availability.submit")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.date", req.Date.String()),
		attribute.String("booking.slot_id", req.SlotID),
	)

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("availability: marshal booking: %w", err)
	}

	began := time.Now()
	status, body, err := c.do(ctx, http.MethodPost, c.resolve(c.submitPath), payload)
	if err != nil {
		c.observe("submit", "transport_error", began)
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport error")
		return nil, fmt.Errorf("availability: submit: %w", err)
	}
	if !isSuccess(status) {
		c.observe("submit", "rejected", began)
		c.logger.Warn("booking API rejected submission", "status", status, "slot_id", req.SlotID, "body", truncate(body))
		statusErr := &StatusError{Status: status, Message: decodeError(body)}
		span.RecordError(statusErr)
		span.SetStatus(codes.Error, "non-2xx")
		return nil, statusErr
	}

	c.observe("submit", "ok", began)
	var confirmation Confirmation
	if len(body) > 0 {
		if err := json.Unmarshal(body, &confirmation); err != nil {
			c.logger.Warn("booking API returned undecodable confirmation", "status", status, "error", err)
			return &Confirmation{}, nil
		}
	}
	return &confirmation, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte) (int, []byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

func (c *Client) resolve(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return c.baseURL + endpoint
}

func (c *Client) observe(operation, outcome string, began time.Time) {
	c.metrics.ObserveUpstream(operation, outcome, time.Since(began).Seconds())
}

func isSuccess(status int) bool {
	return status >= 200 && status <= 299
}

func decodeError(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return ""
	}
	return strings.TrimSpace(eb.Error)
}

func truncate(body []byte) string {
	msg := string(body)
	if len(msg) > maxLoggedBody {
		msg = msg[:maxLoggedBody]
	}
	return msg
}
