// Package widget implements the booking widget controller: the state machine
// behind calendar navigation, slot selection and booking submission.
package widget

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/civil"

	"github.com/wolfman30/detailing-booking-widget/internal/availability"
	"github.com/wolfman30/detailing-booking-widget/internal/calendar"
	"github.com/wolfman30/detailing-booking-widget/internal/observability/metrics"
	"github.com/wolfman30/detailing-booking-widget/pkg/logging"
)

const (
	DefaultFeedbackTTL = 6 * time.Second

	MsgSelectDateAndTime = "Select a date and time before sending your request."
	MsgRequestReceived   = "Request received!"
	MsgSubmitFailed      = "Unable to submit booking right now."
	MsgLoadFailed        = "Unable to load availability"
)

var (
	// ErrIncompleteSelection is returned by Submit when no date and slot are chosen.
	ErrIncompleteSelection = errors.New("widget: select a date and time")
	// ErrSubmitInFlight is returned by Submit while a previous submission is pending.
	ErrSubmitInFlight = errors.New("widget: submission already in progress")
)

// LoadPolicy decides what happens when availability loads overlap.
type LoadPolicy string

const (
	// LoadLatestIssued applies a response only if no newer load was issued after it.
	// This hardens the page's original last-write-wins ordering; LoadLastCompleted
	// keeps that ordering.
	LoadLatestIssued LoadPolicy = "latest-issued"
	// LoadLastCompleted applies every response; the last to complete wins.
	LoadLastCompleted LoadPolicy = "last-completed"
)

// ParseLoadPolicy maps a configuration value to a LoadPolicy.
func ParseLoadPolicy(s string) (LoadPolicy, error) {
	switch LoadPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", LoadLatestIssued:
		return LoadLatestIssued, nil
	case LoadLastCompleted:
		return LoadLastCompleted, nil
	default:
		return "", fmt.Errorf("widget: unknown load policy %q", s)
	}
}

// AvailabilityLoader reads a window of availability.
type AvailabilityLoader interface {
	Fetch(ctx context.Context, start *civil.Date, days int) (*availability.Window, error)
}

// BookingSubmitter writes a booking request.
type BookingSubmitter interface {
	Submit(ctx context.Context, req availability.BookingRequest) (*availability.Confirmation, error)
}

// Renderer receives a fresh view after every state transition. It is called
// with the controller's lock held and must not call back into the controller.
type Renderer interface {
	Render(View)
}

// RenderFunc adapts a function to Renderer.
type RenderFunc func(View)

func (f RenderFunc) Render(v View) { f(v) }

// Option configures a Controller.
type Option func(*Controller)

func WithRenderer(r Renderer) Option {
	return func(c *Controller) { c.renderer = r }
}

func WithClock(clock Clock) Option {
	return func(c *Controller) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithLocation sets the timezone that decides what "today" is.
func WithLocation(loc *time.Location) Option {
	return func(c *Controller) {
		if loc != nil {
			c.loc = loc
		}
	}
}

func WithWindowDays(days int) Option {
	return func(c *Controller) {
		if days > 0 {
			c.windowDays = days
		}
	}
}

func WithFeedbackTTL(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.feedbackTTL = d
		}
	}
}

func WithLoadPolicy(p LoadPolicy) Option {
	return func(c *Controller) {
		if p != "" {
			c.policy = p
		}
	}
}

func WithLogger(logger *logging.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger.Component("widget")
		}
	}
}

func WithMetrics(m *metrics.WidgetMetrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithState seeds the controller from a snapshot. In-flight flags are not
// restored.
func WithState(s State) Option {
	return func(c *Controller) {
		c.state = s.clone()
		c.state.Submitting = false
		c.state.Loading = false
	}
}

// Controller owns one widget's state. It is safe for concurrent use; network
// calls run without the lock held so selection stays responsive while a load
// or submission is pending.
type Controller struct {
	loader      AvailabilityLoader
	submitter   BookingSubmitter
	renderer    Renderer
	clock       Clock
	loc         *time.Location
	windowDays  int
	feedbackTTL time.Duration
	policy      LoadPolicy
	logger      *logging.Logger
	metrics     *metrics.WidgetMetrics

	mu            sync.Mutex
	state         State
	pendingLoads  int
	issuedLoads   uint64
	feedbackTimer Timer
}

// New builds a controller around its two upstream collaborators.
func New(loader AvailabilityLoader, submitter BookingSubmitter, opts ...Option) *Controller {
	if loader == nil {
		panic("widget: availability loader required")
	}
	if submitter == nil {
		panic("widget: booking submitter required")
	}
	c := &Controller{
		loader:      loader,
		submitter:   submitter,
		clock:       SystemClock{},
		loc:         time.Local,
		windowDays:  calendar.DefaultWindowDays,
		feedbackTTL: DefaultFeedbackTTL,
		policy:      LoadLatestIssued,
		logger:      logging.Default().Component("widget"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LoadAvailability fetches a window starting at start, or the server's default
// window when start is nil. On failure the previous days, range and selection
// are kept and the calendar shows an inline error.
func (c *Controller) LoadAvailability(ctx context.Context, start *civil.Date) error {
	c.mu.Lock()
	c.issuedLoads++
	token := c.issuedLoads
	c.pendingLoads++
	c.state.Loading = true
	c.renderLocked()
	c.mu.Unlock()

	window, err := c.loader.Fetch(ctx, start, c.windowDays)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingLoads--
	c.state.Loading = c.pendingLoads > 0

	if c.policy == LoadLatestIssued && token < c.issuedLoads {
		c.metrics.ObserveStaleDiscard()
		c.logger.Debug("discarding superseded availability response", "token", token, "latest", c.issuedLoads)
		c.renderLocked()
		return nil
	}

	if err != nil {
		c.state.LoadError = MsgLoadFailed
		c.metrics.ObserveEvent("load", "error")
		c.logger.Warn("availability load failed", "error", err)
		c.renderLocked()
		return fmt.Errorf("widget: load availability: %w", err)
	}

	c.state.Days = window.Days
	r := window.Range
	c.state.Range = &r
	c.state.Catalogue = window.Slots
	c.state.GeneratedAt = window.GeneratedAt
	c.state.LoadError = ""
	c.reconcileLocked()
	c.metrics.ObserveEvent("load", "ok")
	c.renderLocked()
	return nil
}

// reconcileLocked drops selection parts that the fresh days no longer back.
func (c *Controller) reconcileLocked() {
	sel := &c.state.Selection
	if sel.Date == nil {
		return
	}
	day, ok := c.state.findDay(*sel.Date)
	if !ok {
		*sel = Selection{}
		return
	}
	if sel.SlotID == "" {
		return
	}
	slot, ok := day.FindSlot(sel.SlotID)
	if !ok || !slot.Available {
		sel.clearSlot()
		return
	}
	sel.SlotLabel = slot.Label
	sel.SlotWindow = slot.Window
}

// SelectDate marks date as the chosen day. Callers only offer enabled days so
// the date is not re-validated here.
func (c *Controller) SelectDate(date civil.Date) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sel := &c.state.Selection
	if sel.Date == nil || *sel.Date != date {
		sel.clearSlot()
	}
	sel.Date = &date
	c.metrics.ObserveEvent("select_date", "ok")
	c.renderLocked()
}

// SelectSlot chooses slotID on date. It reports false and changes nothing when
// the day or slot is unknown or the slot is no longer available.
func (c *Controller) SelectSlot(date civil.Date, slotID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	day, ok := c.state.findDay(date)
	if !ok || day.IsClosed {
		c.metrics.ObserveEvent("select_slot", "ignored")
		return false
	}
	slot, ok := day.FindSlot(slotID)
	if !ok || !slot.Available {
		c.metrics.ObserveEvent("select_slot", "ignored")
		return false
	}

	c.state.Selection = Selection{
		Date:       &date,
		SlotID:     slot.ID,
		SlotLabel:  slot.Label,
		SlotWindow: slot.Window,
	}
	c.metrics.ObserveEvent("select_slot", "ok")
	c.renderLocked()
	return true
}

// ClearSelection resets the selection to empty.
func (c *Controller) ClearSelection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Selection = Selection{}
	c.renderLocked()
}

// Submit sends the booking for the current selection. Without a complete
// selection it shows inline feedback and makes no network call. On success
// the form and selection are cleared and availability reloads from the
// current range start; on failure both are left as entered.
func (c *Controller) Submit(ctx context.Context, fields FormFields) error {
	c.mu.Lock()
	if c.state.Submitting {
		c.mu.Unlock()
		return ErrSubmitInFlight
	}
	c.state.Form = fields
	if !c.state.Selection.IsComplete() {
		c.showFeedbackLocked(MsgSelectDateAndTime, true)
		c.metrics.ObserveEvent("submit", "incomplete")
		c.renderLocked()
		c.mu.Unlock()
		return ErrIncompleteSelection
	}

	trimmed := fields.Trimmed()
	req := availability.BookingRequest{
		Name:    trimmed.Name,
		Email:   trimmed.Email,
		Phone:   trimmed.Phone,
		Vehicle: trimmed.Vehicle,
		Service: trimmed.Service,
		Notes:   trimmed.Notes,
		Date:    *c.state.Selection.Date,
		SlotID:  c.state.Selection.SlotID,
	}
	c.state.Submitting = true
	c.renderLocked()
	c.mu.Unlock()

	reload, anchor, err := c.send(ctx, req)
	if reload {
		if loadErr := c.LoadAvailability(ctx, anchor); loadErr != nil {
			c.logger.Warn("reload after booking failed", "error", loadErr)
		}
	}
	return err
}

// send performs the network call. Submitting is always cleared on the way
// out, including when the submitter panics.
func (c *Controller) send(ctx context.Context, req availability.BookingRequest) (reload bool, anchor *civil.Date, err error) {
	defer func() {
		c.mu.Lock()
		c.state.Submitting = false
		c.renderLocked()
		c.mu.Unlock()
	}()

	conf, err := c.submitter.Submit(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		msg := availability.ServerMessage(err)
		if msg == "" {
			msg = MsgSubmitFailed
		}
		c.showFeedbackLocked(msg, true)
		c.metrics.ObserveEvent("submit", "error")
		c.logger.Warn("booking submission failed", "date", req.Date.String(), "slot_id", req.SlotID, "error", err)
		return false, nil, fmt.Errorf("widget: submit booking: %w", err)
	}

	msg := MsgRequestReceived
	if conf != nil && strings.TrimSpace(conf.Message) != "" {
		msg = conf.Message
	}
	c.showFeedbackLocked(msg, false)
	c.state.Form = FormFields{}
	c.state.Selection = Selection{}
	c.state.LastConfirmation = conf
	if c.state.Range != nil {
		start := c.state.Range.Start
		anchor = &start
	}
	c.metrics.ObserveEvent("submit", "ok")
	c.logger.Info("booking submitted", "date", req.Date.String(), "slot_id", req.SlotID)
	return true, anchor, nil
}

// NextStartDate is the first day after the displayed range.
func (c *Controller) NextStartDate() (civil.Date, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return calendar.NextStart(c.state.Range)
}

// PreviousStartDate is the start of the previous page, never before today.
func (c *Controller) PreviousStartDate() (civil.Date, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return calendar.PreviousStart(c.state.Range, c.todayLocked())
}

// Navigate loads the neighbouring page in direction. It does nothing when
// that page does not exist.
func (c *Controller) Navigate(ctx context.Context, direction Direction) error {
	var (
		start civil.Date
		ok    bool
	)
	switch direction {
	case DirectionNext:
		start, ok = c.NextStartDate()
	case DirectionPrev:
		start, ok = c.PreviousStartDate()
	default:
		return fmt.Errorf("widget: unknown direction %q", direction)
	}
	if !ok {
		return nil
	}
	return c.LoadAvailability(ctx, &start)
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// View returns the current view model.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// Close stops the pending feedback timer.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.feedbackTimer != nil {
		c.feedbackTimer.Stop()
		c.feedbackTimer = nil
	}
}

func (c *Controller) todayLocked() civil.Date {
	return calendar.Today(c.clock.Now(), c.loc)
}

func (c *Controller) viewLocked() View {
	now := c.clock.Now()
	return BuildView(c.state, calendar.Today(now, c.loc), now)
}

func (c *Controller) renderLocked() {
	if c.renderer == nil {
		return
	}
	c.renderer.Render(c.viewLocked())
}

// showFeedbackLocked displays a banner and schedules a re-render once it
// expires. Later state changes do not extend or cut short its lifetime.
func (c *Controller) showFeedbackLocked(message string, isError bool) {
	c.state.Feedback = &Feedback{
		Message:   message,
		IsError:   isError,
		ExpiresAt: c.clock.Now().Add(c.feedbackTTL),
	}
	if c.feedbackTimer != nil {
		c.feedbackTimer.Stop()
	}
	c.feedbackTimer = c.clock.AfterFunc(c.feedbackTTL, c.expireFeedback)
}

func (c *Controller) expireFeedback() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Feedback != nil && !c.state.Feedback.VisibleAt(c.clock.Now()) {
		c.state.Feedback = nil
		c.renderLocked()
	}
}
