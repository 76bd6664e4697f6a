// Package host serves booking widget sessions to the browser over a
// websocket, with a plain HTTP fallback.
package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/wolfman30/detailing-booking-widget/internal/observability/metrics"
	"github.com/wolfman30/detailing-booking-widget/internal/session"
	"github.com/wolfman30/detailing-booking-widget/internal/widget"
	"github.com/wolfman30/detailing-booking-widget/internal/widget/render"
	"github.com/wolfman30/detailing-booking-widget/pkg/logging"
)

const (
	outboxSize   = 16
	saveTimeout  = 5 * time.Second
	maxEventBody = 64 << 10
)

var (
	errInvalidMessage   = errors.New("host: invalid message")
	errInvalidSessionID = errors.New("host: invalid session id")
)

// Config wires a Handler.
type Config struct {
	Loader    widget.AvailabilityLoader
	Submitter widget.BookingSubmitter
	Store     session.Store
	Renderer  *render.Renderer
	Logger    *logging.Logger
	Metrics   *metrics.WidgetMetrics
	// ControllerOptions apply to every session controller.
	ControllerOptions []widget.Option
}

// Handler owns the live widget sessions.
type Handler struct {
	loader     widget.AvailabilityLoader
	submitter  widget.BookingSubmitter
	store      session.Store
	renderer   *render.Renderer
	base       *logging.Logger
	logger     *logging.Logger
	metrics    *metrics.WidgetMetrics
	ctrlOpts   []widget.Option
	validate   *validator.Validate
	background sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*liveSession
}

// liveSession is a controller shared by every request and connection for one
// session id. It is evicted, after its state is saved, once refs drops to zero.
type liveSession struct {
	id   string
	ctrl *widget.Controller
	refs int

	mu     sync.Mutex
	outbox chan widget.View
}

// Render forwards views to the attached websocket without blocking. When the
// outbox is full the oldest view is dropped; only the latest matters.
func (s *liveSession) Render(v widget.View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outbox == nil {
		return
	}
	select {
	case s.outbox <- v:
		return
	default:
	}
	select {
	case <-s.outbox:
	default:
	}
	select {
	case s.outbox <- v:
	default:
	}
}

func (s *liveSession) attach() chan widget.View {
	ch := make(chan widget.View, outboxSize)
	s.mu.Lock()
	s.outbox = ch
	s.mu.Unlock()
	return ch
}

func (s *liveSession) detach(ch chan widget.View) {
	s.mu.Lock()
	if s.outbox == ch {
		s.outbox = nil
	}
	s.mu.Unlock()
}

// NewHandler creates a widget host.
func NewHandler(cfg Config) *Handler {
	if cfg.Loader == nil || cfg.Submitter == nil {
		panic("host: loader and submitter are required")
	}
	if cfg.Store == nil {
		cfg.Store = session.NewMemoryStore(session.DefaultTTL)
	}
	if cfg.Renderer == nil {
		cfg.Renderer = render.Must()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Handler{
		loader:    cfg.Loader,
		submitter: cfg.Submitter,
		store:     cfg.Store,
		renderer:  cfg.Renderer,
		base:      cfg.Logger,
		logger:    cfg.Logger.Component("host"),
		metrics:   cfg.Metrics,
		ctrlOpts:  cfg.ControllerOptions,
		validate:  validator.New(),
		sessions:  make(map[string]*liveSession),
	}
}

func newSessionID() string {
	return uuid.NewString()
}

// parseSessionID accepts an empty id or a UUID and returns its canonical form.
func parseSessionID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errInvalidSessionID, err)
	}
	return id.String(), nil
}

// acquire returns the live session for id, restoring it from the store or
// starting a fresh one. An empty id always starts a fresh session.
func (h *Handler) acquire(ctx context.Context, id string) (*liveSession, error) {
	if id == "" {
		id = newSessionID()
	}

	h.mu.Lock()
	if ls, ok := h.sessions[id]; ok {
		ls.refs++
		h.mu.Unlock()
		return ls, nil
	}
	h.mu.Unlock()

	state, err := h.store.Load(ctx, id)
	switch {
	case errors.Is(err, session.ErrNotFound):
		state = widget.State{}
	case err != nil:
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if ls, ok := h.sessions[id]; ok {
		ls.refs++
		return ls, nil
	}
	ls := &liveSession{id: id, refs: 1}
	opts := append([]widget.Option{}, h.ctrlOpts...)
	opts = append(opts,
		widget.WithState(state),
		widget.WithRenderer(ls),
		widget.WithLogger(h.base.With("session_id", id)),
		widget.WithMetrics(h.metrics),
	)
	ls.ctrl = widget.New(h.loader, h.submitter, opts...)
	h.sessions[id] = ls
	h.metrics.SessionOpened()
	return ls, nil
}

// release saves the session and evicts it when nothing else holds it.
func (h *Handler) release(ls *liveSession) {
	h.save(ls)

	h.mu.Lock()
	ls.refs--
	evict := ls.refs <= 0 && h.sessions[ls.id] == ls
	if evict {
		delete(h.sessions, ls.id)
	}
	h.mu.Unlock()

	if evict {
		ls.ctrl.Close()
		h.metrics.SessionClosed()
	}
}

func (h *Handler) save(ls *liveSession) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := h.store.Save(ctx, ls.id, ls.ctrl.Snapshot()); err != nil {
		h.logger.Warn("failed to save widget session", "session_id", ls.id, "error", err)
	}
}

// dispatch applies one inbound event. Network-bound events run through run so
// the websocket reader can hand them off to a goroutine.
func (h *Handler) dispatch(ctx context.Context, ls *liveSession, msg InboundMessage, run func(func())) error {
	if err := h.validate.Struct(msg); err != nil {
		return fmt.Errorf("%w: %v", errInvalidMessage, err)
	}
	date, err := msg.date()
	if err != nil {
		return fmt.Errorf("%w: %v", errInvalidMessage, err)
	}

	ctrl := ls.ctrl
	switch msg.Type {
	case TypeLoad:
		run(func() { h.logResult(ls, msg.Type, ctrl.OnLoad(ctx, date)) })
	case TypeSelectDate:
		ctrl.OnDateSelected(*date)
	case TypeSelectSlot:
		if !ctrl.OnSlotSelected(*date, msg.SlotID) {
			h.logger.Debug("ignored unavailable slot", "session_id", ls.id, "date", date.String(), "slot_id", msg.SlotID)
		}
	case TypeClearSelection:
		ctrl.OnClearSelection()
	case TypeNavigate:
		dir, err := msg.direction()
		if err != nil {
			return fmt.Errorf("%w: %v", errInvalidMessage, err)
		}
		run(func() { h.logResult(ls, msg.Type, ctrl.OnNavigate(ctx, dir)) })
	case TypeSubmit:
		var fields widget.FormFields
		if msg.Fields != nil {
			fields = *msg.Fields
		}
		run(func() { h.logResult(ls, msg.Type, ctrl.OnSubmit(ctx, fields)) })
	}
	return nil
}

// logResult records event errors. They are already reflected in the view.
func (h *Handler) logResult(ls *liveSession, event string, err error) {
	if err == nil {
		return
	}
	h.logger.Info("widget event finished with error", "session_id", ls.id, "event", event, "error", err)
}

// HandleWebSocket upgrades to a websocket and streams views for one session.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	id, err := parseSessionID(r.URL.Query().Get("session"))
	if err != nil {
		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "error", Text: "invalid session"})
		return
	}
	ls, err := h.acquire(ctx, id)
	if err != nil {
		h.logger.Error("failed to open widget session", "error", err)
		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "error", Text: "session unavailable"})
		return
	}
	defer h.release(ls)

	views := ls.attach()
	defer ls.detach(views)

	if err := websocket.JSON.Send(conn, OutboundMessage{Type: "session", SessionID: ls.id}); err != nil {
		return
	}
	if err := h.sendView(conn, ls.ctrl.View()); err != nil {
		return
	}

	control := make(chan OutboundMessage, outboxSize)
	done := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(conn, views, control, done)
	}()
	defer func() {
		close(done)
		<-writerDone
	}()

	h.logger.Info("widget connection opened", "session_id", ls.id)

	// the page is brand new; fetch its first window
	if ls.ctrl.Snapshot().Range == nil {
		h.spawn(ls, func() { h.logResult(ls, TypeLoad, ls.ctrl.OnLoad(ctx, nil)) })
	}

	run := func(f func()) { h.spawn(ls, f) }
	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("widget connection closed", "session_id", ls.id, "error", err)
			return
		}
		if msg.Type == TypePing {
			trySend(control, OutboundMessage{Type: "pong"})
			continue
		}
		if err := h.dispatch(ctx, ls, msg, run); err != nil {
			trySend(control, OutboundMessage{Type: "error", Text: err.Error()})
			continue
		}
		h.save(ls)
	}
}

// spawn runs f in the background while holding a reference on ls, so the
// session outlives its connection until f is done.
func (h *Handler) spawn(ls *liveSession, f func()) {
	h.mu.Lock()
	ls.refs++
	h.mu.Unlock()

	h.background.Add(1)
	go func() {
		defer h.background.Done()
		defer h.release(ls)
		f()
	}()
}

func trySend(ch chan<- OutboundMessage, msg OutboundMessage) {
	select {
	case ch <- msg:
	default:
	}
}

func (h *Handler) writeLoop(conn *websocket.Conn, views <-chan widget.View, control <-chan OutboundMessage, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case msg := <-control:
			if err := websocket.JSON.Send(conn, msg); err != nil {
				return
			}
		case v := <-views:
			if err := h.sendView(conn, v); err != nil {
				return
			}
		}
	}
}

func (h *Handler) sendView(conn *websocket.Conn, v widget.View) error {
	html, err := h.renderer.Render(v)
	if err != nil {
		h.logger.Error("failed to render widget view", "error", err)
		return websocket.JSON.Send(conn, OutboundMessage{Type: "view", View: &v})
	}
	return websocket.JSON.Send(conn, OutboundMessage{Type: "view", View: &v, HTML: &html})
}

// HandleEvent is the HTTP fallback: it applies one event synchronously and
// returns the resulting view.
func (h *Handler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	var msg InboundMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBody)).Decode(&msg); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	id, err := parseSessionID(msg.SessionID)
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}
	msg.SessionID = id

	ls, err := h.acquire(r.Context(), msg.SessionID)
	if err != nil {
		h.logger.Error("failed to open widget session", "error", err)
		http.Error(w, "session unavailable", http.StatusServiceUnavailable)
		return
	}
	defer h.release(ls)

	if msg.Type != TypePing {
		if err := h.dispatch(r.Context(), ls, msg, func(f func()) { f() }); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	h.writeView(w, ls)
}

// HandleView returns the current view of an existing session.
func (h *Handler) HandleView(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("session"))
	if raw == "" {
		http.Error(w, "session parameter required", http.StatusBadRequest)
		return
	}
	id, err := parseSessionID(raw)
	if err != nil || !h.exists(r.Context(), id) {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	ls, err := h.acquire(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to open widget session", "session_id", id, "error", err)
		http.Error(w, "session unavailable", http.StatusServiceUnavailable)
		return
	}
	defer h.release(ls)
	h.writeView(w, ls)
}

func (h *Handler) exists(ctx context.Context, id string) bool {
	h.mu.Lock()
	_, live := h.sessions[id]
	h.mu.Unlock()
	if live {
		return true
	}
	_, err := h.store.Load(ctx, id)
	return err == nil
}

func (h *Handler) writeView(w http.ResponseWriter, ls *liveSession) {
	v := ls.ctrl.View()
	html, err := h.renderer.Render(v)
	if err != nil {
		h.logger.Error("failed to render widget view", "session_id", ls.id, "error", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(ViewResponse{SessionID: ls.id, View: v, HTML: html})
}

// ActiveSessions reports how many sessions are live in memory.
func (h *Handler) ActiveSessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Shutdown waits for background loads and submissions to finish, or for ctx
// to expire.
func (h *Handler) Shutdown(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		h.background.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
