package host

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/wolfman30/detailing-booking-widget/internal/availability"
	"github.com/wolfman30/detailing-booking-widget/internal/availability/availabilitytest"
	"github.com/wolfman30/detailing-booking-widget/internal/observability/metrics"
	"github.com/wolfman30/detailing-booking-widget/internal/session"
	"github.com/wolfman30/detailing-booking-widget/internal/widget"
	"github.com/wolfman30/detailing-booking-widget/pkg/logging"
)

type testHost struct {
	handler *Handler
	fake    *availabilitytest.Server
	store   session.Store
	today   civil.Date
}

func newTestHost(t *testing.T, store session.Store) *testHost {
	t.Helper()
	today := civil.DateOf(time.Now())
	fake := availabilitytest.NewServer(t, today)
	client := availability.NewClient(fake.URL, logging.New("error"))
	if store == nil {
		store = session.NewMemoryStore(time.Hour)
	}
	h := NewHandler(Config{
		Loader:    client,
		Submitter: client,
		Store:     store,
		Logger:    logging.New("error"),
		Metrics:   metrics.NewWidgetMetrics(prometheus.NewRegistry()),
	})
	return &testHost{handler: h, fake: fake, store: store, today: today}
}

func postEvent(t *testing.T, h *Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/booking/events", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.HandleEvent(w, req)
	return w
}

func decodeView(t *testing.T, w *httptest.ResponseRecorder) ViewResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp ViewResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestHandleEvent_BookingFlow(t *testing.T) {
	th := newTestHost(t, nil)
	h := th.handler
	tomorrow := th.today.AddDays(1)

	resp := decodeView(t, postEvent(t, h, InboundMessage{Type: TypeLoad}))
	require.NotEmpty(t, resp.SessionID)
	assert.Len(t, resp.View.Calendar.Days, 35)
	assert.Contains(t, resp.HTML.Calendar, `data-date="`+th.today.String()+`"`)
	id := resp.SessionID

	resp = decodeView(t, postEvent(t, h, InboundMessage{
		Type: TypeSelectSlot, SessionID: id, Date: tomorrow.String(), SlotID: "midday-refresh",
	}))
	assert.Equal(t, id, resp.SessionID)
	assert.Equal(t, "midday-refresh", resp.View.Form.SlotID)
	assert.Equal(t, tomorrow.String(), resp.View.Form.SelectedDate)
	assert.Contains(t, resp.View.Summary, "12:30 PM – 3:30 PM")

	resp = decodeView(t, postEvent(t, h, InboundMessage{
		Type:      TypeSubmit,
		SessionID: id,
		Fields:    &widget.FormFields{Name: " Jane ", Email: "jane@example.com", Vehicle: "2019 Civic"},
	}))
	require.NotNil(t, resp.View.Feedback)
	assert.Equal(t, "Booking request received. We'll confirm shortly.", resp.View.Feedback.Message)
	assert.Empty(t, resp.View.Form.SlotID)
	require.NotNil(t, resp.View.Confirmation)
	assert.Equal(t, "Midday Refresh", resp.View.Confirmation.Booking["slot_label"])

	subs := th.fake.Submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, "Jane", subs[0].Name)
	assert.Equal(t, tomorrow, subs[0].Date)

	// the reload after booking shows the slot as taken
	fetches := th.fake.Fetches()
	require.Len(t, fetches, 2)
	assert.Equal(t, th.today.String(), fetches[1].Start)
	for _, day := range resp.View.Calendar.Days {
		if day.Date == tomorrow {
			assert.Equal(t, "2 open", day.StatusText)
		}
	}

	assert.Zero(t, h.ActiveSessions(), "http sessions are evicted after each request")
	state, err := th.store.Load(context.Background(), id)
	require.NoError(t, err)
	assert.NotNil(t, state.Range)
}

func TestHandleEvent_IncompleteSubmitShowsValidationFeedback(t *testing.T) {
	th := newTestHost(t, nil)

	resp := decodeView(t, postEvent(t, th.handler, InboundMessage{Type: TypeLoad}))
	resp = decodeView(t, postEvent(t, th.handler, InboundMessage{
		Type: TypeSubmit, SessionID: resp.SessionID, Fields: &widget.FormFields{Name: "Jane"},
	}))

	require.NotNil(t, resp.View.Feedback)
	assert.Equal(t, widget.MsgSelectDateAndTime, resp.View.Feedback.Message)
	assert.True(t, resp.View.Feedback.IsError)
	assert.Equal(t, "Jane", resp.View.Form.Fields.Name)
	assert.Empty(t, th.fake.Submissions())
}

func TestHandleEvent_LoadFailureRendersInlineError(t *testing.T) {
	th := newTestHost(t, nil)
	th.fake.FailAvailability(http.StatusBadGateway)

	resp := decodeView(t, postEvent(t, th.handler, InboundMessage{Type: TypeLoad}))
	assert.Equal(t, widget.MsgLoadFailed, resp.View.Calendar.Error)
	assert.Contains(t, resp.HTML.Calendar, widget.MsgLoadFailed)
}

func TestHandleEvent_Validation(t *testing.T) {
	th := newTestHost(t, nil)

	tests := []struct {
		name string
		body any
	}{
		{"unknown type", InboundMessage{Type: "explode"}},
		{"missing type", InboundMessage{}},
		{"select slot without slot", InboundMessage{Type: TypeSelectSlot, Date: "2024-06-10"}},
		{"select slot without date", InboundMessage{Type: TypeSelectSlot, SlotID: "midday-refresh"}},
		{"select date bad format", InboundMessage{Type: TypeSelectDate, Date: "June 10"}},
		{"navigate without direction", InboundMessage{Type: TypeNavigate}},
		{"navigate bad direction", InboundMessage{Type: TypeNavigate, Direction: "up"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postEvent(t, th.handler, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/booking/events", strings.NewReader("{"))
	w := httptest.NewRecorder()
	th.handler.HandleEvent(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionIDMustBeUUID(t *testing.T) {
	th := newTestHost(t, nil)
	long := strings.Repeat("x", 500)

	for _, id := range []string{"abc", long} {
		w := postEvent(t, th.handler, InboundMessage{Type: TypeLoad, SessionID: id})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		_, err := th.store.Load(context.Background(), id)
		assert.ErrorIs(t, err, session.ErrNotFound)
	}
	assert.Zero(t, th.handler.ActiveSessions())

	w := httptest.NewRecorder()
	th.handler.HandleView(w, httptest.NewRequest(http.MethodGet, "/booking/view?session="+long, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	conn := dialWidget(t, th.handler, long)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg OutboundMessage
	require.NoError(t, websocket.JSON.Receive(conn, &msg))
	assert.Equal(t, "error", msg.Type)
	assert.Zero(t, th.handler.ActiveSessions())

	id := uuid.New()
	resp := decodeView(t, postEvent(t, th.handler, InboundMessage{
		Type: TypeClearSelection, SessionID: strings.ToUpper(id.String()),
	}))
	assert.Equal(t, id.String(), resp.SessionID)
}

func TestHandleEvent_Navigate(t *testing.T) {
	th := newTestHost(t, nil)

	resp := decodeView(t, postEvent(t, th.handler, InboundMessage{Type: TypeLoad}))
	assert.False(t, resp.View.Nav.Prev.Enabled)
	require.True(t, resp.View.Nav.Next.Enabled)

	resp = decodeView(t, postEvent(t, th.handler, InboundMessage{
		Type: TypeNavigate, SessionID: resp.SessionID, Direction: "next",
	}))
	require.NotEmpty(t, resp.View.Calendar.Days)
	assert.Equal(t, th.today.AddDays(35), resp.View.Calendar.Days[0].Date)
	assert.True(t, resp.View.Nav.Prev.Enabled)
	assert.Equal(t, th.today, *resp.View.Nav.Prev.Start)
}

func TestHandleView(t *testing.T) {
	th := newTestHost(t, nil)

	w := httptest.NewRecorder()
	th.handler.HandleView(w, httptest.NewRequest(http.MethodGet, "/booking/view", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	th.handler.HandleView(w, httptest.NewRequest(http.MethodGet, "/booking/view?session=nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	created := decodeView(t, postEvent(t, th.handler, InboundMessage{Type: TypeLoad}))
	w = httptest.NewRecorder()
	th.handler.HandleView(w, httptest.NewRequest(http.MethodGet, "/booking/view?session="+created.SessionID, nil))
	resp := decodeView(t, w)
	assert.Equal(t, created.SessionID, resp.SessionID)
	assert.Len(t, resp.View.Calendar.Days, 35)
}

func TestSessionSurvivesHostRestartWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := session.NewRedisStore(client, time.Hour)

	first := newTestHost(t, store)
	resp := decodeView(t, postEvent(t, first.handler, InboundMessage{Type: TypeLoad}))
	tomorrow := first.today.AddDays(1)
	decodeView(t, postEvent(t, first.handler, InboundMessage{
		Type: TypeSelectSlot, SessionID: resp.SessionID, Date: tomorrow.String(), SlotID: "late-day-polish",
	}))

	second := newTestHost(t, store)
	w := httptest.NewRecorder()
	second.handler.HandleView(w, httptest.NewRequest(http.MethodGet, "/booking/view?session="+resp.SessionID, nil))
	restored := decodeView(t, w)
	assert.Equal(t, "late-day-polish", restored.View.Form.SlotID)
	assert.Equal(t, tomorrow.String(), restored.View.Form.SelectedDate)
}

func dialWidget(t *testing.T, h *Handler, sessionID string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/booking/ws?session=" + sessionID
	conn, err := websocket.Dial(url, "", srv.URL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// await reads messages until one satisfies match.
func await(t *testing.T, conn *websocket.Conn, match func(OutboundMessage) bool) OutboundMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg OutboundMessage
		require.NoError(t, websocket.JSON.Receive(conn, &msg))
		if match(msg) {
			return msg
		}
	}
}

func viewWhere(pred func(widget.View) bool) func(OutboundMessage) bool {
	return func(m OutboundMessage) bool {
		return m.Type == "view" && m.View != nil && pred(*m.View)
	}
}

func TestWebSocket_SessionLifecycle(t *testing.T) {
	th := newTestHost(t, nil)
	conn := dialWidget(t, th.handler, "")

	hello := await(t, conn, func(m OutboundMessage) bool { return m.Type == "session" })
	require.NotEmpty(t, hello.SessionID)

	loaded := await(t, conn, viewWhere(func(v widget.View) bool { return len(v.Calendar.Days) > 0 }))
	assert.Len(t, loaded.View.Calendar.Days, 35)
	require.NotNil(t, loaded.HTML)
	assert.Contains(t, loaded.HTML.Calendar, "data-date")

	require.NoError(t, websocket.JSON.Send(conn, InboundMessage{Type: TypePing}))
	await(t, conn, func(m OutboundMessage) bool { return m.Type == "pong" })

	tomorrow := th.today.AddDays(1)
	require.NoError(t, websocket.JSON.Send(conn, InboundMessage{
		Type: TypeSelectSlot, Date: tomorrow.String(), SlotID: "morning-detail",
	}))
	selected := await(t, conn, viewWhere(func(v widget.View) bool { return v.Form.SlotID == "morning-detail" }))
	assert.Equal(t, tomorrow.String(), selected.View.Form.SelectedDate)

	require.NoError(t, websocket.JSON.Send(conn, InboundMessage{Type: TypeSelectSlot, Date: tomorrow.String()}))
	errMsg := await(t, conn, func(m OutboundMessage) bool { return m.Type == "error" })
	assert.Contains(t, errMsg.Text, "invalid message")

	require.NoError(t, websocket.JSON.Send(conn, InboundMessage{
		Type:   TypeSubmit,
		Fields: &widget.FormFields{Name: "Jane", Email: "jane@example.com"},
	}))
	await(t, conn, viewWhere(func(v widget.View) bool {
		return v.Feedback != nil && v.Feedback.Message == "Booking request received. We'll confirm shortly."
	}))
	require.Len(t, th.fake.Submissions(), 1)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return th.handler.ActiveSessions() == 0 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, th.handler.Shutdown(context.Background()))

	state, err := th.store.Load(context.Background(), hello.SessionID)
	require.NoError(t, err)
	assert.Empty(t, state.Selection.SlotID)
	require.NotNil(t, state.LastConfirmation)
}

func TestWebSocket_ResumesExistingSession(t *testing.T) {
	th := newTestHost(t, nil)
	created := decodeView(t, postEvent(t, th.handler, InboundMessage{Type: TypeLoad}))
	tomorrow := th.today.AddDays(1)
	decodeView(t, postEvent(t, th.handler, InboundMessage{
		Type: TypeSelectDate, SessionID: created.SessionID, Date: tomorrow.String(),
	}))

	conn := dialWidget(t, th.handler, created.SessionID)
	hello := await(t, conn, func(m OutboundMessage) bool { return m.Type == "session" })
	assert.Equal(t, created.SessionID, hello.SessionID)

	first := await(t, conn, func(m OutboundMessage) bool { return m.Type == "view" })
	assert.Equal(t, tomorrow.String(), first.View.Form.SelectedDate)
	assert.Len(t, th.fake.Fetches(), 1, "restored sessions do not reload on connect")
}
