// Package availabilitytest provides an in-process fake of the Availability and
// Booking Submission services.
package availabilitytest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"github.com/wolfman30/detailing-booking-widget/internal/availability"
	"github.com/wolfman30/detailing-booking-widget/internal/calendar"
)

const (
	defaultDays = 30
	maxDays     = 45
)

type slotDefinition struct {
	ID          string
	Label       string
	Description string
	StartHour   int
	StartMinute int
	Duration    time.Duration
}

// Catalogue mirrors the detailing shop's three daily sessions.
var catalogue = []slotDefinition{
	{ID: "morning-detail", Label: "Morning Detail", Description: "Kick off the day with a full refresh.", StartHour: 8, Duration: 3 * time.Hour},
	{ID: "midday-refresh", Label: "Midday Refresh", Description: "Great for exterior + interior combos.", StartHour: 12, StartMinute: 30, Duration: 3 * time.Hour},
	{ID: "late-day-polish", Label: "Late Day Polish", Description: "Perfect for after-work drop-offs.", StartHour: 16, Duration: 3 * time.Hour},
}

// FetchCall records one availability request.
type FetchCall struct {
	Start string
	Days  int
}

// Server is a fake booking backend. Booked slots become unavailable and
// further submissions for them are rejected with 409.
type Server struct {
	*httptest.Server

	mu                 sync.Mutex
	today              civil.Date
	closed             map[time.Weekday]bool
	booked             map[string]bool
	availabilityStatus int
	submitStatus       int
	submitError        string
	fetches            []FetchCall
	submissions        []availability.BookingRequest
}

// NewServer starts a fake anchored at today and closes it with the test.
func NewServer(t testing.TB, today civil.Date) *Server {
	t.Helper()
	s := &Server{
		today:  today,
		closed: map[time.Weekday]bool{},
		booked: map[string]bool{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc(availability.DefaultAvailabilityPath, s.handleAvailability)
	mux.HandleFunc(availability.DefaultSubmitPath, s.handleSubmit)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// CloseWeekday marks a weekday as closed.
func (s *Server) CloseWeekday(day time.Weekday) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed[day] = true
}

// Book reserves a slot as if another visitor had taken it.
func (s *Server) Book(date civil.Date, slotID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.booked[key(date, slotID)] = true
}

// FailAvailability makes availability reads answer with status; 0 restores.
func (s *Server) FailAvailability(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.availabilityStatus = status
}

// FailSubmit makes submissions answer with status and message; 0 restores.
func (s *Server) FailSubmit(status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitStatus = status
	s.submitError = message
}

// Fetches returns the availability requests seen so far.
func (s *Server) Fetches() []FetchCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]FetchCall(nil), s.fetches...)
}

// Submissions returns accepted and rejected booking payloads in arrival order.
func (s *Server) Submissions() []availability.BookingRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]availability.BookingRequest(nil), s.submissions...)
}

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	call := FetchCall{Start: r.URL.Query().Get("start")}
	call.Days, _ = strconv.Atoi(r.URL.Query().Get("days"))
	s.fetches = append(s.fetches, call)

	if s.availabilityStatus != 0 {
		writeJSON(w, s.availabilityStatus, map[string]string{"error": "Unable to load availability"})
		return
	}

	start := s.today
	if parsed, err := civil.ParseDate(strings.TrimSpace(call.Start)); err == nil && parsed.After(start) {
		start = parsed
	}
	days := defaultDays
	if call.Days > 0 {
		days = call.Days
	}
	if days > maxDays {
		days = maxDays
	}

	window := availability.Window{
		GeneratedAt: time.Now().UTC(),
		Range:       calendar.NewRange(start, days),
		Days:        make([]availability.Day, 0, days),
		Slots:       slotMeta(),
	}
	for i := 0; i < days; i++ {
		window.Days = append(window.Days, s.buildDay(start.AddDays(i)))
	}
	writeJSON(w, http.StatusOK, window)
}

func (s *Server) buildDay(date civil.Date) availability.Day {
	weekday := date.In(time.UTC).Weekday()
	day := availability.Day{
		Date:      date,
		Label:     date.In(time.UTC).Format("Mon, Jan 2"),
		IsToday:   date == s.today,
		IsWeekend: weekday == time.Saturday || weekday == time.Sunday,
		IsClosed:  s.closed[weekday],
		Slots:     []availability.Slot{},
	}
	if day.IsClosed {
		return day
	}
	for _, def := range catalogue {
		start := date.In(time.UTC).Add(time.Duration(def.StartHour)*time.Hour + time.Duration(def.StartMinute)*time.Minute)
		end := start.Add(def.Duration)
		available := !s.booked[key(date, def.ID)]
		day.Slots = append(day.Slots, availability.Slot{
			ID:        def.ID,
			Label:     def.Label,
			Window:    fmt.Sprintf("%s – %s", start.Format("3:04 PM"), end.Format("3:04 PM")),
			StartISO:  start.Format(time.RFC3339),
			EndISO:    end.Format(time.RFC3339),
			Available: available,
		})
		if available {
			day.HasAvailability = true
		}
	}
	return day
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req availability.BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions = append(s.submissions, req)

	if s.submitStatus != 0 {
		writeJSON(w, s.submitStatus, map[string]string{"error": s.submitError})
		return
	}
	if req.Name == "" || req.Email == "" || req.SlotID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Name, email, date, and slot are required"})
		return
	}
	def, ok := lookup(req.SlotID)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid slot selection"})
		return
	}
	if s.closed[req.Date.In(time.UTC).Weekday()] {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "We are closed on the selected date"})
		return
	}
	if s.booked[key(req.Date, req.SlotID)] {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "That time has just been taken. Choose a different slot."})
		return
	}
	s.booked[key(req.Date, req.SlotID)] = true

	writeJSON(w, http.StatusCreated, availability.Confirmation{
		Message: "Booking request received. We'll confirm shortly.",
		Booking: map[string]any{
			"id":         len(s.submissions),
			"name":       req.Name,
			"email":      req.Email,
			"status":     "pending",
			"slot_label": def.Label,
			"date":       req.Date.In(time.UTC).Format("Monday, January 2"),
		},
	})
}

func lookup(id string) (slotDefinition, bool) {
	for _, def := range catalogue {
		if def.ID == id {
			return def, true
		}
	}
	return slotDefinition{}, false
}

func slotMeta() []availability.SlotMeta {
	meta := make([]availability.SlotMeta, 0, len(catalogue))
	for _, def := range catalogue {
		meta = append(meta, availability.SlotMeta{
			ID:          def.ID,
			Label:       def.Label,
			Description: def.Description,
			Duration:    fmt.Sprintf("%d hrs", int(def.Duration.Hours())),
		})
	}
	return meta
}

func key(date civil.Date, slotID string) string {
	return date.String() + "|" + slotID
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
