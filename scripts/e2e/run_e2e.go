// Package main runs E2E scenarios against a running booking widget host using
// the HTTP event fallback.
//
// Scenarios cover:
//   - Initial availability load
//   - Submitting without a slot (inline validation)
//   - Booking the first open slot and seeing it reserved after the reload
//   - Paging forward and back
//
// Usage:
//
//	WIDGET_HOST_URL=http://localhost:8080 go run scripts/e2e/run_e2e.go [scenario-name]
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/wolfman30/detailing-booking-widget/internal/host"
	"github.com/wolfman30/detailing-booking-widget/internal/widget"
)

var (
	hostURL    string
	httpClient = &http.Client{Timeout: 20 * time.Second}
)

type scenario struct {
	Name string
	Fn   func(t *T)
}

// T is a lightweight test context for a single scenario.
type T struct {
	passed int
	failed int
	name   string
}

func (t *T) check(name string, ok bool) {
	if ok {
		fmt.Printf("    PASS: %s\n", name)
		t.passed++
	} else {
		fmt.Printf("    FAIL: %s\n", name)
		t.failed++
	}
}

func (t *T) fatalf(format string, args ...interface{}) {
	fmt.Printf("    FATAL: "+format+"\n", args...)
	t.failed++
}

func send(msg host.InboundMessage) (*host.ViewResponse, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Post(hostURL+"/booking/events", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("events returned %d: %s", resp.StatusCode, string(data))
	}
	var out host.ViewResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode view: %w", err)
	}
	return &out, nil
}

// firstOpenSlot returns the first bookable date and slot in the view.
func firstOpenSlot(sessionID string, v widget.View) (string, string, bool) {
	for _, day := range v.Calendar.Days {
		if day.Disabled {
			continue
		}
		resp, err := send(host.InboundMessage{Type: host.TypeSelectDate, SessionID: sessionID, Date: day.Date.String()})
		if err != nil {
			return "", "", false
		}
		for _, slot := range resp.View.Slots.Slots {
			if !slot.Disabled {
				return day.Date.String(), slot.ID, true
			}
		}
	}
	return "", "", false
}

func scenarioLoad(t *T) {
	resp, err := send(host.InboundMessage{Type: host.TypeLoad})
	if err != nil {
		t.fatalf("load: %v", err)
		return
	}
	t.check("session id issued", resp.SessionID != "")
	t.check("calendar has days", len(resp.View.Calendar.Days) > 0)
	t.check("no load error", resp.View.Calendar.Error == "")
	t.check("range label present", resp.View.RangeLabel != "")
	t.check("calendar html rendered", resp.HTML.Calendar != "")
}

func scenarioIncompleteSubmit(t *T) {
	resp, err := send(host.InboundMessage{Type: host.TypeLoad})
	if err != nil {
		t.fatalf("load: %v", err)
		return
	}
	resp, err = send(host.InboundMessage{
		Type:      host.TypeSubmit,
		SessionID: resp.SessionID,
		Fields:    &widget.FormFields{Name: "E2E Visitor", Email: "e2e@example.com"},
	})
	if err != nil {
		t.fatalf("submit: %v", err)
		return
	}
	t.check("validation feedback shown", resp.View.Feedback != nil && resp.View.Feedback.Message == widget.MsgSelectDateAndTime)
	t.check("form fields kept", resp.View.Form.Fields.Name == "E2E Visitor")
}

func scenarioBooking(t *T) {
	resp, err := send(host.InboundMessage{Type: host.TypeLoad})
	if err != nil {
		t.fatalf("load: %v", err)
		return
	}
	id := resp.SessionID
	date, slotID, ok := firstOpenSlot(id, resp.View)
	if !ok {
		t.fatalf("no open slot in the first window")
		return
	}
	resp, err = send(host.InboundMessage{Type: host.TypeSelectSlot, SessionID: id, Date: date, SlotID: slotID})
	if err != nil {
		t.fatalf("select slot: %v", err)
		return
	}
	t.check("slot selected", resp.View.Form.SlotID == slotID)
	t.check("summary shown", resp.View.Summary != "")

	resp, err = send(host.InboundMessage{
		Type:      host.TypeSubmit,
		SessionID: id,
		Fields: &widget.FormFields{
			Name: "E2E Visitor", Email: "e2e@example.com", Phone: "555-0100",
			Vehicle: "E2E Test Car", Service: "Full detail", Notes: "automated run",
		},
	})
	if err != nil {
		t.fatalf("submit: %v", err)
		return
	}
	t.check("success feedback", resp.View.Feedback != nil && !resp.View.Feedback.IsError)
	t.check("selection cleared", resp.View.Form.SlotID == "" && resp.View.Form.SelectedDate == "")

	resp, err = send(host.InboundMessage{Type: host.TypeSelectDate, SessionID: id, Date: date})
	if err != nil {
		t.fatalf("reselect date: %v", err)
		return
	}
	reserved := false
	for _, slot := range resp.View.Slots.Slots {
		if slot.ID == slotID {
			reserved = slot.Reserved
		}
	}
	t.check("booked slot reserved after reload", reserved)
}

func scenarioPaging(t *T) {
	resp, err := send(host.InboundMessage{Type: host.TypeLoad})
	if err != nil {
		t.fatalf("load: %v", err)
		return
	}
	id := resp.SessionID
	t.check("previous disabled on first page", !resp.View.Nav.Prev.Enabled)
	first := resp.View.RangeLabel

	resp, err = send(host.InboundMessage{Type: host.TypeNavigate, SessionID: id, Direction: "next"})
	if err != nil {
		t.fatalf("next: %v", err)
		return
	}
	t.check("range advanced", resp.View.RangeLabel != first)
	t.check("previous enabled", resp.View.Nav.Prev.Enabled)

	resp, err = send(host.InboundMessage{Type: host.TypeNavigate, SessionID: id, Direction: "prev"})
	if err != nil {
		t.fatalf("prev: %v", err)
		return
	}
	t.check("back on first page", resp.View.RangeLabel == first)
}

func main() {
	hostURL = os.Getenv("WIDGET_HOST_URL")
	if hostURL == "" {
		hostURL = "http://localhost:8080"
	}

	scenarios := []scenario{
		{"load", scenarioLoad},
		{"incomplete-submit", scenarioIncompleteSubmit},
		{"booking", scenarioBooking},
		{"paging", scenarioPaging},
	}

	only := ""
	if len(os.Args) > 1 {
		only = os.Args[1]
	}

	var passed, failed int
	for _, sc := range scenarios {
		if only != "" && sc.Name != only {
			continue
		}
		fmt.Printf("=== %s\n", sc.Name)
		t := &T{name: sc.Name}
		sc.Fn(t)
		passed += t.passed
		failed += t.failed
	}

	fmt.Printf("\n%d passed, %d failed\n", passed, failed)
	if failed > 0 {
		os.Exit(1)
	}
}
