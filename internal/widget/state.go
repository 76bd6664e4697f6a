package widget

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/wolfman30/detailing-booking-widget/internal/availability"
	"github.com/wolfman30/detailing-booking-widget/internal/calendar"
)

// Selection is the visitor's in-progress choice. A non-empty SlotID always
// comes with a Date whose day offers that slot as available.
type Selection struct {
	Date       *civil.Date `json:"date,omitempty"`
	SlotID     string      `json:"slot_id,omitempty"`
	SlotLabel  string      `json:"slot_label,omitempty"`
	SlotWindow string      `json:"slot_window,omitempty"`
}

// IsComplete reports whether both a date and a slot are chosen.
func (s Selection) IsComplete() bool {
	return s.Date != nil && s.SlotID != ""
}

func (s *Selection) clearSlot() {
	s.SlotID = ""
	s.SlotLabel = ""
	s.SlotWindow = ""
}

// FormFields are the contact and vehicle details entered by the visitor.
type FormFields struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Vehicle string `json:"vehicle"`
	Service string `json:"service"`
	Notes   string `json:"notes,omitempty"`
}

// Trimmed returns a copy with surrounding whitespace removed from every field.
func (f FormFields) Trimmed() FormFields {
	return FormFields{
		Name:    strings.TrimSpace(f.Name),
		Email:   strings.TrimSpace(f.Email),
		Phone:   strings.TrimSpace(f.Phone),
		Vehicle: strings.TrimSpace(f.Vehicle),
		Service: strings.TrimSpace(f.Service),
		Notes:   strings.TrimSpace(f.Notes),
	}
}

// Feedback is a banner shown after a submit attempt until ExpiresAt.
type Feedback struct {
	Message   string    `json:"message"`
	IsError   bool      `json:"is_error"`
	ExpiresAt time.Time `json:"expires_at"`
}

// VisibleAt reports whether the banner is still showing at now.
func (f *Feedback) VisibleAt(now time.Time) bool {
	return f != nil && now.Before(f.ExpiresAt)
}

// State is everything the controller owns. Days and Range are replaced
// wholesale on each successful load.
type State struct {
	Days             []availability.Day         `json:"days"`
	Range            *calendar.DateRange        `json:"range,omitempty"`
	Catalogue        []availability.SlotMeta    `json:"catalogue,omitempty"`
	GeneratedAt      time.Time                  `json:"generated_at,omitempty"`
	Selection        Selection                  `json:"selection"`
	Form             FormFields                 `json:"form"`
	Submitting       bool                       `json:"submitting"`
	Loading          bool                       `json:"-"`
	LoadError        string                     `json:"load_error,omitempty"`
	Feedback         *Feedback                  `json:"feedback,omitempty"`
	LastConfirmation *availability.Confirmation `json:"last_confirmation,omitempty"`
}

func (s State) findDay(date civil.Date) (availability.Day, bool) {
	for _, day := range s.Days {
		if day.Date == date {
			return day, true
		}
	}
	return availability.Day{}, false
}

// clone deep-copies the parts of the state callers could mutate.
func (s State) clone() State {
	out := s
	if s.Days != nil {
		out.Days = make([]availability.Day, len(s.Days))
		for i, day := range s.Days {
			day.Slots = append([]availability.Slot(nil), day.Slots...)
			out.Days[i] = day
		}
	}
	if s.Range != nil {
		r := *s.Range
		out.Range = &r
	}
	out.Catalogue = append([]availability.SlotMeta(nil), s.Catalogue...)
	if s.Selection.Date != nil {
		d := *s.Selection.Date
		out.Selection.Date = &d
	}
	if s.Feedback != nil {
		fb := *s.Feedback
		out.Feedback = &fb
	}
	if s.LastConfirmation != nil {
		conf := *s.LastConfirmation
		out.LastConfirmation = &conf
	}
	return out
}
