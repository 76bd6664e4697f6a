// Package availability contains the wire types and HTTP client for the booking
// Availability and Booking Submission services.
package availability

import (
	"time"

	"cloud.google.com/go/civil"

	"github.com/wolfman30/detailing-booking-widget/internal/calendar"
)

// Window is the availability read response.
type Window struct {
	GeneratedAt time.Time          `json:"generated_at,omitempty"`
	Range       calendar.DateRange `json:"range"`
	Days        []Day              `json:"days"`
	Slots       []SlotMeta         `json:"slots,omitempty"`
}

// Day is one calendar day within a window.
type Day struct {
	Date            civil.Date `json:"date"`
	Label           string     `json:"label"`
	IsToday         bool       `json:"is_today"`
	IsWeekend       bool       `json:"is_weekend,omitempty"`
	IsClosed        bool       `json:"is_closed"`
	HasAvailability bool       `json:"has_availability"`
	Slots           []Slot     `json:"slots"`
}

// Slot is a bookable time window within a day.
type Slot struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Window    string `json:"window"`
	StartISO  string `json:"start_iso,omitempty"`
	EndISO    string `json:"end_iso,omitempty"`
	Available bool   `json:"available"`
}

// SlotMeta describes an entry of the slot catalogue.
type SlotMeta struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Duration    string `json:"duration"`
}

// FindSlot returns the slot with the given id.
func (d Day) FindSlot(id string) (Slot, bool) {
	for _, slot := range d.Slots {
		if slot.ID == id {
			return slot, true
		}
	}
	return Slot{}, false
}

// OpenSlots counts slots that can still be booked.
func (d Day) OpenSlots() int {
	n := 0
	for _, slot := range d.Slots {
		if slot.Available {
			n++
		}
	}
	return n
}

// BookingRequest is the booking write payload.
type BookingRequest struct {
	Name    string     `json:"name"`
	Email   string     `json:"email"`
	Phone   string     `json:"phone"`
	Vehicle string     `json:"vehicle"`
	Service string     `json:"service"`
	Notes   string     `json:"notes"`
	Date    civil.Date `json:"date"`
	SlotID  string     `json:"slot_id"`
}

// Confirmation is a successful booking write response.
type Confirmation struct {
	Message string         `json:"message,omitempty"`
	Booking map[string]any `json:"booking,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}
