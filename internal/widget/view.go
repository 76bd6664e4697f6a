package widget

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/wolfman30/detailing-booking-widget/internal/availability"
	"github.com/wolfman30/detailing-booking-widget/internal/calendar"
)

const (
	LabelRefreshing    = "Refreshing…"
	MsgNoCalendarData  = "No calendar data available."
	MsgSelectDateFirst = "Select a date to see available times."
	MsgNoSessions      = "No sessions available for this day."
)

// DayStatus is the tone of a day cell.
type DayStatus string

const (
	DayClosed DayStatus = "closed"
	DayOpen   DayStatus = "open"
	DayFull   DayStatus = "full"
)

// View is everything a surface needs to draw the widget.
type View struct {
	RangeLabel   string                     `json:"range_label"`
	Loading      bool                       `json:"loading"`
	Calendar     CalendarView               `json:"calendar"`
	Slots        SlotsView                  `json:"slots"`
	Summary      string                     `json:"summary,omitempty"`
	Nav          NavView                    `json:"nav"`
	Form         FormView                   `json:"form"`
	Feedback     *Feedback                  `json:"feedback,omitempty"`
	Catalogue    []availability.SlotMeta    `json:"catalogue,omitempty"`
	GeneratedAt  time.Time                  `json:"generated_at,omitempty"`
	Confirmation *availability.Confirmation `json:"confirmation,omitempty"`
}

// CalendarView is the day grid. Error replaces the grid when set.
type CalendarView struct {
	Error string    `json:"error,omitempty"`
	Empty string    `json:"empty,omitempty"`
	Days  []DayCell `json:"days"`
}

type DayCell struct {
	Date       civil.Date `json:"date"`
	Label      string     `json:"label"`
	Number     int        `json:"number"`
	TopLabel   string     `json:"top_label"`
	Status     DayStatus  `json:"status"`
	StatusText string     `json:"status_text"`
	OpenSlots  int        `json:"open_slots"`
	Disabled   bool       `json:"disabled"`
	Selected   bool       `json:"selected"`
	IsToday    bool       `json:"is_today"`
	IsWeekend  bool       `json:"is_weekend"`
}

// SlotsView lists the selected day's slots, or a message when there are none.
type SlotsView struct {
	Message string     `json:"message,omitempty"`
	Slots   []SlotCell `json:"slots"`
}

type SlotCell struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Window   string `json:"window"`
	Disabled bool   `json:"disabled"`
	Reserved bool   `json:"reserved"`
	Selected bool   `json:"selected"`
}

type NavView struct {
	Prev NavControl `json:"prev"`
	Next NavControl `json:"next"`
}

// NavControl is one paging button. Start is the page it loads when enabled.
type NavControl struct {
	Enabled bool        `json:"enabled"`
	Start   *civil.Date `json:"start,omitempty"`
}

// FormView mirrors the booking form, including the hidden date and slot
// inputs that carry the selection.
type FormView struct {
	SelectedDate   string     `json:"selected_date"`
	SlotID         string     `json:"slot_id"`
	Fields         FormFields `json:"fields"`
	Submitting     bool       `json:"submitting"`
	SubmitDisabled bool       `json:"submit_disabled"`
}

// BuildView derives the view from state. today decides paging; now decides
// whether feedback is still visible.
func BuildView(s State, today civil.Date, now time.Time) View {
	v := View{
		Loading:     s.Loading,
		Calendar:    buildCalendar(s),
		Slots:       buildSlots(s),
		Summary:     summary(s.Selection),
		Nav:         buildNav(s.Range, today),
		Catalogue:   s.Catalogue,
		GeneratedAt: s.GeneratedAt,
		Form: FormView{
			SlotID:         s.Selection.SlotID,
			Fields:         s.Form,
			Submitting:     s.Submitting,
			SubmitDisabled: s.Submitting,
		},
		Confirmation: s.LastConfirmation,
	}

	switch {
	case s.Loading:
		v.RangeLabel = LabelRefreshing
	case s.Range != nil:
		v.RangeLabel = calendar.RangeLabel(*s.Range)
	}
	if s.Selection.Date != nil {
		v.Form.SelectedDate = s.Selection.Date.String()
	}
	if s.Feedback.VisibleAt(now) {
		fb := *s.Feedback
		v.Feedback = &fb
	}
	return v
}

func buildCalendar(s State) CalendarView {
	if s.LoadError != "" {
		return CalendarView{Error: s.LoadError}
	}
	if len(s.Days) == 0 {
		return CalendarView{Empty: MsgNoCalendarData}
	}

	cells := make([]DayCell, 0, len(s.Days))
	for _, day := range s.Days {
		open := day.OpenSlots()
		cell := DayCell{
			Date:      day.Date,
			Label:     day.Label,
			Number:    day.Date.Day,
			TopLabel:  topLabel(day),
			OpenSlots: open,
			Disabled:  day.IsClosed || !day.HasAvailability,
			Selected:  s.Selection.Date != nil && *s.Selection.Date == day.Date,
			IsToday:   day.IsToday,
			IsWeekend: day.IsWeekend,
		}
		switch {
		case day.IsClosed:
			cell.Status, cell.StatusText = DayClosed, "Closed"
		case day.HasAvailability:
			cell.Status, cell.StatusText = DayOpen, fmt.Sprintf("%d open", open)
		default:
			cell.Status, cell.StatusText = DayFull, "Full"
		}
		cells = append(cells, cell)
	}
	return CalendarView{Days: cells}
}

// topLabel is the weekday part of a "Mon, Jun 3" label.
func topLabel(day availability.Day) string {
	label := strings.TrimSpace(day.Label)
	if label == "" {
		return day.Date.In(time.UTC).Format("Mon")
	}
	if i := strings.Index(label, ","); i >= 0 {
		return strings.TrimSpace(label[:i])
	}
	return label
}

func buildSlots(s State) SlotsView {
	if s.Selection.Date == nil {
		return SlotsView{Message: MsgSelectDateFirst}
	}
	day, ok := s.findDay(*s.Selection.Date)
	if !ok || day.IsClosed || len(day.Slots) == 0 {
		return SlotsView{Message: MsgNoSessions}
	}
	cells := make([]SlotCell, 0, len(day.Slots))
	for _, slot := range day.Slots {
		cells = append(cells, SlotCell{
			ID:       slot.ID,
			Label:    slot.Label,
			Window:   slot.Window,
			Disabled: !slot.Available,
			Reserved: !slot.Available,
			Selected: slot.ID == s.Selection.SlotID,
		})
	}
	return SlotsView{Slots: cells}
}

func summary(sel Selection) string {
	if sel.Date == nil {
		return ""
	}
	if sel.SlotID == "" {
		return fmt.Sprintf("Great — now choose a slot on %s.", calendar.HumanDate(*sel.Date))
	}
	return fmt.Sprintf("%s • %s", calendar.HumanDate(*sel.Date), sel.SlotWindow)
}

func buildNav(r *calendar.DateRange, today civil.Date) NavView {
	var nav NavView
	if prev, ok := calendar.PreviousStart(r, today); ok {
		nav.Prev = NavControl{Enabled: true, Start: &prev}
	}
	if next, ok := calendar.NextStart(r); ok {
		nav.Next = NavControl{Enabled: true, Start: &next}
	}
	return nav
}
