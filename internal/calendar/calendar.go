// Package calendar holds the civil-date arithmetic behind the booking widget:
// the displayed availability window and its pagination.
package calendar

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// DefaultWindowDays is the number of days requested per availability load.
const DefaultWindowDays = 35

// fallbackPageDays is used for paging backwards when a range reports no length.
const fallbackPageDays = 30

// DateRange is the contiguous window of days currently displayed.
// End is inclusive: End = Start + Days - 1.
type DateRange struct {
	Start civil.Date `json:"start"`
	End   civil.Date `json:"end"`
	Days  int        `json:"days"`
}

// NewRange builds a range of days starting at start.
func NewRange(start civil.Date, days int) DateRange {
	return DateRange{Start: start, End: start.AddDays(days - 1), Days: days}
}

// Normalize fills a missing Days from Start/End and checks the inclusive-end
// invariant.
func (r DateRange) Normalize() (DateRange, error) {
	if !r.Start.IsValid() || !r.End.IsValid() {
		return r, fmt.Errorf("calendar: range has invalid bounds %s..%s", r.Start, r.End)
	}
	if r.Days <= 0 {
		r.Days = r.End.DaysSince(r.Start) + 1
	}
	if r.Days <= 0 || r.Start.AddDays(r.Days-1) != r.End {
		return r, fmt.Errorf("calendar: range %s..%s does not span %d days", r.Start, r.End, r.Days)
	}
	return r, nil
}

// Contains reports whether d falls inside the range, bounds included.
func (r DateRange) Contains(d civil.Date) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

// Today returns the civil date of now in loc.
func Today(now time.Time, loc *time.Location) civil.Date {
	if loc == nil {
		loc = time.Local
	}
	return civil.DateOf(now.In(loc))
}

// NextStart returns the first day after the range. There is no upper bound.
func NextStart(r *DateRange) (civil.Date, bool) {
	if r == nil {
		return civil.Date{}, false
	}
	return r.End.AddDays(1), true
}

// PreviousStart returns the start of the page before r. A page that would
// begin before today is clamped to today, unless r already starts today.
// It reports false when there is no distinct previous page.
func PreviousStart(r *DateRange, today civil.Date) (civil.Date, bool) {
	if r == nil {
		return civil.Date{}, false
	}
	days := r.Days
	if days <= 0 {
		days = fallbackPageDays
	}
	prev := r.Start.AddDays(-days)
	if prev.Before(today) {
		if r.Start == today {
			return civil.Date{}, false
		}
		prev = today
	}
	if prev == r.Start {
		return civil.Date{}, false
	}
	return prev, true
}

// HumanDate formats d the way the widget labels dates, e.g. "Mon, Jun 3".
func HumanDate(d civil.Date) string {
	return d.In(time.UTC).Format("Mon, Jan 2")
}

// RangeLabel renders "Mon, Jun 3 → Sat, Jul 6".
func RangeLabel(r DateRange) string {
	return HumanDate(r.Start) + " → " + HumanDate(r.End)
}
