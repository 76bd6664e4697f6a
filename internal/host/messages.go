package host

import (
	"fmt"
	"strings"

	"cloud.google.com/go/civil"

	"github.com/wolfman30/detailing-booking-widget/internal/widget"
	"github.com/wolfman30/detailing-booking-widget/internal/widget/render"
)

const (
	TypeLoad           = "load"
	TypeSelectDate     = "select_date"
	TypeSelectSlot     = "select_slot"
	TypeClearSelection = "clear_selection"
	TypeNavigate       = "navigate"
	TypeSubmit         = "submit"
	TypePing           = "ping"
)

// InboundMessage is what the widget page sends, over the websocket or the
// HTTP fallback.
type InboundMessage struct {
	Type      string             `json:"type" validate:"required,oneof=load select_date select_slot clear_selection navigate submit ping"`
	SessionID string             `json:"session_id,omitempty" validate:"omitempty,uuid"`
	Date      string             `json:"date,omitempty"`
	SlotID    string             `json:"slot_id,omitempty" validate:"required_if=Type select_slot"`
	Direction string             `json:"direction,omitempty" validate:"required_if=Type navigate"`
	Fields    *widget.FormFields `json:"fields,omitempty"`
}

// OutboundMessage is what the host pushes to the page.
type OutboundMessage struct {
	Type      string            `json:"type"` // "session", "view", "pong", "error"
	SessionID string            `json:"session_id,omitempty"`
	View      *widget.View      `json:"view,omitempty"`
	HTML      *render.Fragments `json:"html,omitempty"`
	Text      string            `json:"text,omitempty"`
}

// ViewResponse is the HTTP fallback body.
type ViewResponse struct {
	SessionID string           `json:"session_id"`
	View      widget.View      `json:"view"`
	HTML      render.Fragments `json:"html"`
}

// date parses the optional date field.
func (m InboundMessage) date() (*civil.Date, error) {
	raw := strings.TrimSpace(m.Date)
	if raw == "" {
		if m.Type == TypeSelectDate || m.Type == TypeSelectSlot {
			return nil, fmt.Errorf("date is required for %s", m.Type)
		}
		return nil, nil
	}
	d, err := civil.ParseDate(raw)
	if err != nil {
		return nil, fmt.Errorf("date must be YYYY-MM-DD")
	}
	return &d, nil
}

func (m InboundMessage) direction() (widget.Direction, error) {
	switch d := widget.Direction(strings.ToLower(strings.TrimSpace(m.Direction))); d {
	case widget.DirectionPrev, widget.DirectionNext:
		return d, nil
	default:
		return "", fmt.Errorf("direction must be prev or next")
	}
}
