package widget

import (
	"context"

	"cloud.google.com/go/civil"
)

// Direction is a calendar paging direction.
type Direction string

const (
	DirectionPrev Direction = "prev"
	DirectionNext Direction = "next"
)

// EventHandler is the set of user events that drive the widget. Hosts
// translate their own input (websocket frames, form posts) into these calls.
type EventHandler interface {
	OnLoad(ctx context.Context, start *civil.Date) error
	OnDateSelected(date civil.Date)
	OnSlotSelected(date civil.Date, slotID string) bool
	OnClearSelection()
	OnNavigate(ctx context.Context, direction Direction) error
	OnSubmit(ctx context.Context, fields FormFields) error
}

var _ EventHandler = (*Controller)(nil)

func (c *Controller) OnLoad(ctx context.Context, start *civil.Date) error {
	return c.LoadAvailability(ctx, start)
}

func (c *Controller) OnDateSelected(date civil.Date) { c.SelectDate(date) }

func (c *Controller) OnSlotSelected(date civil.Date, slotID string) bool {
	return c.SelectSlot(date, slotID)
}

func (c *Controller) OnClearSelection() { c.ClearSelection() }

func (c *Controller) OnNavigate(ctx context.Context, direction Direction) error {
	return c.Navigate(ctx, direction)
}

func (c *Controller) OnSubmit(ctx context.Context, fields FormFields) error {
	return c.Submit(ctx, fields)
}
