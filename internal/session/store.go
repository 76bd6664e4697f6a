// Package session persists widget state between visitor connections.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/wolfman30/detailing-booking-widget/internal/widget"
)

// DefaultTTL bounds how long an idle widget session is remembered.
const DefaultTTL = 24 * time.Hour

// ErrNotFound is returned by Load for unknown or expired sessions.
var ErrNotFound = errors.New("session: not found")

// Store saves widget snapshots keyed by session id.
type Store interface {
	Load(ctx context.Context, id string) (widget.State, error)
	Save(ctx context.Context, id string, state widget.State) error
	Delete(ctx context.Context, id string) error
}
