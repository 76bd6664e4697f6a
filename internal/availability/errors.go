package availability

import (
	"errors"
	"fmt"
)

// StatusError is returned for non-2xx responses. Message carries the server's
// "error" field when one was sent.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("availability: status %d", e.Status)
	}
	return fmt.Sprintf("availability: status %d: %s", e.Status, e.Message)
}

// ServerMessage extracts the user-facing message the server attached to err.
func ServerMessage(err error) string {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Message
	}
	return ""
}
