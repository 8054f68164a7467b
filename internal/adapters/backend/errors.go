package backend

import (
	"errors"
	"fmt"
)

// ErrUnreachable marks calls that never produced a usable answer: transport
// failures, timeouts, an open circuit breaker or an undecodable body.
var ErrUnreachable = errors.New("backend unreachable")

// RemoteError is an answer from the backend that reports a failure, either by
// a non-success status or by an error field in the body.
type RemoteError struct {
	Op         string
	StatusCode int
	Message    string // the body's error field, empty when absent
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend %s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("backend %s: status %d: %s", e.Op, e.StatusCode, e.Message)
}

// UserMessage returns the text to show for a failed call: the backend's own
// error message when it sent one, fallback otherwise.
func UserMessage(err error, fallback string) string {
	var re *RemoteError
	if errors.As(err, &re) && re.Message != "" {
		return re.Message
	}
	return fallback
}
