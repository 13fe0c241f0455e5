package api

import (
	"errors"
	"fmt"
)

// Error is a response the server actually produced (any non-2xx status).
// Transport failures are never *Error; they surface as wrapped net errors.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server rejected request (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("server rejected request (%d)", e.StatusCode)
}

// IsServerRejection reports whether err is a 4xx response. Rejections are
// surfaced to the operator verbatim and must never be queued for retry:
// replaying them reproduces the same rejection.
func IsServerRejection(err error) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.StatusCode >= 400 && ae.StatusCode < 500
	}
	return false
}

// ShouldQueue reports whether a failed write should fall back to the
// offline queue: transport-level failures (no response received) and 5xx
// responses qualify; 4xx rejections do not.
func ShouldQueue(err error) bool {
	if err == nil {
		return false
	}
	return !IsServerRejection(err)
}
