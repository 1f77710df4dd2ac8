package tool

import (
	"context"
	"errors"
	"strings"

	"github.com/kailas-cloud/dirsearch/internal/domain"
)

// Error codes returned to callers. The set is closed.
const (
	CodeInvalidFilter = "invalid_filter"
	CodeTimeout       = "timeout"
	CodeUnavailable   = "unavailable"
)

// Error is a tool failure safe to show to the model.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

func invalidFilter(msg string) *Error {
	return &Error{Code: CodeInvalidFilter, Message: msg}
}

var (
	errTimeout     = &Error{Code: CodeTimeout, Message: "search timed out"}
	errUnavailable = &Error{Code: CodeUnavailable, Message: "search temporarily unavailable"}
)

// translate maps an internal error onto the closed tool error set.
// Only filter errors carry their own message; everything else is generic.
func translate(err error) *Error {
	switch {
	case errors.Is(err, domain.ErrInvalidFilter):
		return invalidFilter(filterMessage(err))
	case errors.Is(err, domain.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return errTimeout
	default:
		return errUnavailable
	}
}

// filterMessage strips the wrapping context up to the sentinel from an invalid filter error.
func filterMessage(err error) string {
	msg := err.Error()
	prefix := domain.ErrInvalidFilter.Error() + ": "
	if i := strings.LastIndex(msg, prefix); i >= 0 {
		return msg[i+len(prefix):]
	}
	return msg
}
