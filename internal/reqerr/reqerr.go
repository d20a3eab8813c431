package reqerr

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

// Recognized error names.
const (
	NameAbort         = "AbortError"
	NameTimeout       = "TimeoutError"
	NameStreamTimeout = "StreamTimeoutError"
	NameConfiguration = "ConfigurationError"
	NameHTTP          = "HTTPError"
	NameNetwork       = "NetworkError"
	NameDecode        = "DecodeError"
	NameTransform     = "TransformError"
	NameUnknown       = "Error"
)

// Error is the normalized shape every failure is reported with.
type Error struct {
	Name    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Message == "" {
		return e.Name
	}
	return e.Name + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches sentinels by name so a wrapped or re-created value still compares.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t == nil || e == nil {
		return false
	}
	return t.Name == e.Name && (t.Message == "" || t.Message == e.Message)
}

var (
	ErrAbort         = &Error{Name: NameAbort, Message: "request aborted"}
	ErrTimeout       = &Error{Name: NameTimeout, Message: "request timed out"}
	ErrStreamTimeout = &Error{Name: NameStreamTimeout, Message: "no chunk received within stream timeout"}

	ErrEmptyBody              = &Error{Name: NameHTTP, Message: "response body is empty"}
	ErrBusy                   = &Error{Name: NameConfiguration, Message: "request already pending"}
	ErrMissingURL             = &Error{Name: NameConfiguration, Message: "missing url"}
	ErrMiddleware             = &Error{Name: NameConfiguration, Message: "middleware must return a value of the kind it received"}
	ErrUnsupportedContentType = &Error{Name: NameConfiguration, Message: "content type not supported"}
)

// New returns an error with the given name.
func New(name, format string, args ...any) *Error {
	return &Error{Name: name, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches cause to a named error.
func Wrap(name string, cause error, format string, args ...any) *Error {
	return &Error{Name: name, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// StatusError reports a non-2xx response.
type StatusError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (e *StatusError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "http %d", e.StatusCode)
	if t := http.StatusText(e.StatusCode); t != "" {
		b.WriteString(" ")
		b.WriteString(t)
	}
	if body := strings.TrimSpace(string(e.Body)); body != "" {
		b.WriteString(": ")
		b.WriteString(body)
	}
	return b.String()
}

// Normalize maps any error onto *Error. Already-normalized errors are
// returned as-is; nil stays nil.
func Normalize(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e == err {
			return e
		}
		// keep the outer message, inherit the name
		return &Error{Name: e.Name, Message: err.Error(), Cause: err}
	}
	var se *StatusError
	if errors.As(err, &se) {
		return &Error{Name: NameHTTP, Message: se.Error(), Cause: err}
	}
	switch {
	case errors.Is(err, context.Canceled):
		return &Error{Name: NameAbort, Message: err.Error(), Cause: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Name: NameTimeout, Message: err.Error(), Cause: err}
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return &Error{Name: NameNetwork, Message: err.Error(), Cause: err}
	}
	return &Error{Name: NameUnknown, Message: err.Error(), Cause: err}
}

// Is reports whether err normalizes to the given name.
func Is(err error, name string) bool {
	e := Normalize(err)
	return e != nil && e.Name == name
}
