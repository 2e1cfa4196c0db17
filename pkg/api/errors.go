package api

import "net/http"

// ErrorKind is the closed set of failure classes the proxy distinguishes.
// Handlers switch on the kind instead of string-matching messages.
type ErrorKind string

const (
	ErrConfig      ErrorKind = "config"
	ErrValidation  ErrorKind = "validation"
	ErrAuth        ErrorKind = "auth"
	ErrRateLimit   ErrorKind = "rate_limit"
	ErrUnavailable ErrorKind = "unavailable"
	ErrTimeout     ErrorKind = "timeout"
	ErrProtocol    ErrorKind = "protocol"
)

// Error is the structured error every backend and the loader raise. Message
// and Recommendations are safe for the client; Log is internal only and is
// never serialized. Credentials must never appear in any of the client-facing
// fields.
type Error struct {
	Kind            ErrorKind
	Message         string
	Recommendations []string
	Details         map[string]string

	Log error `json:"-"`
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Log
}

// WithLog attaches an internal error for server-side logging.
func (e *Error) WithLog(err error) *Error {
	e.Log = err
	return e
}

// Status maps the error kind to the HTTP status the proxy reports.
// Validation and configuration problems are the caller's fault; everything
// else is a failed delegation to a backend.
func (e *Error) Status() int {
	switch e.Kind {
	case ErrValidation, ErrConfig:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func ConfigError(msg string) *Error {
	return &Error{Kind: ErrConfig, Message: msg}
}

func ValidationError(msg string, details map[string]string) *Error {
	return &Error{Kind: ErrValidation, Message: msg, Details: details}
}

func AuthError(msg string, recs ...string) *Error {
	return &Error{Kind: ErrAuth, Message: msg, Recommendations: recs}
}

func RateLimitError(msg string, recs ...string) *Error {
	return &Error{Kind: ErrRateLimit, Message: msg, Recommendations: recs}
}

func UnavailableError(msg string, recs ...string) *Error {
	return &Error{Kind: ErrUnavailable, Message: msg, Recommendations: recs}
}

func TimeoutError(msg string, recs ...string) *Error {
	return &Error{Kind: ErrTimeout, Message: msg, Recommendations: recs}
}

func ProtocolError(msg string, recs ...string) *Error {
	return &Error{Kind: ErrProtocol, Message: msg, Recommendations: recs}
}
