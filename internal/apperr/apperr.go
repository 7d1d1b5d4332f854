package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"
)

// Kind classifies an error so callers can decide between aborting a job,
// recovering locally, or mapping to an HTTP status.
type Kind string

const (
	KindInputValidation    Kind = "input_validation"
	KindAuth               Kind = "auth_failure"
	KindNotFound           Kind = "not_found"
	KindSchemaViolation    Kind = "schema_violation"
	KindUpstreamGeneration Kind = "upstream_generation_failure"
	KindSynthesis          Kind = "synthesis_failure"
	KindSigning            Kind = "signing_failure"
	KindConflict           Kind = "conflict"
	KindInternal           Kind = "internal"
)

// Error is the typed error carried through the pipeline and the HTTP layer.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a kind to the response status used by the API layer.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInputValidation, KindSchemaViolation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindSigning:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUpstreamGeneration:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Truncate shortens s to at most maxRunes runes, appending "..." when cut.
func Truncate(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	if maxRunes <= 3 {
		return string([]rune(s)[:maxRunes])
	}
	return string([]rune(s)[:maxRunes-3]) + "..."
}
