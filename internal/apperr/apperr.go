// Package apperr classifies pipeline failures so callers can branch on the
// failure class and map it to an HTTP status without string matching.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind is the top-level failure class.
type Kind string

const (
	KindValidation Kind = "validation"
	KindDownload   Kind = "download"
	KindRender     Kind = "render"
	KindUpload     Kind = "upload"
	KindInternal   Kind = "internal"
)

// Cause refines a Kind.
type Cause string

const (
	CauseNone                Cause = ""
	CauseTimeout             Cause = "timeout"
	CauseHTTPStatus          Cause = "http-status"
	CauseNetwork             Cause = "network"
	CauseCollaboratorFailure Cause = "collaborator-failure"
)

// Error is a classified pipeline failure.
type Error struct {
	Kind          Kind
	Cause         Cause
	Message       string
	StatusCode    int // Upstream HTTP status for CauseHTTPStatus
	CorrelationID string
	Err           error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Cause != CauseNone {
		b.WriteString("/")
		b.WriteString(string(e.Cause))
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same Kind and, when set on the target, the same Cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Cause == CauseNone || t.Cause == e.Cause
}

// Validation creates a validation failure.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Download creates a download failure with the given cause.
func Download(cause Cause, message string, err error) *Error {
	return &Error{Kind: KindDownload, Cause: cause, Message: message, Err: err}
}

// DownloadStatus creates an http-status download failure carrying the upstream status code.
func DownloadStatus(url string, status int) *Error {
	return &Error{
		Kind:       KindDownload,
		Cause:      CauseHTTPStatus,
		Message:    fmt.Sprintf("GET %s returned status %d", url, status),
		StatusCode: status,
	}
}

// Render creates a render failure with the given cause.
func Render(cause Cause, message string, err error) *Error {
	return &Error{Kind: KindRender, Cause: cause, Message: message, Err: err}
}

// Upload creates an upload failure.
func Upload(message string, err error) *Error {
	return &Error{Kind: KindUpload, Message: message, Err: err}
}

// Internal creates an unclassified failure.
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// WithCorrelation tags err with a correlation id, classifying it as internal if it
// is not already an *Error. Returns nil for a nil err.
func WithCorrelation(err error, correlationID string) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if !errors.As(err, &e) {
		e = Internal("unexpected failure", err)
	}
	e.CorrelationID = correlationID
	return e
}

// KindOf returns the failure class of err, or KindInternal when err is unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CauseOf returns the refined cause of err, if any.
func CauseOf(err error) Cause {
	var e *Error
	if errors.As(err, &e) {
		return e.Cause
	}
	return CauseNone
}

// HTTPStatus maps a failure to the status returned by the HTTP surface.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindDownload, KindUpload:
		return http.StatusBadGateway
	case KindRender:
		if CauseOf(err) == CauseTimeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the user-facing text for err. Validation messages are returned
// as-is; everything else becomes "Rendering failed: <message>".
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "Rendering failed: internal error"
	}
	if e.Kind == KindValidation {
		return e.Message
	}
	return "Rendering failed: " + e.Message
}
