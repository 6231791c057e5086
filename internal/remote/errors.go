// Package remote wraps calls to external AI services with a per-attempt
// timeout, exponential backoff and a shared error taxonomy.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// Error kinds. Use errors.Is against these to branch on a classified failure.
var (
	ErrTransient              = errors.New("service temporarily unavailable")
	ErrCredential             = errors.New("credential missing or invalid")
	ErrSafety                 = errors.New("rejected by safety filters")
	ErrInvalidInput           = errors.New("invalid input")
	ErrMalformedResponse      = errors.New("malformed or unrecognized response")
	ErrProcessingFailed       = errors.New("processing failed")
	ErrEnhancementUnavailable = errors.New("enhancement unavailable, original image kept")
)

// Error is a classified failure of a remote call.
type Error struct {
	Kind       error
	Op         string
	StatusCode int
	Attempts   int
	// Exhausted is set when the call gave up after the last allowed attempt.
	Exhausted bool
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	if e.Attempts > 1 {
		fmt.Fprintf(&b, " after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Errorf builds a classified error with a formatted cause.
func Errorf(kind error, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// StatusError is returned by plain HTTP clients for non-2xx responses so the
// status code survives until classification.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// KindOf returns the kind sentinel of a classified error, or nil.
func KindOf(err error) error {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Kind
	}
	return nil
}

// IsRetryable reports whether the outermost classification of err is
// transient.
func IsRetryable(err error) bool {
	return KindOf(err) == ErrTransient
}

// Classify maps an arbitrary error into the taxonomy. Already classified
// errors are returned unchanged.
func Classify(op string, err error) *Error {
	if err == nil {
		return nil
	}

	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr
	}

	if code, msg, ok := apiErrorDetails(err); ok {
		return &Error{Kind: classifyStatus(code, msg), Op: op, StatusCode: code, Err: err}
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return &Error{Kind: classifyStatus(statusErr.StatusCode, statusErr.Body), Op: op, StatusCode: statusErr.StatusCode, Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: ErrTransient, Op: op, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: ErrProcessingFailed, Op: op, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: ErrTransient, Op: op, Err: err}
	}

	return &Error{Kind: classifyMessage(err.Error()), Op: op, Err: err}
}

// apiErrorDetails extracts the status code and message of a Gemini API error,
// whether it was returned by value or by pointer.
func apiErrorDetails(err error) (int, string, bool) {
	var apiPtr *genai.APIError
	if errors.As(err, &apiPtr) && apiPtr != nil {
		return apiPtr.Code, apiPtr.Status + " " + apiPtr.Message, true
	}
	var apiVal genai.APIError
	if errors.As(err, &apiVal) {
		return apiVal.Code, apiVal.Status + " " + apiVal.Message, true
	}
	return 0, "", false
}

func classifyStatus(code int, msg string) error {
	if isCredentialMessage(msg) {
		return ErrCredential
	}
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrCredential
	case code == http.StatusRequestTimeout || code == http.StatusTooManyRequests:
		return ErrTransient
	case code == http.StatusInternalServerError || code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable || code == http.StatusGatewayTimeout:
		return ErrTransient
	case code >= 400 && code < 500:
		return ErrInvalidInput
	default:
		return classifyMessage(msg)
	}
}

func isCredentialMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "api_key_invalid") ||
		strings.Contains(lower, "api key not valid") ||
		strings.Contains(lower, "invalid api key") ||
		strings.Contains(lower, "requested entity was not found") ||
		strings.Contains(lower, "permission denied") ||
		strings.Contains(lower, "permission_denied") ||
		strings.Contains(lower, "unauthenticated")
}

func classifyMessage(msg string) error {
	lower := strings.ToLower(msg)
	switch {
	case isCredentialMessage(msg):
		return ErrCredential
	case strings.Contains(lower, "resource exhausted") ||
		strings.Contains(lower, "resource_exhausted") ||
		strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "quota") ||
		strings.Contains(lower, "overloaded") ||
		strings.Contains(lower, "unavailable") ||
		strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "connection refused"):
		return ErrTransient
	case strings.Contains(lower, "safety") || strings.Contains(lower, "blocked"):
		return ErrSafety
	default:
		return ErrProcessingFailed
	}
}
