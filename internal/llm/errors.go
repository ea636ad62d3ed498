package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Error is the unified error interface returned by provider adapters and
// the client. Retryable reports whether the caller may retry; the client
// itself never retries.
type Error interface {
	error
	Provider() string
	StatusCode() int
	Retryable() bool
	RetryAfter() *time.Duration
}

// ConfigurationError is a user-fixable configuration problem: a missing
// credential, an unknown provider or an unresolvable model.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + strings.TrimSpace(e.Message)
}
func (e *ConfigurationError) Provider() string           { return "" }
func (e *ConfigurationError) StatusCode() int            { return 0 }
func (e *ConfigurationError) Retryable() bool            { return false }
func (e *ConfigurationError) RetryAfter() *time.Duration { return nil }

// StreamError is an error produced while decoding a provider stream.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string { return "stream error: " + strings.TrimSpace(e.Message) }

// ServerError is an upstream provider failure surfaced during a request
// or mid-stream; carries a retryable flag per the provider's semantics.
type ServerError struct {
	ProviderName string
	Message      string
	IsRetryable  bool
	Raw          any
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s server error: %s", e.ProviderName, strings.TrimSpace(e.Message))
}
func (e *ServerError) Provider() string           { return e.ProviderName }
func (e *ServerError) StatusCode() int            { return 0 }
func (e *ServerError) Retryable() bool            { return e.IsRetryable }
func (e *ServerError) RetryAfter() *time.Duration { return nil }

type httpError struct {
	provider   string
	statusCode int
	message    string
	retryable  bool
	retryAfter *time.Duration
	raw        any
}

func (e *httpError) Error() string {
	msg := strings.TrimSpace(e.message)
	if msg == "" {
		msg = "request failed"
	}
	return fmt.Sprintf("%s error (status=%d): %s", e.provider, e.statusCode, msg)
}
func (e *httpError) Provider() string           { return e.provider }
func (e *httpError) StatusCode() int            { return e.statusCode }
func (e *httpError) Retryable() bool            { return e.retryable }
func (e *httpError) RetryAfter() *time.Duration { return e.retryAfter }

type InvalidRequestError struct{ httpError }
type AuthenticationError struct{ httpError }
type AccessDeniedError struct{ httpError }
type NotFoundError struct{ httpError }
type RequestTimeoutError struct{ httpError }
type ContextLengthError struct{ httpError }
type RateLimitError struct{ httpError }
type UpstreamError struct{ httpError }

// ErrorFromHTTPStatus classifies an HTTP failure into the unified error
// hierarchy. Unknown statuses default to retryable.
func ErrorFromHTTPStatus(provider string, statusCode int, message string, raw any, retryAfter *time.Duration) error {
	base := httpError{
		provider:   strings.TrimSpace(provider),
		statusCode: statusCode,
		message:    message,
		retryAfter: retryAfter,
		raw:        raw,
	}
	switch statusCode {
	case 400, 422:
		base.retryable = false
		if strings.Contains(strings.ToLower(message), "context length") {
			return &ContextLengthError{base}
		}
		return &InvalidRequestError{base}
	case 401:
		base.retryable = false
		return &AuthenticationError{base}
	case 403:
		base.retryable = false
		return &AccessDeniedError{base}
	case 404:
		base.retryable = false
		return &NotFoundError{base}
	case 408:
		base.retryable = true
		return &RequestTimeoutError{base}
	case 413:
		base.retryable = false
		return &ContextLengthError{base}
	case 429:
		base.retryable = true
		return &RateLimitError{base}
	default:
		base.retryable = true
		return &UpstreamError{base}
	}
}

// WrapContextError maps a context cancellation or deadline into the
// unified hierarchy; other errors pass through unchanged.
func WrapContextError(provider string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return &RequestTimeoutError{httpError{
			provider:  strings.TrimSpace(provider),
			message:   "request deadline exceeded",
			retryable: false,
		}}
	case errors.Is(err, context.Canceled):
		return &RequestTimeoutError{httpError{
			provider:  strings.TrimSpace(provider),
			message:   "request cancelled",
			retryable: false,
		}}
	default:
		return err
	}
}

// NewUnsupportedToolChoiceError reports a tool_choice mode the provider
// cannot express.
func NewUnsupportedToolChoiceError(provider, mode string) error {
	return &ConfigurationError{
		Message: fmt.Sprintf("provider %s does not support tool_choice mode %q", provider, mode),
	}
}

// ParseRetryAfter parses a Retry-After header value: integer seconds or
// an HTTP-date.
func ParseRetryAfter(v string, now time.Time) *time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		d := time.Duration(secs) * time.Second
		return &d
	}
	if t, err := http.ParseTime(v); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return &d
	}
	return nil
}

func IsAuthenticationError(err error) bool {
	var e *AuthenticationError
	return errors.As(err, &e)
}

func IsRetryable(err error) bool {
	var e Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return false
}
