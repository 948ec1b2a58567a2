package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"syscall"
)

// ErrorKind classifies provider failures.
type ErrorKind int

const (
	// KindUnknown is an unclassified failure. Treated as retryable.
	KindUnknown ErrorKind = iota
	KindRateLimited
	KindUnavailable
	KindTimeout
	KindConnectionRefused
	KindInvalidInput
	KindUnauthorized
	KindNotFound
	KindDimensionMismatch
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate limited"
	case KindUnavailable:
		return "unavailable"
	case KindTimeout:
		return "timeout"
	case KindConnectionRefused:
		return "connection refused"
	case KindInvalidInput:
		return "invalid input"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not found"
	case KindDimensionMismatch:
		return "dimension mismatch"
	default:
		return "unknown"
	}
}

// Retryable reports whether a failure of this kind may succeed later.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindInvalidInput, KindUnauthorized, KindNotFound, KindDimensionMismatch:
		return false
	default:
		return true
	}
}

// ProviderError is a classified failure from an AI provider.
type ProviderError struct {
	Kind ErrorKind
	Op   string // "embed" or "complete"
	Err  error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the operation may succeed if repeated.
func (e *ProviderError) Retryable() bool {
	return e.Kind.Retryable()
}

// NewError builds a ProviderError.
func NewError(kind ErrorKind, op string, err error) *ProviderError {
	return &ProviderError{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first ProviderError in err's chain,
// or KindUnknown.
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err is worth retrying. Errors that are not
// ProviderErrors are retryable.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return true
}

// langchaingo reports HTTP failures only as text.
var statusPattern = regexp.MustCompile(`status code:? (\d{3})`)

// Classify maps a raw client error onto a ProviderError for op.
// Cancellation of the caller's context is returned unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return NewError(kindOf(err), op, err)
}

func kindOf(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return KindConnectionRefused
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	msg := err.Error()
	if m := statusPattern.FindStringSubmatch(msg); m != nil {
		code, _ := strconv.Atoi(m[1])
		return ClassifyStatus(code)
	}

	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "connection refused"):
		return KindConnectionRefused
	case strings.Contains(lower, "quota"), strings.Contains(lower, "rate limit"):
		return KindRateLimited
	case strings.Contains(lower, "timeout"):
		return KindTimeout
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindUnavailable
	}
	return KindUnknown
}

// ClassifyStatus maps an HTTP status code onto an ErrorKind.
func ClassifyStatus(code int) ErrorKind {
	switch {
	case code == http.StatusTooManyRequests:
		return KindRateLimited
	case code == http.StatusRequestTimeout, code == http.StatusGatewayTimeout:
		return KindTimeout
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return KindUnauthorized
	case code == http.StatusNotFound:
		return KindNotFound
	case code >= 500:
		return KindUnavailable
	case code >= 400:
		return KindInvalidInput
	default:
		return KindUnknown
	}
}

// CheckDimension returns a permanent error when v does not have dim
// components. dim 0 disables the check.
func CheckDimension(op string, v []float32, dim int) error {
	if dim > 0 && len(v) != dim {
		return NewError(KindDimensionMismatch, op, fmt.Errorf("expected %d components, got %d", dim, len(v)))
	}
	return nil
}
