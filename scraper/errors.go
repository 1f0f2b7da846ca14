package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrAuthFailure is matched by every AuthFailure.
var ErrAuthFailure = errors.New("authentication failed")

// NetworkError wraps a failed fetch, including non-2xx responses.
type NetworkError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Errorf("fetch %s: status %d: %w", e.URL, e.StatusCode, e.Err).Error()
	}
	return fmt.Errorf("fetch %s: %w", e.URL, e.Err).Error()
}

func (e NetworkError) Unwrap() error {
	return e.Err
}

// ParseError indicates a document or element that could not be interpreted.
type ParseError struct {
	What string
	Err  error
}

func (e ParseError) Error() string {
	return fmt.Errorf("parse %s: %w", e.What, e.Err).Error()
}

func (e ParseError) Unwrap() error {
	return e.Err
}

// AuthFailure is returned when no login candidate produced a session.
type AuthFailure struct {
	Attempts int
}

func (e *AuthFailure) Error() string {
	return fmt.Sprintf("%s after %d candidate(s)", ErrAuthFailure, e.Attempts)
}

func (e *AuthFailure) Is(target error) bool {
	return target == ErrAuthFailure
}

// ErrorTypeLabel maps an error to the label used for metrics and summaries.
func ErrorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return "connection"
	}
	var fetchErr NetworkError
	if errors.As(err, &fetchErr) {
		switch fetchErr.StatusCode {
		case 0:
			return "connection"
		case http.StatusForbidden:
			return "forbidden"
		case http.StatusNotFound:
			return "not_found"
		case http.StatusTooManyRequests:
			return "rate_limited"
		default:
			return "http_status"
		}
	}
	var parseErr ParseError
	if errors.As(err, &parseErr) {
		return "parse"
	}
	if errors.Is(err, ErrAuthFailure) {
		return "auth"
	}
	return "other"
}
