package ats

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
	"unicode/utf8"
)

// maxErrorBody caps how much of a failed response is kept in a StatusError.
const maxErrorBody = 512

// StatusError is a non-2xx answer from a feed.
type StatusError struct {
	URL  string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("feed %s answered %d: %s", e.URL, e.Code, e.Body)
}

// ParseError is a body that is not the JSON shape the provider serves.
type ParseError struct {
	Provider Provider
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s feed: %v", e.Provider, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// TimeoutError is a fetch that did not finish within the adapter's ceiling.
type TimeoutError struct {
	URL   string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("feed %s timed out after %s", e.URL, e.After)
}

// TooLargeError is a feed body over the size the adapter will decode.
type TooLargeError struct {
	URL   string
	Limit int
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("feed %s exceeds %d bytes", e.URL, e.Limit)
}

// ErrorKind classifies fetch failures for callers deciding between retrying,
// giving up on a board, or alerting.
type ErrorKind string

const (
	KindNone      ErrorKind = ""
	KindStatus    ErrorKind = "status"
	KindParse     ErrorKind = "parse"
	KindTimeout   ErrorKind = "timeout"
	KindTooLarge  ErrorKind = "too_large"
	KindTransport ErrorKind = "transport"
)

func Kind(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	var statusErr *StatusError
	var parseErr *ParseError
	var timeoutErr *TimeoutError
	var tooLargeErr *TooLargeError
	switch {
	case errors.As(err, &statusErr):
		return KindStatus
	case errors.As(err, &parseErr):
		return KindParse
	case errors.As(err, &timeoutErr):
		return KindTimeout
	case errors.As(err, &tooLargeErr):
		return KindTooLarge
	default:
		return KindTransport
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
