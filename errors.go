package caresync

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrNotFound is returned by Store implementations when a key is absent.
var ErrNotFound = errors.New("not found")

// AuthError indicates the session is invalid: the access token was rejected
// and could not be refreshed. Stored credentials are wiped before it is
// returned, and the session-invalidated hook fires.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	if e.Reason == "" {
		return "not authenticated"
	}
	return "not authenticated: " + e.Reason
}

// NetworkError wraps a transport-level failure, as opposed to an HTTP error
// response. Call sites that opted into offline queueing never see it; the
// request is queued instead.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return "network error: " + e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPError is a non-2xx response. Detail carries the server-supplied message
// when the body had one.
type HTTPError struct {
	Status int
	Detail string
}

func (e *HTTPError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("HTTP %d", e.Status)
}

// OfflineUnsupportedError is returned when a write is attempted offline with a
// method the mutation queue cannot represent.
type OfflineUnsupportedError struct {
	Method string
}

func (e *OfflineUnsupportedError) Error() string {
	return "cannot perform " + e.Method + " operation offline"
}

// CacheMissError is returned for an offline read with no usable cached entry.
type CacheMissError struct {
	Key string
}

func (e *CacheMissError) Error() string {
	return "no cached data available offline for " + e.Key
}

// IsNetworkError reports whether err is a transport-level failure eligible for
// the offline fallback path.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return true
	}
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return true
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host")
}
