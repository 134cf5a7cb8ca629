package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// Transient marks an error from an outbound call as safe to retry: a 5xx
// from the search API, a flaky delivery-platform CDN, a dropped LLM
// connection. The status code is kept for call sites that branch on it.
type Transient struct {
	Err    error
	Status int
}

func (t *Transient) Error() string { return t.Err.Error() }

func (t *Transient) Unwrap() error { return t.Err }

// MarkTransient wraps err as retryable, with the HTTP status when one exists
// (0 otherwise).
func MarkTransient(err error, status int) *Transient {
	return &Transient{Err: err, Status: status}
}

// connectionErrnos are the socket-level failures that a re-attempt can
// plausibly get past.
var connectionErrnos = []error{
	syscall.ECONNRESET,
	syscall.ECONNREFUSED,
	syscall.ECONNABORTED,
	syscall.EPIPE,
}

// wrappedTransportHints catch transport failures that reach us only as
// message text, wrapped by an HTTP client.
var wrappedTransportHints = []string{
	"connection reset by peer",
	"tls handshake timeout",
	"i/o timeout",
	"no such host",
	"temporary failure in name resolution",
}

// IsTransient reports whether err is worth retrying: explicitly marked
// Transient, a network timeout, a connection-level errno, or a wrapped
// transport failure recognizable only by its text.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var t *Transient
	if errors.As(err, &t) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	for _, errno := range connectionErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, hint := range wrappedTransportHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}

	return false
}

// RetryableStatus reports whether an HTTP status is a transient server-side
// condition. 429 is included for completeness, though the search path
// handles it by credential rotation rather than retry.
func RetryableStatus(status int) bool {
	switch status {
	case 408, 429, 500, 502, 503, 504:
		return true
	}
	return false
}
