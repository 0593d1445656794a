package faults

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"
)

// Category says whether a failure is worth another attempt.
type Category int

const (
	Retryable Category = iota
	NonRetryable
)

func (c Category) String() string {
	if c == Retryable {
		return "retryable"
	}
	return "non-retryable"
}

// Suggested delays before the next attempt. Rate-limited upstreams get a
// full minute; refused connections get a longer grace than plain timeouts
// because the peer is likely restarting.
const (
	DefaultRetryDelay = 5 * time.Second
	ConnRefusedDelay  = 10 * time.Second
	RateLimitDelay    = 60 * time.Second
)

// Decision is the classifier verdict for a single failure.
type Decision struct {
	Category Category
	Reason   string
	Delay    time.Duration
}

// Codes that indicate a broken precondition rather than a transient fault.
var nonRetryableCodes = map[string]struct{}{
	"ENOENT":    {},
	"EACCES":    {},
	"EPERM":     {},
	"ENOTFOUND": {},
	"EISDIR":    {},
	"ENOTDIR":   {},
}

// Codes that indicate transient I/O trouble, with their suggested delays.
var retryableCodes = map[string]time.Duration{
	"ETIMEDOUT":    DefaultRetryDelay,
	"ECONNRESET":   DefaultRetryDelay,
	"ECONNREFUSED": ConnRefusedDelay,
	"EHOSTUNREACH": DefaultRetryDelay,
	"ENETUNREACH":  DefaultRetryDelay,
	"EAGAIN":       DefaultRetryDelay,
	"EBUSY":        DefaultRetryDelay,
}

var transientPatterns = []string{"timeout", "network", "connection", "temporary"}

// Classify maps a failure to a retry decision. It is a pure function of the
// error chain: structured codes take precedence, then HTTP-style statuses,
// then message heuristics, and finally a conservative retryable default.
func Classify(err error) Decision {
	if err == nil {
		return Decision{Category: NonRetryable, Reason: "no error"}
	}

	// An explicitly attached decision wins over derivation. This is how
	// Permanent survives re-wrapping.
	for c := err; c != nil; c = errors.Unwrap(c) {
		if se, ok := c.(*Error); ok && se.Decision.Reason != "" {
			return se.Decision
		}
	}

	if code := CodeOf(err); code != "" {
		if _, ok := nonRetryableCodes[code]; ok {
			return Decision{Category: NonRetryable, Reason: code}
		}
		if delay, ok := retryableCodes[code]; ok {
			return Decision{Category: Retryable, Reason: code, Delay: delay}
		}
	}

	if status := StatusOf(err); status != 0 {
		switch {
		case status == http.StatusTooManyRequests:
			return Decision{Category: Retryable, Reason: "HTTP 429", Delay: RateLimitDelay}
		case status == http.StatusRequestTimeout:
			return Decision{Category: Retryable, Reason: "HTTP 408", Delay: DefaultRetryDelay}
		case status >= 400 && status < 500:
			return Decision{Category: NonRetryable, Reason: fmt.Sprintf("HTTP %d", status)}
		case status >= 500:
			return Decision{Category: Retryable, Reason: fmt.Sprintf("HTTP %d", status), Delay: DefaultRetryDelay}
		}
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return Decision{Category: Retryable, Reason: "message contains " + strconvQuote(pattern), Delay: DefaultRetryDelay}
		}
	}

	return Decision{Category: Retryable, Reason: "unclassified", Delay: DefaultRetryDelay}
}

// IsRetryable reports whether err classifies as worth another attempt.
func IsRetryable(err error) bool {
	return Classify(err).Category == Retryable
}

// CodeOf extracts the structured failure code from the error chain. The
// search order mirrors classification precedence: explicit codes first,
// then OS errno names, then well-known stdlib sentinels.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}

	var coded interface{ FaultCode() string }
	if errors.As(err, &coded) {
		if code := coded.FaultCode(); code != "" {
			return code
		}
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		if name := errnoName(errno); name != "" {
			return name
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsNotFound {
			return "ENOTFOUND"
		}
		if dnsErr.IsTimeout {
			return "ETIMEDOUT"
		}
	}

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "ENOENT"
	case errors.Is(err, fs.ErrPermission):
		return "EACCES"
	case errors.Is(err, context.DeadlineExceeded):
		return "ETIMEDOUT"
	}
	return ""
}

// StatusOf extracts an HTTP-style status from the error chain, or 0.
func StatusOf(err error) int {
	if err == nil {
		return 0
	}
	var withStatus interface{ HTTPStatus() int }
	if errors.As(err, &withStatus) {
		return withStatus.HTTPStatus()
	}
	var withStatusCode interface{ StatusCode() int }
	if errors.As(err, &withStatusCode) {
		return withStatusCode.StatusCode()
	}
	return 0
}

func errnoName(errno syscall.Errno) string {
	switch errno {
	case syscall.ETIMEDOUT:
		return "ETIMEDOUT"
	case syscall.ECONNRESET:
		return "ECONNRESET"
	case syscall.ECONNREFUSED:
		return "ECONNREFUSED"
	case syscall.EHOSTUNREACH:
		return "EHOSTUNREACH"
	case syscall.ENETUNREACH:
		return "ENETUNREACH"
	case syscall.EAGAIN:
		return "EAGAIN"
	case syscall.EBUSY:
		return "EBUSY"
	case syscall.ENOENT:
		return "ENOENT"
	case syscall.EACCES:
		return "EACCES"
	case syscall.EPERM:
		return "EPERM"
	case syscall.EISDIR:
		return "EISDIR"
	case syscall.ENOTDIR:
		return "ENOTDIR"
	default:
		return ""
	}
}

func strconvQuote(s string) string {
	return `"` + s + `"`
}
