package probe

import (
	"errors"
	"fmt"
)

// ResolutionError is returned when a host name cannot be resolved.
type ResolutionError struct {
	Host  string
	Class string // NXDOMAIN | SERVFAIL_or_TIMEOUT | INVALID_NAME | NO_ADDRESS
	Err   error
}

func (e *ResolutionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("Failed to resolve IP for %s: %s", e.Host, e.Class)
	}
	return fmt.Sprintf("Failed to resolve IP for %s: %v", e.Host, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// ConnectError covers refused, unreachable and timed out TCP dials.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("Failed to connect to %s from this machine. Error: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// TimeoutError is the ConnectError sub-case for a dial that hit its deadline.
// errors.As(err, new(*ConnectError)) matches it as well.
type TimeoutError struct {
	ConnectError
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Timed out connecting to %s from this machine. Error: %v", e.Addr, e.Err)
}

func (e *TimeoutError) Timeout() bool { return true }

func (e *TimeoutError) As(target any) bool {
	if ce, ok := target.(**ConnectError); ok {
		*ce = &e.ConnectError
		return true
	}
	return false
}

// CertPathError names the root certificate bundle that is missing.
type CertPathError struct {
	Path string
	Err  error
}

func (e *CertPathError) Error() string {
	return "Root certificate path does not exist: " + e.Path
}

func (e *CertPathError) Unwrap() error { return e.Err }

// HandshakeError wraps any failure while opening the session, negotiating
// TLS, authenticating or running the diagnostic query.
type HandshakeError struct {
	Err     error
	Timeout bool
}

func (e *HandshakeError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("Connection failed (timeout): %v", e.Err)
	}
	return fmt.Sprintf("Connection failed: %v", e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
