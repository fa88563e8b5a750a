// Package fault holds the error kinds shared by every heist process.
//
// Each kind maps to one protocol error code so it survives a remote call:
// a violation raised inside the drop-off service comes back to the master
// as a *ViolationError, a parked caller released by shutdown sees
// ErrShutdown, and so on.
package fault

import (
	"errors"
	"fmt"

	"museumheist.ai/internal/protocol"
)

var (
	// ErrShutdown is returned by every service call made during or after
	// Shutdown, including calls that were parked when it happened.
	ErrShutdown = errors.New("service shut down")

	ErrNotBound     = errors.New("name not bound")
	ErrAlreadyBound = errors.New("name already bound")
)

// ConfigError reports a malformed startup argument or tuning value.
type ConfigError struct {
	Field   string
	Problem string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Problem)
}

// Configf builds a *ConfigError.
func Configf(field, format string, args ...any) error {
	return &ConfigError{Field: field, Problem: fmt.Sprintf(format, args...)}
}

// ConnectivityError reports that a peer (or the registry) could not be
// reached. Callers may retry; the peer's state was not touched.
type ConnectivityError struct {
	Addr string
	Err  error
}

func (e *ConnectivityError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("unreachable: %s", e.Addr)
	}
	return fmt.Sprintf("unreachable: %s: %v", e.Addr, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// Unreachable wraps err as a *ConnectivityError for addr.
func Unreachable(addr string, err error) error {
	return &ConnectivityError{Addr: addr, Err: err}
}

// IsConnectivity reports whether err is (or wraps) a *ConnectivityError.
func IsConnectivity(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}

// ViolationError reports a broken coordination invariant. It is never
// transient: the caller should abort.
type ViolationError struct {
	Op     string
	Detail string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("protocol violation in %s: %s", e.Op, e.Detail)
}

// Violation builds a *ViolationError.
func Violation(op, format string, args ...any) error {
	return &ViolationError{Op: op, Detail: fmt.Sprintf(format, args...)}
}

// IsViolation reports whether err is (or wraps) a *ViolationError.
func IsViolation(err error) bool {
	var ve *ViolationError
	return errors.As(err, &ve)
}

// RemoteError carries a code the client does not map to a local kind.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// Code maps err to a protocol error code.
func Code(err error) string {
	var (
		ce *ConfigError
		ve *ViolationError
		re *RemoteError
		ne *ConnectivityError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrShutdown):
		return protocol.ErrShutdown
	case errors.Is(err, ErrNotBound):
		return protocol.ErrNotBound
	case errors.Is(err, ErrAlreadyBound):
		return protocol.ErrAlreadyBound
	case errors.As(err, &ve):
		return protocol.ErrViolation
	case errors.As(err, &ce):
		return protocol.ErrBadRequest
	case errors.As(err, &ne):
		return protocol.ErrUnreachable
	case errors.As(err, &re) && protocol.IsKnownCode(re.Code):
		return re.Code
	default:
		return protocol.ErrInternal
	}
}

// FromCode is the inverse of Code on the receiving side of a call.
func FromCode(code, message string) error {
	switch code {
	case "":
		return nil
	case protocol.ErrShutdown:
		return ErrShutdown
	case protocol.ErrNotBound:
		return fmt.Errorf("%w: %s", ErrNotBound, message)
	case protocol.ErrAlreadyBound:
		return fmt.Errorf("%w: %s", ErrAlreadyBound, message)
	case protocol.ErrViolation:
		return &ViolationError{Op: "remote", Detail: message}
	case protocol.ErrBadRequest:
		return &ConfigError{Field: "request", Problem: message}
	case protocol.ErrUnreachable:
		return &ConnectivityError{Addr: "remote peer", Err: errors.New(message)}
	default:
		return &RemoteError{Code: code, Message: message}
	}
}
