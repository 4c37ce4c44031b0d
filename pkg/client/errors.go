package client

import (
	"errors"
	"fmt"
)

// ConfigError represents client configuration rejected at construction.
// No request has been sent when a ConfigError is returned.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

// TransportError represents a network-level failure while sending the
// initial request or a deferred-result poll: DNS, dial, TLS, timeouts,
// or a response body that could not be read. Transport failures are
// never retried; a failed poll abandons the resolution.
type TransportError struct {
	// Op names the failed call, e.g. "GET circuit_search".
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DeferredTimeoutError represents a deferred result that stayed pending
// through the whole polling budget. The server may still complete the
// operation; Token can be redeemed manually against the
// get_deferred_results endpoint while the server retains the result.
type DeferredTimeoutError struct {
	Token    string
	Attempts int
}

func (e *DeferredTimeoutError) Error() string {
	return fmt.Sprintf("deferred result still pending after %d polls", e.Attempts)
}

// IsConfigError returns true if the error reports invalid configuration.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsTransportError returns true if the error is a network-level failure.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsDeferredTimeout returns true if the error reports an exhausted
// deferred-result polling budget.
func IsDeferredTimeout(err error) bool {
	var de *DeferredTimeoutError
	return errors.As(err, &de)
}
