// =============================================================================
// DISPATCH ERROR TAXONOMY
// =============================================================================
//
// WHAT: Tagged failure kinds for everything that can go wrong between the
// dispatcher and a backend.
//
// KINDS:
//   Unreachable     - network-level failure, no protocol exchange happened
//   ProtocolFailure - reachable server returned non-200 or timed out mid-request
//   MalformedOutput - response arrived but its payload does not parse
//   Outage          - no active server exists at all
//
// Unreachable, ProtocolFailure and MalformedOutput are recorded against the
// specific server and absorbed by retry/failover; only Outage (or an
// exhausted retry budget) surfaces to the caller of Dispatch.
//
// =============================================================================

package cluster

import (
	"errors"
	"fmt"
)

// FailureKind classifies a dispatch or probe failure.
type FailureKind string

const (
	// FailureUnreachable means the host could not be reached at all.
	FailureUnreachable FailureKind = "unreachable"

	// FailureProtocol means the server was reachable but the request
	// failed: non-success status, transport error, or timeout.
	FailureProtocol FailureKind = "protocol_failure"

	// FailureMalformedOutput means a response arrived but its body did
	// not match the expected shape.
	FailureMalformedOutput FailureKind = "malformed_output"

	// FailureOutage means no active server was available.
	FailureOutage FailureKind = "outage"
)

// ErrNoActiveServers is returned when the pool has no active server to try.
var ErrNoActiveServers = errors.New("no active servers available")

// ErrRetriesExhausted is returned when every attempt in the retry budget
// failed against some server.
var ErrRetriesExhausted = errors.New("all retry attempts failed")

// DispatchError carries the failure kind, the server it happened on (empty
// for outages), and the underlying cause.
type DispatchError struct {
	Kind   FailureKind
	Server string
	Err    error
}

// Error implements the error interface.
func (e *DispatchError) Error() string {
	if e.Server == "" {
		return fmt.Sprintf("dispatch failed (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("dispatch failed on %s (%s): %v", e.Server, e.Kind, e.Err)
}

// Unwrap exposes the underlying cause to errors.Is / errors.As.
func (e *DispatchError) Unwrap() error {
	return e.Err
}

// newDispatchError tags err with a kind and the failing server's name.
func newDispatchError(kind FailureKind, server string, err error) *DispatchError {
	return &DispatchError{Kind: kind, Server: server, Err: err}
}
