// Package sync implements the offline-first synchronization engine:
// the dirty-state tracker, the dependency-ordered push engine, the
// snapshot-merge pull engine, the orchestrating Service state
// machine, the document blob controller, and the trigger policy that
// decides when reconciliation runs.
package sync

import (
	"errors"
	"net"
	"syscall"

	"github.com/lawdeskhq/lawdesk/internal/remote"
)

// Status is the process-wide sync state driving UI affordances.
type Status string

const (
	// StatusLoading is the initial state while the local cache hydrates.
	StatusLoading Status = "loading"
	// StatusSyncing means a push+pull cycle or a pull-only refresh is
	// in flight.
	StatusSyncing Status = "syncing"
	// StatusSynced means the last cycle completed and no mutations are
	// pending.
	StatusSynced Status = "synced"
	// StatusError means the last cycle failed; LastSyncError carries
	// the operator-facing message.
	StatusError Status = "error"
	// StatusOffline means no connectivity; the engine serves the local
	// cache and queues mutations.
	StatusOffline Status = "offline"
	// StatusUnconfigured means the backend endpoint is missing,
	// unreachable, or rejecting credentials.
	StatusUnconfigured Status = "unconfigured"
	// StatusUninitialized means the backend is reachable but its schema
	// is not provisioned; push is never attempted in this state.
	StatusUninitialized Status = "uninitialized"
)

// Sentinel errors returned by Service entry points.
var (
	// ErrSyncInFlight means another sync cycle holds the execution slot.
	ErrSyncInFlight = errors.New("sync: cycle already in flight")
	// ErrOffline means connectivity is down; the cycle was not started.
	ErrOffline = errors.New("sync: offline")
	// ErrUnconfigured means no backend endpoint or key is configured.
	ErrUnconfigured = errors.New("sync: remote not configured")
	// ErrRemoteUninitialized means the backend schema probe failed.
	ErrRemoteUninitialized = errors.New("sync: remote schema not initialized")
	// ErrBlobUnavailable means a document's content is neither cached
	// nor retrievable right now.
	ErrBlobUnavailable = errors.New("sync: document content unavailable")
)

// statusForError maps a push/pull/probe failure to the status the
// state machine lands in. Schema and configuration failures get
// their distinct statuses; everything else is a plain error.
func statusForError(err error) Status {
	switch {
	case errors.Is(err, remote.ErrTableMissing):
		return StatusUninitialized
	case errors.Is(err, remote.ErrUnauthorized), errors.Is(err, remote.ErrForbidden):
		return StatusUnconfigured
	case isEndpointUnreachable(err):
		return StatusUnconfigured
	default:
		return StatusError
	}
}

// isEndpointUnreachable distinguishes a misconfigured or dead
// endpoint (DNS failure, connection refused) from an ordinary
// transient network failure such as a timeout mid-request. The
// former is an operator problem; the latter is left for the next
// trigger.
func isEndpointUnreachable(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	return errors.Is(err, syscall.ECONNREFUSED)
}
