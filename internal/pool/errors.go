package pool

import "errors"

var (
	// ErrAcquireTimeout is returned when no connection becomes available
	// within the configured acquire timeout.
	ErrAcquireTimeout = errors.New("connection acquire timeout")

	// ErrPoolClosed is returned for operations on a closed pool.
	ErrPoolClosed = errors.New("pool is closed")

	// ErrSessionClosed is returned for statements on a released session.
	ErrSessionClosed = errors.New("session is closed")

	// ErrPermissionDenied is returned when a gated statement is rejected,
	// either by policy or because its shape could not be parsed.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrTransactionInProgress is returned by Begin when a transaction is
	// already open on the session.
	ErrTransactionInProgress = errors.New("transaction already in progress")

	// ErrNoActiveTransaction is returned by Commit and Rollback when no
	// transaction is open.
	ErrNoActiveTransaction = errors.New("no active transaction")
)
