// Package common holds types and error kinds shared across every boocoin
// package: the fixed-point Amount, hex helpers, and the error taxonomy used
// to distinguish invalid input from storage failure from peer flakiness.
package common

import "fmt"

// InvalidTransactionError reports why a transaction failed validation.
// Surfaced to an HTTP submitter as 400, or silently dropped during pruning.
type InvalidTransactionError struct {
	Reason string
}

func (e *InvalidTransactionError) Error() string {
	return fmt.Sprintf("invalid transaction: %s", e.Reason)
}

// InvalidBlockError reports why a block failed one of the nine block
// checks. Surfaced to an HTTP peer as 400; for a locally-assembled block it
// aborts mining.
type InvalidBlockError struct {
	Reason string
}

func (e *InvalidBlockError) Error() string {
	return fmt.Sprintf("invalid block: %s", e.Reason)
}

// UnknownParentError is raised when an inbound block's parent has not been
// committed locally. It is not a failure: the caller should launch a sync
// with the sender and respond 200.
type UnknownParentError struct {
	ParentID string
}

func (e *UnknownParentError) Error() string {
	return fmt.Sprintf("unknown parent block %s", e.ParentID)
}

// PeerUnavailableError wraps a network/timeout failure talking to one peer.
// Logged at warn; never fails the caller's local operation.
type PeerUnavailableError struct {
	Peer string
	Err  error
}

func (e *PeerUnavailableError) Error() string {
	return fmt.Sprintf("peer %s unavailable: %v", e.Peer, e.Err)
}

func (e *PeerUnavailableError) Unwrap() error { return e.Err }

// StorageError wraps a fatal failure of the persistence layer. Surfaced as
// HTTP 500 when encountered during a request.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ConfigurationError is fatal at startup: missing keys, malformed genesis.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

// InsufficientFundsError is raised by the ledger when a debit would take an
// account negative.
type InsufficientFundsError struct {
	Account string
	Balance Amount
	Needed  Amount
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("account %s has %s, needs %s", e.Account, e.Balance, e.Needed)
}
