// Package store provides the shared transaction ledger consulted by every
// account.
//
// The store is the single source of truth for transaction ids across all
// clients: it records which client created each id and what state the
// transaction is in. Accounts hold a TxStore handle injected at construction
// and never observe transactions owned by other clients — a foreign id
// behaves exactly like an absent one.
//
// Two backends satisfy the TxStore contract: MemoryStore (mutex-guarded map,
// the reference backend) and SQLiteStore (run-scoped SQLite database).
package store

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Status identifies the lifecycle state of a stored transaction.
type Status string

const (
	// StatusDeposit marks a deposit whose funds are available. Disputable.
	StatusDeposit Status = "deposit"

	// StatusDisputed marks a deposit currently under dispute; its funds are
	// held. A resolve returns it to StatusDeposit.
	StatusDisputed Status = "disputed"

	// StatusWithdrawal marks a withdrawal. Terminal: a withdrawal can never
	// be disputed, and its id can never be reused.
	StatusWithdrawal Status = "withdrawal"
)

// TxState is the authoritative record of a single transaction.
type TxState struct {
	Status Status
	Amount decimal.Decimal
}

// Sentinel errors returned by TxStore mutations.
var (
	// ErrDuplicateTransaction is returned by Put when the transaction id is
	// already bound to the same client.
	ErrDuplicateTransaction = errors.New("transaction id already exists")

	// ErrOwnershipConflict is returned by Put and Upsert when the
	// transaction id is bound to a different client. The store performs no
	// mutation in that case.
	ErrOwnershipConflict = errors.New("transaction id owned by another client")
)

// TxStore is the capability interface through which accounts read and write
// transaction state.
//
// All three methods must be linearizable per transaction id: the
// check-ownership-then-write sequence inside Put and Upsert is atomic with
// respect to other clients attempting to claim the same id. This is what
// makes the store safe to share between concurrently processed accounts.
type TxStore interface {
	// Get returns the stored state for tx only if the transaction exists
	// and is owned by client. A transaction owned by another client is
	// reported as absent, indistinguishable from one that never existed.
	// The error is reserved for backend faults (e.g. database I/O); absence
	// is not an error.
	Get(client uint16, tx uint32) (TxState, bool, error)

	// Put creates the transaction record, permanently binding tx to client.
	// Fails with ErrDuplicateTransaction if the id already exists under the
	// same client, or ErrOwnershipConflict if it exists under another.
	// No mutation occurs on failure.
	Put(client uint16, tx uint32, state TxState) error

	// Upsert creates the record or overwrites the state of an existing
	// record owned by the same client (used for the deposit/dispute
	// transitions). Fails with ErrOwnershipConflict if the id exists under
	// a different client; no mutation occurs in that case.
	Upsert(client uint16, tx uint32, state TxState) error
}
