// Package ledger implements the per-client account state machine and the
// processor that drives it over a stream of payment events.
//
// An Account owns its balances exclusively; the only shared resource is the
// injected store.TxStore, which arbitrates transaction-id ownership across
// all accounts. Apply is a strict check-then-act state machine: every guard
// for an event is evaluated before any balance or store mutation, so a
// failing event has zero effect.
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/roach88/payflow/internal/event"
	"github.com/roach88/payflow/internal/store"
)

// Account tracks one client's balances and frozen flag.
//
// held = total − available is derived, never stored. Invariants after every
// successful Apply: available ≤ total, and locked is monotonic — once a
// chargeback freezes the account, every subsequent event fails with
// CodeAccountFrozen.
//
// An Account is not safe for concurrent use; events for one client must be
// applied in arrival order by a single goroutine. The store handle it holds
// may be shared with any number of other accounts.
type Account struct {
	id        uint16
	available decimal.Decimal
	total     decimal.Decimal
	locked    bool
	txs       store.TxStore
}

// NewAccount creates an account with zero balances backed by the given
// shared transaction store.
func NewAccount(id uint16, txs store.TxStore) *Account {
	return &Account{id: id, txs: txs}
}

// ID returns the client id.
func (a *Account) ID() uint16 { return a.id }

// Available returns the funds the client may withdraw immediately.
func (a *Account) Available() decimal.Decimal { return a.available }

// Held returns the funds currently under dispute.
func (a *Account) Held() decimal.Decimal { return a.total.Sub(a.available) }

// Total returns available plus held funds.
func (a *Account) Total() decimal.Decimal { return a.total }

// Locked returns whether the account is frozen.
func (a *Account) Locked() bool { return a.locked }

// Balance is a read-only snapshot of an account, shaped for output.
type Balance struct {
	Client    uint16
	Available decimal.Decimal
	Held      decimal.Decimal
	Total     decimal.Decimal
	Locked    bool
}

// Balance returns a snapshot of the account's current state.
func (a *Account) Balance() Balance {
	return Balance{
		Client:    a.id,
		Available: a.available,
		Held:      a.Held(),
		Total:     a.total,
		Locked:    a.locked,
	}
}

// Apply runs one event through the account state machine.
//
// On success the account's balances (and possibly the transaction store)
// are updated. On failure a *RuleError describes the violated rule and
// nothing is mutated. Events addressed to a different client are a caller
// bug and fail loudly.
func (a *Account) Apply(ev event.Event) error {
	if ev.Client != a.id {
		return fmt.Errorf("event for client %d applied to account %d", ev.Client, a.id)
	}
	if a.locked {
		return ruleErr(CodeAccountFrozen, a.id, ev.Tx, "account is frozen")
	}

	switch ev.Kind {
	case event.KindDeposit:
		return a.deposit(ev.Tx, ev.Amount)
	case event.KindWithdrawal:
		return a.withdraw(ev.Tx, ev.Amount)
	case event.KindDispute:
		return a.dispute(ev.Tx)
	case event.KindResolve:
		return a.resolve(ev.Tx)
	case event.KindChargeback:
		return a.chargeback(ev.Tx)
	default:
		return fmt.Errorf("unhandled event kind %q", ev.Kind)
	}
}

// deposit credits the amount if the transaction id is unclaimed. The store's
// Put performs the exists/ownership check atomically under its own lock, so
// a conflicting claim by another client cannot slip between check and bind.
func (a *Account) deposit(tx uint32, amount decimal.Decimal) error {
	err := a.txs.Put(a.id, tx, store.TxState{Status: store.StatusDeposit, Amount: amount})
	if err != nil {
		return a.mapPutError(err, tx)
	}
	a.available = a.available.Add(amount)
	a.total = a.total.Add(amount)
	return nil
}

// withdraw debits the amount if funds suffice and the transaction id is
// unclaimed. Withdrawals are recorded with a terminal state: the id can
// never be reused and any dispute against it fails.
func (a *Account) withdraw(tx uint32, amount decimal.Decimal) error {
	if a.available.LessThan(amount) {
		return ruleErr(CodeInsufficientFunds, a.id, tx,
			"insufficient funds for withdrawal of %s (available %s)", amount, a.available)
	}
	err := a.txs.Put(a.id, tx, store.TxState{Status: store.StatusWithdrawal, Amount: amount})
	if err != nil {
		return a.mapPutError(err, tx)
	}
	a.available = a.available.Sub(amount)
	a.total = a.total.Sub(amount)
	return nil
}

func (a *Account) dispute(tx uint32) error {
	state, ok, err := a.txs.Get(a.id, tx)
	if err != nil {
		return fmt.Errorf("reading transaction %d: %w", tx, err)
	}
	if !ok {
		return ruleErr(CodeTransactionNotFound, a.id, tx, "transaction does not exist")
	}

	switch state.Status {
	case store.StatusDeposit:
		if state.Amount.GreaterThan(a.available) {
			return ruleErr(CodeInsufficientFunds, a.id, tx,
				"not enough available funds to dispute %s", state.Amount)
		}
		if err := a.txs.Upsert(a.id, tx, store.TxState{Status: store.StatusDisputed, Amount: state.Amount}); err != nil {
			return fmt.Errorf("marking transaction %d disputed: %w", tx, err)
		}
		a.available = a.available.Sub(state.Amount)
		return nil
	case store.StatusDisputed:
		return ruleErr(CodeTransactionAlreadyDisputed, a.id, tx, "transaction already disputed")
	case store.StatusWithdrawal:
		return ruleErr(CodeTransactionCannotBeDisputed, a.id, tx, "cannot dispute a withdrawal")
	default:
		return fmt.Errorf("unhandled transaction status %q", state.Status)
	}
}

func (a *Account) resolve(tx uint32) error {
	state, ok, err := a.txs.Get(a.id, tx)
	if err != nil {
		return fmt.Errorf("reading transaction %d: %w", tx, err)
	}
	if !ok {
		return ruleErr(CodeTransactionNotFound, a.id, tx, "transaction does not exist")
	}
	if state.Status != store.StatusDisputed {
		return ruleErr(CodeTransactionNotDisputed, a.id, tx, "transaction is not disputed")
	}

	if err := a.txs.Upsert(a.id, tx, store.TxState{Status: store.StatusDeposit, Amount: state.Amount}); err != nil {
		return fmt.Errorf("resolving transaction %d: %w", tx, err)
	}
	a.available = a.available.Add(state.Amount)
	return nil
}

// chargeback removes the disputed amount from total and freezes the account.
// The stored state stays disputed: the id is inert from here on because the
// frozen account rejects everything.
func (a *Account) chargeback(tx uint32) error {
	state, ok, err := a.txs.Get(a.id, tx)
	if err != nil {
		return fmt.Errorf("reading transaction %d: %w", tx, err)
	}
	if !ok {
		return ruleErr(CodeTransactionNotFound, a.id, tx, "transaction does not exist")
	}
	if state.Status != store.StatusDisputed {
		return ruleErr(CodeTransactionNotDisputed, a.id, tx, "transaction is not disputed")
	}

	a.total = a.total.Sub(state.Amount)
	a.locked = true
	return nil
}

// mapPutError translates store Put failures into the caller-facing rule
// error. A transaction id owned by another client is indistinguishable from
// a duplicate claim: both mean this id is not available to this client.
func (a *Account) mapPutError(err error, tx uint32) error {
	if errors.Is(err, store.ErrDuplicateTransaction) || errors.Is(err, store.ErrOwnershipConflict) {
		return ruleErr(CodeDuplicateTransaction, a.id, tx, "cannot overwrite existing transaction")
	}
	return fmt.Errorf("storing transaction %d: %w", tx, err)
}
