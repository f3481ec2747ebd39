package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/payflow/internal/event"
	"github.com/roach88/payflow/internal/store"
)

// evFor builds a validated event through the real validation gate, matching
// how events reach accounts in production.
func evFor(t *testing.T, typ string, client uint16, tx uint32, amount string) event.Event {
	t.Helper()
	rec := event.Record{Type: typ, Client: client, Tx: tx}
	if amount != "" {
		a := decimal.RequireFromString(amount)
		rec.Amount = &a
	}
	ev, err := event.FromRecord(rec)
	require.NoError(t, err)
	return ev
}

func ev(t *testing.T, typ string, tx uint32, amount string) event.Event {
	return evFor(t, typ, 1337, tx, amount)
}

// assertBalances checks the account snapshot and the held >= 0 invariant.
func assertBalances(t *testing.T, a *Account, available, held, total string, locked bool) {
	t.Helper()
	assert.True(t, a.Available().Equal(decimal.RequireFromString(available)),
		"available = %s, want %s", a.Available(), available)
	assert.True(t, a.Held().Equal(decimal.RequireFromString(held)),
		"held = %s, want %s", a.Held(), held)
	assert.True(t, a.Total().Equal(decimal.RequireFromString(total)),
		"total = %s, want %s", a.Total(), total)
	assert.Equal(t, locked, a.Locked())
	assert.False(t, a.Held().IsNegative(), "held must never go negative")
}

func newAccount(t *testing.T) *Account {
	t.Helper()
	return NewAccount(1337, store.NewMemoryStore())
}

func TestDeposit(t *testing.T) {
	a := newAccount(t)

	require.NoError(t, a.Apply(ev(t, "deposit", 1, "1.0")))
	assertBalances(t, a, "1.0", "0", "1.0", false)

	require.NoError(t, a.Apply(ev(t, "deposit", 2, "10.0")))
	assertBalances(t, a, "11.0", "0", "11.0", false)
}

func TestDepositSameTx(t *testing.T) {
	a := newAccount(t)

	require.NoError(t, a.Apply(ev(t, "deposit", 1, "10.0")))

	err := a.Apply(ev(t, "deposit", 1, "5.0"))
	require.Error(t, err)
	assert.Equal(t, CodeDuplicateTransaction, RuleCodeOf(err))
	assertBalances(t, a, "10.0", "0", "10.0", false)
}

func TestDepositRejectionIdempotent(t *testing.T) {
	a := newAccount(t)

	deposit := ev(t, "deposit", 1, "1.0")
	require.NoError(t, a.Apply(deposit))

	// Replaying the id must fail every time, regardless of amount.
	for _, amount := range []string{"1.0", "5.0", "0.0001"} {
		err := a.Apply(ev(t, "deposit", 1, amount))
		require.Error(t, err, amount)
		assert.Equal(t, CodeDuplicateTransaction, RuleCodeOf(err), amount)
	}
	assertBalances(t, a, "1.0", "0", "1.0", false)
}

func TestDepositHijack(t *testing.T) {
	shared := store.NewMemoryStore()
	a := NewAccount(1337, shared)
	require.NoError(t, a.Apply(evFor(t, "deposit", 1337, 1, "10.0")))

	// Another client cannot claim the same transaction id.
	b := NewAccount(1234, shared)
	err := b.Apply(evFor(t, "deposit", 1234, 1, "10.0"))
	require.Error(t, err)
	assert.Equal(t, CodeDuplicateTransaction, RuleCodeOf(err))
	assertBalances(t, b, "0", "0", "0", false)
}

func TestDepositFrozen(t *testing.T) {
	a := newAccount(t)
	require.NoError(t, a.Apply(ev(t, "deposit", 1, "1.0")))
	require.NoError(t, a.Apply(ev(t, "dispute", 1, "")))
	require.NoError(t, a.Apply(ev(t, "chargeback", 1, "")))

	err := a.Apply(ev(t, "deposit", 2, "10.0"))
	require.Error(t, err)
	assert.True(t, IsFrozen(err))
}

func TestWithdrawal(t *testing.T) {
	a := newAccount(t)

	require.NoError(t, a.Apply(ev(t, "deposit", 1, "10.0")))
	require.NoError(t, a.Apply(ev(t, "withdrawal", 2, "9.5")))
	assertBalances(t, a, "0.5", "0", "0.5", false)

	require.NoError(t, a.Apply(ev(t, "withdrawal", 3, "0.5")))
	assertBalances(t, a, "0", "0", "0", false)
}

func TestWithdrawalSameTx(t *testing.T) {
	a := newAccount(t)

	require.NoError(t, a.Apply(ev(t, "deposit", 1, "10.0")))

	err := a.Apply(ev(t, "withdrawal", 1, "5.0"))
	require.Error(t, err)
	assert.Equal(t, CodeDuplicateTransaction, RuleCodeOf(err))
	assertBalances(t, a, "10.0", "0", "10.0", false)
}

func TestWithdrawalIDNotReusable(t *testing.T) {
	a := newAccount(t)

	require.NoError(t, a.Apply(ev(t, "deposit", 1, "10.0")))
	require.NoError(t, a.Apply(ev(t, "withdrawal", 2, "1.0")))

	// A withdrawal's id is recorded and blocks reuse.
	err := a.Apply(ev(t, "deposit", 2, "5.0"))
	require.Error(t, err)
	assert.Equal(t, CodeDuplicateTransaction, RuleCodeOf(err))
}

func TestWithdrawalUnownedTx(t *testing.T) {
	shared := store.NewMemoryStore()
	a := NewAccount(1337, shared)
	require.NoError(t, a.Apply(evFor(t, "deposit", 1337, 1, "10.0")))

	b := NewAccount(1234, shared)
	require.NoError(t, b.Apply(evFor(t, "deposit", 1234, 2, "10.0")))
	err := b.Apply(evFor(t, "withdrawal", 1234, 1, "10.0"))
	require.Error(t, err)
	assert.Equal(t, CodeDuplicateTransaction, RuleCodeOf(err))
	assertBalances(t, b, "10.0", "0", "10.0", false)
}

func TestWithdrawalInsufficient(t *testing.T) {
	a := newAccount(t)

	require.NoError(t, a.Apply(ev(t, "deposit", 1, "10.0")))

	err := a.Apply(ev(t, "withdrawal", 2, "11.0"))
	require.Error(t, err)
	assert.Equal(t, CodeInsufficientFunds, RuleCodeOf(err))
	assertBalances(t, a, "10.0", "0", "10.0", false)
}

func TestWithdrawalInsufficientHeld(t *testing.T) {
	a := newAccount(t)

	require.NoError(t, a.Apply(ev(t, "deposit", 1, "10.0")))
	require.NoError(t, a.Apply(ev(t, "dispute", 1, "")))

	// Held funds are not withdrawable.
	err := a.Apply(ev(t, "withdrawal", 2, "5.0"))
	require.Error(t, err)
	assert.Equal(t, CodeInsufficientFunds, RuleCodeOf(err))
}

func TestWithdrawalPartialHeld(t *testing.T) {
	a := newAccount(t)

	require.NoError(t, a.Apply(ev(t, "deposit", 1, "5.0")))
	require.NoError(t, a.Apply(ev(t, "deposit", 2, "6.0")))
	require.NoError(t, a.Apply(ev(t, "dispute", 1, "")))
	require.NoError(t, a.Apply(ev(t, "withdrawal", 3, "5.0")))
	assertBalances(t, a, "1.0", "5.0", "6.0", false)
}

func TestWithdrawalFrozen(t *testing.T) {
	a := newAccount(t)
	require.NoError(t, a.Apply(ev(t, "deposit", 1, "5.0")))
	require.NoError(t, a.Apply(ev(t, "deposit", 2, "6.0")))
	require.NoError(t, a.Apply(ev(t, "dispute", 1, "")))
	require.NoError(t, a.Apply(ev(t, "chargeback", 1, "")))

	err := a.Apply(ev(t, "withdrawal", 3, "1.0"))
	require.Error(t, err)
	assert.True(t, IsFrozen(err))
}

func TestDispute(t *testing.T) {
	a := newAccount(t)

	require.NoError(t, a.Apply(ev(t, "deposit", 1, "10.0")))
	require.NoError(t, a.Apply(ev(t, "deposit", 2, "5.0")))
	require.NoError(t, a.Apply(ev(t, "dispute", 1, "")))
	assertBalances(t, a, "5.0", "10.0", "15.0", false)
}

func TestDisputeUnknownTx(t *testing.T) {
	a := newAccount(t)

	err := a.Apply(ev(t, "dispute", 42, ""))
	require.Error(t, err)
	assert.Equal(t, CodeTransactionNotFound, RuleCodeOf(err))
}

func TestDoubleDispute(t *testing.T) {
	a := newAccount(t)

	require.NoError(t, a.Apply(ev(t, "deposit", 1, "10.0")))
	require.NoError(t, a.Apply(ev(t, "dispute", 1, "")))

	err := a.Apply(ev(t, "dispute", 1, ""))
	require.Error(t, err)
	assert.Equal(t, CodeTransactionAlreadyDisputed, RuleCodeOf(err))
	assertBalances(t, a, "0", "10.0", "10.0", false)
}

func TestDisputeWithdrawal(t *testing.T) {
	a := newAccount(t)

	require.NoError(t, a.Apply(ev(t, "deposit", 1, "10.0")))
	require.NoError(t, a.Apply(ev(t, "withdrawal", 2, "4.0")))

	err := a.Apply(ev(t, "dispute", 2, ""))
	require.Error(t, err)
	assert.Equal(t, CodeTransactionCannotBeDisputed, RuleCodeOf(err))
	assertBalances(t, a, "6.0", "0", "6.0", false)
}

func TestDisputeInsufficientAvailable(t *testing.T) {
	a := newAccount(t)

	// Deposit then withdraw most of it: the deposit can no longer be held
	// in full, so the dispute is rejected.
	require.NoError(t, a.Apply(ev(t, "deposit", 1, "10.0")))
	require.NoError(t, a.Apply(ev(t, "withdrawal", 2, "8.0")))

	err := a.Apply(ev(t, "dispute", 1, ""))
	require.Error(t, err)
	assert.Equal(t, CodeInsufficientFunds, RuleCodeOf(err))
	assertBalances(t, a, "2.0", "0", "2.0", false)
}

func TestDisputeUnownedTx(t *testing.T) {
	shared := store.NewMemoryStore()
	a := NewAccount(1337, shared)
	require.NoError(t, a.Apply(evFor(t, "deposit", 1337, 1, "10.0")))

	b := NewAccount(1234, shared)
	err := b.Apply(evFor(t, "dispute", 1234, 1, ""))
	require.Error(t, err)
	assert.Equal(t, CodeTransactionNotFound, RuleCodeOf(err))

	// Client A's balances are untouched.
	assertBalances(t, a, "10.0", "0", "10.0", false)
}

func TestDisputeFrozen(t *testing.T) {
	a := newAccount(t)
	require.NoError(t, a.Apply(ev(t, "deposit", 1, "5.0")))
	require.NoError(t, a.Apply(ev(t, "deposit", 2, "6.0")))
	require.NoError(t, a.Apply(ev(t, "dispute", 1, "")))
	require.NoError(t, a.Apply(ev(t, "chargeback", 1, "")))

	err := a.Apply(ev(t, "dispute", 2, ""))
	require.Error(t, err)
	assert.True(t, IsFrozen(err))
}

func TestResolve(t *testing.T) {
	a := newAccount(t)

	require.NoError(t, a.Apply(ev(t, "deposit", 1, "10.0")))
	require.NoError(t, a.Apply(ev(t, "dispute", 1, "")))
	require.NoError(t, a.Apply(ev(t, "resolve", 1, "")))
	assertBalances(t, a, "10.0", "0", "10.0", false)
}

func TestDoubleResolve(t *testing.T) {
	a := newAccount(t)

	require.NoError(t, a.Apply(ev(t, "deposit", 1, "10.0")))
	require.NoError(t, a.Apply(ev(t, "dispute", 1, "")))
	require.NoError(t, a.Apply(ev(t, "resolve", 1, "")))

	err := a.Apply(ev(t, "resolve", 1, ""))
	require.Error(t, err)
	assert.Equal(t, CodeTransactionNotDisputed, RuleCodeOf(err))
}

func TestResolveUndisputed(t *testing.T) {
	a := newAccount(t)

	require.NoError(t, a.Apply(ev(t, "deposit", 1, "10.0")))

	err := a.Apply(ev(t, "resolve", 1, ""))
	require.Error(t, err)
	assert.Equal(t, CodeTransactionNotDisputed, RuleCodeOf(err))
}

func TestResolveUnownedTx(t *testing.T) {
	shared := store.NewMemoryStore()
	a := NewAccount(1337, shared)
	require.NoError(t, a.Apply(evFor(t, "deposit", 1337, 1, "10.0")))
	require.NoError(t, a.Apply(evFor(t, "dispute", 1337, 1, "")))

	b := NewAccount(1234, shared)
	err := b.Apply(evFor(t, "resolve", 1234, 1, ""))
	require.Error(t, err)
	assert.Equal(t, CodeTransactionNotFound, RuleCodeOf(err))
}

func TestResolveFrozen(t *testing.T) {
	a := newAccount(t)
	require.NoError(t, a.Apply(ev(t, "deposit", 1, "5.0")))
	require.NoError(t, a.Apply(ev(t, "deposit", 2, "6.0")))
	require.NoError(t, a.Apply(ev(t, "dispute", 1, "")))
	require.NoError(t, a.Apply(ev(t, "chargeback", 1, "")))

	err := a.Apply(ev(t, "resolve", 1, ""))
	require.Error(t, err)
	assert.True(t, IsFrozen(err))
}

func TestChargeback(t *testing.T) {
	a := newAccount(t)

	require.NoError(t, a.Apply(ev(t, "deposit", 1, "10.0")))
	require.NoError(t, a.Apply(ev(t, "dispute", 1, "")))
	require.NoError(t, a.Apply(ev(t, "chargeback", 1, "")))
	assertBalances(t, a, "0", "0", "0", true)
}

func TestChargebackPartial(t *testing.T) {
	a := newAccount(t)

	require.NoError(t, a.Apply(ev(t, "deposit", 1, "5.0")))
	require.NoError(t, a.Apply(ev(t, "deposit", 2, "6.0")))
	require.NoError(t, a.Apply(ev(t, "dispute", 1, "")))
	assertBalances(t, a, "1.0", "5.0", "6.0", false)

	require.NoError(t, a.Apply(ev(t, "chargeback", 1, "")))
	assertBalances(t, a, "1.0", "0", "1.0", true)
}

func TestDoubleChargeback(t *testing.T) {
	a := newAccount(t)

	require.NoError(t, a.Apply(ev(t, "deposit", 1, "10.0")))
	require.NoError(t, a.Apply(ev(t, "dispute", 1, "")))
	require.NoError(t, a.Apply(ev(t, "chargeback", 1, "")))

	err := a.Apply(ev(t, "chargeback", 1, ""))
	require.Error(t, err)
	assert.True(t, IsFrozen(err))
}

func TestChargebackUndisputed(t *testing.T) {
	a := newAccount(t)

	require.NoError(t, a.Apply(ev(t, "deposit", 1, "10.0")))

	err := a.Apply(ev(t, "chargeback", 1, ""))
	require.Error(t, err)
	assert.Equal(t, CodeTransactionNotDisputed, RuleCodeOf(err))
}

func TestChargebackUnownedTx(t *testing.T) {
	shared := store.NewMemoryStore()
	a := NewAccount(1337, shared)
	require.NoError(t, a.Apply(evFor(t, "deposit", 1337, 1, "10.0")))
	require.NoError(t, a.Apply(evFor(t, "dispute", 1337, 1, "")))

	b := NewAccount(1234, shared)
	err := b.Apply(evFor(t, "chargeback", 1234, 1, ""))
	require.Error(t, err)
	assert.Equal(t, CodeTransactionNotFound, RuleCodeOf(err))
}

func TestFreezeIsAbsorbing(t *testing.T) {
	a := newAccount(t)
	require.NoError(t, a.Apply(ev(t, "deposit", 1, "10.0")))
	require.NoError(t, a.Apply(ev(t, "dispute", 1, "")))
	require.NoError(t, a.Apply(ev(t, "chargeback", 1, "")))

	// Every kind fails once frozen, including otherwise-valid ones.
	events := []event.Event{
		ev(t, "deposit", 2, "1.0"),
		ev(t, "withdrawal", 3, "1.0"),
		ev(t, "dispute", 1, ""),
		ev(t, "resolve", 1, ""),
		ev(t, "chargeback", 1, ""),
	}
	for _, e := range events {
		err := a.Apply(e)
		require.Error(t, err, e.Kind)
		assert.True(t, IsFrozen(err), e.Kind)
	}
	assertBalances(t, a, "0", "0", "0", true)
}

func TestApplyWrongClient(t *testing.T) {
	a := newAccount(t)
	err := a.Apply(evFor(t, "deposit", 42, 1, "1.0"))
	require.Error(t, err)
	assert.Equal(t, RuleCode(""), RuleCodeOf(err))
}

func TestAccountWithSQLiteStore(t *testing.T) {
	// The account only depends on the TxStore capability; the SQLite
	// backend must produce identical rule behavior.
	s, err := store.OpenSQLite(t.TempDir() + "/ledger.db")
	require.NoError(t, err)
	defer s.Close()

	a := NewAccount(1337, s)
	require.NoError(t, a.Apply(ev(t, "deposit", 1, "10.0")))
	require.NoError(t, a.Apply(ev(t, "dispute", 1, "")))
	require.NoError(t, a.Apply(ev(t, "resolve", 1, "")))
	assertBalances(t, a, "10.0", "0", "10.0", false)

	dup := a.Apply(ev(t, "deposit", 1, "5.0"))
	require.Error(t, dup)
	assert.Equal(t, CodeDuplicateTransaction, RuleCodeOf(dup))
}
