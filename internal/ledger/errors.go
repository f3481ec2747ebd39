package ledger

import (
	"errors"
	"fmt"
)

// RuleCode categorizes ledger rule violations.
type RuleCode string

const (
	// CodeAccountFrozen indicates the account completed a chargeback and
	// rejects all further events.
	CodeAccountFrozen RuleCode = "ACCOUNT_FROZEN"

	// CodeDuplicateTransaction indicates a deposit or withdrawal reusing a
	// transaction id already bound to this client.
	CodeDuplicateTransaction RuleCode = "DUPLICATE_TRANSACTION"

	// CodeInsufficientFunds indicates a withdrawal or dispute exceeding the
	// client's available funds.
	CodeInsufficientFunds RuleCode = "INSUFFICIENT_FUNDS"

	// CodeTransactionNotFound indicates a dispute, resolve or chargeback
	// referencing a transaction that is absent — or owned by another
	// client, which is deliberately indistinguishable.
	CodeTransactionNotFound RuleCode = "TRANSACTION_NOT_FOUND"

	// CodeTransactionNotDisputed indicates a resolve or chargeback on a
	// transaction not currently under dispute.
	CodeTransactionNotDisputed RuleCode = "TRANSACTION_NOT_DISPUTED"

	// CodeTransactionAlreadyDisputed indicates a dispute on a transaction
	// already under dispute.
	CodeTransactionAlreadyDisputed RuleCode = "TRANSACTION_ALREADY_DISPUTED"

	// CodeTransactionCannotBeDisputed indicates a dispute against a
	// withdrawal. Withdrawals are terminal and never disputable.
	CodeTransactionCannotBeDisputed RuleCode = "TRANSACTION_CANNOT_BE_DISPUTED"
)

// RuleError reports a ledger rule violation for one event.
//
// Rule errors are recoverable at event granularity: the event has zero
// effect on balances and store state, and processing of subsequent events
// (including for the same client) continues.
type RuleError struct {
	Code    RuleCode
	Client  uint16
	Tx      uint32
	Message string
}

// Error implements the error interface.
func (e *RuleError) Error() string {
	return fmt.Sprintf("%s: %s (client=%d, tx=%d)", e.Code, e.Message, e.Client, e.Tx)
}

// RuleCodeOf extracts the rule code from an error, unwrapping as needed.
// Returns the empty code if err is not a RuleError.
func RuleCodeOf(err error) RuleCode {
	var re *RuleError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// IsFrozen returns true if the error reports a frozen account.
func IsFrozen(err error) bool {
	return RuleCodeOf(err) == CodeAccountFrozen
}

func ruleErr(code RuleCode, client uint16, tx uint32, format string, args ...any) *RuleError {
	return &RuleError{
		Code:    code,
		Client:  client,
		Tx:      tx,
		Message: fmt.Sprintf(format, args...),
	}
}
