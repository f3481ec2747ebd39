// Package event defines the validated payment event type and the single
// validation gate that produces it from untrusted input records.
//
// A Record is whatever the input layer managed to parse: its type string is
// unchecked and its amount may be missing. An Event can only be obtained
// through FromRecord, so downstream code (the ledger) never has to re-check
// shape invariants: a deposit or withdrawal Event always carries an amount,
// and the other three kinds never do.
package event

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Kind identifies the type of a payment event.
type Kind string

const (
	KindDeposit    Kind = "deposit"
	KindWithdrawal Kind = "withdrawal"
	KindDispute    Kind = "dispute"
	KindResolve    Kind = "resolve"
	KindChargeback Kind = "chargeback"
)

// Record is a raw, unvalidated payment entry as read from input.
//
// Type is matched case-sensitively against the five recognized literals.
// Amount is optional on the wire; whether it is required depends on Type.
type Record struct {
	Type   string
	Client uint16
	Tx     uint32
	Amount *decimal.Decimal
}

// Event is a validated payment event addressed to one client and one
// transaction id.
//
// Amount is meaningful only when Kind is KindDeposit or KindWithdrawal;
// for the three contest kinds it is always zero. Construct via FromRecord.
type Event struct {
	Client uint16
	Tx     uint32
	Kind   Kind
	Amount decimal.Decimal
}

// String renders the event for log lines and error context.
func (e Event) String() string {
	switch e.Kind {
	case KindDeposit, KindWithdrawal:
		return fmt.Sprintf("%s(%s) for client %d with transaction %d", e.Kind, e.Amount, e.Client, e.Tx)
	default:
		return fmt.Sprintf("%s for client %d with transaction %d", e.Kind, e.Client, e.Tx)
	}
}

// FromRecord validates a raw record and converts it into an Event.
//
// Validation rules:
//   - Type must be exactly one of the five recognized literals, otherwise
//     the record fails with CodeUnknownEventType.
//   - deposit and withdrawal require an amount (CodeMissingAmount) and the
//     amount must be strictly positive (CodeNonPositiveAmount).
//   - dispute, resolve and chargeback ignore any supplied amount; it is
//     discarded, not validated.
//
// FromRecord is a pure function of its input and is the only validation
// gate: a constructed Event is trusted by the ledger.
func FromRecord(r Record) (Event, error) {
	ev := Event{Client: r.Client, Tx: r.Tx}

	switch r.Type {
	case string(KindDeposit), string(KindWithdrawal):
		if r.Amount == nil {
			return Event{}, &ValidationError{
				Code:    CodeMissingAmount,
				Type:    r.Type,
				Message: fmt.Sprintf("%s requires an amount", r.Type),
			}
		}
		if !r.Amount.IsPositive() {
			return Event{}, &ValidationError{
				Code:    CodeNonPositiveAmount,
				Type:    r.Type,
				Message: fmt.Sprintf("%s amount must be positive, got %s", r.Type, r.Amount),
			}
		}
		ev.Kind = Kind(r.Type)
		ev.Amount = *r.Amount
	case string(KindDispute), string(KindResolve), string(KindChargeback):
		ev.Kind = Kind(r.Type)
	default:
		return Event{}, &ValidationError{
			Code:    CodeUnknownEventType,
			Type:    r.Type,
			Message: fmt.Sprintf("unknown event type %q", r.Type),
		}
	}

	return ev, nil
}
