package events

import (
	"math/big"
	"strconv"

	"github.com/Kleo-Protocol/kleo-contracts/core/types"
)

const (
	// TypeLoanRequested is emitted when a borrower opens a pending loan.
	TypeLoanRequested = "loan.requested"
	// TypeLoanRepaid is emitted when an active loan is repaid in full.
	TypeLoanRepaid = "loan.repaid"
	// TypeLoanDefaulted is emitted when an overdue loan is defaulted.
	TypeLoanDefaulted = "loan.defaulted"
)

// LoanRequested records a new pending loan. Amount is in the pool's storage
// unit, Term in milliseconds.
type LoanRequested struct {
	ID       uint64
	Borrower string
	Amount   *big.Int
	Term     uint64
}

// EventType satisfies the events.Event interface.
func (LoanRequested) EventType() string { return TypeLoanRequested }

// Event converts the payload into a wire-friendly representation.
func (e LoanRequested) Event() *types.Event {
	return &types.Event{Type: TypeLoanRequested, Attributes: map[string]string{
		"id":       strconv.FormatUint(e.ID, 10),
		"borrower": e.Borrower,
		"amount":   formatAmount(e.Amount),
		"term":     strconv.FormatUint(e.Term, 10),
	}}
}

// LoanRepaid records a completed repayment. Amount is the total repaid,
// principal plus interest.
type LoanRepaid struct {
	ID       uint64
	Borrower string
	Amount   *big.Int
}

// EventType satisfies the events.Event interface.
func (LoanRepaid) EventType() string { return TypeLoanRepaid }

// Event converts the payload into a wire-friendly representation.
func (e LoanRepaid) Event() *types.Event {
	return &types.Event{Type: TypeLoanRepaid, Attributes: map[string]string{
		"id":       strconv.FormatUint(e.ID, 10),
		"borrower": e.Borrower,
		"amount":   formatAmount(e.Amount),
	}}
}

// LoanDefaulted records a loan marked defaulted after its grace period.
type LoanDefaulted struct {
	ID       uint64
	Borrower string
	Amount   *big.Int
}

// EventType satisfies the events.Event interface.
func (LoanDefaulted) EventType() string { return TypeLoanDefaulted }

// Event converts the payload into a wire-friendly representation.
func (e LoanDefaulted) Event() *types.Event {
	return &types.Event{Type: TypeLoanDefaulted, Attributes: map[string]string{
		"id":       strconv.FormatUint(e.ID, 10),
		"borrower": e.Borrower,
		"amount":   formatAmount(e.Amount),
	}}
}
