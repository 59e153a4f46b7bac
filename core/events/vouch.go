package events

import (
	"math/big"
	"strconv"

	"github.com/Kleo-Protocol/kleo-contracts/core/types"
)

const (
	// TypeVouchCreated is emitted when a voucher stakes stars and capital
	// against a borrower's loan.
	TypeVouchCreated = "vouch.created"
	// TypeVouchResolved is emitted once per relationship when its loan
	// reaches a terminal state.
	TypeVouchResolved = "vouch.resolved"
)

// VouchCreated records a newly accepted vouch. Capital is in the pool's
// storage unit.
type VouchCreated struct {
	LoanID   uint64
	Voucher  string
	Borrower string
	Stars    uint32
	Capital  *big.Int
}

// EventType satisfies the events.Event interface.
func (VouchCreated) EventType() string { return TypeVouchCreated }

// Event converts the payload into a wire-friendly representation.
func (e VouchCreated) Event() *types.Event {
	return &types.Event{Type: TypeVouchCreated, Attributes: map[string]string{
		"loanId":   strconv.FormatUint(e.LoanID, 10),
		"voucher":  e.Voucher,
		"borrower": e.Borrower,
		"stars":    strconv.FormatUint(uint64(e.Stars), 10),
		"capital":  formatAmount(e.Capital),
	}}
}

// VouchResolved records the outcome of a single vouch relationship.
type VouchResolved struct {
	LoanID   uint64
	Voucher  string
	Borrower string
	Success  bool
}

// EventType satisfies the events.Event interface.
func (VouchResolved) EventType() string { return TypeVouchResolved }

// Event converts the payload into a wire-friendly representation.
func (e VouchResolved) Event() *types.Event {
	return &types.Event{Type: TypeVouchResolved, Attributes: map[string]string{
		"loanId":   strconv.FormatUint(e.LoanID, 10),
		"voucher":  e.Voucher,
		"borrower": e.Borrower,
		"success":  strconv.FormatBool(e.Success),
	}}
}
