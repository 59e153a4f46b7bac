package loan

import (
	"math/big"

	"github.com/Kleo-Protocol/kleo-contracts/crypto"
)

// Status tracks a loan through its lifecycle. Repaid and Defaulted are
// terminal.
type Status uint8

const (
	// StatusPending marks a requested loan still gathering vouches.
	StatusPending Status = iota
	// StatusActive marks a disbursed loan awaiting repayment.
	StatusActive
	// StatusRepaid marks a loan settled in full.
	StatusRepaid
	// StatusDefaulted marks a loan closed after missing its due date.
	StatusDefaulted
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusActive:
		return "active"
	case StatusRepaid:
		return "repaid"
	case StatusDefaulted:
		return "defaulted"
	default:
		return "unknown"
	}
}

// Loan is the ledger record for a single loan. Principal is denominated in
// the pool's 10-decimal storage unit; InterestRate is the 1e9-scaled annual
// rate locked in at request time; Term and StartTime are milliseconds, with
// StartTime zero until activation.
type Loan struct {
	ID           uint64         `json:"id"`
	Borrower     crypto.Address `json:"borrower"`
	Principal    *big.Int       `json:"principal"`
	InterestRate uint64         `json:"interestRate"`
	Term         uint64         `json:"term"`
	StartTime    uint64         `json:"startTime"`
	Status       Status         `json:"status"`
}
