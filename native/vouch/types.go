package vouch

import (
	"fmt"
	"math/big"
)

// Status is the lifecycle of a single vouch relationship.
type Status uint8

const (
	// StatusActive marks a vouch backing a loan that has not resolved.
	StatusActive Status = iota
	// StatusFulfilled marks a vouch whose loan was repaid.
	StatusFulfilled
	// StatusDefaulted marks a vouch whose loan defaulted.
	StatusDefaulted
)

// String renders the status for logs and events.
func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusFulfilled:
		return "fulfilled"
	case StatusDefaulted:
		return "defaulted"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Relationship records a voucher's stake behind a specific loan. It is
// created when the vouch is accepted and resolved exactly once when the
// loan reaches a terminal state.
type Relationship struct {
	// StakedStars is the reputation the voucher put at stake.
	StakedStars uint32 `json:"stakedStars"`
	// StakedCapital is the locked deposit slice, in the pool's storage
	// unit.
	StakedCapital *big.Int `json:"stakedCapital"`
	// CreatedAt is the acceptance timestamp in milliseconds.
	CreatedAt uint64 `json:"createdAt"`
	Status    Status `json:"status"`
}
