package events

import (
	"math/big"

	"github.com/Kleo-Protocol/kleo-contracts/core/types"
)

const (
	// TypePoolDeposit is emitted when a lender adds liquidity to the pool.
	TypePoolDeposit = "pool.deposit"
	// TypePoolWithdraw is emitted when a lender removes liquidity.
	TypePoolWithdraw = "pool.withdraw"
	// TypePoolRepaymentReceived is emitted when borrowed funds flow back
	// into the pool.
	TypePoolRepaymentReceived = "pool.repayment_received"
)

// PoolDeposit captures a completed deposit. Amount is in wei.
type PoolDeposit struct {
	Depositor string
	Amount    *big.Int
}

// EventType satisfies the events.Event interface.
func (PoolDeposit) EventType() string { return TypePoolDeposit }

// Event converts the payload into a wire-friendly representation.
func (e PoolDeposit) Event() *types.Event {
	return &types.Event{Type: TypePoolDeposit, Attributes: map[string]string{
		"depositor": e.Depositor,
		"amount":    formatAmount(e.Amount),
	}}
}

// PoolWithdraw captures a completed withdrawal. Amount is in wei.
type PoolWithdraw struct {
	Withdrawer string
	Amount     *big.Int
}

// EventType satisfies the events.Event interface.
func (PoolWithdraw) EventType() string { return TypePoolWithdraw }

// Event converts the payload into a wire-friendly representation.
func (e PoolWithdraw) Event() *types.Event {
	return &types.Event{Type: TypePoolWithdraw, Attributes: map[string]string{
		"withdrawer": e.Withdrawer,
		"amount":     formatAmount(e.Amount),
	}}
}

// PoolRepaymentReceived captures a repayment credited to pool liquidity.
type PoolRepaymentReceived struct {
	Amount *big.Int
}

// EventType satisfies the events.Event interface.
func (PoolRepaymentReceived) EventType() string { return TypePoolRepaymentReceived }

// Event converts the payload into a wire-friendly representation.
func (e PoolRepaymentReceived) Event() *types.Event {
	return &types.Event{Type: TypePoolRepaymentReceived, Attributes: map[string]string{
		"amount": formatAmount(e.Amount),
	}}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
