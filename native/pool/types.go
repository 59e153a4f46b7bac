package pool

import (
	"math/big"

	"github.com/Kleo-Protocol/kleo-contracts/crypto"
)

// PoolState captures the global accounting state for the liquidity pool.
// All amounts are denominated in the 10-decimal storage unit.
type PoolState struct {
	// TotalLiquidity is the capital currently held by the pool, including
	// interest accrued to depositors.
	TotalLiquidity *big.Int
	// TotalBorrowed tracks principal disbursed to active loans.
	TotalBorrowed *big.Int
	// ReservedFunds accumulates the protocol's interest skim plus any
	// unrecovered default losses.
	ReservedFunds *big.Int
	// TotalPrincipalDeposits is the sum of raw deposit principal, the
	// denominator for pro-rata share pricing.
	TotalPrincipalDeposits *big.Int
	// LastAccrualTime records when interest was last folded into the
	// pool, in milliseconds.
	LastAccrualTime uint64
}

// UserAccount maintains the pool position for an individual depositor.
// Amounts are in the storage unit.
type UserAccount struct {
	// Address is the depositor's account identifier.
	Address crypto.Address
	// DepositBalance is the recorded principal for this depositor.
	DepositBalance *big.Int
	// StakedCapital is the slice of the deposit locked behind active
	// vouches and excluded from withdrawal.
	StakedCapital *big.Int
}
