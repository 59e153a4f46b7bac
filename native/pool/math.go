package pool

import "math/big"

// The pool keeps two decimal scales. Account balances cross the boundary in
// the 18-decimal chain unit (wei); pool-internal balances are kept in a
// 10-decimal storage unit. Conversions multiply or divide by the fixed 1e8
// factor and round toward zero, a deliberate one-directional rounding policy.
var (
	// scaleFactor converts between the 18-decimal chain unit and the
	// 10-decimal storage unit.
	scaleFactor = big.NewInt(100_000_000)
	// maxNativeValue is the largest transferable native value (u128 range).
	maxNativeValue = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
)

// yearMs is the accrual denominator: 365.25 days in milliseconds.
const yearMs = uint64(31_557_600_000)

// WeiToStorage converts an 18-decimal chain amount into the 10-decimal
// storage unit, flooring.
func WeiToStorage(wei *big.Int) *big.Int {
	if wei == nil || wei.Sign() <= 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Quo(wei, scaleFactor)
}

// StorageToWei converts a 10-decimal storage amount into the 18-decimal
// chain unit. The conversion is exact.
func StorageToWei(amount *big.Int) *big.Int {
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Mul(amount, scaleFactor)
}

// AccruedInterest computes simple interest on principal at a 1e9-scaled
// annual rate over an elapsed span of milliseconds, flooring. Both the
// pool's global accrual and per-loan repayment use this formula so the two
// sides of the book never drift apart.
func AccruedInterest(principal *big.Int, rate uint64, elapsedMs uint64) *big.Int {
	if principal == nil || principal.Sign() <= 0 || rate == 0 || elapsedMs == 0 {
		return big.NewInt(0)
	}
	interest := new(big.Int).Mul(principal, new(big.Int).SetUint64(rate))
	interest.Mul(interest, new(big.Int).SetUint64(elapsedMs))
	interest.Quo(interest, new(big.Int).SetUint64(yearMs))
	return interest.Quo(interest, rateScale)
}

// mulDiv computes a*b/den with an arbitrary-width intermediate, flooring.
// A zero denominator yields zero rather than trapping.
func mulDiv(a, b, den *big.Int) *big.Int {
	if a == nil || b == nil || den == nil || den.Sign() == 0 {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(a, b)
	return product.Quo(product, den)
}

// saturatingSub returns a-b floored at zero.
func saturatingSub(a, b *big.Int) *big.Int {
	if a == nil {
		return big.NewInt(0)
	}
	if b == nil {
		return new(big.Int).Set(a)
	}
	diff := new(big.Int).Sub(a, b)
	if diff.Sign() < 0 {
		return big.NewInt(0)
	}
	return diff
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
