package pool

import (
	"math/big"

	"github.com/Kleo-Protocol/kleo-contracts/native/params"
)

var rateScale = new(big.Int).SetUint64(params.RateScale)

// Utilization computes totalBorrowed * RateScale / totalLiquidity, clamped
// to [0, RateScale] so stale inputs cannot push the curve out of range.
// Zero liquidity is defined as zero utilization.
func Utilization(totalBorrowed, totalLiquidity *big.Int) uint64 {
	if totalBorrowed == nil || totalBorrowed.Sign() <= 0 {
		return 0
	}
	if totalLiquidity == nil || totalLiquidity.Sign() <= 0 {
		return 0
	}
	ratio := mulDiv(totalBorrowed, rateScale, totalLiquidity)
	if ratio.Cmp(rateScale) > 0 {
		return params.RateScale
	}
	return ratio.Uint64()
}

// KinkedRate resolves the annualized borrow rate for the supplied
// utilization under the piecewise-linear curve. All inputs and the result
// are RateScale fixed-point values; intermediates are computed wide so no
// parameter combination can overflow.
func KinkedRate(utilization uint64, r params.Rates) uint64 {
	if utilization > params.RateScale {
		utilization = params.RateScale
	}
	if r.OptimalUtilization == 0 {
		return minRate(r.BaseRate, r.MaxRate)
	}

	rate := new(big.Int).SetUint64(r.BaseRate)
	if utilization <= r.OptimalUtilization {
		slope := mulDiv(
			new(big.Int).SetUint64(utilization),
			new(big.Int).SetUint64(r.Slope1),
			new(big.Int).SetUint64(r.OptimalUtilization),
		)
		rate.Add(rate, slope)
	} else {
		rate.Add(rate, new(big.Int).SetUint64(r.Slope1))
		// A kink at exactly 100% leaves no room above it; the excess
		// term collapses to zero instead of dividing by zero.
		if span := params.RateScale - r.OptimalUtilization; span > 0 {
			excess := mulDiv(
				new(big.Int).SetUint64(utilization-r.OptimalUtilization),
				new(big.Int).SetUint64(r.Slope2),
				new(big.Int).SetUint64(span),
			)
			rate.Add(rate, excess)
		}
	}

	max := new(big.Int).SetUint64(r.MaxRate)
	if rate.Cmp(max) > 0 {
		return r.MaxRate
	}
	return rate.Uint64()
}

func minRate(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
