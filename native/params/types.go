package params

// RateScale is the fixed-point denominator for rates and percentages:
// 1e9 represents 100%.
const RateScale = uint64(1_000_000_000)

// Rates holds the kinked interest curve parameters, all scaled by RateScale.
type Rates struct {
	// BaseRate is the annualized rate charged at zero utilization.
	BaseRate uint64 `json:"baseRate"`
	// OptimalUtilization is the kink point of the curve.
	OptimalUtilization uint64 `json:"optimalUtilization"`
	// Slope1 is the rate increase applied across [0, optimal].
	Slope1 uint64 `json:"slope1"`
	// Slope2 is the additional increase applied past the kink.
	Slope2 uint64 `json:"slope2"`
	// MaxRate caps the resolved annualized rate.
	MaxRate uint64 `json:"maxRate"`
	// ReserveFactorPercent is the share of accrued interest skimmed into
	// reserved funds, in whole percent.
	ReserveFactorPercent uint64 `json:"reserveFactorPercent"`
}

// Vouching holds the limits applied when accepting vouches.
type Vouching struct {
	// ExposureCap bounds a single borrower's total staked capital as a
	// RateScale fraction of total liquidity.
	ExposureCap uint64 `json:"exposureCap"`
	// MinStarsToVouch is the reputation floor for acting as a voucher.
	MinStarsToVouch uint32 `json:"minStarsToVouch"`
	// Boost is the star bonus returned to vouchers of repaid loans.
	Boost uint32 `json:"boost"`
}

// TierRequirements pairs the reputation and vouch thresholds of a loan tier.
type TierRequirements struct {
	MinStars   uint32 `json:"minStars"`
	MinVouches uint32 `json:"minVouches"`
}

// Loans holds tier selection and lifecycle parameters.
type Loans struct {
	// TierScalingFactor normalizes loan amounts (storage units) before
	// tier comparison.
	TierScalingFactor uint64 `json:"tierScalingFactor"`
	// Tier1MaxScaledAmount is the exclusive upper bound of tier 1.
	Tier1MaxScaledAmount uint64 `json:"tier1MaxScaledAmount"`
	// Tier2MaxScaledAmount is the exclusive upper bound of tier 2.
	Tier2MaxScaledAmount uint64           `json:"tier2MaxScaledAmount"`
	Tier1                TierRequirements `json:"tier1"`
	Tier2                TierRequirements `json:"tier2"`
	Tier3                TierRequirements `json:"tier3"`
	// DefaultTermMs is the loan term applied when the borrower does not
	// request one explicitly.
	DefaultTermMs uint64 `json:"defaultTermMs"`
	// GracePeriodMs is the buffer past the due date before a loan can be
	// marked defaulted.
	GracePeriodMs uint64 `json:"gracePeriodMs"`
	// StarDiscountPercentPerStar is the whole-percent rate discount per
	// borrower star.
	StarDiscountPercentPerStar uint64 `json:"starDiscountPercentPerStar"`
	// MaxStarDiscountPercent caps the total star discount.
	MaxStarDiscountPercent uint64 `json:"maxStarDiscountPercent"`
}

// Reputation holds star accrual parameters.
type Reputation struct {
	// CooldownPeriodMs is the window after account creation during which
	// star accrual is ignored.
	CooldownPeriodMs uint64 `json:"cooldownPeriodMs"`
}

// Pauses lists the module pause switches controlled by governance.
type Pauses struct {
	Pool       bool `json:"pool"`
	Vouch      bool `json:"vouch"`
	Loan       bool `json:"loan"`
	Reputation bool `json:"reputation"`
}

// IsPaused satisfies native/common.PauseView.
func (p Pauses) IsPaused(module string) bool {
	switch module {
	case "pool":
		return p.Pool
	case "vouch":
		return p.Vouch
	case "loan":
		return p.Loan
	case "reputation":
		return p.Reputation
	default:
		return false
	}
}

// DefaultRates mirrors the genesis configuration of the protocol.
func DefaultRates() Rates {
	return Rates{
		BaseRate:             100_000_000, // 10%
		OptimalUtilization:   800_000_000, // 80%
		Slope1:               40_000_000,  // +4% pre-optimal
		Slope2:               750_000_000, // +75% post-optimal
		MaxRate:              RateScale,   // cap at 100%
		ReserveFactorPercent: 20,
	}
}

// DefaultVouching mirrors the genesis configuration of the protocol.
func DefaultVouching() Vouching {
	return Vouching{
		ExposureCap:     50_000_000, // 5%
		MinStarsToVouch: 50,
		Boost:           2,
	}
}

// DefaultLoans mirrors the genesis configuration of the protocol.
func DefaultLoans() Loans {
	return Loans{
		TierScalingFactor:          10_000_000_000, // one token in storage units
		Tier1MaxScaledAmount:       1_000,
		Tier2MaxScaledAmount:       10_000,
		Tier1:                      TierRequirements{MinStars: 5, MinVouches: 1},
		Tier2:                      TierRequirements{MinStars: 20, MinVouches: 2},
		Tier3:                      TierRequirements{MinStars: 50, MinVouches: 3},
		DefaultTermMs:              2_592_000_000, // 30 days
		GracePeriodMs:              604_800_000,   // 7 days
		StarDiscountPercentPerStar: 1,
		MaxStarDiscountPercent:     50,
	}
}

// DefaultReputation mirrors the genesis configuration of the protocol.
func DefaultReputation() Reputation {
	return Reputation{CooldownPeriodMs: 60_000}
}
