package params

const (
	// ParamsKeyPauses stores the module pause configuration.
	ParamsKeyPauses = "system/pauses"
	// ParamsKeyRates stores the interest rate curve parameters.
	ParamsKeyRates = "protocol/rates"
	// ParamsKeyVouching stores the vouch eligibility and exposure limits.
	ParamsKeyVouching = "protocol/vouching"
	// ParamsKeyLoans stores loan tier and lifecycle parameters.
	ParamsKeyLoans = "protocol/loans"
	// ParamsKeyReputation stores star accrual parameters.
	ParamsKeyReputation = "protocol/reputation"
)
