package types

import "math/big"

// Account is the on-ledger record for a protocol participant. Balance values
// are denominated in wei (the 18-decimal chain unit) and expressed as big
// integers to match on-chain precision.
type Account struct {
	Nonce   uint64   `json:"nonce"`
	Balance *big.Int `json:"balance"`
}

// EnsureDefaults populates nil big.Int fields so JSON handling stays safe.
func (a *Account) EnsureDefaults() {
	if a == nil {
		return
	}
	if a.Balance == nil {
		a.Balance = big.NewInt(0)
	}
}
