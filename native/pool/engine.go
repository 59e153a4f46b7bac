package pool

import (
	"errors"
	"math/big"
	"time"

	"github.com/Kleo-Protocol/kleo-contracts/core/events"
	"github.com/Kleo-Protocol/kleo-contracts/core/types"
	"github.com/Kleo-Protocol/kleo-contracts/crypto"
	nativecommon "github.com/Kleo-Protocol/kleo-contracts/native/common"
	"github.com/Kleo-Protocol/kleo-contracts/native/params"
)

var (
	errNilState = errors.New("lending pool: state not configured")
	errNilPool  = errors.New("lending pool: pool state not initialised")

	// ErrZeroAmount rejects operations on a zero or sub-precision amount.
	ErrZeroAmount = errors.New("lending pool: amount must be positive")
	// ErrOverflow rejects values outside the native transferable range.
	ErrOverflow = errors.New("lending pool: amount exceeds native range")
	// ErrUnavailableFunds rejects draws beyond the available balance.
	ErrUnavailableFunds = errors.New("lending pool: unavailable funds")
	// ErrTransactionFailed marks a failed native value transfer.
	ErrTransactionFailed = errors.New("lending pool: transfer failed")
	// ErrAmountMismatch rejects payable calls whose attached value does
	// not equal the declared amount.
	ErrAmountMismatch = errors.New("lending pool: attached value mismatch")
	// ErrUnauthorized rejects restricted calls from unknown addresses.
	ErrUnauthorized = errors.New("lending pool: caller not authorized")
	// ErrInsufficientBalance rejects transfers beyond the caller's
	// account balance.
	ErrInsufficientBalance = errors.New("lending pool: insufficient balance")
)

const moduleName = "pool"

type engineState interface {
	GetPool() (*PoolState, error)
	PutPool(*PoolState) error
	GetUserAccount(addr crypto.Address) (*UserAccount, error)
	PutUserAccount(*UserAccount) error
	GetAccount(addr crypto.Address) (*types.Account, error)
	PutAccount(addr crypto.Address, account *types.Account) error
}

type rateSource interface {
	Rates() (params.Rates, error)
}

// Engine orchestrates the liquidity pool state transitions: deposits,
// withdrawals, disbursements, repayments and the interest accrual that
// prices them.
type Engine struct {
	state         engineState
	moduleAddress crypto.Address
	params        rateSource
	pauses        nativecommon.PauseView
	emitter       events.Emitter
	nowFn         func() uint64

	loanLedger       crypto.Address
	loanLedgerSet    bool
	vouchRegistry    crypto.Address
	vouchRegistrySet bool
}

// NewEngine constructs a pool engine whose native funds are custodied by the
// supplied module treasury address.
func NewEngine(moduleAddr crypto.Address, rates rateSource) *Engine {
	return &Engine{
		moduleAddress: moduleAddr,
		params:        rates,
		emitter:       events.NoopEmitter{},
		nowFn:         func() uint64 { return uint64(time.Now().UnixMilli()) },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetPauses wires the governance pause switches.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the millisecond clock. Primarily intended for tests.
func (e *Engine) SetNowFunc(now func() uint64) {
	if e == nil {
		return
	}
	if now == nil {
		e.nowFn = func() uint64 { return uint64(time.Now().UnixMilli()) }
		return
	}
	e.nowFn = now
}

// SetLoanLedger records the address permitted to disburse pool funds. The
// slot can be written exactly once; later attempts fail Unauthorized.
func (e *Engine) SetLoanLedger(addr crypto.Address) error {
	if e == nil {
		return errNilState
	}
	if e.loanLedgerSet {
		return ErrUnauthorized
	}
	e.loanLedger = addr
	e.loanLedgerSet = true
	return nil
}

// SetVouchRegistry records the address permitted to manage staked capital.
// The slot can be written exactly once; later attempts fail Unauthorized.
func (e *Engine) SetVouchRegistry(addr crypto.Address) error {
	if e == nil {
		return errNilState
	}
	if e.vouchRegistrySet {
		return ErrUnauthorized
	}
	e.vouchRegistry = addr
	e.vouchRegistrySet = true
	return nil
}

// Deposit moves amountWei (18-decimal chain unit) from the depositor's
// account into the pool and credits their storage-unit deposit balance.
func (e *Engine) Deposit(from crypto.Address, amountWei *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amountWei == nil || amountWei.Sign() <= 0 {
		return ErrZeroAmount
	}
	if amountWei.Cmp(maxNativeValue) > 0 {
		return ErrOverflow
	}
	amount := WeiToStorage(amountWei)
	if amount.Sign() == 0 {
		return ErrZeroAmount
	}

	state, err := e.ensurePool()
	if err != nil {
		return err
	}
	if err := e.accrue(state); err != nil {
		return err
	}

	fromAcc, err := e.loadAccount(from)
	if err != nil {
		return err
	}
	if fromAcc.Balance.Cmp(amountWei) < 0 {
		return ErrInsufficientBalance
	}
	moduleAcc, err := e.loadAccount(e.moduleAddress)
	if err != nil {
		return err
	}

	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amountWei)
	moduleAcc.Balance = new(big.Int).Add(moduleAcc.Balance, amountWei)

	if err := e.state.PutAccount(from, fromAcc); err != nil {
		return err
	}
	if err := e.state.PutAccount(e.moduleAddress, moduleAcc); err != nil {
		return err
	}

	user, err := e.ensureUserAccount(from)
	if err != nil {
		return err
	}
	user.DepositBalance = new(big.Int).Add(user.DepositBalance, amount)
	state.TotalLiquidity = new(big.Int).Add(state.TotalLiquidity, amount)
	state.TotalPrincipalDeposits = new(big.Int).Add(state.TotalPrincipalDeposits, amount)

	if err := e.state.PutUserAccount(user); err != nil {
		return err
	}
	if err := e.state.PutPool(state); err != nil {
		return err
	}

	e.emit(events.PoolDeposit{Depositor: from.String(), Amount: amountWei})
	return nil
}

// Withdraw releases amount (storage unit) of the depositor's pool share back
// to their account. Capital locked behind active vouches is not withdrawable.
func (e *Engine) Withdraw(from crypto.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}

	state, err := e.ensurePool()
	if err != nil {
		return err
	}
	if err := e.accrue(state); err != nil {
		return err
	}

	user, err := e.ensureUserAccount(from)
	if err != nil {
		return err
	}
	share := userShare(user, state)
	available := saturatingSub(share, user.StakedCapital)
	if amount.Cmp(available) > 0 {
		return ErrUnavailableFunds
	}

	payout := StorageToWei(amount)
	moduleAcc, err := e.loadAccount(e.moduleAddress)
	if err != nil {
		return err
	}
	if moduleAcc.Balance.Cmp(payout) < 0 {
		return ErrTransactionFailed
	}
	fromAcc, err := e.loadAccount(from)
	if err != nil {
		return err
	}

	// Principal shrinks by the withdrawn fraction of the share, not 1:1,
	// so the remaining deposit keeps its pro-rata claim on accrued yield.
	principalReduction := mulDiv(user.DepositBalance, amount, share)
	user.DepositBalance = saturatingSub(user.DepositBalance, principalReduction)
	state.TotalPrincipalDeposits = saturatingSub(state.TotalPrincipalDeposits, principalReduction)
	state.TotalLiquidity = saturatingSub(state.TotalLiquidity, amount)

	moduleAcc.Balance = new(big.Int).Sub(moduleAcc.Balance, payout)
	fromAcc.Balance = new(big.Int).Add(fromAcc.Balance, payout)

	if err := e.state.PutAccount(e.moduleAddress, moduleAcc); err != nil {
		return err
	}
	if err := e.state.PutAccount(from, fromAcc); err != nil {
		return err
	}
	if err := e.state.PutUserAccount(user); err != nil {
		return err
	}
	if err := e.state.PutPool(state); err != nil {
		return err
	}

	e.emit(events.PoolWithdraw{Withdrawer: from.String(), Amount: payout})
	return nil
}

// Disburse moves amount (storage unit) from pool liquidity to the borrowed
// total and pays it out to the borrower. Callable only by the loan ledger.
func (e *Engine) Disburse(caller crypto.Address, to crypto.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if !e.loanLedgerSet || !caller.Equal(e.loanLedger) {
		return ErrUnauthorized
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}

	state, err := e.ensurePool()
	if err != nil {
		return err
	}
	if err := e.accrue(state); err != nil {
		return err
	}

	idle := saturatingSub(state.TotalLiquidity, state.TotalBorrowed)
	if amount.Cmp(idle) > 0 {
		return ErrUnavailableFunds
	}

	payout := StorageToWei(amount)
	moduleAcc, err := e.loadAccount(e.moduleAddress)
	if err != nil {
		return err
	}
	if moduleAcc.Balance.Cmp(payout) < 0 {
		return ErrTransactionFailed
	}
	toAcc, err := e.loadAccount(to)
	if err != nil {
		return err
	}

	state.TotalBorrowed = new(big.Int).Add(state.TotalBorrowed, amount)
	state.TotalLiquidity = new(big.Int).Sub(state.TotalLiquidity, amount)

	moduleAcc.Balance = new(big.Int).Sub(moduleAcc.Balance, payout)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, payout)

	if err := e.state.PutAccount(e.moduleAddress, moduleAcc); err != nil {
		return err
	}
	if err := e.state.PutAccount(to, toAcc); err != nil {
		return err
	}
	return e.state.PutPool(state)
}

// ReceiveRepayment credits a repayment back into pool liquidity. The
// attached native value must exactly equal the declared storage amount.
func (e *Engine) ReceiveRepayment(from crypto.Address, amount *big.Int, paidWei *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 || paidWei == nil || paidWei.Sign() <= 0 {
		return ErrZeroAmount
	}
	if paidWei.Cmp(maxNativeValue) > 0 {
		return ErrOverflow
	}
	if paidWei.Cmp(StorageToWei(amount)) != 0 {
		return ErrAmountMismatch
	}

	state, err := e.ensurePool()
	if err != nil {
		return err
	}
	if err := e.accrue(state); err != nil {
		return err
	}

	fromAcc, err := e.loadAccount(from)
	if err != nil {
		return err
	}
	if fromAcc.Balance.Cmp(paidWei) < 0 {
		return ErrInsufficientBalance
	}
	moduleAcc, err := e.loadAccount(e.moduleAddress)
	if err != nil {
		return err
	}

	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, paidWei)
	moduleAcc.Balance = new(big.Int).Add(moduleAcc.Balance, paidWei)

	state.TotalBorrowed = saturatingSub(state.TotalBorrowed, amount)
	state.TotalLiquidity = new(big.Int).Add(state.TotalLiquidity, amount)

	if err := e.state.PutAccount(from, fromAcc); err != nil {
		return err
	}
	if err := e.state.PutAccount(e.moduleAddress, moduleAcc); err != nil {
		return err
	}
	if err := e.state.PutPool(state); err != nil {
		return err
	}

	e.emit(events.PoolRepaymentReceived{Amount: paidWei})
	return nil
}

// SlashStake seizes amount (storage unit) of a voucher's position after a
// default. Callable only by the vouch registry.
func (e *Engine) SlashStake(caller crypto.Address, user crypto.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if !e.vouchRegistrySet || !caller.Equal(e.vouchRegistry) {
		return ErrUnauthorized
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}

	state, err := e.ensurePool()
	if err != nil {
		return err
	}
	if err := e.accrue(state); err != nil {
		return err
	}

	account, err := e.ensureUserAccount(user)
	if err != nil {
		return err
	}
	share := userShare(account, state)
	if amount.Cmp(share) > 0 {
		return ErrUnavailableFunds
	}

	principalReduction := mulDiv(account.DepositBalance, amount, share)
	account.DepositBalance = saturatingSub(account.DepositBalance, principalReduction)
	account.StakedCapital = saturatingSub(account.StakedCapital, amount)
	state.TotalPrincipalDeposits = saturatingSub(state.TotalPrincipalDeposits, principalReduction)
	state.TotalLiquidity = saturatingSub(state.TotalLiquidity, amount)

	if err := e.state.PutUserAccount(account); err != nil {
		return err
	}
	return e.state.PutPool(state)
}

// HandleDefaultRecovery reconciles the pool after a default resolution.
// Slashed capital up to the loan amount is restored to liquidity; any
// shortfall is booked into reserved funds as an unrecovered loss. Callable
// only by the vouch registry.
func (e *Engine) HandleDefaultRecovery(caller crypto.Address, totalSlashed, loanAmount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if !(e.vouchRegistrySet && caller.Equal(e.vouchRegistry)) &&
		!(e.loanLedgerSet && caller.Equal(e.loanLedger)) {
		return ErrUnauthorized
	}
	if loanAmount == nil || loanAmount.Sign() <= 0 {
		return ErrZeroAmount
	}
	slashed := cloneBigInt(totalSlashed)

	state, err := e.ensurePool()
	if err != nil {
		return err
	}
	if err := e.accrue(state); err != nil {
		return err
	}

	restored := slashed
	if slashed.Cmp(loanAmount) >= 0 {
		restored = cloneBigInt(loanAmount)
	} else {
		shortfall := new(big.Int).Sub(loanAmount, slashed)
		state.ReservedFunds = new(big.Int).Add(state.ReservedFunds, shortfall)
	}

	if restored.Sign() > 0 {
		// Principal grows in step with liquidity so the share price of
		// existing deposits is unchanged by the recovery.
		principalRestore := restored
		if state.TotalLiquidity.Sign() > 0 {
			principalRestore = mulDiv(restored, state.TotalPrincipalDeposits, state.TotalLiquidity)
		}
		state.TotalLiquidity = new(big.Int).Add(state.TotalLiquidity, restored)
		state.TotalPrincipalDeposits = new(big.Int).Add(state.TotalPrincipalDeposits, principalRestore)
	}
	state.TotalBorrowed = saturatingSub(state.TotalBorrowed, loanAmount)

	return e.state.PutPool(state)
}

// IncreaseStakedCapital locks amount (storage unit) of the user's deposit
// behind a vouch. Callable only by the vouch registry.
func (e *Engine) IncreaseStakedCapital(caller crypto.Address, user crypto.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if !e.vouchRegistrySet || !caller.Equal(e.vouchRegistry) {
		return ErrUnauthorized
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}

	account, err := e.ensureUserAccount(user)
	if err != nil {
		return err
	}
	next := new(big.Int).Add(account.StakedCapital, amount)
	if next.Cmp(account.DepositBalance) > 0 {
		return ErrUnavailableFunds
	}
	account.StakedCapital = next
	return e.state.PutUserAccount(account)
}

// DecreaseStakedCapital releases amount (storage unit) of a previously
// locked stake. Callable only by the vouch registry.
func (e *Engine) DecreaseStakedCapital(caller crypto.Address, user crypto.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if !e.vouchRegistrySet || !caller.Equal(e.vouchRegistry) {
		return ErrUnauthorized
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}

	account, err := e.ensureUserAccount(user)
	if err != nil {
		return err
	}
	if amount.Cmp(account.StakedCapital) > 0 {
		return ErrUnavailableFunds
	}
	account.StakedCapital = new(big.Int).Sub(account.StakedCapital, amount)
	return e.state.PutUserAccount(account)
}

// CurrentRate resolves the pool's annualized borrow rate at current
// utilization. With no liquidity it returns the configured base rate.
func (e *Engine) CurrentRate() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	state, err := e.ensurePool()
	if err != nil {
		return 0, err
	}
	return e.currentRate(state)
}

func (e *Engine) currentRate(state *PoolState) (uint64, error) {
	rates, err := e.params.Rates()
	if err != nil {
		return 0, err
	}
	if state.TotalLiquidity.Sign() == 0 {
		return rates.BaseRate, nil
	}
	return KinkedRate(Utilization(state.TotalBorrowed, state.TotalLiquidity), rates), nil
}

// UserDeposit returns the raw recorded deposit principal (storage unit).
func (e *Engine) UserDeposit(user crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	account, err := e.ensureUserAccount(user)
	if err != nil {
		return nil, err
	}
	return cloneBigInt(account.DepositBalance), nil
}

// UserStakedCapital returns the capital (storage unit) currently locked
// behind the user's active vouches.
func (e *Engine) UserStakedCapital(user crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	account, err := e.ensureUserAccount(user)
	if err != nil {
		return nil, err
	}
	return cloneBigInt(account.StakedCapital), nil
}

// UserYield returns the depositor's pro-rata slice of interest accrued to
// the pool, i.e. their share of liquidity in excess of principal.
func (e *Engine) UserYield(user crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	state, err := e.ensurePool()
	if err != nil {
		return nil, err
	}
	if state.TotalPrincipalDeposits.Sign() == 0 {
		return big.NewInt(0), nil
	}
	account, err := e.ensureUserAccount(user)
	if err != nil {
		return nil, err
	}
	interestPool := saturatingSub(state.TotalLiquidity, state.TotalPrincipalDeposits)
	return mulDiv(account.DepositBalance, interestPool, state.TotalPrincipalDeposits), nil
}

// AvailableBalance returns the withdrawable slice of the user's pool share
// after subtracting capital staked behind active vouches.
func (e *Engine) AvailableBalance(user crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	state, err := e.ensurePool()
	if err != nil {
		return nil, err
	}
	account, err := e.ensureUserAccount(user)
	if err != nil {
		return nil, err
	}
	return saturatingSub(userShare(account, state), account.StakedCapital), nil
}

// TotalLiquidity returns the pool's current liquidity (storage unit).
func (e *Engine) TotalLiquidity() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	state, err := e.ensurePool()
	if err != nil {
		return nil, err
	}
	return cloneBigInt(state.TotalLiquidity), nil
}

// accrue folds interest earned since the last accrual into pool liquidity
// and skims the reserve factor share. It must run before any
// balance-affecting operation so share pricing never goes stale. Calling it
// twice at the same timestamp is a no-op.
func (e *Engine) accrue(state *PoolState) error {
	now := e.nowFn()
	if now <= state.LastAccrualTime {
		return nil
	}
	elapsed := now - state.LastAccrualTime
	if state.TotalBorrowed.Sign() == 0 {
		state.LastAccrualTime = now
		return nil
	}

	rates, err := e.params.Rates()
	if err != nil {
		return err
	}
	rate := rates.BaseRate
	if state.TotalLiquidity.Sign() > 0 {
		rate = KinkedRate(Utilization(state.TotalBorrowed, state.TotalLiquidity), rates)
	}

	interest := AccruedInterest(state.TotalBorrowed, rate, elapsed)

	if interest.Sign() > 0 {
		reserveShare := mulDiv(interest, new(big.Int).SetUint64(rates.ReserveFactorPercent), big.NewInt(100))
		state.TotalLiquidity = new(big.Int).Add(state.TotalLiquidity, new(big.Int).Sub(interest, reserveShare))
		state.ReservedFunds = new(big.Int).Add(state.ReservedFunds, reserveShare)
	}
	state.LastAccrualTime = now
	return nil
}

// userShare prices the user's deposit against current liquidity. Before any
// principal exists the raw deposit is the share.
func userShare(account *UserAccount, state *PoolState) *big.Int {
	if state.TotalPrincipalDeposits.Sign() == 0 {
		return cloneBigInt(account.DepositBalance)
	}
	return mulDiv(account.DepositBalance, state.TotalLiquidity, state.TotalPrincipalDeposits)
}

func (e *Engine) ensurePool() (*PoolState, error) {
	state, err := e.state.GetPool()
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, errNilPool
	}
	if state.TotalLiquidity == nil {
		state.TotalLiquidity = big.NewInt(0)
	}
	if state.TotalBorrowed == nil {
		state.TotalBorrowed = big.NewInt(0)
	}
	if state.ReservedFunds == nil {
		state.ReservedFunds = big.NewInt(0)
	}
	if state.TotalPrincipalDeposits == nil {
		state.TotalPrincipalDeposits = big.NewInt(0)
	}
	return state, nil
}

func (e *Engine) ensureUserAccount(addr crypto.Address) (*UserAccount, error) {
	account, err := e.state.GetUserAccount(addr)
	if err != nil {
		return nil, err
	}
	if account == nil {
		account = &UserAccount{Address: addr}
	}
	if account.DepositBalance == nil {
		account.DepositBalance = big.NewInt(0)
	}
	if account.StakedCapital == nil {
		account.StakedCapital = big.NewInt(0)
	}
	return account, nil
}

// loadAccount reads a native account, treating an unknown address as a
// fresh zero-balance account. Debits still fail on the explicit balance
// checks at the call sites.
func (e *Engine) loadAccount(addr crypto.Address) (*types.Account, error) {
	acc, err := e.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		acc = &types.Account{}
	}
	acc.EnsureDefaults()
	return acc, nil
}

func (e *Engine) emit(event events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(event)
}
