package loan

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/Kleo-Protocol/kleo-contracts/core/events"
	"github.com/Kleo-Protocol/kleo-contracts/crypto"
	nativecommon "github.com/Kleo-Protocol/kleo-contracts/native/common"
	"github.com/Kleo-Protocol/kleo-contracts/native/params"
	"github.com/Kleo-Protocol/kleo-contracts/native/pool"
)

var (
	errNilState = errors.New("loan ledger: state not configured")

	// ErrZeroAmount rejects loan requests for nothing.
	ErrZeroAmount = errors.New("loan ledger: amount must be positive")
	// ErrLoanNotFound marks lookups of unknown loan ids.
	ErrLoanNotFound = errors.New("loan ledger: loan not found")
	// ErrLoanNotPending rejects vouches on loans past the pending stage.
	ErrLoanNotPending = errors.New("loan ledger: loan is not pending")
	// ErrLoanNotActive rejects repayment or default checks outside the
	// active stage.
	ErrLoanNotActive = errors.New("loan ledger: loan is not active")
	// ErrLoanNotOverdue rejects default checks before the grace period
	// has elapsed.
	ErrLoanNotOverdue = errors.New("loan ledger: loan is not overdue")
	// ErrInsufficientReputation rejects borrowers below the tier's star
	// floor.
	ErrInsufficientReputation = errors.New("loan ledger: insufficient reputation for tier")
	// ErrInvalidRepaymentAmount rejects repayments whose attached value
	// does not exactly cover principal plus accrued interest.
	ErrInvalidRepaymentAmount = errors.New("loan ledger: repayment amount mismatch")
	// ErrUnauthorized rejects repayment attempts by anyone but the
	// borrower.
	ErrUnauthorized = errors.New("loan ledger: caller not authorized")
)

const moduleName = "loan"

type stateStore interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

type reputationLedger interface {
	Stars(crypto.Address) (uint32, error)
	SlashStars(user crypto.Address, amount uint32) error
}

type liquidityPool interface {
	CurrentRate() (uint64, error)
	Disburse(caller, to crypto.Address, amount *big.Int) error
	ReceiveRepayment(from crypto.Address, amount, paidWei *big.Int) error
}

type vouchRegistry interface {
	VouchForLoan(caller crypto.Address, loanID uint64, borrower, voucher crypto.Address, stars uint32, capitalPercent uint8) error
	VouchesForLoan(loanID uint64) (uint32, error)
	ResolveLoan(caller crypto.Address, loanID uint64, borrower crypto.Address, success bool, loanAmount *big.Int) error
}

type paramSource interface {
	Loans() (params.Loans, error)
}

// Ledger drives the loan lifecycle: tiered underwriting at request time,
// activation and disbursement once the vouch threshold is met, elapsed-time
// repayment, and default handling past the grace period.
type Ledger struct {
	store      stateStore
	reputation reputationLedger
	pool       liquidityPool
	vouches    vouchRegistry
	params     paramSource
	pauses     nativecommon.PauseView
	emitter    events.Emitter
	nowFn      func() uint64

	// address identifies the ledger when calling into the pool's and
	// registry's restricted operations.
	address crypto.Address
}

// NewLedger constructs a loan ledger. The address must match the one
// authorized on the pool engine and vouch registry.
func NewLedger(address crypto.Address, store stateStore, reputation reputationLedger, liquidity liquidityPool, vouches vouchRegistry, source paramSource) *Ledger {
	return &Ledger{
		store:      store,
		reputation: reputation,
		pool:       liquidity,
		vouches:    vouches,
		params:     source,
		emitter:    events.NoopEmitter{},
		nowFn:      func() uint64 { return uint64(time.Now().UnixMilli()) },
		address:    address,
	}
}

// SetPauses wires the governance pause switches.
func (l *Ledger) SetPauses(p nativecommon.PauseView) {
	if l == nil {
		return
	}
	l.pauses = p
}

// SetEmitter configures the event emitter. Passing nil resets to no-op.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if l == nil {
		return
	}
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// SetNowFunc overrides the millisecond clock. Primarily for tests.
func (l *Ledger) SetNowFunc(now func() uint64) {
	if l == nil {
		return
	}
	if now == nil {
		l.nowFn = func() uint64 { return uint64(time.Now().UnixMilli()) }
		return
	}
	l.nowFn = now
}

var (
	loanRecordPrefix = []byte("loan/record/")
	loanSequenceKey  = []byte("loan/sequence")
)

func loanKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", loanRecordPrefix, id))
}

// RequestLoan opens a Pending loan. The amount (storage units) selects the
// tier, the borrower's stars must clear the tier floor, and the pool's
// current rate is locked in minus the star discount. Returns the loan id.
func (l *Ledger) RequestLoan(borrower crypto.Address, amount *big.Int, termMs uint64) (uint64, error) {
	if l == nil || l.store == nil {
		return 0, errNilState
	}
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return 0, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return 0, ErrZeroAmount
	}

	cfg, err := l.params.Loans()
	if err != nil {
		return 0, err
	}
	if termMs == 0 {
		termMs = cfg.DefaultTermMs
	}

	tier := tierRequirements(amount, cfg)
	stars, err := l.reputation.Stars(borrower)
	if err != nil {
		return 0, err
	}
	if stars < tier.MinStars {
		return 0, ErrInsufficientReputation
	}

	rate, err := l.pool.CurrentRate()
	if err != nil {
		return 0, err
	}
	rate = discountedRate(rate, stars, cfg)

	id, err := l.nextID()
	if err != nil {
		return 0, err
	}
	record := &Loan{
		ID:           id,
		Borrower:     borrower,
		Principal:    new(big.Int).Set(amount),
		InterestRate: rate,
		Term:         termMs,
		Status:       StatusPending,
	}
	if err := l.store.KVPut(loanKey(id), record); err != nil {
		return 0, err
	}

	l.emit(events.LoanRequested{
		ID:       id,
		Borrower: borrower.String(),
		Amount:   record.Principal,
		Term:     termMs,
	})
	return id, nil
}

// VouchForLoan forwards a vouch to the registry and activates the loan once
// the tier's vouch threshold is reached, stamping the start time and
// disbursing the principal to the borrower.
func (l *Ledger) VouchForLoan(loanID uint64, voucher crypto.Address, stars uint32, capitalPercent uint8) error {
	if l == nil || l.store == nil {
		return errNilState
	}
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	record, err := l.getLoan(loanID)
	if err != nil {
		return err
	}
	if record.Status != StatusPending {
		return ErrLoanNotPending
	}

	if err := l.vouches.VouchForLoan(l.address, loanID, record.Borrower, voucher, stars, capitalPercent); err != nil {
		return err
	}

	cfg, err := l.params.Loans()
	if err != nil {
		return err
	}
	count, err := l.vouches.VouchesForLoan(loanID)
	if err != nil {
		return err
	}
	if count < tierRequirements(record.Principal, cfg).MinVouches {
		return nil
	}

	record.Status = StatusActive
	record.StartTime = l.nowFn()
	if err := l.store.KVPut(loanKey(loanID), record); err != nil {
		return err
	}
	return l.pool.Disburse(l.address, record.Borrower, record.Principal)
}

// RepaymentAmount returns what the borrower owes right now: principal plus
// interest accrued over the elapsed duration at the loan's locked rate, in
// storage units. Only meaningful for Active loans.
func (l *Ledger) RepaymentAmount(loanID uint64) (*big.Int, error) {
	if l == nil || l.store == nil {
		return nil, errNilState
	}
	record, err := l.getLoan(loanID)
	if err != nil {
		return nil, err
	}
	if record.Status != StatusActive {
		return nil, ErrLoanNotActive
	}
	return l.amountDue(record), nil
}

func (l *Ledger) amountDue(record *Loan) *big.Int {
	now := l.nowFn()
	var elapsed uint64
	if now > record.StartTime {
		elapsed = now - record.StartTime
	}
	due := new(big.Int).Set(record.Principal)
	return due.Add(due, pool.AccruedInterest(record.Principal, record.InterestRate, elapsed))
}

// RepayLoan settles an Active loan. Only the borrower may repay, and the
// attached value must exactly equal the amount due in the chain unit. On
// success the records flips to Repaid and every vouch resolves as
// successful.
func (l *Ledger) RepayLoan(loanID uint64, caller crypto.Address, paidWei *big.Int) error {
	if l == nil || l.store == nil {
		return errNilState
	}
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	record, err := l.getLoan(loanID)
	if err != nil {
		return err
	}
	if record.Status != StatusActive {
		return ErrLoanNotActive
	}
	if !caller.Equal(record.Borrower) {
		return ErrUnauthorized
	}

	due := l.amountDue(record)
	if paidWei == nil || paidWei.Cmp(pool.StorageToWei(due)) != 0 {
		return ErrInvalidRepaymentAmount
	}
	if err := l.pool.ReceiveRepayment(record.Borrower, due, paidWei); err != nil {
		return err
	}

	record.Status = StatusRepaid
	if err := l.store.KVPut(loanKey(loanID), record); err != nil {
		return err
	}
	if err := l.vouches.ResolveLoan(l.address, loanID, record.Borrower, true, record.Principal); err != nil {
		return err
	}

	l.emit(events.LoanRepaid{
		ID:       loanID,
		Borrower: record.Borrower.String(),
		Amount:   due,
	})
	return nil
}

// CheckDefault marks an overdue loan Defaulted. Callable by anyone once the
// term plus grace period has elapsed. The borrower loses stars in
// proportion to the loan size, and every vouch resolves as failed, feeding
// the slashed capital into the pool's default recovery.
func (l *Ledger) CheckDefault(loanID uint64) error {
	if l == nil || l.store == nil {
		return errNilState
	}
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	record, err := l.getLoan(loanID)
	if err != nil {
		return err
	}
	if record.Status != StatusActive {
		return ErrLoanNotActive
	}
	cfg, err := l.params.Loans()
	if err != nil {
		return err
	}
	if l.nowFn() <= record.StartTime+record.Term+cfg.GracePeriodMs {
		return ErrLoanNotOverdue
	}

	record.Status = StatusDefaulted
	if err := l.store.KVPut(loanKey(loanID), record); err != nil {
		return err
	}
	if err := l.reputation.SlashStars(record.Borrower, slashAmount(record.Principal, cfg)); err != nil {
		return err
	}
	if err := l.vouches.ResolveLoan(l.address, loanID, record.Borrower, false, record.Principal); err != nil {
		return err
	}

	l.emit(events.LoanDefaulted{
		ID:       loanID,
		Borrower: record.Borrower.String(),
		Amount:   record.Principal,
	})
	return nil
}

// GetLoan returns the stored record for a loan id.
func (l *Ledger) GetLoan(loanID uint64) (*Loan, error) {
	if l == nil || l.store == nil {
		return nil, errNilState
	}
	return l.getLoan(loanID)
}

func (l *Ledger) getLoan(loanID uint64) (*Loan, error) {
	var record Loan
	found, err := l.store.KVGet(loanKey(loanID), &record)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrLoanNotFound
	}
	return &record, nil
}

func (l *Ledger) nextID() (uint64, error) {
	var sequence uint64
	if _, err := l.store.KVGet(loanSequenceKey, &sequence); err != nil {
		return 0, err
	}
	sequence++
	if err := l.store.KVPut(loanSequenceKey, sequence); err != nil {
		return 0, err
	}
	return sequence, nil
}

// tierRequirements maps a loan amount onto its underwriting tier. The
// amount is normalized by the scaling factor before comparison against the
// configured thresholds.
func tierRequirements(amount *big.Int, cfg params.Loans) params.TierRequirements {
	scaled := new(big.Int)
	if cfg.TierScalingFactor > 0 {
		scaled.Quo(amount, new(big.Int).SetUint64(cfg.TierScalingFactor))
	} else {
		scaled.Set(amount)
	}
	if scaled.Cmp(new(big.Int).SetUint64(cfg.Tier1MaxScaledAmount)) < 0 {
		return cfg.Tier1
	}
	if scaled.Cmp(new(big.Int).SetUint64(cfg.Tier2MaxScaledAmount)) < 0 {
		return cfg.Tier2
	}
	return cfg.Tier3
}

// discountedRate applies the borrower's star discount as a whole-percent
// reduction of the pool rate. The discount saturates at 100%.
func discountedRate(rate uint64, stars uint32, cfg params.Loans) uint64 {
	discount := uint64(stars) * cfg.StarDiscountPercentPerStar
	if discount > cfg.MaxStarDiscountPercent {
		discount = cfg.MaxStarDiscountPercent
	}
	if discount > 100 {
		discount = 100
	}
	return rate - rate*discount/100
}

// slashAmount converts a defaulted principal into a star penalty, at least
// one star and saturating at the uint32 range.
func slashAmount(principal *big.Int, cfg params.Loans) uint32 {
	scaled := new(big.Int)
	if cfg.TierScalingFactor > 0 {
		scaled.Quo(principal, new(big.Int).SetUint64(cfg.TierScalingFactor))
	}
	if !scaled.IsUint64() {
		return math.MaxUint32
	}
	stars := scaled.Uint64()
	if stars == 0 {
		return 1
	}
	if stars > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(stars)
}

func (l *Ledger) emit(event events.Event) {
	if l == nil || l.emitter == nil {
		return
	}
	l.emitter.Emit(event)
}
