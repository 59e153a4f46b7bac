package vouch

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/Kleo-Protocol/kleo-contracts/core/events"
	"github.com/Kleo-Protocol/kleo-contracts/crypto"
	nativecommon "github.com/Kleo-Protocol/kleo-contracts/native/common"
	"github.com/Kleo-Protocol/kleo-contracts/native/params"
)

var (
	errNilState = errors.New("vouch registry: state not configured")

	// ErrZeroAmount rejects vouches whose capital slice rounds to zero.
	ErrZeroAmount = errors.New("vouch registry: staked capital is zero")
	// ErrNotEnoughStars rejects vouches staking more stars than the
	// voucher holds.
	ErrNotEnoughStars = errors.New("vouch registry: not enough stars")
	// ErrNotEnoughCapital rejects vouches whose capital slice cannot be
	// locked on top of the voucher's existing stakes.
	ErrNotEnoughCapital = errors.New("vouch registry: not enough free capital")
	// ErrUnableToVouch rejects vouchers below the eligibility floor or
	// banned.
	ErrUnableToVouch = errors.New("vouch registry: voucher not eligible")
	// ErrExposureCapExceeded rejects vouches that would push the
	// borrower's staked exposure past the configured cap.
	ErrExposureCapExceeded = errors.New("vouch registry: exposure cap exceeded")
	// ErrAlreadyVouched rejects a second vouch by the same voucher on the
	// same loan.
	ErrAlreadyVouched = errors.New("vouch registry: relationship exists")
	// ErrUnauthorized rejects restricted calls from unknown addresses.
	ErrUnauthorized = errors.New("vouch registry: caller not authorized")
)

const moduleName = "vouch"

// stateStore abstracts the key-value capabilities the registry needs.
type stateStore interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

type reputationLedger interface {
	Stars(crypto.Address) (uint32, error)
	CanVouch(crypto.Address) (bool, error)
	StakeStars(crypto.Address, uint32) error
	UnstakeStars(user crypto.Address, amount uint32, success bool, borrower crypto.Address) error
}

type liquidityPool interface {
	UserDeposit(crypto.Address) (*big.Int, error)
	UserStakedCapital(crypto.Address) (*big.Int, error)
	TotalLiquidity() (*big.Int, error)
	IncreaseStakedCapital(caller, user crypto.Address, amount *big.Int) error
	DecreaseStakedCapital(caller, user crypto.Address, amount *big.Int) error
	SlashStake(caller, user crypto.Address, amount *big.Int) error
	HandleDefaultRecovery(caller crypto.Address, totalSlashed, loanAmount *big.Int) error
}

type paramSource interface {
	Vouching() (params.Vouching, error)
}

// Registry manages vouch relationships: acceptance under the exposure cap
// and exactly-once reward/slash resolution when loans terminate.
type Registry struct {
	store      stateStore
	reputation reputationLedger
	pool       liquidityPool
	params     paramSource
	pauses     nativecommon.PauseView
	emitter    events.Emitter
	nowFn      func() uint64

	// address identifies the registry when calling into the pool's
	// restricted staked-capital operations.
	address crypto.Address

	loanLedger    crypto.Address
	loanLedgerSet bool
}

// NewRegistry constructs a registry with its injected collaborators. The
// registry address must match the one authorized on the pool engine.
func NewRegistry(address crypto.Address, store stateStore, reputation reputationLedger, pool liquidityPool, source paramSource) *Registry {
	return &Registry{
		store:      store,
		reputation: reputation,
		pool:       pool,
		params:     source,
		emitter:    events.NoopEmitter{},
		nowFn:      func() uint64 { return uint64(time.Now().UnixMilli()) },
		address:    address,
	}
}

// SetPauses wires the governance pause switches.
func (r *Registry) SetPauses(p nativecommon.PauseView) {
	if r == nil {
		return
	}
	r.pauses = p
}

// SetEmitter configures the event emitter. Passing nil resets to no-op.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if r == nil {
		return
	}
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// SetNowFunc overrides the millisecond clock. Primarily for tests.
func (r *Registry) SetNowFunc(now func() uint64) {
	if r == nil {
		return
	}
	if now == nil {
		r.nowFn = func() uint64 { return uint64(time.Now().UnixMilli()) }
		return
	}
	r.nowFn = now
}

// SetLoanLedger records the address permitted to create and resolve
// vouches. The slot can be written exactly once.
func (r *Registry) SetLoanLedger(addr crypto.Address) error {
	if r == nil {
		return errNilState
	}
	if r.loanLedgerSet {
		return ErrUnauthorized
	}
	r.loanLedger = addr
	r.loanLedgerSet = true
	return nil
}

// --- storage keys ---

var (
	relationshipPrefix = []byte("vouch/rel/")
	exposurePrefix     = []byte("vouch/exposure/")
	loanIndexPrefix    = []byte("vouch/loan/")
)

func relationshipKey(loanID uint64, voucher crypto.Address) []byte {
	return []byte(fmt.Sprintf("%s%d/%x", relationshipPrefix, loanID, voucher.Bytes()))
}

func exposureKey(borrower crypto.Address) []byte {
	return []byte(fmt.Sprintf("%s%x", exposurePrefix, borrower.Bytes()))
}

func loanIndexKey(loanID uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", loanIndexPrefix, loanID))
}

type exposureRecord struct {
	Amount *big.Int `json:"amount"`
}

type loanIndex struct {
	Borrower string   `json:"borrower"`
	Vouchers []string `json:"vouchers"`
}

// VouchForLoan accepts a vouch: the voucher stakes stars and a percentage
// of their pool deposit behind the borrower's pending loan. Callable only
// by the loan ledger. Capital feasibility and the exposure cap are checked
// before any stake moves so a rejection leaves no partial state.
func (r *Registry) VouchForLoan(caller crypto.Address, loanID uint64, borrower, voucher crypto.Address, stars uint32, capitalPercent uint8) error {
	if r == nil || r.store == nil {
		return errNilState
	}
	if err := nativecommon.Guard(r.pauses, moduleName); err != nil {
		return err
	}
	if !r.loanLedgerSet || !caller.Equal(r.loanLedger) {
		return ErrUnauthorized
	}

	eligible, err := r.reputation.CanVouch(voucher)
	if err != nil {
		return err
	}
	if !eligible {
		return ErrUnableToVouch
	}
	voucherStars, err := r.reputation.Stars(voucher)
	if err != nil {
		return err
	}
	if voucherStars < stars {
		return ErrNotEnoughStars
	}

	var existing Relationship
	found, err := r.store.KVGet(relationshipKey(loanID, voucher), &existing)
	if err != nil {
		return err
	}
	if found {
		return ErrAlreadyVouched
	}

	if capitalPercent > 100 {
		return ErrNotEnoughCapital
	}
	deposit, err := r.pool.UserDeposit(voucher)
	if err != nil {
		return err
	}
	stakedCapital := new(big.Int).Mul(deposit, big.NewInt(int64(capitalPercent)))
	stakedCapital.Quo(stakedCapital, big.NewInt(100))
	if stakedCapital.Sign() == 0 {
		return ErrZeroAmount
	}
	alreadyStaked, err := r.pool.UserStakedCapital(voucher)
	if err != nil {
		return err
	}
	if new(big.Int).Add(alreadyStaked, stakedCapital).Cmp(deposit) > 0 {
		return ErrNotEnoughCapital
	}

	cfg, err := r.params.Vouching()
	if err != nil {
		return err
	}
	exposure, err := r.exposure(borrower)
	if err != nil {
		return err
	}
	totalLiquidity, err := r.pool.TotalLiquidity()
	if err != nil {
		return err
	}
	maxAllowed := new(big.Int).Mul(totalLiquidity, new(big.Int).SetUint64(cfg.ExposureCap))
	maxAllowed.Quo(maxAllowed, new(big.Int).SetUint64(params.RateScale))
	projected := new(big.Int).Add(exposure, stakedCapital)
	if maxAllowed.Sign() == 0 || projected.Cmp(maxAllowed) > 0 {
		return ErrExposureCapExceeded
	}

	if err := r.reputation.StakeStars(voucher, stars); err != nil {
		return ErrUnableToVouch
	}
	if err := r.pool.IncreaseStakedCapital(r.address, voucher, stakedCapital); err != nil {
		return err
	}

	rel := &Relationship{
		StakedStars:   stars,
		StakedCapital: stakedCapital,
		CreatedAt:     r.nowFn(),
		Status:        StatusActive,
	}
	if err := r.store.KVPut(relationshipKey(loanID, voucher), rel); err != nil {
		return err
	}
	if err := r.store.KVPut(exposureKey(borrower), &exposureRecord{Amount: projected}); err != nil {
		return err
	}

	index, err := r.loanIndex(loanID)
	if err != nil {
		return err
	}
	index.Borrower = hex.EncodeToString(borrower.Bytes())
	index.Vouchers = append(index.Vouchers, hex.EncodeToString(voucher.Bytes()))
	if err := r.store.KVPut(loanIndexKey(loanID), index); err != nil {
		return err
	}

	r.emit(events.VouchCreated{
		LoanID:   loanID,
		Voucher:  voucher.String(),
		Borrower: borrower.String(),
		Stars:    stars,
		Capital:  stakedCapital,
	})
	return nil
}

// VouchesForLoan counts the active relationships backing a loan.
func (r *Registry) VouchesForLoan(loanID uint64) (uint32, error) {
	if r == nil || r.store == nil {
		return 0, errNilState
	}
	index, err := r.loanIndex(loanID)
	if err != nil {
		return 0, err
	}
	var count uint32
	for _, raw := range index.Vouchers {
		voucher, err := decodeVoucher(raw)
		if err != nil {
			return 0, err
		}
		var rel Relationship
		found, err := r.store.KVGet(relationshipKey(loanID, voucher), &rel)
		if err != nil {
			return 0, err
		}
		if found && rel.Status == StatusActive {
			count++
		}
	}
	return count, nil
}

// Exposure returns the borrower's current total staked capital exposure.
func (r *Registry) Exposure(borrower crypto.Address) (*big.Int, error) {
	if r == nil || r.store == nil {
		return nil, errNilState
	}
	return r.exposure(borrower)
}

// ResolveLoan settles every vouch behind the loan exactly once. Successful
// loans return stakes with the reward boost; failed loans forfeit stars,
// slash capital, and hand the aggregate to the pool's default recovery.
// Relationships that already resolved are skipped, making the call
// idempotent per loan. Callable only by the loan ledger.
func (r *Registry) ResolveLoan(caller crypto.Address, loanID uint64, borrower crypto.Address, success bool, loanAmount *big.Int) error {
	if r == nil || r.store == nil {
		return errNilState
	}
	if err := nativecommon.Guard(r.pauses, moduleName); err != nil {
		return err
	}
	if !r.loanLedgerSet || !caller.Equal(r.loanLedger) {
		return ErrUnauthorized
	}

	index, err := r.loanIndex(loanID)
	if err != nil {
		return err
	}

	totalSlashed := big.NewInt(0)
	totalResolved := big.NewInt(0)
	for _, raw := range index.Vouchers {
		voucher, err := decodeVoucher(raw)
		if err != nil {
			return err
		}
		key := relationshipKey(loanID, voucher)
		var rel Relationship
		found, err := r.store.KVGet(key, &rel)
		if err != nil {
			return err
		}
		if !found || rel.Status != StatusActive {
			continue
		}

		if success {
			rel.Status = StatusFulfilled
		} else {
			rel.Status = StatusDefaulted
		}
		if err := r.store.KVPut(key, &rel); err != nil {
			return err
		}

		// Reputation and pool failures for one voucher must not block the
		// remaining relationships or leave the loan unresolvable. Only a
		// completed slash counts toward the recovery aggregate.
		_ = r.reputation.UnstakeStars(voucher, rel.StakedStars, success, borrower)
		if success {
			_ = r.pool.DecreaseStakedCapital(r.address, voucher, rel.StakedCapital)
		} else if err := r.pool.SlashStake(r.address, voucher, rel.StakedCapital); err == nil {
			totalSlashed.Add(totalSlashed, rel.StakedCapital)
		}
		totalResolved.Add(totalResolved, rel.StakedCapital)

		r.emit(events.VouchResolved{
			LoanID:   loanID,
			Voucher:  voucher.String(),
			Borrower: borrower.String(),
			Success:  success,
		})
	}

	if !success && totalResolved.Sign() > 0 {
		if err := r.pool.HandleDefaultRecovery(r.address, totalSlashed, loanAmount); err != nil {
			return err
		}
	}

	if totalResolved.Sign() > 0 {
		exposure, err := r.exposure(borrower)
		if err != nil {
			return err
		}
		remaining := new(big.Int).Sub(exposure, totalResolved)
		if remaining.Sign() <= 0 {
			if err := r.store.KVDelete(exposureKey(borrower)); err != nil {
				return err
			}
		} else if err := r.store.KVPut(exposureKey(borrower), &exposureRecord{Amount: remaining}); err != nil {
			return err
		}
	}
	return r.store.KVDelete(loanIndexKey(loanID))
}

// Relationship returns the stored vouch record for a loan and voucher.
func (r *Registry) Relationship(loanID uint64, voucher crypto.Address) (*Relationship, bool, error) {
	if r == nil || r.store == nil {
		return nil, false, errNilState
	}
	var rel Relationship
	found, err := r.store.KVGet(relationshipKey(loanID, voucher), &rel)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	return &rel, true, nil
}

func (r *Registry) exposure(borrower crypto.Address) (*big.Int, error) {
	var record exposureRecord
	found, err := r.store.KVGet(exposureKey(borrower), &record)
	if err != nil {
		return nil, err
	}
	if !found || record.Amount == nil {
		return big.NewInt(0), nil
	}
	return record.Amount, nil
}

func (r *Registry) loanIndex(loanID uint64) (*loanIndex, error) {
	var index loanIndex
	if _, err := r.store.KVGet(loanIndexKey(loanID), &index); err != nil {
		return nil, err
	}
	return &index, nil
}

func decodeVoucher(raw string) (crypto.Address, error) {
	b, err := hex.DecodeString(raw)
	if err != nil || len(b) != 20 {
		return crypto.Address{}, fmt.Errorf("vouch registry: malformed voucher key %q", raw)
	}
	return crypto.NewAddress(crypto.KleoPrefix, b), nil
}

func (r *Registry) emit(event events.Event) {
	if r == nil || r.emitter == nil {
		return
	}
	r.emitter.Emit(event)
}
