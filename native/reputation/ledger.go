package reputation

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Kleo-Protocol/kleo-contracts/crypto"
	"github.com/Kleo-Protocol/kleo-contracts/native/params"
)

// stateStore abstracts the subset of state manager functionality required by
// the reputation ledger.
type stateStore interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

type paramSource interface {
	Reputation() (params.Reputation, error)
	Vouching() (params.Vouching, error)
}

var userReputationPrefix = []byte("reputation/user/")

func userReputationKey(addr crypto.Address) []byte {
	return []byte(fmt.Sprintf("%s%x", userReputationPrefix, addr.Bytes()))
}

var (
	// ErrUserNotFound marks operations against an unknown reputation record.
	ErrUserNotFound = errors.New("reputation: user not found")
	// ErrInsufficientStars is returned when staking beyond the free balance.
	ErrInsufficientStars = errors.New("reputation: insufficient stars")
	// ErrInsufficientStakedStars is returned when unstaking beyond the
	// staked balance.
	ErrInsufficientStakedStars = errors.New("reputation: insufficient staked stars")
	// ErrUserBanned rejects stake movements for permanently banned users.
	ErrUserBanned = errors.New("reputation: user banned")
)

// Ledger persists per-user star balances and enforces the staking and
// slashing rules tied to vouching.
type Ledger struct {
	store  stateStore
	params paramSource
	nowFn  func() uint64
}

// NewLedger constructs a ledger bound to the provided storage backend and
// parameter source.
func NewLedger(store stateStore, source paramSource) *Ledger {
	return &Ledger{
		store:  store,
		params: source,
		nowFn:  func() uint64 { return uint64(time.Now().UnixMilli()) },
	}
}

// SetNowFunc overrides the millisecond clock used for cooldown checks.
// Primarily leveraged in tests for deterministic timestamps.
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

func (l *Ledger) now() uint64 {
	if l == nil || l.nowFn == nil {
		return uint64(time.Now().UnixMilli())
	}
	return l.nowFn()
}

func (l *Ledger) load(user crypto.Address) (*UserReputation, bool, error) {
	if l == nil || l.store == nil {
		return nil, false, errors.New("reputation: storage unavailable")
	}
	var rep UserReputation
	ok, err := l.store.KVGet(userReputationKey(user), &rep)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &rep, true, nil
}

func (l *Ledger) persist(user crypto.Address, rep *UserReputation) error {
	return l.store.KVPut(userReputationKey(user), rep)
}

// Stars returns the user's free star balance; unknown users hold zero.
func (l *Ledger) Stars(user crypto.Address) (uint32, error) {
	rep, ok, err := l.load(user)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return rep.Stars, nil
}

// AddStars credits stars to the user, creating the record on first touch.
// Accrual inside the configured cooldown window since account creation is
// ignored, which throttles rapid reputation farming.
func (l *Ledger) AddStars(user crypto.Address, amount uint32) error {
	cfg, err := l.params.Reputation()
	if err != nil {
		return err
	}
	now := l.now()

	rep, ok, err := l.load(user)
	if err != nil {
		return err
	}
	if !ok {
		rep = &UserReputation{Stars: 1, CreationTime: now}
	}
	if now-rep.CreationTime < cfg.CooldownPeriodMs {
		return l.persist(user, rep)
	}
	if amount > math.MaxUint32-rep.Stars {
		rep.Stars = math.MaxUint32
	} else {
		rep.Stars += amount
	}
	return l.persist(user, rep)
}

// CanVouch reports whether the user holds enough stars to vouch and is not
// banned.
func (l *Ledger) CanVouch(user crypto.Address) (bool, error) {
	cfg, err := l.params.Vouching()
	if err != nil {
		return false, err
	}
	rep, ok, err := l.load(user)
	if err != nil {
		return false, err
	}
	if !ok {
		return cfg.MinStarsToVouch == 0, nil
	}
	if rep.Banned {
		return false, nil
	}
	return rep.Stars >= cfg.MinStarsToVouch, nil
}

// StakeStars moves stars from the free balance into the at-stake balance.
func (l *Ledger) StakeStars(user crypto.Address, amount uint32) error {
	rep, ok, err := l.load(user)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUserNotFound
	}
	if rep.Banned {
		return ErrUserBanned
	}
	if amount > rep.Stars {
		return ErrInsufficientStars
	}
	rep.Stars -= amount
	rep.StarsAtStake += amount
	return l.persist(user, rep)
}

// UnstakeStars resolves a previously staked amount. On success the stake is
// returned with the configured boost; on failure the staked stars are
// forfeited. The borrower the vouch backed is recorded in the history.
func (l *Ledger) UnstakeStars(user crypto.Address, amount uint32, success bool, borrower crypto.Address) error {
	rep, ok, err := l.load(user)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUserNotFound
	}
	if rep.Banned {
		return ErrUserBanned
	}
	if amount > rep.StarsAtStake {
		return ErrInsufficientStakedStars
	}
	rep.StarsAtStake -= amount

	if success {
		cfg, err := l.params.Vouching()
		if err != nil {
			return err
		}
		rep.Stars += amount + cfg.Boost
	}
	rep.VouchHistory = append(rep.VouchHistory, VouchStat{
		Borrower:   borrower.String(),
		Successful: success,
	})
	return l.persist(user, rep)
}

// SlashStars saturating-subtracts stars from the user. A user whose stars
// reach zero through slashing is banned permanently.
func (l *Ledger) SlashStars(user crypto.Address, amount uint32) error {
	rep, ok, err := l.load(user)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUserNotFound
	}
	if amount >= rep.Stars {
		rep.Stars = 0
	} else {
		rep.Stars -= amount
	}
	if rep.Stars == 0 {
		rep.Banned = true
	}
	return l.persist(user, rep)
}

// Reputation returns the full record for audit queries.
func (l *Ledger) Reputation(user crypto.Address) (*UserReputation, bool, error) {
	return l.load(user)
}
