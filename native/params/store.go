package params

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/Kleo-Protocol/kleo-contracts/storage"
)

// StoreState captures the subset of state manager capabilities required by
// the parameter helpers.
type StoreState interface {
	ParamStoreSet(name string, value []byte) error
	ParamStoreGet(name string) ([]byte, bool, error)
}

// Store provides typed accessors for governance-controlled parameters.
type Store struct {
	state StoreState
}

// NewStore constructs a parameter store wrapper using the supplied state
// backend.
func NewStore(state StoreState) *Store {
	return &Store{state: state}
}

func (s *Store) withState() (StoreState, error) {
	if s == nil || s.state == nil {
		return nil, fmt.Errorf("params: state not configured")
	}
	return s.state, nil
}

func (s *Store) set(key string, value interface{}) error {
	state, err := s.withState()
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("params: encode %s: %w", key, err)
	}
	return state.ParamStoreSet(key, encoded)
}

func (s *Store) get(key string, out interface{}) (bool, error) {
	state, err := s.withState()
	if err != nil {
		return false, err
	}
	raw, ok, err := state.ParamStoreGet(key)
	if err != nil {
		return false, err
	}
	if !ok || len(bytes.TrimSpace(raw)) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("params: decode %s: %w", key, err)
	}
	return true, nil
}

// SetRates persists the interest curve parameters.
func (s *Store) SetRates(rates Rates) error {
	if rates.MaxRate == 0 {
		return fmt.Errorf("params: max rate must be positive")
	}
	return s.set(ParamsKeyRates, rates)
}

// Rates loads the persisted interest curve parameters, falling back to the
// genesis defaults when unset.
func (s *Store) Rates() (Rates, error) {
	var rates Rates
	ok, err := s.get(ParamsKeyRates, &rates)
	if err != nil {
		return Rates{}, err
	}
	if !ok {
		return DefaultRates(), nil
	}
	return rates, nil
}

// SetVouching persists the vouch eligibility limits.
func (s *Store) SetVouching(vouching Vouching) error {
	return s.set(ParamsKeyVouching, vouching)
}

// Vouching loads the persisted vouch limits, falling back to defaults.
func (s *Store) Vouching() (Vouching, error) {
	var vouching Vouching
	ok, err := s.get(ParamsKeyVouching, &vouching)
	if err != nil {
		return Vouching{}, err
	}
	if !ok {
		return DefaultVouching(), nil
	}
	return vouching, nil
}

// SetLoans persists the loan tier and lifecycle parameters.
func (s *Store) SetLoans(loans Loans) error {
	if loans.MaxStarDiscountPercent > 100 {
		return fmt.Errorf("params: max star discount must not exceed 100%%")
	}
	return s.set(ParamsKeyLoans, loans)
}

// Loans loads the persisted loan parameters, falling back to defaults.
func (s *Store) Loans() (Loans, error) {
	var loans Loans
	ok, err := s.get(ParamsKeyLoans, &loans)
	if err != nil {
		return Loans{}, err
	}
	if !ok {
		return DefaultLoans(), nil
	}
	return loans, nil
}

// SetReputation persists the star accrual parameters.
func (s *Store) SetReputation(reputation Reputation) error {
	return s.set(ParamsKeyReputation, reputation)
}

// Reputation loads the persisted star accrual parameters, falling back to
// defaults.
func (s *Store) Reputation() (Reputation, error) {
	var reputation Reputation
	ok, err := s.get(ParamsKeyReputation, &reputation)
	if err != nil {
		return Reputation{}, err
	}
	if !ok {
		return DefaultReputation(), nil
	}
	return reputation, nil
}

// SetPauses persists the module pause configuration.
func (s *Store) SetPauses(pauses Pauses) error {
	return s.set(ParamsKeyPauses, pauses)
}

// Pauses loads the persisted pause configuration. When unset, a zero-value
// configuration is returned.
func (s *Store) Pauses() (Pauses, error) {
	var pauses Pauses
	ok, err := s.get(ParamsKeyPauses, &pauses)
	if err != nil {
		return Pauses{}, err
	}
	if !ok {
		return Pauses{}, nil
	}
	return pauses, nil
}

// --- Database-backed state ---

var paramStorePrefix = []byte("params/")

// DatabaseState adapts a storage.Database to the StoreState interface.
type DatabaseState struct {
	db storage.Database
}

// NewDatabaseState wraps the supplied database.
func NewDatabaseState(db storage.Database) *DatabaseState {
	return &DatabaseState{db: db}
}

func paramKey(name string) []byte {
	return append(append([]byte(nil), paramStorePrefix...), name...)
}

// ParamStoreSet stores the raw parameter payload.
func (d *DatabaseState) ParamStoreSet(name string, value []byte) error {
	if d == nil || d.db == nil {
		return fmt.Errorf("params: database not configured")
	}
	return d.db.Put(paramKey(name), value)
}

// ParamStoreGet loads the raw parameter payload.
func (d *DatabaseState) ParamStoreGet(name string) ([]byte, bool, error) {
	if d == nil || d.db == nil {
		return nil, false, fmt.Errorf("params: database not configured")
	}
	raw, err := d.db.Get(paramKey(name))
	if err == storage.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}
