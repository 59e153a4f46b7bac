package params

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Kleo-Protocol/kleo-contracts/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(NewDatabaseState(storage.NewMemDB()))
}

func TestStoreDefaultsWhenUnset(t *testing.T) {
	store := newTestStore(t)

	rates, err := store.Rates()
	require.NoError(t, err)
	require.Equal(t, DefaultRates(), rates)

	loans, err := store.Loans()
	require.NoError(t, err)
	require.Equal(t, DefaultLoans(), loans)

	vouching, err := store.Vouching()
	require.NoError(t, err)
	require.Equal(t, DefaultVouching(), vouching)

	reputation, err := store.Reputation()
	require.NoError(t, err)
	require.Equal(t, DefaultReputation(), reputation)
}

func TestStorePersistsOverrides(t *testing.T) {
	store := newTestStore(t)

	rates := DefaultRates()
	rates.BaseRate = 50_000_000
	require.NoError(t, store.SetRates(rates))

	loaded, err := store.Rates()
	require.NoError(t, err)
	require.Equal(t, rates, loaded)

	loans := DefaultLoans()
	loans.GracePeriodMs = 1_000
	require.NoError(t, store.SetLoans(loans))

	loadedLoans, err := store.Loans()
	require.NoError(t, err)
	require.Equal(t, loans, loadedLoans)
}

func TestStoreRejectsInvalidValues(t *testing.T) {
	store := newTestStore(t)

	loans := DefaultLoans()
	loans.MaxStarDiscountPercent = 101
	require.Error(t, store.SetLoans(loans))

	rates := DefaultRates()
	rates.MaxRate = 0
	require.Error(t, store.SetRates(rates))
}

func TestPausesZeroValueWhenUnset(t *testing.T) {
	store := newTestStore(t)

	pauses, err := store.Pauses()
	require.NoError(t, err)
	require.False(t, pauses.IsPaused("pool"))

	pauses.Loan = true
	require.NoError(t, store.SetPauses(pauses))

	loaded, err := store.Pauses()
	require.NoError(t, err)
	require.True(t, loaded.IsPaused("loan"))
	require.False(t, loaded.IsPaused("vouch"))
}
