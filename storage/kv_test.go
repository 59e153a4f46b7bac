package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type kvRecord struct {
	Name  string `json:"name"`
	Count uint64 `json:"count"`
}

func TestKVStoreRoundTrip(t *testing.T) {
	store := NewKVStore(NewMemDB())

	var missing kvRecord
	found, err := store.KVGet([]byte("records/absent"), &missing)
	require.NoError(t, err)
	require.False(t, found)

	want := kvRecord{Name: "alpha", Count: 7}
	require.NoError(t, store.KVPut([]byte("records/alpha"), &want))

	var got kvRecord
	found, err = store.KVGet([]byte("records/alpha"), &got)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, want, got)

	require.NoError(t, store.KVDelete([]byte("records/alpha")))
	found, err = store.KVGet([]byte("records/alpha"), &got)
	require.NoError(t, err)
	require.False(t, found)
}

func TestMemDBNotFound(t *testing.T) {
	db := NewMemDB()
	_, err := db.Get([]byte("missing"))
	require.ErrorIs(t, err, ErrNotFound)
}
