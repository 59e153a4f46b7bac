package protocol

import (
	"fmt"
	"math/big"

	"github.com/Kleo-Protocol/kleo-contracts/core/types"
	"github.com/Kleo-Protocol/kleo-contracts/crypto"
	"github.com/Kleo-Protocol/kleo-contracts/native/pool"
	"github.com/Kleo-Protocol/kleo-contracts/storage"
)

var (
	poolStateKey      = []byte("pool/state")
	poolUserPrefix    = []byte("pool/user/")
	nativeAccountPref = []byte("account/")
)

func poolUserKey(addr crypto.Address) []byte {
	return []byte(fmt.Sprintf("%s%x", poolUserPrefix, addr.Bytes()))
}

func accountKey(addr crypto.Address) []byte {
	return []byte(fmt.Sprintf("%s%x", nativeAccountPref, addr.Bytes()))
}

// poolState adapts the key-value store to the pool engine's persistence
// interface. Unknown pool state starts empty; unknown user and native
// accounts read as nil so the engine applies its own defaults.
type poolState struct {
	kv *storage.KVStore
}

func newPoolState(kv *storage.KVStore) *poolState {
	return &poolState{kv: kv}
}

func (s *poolState) GetPool() (*pool.PoolState, error) {
	var state pool.PoolState
	if _, err := s.kv.KVGet(poolStateKey, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *poolState) PutPool(state *pool.PoolState) error {
	return s.kv.KVPut(poolStateKey, state)
}

func (s *poolState) GetUserAccount(addr crypto.Address) (*pool.UserAccount, error) {
	var account pool.UserAccount
	found, err := s.kv.KVGet(poolUserKey(addr), &account)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &account, nil
}

func (s *poolState) PutUserAccount(account *pool.UserAccount) error {
	return s.kv.KVPut(poolUserKey(account.Address), account)
}

func (s *poolState) GetAccount(addr crypto.Address) (*types.Account, error) {
	var account types.Account
	found, err := s.kv.KVGet(accountKey(addr), &account)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &account, nil
}

func (s *poolState) PutAccount(addr crypto.Address, account *types.Account) error {
	return s.kv.KVPut(accountKey(addr), account)
}

// creditAccount adds balance to a native account, creating it when absent.
func (s *poolState) creditAccount(addr crypto.Address, amount *big.Int) error {
	account, err := s.GetAccount(addr)
	if err != nil {
		return err
	}
	if account == nil {
		account = &types.Account{}
	}
	account.EnsureDefaults()
	account.Balance = new(big.Int).Add(account.Balance, amount)
	return s.PutAccount(addr, account)
}
