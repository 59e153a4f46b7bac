package storage

import (
	"encoding/json"
	"errors"
	"fmt"
)

// KVStore layers a JSON codec over a raw Database so module ledgers can
// persist typed records. Missing keys surface as found=false rather than an
// error, preserving the designed not-found default at every call site.
type KVStore struct {
	db Database
}

// NewKVStore wraps the supplied database.
func NewKVStore(db Database) *KVStore {
	return &KVStore{db: db}
}

// KVGet decodes the value stored under key into out. The boolean reports
// whether the key existed.
func (s *KVStore) KVGet(key []byte, out interface{}) (bool, error) {
	if s == nil || s.db == nil {
		return false, errors.New("storage: kv store not initialised")
	}
	raw, err := s.db.Get(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("storage: decode %q: %w", key, err)
	}
	return true, nil
}

// KVPut encodes value as JSON and stores it under key.
func (s *KVStore) KVPut(key []byte, value interface{}) error {
	if s == nil || s.db == nil {
		return errors.New("storage: kv store not initialised")
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("storage: encode %q: %w", key, err)
	}
	return s.db.Put(key, encoded)
}

// KVDelete removes the value stored under key.
func (s *KVStore) KVDelete(key []byte) error {
	if s == nil || s.db == nil {
		return errors.New("storage: kv store not initialised")
	}
	return s.db.Delete(key)
}
