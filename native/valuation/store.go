package valuation

import (
	"creditvault/crypto"
)

type kvStore interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Store persists active-id sets keyed by instrument kind and vault.
type Store struct {
	kv kvStore
}

func NewStore(kv kvStore) *Store {
	return &Store{kv: kv}
}

func activeSetKey(kind string, vault crypto.Address) []byte {
	return []byte("valuation/active/" + kind + "/" + string(vault.Bytes()))
}

// ActiveSetGet loads the set for (kind, vault). A missing record is an empty
// set.
func (s *Store) ActiveSetGet(kind string, vault crypto.Address) (*ActiveSet, error) {
	var ids []uint64
	if _, err := s.kv.KVGet(activeSetKey(kind, vault), &ids); err != nil {
		return nil, err
	}
	return NewActiveSet(ids...), nil
}

// ActiveSetPut stores the arena order of set.
func (s *Store) ActiveSetPut(kind string, vault crypto.Address, set *ActiveSet) error {
	ids := set.IDs()
	return s.kv.KVPut(activeSetKey(kind, vault), ids)
}
