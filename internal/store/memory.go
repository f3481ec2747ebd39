package store

import "sync"

// txRecord pairs a transaction's state with the client that created it.
type txRecord struct {
	owner uint16
	state TxState
}

// MemoryStore is the in-memory TxStore backend.
//
// A single mutex serializes all access, which trivially satisfies the
// per-id linearizability contract. Transaction ids are globally unique:
// the map is keyed by id alone, with the owning client stored alongside.
type MemoryStore struct {
	mu           sync.Mutex
	transactions map[uint32]txRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{transactions: make(map[uint32]txRecord)}
}

// Get implements TxStore. Never returns a non-nil error.
func (s *MemoryStore) Get(client uint16, tx uint32) (TxState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.transactions[tx]
	if !ok || rec.owner != client {
		return TxState{}, false, nil
	}
	return rec.state, true, nil
}

// Put implements TxStore.
func (s *MemoryStore) Put(client uint16, tx uint32, state TxState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.transactions[tx]; ok {
		if rec.owner == client {
			return ErrDuplicateTransaction
		}
		return ErrOwnershipConflict
	}
	s.transactions[tx] = txRecord{owner: client, state: state}
	return nil
}

// Upsert implements TxStore.
func (s *MemoryStore) Upsert(client uint16, tx uint32, state TxState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.transactions[tx]; ok && rec.owner != client {
		return ErrOwnershipConflict
	}
	s.transactions[tx] = txRecord{owner: client, state: state}
	return nil
}

// Len returns the number of stored transactions. Intended for tests and
// diagnostics.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transactions)
}
