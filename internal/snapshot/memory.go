package snapshot

import "sync"

// MemoryStore is an in-memory Store used by tests and by callers that do
// not need cancellations to survive a process restart.
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[string]Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[string]Snapshot)}
}

func (s *MemoryStore) Get(uid string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snaps[uid]
	if !ok {
		return Snapshot{}, &NotFoundError{UID: uid}
	}
	return snap, nil
}

func (s *MemoryStore) Put(uid string, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snaps[uid] = snap
	return nil
}
