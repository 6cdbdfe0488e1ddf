package pipeline

import "sync"

// KeyLock is an arena of per-key mutexes. Pipeline stages hold the
// security's lock while appending to the ledger so appends for one
// security are strictly ordered; different securities never contend.
// Locks are created lazily and kept for the process lifetime, bounded
// by the number of securities.
type KeyLock struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewKeyLock creates an empty lock arena
func NewKeyLock() *KeyLock {
	return &KeyLock{locks: map[string]*sync.Mutex{}}
}

// Lock acquires the mutex for a key, creating it on first use.
// The returned function releases it.
func (k *KeyLock) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
