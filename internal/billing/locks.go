package billing

import "sync"

// keyedLocks serializes billing mutations per aggregate. Lock granularity is
// the appointment (or a detached invoice), so concurrent payment recording
// and line addition on the same invoice never race on the total or the paid
// flag, while unrelated invoices proceed in parallel.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedLocks) lock(key string) func() {
	k.mu.Lock()
	m := k.locks[key]
	if m == nil {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
