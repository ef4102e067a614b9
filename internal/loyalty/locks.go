package loyalty

import "sync"

// CardLocker serializes read-modify-write sequences per card id. Claim, stamp
// activation, redemption and gift use all run under the card's lock so that
// two concurrent requests against the same card cannot race on its stamps,
// stages or owner.
type CardLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewCardLocker creates an empty lock registry.
func NewCardLocker() *CardLocker {
	return &CardLocker{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for cardID, creating it on first use, and returns
// the unlock function.
func (l *CardLocker) Lock(cardID string) func() {
	l.mu.Lock()
	m, ok := l.locks[cardID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[cardID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
