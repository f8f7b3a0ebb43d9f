package app

import "sync"

// leaseTable grants at most one in-flight request per user key. Acquisition
// is scoped: the caller gets a release func and is expected to defer it, so
// a panic or early return can never leave a user locked out.
type leaseTable struct {
	mu   sync.Mutex
	busy map[string]struct{}
}

func newLeaseTable() *leaseTable {
	return &leaseTable{busy: make(map[string]struct{})}
}

// acquire takes the lease for key. On success it returns a release func and
// true; if the user already holds a lease it returns (nil, false). An empty
// key always succeeds with a no-op release, for callers without a user
// identity.
func (l *leaseTable) acquire(key string) (release func(), ok bool) {
	if key == "" {
		return func() {}, true
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, inFlight := l.busy[key]; inFlight {
		return nil, false
	}
	l.busy[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.busy, key)
			l.mu.Unlock()
		})
	}, true
}
