package service

import "sync"

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// sessionLocks hands out one mutex per session code. An entry lives only
// while someone holds or waits for it, so unrelated sessions never share a lock.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sessionLock)}
}

func (l *sessionLocks) acquire(code string) *sessionLock {
	l.mu.Lock()
	sl, ok := l.locks[code]
	if !ok {
		sl = &sessionLock{}
		l.locks[code] = sl
	}
	sl.refs++
	l.mu.Unlock()

	sl.mu.Lock()
	return sl
}

func (l *sessionLocks) release(code string, sl *sessionLock) {
	sl.mu.Unlock()

	l.mu.Lock()
	sl.refs--
	if sl.refs == 0 {
		delete(l.locks, code)
	}
	l.mu.Unlock()
}

func (l *sessionLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
