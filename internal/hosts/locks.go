package hosts

import "sync"

// hostLocks hands out one mutex per hostname and forgets it once nobody holds it.
type hostLocks struct {
	mu    sync.Mutex
	locks map[string]*hostLock
}

type hostLock struct {
	sync.Mutex
	refs int
}

func (l *hostLocks) lock(name string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*hostLock)
	}
	hl, ok := l.locks[name]
	if !ok {
		hl = &hostLock{}
		l.locks[name] = hl
	}
	hl.refs++
	l.mu.Unlock()

	hl.Lock()
	return func() {
		hl.Unlock()
		l.mu.Lock()
		hl.refs--
		if hl.refs == 0 {
			delete(l.locks, name)
		}
		l.mu.Unlock()
	}
}
