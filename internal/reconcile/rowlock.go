package reconcile

import "sync"

// rowLocks allows at most one outstanding mutation per subscription.
type rowLocks struct {
	mu   sync.Mutex
	held map[int64]struct{}
}

func newRowLocks() *rowLocks {
	return &rowLocks{held: make(map[int64]struct{})}
}

// acquire takes the lock of id. It never blocks: if the row is already
// locked ok is false. The returned release is safe to call more than once.
func (l *rowLocks) acquire(id int64) (release func(), ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[id]; busy {
		return nil, false
	}
	l.held[id] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, id)
			l.mu.Unlock()
		})
	}, true
}

func (l *rowLocks) locked(id int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, busy := l.held[id]
	return busy
}
