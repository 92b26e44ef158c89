package reconcile

import (
	"sync"
	"time"

	"github.com/bissquit/notify-agent/internal/domain"
)

type confirmation struct {
	dests domain.DestinationSet
	at    time.Time
}

// overlay holds optimistic destination sets of rows with a save in flight,
// and sets the server accepted that the canonical list has not caught up
// with yet.
type overlay struct {
	mu        sync.RWMutex
	sets      map[int64]domain.DestinationSet
	confirmed map[int64]confirmation
}

func newOverlay() *overlay {
	return &overlay{
		sets:      make(map[int64]domain.DestinationSet),
		confirmed: make(map[int64]confirmation),
	}
}

func (o *overlay) set(id int64, dests domain.DestinationSet) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sets[id] = dests.Clone()
}

func (o *overlay) get(id int64) (domain.DestinationSet, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	dests, ok := o.sets[id]
	if !ok {
		return nil, false
	}
	return dests.Clone(), true
}

func (o *overlay) clear(id int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.sets, id)
}

// confirm records dests as accepted by the server at.
func (o *overlay) confirm(id int64, dests domain.DestinationSet, at time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.confirmed[id] = confirmation{dests: dests.Clone(), at: at}
}

// confirmedSince returns the confirmed set of a row unless the canonical
// list was loaded after the confirmation, in which case the entry is dropped.
func (o *overlay) confirmedSince(id int64, loadedAt time.Time) (domain.DestinationSet, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	c, ok := o.confirmed[id]
	if !ok {
		return nil, false
	}
	if loadedAt.After(c.at) {
		delete(o.confirmed, id)
		return nil, false
	}
	return c.dests.Clone(), true
}

func (o *overlay) forget(id int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.confirmed, id)
}

func (o *overlay) reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sets = make(map[int64]domain.DestinationSet)
	o.confirmed = make(map[int64]confirmation)
}
