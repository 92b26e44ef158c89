package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bissquit/notify-agent/internal/querycache"
)

var errConnClosed = errors.New("connection closed")

// fakeConn delivers queued messages until dropped or closed.
type fakeConn struct {
	msgs   chan []byte
	done   chan struct{}
	once   sync.Once
	mu     sync.Mutex
	closes int
	err    error
}

func newFakeConn() *fakeConn {
	return &fakeConn{msgs: make(chan []byte, 16), done: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case m := <-c.msgs:
		return m, nil
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.err != nil {
			return nil, c.err
		}
		return nil, errConnClosed
	}
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	c.once.Do(func() { close(c.done) })
	return nil
}

// drop ends the connection from the server side.
func (c *fakeConn) drop(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	c.once.Do(func() { close(c.done) })
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

type dialResult struct {
	conn *fakeConn
	err  error
}

// fakeDialer hands out results in order. When gate is set, Dial blocks
// until it is closed.
type fakeDialer struct {
	mu      sync.Mutex
	results []dialResult
	calls   int
	gate    chan struct{}
}

func (d *fakeDialer) push(r dialResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results = append(d.results, r)
}

func (d *fakeDialer) Dial(_ context.Context, _ string) (Conn, error) {
	d.mu.Lock()
	d.calls++
	gate := d.gate
	var r dialResult
	if len(d.results) > 0 {
		r = d.results[0]
		d.results = d.results[1:]
	} else {
		r = dialResult{err: errors.New("no dial result queued")}
	}
	d.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if r.err != nil {
		return nil, r.err
	}
	return r.conn, nil
}

func (d *fakeDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type fakeTimer struct {
	mu      sync.Mutex
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasPending := !t.stopped && !t.fired
	t.stopped = true
	return wasPending
}

// fakeClock records timers; tests fire them explicitly.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
	delays []time.Duration
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{f: f}
	c.timers = append(c.timers, t)
	c.delays = append(c.delays, d)
	return t
}

func (c *fakeClock) Now() time.Time {
	return time.Unix(1700000000, 0)
}

func (c *fakeClock) armed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// fireLast runs the most recent timer unless it was stopped.
func (c *fakeClock) fireLast() bool {
	c.mu.Lock()
	if len(c.timers) == 0 {
		c.mu.Unlock()
		return false
	}
	t := c.timers[len(c.timers)-1]
	c.mu.Unlock()

	t.mu.Lock()
	if t.stopped || t.fired {
		t.mu.Unlock()
		return false
	}
	t.fired = true
	t.mu.Unlock()

	t.f()
	return true
}

// recordingCache counts invalidations per key.
type recordingCache struct {
	mu     sync.Mutex
	counts map[string]int
}

func newRecordingCache() *recordingCache {
	return &recordingCache{counts: make(map[string]int)}
}

func (c *recordingCache) Invalidate(prefix querycache.Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[prefix.String()]++
	return 1
}

func (c *recordingCache) count(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[key]
}

func (c *recordingCache) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.counts {
		n += v
	}
	return n
}
