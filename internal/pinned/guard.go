package pinned

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Guard is a FIFO mutex for read-modify-write sequences. When a holder
// releases while others wait, the next waiter is admitted after a short
// handoff delay instead of immediately.
type Guard struct {
	sem     *semaphore.Weighted
	handoff time.Duration
	waiting atomic.Int32
}

func NewGuard(handoff time.Duration) *Guard {
	return &Guard{sem: semaphore.NewWeighted(1), handoff: handoff}
}

// Acquire blocks until the guard is held or ctx is done. Waiters are
// admitted in arrival order. The returned release func may be called any
// number of times; only the first call releases.
func (g *Guard) Acquire(ctx context.Context) (release func(), err error) {
	g.waiting.Add(1)
	err = g.sem.Acquire(ctx, 1)
	g.waiting.Add(-1)
	if err != nil {
		return nil, err
	}
	var once sync.Once
	return func() { once.Do(g.release) }, nil
}

func (g *Guard) release() {
	if g.handoff > 0 && g.waiting.Load() > 0 {
		time.AfterFunc(g.handoff, func() { g.sem.Release(1) })
		return
	}
	g.sem.Release(1)
}

// Waiting returns how many callers are blocked in Acquire.
func (g *Guard) Waiting() int {
	return int(g.waiting.Load())
}

// Do runs fn while holding the guard. The guard is released on every exit
// path, including a panic in fn.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	release, err := g.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}
