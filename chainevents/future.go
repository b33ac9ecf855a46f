package chainevents

import "sync"

// Future is a single-assignment, one-shot result channel. The watcher owns
// the producer end (Resolve); callers hold the consumer end (Done/Err).
// Resolving twice is a no-op, matching spec: an already-resolved future
// cannot be un-resolved by a later chain reorg.
type Future struct {
	once sync.Once
	done chan struct{}
	err  error
}

// NewFuture allocates an unresolved future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolve completes the future with err (nil on success). Only the first
// call has any effect.
func (f *Future) Resolve(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Done returns a channel that's closed once the future resolves.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Err returns the resolution error. Valid only after Done() is closed.
func (f *Future) Err() error {
	return f.err
}
