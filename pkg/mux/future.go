package mux

import "sync"

// future is a single-producer, multi-consumer one-shot completion value. It
// resolves or rejects exactly once; subsequent calls are no-ops that report
// failure via their boolean return, mirroring spec.md §9's "Deferred /
// one-shot completion" primitive. An arbitrary immutable state value may be
// attached at construction time (used to carry a pending accepter's
// ChannelOptions from registration through to the reader loop that
// eventually resolves it).
type future[T any] struct {
	mu    sync.Mutex
	done  chan struct{}
	value T
	err   error

	// state is attached at construction and never mutated; it requires no
	// further synchronization.
	state any
}

// newFuture creates an unresolved future with the given attached state.
func newFuture[T any](state any) *future[T] {
	return &future[T]{
		done:  make(chan struct{}),
		state: state,
	}
}

// resolve completes the future successfully. It returns true if this call
// performed the winning transition, false if the future was already
// resolved or rejected.
func (f *future[T]) resolve(value T) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	select {
	case <-f.done:
		return false
	default:
	}
	f.value = value
	close(f.done)
	return true
}

// reject completes the future with an error. It returns true if this call
// performed the winning transition.
func (f *future[T]) reject(err error) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	select {
	case <-f.done:
		return false
	default:
	}
	f.err = err
	close(f.done)
	return true
}

// isDone reports whether the future has already resolved or rejected,
// without blocking.
func (f *future[T]) isDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// signal returns the channel that becomes readable once the future
// resolves or rejects.
func (f *future[T]) signal() <-chan struct{} {
	return f.done
}

// wait blocks until the future resolves or rejects, or cancel fires first.
// An outcome already in place is returned even if cancel is also ready.
func (f *future[T]) wait(cancel <-chan struct{}) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	default:
	}
	select {
	case <-f.done:
		return f.value, f.err
	case <-cancel:
		var zero T
		return zero, ErrCancelled
	}
}
