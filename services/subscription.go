package services

import (
	"context"
	"sync"
)

// Subscription is a cancelable stream of snapshots. C is closed once the stream ends.
type Subscription[T any] struct {
	C <-chan T

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// startSubscription runs pump in its own goroutine. emit returns false once the
// subscription is canceled; pump must return promptly after that.
func startSubscription[T any](parent context.Context, buffer int, pump func(ctx context.Context, emit func(T) bool)) *Subscription[T] {
	ctx, cancel := context.WithCancel(parent)
	out := make(chan T, buffer)
	s := &Subscription[T]{C: out, cancel: cancel, done: make(chan struct{})}

	emit := func(v T) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		select {
		case out <- v:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(s.done)
		defer close(out)
		pump(ctx, emit)
	}()
	return s
}

// Cancel stops the stream and returns after its goroutine has exited and released
// the underlying feed subscription. It is safe to call more than once.
func (s *Subscription[T]) Cancel() {
	s.once.Do(s.cancel)
	<-s.done
}
