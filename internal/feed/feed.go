// Package feed provides an unbounded ordered queue in front of a channel.
package feed

import (
	"context"
	"sync"
)

// Feed delivers pushed values to Out in order. Push never blocks, so a slow
// reader never stalls the writer and never loses values.
type Feed[T any] struct {
	mu     sync.Mutex
	queue  []T
	closed bool
	wake   chan struct{}
	out    chan T
}

func (f *Feed[T]) Out() <-chan T { return f.out }

// New starts the pump. Out is closed once ctx is done or after Finish and
// the queue has drained.
func New[T any](ctx context.Context) *Feed[T] {
	f := &Feed[T]{
		wake: make(chan struct{}, 1),
		out:  make(chan T),
	}
	go f.pump(ctx)
	return f
}

func (f *Feed[T]) Push(v T) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.queue = append(f.queue, v)
	f.mu.Unlock()
	f.signal()
}

// Finish lets queued items drain and then closes Out.
func (f *Feed[T]) Finish() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.signal()
}

func (f *Feed[T]) signal() {
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

func (f *Feed[T]) pump(ctx context.Context) {
	defer close(f.out)
	for {
		f.mu.Lock()
		batch := f.queue
		f.queue = nil
		closed := f.closed
		f.mu.Unlock()

		for _, v := range batch {
			select {
			case f.out <- v:
			case <-ctx.Done():
				return
			}
		}
		if closed && len(batch) == 0 {
			return
		}
		if len(batch) > 0 {
			continue
		}
		select {
		case <-f.wake:
		case <-ctx.Done():
			return
		}
	}
}
