package process

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrHandoffUsed is returned by a second Put.
	ErrHandoffUsed = errors.New("handoff value already delivered")

	// ErrHandoffAborted is returned by Get when abort fires before a value
	// arrives.
	ErrHandoffAborted = errors.New("handoff aborted")
)

// Handoff passes exactly one value from a producer to a consumer.
type Handoff[T any] struct {
	ch   chan T
	once sync.Once
}

// NewHandoff creates an empty handoff.
func NewHandoff[T any]() *Handoff[T] {
	return &Handoff[T]{ch: make(chan T, 1)}
}

// Put delivers v. It never blocks; only the first call succeeds.
func (h *Handoff[T]) Put(v T) error {
	err := ErrHandoffUsed
	h.once.Do(func() {
		h.ch <- v
		err = nil
	})
	return err
}

// Get blocks until a value arrives, abort is closed, or ctx is done. A
// value that is already available wins over abort.
func (h *Handoff[T]) Get(ctx context.Context, abort <-chan struct{}) (T, error) {
	var zero T
	select {
	case v := <-h.ch:
		return v, nil
	case <-abort:
		select {
		case v := <-h.ch:
			return v, nil
		default:
			return zero, ErrHandoffAborted
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
