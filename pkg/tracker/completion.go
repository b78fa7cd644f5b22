package tracker

import (
	"context"
	"sync"
)

// Completion resolves when a refresh has finished, including any clearing refresh that was
// coalesced into it
type Completion struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// CompletedWith returns a Completion that has already resolved with err
func CompletedWith(err error) *Completion {
	completion := newCompletion()
	completion.resolve(err)
	return completion
}

func (c *Completion) resolve(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Err is the result of the last refresh in the chain. Only valid once Done is closed.
func (c *Completion) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

func (c *Completion) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
