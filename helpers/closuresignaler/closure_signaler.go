// closure_signaler.go provides a utility for signaling the closure of a resource.

// Package closuresignaler provides a utility for signaling the closure of a
// resource together with the reason it was closed.
package closuresignaler

import (
	"context"
	"sync"

	"github.com/xaionaro-go/avinpaint/logger"
)

type ClosureSignaler struct {
	closeOnce sync.Once
	c         chan struct{}
	err       error
}

func New() *ClosureSignaler {
	return &ClosureSignaler{
		c: make(chan struct{}),
	}
}

func (c *ClosureSignaler) CloseChan() <-chan struct{} {
	return c.c
}

func (c *ClosureSignaler) Close(ctx context.Context) {
	c.CloseWithError(ctx, nil)
}

// CloseWithError closes the signaler remembering cause; only the first
// call has any effect.
func (c *ClosureSignaler) CloseWithError(ctx context.Context, cause error) {
	c.closeOnce.Do(func() {
		logger.Debugf(ctx, "closing: %v", cause)
		c.err = cause
		close(c.c)
	})
}

// Err returns the cause passed to CloseWithError; it is nil while open or
// after a plain Close.
func (c *ClosureSignaler) Err() error {
	select {
	case <-c.c:
		return c.err
	default:
		return nil
	}
}

func (c *ClosureSignaler) IsClosed() bool {
	select {
	case <-c.c:
		return true
	default:
		return false
	}
}
