package closuresignaler

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClosureSignaler(t *testing.T) {
	ctx := context.Background()
	c := New()
	require.False(t, c.IsClosed())
	require.NoError(t, c.Err())

	cause := fmt.Errorf("process exited")
	c.CloseWithError(ctx, cause)
	c.CloseWithError(ctx, fmt.Errorf("second"))
	c.Close(ctx)

	require.True(t, c.IsClosed())
	require.Equal(t, cause, c.Err())
	select {
	case <-c.CloseChan():
	default:
		t.Fatal("the close channel is expected to be closed")
	}
}
