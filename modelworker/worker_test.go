package modelworker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

type echoParams struct {
	Text  string `msgpack:"text"`
	Times int    `msgpack:"times"`
}

type echoResult struct {
	Text string `msgpack:"text"`
}

func newTestWorker(
	t *testing.T,
	handlers map[string]HandlerFunc,
) *Worker {
	ctx, cancelFn := context.WithCancel(context.Background())
	client, server := net.Pipe()
	go Serve(ctx, server, handlers)
	w := New(ctx, t.Name(), client)
	t.Cleanup(func() {
		w.Close(context.Background())
		server.Close()
		cancelFn()
	})
	return w
}

func TestWorkerCall(t *testing.T) {
	ctx := context.Background()
	w := newTestWorker(t, map[string]HandlerFunc{
		"echo": func(ctx context.Context, raw msgpack.RawMessage) (any, error) {
			var p echoParams
			if err := msgpack.Unmarshal(raw, &p); err != nil {
				return nil, err
			}
			var buf bytes.Buffer
			for i := 0; i < p.Times; i++ {
				buf.WriteString(p.Text)
			}
			return echoResult{Text: buf.String()}, nil
		},
	})

	require.NoError(t, w.Ping(ctx))

	for i := 1; i <= 3; i++ {
		var r echoResult
		require.NoError(t, w.Call(ctx, "echo", echoParams{Text: "ab", Times: i}, &r))
		require.Len(t, r.Text, 2*i)
	}
}

func TestWorkerRemoteError(t *testing.T) {
	ctx := context.Background()
	w := newTestWorker(t, map[string]HandlerFunc{
		MethodFill: func(ctx context.Context, raw msgpack.RawMessage) (any, error) {
			return nil, errors.New("CUDA out of memory")
		},
	})

	err := w.Call(ctx, MethodFill, nil, nil)
	var remoteErr ErrRemote
	require.ErrorAs(t, err, &remoteErr)
	require.Equal(t, MethodFill, remoteErr.Method)
	require.Contains(t, remoteErr.Message, "CUDA")

	err = w.Call(ctx, "no-such-method", nil, nil)
	require.ErrorAs(t, err, &remoteErr)

	// remote errors keep the worker usable
	require.NoError(t, w.Ping(ctx))
}

func TestWorkerCallCancelledKeepsWorker(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var calls int
	w := newTestWorker(t, map[string]HandlerFunc{
		MethodDetect: func(ctx context.Context, raw msgpack.RawMessage) (any, error) {
			calls++
			if calls == 1 {
				close(started)
				<-release
				return echoResult{Text: "stale"}, nil
			}
			return echoResult{Text: "fresh"}, nil
		},
	})

	ctx, cancelFn := context.WithCancel(context.Background())
	go func() {
		<-started
		cancelFn()
	}()
	err := w.Call(ctx, MethodDetect, nil, nil)
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, w.IsClosed())

	close(release)
	var r echoResult
	require.NoError(t, w.Call(context.Background(), MethodDetect, nil, &r))
	require.Equal(t, "fresh", r.Text)
	require.NoError(t, w.Ping(context.Background()))
}

func TestWorkerUnexpectedResponseID(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	go func() {
		var req incomingRequest
		if err := ReadMessage(server, &req); err != nil {
			return
		}
		WriteMessage(server, Response{ID: req.ID + 41})
	}()
	w := New(context.Background(), t.Name(), client)
	defer w.Close(context.Background())

	err := w.Ping(context.Background())
	var closedErr ErrClosed
	require.ErrorAs(t, err, &closedErr)
	var protoErr ErrProtocol
	require.ErrorAs(t, err, &protoErr)
	require.True(t, w.IsClosed())
}

func TestWorkerCallTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	w := newTestWorker(t, map[string]HandlerFunc{
		MethodFill: func(ctx context.Context, raw msgpack.RawMessage) (any, error) {
			<-release
			return nil, nil
		},
	})
	w.CallTimeout = 50 * time.Millisecond

	err := w.Call(context.Background(), MethodFill, nil, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStartWithoutCommand(t *testing.T) {
	_, err := Start(context.Background(), "detector", Config{})
	require.Error(t, err)
}

func TestReadMessageOversized(t *testing.T) {
	var buf bytes.Buffer
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], MaxMessageSize+1)
	buf.Write(prefix[:])

	var resp Response
	err := ReadMessage(&buf, &resp)
	var protoErr ErrProtocol
	require.ErrorAs(t, err, &protoErr)
}

func TestMessageFraming(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, Request{ID: 7, Method: MethodPing}))
	require.NoError(t, WriteMessage(&buf, Request{ID: 8, Method: MethodDetect, Params: echoParams{Text: "x"}}))

	var first, second incomingRequest
	require.NoError(t, ReadMessage(&buf, &first))
	require.NoError(t, ReadMessage(&buf, &second))
	require.Equal(t, uint64(7), first.ID)
	require.Equal(t, MethodDetect, second.Method)

	var p echoParams
	require.NoError(t, msgpack.Unmarshal(second.Params, &p))
	require.Equal(t, "x", p.Text)
	require.Zero(t, buf.Len())
}
