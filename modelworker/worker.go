// worker.go implements the client side of a model worker.

// Package modelworker talks to external inference models (object detectors,
// generative inpainting) hosted in a separate process.
//
// A Worker is a long-lived handle: starting it spawns the process and waits
// for the model to load, which is expensive, so callers construct it once
// and reuse it across pipeline runs. Messages are msgpack bodies prefixed
// with a 4-byte big-endian length.
package modelworker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/xaionaro-go/avinpaint/helpers/closuresignaler"
	"github.com/xaionaro-go/avinpaint/logger"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/xcontext"
	"github.com/xaionaro-go/xsync"
)

const (
	MethodPing   = "ping"
	MethodDetect = "detect"
	MethodFill   = "fill"
)

const stopTimeout = 2 * time.Second

type Config struct {
	Command string   `yaml:"command" env:"COMMAND"`
	Args    []string `yaml:"args,omitempty" env:"ARGS"`
	Env     []string `yaml:"env,omitempty"  env:"ENV"`

	// StartTimeout bounds the initial ping, i.e. the model load time.
	StartTimeout time.Duration `yaml:"start_timeout" env:"START_TIMEOUT"`

	// CallTimeout bounds every call; zero means only ctx applies.
	CallTimeout time.Duration `yaml:"call_timeout" env:"CALL_TIMEOUT"`
}

type Worker struct {
	*closuresignaler.ClosureSignaler

	// Locker guards nextID and pending.
	Locker      xsync.Mutex
	WriteLocker xsync.Mutex

	Name        string
	CallTimeout time.Duration

	conn    io.ReadWriteCloser
	cmd     *exec.Cmd
	exited  chan struct{}
	nextID  uint64
	pending map[uint64]chan Response
}

// New wraps an already established connection (e.g. a socket to a model
// server); Close closes conn.
func New(
	ctx context.Context,
	name string,
	conn io.ReadWriteCloser,
) *Worker {
	w := newWorker(name, conn)
	w.startReading(ctx)
	return w
}

func newWorker(name string, conn io.ReadWriteCloser) *Worker {
	return &Worker{
		ClosureSignaler: closuresignaler.New(),
		Name:            name,
		conn:            conn,
		pending:         map[uint64]chan Response{},
	}
}

func (w *Worker) startReading(ctx context.Context) {
	observability.Go(ctx, func(ctx context.Context) {
		w.readLoop(ctx)
	})
}

// readLoop routes every response to the call waiting for its ID. Responses
// to abandoned calls are dropped.
func (w *Worker) readLoop(ctx context.Context) {
	logger.Debugf(ctx, "readLoop[%s]", w.Name)
	defer func() { logger.Debugf(ctx, "/readLoop[%s]", w.Name) }()
	for {
		var resp Response
		if err := ReadMessage(w.conn, &resp); err != nil {
			if !w.IsClosed() {
				w.close(ctx, fmt.Errorf("unable to receive a response: %w", err))
			}
			return
		}

		respCh, issued := xsync.DoR2(ctx, &w.Locker, func() (chan Response, bool) {
			respCh, ok := w.pending[resp.ID]
			delete(w.pending, resp.ID)
			return respCh, ok || (resp.ID > 0 && resp.ID <= w.nextID)
		})
		switch {
		case respCh != nil:
			respCh <- resp
		case issued:
			logger.Debugf(ctx, "dropping the response to the abandoned call #%d to '%s'", resp.ID, w.Name)
		default:
			w.close(ctx, ErrProtocol{Reason: fmt.Sprintf("received a response to #%d which was never sent", resp.ID)})
			return
		}
	}
}

type processConn struct {
	io.WriteCloser
	io.Reader
}

// Start spawns cfg.Command and pings it until the model reports it is loaded.
func Start(
	ctx context.Context,
	name string,
	cfg Config,
) (_ret *Worker, _err error) {
	logger.Debugf(ctx, "Start(ctx, '%s', %#+v)", name, cfg)
	defer func() { logger.Debugf(ctx, "/Start(ctx, '%s'): %v", name, _err) }()
	if cfg.Command == "" {
		return nil, fmt.Errorf("no command configured for model worker '%s'", name)
	}

	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Env = append(os.Environ(), cfg.Env...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("unable to get stdin of '%s': %w", cfg.Command, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("unable to get stdout of '%s': %w", cfg.Command, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("unable to get stderr of '%s': %w", cfg.Command, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("unable to start '%s': %w", cfg.Command, err)
	}

	w := newWorker(name, processConn{WriteCloser: stdin, Reader: bufio.NewReader(stdout)})
	w.CallTimeout = cfg.CallTimeout
	w.cmd = cmd
	w.exited = make(chan struct{})
	w.startReading(ctx)

	observability.Go(ctx, func(ctx context.Context) {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			logger.Debugf(ctx, "[%s] %s", name, scanner.Text())
		}
	})
	observability.Go(ctx, func(ctx context.Context) {
		defer close(w.exited)
		err := cmd.Wait()
		logger.Debugf(ctx, "model worker '%s' exited: %v", name, err)
		if err == nil {
			err = fmt.Errorf("the process exited")
		}
		w.CloseWithError(ctx, err)
	})

	pingCtx := ctx
	if cfg.StartTimeout > 0 {
		var cancelFn context.CancelFunc
		pingCtx, cancelFn = context.WithTimeout(ctx, cfg.StartTimeout)
		defer cancelFn()
	}
	if err := w.Ping(pingCtx); err != nil {
		w.Close(ctx)
		return nil, fmt.Errorf("model worker '%s' did not become ready: %w", name, err)
	}
	return w, nil
}

func (w *Worker) String() string {
	return fmt.Sprintf("ModelWorker(%s)", w.Name)
}

func (w *Worker) Ping(ctx context.Context) error {
	var pong string
	return w.Call(ctx, MethodPing, nil, &pong)
}

// Call sends one request and waits for its response. A call interrupted by
// ctx (or CallTimeout) is abandoned: its late response is dropped and the
// worker stays usable.
func (w *Worker) Call(
	ctx context.Context,
	method string,
	params any,
	result any,
) (_err error) {
	logger.Tracef(ctx, "Call(ctx, '%s')", method)
	defer func() { logger.Tracef(ctx, "/Call(ctx, '%s'): %v", method, _err) }()
	if w.CallTimeout > 0 {
		var cancelFn context.CancelFunc
		ctx, cancelFn = context.WithTimeout(ctx, w.CallTimeout)
		defer cancelFn()
	}
	if w.IsClosed() {
		return ErrClosed{Err: w.Err()}
	}

	respCh := make(chan Response, 1)
	id := xsync.DoR1(ctx, &w.Locker, func() uint64 {
		w.nextID++
		w.pending[w.nextID] = respCh
		return w.nextID
	})
	req := Request{ID: id, Method: method, Params: params}

	writeErrCh := make(chan error, 1)
	observability.Go(ctx, func(ctx context.Context) {
		writeErrCh <- xsync.DoR1(ctx, &w.WriteLocker, func() error {
			return WriteMessage(w.conn, req)
		})
	})

	for {
		select {
		case <-ctx.Done():
			w.abandon(ctx, id)
			return ctx.Err()
		case <-w.CloseChan():
			return ErrClosed{Err: w.Err()}
		case err := <-writeErrCh:
			if err != nil {
				w.abandon(ctx, id)
				err = fmt.Errorf("unable to send the request: %w", err)
				w.close(ctx, err)
				return ErrClosed{Err: err}
			}
			writeErrCh = nil
		case resp := <-respCh:
			if resp.Error != "" {
				return ErrRemote{Method: method, Message: resp.Error}
			}
			if result == nil {
				return nil
			}
			if err := msgpack.Unmarshal(resp.Result, result); err != nil {
				return ErrProtocol{Reason: fmt.Sprintf("unable to unmarshal the result of '%s': %v", method, err)}
			}
			return nil
		}
	}
}

func (w *Worker) abandon(ctx context.Context, id uint64) {
	logger.Debugf(ctx, "abandoning the call #%d to '%s': %v", id, w.Name, ctx.Err())
	w.Locker.Do(xcontext.DetachDone(ctx), func() {
		delete(w.pending, id)
	})
}

// Close stops the worker; a spawned process gets its stdin closed and is
// killed if it does not exit in time.
func (w *Worker) Close(ctx context.Context) error {
	w.close(ctx, nil)
	return nil
}

func (w *Worker) close(ctx context.Context, cause error) {
	if w.IsClosed() && w.cmd == nil {
		return
	}
	ctx = xcontext.DetachDone(ctx)
	w.CloseWithError(ctx, cause)
	if err := w.conn.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		logger.Debugf(ctx, "unable to close the connection to '%s': %v", w.Name, err)
	}
	if w.cmd == nil {
		return
	}
	select {
	case <-w.exited:
	case <-time.After(stopTimeout):
		logger.Warnf(ctx, "model worker '%s' did not exit in %v, killing it", w.Name, stopTimeout)
		if err := w.cmd.Process.Kill(); err != nil {
			logger.Errorf(ctx, "unable to kill model worker '%s': %v", w.Name, err)
		}
		<-w.exited
	}
}
