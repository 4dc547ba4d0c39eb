package modelworker

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/xaionaro-go/avinpaint/logger"
)

// HandlerFunc handles one method; params is the raw msgpack of Request.Params.
type HandlerFunc func(ctx context.Context, params msgpack.RawMessage) (any, error)

// Serve answers requests read from conn until it is closed or ctx is done.
// "ping" is answered with "pong" unless handlers override it.
func Serve(
	ctx context.Context,
	conn io.ReadWriter,
	handlers map[string]HandlerFunc,
) (_err error) {
	logger.Debugf(ctx, "Serve")
	defer func() { logger.Debugf(ctx, "/Serve: %v", _err) }()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var req incomingRequest
		err := ReadMessage(conn, &req)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrClosedPipe):
			return nil
		default:
			return fmt.Errorf("unable to read a request: %w", err)
		}

		resp := Response{ID: req.ID}
		result, err := dispatch(ctx, handlers, req)
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Result, err = msgpack.Marshal(result)
			if err != nil {
				resp.Error = fmt.Sprintf("unable to marshal the result: %v", err)
				resp.Result = nil
			}
		}
		if err := WriteMessage(conn, resp); err != nil {
			return fmt.Errorf("unable to write the response to #%d: %w", req.ID, err)
		}
	}
}

func dispatch(
	ctx context.Context,
	handlers map[string]HandlerFunc,
	req incomingRequest,
) (any, error) {
	if h, ok := handlers[req.Method]; ok {
		return h(ctx, req.Params)
	}
	if req.Method == MethodPing {
		return "pong", nil
	}
	return nil, fmt.Errorf("unknown method '%s'", req.Method)
}
