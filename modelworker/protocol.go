// protocol.go implements the length-prefixed msgpack framing spoken with
// model worker processes.

package modelworker

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// MaxMessageSize bounds a single frame; a 4K BGR picture is ~25MiB.
const MaxMessageSize = 256 << 20

// Request is sent to the worker; Params is method-specific.
type Request struct {
	ID     uint64 `msgpack:"id"`
	Method string `msgpack:"method"`
	Params any    `msgpack:"params"`
}

// Response is sent back by the worker; a non-empty Error means the call failed.
type Response struct {
	ID     uint64             `msgpack:"id"`
	Error  string             `msgpack:"error,omitempty"`
	Result msgpack.RawMessage `msgpack:"result,omitempty"`
}

// incomingRequest is Request as seen by the serving side.
type incomingRequest struct {
	ID     uint64             `msgpack:"id"`
	Method string             `msgpack:"method"`
	Params msgpack.RawMessage `msgpack:"params"`
}

// WriteMessage writes a 4-byte big-endian length followed by the msgpack body.
func WriteMessage(w io.Writer, v any) error {
	body, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("unable to marshal the message: %w", err)
	}
	if len(body) > MaxMessageSize {
		return ErrProtocol{Reason: fmt.Sprintf("message of %d bytes exceeds the limit of %d", len(body), MaxMessageSize)}
	}
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(body)))
	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("unable to write the length prefix: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("unable to write the message body: %w", err)
	}
	return nil
}

// ReadMessage reads one frame written by WriteMessage into v.
func ReadMessage(r io.Reader, v any) error {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return err
	}
	size := binary.BigEndian.Uint32(prefix[:])
	if size > MaxMessageSize {
		return ErrProtocol{Reason: fmt.Sprintf("incoming message of %d bytes exceeds the limit of %d", size, MaxMessageSize)}
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return fmt.Errorf("unable to read a message body of %d bytes: %w", size, err)
	}
	if err := msgpack.Unmarshal(body, v); err != nil {
		return ErrProtocol{Reason: fmt.Sprintf("unable to unmarshal the message: %v", err)}
	}
	return nil
}
