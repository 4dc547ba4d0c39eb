package modelworker

import (
	"fmt"
)

type ErrClosed struct {
	Err error
}

func (e ErrClosed) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model worker is closed: %v", e.Err)
	}
	return "model worker is closed"
}

func (e ErrClosed) Unwrap() error {
	return e.Err
}

type ErrRemote struct {
	Method  string
	Message string
}

func (e ErrRemote) Error() string {
	return fmt.Sprintf("model worker failed to handle '%s': %s", e.Method, e.Message)
}

type ErrProtocol struct {
	Reason string
}

func (e ErrProtocol) Error() string {
	return fmt.Sprintf("model worker protocol violation: %s", e.Reason)
}
