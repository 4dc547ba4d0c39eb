package framesource

import (
	"fmt"
	"time"
)

// ErrUnreadable means the bytes are not a container libav can open or
// contain no decodable video stream.
type ErrUnreadable struct {
	Err error
}

func (e ErrUnreadable) Error() string {
	return fmt.Sprintf("unable to read the video: %v", e.Err)
}

func (e ErrUnreadable) Unwrap() error {
	return e.Err
}

// ErrEmptyStream means there was nothing to decode.
type ErrEmptyStream struct{}

func (ErrEmptyStream) Error() string {
	return "the video contains no frames"
}

type ErrDurationExceeded struct {
	Duration time.Duration
	Limit    time.Duration
}

func (e ErrDurationExceeded) Error() string {
	return fmt.Sprintf("the video is %v long, which exceeds the limit of %v", e.Duration, e.Limit)
}
