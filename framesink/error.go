package framesink

import (
	"fmt"

	"github.com/xaionaro-go/avinpaint/frame"
	"github.com/xaionaro-go/avinpaint/types"
)

type ErrEmptySequence struct{}

func (ErrEmptySequence) Error() string {
	return "no frames to encode"
}

type ErrDimensionMismatch struct {
	Index    int
	Expected types.Resolution
	Actual   types.Resolution
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("frame #%d is %s, while the sequence is %s", e.Index, e.Actual, e.Expected)
}

type ErrChannelModeMismatch struct {
	Index    int
	Mode     frame.ChannelMode
	Channels int
}

func (e ErrChannelModeMismatch) Error() string {
	return fmt.Sprintf("frame #%d has %d channels, which does not match mode '%s'", e.Index, e.Channels, e.Mode)
}

type ErrInvalidFrameRate struct {
	FrameRate types.Rational
}

func (e ErrInvalidFrameRate) Error() string {
	return fmt.Sprintf("invalid frame rate %s", e.FrameRate)
}

// ErrWriterInitFailed means the container or the encoder could not be set up.
type ErrWriterInitFailed struct {
	Err error
}

func (e ErrWriterInitFailed) Error() string {
	return fmt.Sprintf("unable to initialize the video writer: %v", e.Err)
}

func (e ErrWriterInitFailed) Unwrap() error {
	return e.Err
}
