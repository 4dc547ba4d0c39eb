package mask

import (
	"fmt"
)

type ErrInvalidRegion struct {
	Region Region
	Width  int
	Height int
}

func (e ErrInvalidRegion) Error() string {
	return fmt.Sprintf("region %s does not fit a %dx%d frame", e.Region, e.Width, e.Height)
}

type ErrDetectionFailed struct {
	FrameIndex int
	Err        error
}

func (e ErrDetectionFailed) Error() string {
	return fmt.Sprintf("object detection failed on frame #%d: %v", e.FrameIndex, e.Err)
}

func (e ErrDetectionFailed) Unwrap() error {
	return e.Err
}

type ErrNoFrames struct{}

func (ErrNoFrames) Error() string {
	return "no frames to build a mask for"
}
