package pipeline

import (
	"fmt"
)

// Error is returned by Run when a stage fails; Err is the stage's own error.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrCancelled means the run was stopped through its context.
type ErrCancelled struct {
	Err error
}

func (e ErrCancelled) Error() string {
	return fmt.Sprintf("cancelled: %v", e.Err)
}

func (e ErrCancelled) Unwrap() error {
	return e.Err
}

type ErrMaskCount struct {
	Masks  int
	Frames int
}

func (e ErrMaskCount) Error() string {
	return fmt.Sprintf("received %d masks for %d frames, expected 1 or %d", e.Masks, e.Frames, e.Frames)
}

// ErrShapeChanged means an inpainter returned a frame of another geometry.
type ErrShapeChanged struct {
	FrameIndex int

	// Expected and Actual describe the geometry, e.g. "Frame(64x64x3)".
	Expected string
	Actual   string
}

func (e ErrShapeChanged) Error() string {
	return fmt.Sprintf("the inpainter turned frame #%d from %s into %s", e.FrameIndex, e.Expected, e.Actual)
}

type ErrNoDetector struct{}

func (ErrNoDetector) Error() string {
	return "the detector masking strategy requires a detector"
}
