package inpaint

import (
	"fmt"

	"github.com/xaionaro-go/avinpaint/types"
)

type ErrDimensionMismatch struct {
	Frame types.Resolution
	Mask  types.Resolution
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("the mask is %s while the frame is %s", e.Mask, e.Frame)
}

// ErrModelUnavailable is returned when a generative model cannot be loaded
// or fails while processing a frame.
type ErrModelUnavailable struct {
	Err error
}

func (e ErrModelUnavailable) Error() string {
	return fmt.Sprintf("the inpainting model is unavailable: %v", e.Err)
}

func (e ErrModelUnavailable) Unwrap() error {
	return e.Err
}
