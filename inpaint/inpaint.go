// Package inpaint synthesizes replacement pixels for the masked area of a
// frame.
package inpaint

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/avinpaint/frame"
	"github.com/xaionaro-go/avinpaint/mask"
)

// Inpainter repairs the pixels of f selected by m.
//
// Implementations must keep every pixel outside the mask byte-identical to
// the input and must not modify the input frame.
type Inpainter interface {
	fmt.Stringer
	Repair(ctx context.Context, f frame.Frame, m mask.Mask) (frame.Frame, error)
}

func checkDimensions(f frame.Frame, m mask.Mask) error {
	if f.Width != m.Width || f.Height != m.Height {
		return ErrDimensionMismatch{
			Frame: f.Resolution(),
			Mask:  m.Resolution(),
		}
	}
	return nil
}

// composite takes masked pixels from repaired and the rest from orig.
func composite(orig, repaired frame.Frame, m mask.Mask) frame.Frame {
	out := orig.Clone()
	ch := orig.Channels
	for p, v := range m.Pix {
		if v == mask.Keep {
			continue
		}
		copy(out.Pix[p*ch:p*ch+ch], repaired.Pix[p*ch:p*ch+ch])
	}
	return out
}
