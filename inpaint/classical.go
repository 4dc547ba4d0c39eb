package inpaint

import (
	"context"
	"fmt"
	"math"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/parallel"
	"github.com/xaionaro-go/avinpaint/frame"
	"github.com/xaionaro-go/avinpaint/logger"
	"github.com/xaionaro-go/avinpaint/mask"
)

const (
	DefaultClassicalRadius = 5
)

// ClassicalFill fills the mask from its border inwards: every pass takes
// the masked pixels adjacent to known ones and assigns them the
// inverse-square-distance weighted mean of the known pixels in the square
// window of the given Radius.
// The result is deterministic.
type ClassicalFill struct {
	Radius int

	// Smoothing is the Gaussian blur radius applied to the filled pixels;
	// zero disables it.
	Smoothing float64
}

var _ Inpainter = (*ClassicalFill)(nil)

func NewClassicalFill(radius int, smoothing float64) *ClassicalFill {
	return &ClassicalFill{
		Radius:    radius,
		Smoothing: smoothing,
	}
}

func (c *ClassicalFill) String() string {
	return fmt.Sprintf("ClassicalFill(radius:%d, smoothing:%g)", c.Radius, c.Smoothing)
}

func (c *ClassicalFill) Repair(
	ctx context.Context,
	f frame.Frame,
	m mask.Mask,
) (_ret frame.Frame, _err error) {
	logger.Tracef(ctx, "ClassicalFill.Repair(ctx, %s, %s)", f, m)
	defer func() { logger.Tracef(ctx, "/ClassicalFill.Repair(ctx, %s, %s): %v", f, m, _err) }()
	if err := checkDimensions(f, m); err != nil {
		return frame.Frame{}, err
	}
	if m.IsZero() {
		return f, nil
	}

	radius := c.Radius
	if radius < 1 {
		radius = DefaultClassicalRadius
	}

	out := f.Clone()
	known := make([]bool, len(m.Pix))
	var pending []int
	for p, v := range m.Pix {
		if v == mask.Keep {
			known[p] = true
			continue
		}
		pending = append(pending, p)
	}
	if len(pending) == len(m.Pix) {
		logger.Warnf(ctx, "the whole %s is masked, nothing to propagate from", f)
		return f, nil
	}

	ch := f.Channels
	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return frame.Frame{}, err
		}

		var layer, rest []int
		for _, p := range pending {
			if hasKnownNeighbor(known, f.Width, f.Height, p) {
				layer = append(layer, p)
			} else {
				rest = append(rest, p)
			}
		}

		values := make([]byte, len(layer)*ch)
		parallel.Line(len(layer), func(start, end int) {
			for i := start; i < end; i++ {
				weightedMean(out, known, layer[i], radius, values[i*ch:i*ch+ch])
			}
		})
		for i, p := range layer {
			copy(out.Pix[p*ch:p*ch+ch], values[i*ch:i*ch+ch])
			known[p] = true
		}
		pending = rest
	}

	if c.Smoothing > 0 {
		smoothMasked(out, m, c.Smoothing)
	}
	return out, nil
}

func hasKnownNeighbor(known []bool, width, height, p int) bool {
	x, y := p%width, p/width
	for dy := -1; dy <= 1; dy++ {
		ny := y + dy
		if ny < 0 || ny >= height {
			continue
		}
		for dx := -1; dx <= 1; dx++ {
			nx := x + dx
			if nx < 0 || nx >= width || (dx == 0 && dy == 0) {
				continue
			}
			if known[ny*width+nx] {
				return true
			}
		}
	}
	return false
}

func weightedMean(
	f frame.Frame,
	known []bool,
	p int,
	radius int,
	dst []byte,
) {
	x, y := p%f.Width, p/f.Width
	ch := f.Channels
	var sum [3]float64
	var total float64
	for ny := max(0, y-radius); ny <= min(f.Height-1, y+radius); ny++ {
		for nx := max(0, x-radius); nx <= min(f.Width-1, x+radius); nx++ {
			q := ny*f.Width + nx
			if !known[q] {
				continue
			}
			d2 := (nx-x)*(nx-x) + (ny-y)*(ny-y)
			w := 1 / float64(d2)
			for c := 0; c < ch; c++ {
				sum[c] += w * float64(f.Pix[q*ch+c])
			}
			total += w
		}
	}
	for c := 0; c < ch; c++ {
		dst[c] = uint8(math.Round(sum[c] / total))
	}
}

// smoothMasked blurs the mask's bounding box, grown by the kernel reach so
// every masked pixel sees the same neighbourhood as in a full-frame blur,
// and copies back only masked pixels.
func smoothMasked(f frame.Frame, m mask.Mask, radius float64) {
	reach := int(math.Ceil(2*radius + 1))
	area := m.Bounds().Inset(-reach).Intersect(f.Bounds())
	if area.Empty() {
		return
	}
	blurred := blur.Gaussian(f.ToRGBA().SubImage(area), radius)
	ch := f.Channels
	for y := area.Min.Y; y < area.Max.Y; y++ {
		for x := area.Min.X; x < area.Max.X; x++ {
			if !m.Get(x, y) {
				continue
			}
			src := blurred.Pix[blurred.PixOffset(x, y):]
			off := f.Offset(x, y)
			switch ch {
			case 1:
				f.Pix[off] = src[0]
			default:
				f.Pix[off+0] = src[2]
				f.Pix[off+1] = src[1]
				f.Pix[off+2] = src[0]
			}
		}
	}
}
