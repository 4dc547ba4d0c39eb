// mask.go defines the binary erase mask and the rectangle rasterizer.

// Package mask produces per-frame binary masks of the pixels to erase.
package mask

import (
	"bytes"
	"fmt"
	"image"

	"github.com/xaionaro-go/avinpaint/types"
)

const (
	Keep  = uint8(0)
	Erase = uint8(255)
)

// Mask is a single-channel buffer whose samples are either Keep or Erase.
type Mask struct {
	Width  int
	Height int
	Pix    []byte
}

func New(width, height int) Mask {
	return Mask{
		Width:  width,
		Height: height,
		Pix:    make([]byte, width*height),
	}
}

func (m Mask) String() string {
	return fmt.Sprintf("Mask(%dx%d, area:%d)", m.Width, m.Height, m.Area())
}

func (m Mask) Resolution() types.Resolution {
	return types.Resolution{Width: uint32(m.Width), Height: uint32(m.Height)}
}

// Get reports whether pixel (x, y) is to be erased.
func (m Mask) Get(x, y int) bool {
	return m.Pix[y*m.Width+x] == Erase
}

// Area returns the count of pixels marked for erasure.
func (m Mask) Area() int {
	n := 0
	for _, v := range m.Pix {
		if v == Erase {
			n++
		}
	}
	return n
}

func (m Mask) IsZero() bool {
	for _, v := range m.Pix {
		if v != Keep {
			return false
		}
	}
	return true
}

func (m Mask) Equal(other Mask) bool {
	return m.Width == other.Width && m.Height == other.Height && bytes.Equal(m.Pix, other.Pix)
}

// Bounds returns the smallest rectangle containing every erased pixel, or
// an empty rectangle for an all-zero mask.
func (m Mask) Bounds() image.Rectangle {
	r := image.Rectangle{}
	for y := 0; y < m.Height; y++ {
		row := m.Pix[y*m.Width : (y+1)*m.Width]
		for x, v := range row {
			if v != Erase {
				continue
			}
			r = r.Union(image.Rect(x, y, x+1, y+1))
		}
	}
	return r
}

// ToGray wraps the mask pixels in an image.Gray without copying.
func (m Mask) ToGray() *image.Gray {
	return &image.Gray{
		Pix:    m.Pix,
		Stride: m.Width,
		Rect:   image.Rect(0, 0, m.Width, m.Height),
	}
}

// Dilate returns a copy with every erased pixel grown by radius pixels in
// each direction (square structuring element).
func (m Mask) Dilate(radius int) Mask {
	if radius <= 0 {
		return m
	}
	out := New(m.Width, m.Height)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if !m.Get(x, y) {
				continue
			}
			fillRect(out, image.Rect(x-radius, y-radius, x+radius+1, y+radius+1))
		}
	}
	return out
}

// Rasterize paints every region onto a zero mask of the given size.
// Regions are clipped to the mask bounds; overlapping regions are merged.
func Rasterize(width, height int, regions []Region) Mask {
	m := New(width, height)
	for _, r := range regions {
		fillRect(m, r.Rectangle())
	}
	return m
}

func fillRect(m Mask, r image.Rectangle) {
	r = r.Intersect(image.Rect(0, 0, m.Width, m.Height))
	if r.Empty() {
		return
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := m.Pix[y*m.Width+r.Min.X : y*m.Width+r.Max.X]
		for i := range row {
			row[i] = Erase
		}
	}
}
