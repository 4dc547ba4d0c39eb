// frame.go defines the Frame value type carried through the pipeline.

// Package frame provides the decoded picture representation shared by all
// pipeline stages.
package frame

import (
	"fmt"
	"image"
	"image/color"

	"github.com/xaionaro-go/avinpaint/types"
)

// Frame is a dense 8-bit pixel buffer.
//
// Color frames are packed BGR (3 channels), grayscale frames have a single
// channel. A Frame is treated as immutable once produced: stages that modify
// pixels return a new Frame.
type Frame struct {
	Width    int
	Height   int
	Channels int
	Pix      []byte
}

// New returns a zeroed frame.
func New(width, height, channels int) Frame {
	return Frame{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]byte, width*height*channels),
	}
}

func (f Frame) String() string {
	return fmt.Sprintf("Frame(%dx%dx%d)", f.Width, f.Height, f.Channels)
}

func (f Frame) Resolution() types.Resolution {
	return types.Resolution{Width: uint32(f.Width), Height: uint32(f.Height)}
}

func (f Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.Width, f.Height)
}

func (f Frame) Stride() int {
	return f.Width * f.Channels
}

// Offset returns the index of the first sample of pixel (x, y) in Pix.
func (f Frame) Offset(x, y int) int {
	return y*f.Stride() + x*f.Channels
}

// Validate checks that the buffer length agrees with the declared geometry.
func (f Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", f.Width, f.Height)
	}
	if f.Channels != 1 && f.Channels != 3 {
		return fmt.Errorf("unsupported channel count %d", f.Channels)
	}
	if len(f.Pix) != f.Width*f.Height*f.Channels {
		return fmt.Errorf("pixel buffer length %d does not match %dx%dx%d", len(f.Pix), f.Width, f.Height, f.Channels)
	}
	return nil
}

// SameShape reports whether both frames have equal width, height and depth.
func (f Frame) SameShape(other Frame) bool {
	return f.Width == other.Width && f.Height == other.Height && f.Channels == other.Channels
}

func (f Frame) Clone() Frame {
	pix := make([]byte, len(f.Pix))
	copy(pix, f.Pix)
	f.Pix = pix
	return f
}

// WithPixels returns a frame of the same geometry backed by pix.
func (f Frame) WithPixels(pix []byte) Frame {
	f.Pix = pix
	return f
}

// Mode returns the channel mode matching the frame depth.
func (f Frame) Mode() ChannelMode {
	if f.Channels == 1 {
		return ChannelModeGrayscale
	}
	return ChannelModeColor
}

// ToGray converts a BGR frame into a single-channel frame using the
// ITU-R BT.601 luma weights. Grayscale frames are returned as is.
func (f Frame) ToGray() Frame {
	if f.Channels == 1 {
		return f
	}
	out := New(f.Width, f.Height, 1)
	for i, j := 0, 0; j < len(out.Pix); i, j = i+3, j+1 {
		b, g, r := uint32(f.Pix[i]), uint32(f.Pix[i+1]), uint32(f.Pix[i+2])
		out.Pix[j] = uint8((299*r + 587*g + 114*b + 500) / 1000)
	}
	return out
}

// ToRGBA converts the frame into an opaque RGBA image.
func (f Frame) ToRGBA() *image.RGBA {
	img := image.NewRGBA(f.Bounds())
	n := f.Width * f.Height
	for p := 0; p < n; p++ {
		dst := img.Pix[p*4 : p*4+4]
		switch f.Channels {
		case 1:
			v := f.Pix[p]
			dst[0], dst[1], dst[2] = v, v, v
		default:
			src := f.Pix[p*3 : p*3+3]
			dst[0], dst[1], dst[2] = src[2], src[1], src[0]
		}
		dst[3] = 0xff
	}
	return img
}

// FromImage converts an arbitrary image into a frame of the given mode.
// The image origin is moved to (0, 0).
func FromImage(img image.Image, mode ChannelMode) Frame {
	b := img.Bounds()
	f := New(b.Dx(), b.Dy(), mode.Channels())
	if rgba, ok := img.(*image.RGBA); ok && mode == ChannelModeColor {
		for y := 0; y < f.Height; y++ {
			row := rgba.Pix[rgba.PixOffset(b.Min.X, b.Min.Y+y):]
			out := f.Pix[y*f.Stride():]
			for x := 0; x < f.Width; x++ {
				out[x*3+0] = row[x*4+2]
				out[x*3+1] = row[x*4+1]
				out[x*3+2] = row[x*4+0]
			}
		}
		return f
	}
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			c := img.At(b.Min.X+x, b.Min.Y+y)
			off := f.Offset(x, y)
			switch mode {
			case ChannelModeGrayscale:
				f.Pix[off] = color.GrayModel.Convert(c).(color.Gray).Y
			default:
				rgba := color.RGBAModel.Convert(c).(color.RGBA)
				f.Pix[off+0] = rgba.B
				f.Pix[off+1] = rgba.G
				f.Pix[off+2] = rgba.R
			}
		}
	}
	return f
}

// Solid returns a color frame filled with the given BGR triple.
func Solid(width, height int, b, g, r uint8) Frame {
	f := New(width, height, 3)
	for i := 0; i < len(f.Pix); i += 3 {
		f.Pix[i], f.Pix[i+1], f.Pix[i+2] = b, g, r
	}
	return f
}
