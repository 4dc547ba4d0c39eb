package frame

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameRGBARoundTrip(t *testing.T) {
	f := New(4, 3, 3)
	for i := range f.Pix {
		f.Pix[i] = uint8(i * 7)
	}

	img := f.ToRGBA()
	require.Equal(t, image.Rect(0, 0, 4, 3), img.Bounds())

	c := img.RGBAAt(1, 2)
	off := f.Offset(1, 2)
	require.Equal(t, color.RGBA{R: f.Pix[off+2], G: f.Pix[off+1], B: f.Pix[off], A: 0xff}, c)

	back := FromImage(img, ChannelModeColor)
	require.Equal(t, f, back)
}

func TestFrameFromImageSubImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.SetRGBA(5, 6, color.RGBA{R: 10, G: 20, B: 30, A: 0xff})

	sub := img.SubImage(image.Rect(4, 4, 8, 8))
	f := FromImage(sub, ChannelModeColor)
	require.Equal(t, 4, f.Width)
	require.Equal(t, 4, f.Height)
	off := f.Offset(1, 2)
	require.Equal(t, []byte{30, 20, 10}, f.Pix[off:off+3])
}

func TestFrameToGray(t *testing.T) {
	f := Solid(2, 2, 0, 0, 255)
	g := f.ToGray()
	require.Equal(t, 1, g.Channels)
	require.Equal(t, ChannelModeGrayscale, g.Mode())
	for _, v := range g.Pix {
		require.Equal(t, uint8(76), v)
	}
	require.Equal(t, g, g.ToGray())
	require.NoError(t, g.Validate())
}

func TestFrameCloneIsIndependent(t *testing.T) {
	f := Solid(2, 2, 1, 2, 3)
	c := f.Clone()
	c.Pix[0] = 100
	require.Equal(t, uint8(1), f.Pix[0])
	require.True(t, f.SameShape(c))
}

func TestFrameValidate(t *testing.T) {
	require.Error(t, Frame{}.Validate())
	require.Error(t, Frame{Width: 2, Height: 2, Channels: 4, Pix: make([]byte, 16)}.Validate())
	require.Error(t, Frame{Width: 2, Height: 2, Channels: 3, Pix: make([]byte, 11)}.Validate())
	require.NoError(t, New(2, 2, 3).Validate())
}

func TestParseChannelMode(t *testing.T) {
	for in, expected := range map[string]ChannelMode{
		"":          ChannelModeColor,
		"color":     ChannelModeColor,
		"Grayscale": ChannelModeGrayscale,
		"grey":      ChannelModeGrayscale,
	} {
		m, err := ParseChannelMode(in)
		require.NoError(t, err, in)
		require.Equal(t, expected, m, in)
	}
	_, err := ParseChannelMode("cmyk")
	require.Error(t, err)

	var m ChannelMode
	require.NoError(t, m.UnmarshalText([]byte("gray")))
	require.Equal(t, 1, m.Channels())
	require.Equal(t, "grayscale", m.String())
}
