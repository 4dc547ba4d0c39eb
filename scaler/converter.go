// Package scaler converts pictures between libav frames and frame.Frame,
// changing the pixel format on the way.
package scaler

import (
	"context"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/avinpaint/frame"
	"github.com/xaionaro-go/avinpaint/logger"
	"github.com/xaionaro-go/avinpaint/types"
)

// PixelFormat returns the packed libav pixel format of frame.Frame pixels
// in the given mode.
func PixelFormat(mode frame.ChannelMode) astiav.PixelFormat {
	if mode == frame.ChannelModeGrayscale {
		return astiav.PixelFormatGray8
	}
	return astiav.PixelFormatBgr24
}

type geometry struct {
	Resolution types.Resolution
	Source     astiav.PixelFormat
	Dest       astiav.PixelFormat
}

func (g geometry) String() string {
	return fmt.Sprintf("%s:%s -> %s", g.Resolution, g.Source, g.Dest)
}

// Converter moves pictures between libav frames and frame.Frame. The
// underlying libswscale context is reused while the geometry stays the same.
//
// Not safe for concurrent use.
type Converter struct {
	Flags []astiav.SoftwareScaleContextFlag

	swsCtx   *astiav.SoftwareScaleContext
	geometry geometry
}

func NewConverter(flags ...astiav.SoftwareScaleContextFlag) *Converter {
	if len(flags) == 0 {
		flags = []astiav.SoftwareScaleContextFlag{astiav.SoftwareScaleContextFlagBilinear}
	}
	return &Converter{Flags: flags}
}

func (c *Converter) prepare(
	ctx context.Context,
	g geometry,
) error {
	if c.swsCtx != nil {
		if c.geometry == g {
			return nil
		}
		logger.Debugf(ctx, "the geometry changed from %s to %s, recreating the scale context", c.geometry, g)
		c.free()
	}
	logger.Debugf(ctx, "creating a scale context for %s", g)
	swsCtx, err := astiav.CreateSoftwareScaleContext(
		int(g.Resolution.Width),
		int(g.Resolution.Height),
		g.Source,
		int(g.Resolution.Width),
		int(g.Resolution.Height),
		g.Dest,
		astiav.NewSoftwareScaleContextFlags(c.Flags...),
	)
	if err != nil {
		return fmt.Errorf("unable to create a software scale context for %s: %w", g, err)
	}
	c.swsCtx = swsCtx
	c.geometry = g
	return nil
}

func (c *Converter) scale(src, dst *astiav.Frame) error {
	if err := c.swsCtx.ScaleFrame(src, dst); err != nil {
		return fmt.Errorf("unable to scale a frame: %w", err)
	}
	return nil
}

func (c *Converter) free() {
	c.swsCtx.Free()
	c.swsCtx = nil
	c.geometry = geometry{}
}

// ToFrame converts a decoded picture into a frame.Frame of the given mode
// and the same resolution.
func (c *Converter) ToFrame(
	ctx context.Context,
	src *astiav.Frame,
	mode frame.ChannelMode,
) (_ frame.Frame, _err error) {
	res := types.Resolution{Width: uint32(src.Width()), Height: uint32(src.Height())}
	dstPixFmt := PixelFormat(mode)
	if err := c.prepare(ctx, geometry{Resolution: res, Source: src.PixelFormat(), Dest: dstPixFmt}); err != nil {
		return frame.Frame{}, err
	}

	dst := astiav.AllocFrame()
	defer dst.Free()
	dst.SetWidth(src.Width())
	dst.SetHeight(src.Height())
	dst.SetPixelFormat(dstPixFmt)
	if err := dst.AllocBuffer(0); err != nil {
		return frame.Frame{}, fmt.Errorf("unable to allocate a frame buffer: %w", err)
	}
	if err := c.scale(src, dst); err != nil {
		return frame.Frame{}, err
	}
	pix, err := dst.Data().Bytes(1)
	if err != nil {
		return frame.Frame{}, fmt.Errorf("unable to copy out the pixels: %w", err)
	}
	f := frame.Frame{
		Width:    src.Width(),
		Height:   src.Height(),
		Channels: mode.Channels(),
		Pix:      pix,
	}
	if err := f.Validate(); err != nil {
		return frame.Frame{}, fmt.Errorf("unexpected pixel layout: %w", err)
	}
	return f, nil
}

// FromFrame converts f into a newly allocated libav frame of dstPixFmt;
// the caller frees it.
func (c *Converter) FromFrame(
	ctx context.Context,
	f frame.Frame,
	dstPixFmt astiav.PixelFormat,
) (_ret *astiav.Frame, _err error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	res := f.Resolution()
	srcPixFmt := PixelFormat(f.Mode())
	if err := c.prepare(ctx, geometry{Resolution: res, Source: srcPixFmt, Dest: dstPixFmt}); err != nil {
		return nil, err
	}

	src := astiav.AllocFrame()
	defer src.Free()
	src.SetWidth(f.Width)
	src.SetHeight(f.Height)
	src.SetPixelFormat(srcPixFmt)
	if err := src.AllocBuffer(0); err != nil {
		return nil, fmt.Errorf("unable to allocate a frame buffer: %w", err)
	}
	if err := src.Data().SetBytes(f.Pix, 1); err != nil {
		return nil, fmt.Errorf("unable to copy in the pixels: %w", err)
	}

	dst := astiav.AllocFrame()
	defer func() {
		if _err != nil {
			dst.Free()
		}
	}()
	dst.SetWidth(f.Width)
	dst.SetHeight(f.Height)
	dst.SetPixelFormat(dstPixFmt)
	if err := dst.AllocBuffer(0); err != nil {
		return nil, fmt.Errorf("unable to allocate a frame buffer: %w", err)
	}
	if err := c.scale(src, dst); err != nil {
		return nil, err
	}
	return dst, nil
}

func (c *Converter) Close(ctx context.Context) error {
	if c.swsCtx == nil {
		return nil
	}
	logger.Tracef(ctx, "freeing the scale context for %s", c.geometry)
	c.free()
	return nil
}
