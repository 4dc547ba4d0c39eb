package inpaint

import (
	"context"
	"fmt"
	"image"

	"github.com/xaionaro-go/avinpaint/modelworker"
)

// FillParams is the payload of the "fill" model worker method. Image is
// packed RGBA, Mask is one byte per pixel.
type FillParams struct {
	Image    []byte `msgpack:"image"`
	Mask     []byte `msgpack:"mask"`
	Width    int    `msgpack:"width"`
	Height   int    `msgpack:"height"`
	Guidance string `msgpack:"guidance"`
}

// FillResult is the reply to the "fill" model worker method; Image is
// packed RGBA of Width x Height.
type FillResult struct {
	Image  []byte `msgpack:"image"`
	Width  int    `msgpack:"width"`
	Height int    `msgpack:"height"`
}

// RemoteModel is a Model served by a model worker.
type RemoteModel struct {
	Worker *modelworker.Worker
}

var _ Model = (*RemoteModel)(nil)

func NewRemoteModel(worker *modelworker.Worker) *RemoteModel {
	return &RemoteModel{Worker: worker}
}

func (r *RemoteModel) String() string {
	return fmt.Sprintf("RemoteModel(%s)", r.Worker.Name)
}

func (r *RemoteModel) Fill(
	ctx context.Context,
	img *image.RGBA,
	m *image.Gray,
	guidance string,
) (image.Image, error) {
	b := img.Bounds()
	params := FillParams{
		Image:    packRGBA(img),
		Mask:     packGray(m),
		Width:    b.Dx(),
		Height:   b.Dy(),
		Guidance: guidance,
	}
	var result FillResult
	if err := r.Worker.Call(ctx, modelworker.MethodFill, params, &result); err != nil {
		return nil, err
	}
	if result.Width <= 0 || result.Height <= 0 || len(result.Image) != result.Width*result.Height*4 {
		return nil, fmt.Errorf("received a malformed image: %dx%d with %d bytes", result.Width, result.Height, len(result.Image))
	}
	return &image.RGBA{
		Pix:    result.Image,
		Stride: result.Width * 4,
		Rect:   image.Rect(0, 0, result.Width, result.Height),
	}, nil
}

func packRGBA(img *image.RGBA) []byte {
	b := img.Bounds()
	rowLen := b.Dx() * 4
	if img.Stride == rowLen && b.Min == (image.Point{}) {
		return img.Pix[:rowLen*b.Dy()]
	}
	out := make([]byte, 0, rowLen*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := img.PixOffset(b.Min.X, y)
		out = append(out, img.Pix[off:off+rowLen]...)
	}
	return out
}

func packGray(img *image.Gray) []byte {
	b := img.Bounds()
	rowLen := b.Dx()
	if img.Stride == rowLen && b.Min == (image.Point{}) {
		return img.Pix[:rowLen*b.Dy()]
	}
	out := make([]byte, 0, rowLen*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := img.PixOffset(b.Min.X, y)
		out = append(out, img.Pix[off:off+rowLen]...)
	}
	return out
}
