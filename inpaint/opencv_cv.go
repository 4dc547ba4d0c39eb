//go:build with_cv
// +build with_cv

package inpaint

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/avinpaint/frame"
	"github.com/xaionaro-go/avinpaint/logger"
	"github.com/xaionaro-go/avinpaint/mask"
	"gocv.io/x/gocv"
)

type OpenCVMethod int

const (
	OpenCVMethodTelea = OpenCVMethod(iota)
	OpenCVMethodNavierStokes
)

func (m OpenCVMethod) String() string {
	switch m {
	case OpenCVMethodTelea:
		return "telea"
	case OpenCVMethodNavierStokes:
		return "ns"
	default:
		return fmt.Sprintf("unknown_%d", int(m))
	}
}

func (m OpenCVMethod) gocv() gocv.InpaintMethods {
	switch m {
	case OpenCVMethodNavierStokes:
		return gocv.NS
	default:
		return gocv.Telea
	}
}

// OpenCV repairs frames with cv::inpaint.
type OpenCV struct {
	Method OpenCVMethod
	Radius float32
}

var _ Inpainter = (*OpenCV)(nil)

func NewOpenCV(method OpenCVMethod, radius float32) *OpenCV {
	return &OpenCV{
		Method: method,
		Radius: radius,
	}
}

func (o *OpenCV) String() string {
	return fmt.Sprintf("OpenCV(%s, radius:%g)", o.Method, o.Radius)
}

func (o *OpenCV) Repair(
	ctx context.Context,
	f frame.Frame,
	m mask.Mask,
) (_ret frame.Frame, _err error) {
	logger.Tracef(ctx, "OpenCV.Repair(ctx, %s, %s)", f, m)
	defer func() { logger.Tracef(ctx, "/OpenCV.Repair(ctx, %s, %s): %v", f, m, _err) }()
	if err := checkDimensions(f, m); err != nil {
		return frame.Frame{}, err
	}
	if m.IsZero() {
		return f, nil
	}

	matType := gocv.MatTypeCV8UC3
	if f.Channels == 1 {
		matType = gocv.MatTypeCV8UC1
	}
	src, err := gocv.NewMatFromBytes(f.Height, f.Width, matType, f.Pix)
	if err != nil {
		return frame.Frame{}, fmt.Errorf("unable to wrap the frame into a matrix: %w", err)
	}
	defer src.Close()
	maskMat, err := gocv.NewMatFromBytes(m.Height, m.Width, gocv.MatTypeCV8UC1, m.Pix)
	if err != nil {
		return frame.Frame{}, fmt.Errorf("unable to wrap the mask into a matrix: %w", err)
	}
	defer maskMat.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Inpaint(src, maskMat, &dst, o.Radius, o.Method.gocv())

	repaired := f.WithPixels(dst.ToBytes())
	if err := repaired.Validate(); err != nil {
		return frame.Frame{}, fmt.Errorf("unexpected output of cv::inpaint: %w", err)
	}
	return composite(f, repaired, m), nil
}
