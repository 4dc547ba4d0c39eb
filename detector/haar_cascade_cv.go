//go:build with_cv
// +build with_cv

package detector

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/xaionaro-go/avinpaint/frame"
	"github.com/xaionaro-go/avinpaint/helpers/closuresignaler"
	"github.com/xaionaro-go/avinpaint/logger"
	"github.com/xaionaro-go/avinpaint/mask"
	"github.com/xaionaro-go/xsync"
	"gocv.io/x/gocv"
)

const HaarCascadeLabel = "haar"

type HaarCascadeParams struct {
	ScaleFactor  float64
	MinNeighbors int
	MinSize      image.Point
}

func DefaultHaarCascadeParams() HaarCascadeParams {
	return HaarCascadeParams{
		ScaleFactor:  1.1,
		MinNeighbors: 3,
	}
}

// HaarCascade detects objects with an OpenCV cascade classifier.
type HaarCascade struct {
	*closuresignaler.ClosureSignaler
	Locker     xsync.Mutex
	Classifier gocv.CascadeClassifier
	Params     HaarCascadeParams
}

var _ mask.Detector = (*HaarCascade)(nil)

func NewHaarCascade(
	classifierXML []byte,
	params HaarCascadeParams,
) (*HaarCascade, error) {
	tempFile, err := os.CreateTemp("", "avinpaint-haar-cascade-classifier-*")
	if err != nil {
		return nil, fmt.Errorf("unable to create a temporary file: %w", err)
	}
	defer os.Remove(tempFile.Name())
	_, err = io.Copy(tempFile, bytes.NewReader(classifierXML))
	tempFile.Close()
	if err != nil {
		return nil, fmt.Errorf("unable to write the classifier XML into file '%s': %w", tempFile.Name(), err)
	}

	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(tempFile.Name()) {
		classifier.Close()
		return nil, fmt.Errorf("unable to load the classifier XML")
	}

	return &HaarCascade{
		ClosureSignaler: closuresignaler.New(),
		Classifier:      classifier,
		Params:          params,
	}, nil
}

func (c *HaarCascade) String() string {
	return "HaarCascade"
}

func (c *HaarCascade) Detect(
	ctx context.Context,
	f frame.Frame,
) (_ret []mask.DetectionBox, _err error) {
	logger.Tracef(ctx, "Detect(ctx, %s)", f)
	defer func() { logger.Tracef(ctx, "/Detect(ctx, %s): %d boxes, %v", f, len(_ret), _err) }()
	if c.IsClosed() {
		return nil, fmt.Errorf("the classifier is closed")
	}

	gray := f
	if f.Channels != 1 {
		gray = f.ToGray()
	}
	mat, err := gocv.NewMatFromBytes(gray.Height, gray.Width, gocv.MatTypeCV8UC1, gray.Pix)
	if err != nil {
		return nil, fmt.Errorf("unable to wrap the frame into a matrix: %w", err)
	}
	defer mat.Close()
	gocv.EqualizeHist(mat, &mat)

	var rects []image.Rectangle
	c.Locker.Do(ctx, func() {
		rects = c.Classifier.DetectMultiScaleWithParams(
			mat,
			c.Params.ScaleFactor,
			c.Params.MinNeighbors,
			0,
			c.Params.MinSize,
			image.Point{},
		)
	})

	boxes := make([]mask.DetectionBox, 0, len(rects))
	for _, rect := range rects {
		boxes = append(boxes, mask.DetectionBox{
			Region: mask.Region{
				X1: rect.Min.X,
				Y1: rect.Min.Y,
				X2: rect.Max.X,
				Y2: rect.Max.Y,
			},
			Label:      HaarCascadeLabel,
			Confidence: 1,
		})
	}
	return boxes, nil
}

func (c *HaarCascade) Close(ctx context.Context) error {
	c.Locker.Do(ctx, func() {
		if c.IsClosed() {
			return
		}
		c.ClosureSignaler.Close(ctx)
		c.Classifier.Close()
	})
	return nil
}
