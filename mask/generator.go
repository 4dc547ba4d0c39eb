package mask

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/avinpaint/frame"
	"github.com/xaionaro-go/avinpaint/logger"
)

// Generator builds erase masks for a frame sequence.
//
// The result has either exactly one mask, which applies to every frame, or
// one mask per frame in the same order as frames.
type Generator interface {
	fmt.Stringer
	Generate(ctx context.Context, frames []frame.Frame) ([]Mask, error)
}

// FrameGenerator is implemented by strategies that compute masks per frame
// independently, which allows the caller to spread the work across workers.
type FrameGenerator interface {
	Generator
	GenerateFrame(ctx context.Context, frameIndex int, f frame.Frame) (Mask, error)
}

// Detector finds objects in a frame.
type Detector interface {
	fmt.Stringer
	Detect(ctx context.Context, f frame.Frame) ([]DetectionBox, error)
}

// StaticRegions rasterizes a fixed set of caller-chosen regions once, sized
// to the first frame, and broadcasts the mask to every frame.
type StaticRegions struct {
	Regions []Region
	Padding int
}

var _ Generator = (*StaticRegions)(nil)

func NewStaticRegions(regions []Region, padding int) *StaticRegions {
	return &StaticRegions{
		Regions: regions,
		Padding: padding,
	}
}

func (s *StaticRegions) String() string {
	return fmt.Sprintf("StaticRegions(%d regions, padding:%d)", len(s.Regions), s.Padding)
}

func (s *StaticRegions) Generate(
	ctx context.Context,
	frames []frame.Frame,
) (_ []Mask, _err error) {
	logger.Debugf(ctx, "StaticRegions.Generate: %d frames", len(frames))
	defer func() { logger.Debugf(ctx, "/StaticRegions.Generate: %v", _err) }()
	if len(frames) == 0 {
		return nil, ErrNoFrames{}
	}
	ref := frames[0]
	regions := make([]Region, 0, len(s.Regions))
	for _, r := range s.Regions {
		if err := r.Validate(ref.Width, ref.Height); err != nil {
			return nil, err
		}
		regions = append(regions, r.Grow(s.Padding))
	}
	return []Mask{Rasterize(ref.Width, ref.Height, regions)}, nil
}

// DetectorDriven asks the detector for boxes on every frame and rasterizes
// their geometry; labels and confidences do not affect the mask.
type DetectorDriven struct {
	Detector Detector
	Padding  int
}

var _ FrameGenerator = (*DetectorDriven)(nil)

func NewDetectorDriven(detector Detector, padding int) *DetectorDriven {
	return &DetectorDriven{
		Detector: detector,
		Padding:  padding,
	}
}

func (d *DetectorDriven) String() string {
	return fmt.Sprintf("DetectorDriven(%s, padding:%d)", d.Detector, d.Padding)
}

func (d *DetectorDriven) Generate(
	ctx context.Context,
	frames []frame.Frame,
) ([]Mask, error) {
	if len(frames) == 0 {
		return nil, ErrNoFrames{}
	}
	result := make([]Mask, 0, len(frames))
	for idx, f := range frames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m, err := d.GenerateFrame(ctx, idx, f)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, nil
}

func (d *DetectorDriven) GenerateFrame(
	ctx context.Context,
	frameIndex int,
	f frame.Frame,
) (Mask, error) {
	boxes, err := d.Detector.Detect(ctx, f)
	if err != nil {
		return Mask{}, ErrDetectionFailed{FrameIndex: frameIndex, Err: err}
	}
	logger.Tracef(ctx, "frame #%d: %d detections", frameIndex, len(boxes))
	regions := make([]Region, 0, len(boxes))
	for _, box := range boxes {
		regions = append(regions, box.Region.Grow(d.Padding))
	}
	return Rasterize(f.Width, f.Height, regions), nil
}
