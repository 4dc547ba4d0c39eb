package detector

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/avinpaint/frame"
	"github.com/xaionaro-go/avinpaint/logger"
	"github.com/xaionaro-go/avinpaint/mask"
	"github.com/xaionaro-go/avinpaint/modelworker"
)

// Remote asks a model worker to find objects.
type Remote struct {
	Worker        *modelworker.Worker
	MinConfidence float64
	Labels        []string
}

var _ mask.Detector = (*Remote)(nil)

func NewRemote(
	worker *modelworker.Worker,
	minConfidence float64,
	labels ...string,
) *Remote {
	return &Remote{
		Worker:        worker,
		MinConfidence: minConfidence,
		Labels:        labels,
	}
}

func (r *Remote) String() string {
	return fmt.Sprintf("RemoteDetector(%s)", r.Worker.Name)
}

func (r *Remote) Detect(
	ctx context.Context,
	f frame.Frame,
) (_ret []mask.DetectionBox, _err error) {
	logger.Tracef(ctx, "Detect(ctx, %s)", f)
	defer func() { logger.Tracef(ctx, "/Detect(ctx, %s): %d boxes, %v", f, len(_ret), _err) }()
	var result DetectResult
	if err := r.Worker.Call(ctx, modelworker.MethodDetect, newDetectParams(f), &result); err != nil {
		return nil, fmt.Errorf("unable to run the detector: %w", err)
	}
	return Filter(result.Detections, r.MinConfidence, r.Labels), nil
}
