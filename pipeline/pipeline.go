// Package pipeline runs the decode, mask, inpaint and encode stages over a
// whole video and reports the progress of the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xaionaro-go/avinpaint/frame"
	"github.com/xaionaro-go/avinpaint/framesink"
	"github.com/xaionaro-go/avinpaint/framesource"
	"github.com/xaionaro-go/avinpaint/inpaint"
	"github.com/xaionaro-go/avinpaint/logger"
	"github.com/xaionaro-go/avinpaint/mask"
	"github.com/xaionaro-go/avinpaint/metrics"
	"github.com/xaionaro-go/avinpaint/types"
	"github.com/xaionaro-go/typing"
	"go.uber.org/atomic"
)

// Source decodes a video into frames.
type Source interface {
	Decode(ctx context.Context, data []byte, maxDuration typing.Optional[time.Duration]) ([]frame.Frame, error)
}

// Sink encodes frames into a video.
type Sink interface {
	Encode(ctx context.Context, frames []frame.Frame, frameRate types.Rational, mode frame.ChannelMode) ([]byte, error)
}

type progressiveSource interface {
	DecodeWithProgress(
		ctx context.Context,
		data []byte,
		maxDuration typing.Optional[time.Duration],
		onProgress framesource.ProgressFunc,
	) ([]frame.Frame, error)
}

type progressiveSink interface {
	EncodeWithProgress(
		ctx context.Context,
		frames []frame.Frame,
		frameRate types.Rational,
		mode frame.ChannelMode,
		onProgress framesink.ProgressFunc,
	) ([]byte, error)
}

// Dependencies are the collaborators a Pipeline is built from. Model
// handles are constructed by the caller, which also owns their lifetime.
type Dependencies struct {
	Source Source
	Sink   Sink

	// Detector is required by MaskingStrategyDetector.
	Detector mask.Detector

	// Classical overrides the built-in classical inpainter.
	Classical inpaint.Inpainter

	// Model serves InpaintBackendGenerative; if nil, every repair fails
	// with inpaint.ErrModelUnavailable.
	Model inpaint.Model
}

type Pipeline struct {
	Config    Config
	Source    Source
	Masker    mask.Generator
	Inpainter inpaint.Inpainter
	Sink      Sink
	Observer  Observer

	latestRun atomic.Pointer[run]
}

func New(
	cfg Config,
	deps Dependencies,
	observer Observer,
) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if deps.Source == nil {
		deps.Source = framesource.NewDecoder("")
	}
	if deps.Sink == nil {
		deps.Sink = framesink.NewEncoder("", "", 0)
	}

	p := &Pipeline{
		Config:   cfg,
		Source:   deps.Source,
		Sink:     deps.Sink,
		Observer: observer,
	}

	switch cfg.MaskingStrategy {
	case MaskingStrategyStatic:
		p.Masker = mask.NewStaticRegions(cfg.Regions, cfg.RegionPadding)
	case MaskingStrategyDetector:
		if deps.Detector == nil {
			return nil, ErrNoDetector{}
		}
		p.Masker = mask.NewDetectorDriven(deps.Detector, cfg.RegionPadding)
	}

	switch cfg.InpaintBackend {
	case InpaintBackendClassical:
		p.Inpainter = deps.Classical
		if p.Inpainter == nil {
			p.Inpainter = inpaint.NewClassicalFill(inpaint.DefaultClassicalRadius, 0)
		}
	case InpaintBackendGenerative:
		p.Inpainter = inpaint.NewGenerativeFill(deps.Model, cfg.GuidanceText)
	}
	return p, nil
}

func (p *Pipeline) String() string {
	return fmt.Sprintf("Pipeline(%s -> %s)", p.Masker, p.Inpainter)
}

// Stage returns the state of the most recently started run. Concurrent
// runs each track their own stage.
func (p *Pipeline) Stage() Stage {
	r := p.latestRun.Load()
	if r == nil {
		return StageIdle
	}
	return r.Stage()
}

// Run turns the given video into a video with the masked content removed.
// Frames keep their order and count. On failure the returned error is a
// *Error naming the failed stage and no bytes are returned.
func (p *Pipeline) Run(
	ctx context.Context,
	videoBytes []byte,
) (_ret []byte, _err error) {
	runID := uuid.New().String()
	ctx = logger.CtxWithField(ctx, "run_id", runID)
	logger.Debugf(ctx, "Run(ctx, %d bytes): %s", len(videoBytes), p)
	defer func() { logger.Debugf(ctx, "/Run(ctx, %d bytes): %d bytes, %v", len(videoBytes), len(_ret), _err) }()
	metrics.InputBytesTotal.Add(float64(len(videoBytes)))

	r := &run{
		Pipeline: p,
		progress: newProgressTracker(p.Observer),
	}
	p.latestRun.Store(r)
	result, err := r.do(ctx, videoBytes)
	if err != nil {
		r.stage.Store(int32(StageFailed))
		var pErr *Error
		if errors.As(err, &pErr) {
			metrics.StageFailuresTotal.WithLabelValues(pErr.Stage.String()).Inc()
		}
		var cancelled ErrCancelled
		if errors.As(err, &cancelled) {
			metrics.RunsTotal.WithLabelValues(metrics.ResultCancelled).Inc()
		} else {
			metrics.RunsTotal.WithLabelValues(metrics.ResultFailed).Inc()
		}
		return nil, err
	}
	r.stage.Store(int32(StageDone))
	r.progress.Report(ctx, StageDone, 1)
	metrics.RunsTotal.WithLabelValues(metrics.ResultOK).Inc()
	metrics.OutputBytesTotal.Add(float64(len(result)))
	return result, nil
}

type run struct {
	*Pipeline
	progress *progressTracker
	stage    atomic.Int32
}

func (r *run) Stage() Stage {
	return Stage(r.stage.Load())
}

func (r *run) enter(ctx context.Context, stage Stage) (context.Context, func()) {
	r.stage.Store(int32(stage))
	ctx = logger.CtxWithField(ctx, "stage", stage.String())
	logger.Debugf(ctx, "entering stage %s", stage)
	r.progress.Report(ctx, stage, 0)
	startedAt := time.Now()
	return ctx, func() {
		metrics.StageDuration.WithLabelValues(stage.String()).Observe(time.Since(startedAt).Seconds())
	}
}

func (r *run) fail(ctx context.Context, stage Stage, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		logger.Debugf(ctx, "cancelled during %s: %v", stage, err)
		return &Error{Stage: stage, Err: ErrCancelled{Err: ctxErr}}
	}
	logger.Errorf(ctx, "%s failed: %v", stage, err)
	return &Error{Stage: stage, Err: err}
}

func (r *run) do(
	ctx context.Context,
	videoBytes []byte,
) ([]byte, error) {
	frames, err := r.decode(ctx, videoBytes)
	if err != nil {
		return nil, r.fail(ctx, StageDecoding, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, r.fail(ctx, StageDecoding, err)
	}

	masks, err := r.generateMasks(ctx, frames)
	if err != nil {
		return nil, r.fail(ctx, StageMasking, err)
	}

	repaired, err := r.repair(ctx, frames, masks)
	if err != nil {
		return nil, r.fail(ctx, StageInpainting, err)
	}

	result, err := r.encode(ctx, repaired)
	if err != nil {
		return nil, r.fail(ctx, StageEncoding, err)
	}
	return result, nil
}

func (r *run) decode(ctx context.Context, videoBytes []byte) ([]frame.Frame, error) {
	ctx, done := r.enter(ctx, StageDecoding)
	defer done()

	var frames []frame.Frame
	var err error
	if src, ok := r.Source.(progressiveSource); ok {
		frames, err = src.DecodeWithProgress(ctx, videoBytes, r.Config.MaxDuration, func(fraction float64) {
			r.progress.Report(ctx, StageDecoding, fraction)
		})
	} else {
		frames, err = r.Source.Decode(ctx, videoBytes, r.Config.MaxDuration)
	}
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, framesource.ErrEmptyStream{}
	}
	logger.Debugf(ctx, "decoded %d frames of %s", len(frames), frames[0].Resolution())
	r.progress.Report(ctx, StageDecoding, 1)
	return frames, nil
}

func (r *run) generateMasks(ctx context.Context, frames []frame.Frame) ([]mask.Mask, error) {
	ctx, done := r.enter(ctx, StageMasking)
	defer done()

	var masks []mask.Mask
	if gen, ok := r.Masker.(mask.FrameGenerator); ok {
		masks = make([]mask.Mask, len(frames))
		var completed atomic.Int64
		err := forEachFrame(ctx, len(frames), r.Config.workers(), func(ctx context.Context, idx int) error {
			m, err := gen.GenerateFrame(ctx, idx, frames[idx])
			if err != nil {
				return err
			}
			masks[idx] = m
			r.progress.Report(ctx, StageMasking, float64(completed.Inc())/float64(len(frames)))
			return nil
		})
		if err != nil {
			return nil, err
		}
	} else {
		var err error
		masks, err = r.Masker.Generate(ctx, frames)
		if err != nil {
			return nil, err
		}
	}

	if len(masks) != 1 && len(masks) != len(frames) {
		return nil, ErrMaskCount{Masks: len(masks), Frames: len(frames)}
	}
	if n := r.Config.MaskDilation; n > 0 {
		for idx, m := range masks {
			masks[idx] = m.Dilate(n)
		}
	}
	var area int
	for _, m := range masks {
		area += m.Area()
	}
	if len(masks) == 1 {
		area *= len(frames)
	}
	metrics.MaskedPixelsTotal.Add(float64(area))
	r.progress.Report(ctx, StageMasking, 1)
	return masks, nil
}

func (r *run) repair(
	ctx context.Context,
	frames []frame.Frame,
	masks []mask.Mask,
) ([]frame.Frame, error) {
	ctx, done := r.enter(ctx, StageInpainting)
	defer done()

	gray := r.Config.ChannelMode == frame.ChannelModeGrayscale
	repaired := make([]frame.Frame, len(frames))
	var completed atomic.Int64
	err := forEachFrame(ctx, len(frames), r.Config.workers(), func(ctx context.Context, idx int) error {
		m := masks[0]
		if len(masks) > 1 {
			m = masks[idx]
		}
		f, err := r.Inpainter.Repair(ctx, frames[idx], m)
		if err != nil {
			return fmt.Errorf("frame #%d: %w", idx, err)
		}
		if !f.SameShape(frames[idx]) {
			return ErrShapeChanged{FrameIndex: idx, Expected: frames[idx].String(), Actual: f.String()}
		}
		if gray {
			f = f.ToGray()
		}
		repaired[idx] = f
		metrics.FramesProcessedTotal.Inc()
		r.progress.Report(ctx, StageInpainting, float64(completed.Inc())/float64(len(frames)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return repaired, nil
}

func (r *run) encode(ctx context.Context, frames []frame.Frame) ([]byte, error) {
	ctx, done := r.enter(ctx, StageEncoding)
	defer done()

	if sink, ok := r.Sink.(progressiveSink); ok {
		return sink.EncodeWithProgress(ctx, frames, r.Config.FrameRate, r.Config.ChannelMode, func(fraction float64) {
			r.progress.Report(ctx, StageEncoding, fraction)
		})
	}
	return r.Sink.Encode(ctx, frames, r.Config.FrameRate, r.Config.ChannelMode)
}
