package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avinpaint/frame"
	"github.com/xaionaro-go/avinpaint/framesource"
	"github.com/xaionaro-go/avinpaint/inpaint"
	"github.com/xaionaro-go/avinpaint/mask"
	"github.com/xaionaro-go/avinpaint/types"
	"github.com/xaionaro-go/typing"
)

type fakeSource struct {
	Frames []frame.Frame
	Err    error
}

func (s *fakeSource) Decode(
	ctx context.Context,
	data []byte,
	maxDuration typing.Optional[time.Duration],
) ([]frame.Frame, error) {
	return s.Frames, s.Err
}

type fakeSink struct {
	Frames    []frame.Frame
	FrameRate types.Rational
	Mode      frame.ChannelMode
	Calls     int
	Err       error
}

func (s *fakeSink) Encode(
	ctx context.Context,
	frames []frame.Frame,
	frameRate types.Rational,
	mode frame.ChannelMode,
) ([]byte, error) {
	s.Calls++
	s.Frames, s.FrameRate, s.Mode = frames, frameRate, mode
	if s.Err != nil {
		return nil, s.Err
	}
	return []byte("encoded"), nil
}

type fakeDetector struct {
	Boxes []mask.DetectionBox
	Err   error
}

func (d *fakeDetector) String() string { return "fakeDetector" }

func (d *fakeDetector) Detect(ctx context.Context, f frame.Frame) ([]mask.DetectionBox, error) {
	return d.Boxes, d.Err
}

type inpainterFunc func(ctx context.Context, f frame.Frame, m mask.Mask) (frame.Frame, error)

func (fn inpainterFunc) String() string { return "inpainterFunc" }

func (fn inpainterFunc) Repair(ctx context.Context, f frame.Frame, m mask.Mask) (frame.Frame, error) {
	return fn(ctx, f, m)
}

// taggedFrames returns frames whose every byte equals the frame index.
func taggedFrames(n, width, height int) []frame.Frame {
	frames := make([]frame.Frame, n)
	for i := range frames {
		frames[i] = frame.Solid(width, height, uint8(i), uint8(i), uint8(i))
	}
	return frames
}

func newPipeline(
	t *testing.T,
	cfg Config,
	deps Dependencies,
	observer Observer,
) *Pipeline {
	p, err := New(cfg, deps, observer)
	require.NoError(t, err)
	return p
}

func TestRunPreservesOrderAndCount(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Workers = 4
	sink := &fakeSink{}
	p := newPipeline(t, cfg, Dependencies{
		Source: &fakeSource{Frames: taggedFrames(37, 8, 8)},
		Sink:   sink,
	}, nil)

	result, err := p.Run(ctx, []byte("input"))
	require.NoError(t, err)
	require.Equal(t, []byte("encoded"), result)
	require.Equal(t, StageDone, p.Stage())

	require.Len(t, sink.Frames, 37)
	for i, f := range sink.Frames {
		require.Equal(t, uint8(i), f.Pix[0], "frame #%d", i)
	}
	require.Equal(t, types.Rational{Num: 30, Den: 1}, sink.FrameRate)
	require.Equal(t, frame.ChannelModeColor, sink.Mode)
}

func TestRunStaticRegion(t *testing.T) {
	ctx := context.Background()
	in := make([]frame.Frame, 3)
	for i := range in {
		f := frame.New(64, 64, 3)
		for p := range f.Pix {
			f.Pix[p] = uint8(p * 7)
		}
		in[i] = f
	}

	cfg := DefaultConfig()
	cfg.Regions = []mask.Region{{X1: 10, Y1: 10, X2: 30, Y2: 30}}
	sink := &fakeSink{}
	p := newPipeline(t, cfg, Dependencies{Source: &fakeSource{Frames: in}, Sink: sink}, nil)
	_, err := p.Run(ctx, []byte("input"))
	require.NoError(t, err)

	m := mask.Rasterize(64, 64, cfg.Regions)
	require.Len(t, sink.Frames, 3)
	for i, out := range sink.Frames {
		for y := 0; y < 64; y++ {
			for x := 0; x < 64; x++ {
				if m.Get(x, y) {
					continue
				}
				off := out.Offset(x, y)
				require.Equal(t, in[i].Pix[off:off+3], out.Pix[off:off+3])
			}
		}
	}
}

func TestRunDetectorDriven(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.MaskingStrategy = MaskingStrategyDetector
	var masked []int
	var locker sync.Mutex
	sink := &fakeSink{}
	p := newPipeline(t, cfg, Dependencies{
		Source: &fakeSource{Frames: taggedFrames(5, 16, 16)},
		Sink:   sink,
		Detector: &fakeDetector{Boxes: []mask.DetectionBox{
			{Region: mask.Region{X1: 2, Y1: 2, X2: 6, Y2: 6}, Label: "logo", Confidence: 0.1},
		}},
		Classical: inpainterFunc(func(ctx context.Context, f frame.Frame, m mask.Mask) (frame.Frame, error) {
			locker.Lock()
			masked = append(masked, m.Area())
			locker.Unlock()
			return f, nil
		}),
	}, nil)

	_, err := p.Run(ctx, []byte("input"))
	require.NoError(t, err)
	require.Equal(t, []int{16, 16, 16, 16, 16}, masked)
}

func TestRunGrayscale(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChannelMode = frame.ChannelModeGrayscale
	sink := &fakeSink{}
	p := newPipeline(t, cfg, Dependencies{Source: &fakeSource{Frames: taggedFrames(4, 8, 8)}, Sink: sink}, nil)
	_, err := p.Run(context.Background(), []byte("input"))
	require.NoError(t, err)
	require.Equal(t, frame.ChannelModeGrayscale, sink.Mode)
	for _, f := range sink.Frames {
		require.Equal(t, 1, f.Channels)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancelFn := context.WithCancel(context.Background())
	defer cancelFn()

	cfg := DefaultConfig()
	cfg.Workers = 1
	sink := &fakeSink{}
	var repaired int
	p := newPipeline(t, cfg, Dependencies{
		Source: &fakeSource{Frames: taggedFrames(10, 8, 8)},
		Sink:   sink,
		Classical: inpainterFunc(func(ctx context.Context, f frame.Frame, m mask.Mask) (frame.Frame, error) {
			repaired++
			if repaired == 2 {
				cancelFn()
			}
			return f, nil
		}),
	}, nil)

	result, err := p.Run(ctx, []byte("input"))
	require.Nil(t, result)
	var pErr *Error
	require.ErrorAs(t, err, &pErr)
	require.Equal(t, StageInpainting, pErr.Stage)
	require.ErrorAs(t, err, &ErrCancelled{})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 2, repaired)
	require.Zero(t, sink.Calls)
	require.Equal(t, StageFailed, p.Stage())
}

func TestRunProgressIsMonotonic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workers = 8
	cfg.MaskingStrategy = MaskingStrategyDetector

	var reports []ProgressReport
	observer := ObserverFunc(func(ctx context.Context, report ProgressReport) {
		reports = append(reports, report)
	})
	p := newPipeline(t, cfg, Dependencies{
		Source:   &fakeSource{Frames: taggedFrames(100, 8, 8)},
		Sink:     &fakeSink{},
		Detector: &fakeDetector{},
	}, observer)

	_, err := p.Run(context.Background(), []byte("input"))
	require.NoError(t, err)

	require.NotEmpty(t, reports)
	for i := 1; i < len(reports); i++ {
		require.GreaterOrEqual(t, reports[i].Fraction, reports[i-1].Fraction)
		require.GreaterOrEqual(t, reports[i].Stage, reports[i-1].Stage)
	}
	assert.Equal(t, StageDecoding, reports[0].Stage)
	assert.Equal(t, 0.0, reports[0].Fraction)
	last := reports[len(reports)-1]
	assert.Equal(t, StageDone, last.Stage)
	assert.Equal(t, 1.0, last.Fraction)

	seen := map[Stage]bool{}
	for _, r := range reports {
		seen[r.Stage] = true
		begin, end := r.Stage.progressRange()
		require.GreaterOrEqual(t, r.Fraction, begin)
		require.LessOrEqual(t, r.Fraction, end)
	}
	for _, stage := range []Stage{StageDecoding, StageMasking, StageInpainting, StageEncoding, StageDone} {
		require.True(t, seen[stage], stage.String())
	}
}

func TestRunFailures(t *testing.T) {
	sourceErr := errors.New("broken container")
	sinkErr := errors.New("disk full")
	detectorErr := errors.New("detector crashed")

	type testCase struct {
		name    string
		cfg     func(*Config)
		deps    Dependencies
		stage   Stage
		errType any
		cause   error
	}
	for _, tc := range []testCase{
		{
			name:  "decode_error",
			deps:  Dependencies{Source: &fakeSource{Err: sourceErr}},
			stage: StageDecoding,
			cause: sourceErr,
		},
		{
			name:    "no_frames",
			deps:    Dependencies{Source: &fakeSource{}},
			stage:   StageDecoding,
			errType: &framesource.ErrEmptyStream{},
		},
		{
			name: "invalid_region",
			cfg: func(cfg *Config) {
				cfg.Regions = []mask.Region{{X1: 0, Y1: 0, X2: 100, Y2: 4}}
			},
			stage:   StageMasking,
			errType: &mask.ErrInvalidRegion{},
		},
		{
			name: "detector_error",
			cfg: func(cfg *Config) {
				cfg.MaskingStrategy = MaskingStrategyDetector
			},
			deps:    Dependencies{Detector: &fakeDetector{Err: detectorErr}},
			stage:   StageMasking,
			errType: &mask.ErrDetectionFailed{},
			cause:   detectorErr,
		},
		{
			name: "model_unavailable",
			cfg: func(cfg *Config) {
				cfg.InpaintBackend = InpaintBackendGenerative
				cfg.Regions = []mask.Region{{X1: 0, Y1: 0, X2: 2, Y2: 2}}
			},
			stage:   StageInpainting,
			errType: &inpaint.ErrModelUnavailable{},
		},
		{
			name:  "encode_error",
			deps:  Dependencies{Sink: &fakeSink{Err: sinkErr}},
			stage: StageEncoding,
			cause: sinkErr,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			if tc.cfg != nil {
				tc.cfg(&cfg)
			}
			deps := tc.deps
			if deps.Source == nil {
				deps.Source = &fakeSource{Frames: taggedFrames(3, 8, 8)}
			}
			if deps.Sink == nil {
				deps.Sink = &fakeSink{}
			}
			p := newPipeline(t, cfg, deps, nil)

			result, err := p.Run(context.Background(), []byte("input"))
			require.Nil(t, result)
			var pErr *Error
			require.ErrorAs(t, err, &pErr)
			require.Equal(t, tc.stage, pErr.Stage)
			require.False(t, errors.As(err, &ErrCancelled{}))
			if tc.errType != nil {
				require.ErrorAs(t, err, tc.errType)
			}
			if tc.cause != nil {
				require.ErrorIs(t, err, tc.cause)
			}
		})
	}
}

func TestNewValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaskingStrategy = MaskingStrategyDetector
	_, err := New(cfg, Dependencies{}, nil)
	require.ErrorAs(t, err, &ErrNoDetector{})

	cfg = DefaultConfig()
	cfg.FrameRate = types.Rational{Num: 0, Den: 1}
	_, err = New(cfg, Dependencies{}, nil)
	require.Error(t, err)

	cfg = DefaultConfig()
	cfg.MaxDuration = typing.Opt(-time.Second)
	_, err = New(cfg, Dependencies{}, nil)
	require.Error(t, err)
}

func TestParseEnums(t *testing.T) {
	s, err := ParseMaskingStrategy("Detector")
	require.NoError(t, err)
	require.Equal(t, MaskingStrategyDetector, s)
	_, err = ParseMaskingStrategy("magic")
	require.Error(t, err)

	var b InpaintBackend
	require.NoError(t, b.UnmarshalText([]byte("generative")))
	require.Equal(t, InpaintBackendGenerative, b)
	_, err = ParseInpaintBackend("")
	require.Error(t, err)
}

func TestForEachFrameFirstErrorWins(t *testing.T) {
	cause := errors.New("boom")
	var visited sync.Map
	err := forEachFrame(context.Background(), 1000, 4, func(ctx context.Context, idx int) error {
		visited.Store(idx, true)
		if idx == 10 {
			return cause
		}
		return nil
	})
	require.ErrorIs(t, err, cause)
}
