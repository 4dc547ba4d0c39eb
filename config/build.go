package config

import (
	"context"
	"fmt"
	"os"

	"github.com/xaionaro-go/avinpaint/detector"
	"github.com/xaionaro-go/avinpaint/framesink"
	"github.com/xaionaro-go/avinpaint/framesource"
	"github.com/xaionaro-go/avinpaint/inpaint"
	"github.com/xaionaro-go/avinpaint/logger"
	"github.com/xaionaro-go/avinpaint/mask"
	"github.com/xaionaro-go/avinpaint/modelworker"
	"github.com/xaionaro-go/avinpaint/pipeline"
)

type closer interface {
	Close(context.Context) error
}

type haarCascade interface {
	mask.Detector
	closer
}

// Resources are the long-lived handles (model workers, classifiers)
// started by Build; Close releases them.
type Resources struct {
	closers []closer
}

func (r *Resources) add(c closer) {
	r.closers = append(r.closers, c)
}

func (r *Resources) Close(ctx context.Context) error {
	var result error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(ctx); err != nil {
			logger.Errorf(ctx, "unable to close %v: %v", r.closers[i], err)
			result = err
		}
	}
	r.closers = nil
	return result
}

// Build constructs the collaborators selected by cfg. Model workers are
// started here, once, and reused by every run until Resources is closed.
func (cfg Config) Build(ctx context.Context) (_ pipeline.Dependencies, _ *Resources, _err error) {
	res := &Resources{}
	defer func() {
		if _err != nil {
			res.Close(ctx)
		}
	}()

	bitRate, err := cfg.EncoderBitRate()
	if err != nil {
		return pipeline.Dependencies{}, nil, err
	}
	deps := pipeline.Dependencies{
		Source: framesource.NewDecoder(cfg.TempDir),
		Sink:   framesink.NewEncoder(cfg.TempDir, cfg.Encoder.Codec, bitRate, cfg.EncoderOptions()...),
	}

	if cfg.MaskingStrategy == pipeline.MaskingStrategyDetector {
		deps.Detector, err = cfg.BuildDetector(ctx, res)
		if err != nil {
			return pipeline.Dependencies{}, nil, fmt.Errorf("unable to build the detector: %w", err)
		}
	}

	switch cfg.InpaintBackend {
	case pipeline.InpaintBackendClassical:
		deps.Classical, err = cfg.BuildClassical(ctx)
		if err != nil {
			return pipeline.Dependencies{}, nil, fmt.Errorf("unable to build the classical inpainter: %w", err)
		}
	case pipeline.InpaintBackendGenerative:
		deps.Model, err = cfg.BuildModel(ctx, res)
		if err != nil {
			return pipeline.Dependencies{}, nil, err
		}
	}
	return deps, res, nil
}

func (cfg Config) BuildDetector(ctx context.Context, res *Resources) (mask.Detector, error) {
	if cfg.Detector.Command != "" {
		w, err := modelworker.Start(ctx, "detector", cfg.Detector.Config)
		if err != nil {
			return nil, err
		}
		res.add(w)
		return detector.NewRemote(w, cfg.Detector.MinConfidence, cfg.Detector.Labels...), nil
	}
	if cfg.HaarCascade != "" {
		xml, err := os.ReadFile(cfg.HaarCascade)
		if err != nil {
			return nil, fmt.Errorf("unable to read '%s': %w", cfg.HaarCascade, err)
		}
		d, err := newHaarCascade(xml)
		if err != nil {
			return nil, err
		}
		res.add(d)
		return d, nil
	}
	return nil, pipeline.ErrNoDetector{}
}

func (cfg Config) BuildClassical(ctx context.Context) (inpaint.Inpainter, error) {
	switch cfg.Classical.Engine {
	case ClassicalEngineNative, "":
		return inpaint.NewClassicalFill(cfg.Classical.Radius, cfg.Classical.Smoothing), nil
	case ClassicalEngineOpenCV:
		return newOpenCV(cfg.Classical)
	default:
		return nil, fmt.Errorf("unknown classical engine '%s'", cfg.Classical.Engine)
	}
}

// BuildModel starts the generative model worker; any failure is reported
// as inpaint.ErrModelUnavailable.
func (cfg Config) BuildModel(ctx context.Context, res *Resources) (inpaint.Model, error) {
	if cfg.Generator.Command == "" {
		return nil, inpaint.ErrModelUnavailable{Err: fmt.Errorf("generator.command is not configured")}
	}
	w, err := modelworker.Start(ctx, "generator", cfg.Generator)
	if err != nil {
		return nil, inpaint.ErrModelUnavailable{Err: err}
	}
	res.add(w)
	return inpaint.NewRemoteModel(w), nil
}
