package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avinpaint/frame"
	"github.com/xaionaro-go/avinpaint/inpaint"
	"github.com/xaionaro-go/avinpaint/mask"
	"github.com/xaionaro-go/avinpaint/pipeline"
	"github.com/xaionaro-go/avinpaint/types"
)

const sampleYAML = `
frame_rate: 30000/1001
masking_strategy: static
inpaint_backend: classical
max_duration_seconds: 12.5
guidance_text: an empty street
regions:
  - {x1: 10, y1: 10, x2: 30, y2: 30}
  - {x1: 0, y1: 50, x2: 64, y2: 64}
region_padding: 2
mask_dilation: 1
channel_mode: grayscale
workers: 3
classical:
  radius: 7
  smoothing: 1.5
generator:
  command: /usr/bin/sd-inpaint
  args: [--fp16]
  call_timeout: 90s
encoder:
  codec: libx264
  bit_rate: 4M
  options:
    preset: veryfast
`

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "avinpaint.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	require.Equal(t, types.Rational{Num: 30000, Den: 1001}, cfg.FrameRate)
	require.Equal(t, pipeline.MaskingStrategyStatic, cfg.MaskingStrategy)
	require.Equal(t, pipeline.InpaintBackendClassical, cfg.InpaintBackend)
	require.Equal(t, 12500*time.Millisecond, cfg.MaxDuration().Get())
	require.Equal(t, []mask.Region{{X1: 10, Y1: 10, X2: 30, Y2: 30}, {X1: 0, Y1: 50, X2: 64, Y2: 64}}, cfg.Regions)
	require.Equal(t, frame.ChannelModeGrayscale, cfg.ChannelMode)
	require.Equal(t, 3, cfg.Workers)
	require.Equal(t, 1, cfg.Pipeline().MaskDilation)
	require.Equal(t, 7, cfg.Classical.Radius)
	require.Equal(t, ClassicalEngineNative, cfg.Classical.Engine, "defaults survive partial sections")
	require.Equal(t, "/usr/bin/sd-inpaint", cfg.Generator.Command)
	require.Equal(t, []string{"--fp16"}, cfg.Generator.Args)
	require.Equal(t, 90*time.Second, cfg.Generator.CallTimeout)

	bitRate, err := cfg.EncoderBitRate()
	require.NoError(t, err)
	require.Equal(t, uint64(4000000), bitRate)
	require.Equal(t, types.DictionaryItems{{Key: "preset", Value: "veryfast"}}, cfg.EncoderOptions())

	p := cfg.Pipeline()
	require.Equal(t, cfg.Regions, p.Regions)
	require.Equal(t, 2, p.RegionPadding)
	require.Equal(t, "an empty street", p.GuidanceText)
	require.True(t, p.MaxDuration.IsSet())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("AVINPAINT_FRAME_RATE", "25")
	t.Setenv("AVINPAINT_INPAINT_BACKEND", "generative")
	t.Setenv("AVINPAINT_MAX_DURATION_SECONDS", "0")
	t.Setenv("AVINPAINT_CLASSICAL_RADIUS", "9")
	t.Setenv("AVINPAINT_GENERATOR_COMMAND", "/opt/model/serve")
	t.Setenv("AVINPAINT_CHANNEL_MODE", "color")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	require.Equal(t, types.Rational{Num: 25, Den: 1}, cfg.FrameRate)
	require.Equal(t, pipeline.InpaintBackendGenerative, cfg.InpaintBackend)
	require.False(t, cfg.MaxDuration().IsSet())
	require.Equal(t, 9, cfg.Classical.Radius)
	require.Equal(t, "/opt/model/serve", cfg.Generator.Command)
	require.Equal(t, frame.ChannelModeColor, cfg.ChannelMode)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
	require.Equal(t, types.Rational{Num: 30, Den: 1}, cfg.Pipeline().FrameRate)
}

func TestValidate(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"zero_frame_rate":      func(cfg *Config) { cfg.FrameRate = types.Rational{Num: 0, Den: 1} },
		"negative_duration":    func(cfg *Config) { cfg.MaxDurationSeconds = -1 },
		"unknown_engine":       func(cfg *Config) { cfg.Classical.Engine = "magic" },
		"detector_unspecified": func(cfg *Config) { cfg.MaskingStrategy = pipeline.MaskingStrategyDetector },
		"bad_bit_rate":         func(cfg *Config) { cfg.Encoder.BitRate = "fast" },
		"negative_workers":     func(cfg *Config) { cfg.Workers = -1 },
		"negative_dilation":    func(cfg *Config) { cfg.MaskDilation = -1 },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}

	_, err := Load(writeConfig(t, "masking_strategy: telepathy\n"))
	require.Error(t, err)
}

func TestLoadDefersValidation(t *testing.T) {
	cfg, err := Load(writeConfig(t, "masking_strategy: detector\n"))
	require.NoError(t, err)
	require.Error(t, cfg.Validate())

	cfg.Detector.Command = "/opt/model/detect"
	require.NoError(t, cfg.Validate())
}

func TestBuildClassical(t *testing.T) {
	ctx := context.Background()
	cfg := Default()
	deps, res, err := cfg.Build(ctx)
	require.NoError(t, err)
	defer res.Close(ctx)
	require.NotNil(t, deps.Source)
	require.NotNil(t, deps.Sink)
	require.Nil(t, deps.Detector)
	require.IsType(t, &inpaint.ClassicalFill{}, deps.Classical)

	p, err := pipeline.New(cfg.Pipeline(), deps, nil)
	require.NoError(t, err)
	require.NotNil(t, p)
}

func TestBuildModelUnavailable(t *testing.T) {
	ctx := context.Background()
	for _, command := range []string{"", filepath.Join(t.TempDir(), "no-such-model")} {
		cfg := Default()
		cfg.InpaintBackend = pipeline.InpaintBackendGenerative
		cfg.Generator.Command = command
		_, _, err := cfg.Build(ctx)
		var unavailable inpaint.ErrModelUnavailable
		require.ErrorAs(t, err, &unavailable, command)
	}
}

func TestBytesRoundTrip(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	b, err := cfg.Bytes()
	require.NoError(t, err)

	parsed := Default()
	require.NoError(t, parsed.ParseYAML(b))
	require.Equal(t, cfg, parsed)
}
