// Package config loads the settings of avinpaint from a YAML file and
// environment variables and builds the pipeline collaborators they select.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/dustin/go-humanize"
	"github.com/xaionaro-go/avinpaint/frame"
	"github.com/xaionaro-go/avinpaint/mask"
	"github.com/xaionaro-go/avinpaint/modelworker"
	"github.com/xaionaro-go/avinpaint/pipeline"
	"github.com/xaionaro-go/avinpaint/types"
	"github.com/xaionaro-go/typing"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "AVINPAINT_"

const (
	ClassicalEngineNative = "native"
	ClassicalEngineOpenCV = "opencv"
)

type ClassicalConfig struct {
	Engine       string  `yaml:"engine"        env:"ENGINE"`
	Radius       int     `yaml:"radius"        env:"RADIUS"`
	Smoothing    float64 `yaml:"smoothing"     env:"SMOOTHING"`
	OpenCVMethod string  `yaml:"opencv_method" env:"OPENCV_METHOD"`
}

type DetectorConfig struct {
	modelworker.Config `yaml:",inline"`
	MinConfidence      float64  `yaml:"min_confidence" env:"MIN_CONFIDENCE"`
	Labels             []string `yaml:"labels,omitempty" env:"LABELS"`
}

type EncoderConfig struct {
	Codec string `yaml:"codec" env:"CODEC"`

	// BitRate accepts SI suffixes, e.g. "4M".
	BitRate string            `yaml:"bit_rate" env:"BIT_RATE"`
	Options map[string]string `yaml:"options,omitempty"`
}

type Config struct {
	FrameRate       types.Rational           `yaml:"frame_rate"       env:"FRAME_RATE"`
	MaskingStrategy pipeline.MaskingStrategy `yaml:"masking_strategy" env:"MASKING_STRATEGY"`
	InpaintBackend  pipeline.InpaintBackend  `yaml:"inpaint_backend"  env:"INPAINT_BACKEND"`

	// MaxDurationSeconds of zero disables the limit.
	MaxDurationSeconds float64 `yaml:"max_duration_seconds" env:"MAX_DURATION_SECONDS"`

	GuidanceText  string            `yaml:"guidance_text"  env:"GUIDANCE_TEXT"`
	Regions       []mask.Region     `yaml:"regions,omitempty"`
	RegionPadding int               `yaml:"region_padding" env:"REGION_PADDING"`
	MaskDilation  int               `yaml:"mask_dilation"  env:"MASK_DILATION"`
	ChannelMode   frame.ChannelMode `yaml:"channel_mode"   env:"CHANNEL_MODE"`
	Workers       int               `yaml:"workers"        env:"WORKERS"`

	Classical   ClassicalConfig    `yaml:"classical" envPrefix:"CLASSICAL_"`
	Detector    DetectorConfig     `yaml:"detector"  envPrefix:"DETECTOR_"`
	Generator   modelworker.Config `yaml:"generator" envPrefix:"GENERATOR_"`
	HaarCascade string             `yaml:"haar_cascade" env:"HAAR_CASCADE"`
	Encoder     EncoderConfig      `yaml:"encoder"   envPrefix:"ENCODER_"`
	TempDir     string             `yaml:"temp_dir"  env:"TEMP_DIR"`
}

func Default() Config {
	return Config{
		FrameRate:          types.Rational{Num: 30, Den: 1},
		MaskingStrategy:    pipeline.MaskingStrategyStatic,
		InpaintBackend:     pipeline.InpaintBackendClassical,
		MaxDurationSeconds: 30,
		ChannelMode:        frame.ChannelModeColor,
		Classical: ClassicalConfig{
			Engine: ClassicalEngineNative,
			Radius: 5,
		},
		Detector: DetectorConfig{
			Config: modelworker.Config{
				StartTimeout: 2 * time.Minute,
				CallTimeout:  time.Minute,
			},
			MinConfidence: 0.5,
		},
		Generator: modelworker.Config{
			StartTimeout: 5 * time.Minute,
			CallTimeout:  5 * time.Minute,
		},
	}
}

// Load returns the defaults overridden by the YAML file at path (if path
// is not empty) and then by AVINPAINT_* environment variables.
//
// The result is not validated: callers apply their own overrides (e.g.
// command line flags) first and then call Validate.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("unable to read the config file '%s': %w", path, err)
		}
		if err := cfg.ParseYAML(b); err != nil {
			return Config{}, fmt.Errorf("unable to parse the config file '%s': %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseYAML overrides the fields present in b.
func (cfg *Config) ParseYAML(b []byte) error {
	return yaml.Unmarshal(b, cfg)
}

func (cfg Config) Bytes() ([]byte, error) {
	return yaml.Marshal(cfg)
}

func (cfg *Config) ApplyEnv() error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("unable to parse the environment: %w", err)
	}
	return nil
}

func (cfg Config) MaxDuration() typing.Optional[time.Duration] {
	if cfg.MaxDurationSeconds <= 0 {
		return typing.Optional[time.Duration]{}
	}
	return typing.Opt(time.Duration(cfg.MaxDurationSeconds * float64(time.Second)))
}

func (cfg Config) EncoderBitRate() (uint64, error) {
	if cfg.Encoder.BitRate == "" {
		return 0, nil
	}
	v, _, err := humanize.ParseSI(cfg.Encoder.BitRate)
	if err != nil {
		return 0, fmt.Errorf("unable to parse the bit rate '%s': %w", cfg.Encoder.BitRate, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("negative bit rate '%s'", cfg.Encoder.BitRate)
	}
	return uint64(v), nil
}

func (cfg Config) EncoderOptions() types.DictionaryItems {
	var result types.DictionaryItems
	for k, v := range cfg.Encoder.Options {
		result = append(result, types.DictionaryItem{Key: k, Value: v})
	}
	return result
}

// Pipeline returns the per-run settings.
func (cfg Config) Pipeline() pipeline.Config {
	return pipeline.Config{
		FrameRate:       cfg.FrameRate,
		MaskingStrategy: cfg.MaskingStrategy,
		InpaintBackend:  cfg.InpaintBackend,
		MaxDuration:     cfg.MaxDuration(),
		GuidanceText:    cfg.GuidanceText,
		Regions:         cfg.Regions,
		RegionPadding:   cfg.RegionPadding,
		MaskDilation:    cfg.MaskDilation,
		ChannelMode:     cfg.ChannelMode,
		Workers:         cfg.Workers,
	}
}

func (cfg Config) Validate() error {
	var errs []error
	if err := cfg.Pipeline().Validate(); err != nil {
		errs = append(errs, err)
	}
	if cfg.MaxDurationSeconds < 0 {
		errs = append(errs, fmt.Errorf("max_duration_seconds must not be negative"))
	}
	switch cfg.Classical.Engine {
	case ClassicalEngineNative, ClassicalEngineOpenCV:
	default:
		errs = append(errs, fmt.Errorf("unknown classical engine '%s'", cfg.Classical.Engine))
	}
	if cfg.Classical.Radius < 0 || cfg.Classical.Smoothing < 0 {
		errs = append(errs, fmt.Errorf("classical radius and smoothing must not be negative"))
	}
	if cfg.MaskingStrategy == pipeline.MaskingStrategyDetector &&
		cfg.Detector.Command == "" && cfg.HaarCascade == "" {
		errs = append(errs, fmt.Errorf("the detector masking strategy requires either detector.command or haar_cascade"))
	}
	if _, err := cfg.EncoderBitRate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
