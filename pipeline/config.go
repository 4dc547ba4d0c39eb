package pipeline

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/xaionaro-go/avinpaint/frame"
	"github.com/xaionaro-go/avinpaint/mask"
	"github.com/xaionaro-go/avinpaint/types"
	"github.com/xaionaro-go/typing"
)

type MaskingStrategy int

const (
	MaskingStrategyUndefined = MaskingStrategy(iota)
	MaskingStrategyStatic
	MaskingStrategyDetector
	EndOfMaskingStrategy
)

func (s MaskingStrategy) String() string {
	switch s {
	case MaskingStrategyUndefined:
		return "<undefined>"
	case MaskingStrategyStatic:
		return "static"
	case MaskingStrategyDetector:
		return "detector"
	default:
		return fmt.Sprintf("unknown_strategy_%d", int(s))
	}
}

func ParseMaskingStrategy(s string) (MaskingStrategy, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for c := MaskingStrategyUndefined + 1; c < EndOfMaskingStrategy; c++ {
		if c.String() == s {
			return c, nil
		}
	}
	return MaskingStrategyUndefined, fmt.Errorf("unknown masking strategy '%s'", s)
}

func (s *MaskingStrategy) Set(v string) error {
	parsed, err := ParseMaskingStrategy(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s *MaskingStrategy) Type() string {
	return "masking-strategy"
}

func (s *MaskingStrategy) UnmarshalText(b []byte) error {
	return s.Set(string(b))
}

func (s MaskingStrategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type InpaintBackend int

const (
	InpaintBackendUndefined = InpaintBackend(iota)
	InpaintBackendClassical
	InpaintBackendGenerative
	EndOfInpaintBackend
)

func (b InpaintBackend) String() string {
	switch b {
	case InpaintBackendUndefined:
		return "<undefined>"
	case InpaintBackendClassical:
		return "classical"
	case InpaintBackendGenerative:
		return "generative"
	default:
		return fmt.Sprintf("unknown_backend_%d", int(b))
	}
}

func ParseInpaintBackend(s string) (InpaintBackend, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for c := InpaintBackendUndefined + 1; c < EndOfInpaintBackend; c++ {
		if c.String() == s {
			return c, nil
		}
	}
	return InpaintBackendUndefined, fmt.Errorf("unknown inpainting backend '%s'", s)
}

func (b *InpaintBackend) Set(v string) error {
	parsed, err := ParseInpaintBackend(v)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

func (b *InpaintBackend) Type() string {
	return "inpaint-backend"
}

func (b *InpaintBackend) UnmarshalText(text []byte) error {
	return b.Set(string(text))
}

func (b InpaintBackend) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// Config is fixed for the duration of a run.
type Config struct {
	FrameRate       types.Rational
	MaskingStrategy MaskingStrategy
	InpaintBackend  InpaintBackend
	MaxDuration     typing.Optional[time.Duration]
	GuidanceText    string
	Regions         []mask.Region
	RegionPadding   int

	// MaskDilation grows every generated mask by this many pixels, which
	// also covers soft edges (shadows, anti-aliasing) around the boxes.
	MaskDilation int

	ChannelMode frame.ChannelMode

	// Workers is the number of frames processed concurrently; zero means
	// GOMAXPROCS.
	Workers int
}

func DefaultConfig() Config {
	return Config{
		FrameRate:       types.Rational{Num: 30, Den: 1},
		MaskingStrategy: MaskingStrategyStatic,
		InpaintBackend:  InpaintBackendClassical,
		ChannelMode:     frame.ChannelModeColor,
	}
}

func (cfg Config) workers() int {
	if cfg.Workers > 0 {
		return cfg.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (cfg Config) Validate() error {
	if !cfg.FrameRate.IsPositive() {
		return fmt.Errorf("invalid frame rate %s", cfg.FrameRate)
	}
	switch cfg.MaskingStrategy {
	case MaskingStrategyStatic, MaskingStrategyDetector:
	default:
		return fmt.Errorf("invalid masking strategy %s", cfg.MaskingStrategy)
	}
	switch cfg.InpaintBackend {
	case InpaintBackendClassical, InpaintBackendGenerative:
	default:
		return fmt.Errorf("invalid inpainting backend %s", cfg.InpaintBackend)
	}
	switch cfg.ChannelMode {
	case frame.ChannelModeColor, frame.ChannelModeGrayscale:
	default:
		return fmt.Errorf("invalid channel mode %s", cfg.ChannelMode)
	}
	if cfg.MaxDuration.IsSet() && cfg.MaxDuration.Get() <= 0 {
		return fmt.Errorf("the maximal duration must be positive, got %v", cfg.MaxDuration.Get())
	}
	if cfg.RegionPadding < 0 {
		return fmt.Errorf("the region padding must not be negative, got %d", cfg.RegionPadding)
	}
	if cfg.MaskDilation < 0 {
		return fmt.Errorf("the mask dilation must not be negative, got %d", cfg.MaskDilation)
	}
	if cfg.Workers < 0 {
		return fmt.Errorf("the worker count must not be negative, got %d", cfg.Workers)
	}
	return nil
}
