package pipeline

import (
	"fmt"
)

type Stage int32

const (
	StageIdle = Stage(iota)
	StageDecoding
	StageMasking
	StageInpainting
	StageEncoding
	StageDone
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageDecoding:
		return "decoding"
	case StageMasking:
		return "masking"
	case StageInpainting:
		return "inpainting"
	case StageEncoding:
		return "encoding"
	case StageDone:
		return "done"
	case StageFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown_stage_%d", int32(s))
	}
}

// progressRange returns the share of the overall progress covered by the
// stage.
func (s Stage) progressRange() (begin, end float64) {
	switch s {
	case StageDecoding:
		return 0, 0.3
	case StageMasking:
		return 0.3, 0.5
	case StageInpainting:
		return 0.5, 0.7
	case StageEncoding:
		return 0.7, 1
	case StageDone:
		return 1, 1
	default:
		return 0, 0
	}
}

func (s Stage) label() string {
	switch s {
	case StageDecoding:
		return "Decoding the video"
	case StageMasking:
		return "Locating the regions to remove"
	case StageInpainting:
		return "Repairing frames"
	case StageEncoding:
		return "Encoding the result"
	case StageDone:
		return "Done"
	default:
		return s.String()
	}
}
