package frame

import (
	"fmt"
	"strings"
)

type ChannelMode int

const (
	ChannelModeUndefined = ChannelMode(iota)
	ChannelModeColor
	ChannelModeGrayscale
)

func (m ChannelMode) String() string {
	switch m {
	case ChannelModeUndefined:
		return "undefined"
	case ChannelModeColor:
		return "color"
	case ChannelModeGrayscale:
		return "grayscale"
	default:
		return fmt.Sprintf("unknown_channel_mode_%d", int(m))
	}
}

// Channels returns the channel depth of frames in this mode.
func (m ChannelMode) Channels() int {
	if m == ChannelModeGrayscale {
		return 1
	}
	return 3
}

func ParseChannelMode(s string) (ChannelMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "color", "colour", "bgr":
		return ChannelModeColor, nil
	case "grayscale", "greyscale", "gray", "grey":
		return ChannelModeGrayscale, nil
	default:
		return ChannelModeUndefined, fmt.Errorf("unknown channel mode '%s'", s)
	}
}

// Set implements pflag.Value.
func (m *ChannelMode) Set(s string) error {
	v, err := ParseChannelMode(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Type implements pflag.Value.
func (m *ChannelMode) Type() string {
	return "channel-mode"
}

func (m *ChannelMode) UnmarshalText(b []byte) error {
	return m.Set(string(b))
}

func (m ChannelMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}
