package framesource

import (
	"fmt"
	"time"

	"github.com/xaionaro-go/avinpaint/types"
	"github.com/xaionaro-go/typing"
)

// Info describes the video stream of a container.
type Info struct {
	Format     string
	Codec      string
	Resolution types.Resolution
	FrameRate  types.Rational

	// Duration is unset when neither the stream nor the container
	// declare it and it cannot be derived from the frame count.
	Duration typing.Optional[time.Duration]

	// FrameCount is zero when unknown.
	FrameCount int64
}

func (i Info) String() string {
	duration := "unknown"
	if i.Duration.IsSet() {
		duration = i.Duration.Get().String()
	}
	return fmt.Sprintf(
		"%s/%s %s@%s, duration:%s, frames:%d",
		i.Format, i.Codec, i.Resolution, i.FrameRate, duration, i.FrameCount,
	)
}
