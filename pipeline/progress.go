package pipeline

import (
	"context"

	"github.com/xaionaro-go/avinpaint/logger"
	"github.com/xaionaro-go/xsync"
)

type ProgressReport struct {
	// Fraction of the whole run, in [0, 1]; never decreases within a run.
	Fraction float64
	Stage    Stage
	Label    string
}

type Observer interface {
	OnProgress(ctx context.Context, report ProgressReport)
}

type ObserverFunc func(ctx context.Context, report ProgressReport)

func (fn ObserverFunc) OnProgress(ctx context.Context, report ProgressReport) {
	fn(ctx, report)
}

// progressTracker forwards reports to the observer, suppressing any that
// would move the progress backwards (e.g. from out-of-order workers).
type progressTracker struct {
	locker   xsync.Mutex
	observer Observer
	last     float64
}

func newProgressTracker(observer Observer) *progressTracker {
	return &progressTracker{observer: observer, last: -1}
}

// Report publishes progress at the given fraction of the stage.
func (t *progressTracker) Report(
	ctx context.Context,
	stage Stage,
	stageFraction float64,
) {
	begin, end := stage.progressRange()
	stageFraction = min(max(stageFraction, 0), 1)
	fraction := begin + (end-begin)*stageFraction
	t.locker.Do(xsync.WithNoLogging(ctx, true), func() {
		if fraction < t.last {
			return
		}
		if fraction == t.last && stageFraction != 0 {
			return
		}
		t.last = fraction
		logger.Tracef(ctx, "progress: %.3f (%s)", fraction, stage)
		if t.observer == nil {
			return
		}
		t.observer.OnProgress(ctx, ProgressReport{
			Fraction: fraction,
			Stage:    stage,
			Label:    stage.label(),
		})
	})
}
