package parpipe

import (
	"time"

	"github.com/juju/clock"
	"golang.org/x/xerrors"
)

// NewThrottledStage returns a pass-through stage where each worker forwards
// at most one item per interval. It is useful for pacing a pipeline that
// feeds a rate-limited collaborator. If clk is nil the wall clock is used
// instead. NewThrottledStage panics unless interval > 0.
func NewThrottledStage(name string, clk clock.Clock, interval time.Duration) *Stage {
	if interval <= 0 {
		panic("NewThrottledStage: interval must be greater than zero")
	}
	if clk == nil {
		clk = clock.WallClock
	}
	return NewStage(name, func(in Iterator, emit EmitFunc) error {
		if in == nil {
			return xerrors.New("a throttled stage cannot be the first stage of a pipeline")
		}
		for in.Next() {
			emit(in.Item())
			<-clk.After(interval)
		}
		return nil
	})
}
