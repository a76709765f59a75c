package axis

import "time"

// Clock paces step pulse emission. The real clock sleeps; tests
// substitute a fake that returns immediately.
type Clock interface {
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// SystemClock is the wall clock used on real hardware.
var SystemClock Clock = realClock{}
