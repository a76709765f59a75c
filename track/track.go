// Package track points the rotator at a body with a known position.
//
// Tracking the Sun or Moon is the standard way to verify antenna
// pointing: the target's topocentric azimuth and elevation are computed
// from the site coordinates and compared against where the dish ends
// up. The tracker issues ordinary single-target moves on a timer; it is
// a client of the rotator, not a trajectory planner.
package track

import (
	"context"
	"log"
	"time"

	"github.com/fadhillaxl/stepper-rasp/rotator"
)

const DefaultInterval = 5 * time.Second

// Ephemeris computes the topocentric position of the tracked body.
type Ephemeris interface {
	// Position returns azimuth and elevation in degrees at time t.
	Position(t time.Time) (az, el float64, err error)
}

type Tracker struct {
	r        rotator.Rotator
	eph      Ephemeris
	interval time.Duration
}

func New(r rotator.Rotator, eph Ephemeris, interval time.Duration) *Tracker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Tracker{r: r, eph: eph, interval: interval}
}

// Run re-targets the rotator until ctx is canceled. A body below the
// horizon is not tracked; the rotator holds its last position until the
// body rises.
func (t *Tracker) Run(ctx context.Context) error {
	tick := time.NewTicker(t.interval)
	defer tick.Stop()
	for {
		t.retarget(time.Now())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
}

func (t *Tracker) retarget(now time.Time) {
	az, el, err := t.eph.Position(now)
	if err != nil {
		log.Printf("computing target position: %v", err)
		return
	}
	if el < 0 {
		log.Printf("target below horizon (el %.1f°); holding", el)
		return
	}
	t.r.SetAzimuthPosition(az)
	t.r.SetElevationPosition(el)
}
