// Package feedback closes the loop between the IMU-measured attitude
// and the step-counted axis positions.
package feedback

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/fadhillaxl/stepper-rasp/wt901"
)

const DefaultInterval = 100 * time.Millisecond

// TargetSource supplies the commanded targets and the loop settings.
// Implemented by the protocol server's state.
type TargetSource interface {
	Targets() (az, el float64)
	FeedbackEnabled() bool
	Tolerance() float64
}

// Axis is the slice of the axis controller the loop needs.
type Axis interface {
	Position() float64
	MoveTo(ctx context.Context, target, speed float64) error
}

// Controller periodically issues small correction moves whenever the
// measured attitude drifts beyond tolerance from the commanded target.
type Controller struct {
	state     TargetSource
	imu       wt901.Source
	azimuth   Axis
	elevation Axis

	// Correction moves run slower than user-commanded moves.
	speed    float64
	interval time.Duration
}

func New(state TargetSource, imu wt901.Source, azimuth, elevation Axis, correctionSpeed float64) *Controller {
	return &Controller{
		state:     state,
		imu:       imu,
		azimuth:   azimuth,
		elevation: elevation,
		speed:     correctionSpeed,
		interval:  DefaultInterval,
	}
}

// Run ticks until ctx is canceled. Errors inside a tick are logged and
// retried on the next tick; transient I/O failures never stop the loop.
func (c *Controller) Run(ctx context.Context) error {
	t := time.NewTicker(c.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		c.tick(ctx)
	}
}

func (c *Controller) tick(ctx context.Context) {
	if !c.state.FeedbackEnabled() {
		return
	}
	sample, connected := c.imu.Sample()
	if !connected {
		return
	}
	targetAz, targetEl := c.state.Targets()
	tol := c.state.Tolerance()

	if azErr := azimuthError(targetAz, sample.Yaw); math.Abs(azErr) > tol {
		// The correction is applied relative to the tracked position:
		// the measured error tells us how far the antenna really is
		// from the target, wherever the step counter thinks it is.
		if err := c.azimuth.MoveTo(ctx, c.azimuth.Position()+azErr, c.speed); err != nil {
			log.Printf("azimuth correction: %v", err)
		}
	}
	// Elevation is mechanically bounded; no wraparound.
	if elErr := targetEl - sample.Pitch; math.Abs(elErr) > tol {
		if err := c.elevation.MoveTo(ctx, c.elevation.Position()+elErr, c.speed); err != nil {
			log.Printf("elevation correction: %v", err)
		}
	}
}

// azimuthError returns the shortest-path angular error from measured to
// target, in [-180, 180].
func azimuthError(target, measured float64) float64 {
	err := target - measured
	if err > 180 {
		err -= 360
	} else if err < -180 {
		err += 360
	}
	return err
}
