// Package axis drives one stepper axis of the rotator.
//
// All motion requests are serialized through a bounded queue consumed by
// a single worker goroutine, so at most one move is ever driving the
// step line. Position is tracked open loop by counting pulses; the
// feedback loop reconciles it against the IMU.
package axis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fadhillaxl/stepper-rasp/gpio"
)

var (
	ErrNotEnabled    = errors.New("axis not enabled")
	ErrLimitExceeded = errors.New("target outside safety limits")
	ErrQueueFull     = errors.New("motion queue full")
)

const (
	// Moves smaller than this are treated as already on target.
	positionDeadband = 0.1
	// Direction line setup time before the first pulse.
	directionSetup = time.Millisecond
	// Driver stabilization delay after enabling.
	enableSettle = 100 * time.Millisecond
	// Pending motion requests per axis before callers are refused.
	queueDepth = 4
)

// Config carries the per-axis calibration and limits.
type Config struct {
	Name           string
	StepsPerDegree float64
	MinLimit       float64
	MaxLimit       float64
	// Speeds in steps per second.
	DefaultSpeed float64
	MinSpeed     float64
	MaxSpeed     float64
	HomeSpeed    float64
	// Polarity of the driver enable line. Most stepper drivers
	// (A4988, DRV8825, TB6600) enable on low.
	EnableActiveLow bool
}

type request struct {
	target float64
	speed  float64
	home   bool
	done   chan error
}

// Axis is one rotational degree of freedom.
type Axis struct {
	cfg   Config
	lines gpio.Lines
	clock Clock

	requests  chan request
	interrupt atomic.Bool

	mu        sync.Mutex
	position  float64
	stepCount int64
	enabled   bool
	moving    bool
	homed     bool
}

func New(cfg Config, lines gpio.Lines, clock Clock) *Axis {
	if clock == nil {
		clock = SystemClock
	}
	return &Axis{
		cfg:      cfg,
		lines:    lines,
		clock:    clock,
		requests: make(chan request, queueDepth),
	}
}

func (a *Axis) Name() string { return a.cfg.Name }

// Run consumes the motion queue until ctx is canceled. Exactly one Run
// per axis.
func (a *Axis) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			a.drain(ctx.Err())
			return ctx.Err()
		case req := <-a.requests:
			a.interrupt.Store(false)
			err := a.execute(ctx, req)
			if req.done != nil {
				req.done <- err
			}
		}
	}
}

func (a *Axis) drain(err error) {
	for {
		select {
		case req := <-a.requests:
			if req.done != nil {
				req.done <- err
			}
		default:
			return
		}
	}
}

// Enable asserts the driver enable line and waits for the driver to
// stabilize.
func (a *Axis) Enable() error {
	if err := a.lines.Enable.Set(!a.cfg.EnableActiveLow); err != nil {
		return fmt.Errorf("%s: enabling: %w", a.cfg.Name, err)
	}
	a.mu.Lock()
	a.enabled = true
	a.mu.Unlock()
	a.clock.Sleep(enableSettle)
	return nil
}

func (a *Axis) Disable() error {
	if err := a.lines.Enable.Set(a.cfg.EnableActiveLow); err != nil {
		return fmt.Errorf("%s: disabling: %w", a.cfg.Name, err)
	}
	a.mu.Lock()
	a.enabled = false
	a.mu.Unlock()
	return nil
}

// MoveTo enqueues an absolute move and waits for it to finish. A move
// cut short by Stop still returns nil; partial completion is a valid
// outcome, not an error.
func (a *Axis) MoveTo(ctx context.Context, target, speed float64) error {
	done := make(chan error, 1)
	if err := a.submit(request{target: target, speed: speed, done: done}); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// StartMove enqueues an absolute move without waiting. Failures are
// logged; protocol commands are fire-and-forget.
func (a *Axis) StartMove(target, speed float64) {
	if err := a.submit(request{target: target, speed: speed}); err != nil {
		log.Printf("%s: move to %.2f rejected: %v", a.cfg.Name, target, err)
	}
}

// Home moves to 0 at homing speed and re-zeros the step counter.
func (a *Axis) Home(ctx context.Context) error {
	done := make(chan error, 1)
	if err := a.submit(request{home: true, done: done}); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// Stop interrupts the in-flight move at the next step boundary.
// Latency is bounded by one step period.
func (a *Axis) Stop() {
	a.interrupt.Store(true)
	log.Printf("%s: movement stopped", a.cfg.Name)
}

func (a *Axis) submit(req request) error {
	select {
	case a.requests <- req:
		return nil
	default:
		return ErrQueueFull
	}
}

func (a *Axis) execute(ctx context.Context, req request) error {
	target, speed := req.target, req.speed
	if req.home {
		target, speed = 0, a.cfg.HomeSpeed
	}
	if err := a.move(ctx, target, speed); err != nil {
		log.Printf("%s: %v", a.cfg.Name, err)
		return err
	}
	if req.home {
		a.mu.Lock()
		a.position = 0
		a.stepCount = 0
		a.homed = true
		a.mu.Unlock()
		log.Printf("%s: homed", a.cfg.Name)
	}
	return nil
}

func (a *Axis) move(ctx context.Context, target, speed float64) error {
	a.mu.Lock()
	if !a.enabled {
		a.mu.Unlock()
		return ErrNotEnabled
	}
	if target < a.cfg.MinLimit || target > a.cfg.MaxLimit {
		a.mu.Unlock()
		return fmt.Errorf("%w: %.2f° not in [%.1f°, %.1f°]", ErrLimitExceeded, target, a.cfg.MinLimit, a.cfg.MaxLimit)
	}
	posErr := target - a.position
	if math.Abs(posErr) < positionDeadband {
		a.mu.Unlock()
		return nil
	}
	a.moving = true
	start := a.position
	a.mu.Unlock()

	steps := int(math.Round(math.Abs(posErr) * a.cfg.StepsPerDegree))
	clockwise := posErr > 0
	if speed <= 0 {
		speed = a.cfg.DefaultSpeed
	}
	speed = math.Min(math.Max(speed, a.cfg.MinSpeed), a.cfg.MaxSpeed)
	halfPeriod := time.Duration(float64(time.Second) / (2 * speed))

	log.Printf("%s: moving from %.2f° to %.2f° (%d steps)", a.cfg.Name, start, target, steps)

	defer func() {
		a.mu.Lock()
		a.moving = false
		pos := a.position
		a.mu.Unlock()
		log.Printf("%s: move complete at %.2f°", a.cfg.Name, pos)
	}()

	if err := a.lines.Dir.Set(clockwise); err != nil {
		return fmt.Errorf("setting direction: %w", err)
	}
	a.clock.Sleep(directionSetup)

	stepDeg := 1 / a.cfg.StepsPerDegree
	for i := 0; i < steps; i++ {
		if a.interrupt.Load() || ctx.Err() != nil {
			return nil
		}
		if err := a.pulse(halfPeriod); err != nil {
			return err
		}
		a.mu.Lock()
		if clockwise {
			a.position += stepDeg
			a.stepCount++
		} else {
			a.position -= stepDeg
			a.stepCount--
		}
		a.mu.Unlock()
	}
	return nil
}

func (a *Axis) pulse(halfPeriod time.Duration) error {
	if err := a.lines.Step.Set(true); err != nil {
		return fmt.Errorf("step pulse: %w", err)
	}
	a.clock.Sleep(halfPeriod)
	if err := a.lines.Step.Set(false); err != nil {
		return fmt.Errorf("step pulse: %w", err)
	}
	a.clock.Sleep(halfPeriod)
	return nil
}

func (a *Axis) Position() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.position
}

func (a *Axis) StepCount() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stepCount
}

func (a *Axis) Moving() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.moving
}

func (a *Axis) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

func (a *Axis) Homed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.homed
}
