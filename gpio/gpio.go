// Package gpio provides the output lines driving the stepper drivers.
//
// Each axis owns three lines on a TB6600-style driver: direction, step
// pulse, and enable. The Line interface keeps the axis
// package testable off-target; on a Raspberry Pi the periph.io host
// driver provides the real pins.
package gpio

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Line is a single digital output.
type Line interface {
	// Set drives the line high or low.
	Set(high bool) error
}

// Lines are the three outputs of one axis.
type Lines struct {
	Dir    Line
	Step   Line
	Enable Line
}

var hostInited bool

// Init initializes the periph host drivers. Safe to call more than once.
func Init() error {
	if hostInited {
		return nil
	}
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("initializing gpio host: %w", err)
	}
	hostInited = true
	return nil
}

type pin struct {
	p gpio.PinOut
}

func (p pin) Set(high bool) error {
	return p.p.Out(gpio.Level(high))
}

// Open looks up a single output line by name ("GPIO23", "24", ...) and
// drives it low.
func Open(name string) (Line, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("no gpio pin %q", name)
	}
	if err := p.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("configuring %q as output: %w", name, err)
	}
	return pin{p}, nil
}

// OpenLines opens the direction, step and enable lines for one axis.
// The enable line is parked at its inactive level so the motor stays
// de-energized until the axis is enabled.
func OpenLines(dir, step, enable string, enableActiveLow bool) (Lines, error) {
	var l Lines
	var err error
	if l.Dir, err = Open(dir); err != nil {
		return Lines{}, err
	}
	if l.Step, err = Open(step); err != nil {
		return Lines{}, err
	}
	if l.Enable, err = Open(enable); err != nil {
		return Lines{}, err
	}
	if err := l.Enable.Set(enableActiveLow); err != nil {
		return Lines{}, err
	}
	return l, nil
}
