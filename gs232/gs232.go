// Package gs232 serves the GS-232 command protocol used by Hamlib
// rotctld and Gpredict.
//
// Commands are single ASCII lines. Motion commands reply OK immediately
// and run in the background; the connection stays open throughout.
package gs232

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fadhillaxl/stepper-rasp/rotator"
	"github.com/fadhillaxl/stepper-rasp/wt901"
)

// DefaultAddr is the port rotctld expects.
const DefaultAddr = ":4533"

// resetPause separates stopping and re-homing during an R command.
const resetPause = 500 * time.Millisecond

// Axis is the slice of the axis controller the server drives.
type Axis interface {
	Position() float64
	Moving() bool
	Homed() bool
	StartMove(target, speed float64)
	MoveTo(ctx context.Context, target, speed float64) error
	Home(ctx context.Context) error
	Stop()
}

// Server tracks the commanded targets and dispatches protocol commands
// onto the two axes.
type Server struct {
	azimuth   Axis
	elevation Axis
	imu       wt901.Source

	mu              sync.Mutex
	targetAz        float64
	targetEl        float64
	feedbackEnabled bool
	tolerance       float64
}

func NewServer(azimuth, elevation Axis, imu wt901.Source, feedbackEnabled bool, tolerance float64) *Server {
	return &Server{
		azimuth:         azimuth,
		elevation:       elevation,
		imu:             imu,
		feedbackEnabled: feedbackEnabled,
		tolerance:       tolerance,
	}
}

// Targets returns the commanded azimuth and elevation.
func (s *Server) Targets() (az, el float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.targetAz, s.targetEl
}

func (s *Server) FeedbackEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feedbackEnabled
}

func (s *Server) SetFeedbackEnabled(enabled bool) {
	s.mu.Lock()
	s.feedbackEnabled = enabled
	s.mu.Unlock()
}

func (s *Server) Tolerance() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tolerance
}

// Status snapshots the whole rotator for the web frontend.
func (s *Server) Status() rotator.Status {
	sample, connected := s.imu.Sample()
	s.mu.Lock()
	targetAz, targetEl := s.targetAz, s.targetEl
	feedback := s.feedbackEnabled
	s.mu.Unlock()
	return rotator.Status{
		AzPos:           s.azimuth.Position(),
		ElPos:           s.elevation.Position(),
		AzTarget:        targetAz,
		ElTarget:        targetEl,
		SensorAz:        sample.Yaw,
		SensorEl:        sample.Pitch,
		SensorRoll:      sample.Roll,
		SensorConnected: connected,
		AzMoving:        s.azimuth.Moving(),
		ElMoving:        s.elevation.Moving(),
		AzHomed:         s.azimuth.Homed(),
		ElHomed:         s.elevation.Homed(),
		FeedbackEnabled: feedback,
	}
}

// SetAzimuthPosition commands the azimuth target, fire-and-forget.
func (s *Server) SetAzimuthPosition(angle float64) {
	s.mu.Lock()
	s.targetAz = angle
	s.mu.Unlock()
	s.azimuth.StartMove(angle, 0)
}

// SetElevationPosition commands the elevation target, fire-and-forget.
func (s *Server) SetElevationPosition(angle float64) {
	s.mu.Lock()
	s.targetEl = angle
	s.mu.Unlock()
	s.elevation.StartMove(angle, 0)
}

// Stop halts both axes.
func (s *Server) Stop() {
	s.azimuth.Stop()
	s.elevation.Stop()
}

// Home re-homes both axes in the background.
func (s *Server) Home() {
	go s.homeAll(context.Background())
}

// HomeAll homes elevation first (so the antenna comes down before the
// azimuth sweep), then azimuth, and zeroes both targets.
func (s *Server) homeAll(ctx context.Context) {
	log.Print("homing all axes")
	if err := s.elevation.Home(ctx); err != nil {
		log.Printf("homing elevation: %v", err)
	}
	if err := s.azimuth.Home(ctx); err != nil {
		log.Printf("homing azimuth: %v", err)
	}
	s.mu.Lock()
	s.targetAz = 0
	s.targetEl = 0
	s.mu.Unlock()
	log.Print("homing complete")
}

// StartupHome blocks while both axes home, for use before serving.
func (s *Server) StartupHome(ctx context.Context) {
	s.homeAll(ctx)
}

func (s *Server) reset(ctx context.Context) {
	log.Print("resetting rotator")
	s.Stop()
	select {
	case <-ctx.Done():
		return
	case <-time.After(resetPause):
	}
	s.homeAll(ctx)
}

// Listen binds the control socket and serves connections until ctx is
// canceled. A bind failure is returned to the caller; it is fatal at
// startup.
func (s *Server) Listen(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.Printf("gs-232 server listening on %v", ln.Addr())
	go func() {
		<-ctx.Done()
		log.Print("shutdown; closing gs-232 socket")
		ln.Close()
	}()
	go func() {
		for ctx.Err() == nil {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("failed to accept: %v", err)
				}
				continue
			}
			go s.handle(ctx, conn)
		}
	}()
	return nil
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	log.Printf("accepted connection from %v", conn.RemoteAddr())
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		cmd := strings.ToUpper(strings.TrimSpace(scanner.Text()))
		if cmd == "" {
			continue
		}
		resp := s.process(ctx, cmd)
		if _, err := fmt.Fprintf(conn, "%s\n", resp); err != nil {
			log.Printf("writing to %v: %v", conn.RemoteAddr(), err)
			return
		}
	}
	if err := scanner.Err(); err != nil {
		log.Printf("reading from %v: %v", conn.RemoteAddr(), err)
	}
	log.Printf("client %v disconnected", conn.RemoteAddr())
}

func (s *Server) process(ctx context.Context, cmd string) string {
	switch {
	case strings.HasPrefix(cmd, "AZ"):
		angle, err := strconv.ParseFloat(cmd[2:], 64)
		if err != nil {
			return "ERROR"
		}
		s.SetAzimuthPosition(angle)
		return "OK"
	case strings.HasPrefix(cmd, "EL"):
		angle, err := strconv.ParseFloat(cmd[2:], 64)
		if err != nil {
			return "ERROR"
		}
		s.SetElevationPosition(angle)
		return "OK"
	case cmd == "P":
		az, el := s.position()
		return fmt.Sprintf("AZ=%.1f EL=%.1f", az, el)
	case cmd == "S":
		s.Stop()
		return "OK"
	case cmd == "H":
		go s.homeAll(ctx)
		return "OK"
	case cmd == "R":
		go s.reset(ctx)
		return "OK"
	}
	return "ERROR"
}

// position prefers the sensor when it is connected, falling back to the
// step-counted positions.
func (s *Server) position() (az, el float64) {
	if sample, connected := s.imu.Sample(); connected {
		return sample.Yaw, sample.Pitch
	}
	return s.azimuth.Position(), s.elevation.Position()
}
