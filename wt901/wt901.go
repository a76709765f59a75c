// Package wt901 reads attitude samples from a WT901C-RS485 inertial
// sensor.
//
// The sensor streams fixed 11-byte packets framed by a 0x55 sync byte.
// Only angle packets (type 0x53) are interpreted; everything else on
// the bus is skipped without raising an error, so wiring noise and
// partial reads degrade to "no update" rather than failure.
package wt901

import (
	"bytes"
	"context"
	"encoding/binary"
	"log"
	"sync/atomic"
	"time"

	"github.com/tarm/serial"
)

const (
	syncByte   = 0x55
	packetLen  = 11
	typeAngle  = 0x53
	angleScale = 180.0 / 32768.0

	// DefaultBaud is the sensor's factory RS485 rate (8N1).
	DefaultBaud = 115200

	pollInterval = 10 * time.Millisecond
)

// Sample is the latest decoded attitude. Yaw is normalized to [0, 360).
type Sample struct {
	Roll  float64
	Pitch float64
	Yaw   float64
}

type StatusCallback func(Sample)

// Source yields the most recent attitude sample. Implemented by both
// the stream decoder and the Modbus poller.
type Source interface {
	// Sample returns the latest sample and whether the sensor is
	// currently connected.
	Sample() (Sample, bool)
}

// cell is a single-producer, many-reader snapshot of the latest sample.
type cell struct {
	sample    atomic.Value
	connected atomic.Bool
}

func (c *cell) Sample() (Sample, bool) {
	s, _ := c.sample.Load().(Sample)
	return s, c.connected.Load()
}

func (c *cell) publish(s Sample, cb StatusCallback) {
	c.sample.Store(s)
	if cb != nil {
		cb(s)
	}
}

// IMU decodes the native WT901C packet stream from a serial port.
type IMU struct {
	cell
	statusCallback StatusCallback
	buf            []byte
}

// Connect opens the sensor port in the background and keeps reconnecting
// until ctx is canceled.
func Connect(ctx context.Context, port string, baud int, statusCallback StatusCallback) (*IMU, error) {
	m := &IMU{statusCallback: statusCallback}
	go m.reconnectLoop(ctx, port, baud)
	return m, nil
}

func (m *IMU) reconnectLoop(ctx context.Context, port string, baud int) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(1 * time.Second):
		}
		c := &serial.Config{Name: port, Baud: baud, ReadTimeout: pollInterval}
		s, err := serial.OpenPort(c)
		if err != nil {
			log.Printf("opening %q: %v", port, err)
			continue
		}
		log.Printf("imu connected on %q", port)
		m.connected.Store(true)
		m.watch(ctx, s)
		m.connected.Store(false)
	}
}

func (m *IMU) watch(ctx context.Context, s *serial.Port) {
	defer s.Close()
	chunk := make([]byte, 64)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, err := s.Read(chunk)
		if n > 0 {
			m.feed(chunk[:n])
		}
		if err != nil {
			// tarm/serial returns EOF on read timeout; keep polling.
			continue
		}
	}
}

// feed appends raw bus bytes to the accumulator and extracts every
// complete packet. Exactly packetLen bytes are consumed per candidate,
// whether or not it decoded.
func (m *IMU) feed(data []byte) {
	m.buf = append(m.buf, data...)
	for len(m.buf) >= packetLen {
		idx := bytes.IndexByte(m.buf, syncByte)
		if idx < 0 {
			m.buf = m.buf[:0]
			return
		}
		if idx > 0 {
			m.buf = m.buf[idx:]
		}
		if len(m.buf) < packetLen {
			return
		}
		if m.buf[1] == typeAngle {
			m.publish(decodeAngles(m.buf[2:8]), m.statusCallback)
		}
		m.buf = m.buf[packetLen:]
	}
}

// decodeAngles converts three little-endian int16 fields (roll, pitch,
// yaw) into degrees. The sensor maps 32768 counts to 180°.
func decodeAngles(b []byte) Sample {
	s := Sample{
		Roll:  float64(int16(binary.LittleEndian.Uint16(b[0:2]))) * angleScale,
		Pitch: float64(int16(binary.LittleEndian.Uint16(b[2:4]))) * angleScale,
		Yaw:   float64(int16(binary.LittleEndian.Uint16(b[4:6]))) * angleScale,
	}
	if s.Yaw < 0 {
		s.Yaw += 360
	}
	return s
}
