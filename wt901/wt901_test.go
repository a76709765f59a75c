package wt901

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func anglePacket(roll, pitch, yaw int16) []byte {
	p := make([]byte, packetLen)
	p[0] = syncByte
	p[1] = typeAngle
	binary.LittleEndian.PutUint16(p[2:4], uint16(roll))
	binary.LittleEndian.PutUint16(p[4:6], uint16(pitch))
	binary.LittleEndian.PutUint16(p[6:8], uint16(yaw))
	return p
}

func approx() cmp.Option {
	return cmpopts.EquateApprox(0, 1e-9)
}

func TestDecodeAngles(t *testing.T) {
	for _, test := range []struct {
		name             string
		roll, pitch, yaw int16
		want             Sample
	}{
		{"zero", 0, 0, 0, Sample{}},
		{"quarter turn", 0, 0, 8192, Sample{Yaw: 45}},
		{"negative yaw wraps", 0, 0, -100, Sample{Yaw: 360 - 100.0/32768*180}},
		{"pitch down", 0, -16384, 0, Sample{Pitch: -90}},
		{"full scale roll", math.MinInt16, 0, 0, Sample{Roll: -180}},
	} {
		t.Run(test.name, func(t *testing.T) {
			var got Sample
			m := &IMU{statusCallback: func(s Sample) { got = s }}
			m.feed(anglePacket(test.roll, test.pitch, test.yaw))
			if diff := cmp.Diff(test.want, got, approx()); diff != "" {
				t.Errorf("unexpected sample (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResyncAfterGarbage(t *testing.T) {
	var samples []Sample
	m := &IMU{statusCallback: func(s Sample) { samples = append(samples, s) }}
	input := append([]byte{0x01, 0xfe, 0x20, 0x99, 0x42}, anglePacket(0, 0, 8192)...)
	m.feed(input)
	if len(samples) != 1 {
		t.Fatalf("decoded %d samples, want 1", len(samples))
	}
	if diff := cmp.Diff(Sample{Yaw: 45}, samples[0], approx()); diff != "" {
		t.Errorf("unexpected sample (-want +got):\n%s", diff)
	}
}

func TestPartialPacketAccumulates(t *testing.T) {
	var samples []Sample
	m := &IMU{statusCallback: func(s Sample) { samples = append(samples, s) }}
	packet := anglePacket(100, 200, 300)
	m.feed(packet[:4])
	if len(samples) != 0 {
		t.Fatalf("decoded %d samples from a partial packet", len(samples))
	}
	m.feed(packet[4:])
	if len(samples) != 1 {
		t.Fatalf("decoded %d samples after completion, want 1", len(samples))
	}
}

func TestUnknownPacketTypeSkipped(t *testing.T) {
	var samples []Sample
	m := &IMU{statusCallback: func(s Sample) { samples = append(samples, s) }}
	accel := make([]byte, packetLen)
	accel[0] = syncByte
	accel[1] = 0x51 // acceleration packet
	m.feed(append(accel, anglePacket(0, 0, 4096)...))
	if len(samples) != 1 {
		t.Fatalf("decoded %d samples, want only the angle packet", len(samples))
	}
	if diff := cmp.Diff(Sample{Yaw: 22.5}, samples[0], approx()); diff != "" {
		t.Errorf("unexpected sample (-want +got):\n%s", diff)
	}
}

func TestGarbageOnlyDiscardsBuffer(t *testing.T) {
	m := &IMU{}
	m.feed(make([]byte, 3*packetLen)) // zeros, no sync byte
	if len(m.buf) != 0 {
		t.Errorf("buffer holds %d bytes, want empty", len(m.buf))
	}
}

func TestLatestSampleWins(t *testing.T) {
	m := &IMU{}
	m.feed(anglePacket(0, 0, 8192))
	m.feed(anglePacket(0, 0, 16384))
	got, _ := m.Sample()
	if diff := cmp.Diff(Sample{Yaw: 90}, got, approx()); diff != "" {
		t.Errorf("unexpected sample (-want +got):\n%s", diff)
	}
}
