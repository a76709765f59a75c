package feedback

import (
	"context"
	"testing"

	"github.com/fadhillaxl/stepper-rasp/wt901"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestAzimuthError(t *testing.T) {
	for _, test := range []struct {
		target, measured, want float64
	}{
		{350, 10, -20},
		{10, 350, 20},
		{180, 0, 180},
		{0, 180, -180},
		{90, 80, 10},
		{0, 0, 0},
	} {
		if got := azimuthError(test.target, test.measured); got != test.want {
			t.Errorf("azimuthError(%v, %v) = %v, want %v", test.target, test.measured, got, test.want)
		}
	}
}

type fakeState struct {
	az, el  float64
	enabled bool
	tol     float64
}

func (s *fakeState) Targets() (float64, float64) { return s.az, s.el }
func (s *fakeState) FeedbackEnabled() bool       { return s.enabled }
func (s *fakeState) Tolerance() float64          { return s.tol }

type fakeIMU struct {
	sample    wt901.Sample
	connected bool
}

func (f *fakeIMU) Sample() (wt901.Sample, bool) { return f.sample, f.connected }

type fakeAxis struct {
	pos   float64
	moves []float64
}

func (a *fakeAxis) Position() float64 { return a.pos }
func (a *fakeAxis) MoveTo(_ context.Context, target, speed float64) error {
	a.moves = append(a.moves, target)
	return nil
}

func TestTickCorrections(t *testing.T) {
	for _, test := range []struct {
		name   string
		state  fakeState
		imu    fakeIMU
		azPos  float64
		elPos  float64
		wantAz []float64
		wantEl []float64
	}{
		{
			name:  "disabled skips",
			state: fakeState{az: 100, el: 45, enabled: false, tol: 0.5},
			imu:   fakeIMU{sample: wt901.Sample{Yaw: 0}, connected: true},
		},
		{
			name:  "disconnected skips",
			state: fakeState{az: 100, el: 45, enabled: true, tol: 0.5},
			imu:   fakeIMU{connected: false},
		},
		{
			name:  "within tolerance holds",
			state: fakeState{az: 100, el: 45, enabled: true, tol: 0.5},
			imu:   fakeIMU{sample: wt901.Sample{Yaw: 100.2, Pitch: 44.9}, connected: true},
		},
		{
			name:   "corrects both axes",
			state:  fakeState{az: 100, el: 45, enabled: true, tol: 0.5},
			imu:    fakeIMU{sample: wt901.Sample{Yaw: 95, Pitch: 47}, connected: true},
			azPos:  100,
			elPos:  45,
			wantAz: []float64{105},
			wantEl: []float64{43},
		},
		{
			name:   "wraparound takes the short way",
			state:  fakeState{az: 350, el: 0, enabled: true, tol: 0.5},
			imu:    fakeIMU{sample: wt901.Sample{Yaw: 10}, connected: true},
			azPos:  350,
			wantAz: []float64{330},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			az := &fakeAxis{pos: test.azPos}
			el := &fakeAxis{pos: test.elPos}
			c := New(&test.state, &test.imu, az, el, 50)
			c.tick(context.Background())
			opts := cmpopts.EquateEmpty()
			if diff := cmp.Diff(test.wantAz, az.moves, opts); diff != "" {
				t.Errorf("azimuth moves (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(test.wantEl, el.moves, opts); diff != "" {
				t.Errorf("elevation moves (-want +got):\n%s", diff)
			}
		})
	}
}
