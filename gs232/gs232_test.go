package gs232

import (
	"bufio"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/fadhillaxl/stepper-rasp/wt901"
	"github.com/google/go-cmp/cmp"
)

type fakeAxis struct {
	mu     sync.Mutex
	pos    float64
	moves  []float64
	homes  int
	stops  int
	homed  bool
	moving bool
	onHome func()
}

func (a *fakeAxis) Position() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pos
}

func (a *fakeAxis) Moving() bool { return a.moving }
func (a *fakeAxis) Homed() bool  { return a.homed }

func (a *fakeAxis) StartMove(target, speed float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.moves = append(a.moves, target)
	a.pos = target
}

func (a *fakeAxis) MoveTo(_ context.Context, target, speed float64) error {
	a.StartMove(target, speed)
	return nil
}

func (a *fakeAxis) Home(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.homes++
	a.pos = 0
	a.homed = true
	if a.onHome != nil {
		a.onHome()
	}
	return nil
}

func (a *fakeAxis) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stops++
}

type fakeIMU struct {
	sample    wt901.Sample
	connected bool
}

func (f *fakeIMU) Sample() (wt901.Sample, bool) { return f.sample, f.connected }

func newTestServer(imu wt901.Source) (*Server, *fakeAxis, *fakeAxis) {
	az := &fakeAxis{}
	el := &fakeAxis{}
	if imu == nil {
		imu = &fakeIMU{}
	}
	return NewServer(az, el, imu, true, 0.5), az, el
}

func TestProcess(t *testing.T) {
	for _, test := range []struct {
		cmds []string
		want string
	}{
		{[]string{"AZ180"}, "OK"},
		{[]string{"AZ180.5"}, "OK"},
		{[]string{"EL45"}, "OK"},
		{[]string{"AZ180", "P"}, "AZ=180.0 EL=0.0"},
		{[]string{"AZ180", "EL45", "P"}, "AZ=180.0 EL=45.0"},
		{[]string{"S"}, "OK"},
		{[]string{"H"}, "OK"},
		{[]string{"R"}, "OK"},
		{[]string{"XYZZY"}, "ERROR"},
		{[]string{"AZ"}, "ERROR"},
		{[]string{"AZnope"}, "ERROR"},
		{[]string{"EL1e"}, "ERROR"},
		{[]string{"Q"}, "ERROR"},
	} {
		s, _, _ := newTestServer(nil)
		var got string
		for _, cmd := range test.cmds {
			got = s.process(context.Background(), cmd)
		}
		if got != test.want {
			t.Errorf("%v: got %q, want %q", test.cmds, got, test.want)
		}
	}
}

func TestSetAzimuthUpdatesTargetAndMoves(t *testing.T) {
	s, az, _ := newTestServer(nil)
	if resp := s.process(context.Background(), "AZ123.4"); resp != "OK" {
		t.Fatalf("AZ123.4: %q", resp)
	}
	gotAz, gotEl := s.Targets()
	if gotAz != 123.4 || gotEl != 0 {
		t.Errorf("targets = (%v, %v), want (123.4, 0)", gotAz, gotEl)
	}
	if diff := cmp.Diff([]float64{123.4}, az.moves); diff != "" {
		t.Errorf("azimuth moves (-want +got):\n%s", diff)
	}
}

func TestPositionPrefersSensor(t *testing.T) {
	imu := &fakeIMU{sample: wt901.Sample{Yaw: 123.45, Pitch: 6.78}, connected: true}
	s, az, el := newTestServer(imu)
	az.pos = 50
	el.pos = 10
	if got, want := s.process(context.Background(), "P"), "AZ=123.5 EL=6.8"; got != want {
		t.Errorf("P with sensor: got %q, want %q", got, want)
	}
	imu.connected = false
	if got, want := s.process(context.Background(), "P"), "AZ=50.0 EL=10.0"; got != want {
		t.Errorf("P without sensor: got %q, want %q", got, want)
	}
}

func TestStopHitsBothAxes(t *testing.T) {
	s, az, el := newTestServer(nil)
	s.process(context.Background(), "S")
	if az.stops != 1 || el.stops != 1 {
		t.Errorf("stops = (%d, %d), want (1, 1)", az.stops, el.stops)
	}
}

func TestHomeAllOrderAndTargets(t *testing.T) {
	s, az, el := newTestServer(nil)
	s.process(context.Background(), "AZ90")
	s.process(context.Background(), "EL45")

	var order []*fakeAxis
	az.onHome = func() { order = append(order, az) }
	el.onHome = func() { order = append(order, el) }

	s.homeAll(context.Background())
	if az.homes != 1 || el.homes != 1 {
		t.Fatalf("homes = (%d, %d), want (1, 1)", az.homes, el.homes)
	}
	// Elevation comes down before the azimuth sweep.
	if len(order) != 2 || order[0] != el || order[1] != az {
		t.Error("homing did not run elevation first")
	}
	if gotAz, gotEl := s.Targets(); gotAz != 0 || gotEl != 0 {
		t.Errorf("targets after homing = (%v, %v), want (0, 0)", gotAz, gotEl)
	}
}

func TestCommandsOverConnection(t *testing.T) {
	s, _, _ := newTestServer(nil)
	client, server := net.Pipe()
	defer client.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.handle(ctx, server)

	client.SetDeadline(time.Now().Add(5 * time.Second))
	r := bufio.NewScanner(client)
	send := func(cmd string) string {
		t.Helper()
		if _, err := client.Write([]byte(cmd + "\n")); err != nil {
			t.Fatal(err)
		}
		if !r.Scan() {
			t.Fatalf("no response to %q: %v", cmd, r.Err())
		}
		return r.Text()
	}

	if got := send("AZ180"); got != "OK" {
		t.Errorf("AZ180: %q", got)
	}
	// Lowercase input is normalized before dispatch.
	if got := send("el45"); got != "OK" {
		t.Errorf("el45: %q", got)
	}
	if got := send("P"); got != "AZ=180.0 EL=45.0" {
		t.Errorf("P: %q", got)
	}
	// A bad command leaves the connection open for further commands.
	if got := send("XYZZY"); got != "ERROR" {
		t.Errorf("XYZZY: %q", got)
	}
	if got := send("  S  "); got != "OK" {
		t.Errorf("S with whitespace: %q", got)
	}
}
