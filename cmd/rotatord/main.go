// rotatord drives the azimuth/elevation ground station rotator.
//
// It exposes the GS-232 control protocol for Hamlib/Gpredict, a web
// status socket, and an IMU-based closed feedback loop.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/fadhillaxl/stepper-rasp/axis"
	"github.com/fadhillaxl/stepper-rasp/config"
	"github.com/fadhillaxl/stepper-rasp/feedback"
	"github.com/fadhillaxl/stepper-rasp/gpio"
	"github.com/fadhillaxl/stepper-rasp/gs232"
	"github.com/fadhillaxl/stepper-rasp/track"
	"github.com/fadhillaxl/stepper-rasp/wt901"
)

var (
	configPath  = flag.String("config", "motor_config.yaml", "motor configuration file")
	listenAddr  = flag.String("listen", gs232.DefaultAddr, "GS-232 listen address")
	httpAddr    = flag.String("http", "127.0.0.1:8502", "status HTTP listen address")
	staticDir   = flag.String("static_dir", "static", "directory containing static files")
	imuPort     = flag.String("imu", "/dev/ttyUSB0", "IMU serial port name")
	imuBaud     = flag.Int("imu_baud", wt901.DefaultBaud, "IMU baud rate")
	imuModbus   = flag.Bool("imu_modbus", false, "poll the IMU over Modbus RTU instead of the packet stream")
	imuSlave    = flag.Int("imu_slave", 0x50, "IMU Modbus slave ID")
	trackTarget = flag.String("track", "", "track a calibration body (sun or moon)")
)

func newAxis(name string, cfg *config.Config, pins config.AxisPins, minLimit, maxLimit float64) (*axis.Axis, error) {
	lines, err := gpio.OpenLines(pins.Dir, pins.Step, pins.Enable, cfg.Driver.EnableActiveLow)
	if err != nil {
		return nil, err
	}
	return axis.New(axis.Config{
		Name:            name,
		StepsPerDegree:  cfg.StepsPerDegree(),
		MinLimit:        minLimit,
		MaxLimit:        maxLimit,
		DefaultSpeed:    cfg.Motion.DefaultSpeed,
		MinSpeed:        cfg.Motion.MinSpeed,
		MaxSpeed:        cfg.Motion.MaxSpeed,
		HomeSpeed:       cfg.Motion.HomeSpeed,
		EnableActiveLow: cfg.Driver.EnableActiveLow,
	}, lines, axis.SystemClock), nil
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := gpio.Init(); err != nil {
		log.Fatal(err)
	}

	azimuth, err := newAxis("Azimuth", cfg, cfg.GPIO.Azimuth, cfg.Limits.AzimuthMin, cfg.Limits.AzimuthMax)
	if err != nil {
		log.Fatal(err)
	}
	elevation, err := newAxis("Elevation", cfg, cfg.GPIO.Elevation, cfg.Limits.ElevationMin, cfg.Limits.ElevationMax)
	if err != nil {
		log.Fatal(err)
	}

	// Stop all motion and de-energize the drivers exactly once on any
	// exit path; the listener and serial port close via ctx.
	var shutdownOnce sync.Once
	shutdown := func() {
		shutdownOnce.Do(func() {
			azimuth.Stop()
			elevation.Stop()
			if err := azimuth.Disable(); err != nil {
				log.Print(err)
			}
			if err := elevation.Disable(); err != nil {
				log.Print(err)
			}
			log.Print("rotator stopped")
		})
	}
	defer shutdown()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return azimuth.Run(ctx) })
	g.Go(func() error { return elevation.Run(ctx) })

	if err := azimuth.Enable(); err != nil {
		log.Fatal(err)
	}
	if err := elevation.Enable(); err != nil {
		log.Fatal(err)
	}

	var imu wt901.Source
	if *imuModbus {
		imu, err = wt901.ConnectModbus(ctx, *imuPort, *imuBaud, byte(*imuSlave), nil)
	} else {
		imu, err = wt901.Connect(ctx, *imuPort, *imuBaud, nil)
	}
	if err != nil {
		log.Fatal(err)
	}

	srv := gs232.NewServer(azimuth, elevation, imu, cfg.Feedback.Enabled, cfg.Feedback.Tolerance)

	log.Print("performing initial homing")
	srv.StartupHome(ctx)

	fb := feedback.New(srv, imu, azimuth, elevation, cfg.Motion.CorrectionSpeed)
	g.Go(func() error { return fb.Run(ctx) })

	if *trackTarget != "" {
		site := track.Site{
			Latitude:  cfg.Site.Latitude,
			Longitude: cfg.Site.Longitude,
			Height:    cfg.Site.Height,
		}
		eph, err := track.ByName(*trackTarget, site)
		if err != nil {
			log.Fatal(err)
		}
		tracker := track.New(srv, eph, track.DefaultInterval)
		g.Go(func() error { return tracker.Run(ctx) })
	}

	web := NewWebServer(srv)
	g.Go(func() error { return web.Run(ctx, *httpAddr, *staticDir) })

	if err := srv.Listen(ctx, *listenAddr); err != nil {
		log.Fatal(err)
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		log.Print(err)
	}
}
