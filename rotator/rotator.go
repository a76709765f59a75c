package rotator

// Rotator is the surface exposed to control frontends. The GS-232 server
// and the tracking loop drive hardware only through it.
type Rotator interface {
	Stop()
	SetAzimuthPosition(angle float64)
	SetElevationPosition(angle float64)
	Home()
}

type StatusCallback func(status Status)

// Status is a point-in-time snapshot of the rotator.
type Status struct {
	// AzPos and ElPos are the step-counted positions in decimal degrees.
	AzPos float64
	ElPos float64
	// AzTarget and ElTarget are the last commanded targets.
	AzTarget float64
	ElTarget float64
	// SensorAz, SensorEl and SensorRoll are the IMU-measured angles.
	// Valid only when SensorConnected.
	SensorAz        float64
	SensorEl        float64
	SensorRoll      float64
	SensorConnected bool

	AzMoving bool
	ElMoving bool
	AzHomed  bool
	ElHomed  bool

	FeedbackEnabled bool
}

// AzimuthPosition prefers the sensor reading when one is available.
func (s Status) AzimuthPosition() float64 {
	if s.SensorConnected {
		return s.SensorAz
	}
	return s.AzPos
}

func (s Status) ElevationPosition() float64 {
	if s.SensorConnected {
		return s.SensorEl
	}
	return s.ElPos
}
