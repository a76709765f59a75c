package track

import (
	"fmt"
	"time"

	"github.com/pebbe/novas"
)

// Site is the observer location used for topocentric reduction.
type Site struct {
	Latitude  float64 // degrees north
	Longitude float64 // degrees east
	Height    float64 // meters above sea level
}

// bodyEphemeris wraps a NOVAS solar-system body.
type bodyEphemeris struct {
	body  *novas.Body
	place *novas.Place
}

// Standard atmosphere; only used for the refraction model.
const (
	siteTemperature = 15.0   // °C
	sitePressure    = 1010.0 // mbar
)

func newBody(body *novas.Body, site Site) Ephemeris {
	return &bodyEphemeris{
		body:  body,
		place: novas.NewPlace(site.Latitude, site.Longitude, site.Height, siteTemperature, sitePressure),
	}
}

// Sun returns an ephemeris for the Sun as seen from site.
func Sun(site Site) Ephemeris { return newBody(novas.Sun(), site) }

// Moon returns an ephemeris for the Moon as seen from site.
func Moon(site Site) Ephemeris { return newBody(novas.Moon(), site) }

// ByName maps the -track flag values onto an ephemeris.
func ByName(name string, site Site) (Ephemeris, error) {
	switch name {
	case "sun":
		return Sun(site), nil
	case "moon":
		return Moon(site), nil
	}
	return nil, fmt.Errorf("unknown tracking target %q", name)
}

func (e *bodyEphemeris) Position(t time.Time) (az, el float64, err error) {
	data := e.body.Topo(novas.Time{Time: t}, e.place, novas.REFR_NONE)
	return data.Az, data.Alt, nil
}
