package timing

import (
	"math"
	"time"
)

const (
	unixEpochJD = 2440587.5 // Julian date of 1970-01-01T00:00:00Z
	j2000JD     = 2451545.0 // Julian date of J2000.0
	secondsDay  = 86400.0
)

// Stamp is the timestamp triple recorded with every archive
type Stamp struct {
	Wall       time.Time // Wall-clock time at capture completion
	JulianDate float64   // Julian date of Wall
	LST        float64   // Local sidereal time in radians
}

// UnixTime returns the wall-clock time as float seconds since the Unix epoch.
func (s Stamp) UnixTime() float64 {
	return UnixSeconds(s.Wall)
}

// Resolution is the finest wall-clock step a float64 Unix time keeps for
// present-day dates.
const Resolution = time.Microsecond

// NewStamp builds a Stamp for t at the given east-positive longitude in
// degrees. t is rounded to Resolution, so the stamp survives a round trip
// through UnixSeconds.
func NewStamp(t time.Time, lonDeg float64) Stamp {
	t = t.Round(Resolution)
	jd := JulianDate(t)
	return Stamp{
		Wall:       t,
		JulianDate: jd,
		LST:        LocalSiderealTime(jd, lonDeg),
	}
}

// UnixSeconds converts t to float seconds since the Unix epoch, keeping the
// sub-second part.
func UnixSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

// FromUnixSeconds is the inverse of UnixSeconds, rounded to Resolution.
func FromUnixSeconds(s float64) time.Time {
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(math.Round(frac*float64(time.Second/Resolution)))*int64(Resolution)).UTC()
}

// JulianDate returns the Julian date of t.
func JulianDate(t time.Time) float64 {
	return UnixSeconds(t)/secondsDay + unixEpochJD
}

// LocalSiderealTime returns the mean local sidereal time in radians for the
// Julian date jd at the given east-positive longitude in degrees. The result is
// within [0, 2π).
func LocalSiderealTime(jd, lonDeg float64) float64 {
	d := jd - j2000JD
	t := d / 36525

	// IAU 1982 GMST expression, in degrees
	gmst := 280.46061837 + 360.98564736629*d + 0.000387933*t*t - t*t*t/38710000

	lst := math.Mod(gmst+lonDeg, 360)
	if lst < 0 {
		lst += 360
	}
	return lst * math.Pi / 180
}
