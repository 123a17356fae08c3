package physics

import (
	"math"
	"time"

	"github.com/westphae/geomag/pkg/egm96"
	"github.com/westphae/geomag/pkg/wmm"
)

// Constants
const (
	EarthRadiusM = 6371000.0 // Mean Earth radius (m)
	FtToM        = 0.3048    // Conversion factor from feet to meters
	MToFt        = 3.28084   // Conversion factor from meters to feet
	KnotsToMs    = 0.514444  // Conversion factor from Knots to m/s
	MsToKnots    = 1.94384   // Conversion factor from m/s to Knots
	MetersPerNM  = 1852.0    // Meters per nautical mile
)

// Haversine returns the great-circle distance in meters between two
// lat/lon points
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusM * c
}

// HaversineKM returns the great-circle distance in kilometers
func HaversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	return Haversine(lat1, lon1, lat2, lon2) / 1000.0
}

// MetersToNM converts meters to nautical miles
func MetersToNM(m float64) float64 {
	return m / MetersPerNM
}

// NormalizeDegrees wraps an angle into [0, 360)
func NormalizeDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// MagneticToTrue converts a magnetic heading to a true heading at the
// given position and time by adding the local declination
func MagneticToTrue(magHeadingDeg, lat, lon, altM float64, date time.Time) float64 {
	return NormalizeDegrees(magHeadingDeg + CalculateMagneticVariation(lat, lon, altM, date))
}

// CalculateMagneticVariation calculates the magnetic declination for a given position and time
// Returns declination in degrees (+East, -West)
func CalculateMagneticVariation(lat, lon, altM float64, date time.Time) float64 {
	// Create location from Geodetic coordinates
	loc := egm96.NewLocationGeodetic(lat, lon, altM)

	// Calculate magnetic field
	mag, err := wmm.CalculateWMMMagneticField(loc, date)
	if err != nil {
		// Return 0 for safety if calculation fails
		return 0.0
	}

	return mag.D() // Declination
}
