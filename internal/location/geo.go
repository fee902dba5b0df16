// Package location resolves coordinates into addresses and nearby services.
package location

import (
	"fmt"
	"math"
	"strconv"
)

// EarthRadiusMeters is the mean Earth radius used by Distance.
const EarthRadiusMeters = 6371e3

type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Distance returns the great-circle distance between a and b in meters (haversine).
func Distance(a, b Coordinates) float64 {
	phi1 := a.Latitude * math.Pi / 180
	phi2 := b.Latitude * math.Pi / 180
	dPhi := (b.Latitude - a.Latitude) * math.Pi / 180
	dLambda := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusMeters * c
}

// ValidateCoordinates rejects NaN, infinities and out of range values.
func ValidateCoordinates(c Coordinates) bool {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 &&
		c.Longitude >= -180 && c.Longitude <= 180
}

// FormatCoordinates renders "lat, lon" with the given number of decimals.
func FormatCoordinates(c Coordinates, precision int) string {
	return fmt.Sprintf("%.*f, %.*f", precision, c.Latitude, precision, c.Longitude)
}

// MapsURL links to the coordinates on Google Maps.
func MapsURL(c Coordinates) string {
	return fmt.Sprintf("https://maps.google.com/maps?q=%s,%s", formatFloat(c.Latitude), formatFloat(c.Longitude))
}

// formatFloat prints the shortest representation, so 40.7128 stays 40.7128.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
