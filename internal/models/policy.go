package models

// Region is a latitude/longitude bounding box.
type Region struct {
	Name   string
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

func (r Region) Contains(lat, lon float64) bool {
	return lat >= r.MinLat && lat <= r.MaxLat && lon >= r.MinLon && lon <= r.MaxLon
}

// NumberPolicy maps regions to the emergency number dialed there.
// The first matching rule wins; Default applies when nothing matches.
type NumberPolicy struct {
	Default string
	Rules   []NumberRule
}

type NumberRule struct {
	Region Region
	Number string
}
