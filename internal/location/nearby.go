package location

import (
	"context"
	"fmt"
	"sort"
)

// ServiceType is a kind of emergency facility.
type ServiceType string

const (
	ServiceHospital      ServiceType = "hospital"
	ServiceFireStation   ServiceType = "fire_station"
	ServicePoliceStation ServiceType = "police_station"
	ServiceUrgentCare    ServiceType = "urgent_care"

	DefaultSearchRadius = 5000.0
)

func (t ServiceType) Valid() bool {
	switch t {
	case ServiceHospital, ServiceFireStation, ServicePoliceStation, ServiceUrgentCare:
		return true
	}
	return false
}

// ServiceLocation is an emergency facility ranked by distance from the caller.
type ServiceLocation struct {
	Name           string      `json:"name"`
	Type           ServiceType `json:"type"`
	Address        string      `json:"address,omitempty"`
	Phone          string      `json:"phone,omitempty"`
	Coordinates    Coordinates `json:"coordinates"`
	DistanceMeters float64     `json:"distanceMeters"`
	Approximate    bool        `json:"approximate,omitempty"` // offline placeholder
}

// ServiceDirectory lists candidate facilities around a point. An empty serviceType means all types.
type ServiceDirectory interface {
	Search(ctx context.Context, center Coordinates, serviceType ServiceType, radiusMeters float64) ([]ServiceLocation, error)
}

// StaticDirectory is a fixed list of facilities.
type StaticDirectory []ServiceLocation

func (d StaticDirectory) Search(_ context.Context, _ Coordinates, _ ServiceType, _ float64) ([]ServiceLocation, error) {
	out := make([]ServiceLocation, len(d))
	copy(out, d)
	return out, nil
}

// FallbackDirectory places one placeholder facility of each type at a fixed
// offset from the caller. It is used when no provider is configured and when
// the configured directory fails.
type FallbackDirectory struct{}

var fallbackFacilities = []struct {
	name, address, phone string
	kind                 ServiceType
	dLat, dLon           float64
}{
	{"General Hospital", "123 Medical Center Dr", "(555) 123-4567", ServiceHospital, 0.01, 0.01},
	{"Fire Station 12", "456 Fire House Rd", "(555) 234-5678", ServiceFireStation, -0.008, 0.005},
	{"Police Precinct 3", "789 Justice Blvd", "(555) 345-6789", ServicePoliceStation, 0.005, -0.01},
	{"Urgent Care Clinic", "321 Wellness Ave", "(555) 456-7890", ServiceUrgentCare, -0.004, -0.006},
}

func (FallbackDirectory) Search(_ context.Context, center Coordinates, _ ServiceType, _ float64) ([]ServiceLocation, error) {
	out := make([]ServiceLocation, 0, len(fallbackFacilities))
	for _, f := range fallbackFacilities {
		out = append(out, ServiceLocation{
			Name:    f.name,
			Type:    f.kind,
			Address: f.address,
			Phone:   f.phone,
			Coordinates: Coordinates{
				Latitude:  center.Latitude + f.dLat,
				Longitude: center.Longitude + f.dLon,
			},
			Approximate: true,
		})
	}
	return out, nil
}

// FindNearby returns services of serviceType (any when empty) within radiusMeters of
// center, closest first. Distances are always recomputed with Distance.
func (e *Enricher) FindNearby(ctx context.Context, center Coordinates, serviceType ServiceType, radiusMeters float64) ([]ServiceLocation, error) {
	if !ValidateCoordinates(center) {
		return nil, fmt.Errorf("invalid coordinates %s", FormatCoordinates(center, 6))
	}
	if serviceType != "" && !serviceType.Valid() {
		return nil, fmt.Errorf("unknown service type %q", serviceType)
	}
	if radiusMeters <= 0 {
		radiusMeters = DefaultSearchRadius
	}

	candidates, err := e.directory.Search(ctx, center, serviceType, radiusMeters)
	if err != nil {
		e.logger.Warnf("Service directory search failed, using offline directory: %v", err)
		candidates, _ = FallbackDirectory{}.Search(ctx, center, serviceType, radiusMeters)
	}
	return Rank(center, candidates, serviceType, radiusMeters), nil
}

// Rank filters candidates by type and radius and sorts them by haversine distance.
func Rank(center Coordinates, candidates []ServiceLocation, serviceType ServiceType, radiusMeters float64) []ServiceLocation {
	ranked := make([]ServiceLocation, 0, len(candidates))
	for _, s := range candidates {
		if serviceType != "" && s.Type != serviceType {
			continue
		}
		s.DistanceMeters = Distance(center, s.Coordinates)
		if s.DistanceMeters > radiusMeters {
			continue
		}
		ranked = append(ranked, s)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].DistanceMeters != ranked[j].DistanceMeters {
			return ranked[i].DistanceMeters < ranked[j].DistanceMeters
		}
		return ranked[i].Name < ranked[j].Name
	})
	return ranked
}
