package location

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"
)

// GoogleMaps adapts the Google Maps Geocoding and Places APIs.
type GoogleMaps struct {
	client *maps.Client
}

func NewGoogleMaps(apiKey string) (*GoogleMaps, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Google Maps client: %w", err)
	}
	return &GoogleMaps{client: client}, nil
}

func (g *GoogleMaps) ReverseGeocode(ctx context.Context, lat, lon float64) (string, error) {
	resp, err := g.client.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng: &maps.LatLng{Lat: lat, Lng: lon},
	})
	if err != nil {
		return "", fmt.Errorf("reverse geocoding failed: %w", err)
	}
	for _, r := range resp {
		if r.FormattedAddress != "" {
			return r.FormattedAddress, nil
		}
	}
	return "", ErrNoResult
}

// Search runs a Places nearby search. Without a service type every supported
// type is queried in turn.
func (g *GoogleMaps) Search(ctx context.Context, center Coordinates, serviceType ServiceType, radiusMeters float64) ([]ServiceLocation, error) {
	types := []ServiceType{serviceType}
	if serviceType == "" {
		types = []ServiceType{ServiceHospital, ServiceFireStation, ServicePoliceStation, ServiceUrgentCare}
	}

	var out []ServiceLocation
	for _, t := range types {
		req := &maps.NearbySearchRequest{
			Location: &maps.LatLng{Lat: center.Latitude, Lng: center.Longitude},
			Radius:   uint(radiusMeters),
			Type:     placeType(t),
		}
		// Places has no urgent care type; narrow hospitals by keyword instead.
		if t == ServiceUrgentCare {
			req.Keyword = "urgent care"
		}
		resp, err := g.client.NearbySearch(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("nearby search for %s failed: %w", t, err)
		}
		for _, r := range resp.Results {
			addr := r.FormattedAddress
			if addr == "" {
				addr = r.Vicinity
			}
			out = append(out, ServiceLocation{
				Name:    r.Name,
				Type:    t,
				Address: addr,
				Coordinates: Coordinates{
					Latitude:  r.Geometry.Location.Lat,
					Longitude: r.Geometry.Location.Lng,
				},
			})
		}
	}
	return out, nil
}

func placeType(t ServiceType) maps.PlaceType {
	switch t {
	case ServiceFireStation:
		return maps.PlaceType("fire_station")
	case ServicePoliceStation:
		return maps.PlaceType("police")
	default:
		return maps.PlaceType("hospital")
	}
}
