package location

import (
	"context"
	"errors"
	"fmt"
	"time"

	"emergency-service/internal/logging"
)

const (
	SourceProvider    = "provider"
	SourceReference   = "reference"
	SourceCoordinates = "coordinates"

	defaultGeocodeTimeout = 3 * time.Second
)

// ErrNoResult is returned by a Geocoder that found nothing for the coordinates.
var ErrNoResult = errors.New("no geocoding result")

// Geocoder resolves coordinates to a formatted address.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (string, error)
}

// ReferencePoint is a known place used when no provider answers.
type ReferencePoint struct {
	Name         string
	Coordinates  Coordinates
	RadiusMeters float64
}

// DefaultReferencePoints covers the largest US metro centers.
var DefaultReferencePoints = []ReferencePoint{
	{Name: "New York, NY", Coordinates: Coordinates{40.7128, -74.0060}, RadiusMeters: 500},
	{Name: "Los Angeles, CA", Coordinates: Coordinates{34.0522, -118.2437}, RadiusMeters: 500},
	{Name: "Chicago, IL", Coordinates: Coordinates{41.8781, -87.6298}, RadiusMeters: 500},
	{Name: "Houston, TX", Coordinates: Coordinates{29.7604, -95.3698}, RadiusMeters: 500},
	{Name: "Phoenix, AZ", Coordinates: Coordinates{33.4484, -112.0740}, RadiusMeters: 500},
}

// Address is the outcome of a reverse geocode.
type Address struct {
	Text   string
	Source string
}

// Enricher turns coordinates into addresses and ranks nearby services.
type Enricher struct {
	geocoder  Geocoder
	directory ServiceDirectory
	refs      []ReferencePoint
	timeout   time.Duration
	logger    *logging.Logger
}

type Option func(*Enricher)

// WithGeocoder sets the online provider. Without one only the offline fallback is used.
func WithGeocoder(g Geocoder) Option {
	return func(e *Enricher) { e.geocoder = g }
}

func WithDirectory(d ServiceDirectory) Option {
	return func(e *Enricher) { e.directory = d }
}

func WithReferencePoints(refs []ReferencePoint) Option {
	return func(e *Enricher) { e.refs = refs }
}

// WithTimeout bounds each provider call.
func WithTimeout(d time.Duration) Option {
	return func(e *Enricher) {
		if d > 0 {
			e.timeout = d
		}
	}
}

func NewEnricher(logger *logging.Logger, opts ...Option) *Enricher {
	e := &Enricher{
		refs:      DefaultReferencePoints,
		directory: FallbackDirectory{},
		timeout:   defaultGeocodeTimeout,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ReverseGeocode resolves lat/lon to an address. The provider is asked first;
// on failure or timeout the nearest reference point within its radius is used,
// else the coordinates themselves. It reports false only for invalid coordinates.
func (e *Enricher) ReverseGeocode(ctx context.Context, lat, lon float64) (Address, bool) {
	c := Coordinates{Latitude: lat, Longitude: lon}
	if !ValidateCoordinates(c) {
		return Address{}, false
	}

	if e.geocoder != nil {
		addr, err := e.callProvider(ctx, lat, lon)
		if err == nil && addr != "" {
			return Address{Text: addr, Source: SourceProvider}, true
		}
		e.logger.Warnf("Reverse geocoding %s failed, using offline fallback: %v", FormatCoordinates(c, 4), err)
	}
	return e.fallback(c), true
}

// callProvider runs the provider in its own goroutine so one that ignores
// cancellation cannot hold the caller past the timeout.
func (e *Enricher) callProvider(ctx context.Context, lat, lon float64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type result struct {
		addr string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		addr, err := e.geocoder.ReverseGeocode(ctx, lat, lon)
		done <- result{addr, err}
	}()

	select {
	case r := <-done:
		if r.err == nil && r.addr == "" {
			return "", ErrNoResult
		}
		return r.addr, r.err
	case <-ctx.Done():
		return "", fmt.Errorf("geocoding provider: %w", ctx.Err())
	}
}

func (e *Enricher) fallback(c Coordinates) Address {
	var best *ReferencePoint
	bestDist := 0.0
	for i := range e.refs {
		ref := &e.refs[i]
		d := Distance(c, ref.Coordinates)
		if d < ref.RadiusMeters && (best == nil || d < bestDist) {
			best, bestDist = ref, d
		}
	}
	if best != nil {
		return Address{Text: "Near " + best.Name, Source: SourceReference}
	}
	return Address{Text: FormatCoordinates(c, 4), Source: SourceCoordinates}
}
