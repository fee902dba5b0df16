package services

import (
	"emergency-service/internal/models"
)

// SeverityFor classifies an event type. Unknown types are treated as high.
func SeverityFor(t models.EventType) models.Severity {
	switch t {
	case models.EventMedical, models.EventFire:
		return models.SeverityCritical
	default:
		return models.SeverityHigh
	}
}

// USRegions are the bounding boxes in which 911 is the emergency number.
var USRegions = []models.Region{
	{Name: "continental-us", MinLat: 24.396308, MaxLat: 49.384358, MinLon: -125.0, MaxLon: -66.93457},
	{Name: "hawaii", MinLat: 18.91619, MaxLat: 28.402123, MinLon: -178.334698, MaxLon: -154.806773},
	{Name: "alaska", MinLat: 51.209464, MaxLat: 71.406235, MinLon: -179.148909, MaxLon: -129.979506},
}

// FlatNumberPolicy dials number everywhere.
func FlatNumberPolicy(number string) models.NumberPolicy {
	return models.NumberPolicy{Default: number}
}

// JurisdictionNumberPolicy dials 911 inside the US regions and 112 elsewhere.
func JurisdictionNumberPolicy() models.NumberPolicy {
	p := models.NumberPolicy{Default: "112"}
	for _, r := range USRegions {
		p.Rules = append(p.Rules, models.NumberRule{Region: r, Number: "911"})
	}
	return p
}

// NumberResolver picks the number to dial for an event.
type NumberResolver struct {
	policy models.NumberPolicy
}

func NewNumberResolver(policy models.NumberPolicy) *NumberResolver {
	if policy.Default == "" {
		policy.Default = "911"
	}
	return &NumberResolver{policy: policy}
}

// Resolve returns the first matching rule's number for loc, else the default.
// The event type does not change the number under either policy.
func (r *NumberResolver) Resolve(_ models.EventType, loc *models.Location) string {
	if loc != nil {
		for _, rule := range r.policy.Rules {
			if rule.Region.Contains(loc.Latitude, loc.Longitude) {
				return rule.Number
			}
		}
	}
	return r.policy.Default
}
