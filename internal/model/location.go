package model

// Provenance records which collaborator produced a LocationPoint.
type Provenance string

const (
	ProvenancePlaceSearch  Provenance = "place_search"
	ProvenanceDeviceSensor Provenance = "device_sensor"
)

// LocationPoint is a resolved pickup or dropoff place. Instances are values:
// a new user selection fully replaces the old one, never merges into it.
type LocationPoint struct {
	Label     string  `json:"label"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	// TimeZone is the IANA zone id when the provider knows it (ex: America/New_York).
	TimeZone string `json:"timeZone,omitempty"`
	// ProviderID is the provider-specific place id (ex: Nominatim place_id).
	ProviderID string     `json:"providerId,omitempty"`
	Provenance Provenance `json:"provenance"`
}

// PointFromPlace builds a LocationPoint from an autocomplete selection.
func PointFromPlace(label string, lat, lng float64, providerID, timeZone string) LocationPoint {
	return LocationPoint{
		Label:      label,
		Latitude:   lat,
		Longitude:  lng,
		TimeZone:   timeZone,
		ProviderID: providerID,
		Provenance: ProvenancePlaceSearch,
	}
}

// PointFromDevice builds a LocationPoint from the device geolocation sensor.
func PointFromDevice(label string, lat, lng float64, timeZone string) LocationPoint {
	return LocationPoint{
		Label:      label,
		Latitude:   lat,
		Longitude:  lng,
		TimeZone:   timeZone,
		Provenance: ProvenanceDeviceSensor,
	}
}
