package routes

// Airport is one airport/airfield with the runway attributes the
// candidate scorer needs
type Airport struct {
	Ident        string  `json:"ident"`
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
	ElevationFt  int     `json:"elevation_ft,omitempty"`
	ISOCountry   string  `json:"iso_country,omitempty"`
	Municipality string  `json:"municipality,omitempty"`

	// Aggregated from the runways table
	MaxRunwayM  float64 `json:"max_runway_m"`
	RunwayCount int     `json:"runway_count"`
	Closed      bool    `json:"closed,omitempty"`
}

// Candidate is an airport paired with its distance to the reference
// position being scored
type Candidate struct {
	Airport
	DistanceKM float64 `json:"distance_km"`
}
