package telemetry

import (
	"time"
)

// Data source tags recorded on every sample and on the canonical state.
const (
	SourcePoller   = "poller"
	SourceFeeder   = "feeder"
	SourceRealtime = "realtime-api"
)

// Sample is a single ingested observation for one aircraft. Samples are
// append-only: every accepted sample lands in the immutable log regardless
// of whether it wins the canonical-state merge.
//
// Nullable measurements use pointers so a missing field from one source
// never clobbers a present value from another.
type Sample struct {
	ICAO24         string    `json:"icao24"`
	Callsign       string    `json:"callsign"`
	Squawk         string    `json:"squawk"`
	Category       string    `json:"category"`
	Lat            *float64  `json:"lat"`
	Lon            *float64  `json:"lon"`
	BaroAltitude   *float64  `json:"baro_altitude"` // meters
	GeoAltitude    *float64  `json:"geo_altitude"`  // meters
	Velocity       *float64  `json:"velocity"`      // m/s over ground
	Track          *float64  `json:"track"`         // degrees true
	VerticalRate   *float64  `json:"vertical_rate"` // m/s, negative = descending
	OnGround       *bool     `json:"on_ground"`
	LastContact    int64     `json:"last_contact"` // epoch seconds from the source
	DataSource     string    `json:"data_source"`
	FeederID       string    `json:"feeder_id"`
	SourcePriority int       `json:"source_priority"` // lower = more trusted
	IngestedAt     time.Time `json:"ingested_at"`
}

// HasPosition reports whether the sample carries a usable lat/lon pair
func (s *Sample) HasPosition() bool {
	return s.Lat != nil && s.Lon != nil
}

// AircraftState is the canonical, continuously updated row for one airframe,
// produced by merging samples under the priority/staleness rules
type AircraftState struct {
	ICAO24         string    `json:"icao24"`
	Callsign       string    `json:"callsign"`
	Squawk         string    `json:"squawk"`
	Category       string    `json:"category"`
	Lat            *float64  `json:"lat"`
	Lon            *float64  `json:"lon"`
	BaroAltitude   *float64  `json:"baro_altitude"`
	GeoAltitude    *float64  `json:"geo_altitude"`
	Velocity       *float64  `json:"velocity"`
	Track          *float64  `json:"track"`
	VerticalRate   *float64  `json:"vertical_rate"`
	OnGround       *bool     `json:"on_ground"`
	LastContact    int64     `json:"last_contact"`
	DataSource     string    `json:"data_source"`
	FeederID       string    `json:"feeder_id"`
	SourcePriority int       `json:"source_priority"`
	IngestedAt     time.Time `json:"ingested_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Feeder is a registered external contributor. Trust is expressed purely
// through the priority attached to its samples.
type Feeder struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Lat       *float64  `json:"lat,omitempty"`
	Lon       *float64  `json:"lon,omitempty"`
	Priority  int       `json:"priority"`
	CreatedAt time.Time `json:"created_at"`
}
