package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dhightnm/fly-overhead-sub002/internal/physics"
	"github.com/dhightnm/fly-overhead-sub002/internal/storage/sqlite"
	"github.com/dhightnm/fly-overhead-sub002/internal/telemetry"
	"github.com/dhightnm/fly-overhead-sub002/pkg/logger"
)

// FeederSample is the wire format feeder stations push. Track may be a
// magnetic heading when the station's equipment does not know local
// declination; HeadingMagnetic marks that case and the registry
// normalizes it to true before ingest.
type FeederSample struct {
	ICAO24          string   `json:"icao24"`
	Callsign        string   `json:"callsign"`
	Squawk          string   `json:"squawk"`
	Category        string   `json:"category"`
	Lat             *float64 `json:"lat"`
	Lon             *float64 `json:"lon"`
	BaroAltitude    *float64 `json:"baro_altitude"`
	GeoAltitude     *float64 `json:"geo_altitude"`
	Velocity        *float64 `json:"velocity"`
	Track           *float64 `json:"track"`
	HeadingMagnetic bool     `json:"heading_magnetic,omitempty"`
	VerticalRate    *float64 `json:"vertical_rate"`
	OnGround        *bool    `json:"on_ground"`
	LastContact     int64    `json:"last_contact"`
}

// Registry manages feeder registration and turns feeder pushes into
// samples carrying the feeder's trust priority
type Registry struct {
	store           *sqlite.FeederStore
	defaultPriority int
	logger          *logger.Logger
}

// NewRegistry creates a feeder registry
func NewRegistry(store *sqlite.FeederStore, defaultPriority int, log *logger.Logger) *Registry {
	return &Registry{
		store:           store,
		defaultPriority: defaultPriority,
		logger:          log.Named("feeders"),
	}
}

// Register creates a new feeder with a generated ID. Priority zero
// means "use the default".
func (r *Registry) Register(ctx context.Context, name string, lat, lon *float64, priority int) (*telemetry.Feeder, error) {
	if name == "" {
		return nil, fmt.Errorf("feeder name is required")
	}
	if priority <= 0 {
		priority = r.defaultPriority
	}

	feeder := &telemetry.Feeder{
		ID:        uuid.New().String(),
		Name:      name,
		Lat:       lat,
		Lon:       lon,
		Priority:  priority,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.store.Insert(ctx, feeder); err != nil {
		return nil, err
	}
	return feeder, nil
}

// Lookup returns a registered feeder, or nil when the ID is unknown
func (r *Registry) Lookup(ctx context.Context, id string) (*telemetry.Feeder, error) {
	return r.store.Get(ctx, id)
}

// List returns all registered feeders
func (r *Registry) List(ctx context.Context) ([]*telemetry.Feeder, error) {
	return r.store.List(ctx)
}

// ToSample converts a feeder push into a sample stamped with the
// feeder's identity and priority. Magnetic headings are normalized to
// true track using the local declination at the reported position.
func (r *Registry) ToSample(feeder *telemetry.Feeder, fs *FeederSample) *telemetry.Sample {
	sample := &telemetry.Sample{
		ICAO24:         fs.ICAO24,
		Callsign:       fs.Callsign,
		Squawk:         fs.Squawk,
		Category:       fs.Category,
		Lat:            fs.Lat,
		Lon:            fs.Lon,
		BaroAltitude:   fs.BaroAltitude,
		GeoAltitude:    fs.GeoAltitude,
		Velocity:       fs.Velocity,
		Track:          fs.Track,
		VerticalRate:   fs.VerticalRate,
		OnGround:       fs.OnGround,
		LastContact:    fs.LastContact,
		DataSource:     telemetry.SourceFeeder,
		FeederID:       feeder.ID,
		SourcePriority: feeder.Priority,
		IngestedAt:     time.Now().UTC(),
	}

	if fs.HeadingMagnetic && fs.Track != nil && fs.Lat != nil && fs.Lon != nil {
		altM := 0.0
		if fs.GeoAltitude != nil {
			altM = *fs.GeoAltitude
		} else if fs.BaroAltitude != nil {
			altM = *fs.BaroAltitude
		}
		trueTrack := physics.MagneticToTrue(*fs.Track, *fs.Lat, *fs.Lon, altM, sample.IngestedAt)
		sample.Track = &trueTrack
	}

	return sample
}
