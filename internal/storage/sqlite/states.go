package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dhightnm/fly-overhead-sub002/internal/telemetry"
	"github.com/dhightnm/fly-overhead-sub002/pkg/logger"
)

// stalenessWindowSecs is the window after which any source may override
// canonical fields regardless of priority, so a silent high-priority
// source cannot permanently lock out fresher low-priority data.
const stalenessWindowSecs = 600

// StateStore persists canonical aircraft states and the immutable
// per-observation sample log
type StateStore struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewStateStore creates a state store on an already-opened database
func NewStateStore(db *sql.DB, log *logger.Logger) *StateStore {
	return &StateStore{
		db:     db,
		logger: log.Named("state-store"),
	}
}

// AppendSample appends one observation to the immutable sample log.
// It never merges or rejects on content; a failure here is a storage
// failure and must be propagated to the caller.
func (s *StateStore) AppendSample(ctx context.Context, sample *telemetry.Sample) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO aircraft_state_samples (
			icao24, callsign, squawk, category, lat, lon,
			baro_altitude, geo_altitude, velocity, track, vertical_rate,
			on_ground, last_contact, data_source, feeder_id,
			source_priority, ingestion_timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		sample.ICAO24, sample.Callsign, sample.Squawk, sample.Category,
		sample.Lat, sample.Lon, sample.BaroAltitude, sample.GeoAltitude,
		sample.Velocity, sample.Track, sample.VerticalRate,
		nullableBool(sample.OnGround), sample.LastContact,
		sample.DataSource, sample.FeederID, sample.SourcePriority,
		sample.IngestedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to append state sample: %w", err)
	}
	return nil
}

// positionGroupFields are merged under the priority-or-staleness rule,
// with a non-null incoming value preferred over a null existing one
// inside the winning branch.
var positionGroupFields = []string{
	"lat", "lon", "baro_altitude", "geo_altitude",
	"velocity", "track", "vertical_rate", "on_ground",
}

// metadataFields follow the position group's rule exactly so recorded
// provenance always matches whichever values actually won.
var metadataFields = []string{
	"last_contact", "data_source", "feeder_id",
	"source_priority", "ingestion_timestamp",
}

// UpsertState merges one sample into the canonical state row for its
// aircraft as a single conditional upsert statement. The merge must stay
// one indivisible statement: splitting it into read-then-write in Go
// reintroduces lost updates under concurrent feeders.
func (s *StateStore) UpsertState(ctx context.Context, sample *telemetry.Sample, now time.Time) error {
	// The winning branch applies when the incoming source is at least as
	// trusted, or the existing row has gone stale.
	win := fmt.Sprintf(
		"(excluded.source_priority <= aircraft_states.source_priority OR (%d - aircraft_states.last_contact) > %d)",
		now.Unix(), stalenessWindowSecs,
	)

	var sets []string
	for _, f := range positionGroupFields {
		sets = append(sets, fmt.Sprintf(
			"%[1]s = CASE WHEN %[2]s THEN COALESCE(excluded.%[1]s, aircraft_states.%[1]s) ELSE aircraft_states.%[1]s END",
			f, win,
		))
	}
	for _, f := range metadataFields {
		sets = append(sets, fmt.Sprintf(
			"%[1]s = CASE WHEN %[2]s THEN excluded.%[1]s ELSE aircraft_states.%[1]s END",
			f, win,
		))
	}
	// Identity fields: any non-empty report is informative, so a non-empty
	// incoming value always fills an empty slot and an empty incoming value
	// never erases a known one, independent of priority.
	for _, f := range []string{"callsign", "squawk"} {
		sets = append(sets, fmt.Sprintf(`%[1]s = CASE
			WHEN excluded.%[1]s != '' AND (aircraft_states.%[1]s IS NULL OR aircraft_states.%[1]s = '') THEN excluded.%[1]s
			WHEN excluded.%[1]s = '' OR excluded.%[1]s IS NULL THEN aircraft_states.%[1]s
			WHEN %[2]s THEN excluded.%[1]s
			ELSE aircraft_states.%[1]s END`, f, win))
	}
	// Category never regresses to empty even when the winning branch applies
	sets = append(sets, fmt.Sprintf(`category = CASE
		WHEN %s AND excluded.category != '' AND excluded.category IS NOT NULL THEN excluded.category
		ELSE aircraft_states.category END`, win))
	sets = append(sets, "updated_at = excluded.updated_at")

	query := fmt.Sprintf(`
		INSERT INTO aircraft_states (
			icao24, callsign, squawk, category, lat, lon,
			baro_altitude, geo_altitude, velocity, track, vertical_rate,
			on_ground, last_contact, data_source, feeder_id,
			source_priority, ingestion_timestamp, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(icao24) DO UPDATE SET
		%s
	`, strings.Join(sets, ",\n\t\t"))

	nowStr := now.UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, query,
		sample.ICAO24, sample.Callsign, sample.Squawk, sample.Category,
		sample.Lat, sample.Lon, sample.BaroAltitude, sample.GeoAltitude,
		sample.Velocity, sample.Track, sample.VerticalRate,
		nullableBool(sample.OnGround), sample.LastContact,
		sample.DataSource, sample.FeederID, sample.SourcePriority,
		sample.IngestedAt.UTC().Format(time.RFC3339), nowStr, nowStr,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert aircraft state: %w", err)
	}
	return nil
}

const stateColumns = `icao24, callsign, squawk, category, lat, lon,
	baro_altitude, geo_altitude, velocity, track, vertical_rate,
	on_ground, last_contact, data_source, feeder_id,
	source_priority, ingestion_timestamp, created_at, updated_at`

// GetState returns the canonical state for one aircraft, or nil when
// the aircraft has never been seen
func (s *StateStore) GetState(ctx context.Context, icao24 string) (*telemetry.AircraftState, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s FROM aircraft_states WHERE icao24 = ?
	`, stateColumns), icao24)

	state, err := scanState(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query aircraft state: %w", err)
	}
	return state, nil
}

// ListActiveStates returns all canonical states with a last_contact
// within the given window
func (s *StateStore) ListActiveStates(ctx context.Context, since time.Time) ([]*telemetry.AircraftState, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM aircraft_states
		WHERE last_contact >= ?
		ORDER BY icao24
	`, stateColumns), since.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query active states: %w", err)
	}
	defer rows.Close()

	var states []*telemetry.AircraftState
	for rows.Next() {
		state, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan state row: %w", err)
		}
		states = append(states, state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating state rows: %w", err)
	}
	return states, nil
}

// FirstPositionSample returns the earliest logged sample with a position
// for the aircraft, used as the departure anchor for route inference
func (s *StateStore) FirstPositionSample(ctx context.Context, icao24 string) (*telemetry.Sample, error) {
	return s.positionSample(ctx, icao24, "ASC")
}

// LatestPositionSample returns the most recent logged sample with a
// position for the aircraft
func (s *StateStore) LatestPositionSample(ctx context.Context, icao24 string) (*telemetry.Sample, error) {
	return s.positionSample(ctx, icao24, "DESC")
}

func (s *StateStore) positionSample(ctx context.Context, icao24, order string) (*telemetry.Sample, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT icao24, callsign, squawk, category, lat, lon,
			baro_altitude, geo_altitude, velocity, track, vertical_rate,
			on_ground, last_contact, data_source, feeder_id,
			source_priority, ingestion_timestamp
		FROM aircraft_state_samples
		WHERE icao24 = ? AND lat IS NOT NULL AND lon IS NOT NULL
		ORDER BY ingestion_timestamp %s, id %s
		LIMIT 1
	`, order, order), icao24)

	sample, err := scanSample(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query position sample: %w", err)
	}
	return sample, nil
}

// CountStates returns the number of canonical aircraft rows
func (s *StateStore) CountStates(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM aircraft_states").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count aircraft states: %w", err)
	}
	return count, nil
}

// CountSamples returns the number of logged samples
func (s *StateStore) CountSamples(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM aircraft_state_samples").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count state samples: %w", err)
	}
	return count, nil
}

// scanner covers both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanState(row scanner) (*telemetry.AircraftState, error) {
	var st telemetry.AircraftState
	var callsign, squawk, category, dataSource, feederID sql.NullString
	var lat, lon, baroAlt, geoAlt, velocity, track, vertRate sql.NullFloat64
	var onGround sql.NullInt64
	var ingested, created, updated string

	err := row.Scan(
		&st.ICAO24, &callsign, &squawk, &category, &lat, &lon,
		&baroAlt, &geoAlt, &velocity, &track, &vertRate,
		&onGround, &st.LastContact, &dataSource, &feederID,
		&st.SourcePriority, &ingested, &created, &updated,
	)
	if err != nil {
		return nil, err
	}

	st.Callsign = callsign.String
	st.Squawk = squawk.String
	st.Category = category.String
	st.DataSource = dataSource.String
	st.FeederID = feederID.String
	st.Lat = nullableFloat(lat)
	st.Lon = nullableFloat(lon)
	st.BaroAltitude = nullableFloat(baroAlt)
	st.GeoAltitude = nullableFloat(geoAlt)
	st.Velocity = nullableFloat(velocity)
	st.Track = nullableFloat(track)
	st.VerticalRate = nullableFloat(vertRate)
	if onGround.Valid {
		b := onGround.Int64 != 0
		st.OnGround = &b
	}

	for _, ts := range []struct {
		raw  string
		dest *time.Time
	}{
		{ingested, &st.IngestedAt},
		{created, &st.CreatedAt},
		{updated, &st.UpdatedAt},
	} {
		t, err := time.Parse(time.RFC3339, ts.raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse state timestamp: %w", err)
		}
		*ts.dest = t
	}

	return &st, nil
}

func scanSample(row scanner) (*telemetry.Sample, error) {
	var sm telemetry.Sample
	var callsign, squawk, category, dataSource, feederID sql.NullString
	var lat, lon, baroAlt, geoAlt, velocity, track, vertRate sql.NullFloat64
	var onGround sql.NullInt64
	var ingested string

	err := row.Scan(
		&sm.ICAO24, &callsign, &squawk, &category, &lat, &lon,
		&baroAlt, &geoAlt, &velocity, &track, &vertRate,
		&onGround, &sm.LastContact, &dataSource, &feederID,
		&sm.SourcePriority, &ingested,
	)
	if err != nil {
		return nil, err
	}

	sm.Callsign = callsign.String
	sm.Squawk = squawk.String
	sm.Category = category.String
	sm.DataSource = dataSource.String
	sm.FeederID = feederID.String
	sm.Lat = nullableFloat(lat)
	sm.Lon = nullableFloat(lon)
	sm.BaroAltitude = nullableFloat(baroAlt)
	sm.GeoAltitude = nullableFloat(geoAlt)
	sm.Velocity = nullableFloat(velocity)
	sm.Track = nullableFloat(track)
	sm.VerticalRate = nullableFloat(vertRate)
	if onGround.Valid {
		b := onGround.Int64 != 0
		sm.OnGround = &b
	}

	t, err := time.Parse(time.RFC3339, ingested)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sample timestamp: %w", err)
	}
	sm.IngestedAt = t

	return &sm, nil
}

func nullableBool(b *bool) any {
	if b == nil {
		return nil
	}
	if *b {
		return 1
	}
	return 0
}

func nullableFloat(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}
