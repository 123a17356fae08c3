package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dhightnm/fly-overhead-sub002/internal/routes"
	"github.com/dhightnm/fly-overhead-sub002/pkg/logger"
)

// nearDuplicateWindow is the departure-time tolerance inside which a
// history insert for the same aircraft/callsign/departure is treated as
// the same flight and completed in place instead of inserted.
const nearDuplicateWindow = 2 * time.Hour

// RouteStore persists the route cache and the append-only route history
type RouteStore struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewRouteStore creates a route store on an already-opened database
func NewRouteStore(db *sql.DB, log *logger.Logger) *RouteStore {
	return &RouteStore{
		db:     db,
		logger: log.Named("route-store"),
	}
}

// UpsertCache writes the best-known route for a cache key, replacing any
// previous entry. Expired rows are never deleted; they are superseded here.
func (s *RouteStore) UpsertCache(ctx context.Context, entry *routes.CacheEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO route_cache (
			cache_key, departure_airport, departure_airport_name,
			arrival_airport, arrival_airport_name, aircraft_type,
			source, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			departure_airport = excluded.departure_airport,
			departure_airport_name = excluded.departure_airport_name,
			arrival_airport = excluded.arrival_airport,
			arrival_airport_name = excluded.arrival_airport_name,
			aircraft_type = excluded.aircraft_type,
			source = excluded.source,
			created_at = excluded.created_at
	`,
		entry.CacheKey, entry.Departure, entry.DepartureName,
		entry.Arrival, entry.ArrivalName, entry.AircraftType,
		entry.Source, entry.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert route cache entry: %w", err)
	}
	return nil
}

// GetCache returns the cached route for a key, or nil when none exists.
// TTL is the caller's concern; the row is returned regardless of age.
func (s *RouteStore) GetCache(ctx context.Context, cacheKey string) (*routes.CacheEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT cache_key, departure_airport, departure_airport_name,
			arrival_airport, arrival_airport_name, aircraft_type,
			source, created_at
		FROM route_cache
		WHERE cache_key = ?
	`, cacheKey)

	var entry routes.CacheEntry
	var departure, departureName, arrival, arrivalName, acType sql.NullString
	var createdAt string

	err := row.Scan(&entry.CacheKey, &departure, &departureName,
		&arrival, &arrivalName, &acType, &entry.Source, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query route cache: %w", err)
	}

	entry.Departure = departure.String
	entry.DepartureName = departureName.String
	entry.Arrival = arrival.String
	entry.ArrivalName = arrivalName.String
	entry.AircraftType = acType.String

	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cache timestamp: %w", err)
	}
	entry.CreatedAt = t

	return &entry, nil
}

// InsertHistory appends one resolved flight to the route history.
// A near-duplicate of an existing row (same aircraft, callsign and
// departure, started inside the tolerance window) completes that row in
// place instead. Exact duplicates (same flight_key) are silently dropped;
// seeing the same flight again is expected, not an error.
func (s *RouteStore) InsertHistory(ctx context.Context, entry *routes.HistoryEntry) error {
	updated, err := s.completeNearDuplicate(ctx, entry)
	if err != nil {
		return err
	}
	if updated {
		return nil
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO route_history (
			flight_key, icao24, callsign, departure_airport,
			arrival_airport, aircraft_type, flight_start, flight_end,
			actual_flight_end, source, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(flight_key) DO NOTHING
	`,
		entry.FlightKey, entry.ICAO24, entry.Callsign, entry.Departure,
		entry.Arrival, entry.AircraftType,
		nullableTime(entry.FlightStart), nullableTime(entry.FlightEnd),
		nullableTime(entry.ActualFlightEnd), entry.Source,
		entry.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert route history entry: %w", err)
	}
	return nil
}

// completeNearDuplicate fills in the end-of-flight fields on an existing
// open history row matching the incoming entry within the tolerance
// window. Returns true when a row was completed.
func (s *RouteStore) completeNearDuplicate(ctx context.Context, entry *routes.HistoryEntry) (bool, error) {
	if entry.FlightStart == nil {
		return false, nil
	}
	if entry.ActualFlightEnd == nil && entry.FlightEnd == nil && entry.Arrival == "" {
		return false, nil
	}

	lower := entry.FlightStart.Add(-nearDuplicateWindow).UTC().Format(time.RFC3339)
	upper := entry.FlightStart.Add(nearDuplicateWindow).UTC().Format(time.RFC3339)

	res, err := s.db.ExecContext(ctx, `
		UPDATE route_history SET
			actual_flight_end = COALESCE(?, actual_flight_end),
			flight_end = COALESCE(?, flight_end),
			arrival_airport = CASE
				WHEN (arrival_airport IS NULL OR arrival_airport = '') AND ? != '' THEN ?
				ELSE arrival_airport END
		WHERE icao24 = ? AND callsign = ? AND departure_airport = ?
			AND flight_start BETWEEN ? AND ?
			AND actual_flight_end IS NULL
			AND flight_key != ?
	`,
		nullableTime(entry.ActualFlightEnd), nullableTime(entry.FlightEnd),
		entry.Arrival, entry.Arrival,
		entry.ICAO24, entry.Callsign, entry.Departure,
		lower, upper, entry.FlightKey,
	)
	if err != nil {
		return false, fmt.Errorf("failed to complete near-duplicate flight: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected > 0 {
		s.logger.Debug("Completed near-duplicate route history entry",
			logger.String("icao24", entry.ICAO24),
			logger.String("callsign", entry.Callsign),
			logger.Int64("rows", affected))
	}
	return affected > 0, nil
}

const historyColumns = `id, flight_key, icao24, callsign, departure_airport,
	arrival_airport, aircraft_type, flight_start, flight_end,
	actual_flight_end, source, created_at`

// MostRecentCompleteFlight returns the best historical flight for an
// aircraft with both endpoints known: currently-active flights first,
// then flights started within 24h, then most recent by creation time.
func (s *RouteStore) MostRecentCompleteFlight(ctx context.Context, icao24 string, now time.Time) (*routes.HistoryEntry, error) {
	nowStr := now.UTC().Format(time.RFC3339)
	dayAgo := now.Add(-24 * time.Hour).UTC().Format(time.RFC3339)

	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s FROM route_history
		WHERE icao24 = ?
			AND departure_airport IS NOT NULL AND departure_airport != ''
			AND arrival_airport IS NOT NULL AND arrival_airport != ''
		ORDER BY
			CASE WHEN flight_start <= ? AND actual_flight_end IS NULL
				AND (flight_end IS NULL OR flight_end >= ?) THEN 0 ELSE 1 END,
			CASE WHEN flight_start >= ? THEN 0 ELSE 1 END,
			created_at DESC
		LIMIT 1
	`, historyColumns), icao24, nowStr, nowStr, dayAgo)

	entry, err := scanHistory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query route history: %w", err)
	}
	return entry, nil
}

// MostRecentActiveCallsign returns the callsign of the most recent
// still-active flight for an aircraft, used to recover a missing
// callsign before querying the realtime provider
func (s *RouteStore) MostRecentActiveCallsign(ctx context.Context, icao24 string, now time.Time) (string, error) {
	nowStr := now.UTC().Format(time.RFC3339)

	var callsign sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT callsign FROM route_history
		WHERE icao24 = ? AND callsign IS NOT NULL AND callsign != ''
			AND flight_start <= ? AND actual_flight_end IS NULL
			AND (flight_end IS NULL OR flight_end >= ?)
		ORDER BY flight_start DESC
		LIMIT 1
	`, icao24, nowStr, nowStr).Scan(&callsign)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query active callsign: %w", err)
	}
	return callsign.String, nil
}

// ArrivalForDeparture returns the most recent historical flight for this
// callsign or aircraft departing from the given airport with a known
// arrival, used by position inference to reuse a known leg
func (s *RouteStore) ArrivalForDeparture(ctx context.Context, icao24, callsign, departure string) (*routes.HistoryEntry, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s FROM route_history
		WHERE (icao24 = ? OR (callsign != '' AND callsign = ?))
			AND departure_airport = ?
			AND arrival_airport IS NOT NULL AND arrival_airport != ''
		ORDER BY created_at DESC
		LIMIT 1
	`, historyColumns), icao24, routes.NormalizeCallsign(callsign), departure)

	entry, err := scanHistory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query arrival for departure: %w", err)
	}
	return entry, nil
}

func scanHistory(row scanner) (*routes.HistoryEntry, error) {
	var e routes.HistoryEntry
	var callsign, departure, arrival, acType sql.NullString
	var flightStart, flightEnd, actualEnd sql.NullString
	var createdAt string

	err := row.Scan(&e.ID, &e.FlightKey, &e.ICAO24, &callsign,
		&departure, &arrival, &acType,
		&flightStart, &flightEnd, &actualEnd, &e.Source, &createdAt)
	if err != nil {
		return nil, err
	}

	e.Callsign = callsign.String
	e.Departure = departure.String
	e.Arrival = arrival.String
	e.AircraftType = acType.String

	var perr error
	if e.FlightStart, perr = parseNullableTime(flightStart); perr != nil {
		return nil, perr
	}
	if e.FlightEnd, perr = parseNullableTime(flightEnd); perr != nil {
		return nil, perr
	}
	if e.ActualFlightEnd, perr = parseNullableTime(actualEnd); perr != nil {
		return nil, perr
	}

	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse history timestamp: %w", err)
	}
	e.CreatedAt = t

	return &e, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseNullableTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil, fmt.Errorf("failed to parse nullable timestamp: %w", err)
	}
	return &t, nil
}
