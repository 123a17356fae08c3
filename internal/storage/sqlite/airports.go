package sqlite

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/dhightnm/fly-overhead-sub002/internal/physics"
	"github.com/dhightnm/fly-overhead-sub002/internal/routes"
	"github.com/dhightnm/fly-overhead-sub002/pkg/logger"
)

// AirportStore persists the airport/runway reference data used by
// position inference
type AirportStore struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewAirportStore creates an airport store on an already-opened database
func NewAirportStore(db *sql.DB, log *logger.Logger) *AirportStore {
	return &AirportStore{
		db:     db,
		logger: log.Named("airport-store"),
	}
}

// ImportAirportsCSV loads airports from an OurAirports-format CSV
// stream, replacing existing rows with the same ident. Returns the
// number of rows imported.
func (s *AirportStore) ImportAirportsCSV(ctx context.Context, r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("failed to read airports CSV header: %w", err)
	}
	col := columnIndex(header)
	for _, required := range []string{"ident", "type", "name", "latitude_deg", "longitude_deg"} {
		if _, ok := col[required]; !ok {
			return 0, fmt.Errorf("airports CSV missing column %q", required)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin airport import: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO airports (ident, name, type, lat, lon, elevation_ft, iso_country, municipality)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ident) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			lat = excluded.lat,
			lon = excluded.lon,
			elevation_ft = excluded.elevation_ft,
			iso_country = excluded.iso_country,
			municipality = excluded.municipality
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare airport insert: %w", err)
	}
	defer stmt.Close()

	imported := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("failed to read airports CSV record: %w", err)
		}

		ident := field(record, col, "ident")
		lat, latErr := strconv.ParseFloat(field(record, col, "latitude_deg"), 64)
		lon, lonErr := strconv.ParseFloat(field(record, col, "longitude_deg"), 64)
		if ident == "" || latErr != nil || lonErr != nil {
			continue
		}
		elevation, _ := strconv.Atoi(field(record, col, "elevation_ft"))

		if _, err := stmt.ExecContext(ctx,
			ident,
			field(record, col, "name"),
			field(record, col, "type"),
			lat, lon, elevation,
			field(record, col, "iso_country"),
			field(record, col, "municipality"),
		); err != nil {
			return 0, fmt.Errorf("failed to insert airport %s: %w", ident, err)
		}
		imported++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit airport import: %w", err)
	}

	s.logger.Info("Imported airports", logger.Int("count", imported))
	return imported, nil
}

// ImportRunwaysCSV loads runways from an OurAirports-format CSV stream.
// The table is rebuilt wholesale; runway rows have no natural key worth
// reconciling. Returns the number of rows imported.
func (s *AirportStore) ImportRunwaysCSV(ctx context.Context, r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("failed to read runways CSV header: %w", err)
	}
	col := columnIndex(header)
	if _, ok := col["airport_ident"]; !ok {
		return 0, fmt.Errorf("runways CSV missing column %q", "airport_ident")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin runway import: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM runways`); err != nil {
		return 0, fmt.Errorf("failed to clear runways: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO runways (airport_ident, length_ft, width_ft, surface, closed)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare runway insert: %w", err)
	}
	defer stmt.Close()

	imported := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("failed to read runways CSV record: %w", err)
		}

		ident := field(record, col, "airport_ident")
		if ident == "" {
			continue
		}
		length, _ := strconv.Atoi(field(record, col, "length_ft"))
		width, _ := strconv.Atoi(field(record, col, "width_ft"))
		closed := field(record, col, "closed") == "1"

		if _, err := stmt.ExecContext(ctx,
			ident, length, width,
			field(record, col, "surface"), closed,
		); err != nil {
			return 0, fmt.Errorf("failed to insert runway for %s: %w", ident, err)
		}
		imported++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit runway import: %w", err)
	}

	s.logger.Info("Imported runways", logger.Int("count", imported))
	return imported, nil
}

const airportColumns = `a.ident, a.name, a.type, a.lat, a.lon, a.elevation_ft,
	a.iso_country, a.municipality,
	COALESCE(MAX(CASE WHEN r.closed = 0 THEN r.length_ft END), 0),
	COUNT(CASE WHEN r.closed = 0 THEN r.id END)`

// FindByCode looks up a single airport by its ident. Returns nil when
// the code is unknown.
func (s *AirportStore) FindByCode(ctx context.Context, code string) (*routes.Airport, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM airports a
		LEFT JOIN runways r ON r.airport_ident = a.ident
		WHERE a.ident = ?
		GROUP BY a.ident
	`, airportColumns), strings.ToUpper(strings.TrimSpace(code)))

	airport, err := scanAirport(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query airport %s: %w", code, err)
	}
	return airport, nil
}

// FindNear returns candidate airports within radiusKm of a position,
// nearest first. A bounding box prefilters in SQL; exact distances are
// computed in Go. airportType narrows to one OurAirports type when
// non-empty.
func (s *AirportStore) FindNear(ctx context.Context, lat, lon, radiusKm float64, airportType string) ([]routes.Candidate, error) {
	latDelta := radiusKm / 111.0
	lonDelta := latDelta
	if cosLat := math.Cos(lat * math.Pi / 180); cosLat > 0.01 {
		lonDelta = latDelta / cosLat
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM airports a
		LEFT JOIN runways r ON r.airport_ident = a.ident
		WHERE a.lat BETWEEN ? AND ? AND a.lon BETWEEN ? AND ?
	`, airportColumns)
	args := []any{lat - latDelta, lat + latDelta, lon - lonDelta, lon + lonDelta}
	if airportType != "" {
		query += ` AND a.type = ?`
		args = append(args, airportType)
	}
	query += ` GROUP BY a.ident`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query nearby airports: %w", err)
	}
	defer rows.Close()

	var candidates []routes.Candidate
	for rows.Next() {
		airport, err := scanAirport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan airport: %w", err)
		}
		dist := physics.HaversineKM(lat, lon, airport.Lat, airport.Lon)
		if dist > radiusKm {
			continue
		}
		candidates = append(candidates, routes.Candidate{
			Airport:    *airport,
			DistanceKM: dist,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate nearby airports: %w", err)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].DistanceKM < candidates[j].DistanceKM
	})
	return candidates, nil
}

// CountAirports returns the number of loaded airports, used to decide
// whether reference data needs importing at startup
func (s *AirportStore) CountAirports(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM airports`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count airports: %w", err)
	}
	return count, nil
}

func scanAirport(row scanner) (*routes.Airport, error) {
	var a routes.Airport
	var elevation sql.NullInt64
	var country, municipality sql.NullString
	var maxRunwayFt float64

	err := row.Scan(&a.Ident, &a.Name, &a.Type, &a.Lat, &a.Lon,
		&elevation, &country, &municipality, &maxRunwayFt, &a.RunwayCount)
	if err != nil {
		return nil, err
	}

	a.ElevationFt = int(elevation.Int64)
	a.ISOCountry = country.String
	a.Municipality = municipality.String
	a.MaxRunwayM = maxRunwayFt * physics.FtToM
	a.Closed = a.Type == "closed"

	return &a, nil
}

// columnIndex maps CSV header names to positions so imports tolerate
// column reordering between OurAirports dumps
func columnIndex(header []string) map[string]int {
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	return col
}

func field(record []string, col map[string]int, name string) string {
	i, ok := col[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}
