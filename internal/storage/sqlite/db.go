package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/dhightnm/fly-overhead-sub002/pkg/logger"
	_ "modernc.org/sqlite"
)

// Open opens (or creates) the SQLite database at the given path, applies
// the connection pragmas, and initializes the schema.
func Open(dbPath string, log *logger.Logger) (*sql.DB, error) {
	storageLogger := log.Named("sqlite")

	storageLogger.Info("Initializing SQLite storage",
		logger.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Set pragmas for better performance and concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA cache_size=10000"); err != nil {
		return nil, fmt.Errorf("failed to set cache size: %w", err)
	}

	if err := initSchema(db, storageLogger); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// initSchema creates all tables and indexes if they don't exist
func initSchema(db *sql.DB, log *logger.Logger) error {
	log.Info("Initializing database schema")

	statements := []struct {
		name string
		sql  string
	}{
		{"aircraft_states", `
			CREATE TABLE IF NOT EXISTS aircraft_states (
				icao24 TEXT PRIMARY KEY,
				callsign TEXT,
				squawk TEXT,
				category TEXT,
				lat REAL,
				lon REAL,
				baro_altitude REAL,
				geo_altitude REAL,
				velocity REAL,
				track REAL,
				vertical_rate REAL,
				on_ground INTEGER,
				last_contact INTEGER NOT NULL,
				data_source TEXT,
				feeder_id TEXT,
				source_priority INTEGER NOT NULL,
				ingestion_timestamp TIMESTAMP NOT NULL,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			)`},
		{"aircraft_state_samples", `
			CREATE TABLE IF NOT EXISTS aircraft_state_samples (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				icao24 TEXT NOT NULL,
				callsign TEXT,
				squawk TEXT,
				category TEXT,
				lat REAL,
				lon REAL,
				baro_altitude REAL,
				geo_altitude REAL,
				velocity REAL,
				track REAL,
				vertical_rate REAL,
				on_ground INTEGER,
				last_contact INTEGER NOT NULL,
				data_source TEXT,
				feeder_id TEXT,
				source_priority INTEGER NOT NULL,
				ingestion_timestamp TIMESTAMP NOT NULL
			)`},
		{"route_cache", `
			CREATE TABLE IF NOT EXISTS route_cache (
				cache_key TEXT PRIMARY KEY,
				departure_airport TEXT,
				departure_airport_name TEXT,
				arrival_airport TEXT,
				arrival_airport_name TEXT,
				aircraft_type TEXT,
				source TEXT NOT NULL,
				created_at TIMESTAMP NOT NULL
			)`},
		{"route_history", `
			CREATE TABLE IF NOT EXISTS route_history (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				flight_key TEXT NOT NULL UNIQUE,
				icao24 TEXT NOT NULL,
				callsign TEXT,
				departure_airport TEXT,
				arrival_airport TEXT,
				aircraft_type TEXT,
				flight_start TIMESTAMP,
				flight_end TIMESTAMP,
				actual_flight_end TIMESTAMP,
				source TEXT NOT NULL,
				created_at TIMESTAMP NOT NULL
			)`},
		{"feeders", `
			CREATE TABLE IF NOT EXISTS feeders (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				lat REAL,
				lon REAL,
				priority INTEGER NOT NULL,
				created_at TIMESTAMP NOT NULL
			)`},
		{"airports", `
			CREATE TABLE IF NOT EXISTS airports (
				ident TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				type TEXT NOT NULL,
				lat REAL NOT NULL,
				lon REAL NOT NULL,
				elevation_ft INTEGER,
				iso_country TEXT,
				municipality TEXT
			)`},
		{"runways", `
			CREATE TABLE IF NOT EXISTS runways (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				airport_ident TEXT NOT NULL,
				length_ft INTEGER,
				width_ft INTEGER,
				surface TEXT,
				closed INTEGER DEFAULT 0
			)`},
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt.sql); err != nil {
			return fmt.Errorf("failed to create %s table: %w", stmt.name, err)
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_samples_icao24_ingested ON aircraft_state_samples(icao24, ingestion_timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_samples_ingested ON aircraft_state_samples(ingestion_timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_states_last_contact ON aircraft_states(last_contact)`,
		`CREATE INDEX IF NOT EXISTS idx_route_history_icao24 ON route_history(icao24, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_route_history_callsign ON route_history(callsign)`,
		`CREATE INDEX IF NOT EXISTS idx_airports_lat_lon ON airports(lat, lon)`,
		`CREATE INDEX IF NOT EXISTS idx_runways_airport ON runways(airport_ident)`,
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	log.Info("Database schema initialized successfully")
	return nil
}
