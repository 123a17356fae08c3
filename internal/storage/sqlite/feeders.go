package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dhightnm/fly-overhead-sub002/internal/telemetry"
	"github.com/dhightnm/fly-overhead-sub002/pkg/logger"
)

// FeederStore persists registered feeder stations
type FeederStore struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewFeederStore creates a feeder store on an already-opened database
func NewFeederStore(db *sql.DB, log *logger.Logger) *FeederStore {
	return &FeederStore{
		db:     db,
		logger: log.Named("feeder-store"),
	}
}

// Insert registers a new feeder
func (s *FeederStore) Insert(ctx context.Context, f *telemetry.Feeder) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feeders (id, name, lat, lon, priority, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		f.ID, f.Name, f.Lat, f.Lon,
		f.Priority, f.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert feeder: %w", err)
	}

	s.logger.Info("Registered feeder",
		logger.String("id", f.ID),
		logger.String("name", f.Name),
		logger.Int("priority", f.Priority))
	return nil
}

// Get returns a feeder by ID, or nil when unknown
func (s *FeederStore) Get(ctx context.Context, id string) (*telemetry.Feeder, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, lat, lon, priority, created_at
		FROM feeders WHERE id = ?
	`, id)

	var f telemetry.Feeder
	var lat, lon sql.NullFloat64
	var createdAt string

	err := row.Scan(&f.ID, &f.Name, &lat, &lon, &f.Priority, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query feeder: %w", err)
	}

	f.Lat = nullableFloat(lat)
	f.Lon = nullableFloat(lon)

	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feeder timestamp: %w", err)
	}
	f.CreatedAt = t

	return &f, nil
}

// List returns all registered feeders, newest first
func (s *FeederStore) List(ctx context.Context) ([]*telemetry.Feeder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, lat, lon, priority, created_at
		FROM feeders ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query feeders: %w", err)
	}
	defer rows.Close()

	var feeders []*telemetry.Feeder
	for rows.Next() {
		var f telemetry.Feeder
		var lat, lon sql.NullFloat64
		var createdAt string
		if err := rows.Scan(&f.ID, &f.Name, &lat, &lon, &f.Priority, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan feeder: %w", err)
		}
		f.Lat = nullableFloat(lat)
		f.Lon = nullableFloat(lon)
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse feeder timestamp: %w", err)
		}
		f.CreatedAt = t
		feeders = append(feeders, &f)
	}
	return feeders, rows.Err()
}
