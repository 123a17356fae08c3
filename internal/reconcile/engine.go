// Package reconcile merges telemetry samples from competing sources
// into the canonical per-aircraft state.
//
// Every accepted sample is appended to the immutable sample log first,
// then folded into the canonical state through a single conditional
// upsert. The merge itself lives in the storage layer so it stays
// atomic under concurrent writers; this engine owns validation and
// sequencing.
package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dhightnm/fly-overhead-sub002/internal/telemetry"
	"github.com/dhightnm/fly-overhead-sub002/pkg/logger"
)

// SampleStore is the storage surface the engine needs
type SampleStore interface {
	AppendSample(ctx context.Context, sample *telemetry.Sample) error
	UpsertState(ctx context.Context, sample *telemetry.Sample, now time.Time) error
}

// ValidationError marks a sample rejected before any write. Callers
// must not retry these.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid sample: %s %s", e.Field, e.Reason)
}

// Engine validates and reconciles incoming samples
type Engine struct {
	store  SampleStore
	logger *logger.Logger
	now    func() time.Time
}

// New creates a reconciliation engine
func New(store SampleStore, log *logger.Logger) *Engine {
	return &Engine{
		store:  store,
		logger: log.Named("reconcile"),
		now:    time.Now,
	}
}

// Reconcile validates a sample, appends it to the immutable log and
// merges it into the canonical state. A validation failure rejects the
// sample before any write; a storage failure is propagated so the
// caller can retry the whole ingestion.
func (e *Engine) Reconcile(ctx context.Context, sample *telemetry.Sample) error {
	if err := validate(sample); err != nil {
		return err
	}

	sample.ICAO24 = strings.ToLower(strings.TrimSpace(sample.ICAO24))
	// Sources pad callsigns with spaces; an all-blank callsign must
	// reach the merge as empty or it counts as a known value there
	sample.Callsign = strings.TrimSpace(sample.Callsign)
	sample.Squawk = strings.TrimSpace(sample.Squawk)
	if sample.IngestedAt.IsZero() {
		sample.IngestedAt = e.now().UTC()
	}

	if err := e.store.AppendSample(ctx, sample); err != nil {
		return fmt.Errorf("failed to append sample: %w", err)
	}
	if err := e.store.UpsertState(ctx, sample, e.now().UTC()); err != nil {
		return fmt.Errorf("failed to merge state: %w", err)
	}

	e.logger.Debug("Reconciled sample",
		logger.String("icao24", sample.ICAO24),
		logger.String("source", sample.DataSource),
		logger.Int("priority", sample.SourcePriority))
	return nil
}

func validate(sample *telemetry.Sample) error {
	if strings.TrimSpace(sample.ICAO24) == "" {
		return &ValidationError{Field: "icao24", Reason: "is required"}
	}
	if sample.Lat != nil && (*sample.Lat < -90 || *sample.Lat > 90) {
		return &ValidationError{Field: "lat", Reason: "out of range"}
	}
	if sample.Lon != nil && (*sample.Lon < -180 || *sample.Lon > 180) {
		return &ValidationError{Field: "lon", Reason: "out of range"}
	}
	if sample.Lat != nil && sample.Lon == nil || sample.Lat == nil && sample.Lon != nil {
		return &ValidationError{Field: "position", Reason: "requires both lat and lon"}
	}
	if sample.LastContact <= 0 {
		return &ValidationError{Field: "last_contact", Reason: "is required"}
	}
	if sample.SourcePriority <= 0 {
		return &ValidationError{Field: "source_priority", Reason: "must be positive"}
	}
	return nil
}
