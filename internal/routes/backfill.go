package routes

import (
	"context"
	"sync"
	"time"

	"github.com/dhightnm/fly-overhead-sub002/internal/telemetry"
	"github.com/dhightnm/fly-overhead-sub002/pkg/logger"
)

// currentFlightWindow separates aircraft still flying from ones whose
// flight is over and therefore eligible for the historical provider
const currentFlightWindow = 30 * time.Minute

// StateLister exposes recently active aircraft for the backfill scan
type StateLister interface {
	ListActiveStates(ctx context.Context, since time.Time) ([]*telemetry.AircraftState, error)
}

// Backfiller periodically resolves routes for recently seen aircraft in
// the background. It never uses the expensive provider; resolutions run
// through a bounded worker pool and the shared rate limiters keep the
// external pressure down.
type Backfiller struct {
	resolver *Resolver
	states   StateLister
	interval time.Duration
	window   time.Duration
	workers  int
	logger   *logger.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewBackfiller creates a backfill job
func NewBackfiller(resolver *Resolver, states StateLister, interval, window time.Duration, workers int, log *logger.Logger) *Backfiller {
	if workers < 1 {
		workers = 1
	}
	return &Backfiller{
		resolver: resolver,
		states:   states,
		interval: interval,
		window:   window,
		workers:  workers,
		logger:   log.Named("backfill"),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the periodic scan loop
func (b *Backfiller) Start(ctx context.Context) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()

		b.logger.Info("Route backfill started",
			logger.Duration("interval", b.interval),
			logger.Int("workers", b.workers))

		for {
			select {
			case <-ticker.C:
				b.runOnce(ctx)
			case <-b.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the loop and waits for in-flight resolutions
func (b *Backfiller) Stop() {
	close(b.stopCh)
	b.wg.Wait()
}

func (b *Backfiller) runOnce(ctx context.Context) {
	now := time.Now().UTC()
	states, err := b.states.ListActiveStates(ctx, now.Add(-b.window))
	if err != nil {
		b.logger.Error("Backfill scan failed", logger.Error(err))
		return
	}
	if len(states) == 0 {
		return
	}

	jobs := make(chan *telemetry.AircraftState)
	var workers sync.WaitGroup
	for i := 0; i < b.workers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for state := range jobs {
				b.resolve(ctx, state, now)
			}
		}()
	}

	queued := 0
	for _, state := range states {
		select {
		case jobs <- state:
			queued++
		case <-b.stopCh:
			close(jobs)
			workers.Wait()
			return
		case <-ctx.Done():
			close(jobs)
			workers.Wait()
			return
		}
	}
	close(jobs)
	workers.Wait()

	b.logger.Debug("Backfill pass complete",
		logger.Int("aircraft", queued))
}

func (b *Backfiller) resolve(ctx context.Context, state *telemetry.AircraftState, now time.Time) {
	lastSeen := time.Unix(state.LastContact, 0)
	req := &Request{
		ICAO24:   state.ICAO24,
		Callsign: state.Callsign,
		// A flight that went quiet is over and may use the historical
		// provider; background jobs never get the expensive one
		IsCurrentFlight: now.Sub(lastSeen) < currentFlightWindow,
		AllowExpensive:  false,
	}

	if _, err := b.resolver.Resolve(ctx, req); err != nil {
		b.logger.Warn("Backfill resolution failed",
			logger.String("icao24", state.ICAO24),
			logger.Error(err))
	}
}
