// Package ingest feeds telemetry samples into the reconciliation
// engine, from the public API poller and from self-registered feeder
// stations.
package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/dhightnm/fly-overhead-sub002/internal/reconcile"
	"github.com/dhightnm/fly-overhead-sub002/internal/telemetry"
	"github.com/dhightnm/fly-overhead-sub002/pkg/logger"
)

// Broadcaster pushes accepted samples out to live subscribers
type Broadcaster interface {
	BroadcastSample(sample *telemetry.Sample)
}

// Service runs the poller loop and accepts feeder pushes, funneling
// everything through the reconciliation engine
type Service struct {
	client        *Client
	engine        *reconcile.Engine
	broadcaster   Broadcaster
	fetchInterval time.Duration
	logger        *logger.Logger

	mu            sync.RWMutex
	lastFetchTime time.Time
	lastFetchSize int
	lastFetchErr  error

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewService creates the ingest service. client may be nil when the
// poller is disabled; feeder pushes still work.
func NewService(client *Client, engine *reconcile.Engine, broadcaster Broadcaster, fetchInterval time.Duration, log *logger.Logger) *Service {
	return &Service{
		client:        client,
		engine:        engine,
		broadcaster:   broadcaster,
		fetchInterval: fetchInterval,
		logger:        log.Named("ingest"),
		stopCh:        make(chan struct{}),
	}
}

// Start launches the poller loop
func (s *Service) Start(ctx context.Context) {
	if s.client == nil {
		s.logger.Info("Poller disabled, feeder-only ingest")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.fetchInterval)
		defer ticker.Stop()

		s.logger.Info("Poller started",
			logger.Duration("interval", s.fetchInterval))

		// First fetch immediately rather than waiting one interval
		s.poll(ctx)

		for {
			select {
			case <-ticker.C:
				s.poll(ctx)
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the poller loop
func (s *Service) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Service) poll(ctx context.Context) {
	samples, err := s.client.FetchStates(ctx)

	s.mu.Lock()
	s.lastFetchTime = time.Now().UTC()
	s.lastFetchSize = len(samples)
	s.lastFetchErr = err
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("Poll failed", logger.Error(err))
		return
	}

	accepted := 0
	for _, sample := range samples {
		if err := s.Ingest(ctx, sample); err != nil {
			s.logger.Warn("Failed to ingest polled sample",
				logger.String("icao24", sample.ICAO24),
				logger.Error(err))
			continue
		}
		accepted++
	}

	s.logger.Debug("Poll complete",
		logger.Int("fetched", len(samples)),
		logger.Int("accepted", accepted))
}

// Ingest reconciles one sample and broadcasts it on success. Used by
// the poller loop and by the feeder API handler.
func (s *Service) Ingest(ctx context.Context, sample *telemetry.Sample) error {
	if err := s.engine.Reconcile(ctx, sample); err != nil {
		return err
	}
	if s.broadcaster != nil {
		s.broadcaster.BroadcastSample(sample)
	}
	return nil
}

// Status reports the last poll outcome for the health endpoint
func (s *Service) Status() (lastFetch time.Time, lastSize int, lastErr error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastFetchTime, s.lastFetchSize, s.lastFetchErr
}
