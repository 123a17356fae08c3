// Package routes resolves where a flight came from and where it is
// going, through an ordered fallback chain: process cache, persistent
// cache, historical provider, realtime provider, local flight history,
// and finally position-based inference.
package routes

import (
	"context"
	"time"

	"github.com/dhightnm/fly-overhead-sub002/internal/providers"
	"github.com/dhightnm/fly-overhead-sub002/internal/telemetry"
	"github.com/dhightnm/fly-overhead-sub002/pkg/logger"
)

// Store is the persistent route cache and history surface
type Store interface {
	UpsertCache(ctx context.Context, entry *CacheEntry) error
	GetCache(ctx context.Context, cacheKey string) (*CacheEntry, error)
	InsertHistory(ctx context.Context, entry *HistoryEntry) error
	MostRecentCompleteFlight(ctx context.Context, icao24 string, now time.Time) (*HistoryEntry, error)
	MostRecentActiveCallsign(ctx context.Context, icao24 string, now time.Time) (string, error)
	ArrivalForDeparture(ctx context.Context, icao24, callsign, departure string) (*HistoryEntry, error)
}

// SampleReader exposes the position samples inference works from
type SampleReader interface {
	FirstPositionSample(ctx context.Context, icao24 string) (*telemetry.Sample, error)
	LatestPositionSample(ctx context.Context, icao24 string) (*telemetry.Sample, error)
}

// AirportLookup resolves airport codes and spatial candidate searches
type AirportLookup interface {
	FindByCode(ctx context.Context, code string) (*Airport, error)
	FindNear(ctx context.Context, lat, lon, radiusKm float64, airportType string) ([]Candidate, error)
}

// HistoricalProvider is the low-cost, day-lagged flight data source
type HistoricalProvider interface {
	GetFlightsByAircraft(ctx context.Context, icao24 string, begin, end time.Time) ([]providers.Flight, error)
}

// RealtimeProvider is the costly live flight data source
type RealtimeProvider interface {
	GetFlightsByCallsign(ctx context.Context, callsign string) ([]providers.Flight, error)
	SearchByIdentifier(ctx context.Context, ident string) ([]providers.Flight, error)
}

// ProviderLimiter is the shared backpressure signal for one provider
type ProviderLimiter interface {
	IsBlocked() bool
	RecordFailure(retryAfter time.Duration)
	RecordSuccess()
}

// Request identifies one resolution
type Request struct {
	ICAO24   string
	Callsign string
	// IsCurrentFlight blocks the historical provider, whose data lags
	// by a day or more
	IsCurrentFlight bool
	// AllowExpensive signals explicit user intent: the realtime
	// provider becomes available and the process cache is bypassed
	AllowExpensive bool
}

// Config holds the resolver tuning knobs
type Config struct {
	TTLs               TTLs
	HistoricalLookback time.Duration
	InferenceRadiusKM  float64
	LandingRadiusKM    float64
	LandingMaxAltM     float64
	DescentRateMs      float64
}

// Resolver runs the fallback chain
type Resolver struct {
	store      Store
	samples    SampleReader
	airports   AirportLookup
	historical HistoricalProvider
	realtime   RealtimeProvider
	histLimit  ProviderLimiter
	rtLimit    ProviderLimiter
	procCache  *ProcessCache
	cfg        Config
	logger     *logger.Logger
	now        func() time.Time
	steps      []step
}

// step is one fallback in the chain. (nil, nil) means miss: fall
// through to the next step. Errors are terminal only for storage reads;
// provider steps swallow their own failures.
type step func(ctx context.Context, req *Request) (*Result, error)

// NewResolver wires the fallback chain
func NewResolver(
	store Store,
	samples SampleReader,
	airports AirportLookup,
	historical HistoricalProvider,
	realtime RealtimeProvider,
	histLimit, rtLimit ProviderLimiter,
	cfg Config,
	log *logger.Logger,
) *Resolver {
	if cfg.HistoricalLookback == 0 {
		cfg.HistoricalLookback = 48 * time.Hour
	}
	if cfg.InferenceRadiusKM == 0 {
		cfg.InferenceRadiusKM = 75
	}
	if cfg.LandingRadiusKM == 0 {
		cfg.LandingRadiusKM = 30
	}
	if cfg.LandingMaxAltM == 0 {
		cfg.LandingMaxAltM = 1500
	}
	if cfg.DescentRateMs == 0 {
		cfg.DescentRateMs = -1.5
	}

	r := &Resolver{
		store:      store,
		samples:    samples,
		airports:   airports,
		historical: historical,
		realtime:   realtime,
		histLimit:  histLimit,
		rtLimit:    rtLimit,
		procCache:  NewProcessCache(cfg.TTLs),
		cfg:        cfg,
		logger:     log.Named("routes"),
		now:        time.Now,
	}
	r.steps = []step{
		r.stepProcessCache,
		r.stepPersistentCache,
		r.stepHistoricalProvider,
		r.stepRealtimeProvider,
		r.stepLocalHistory,
		r.stepInference,
	}
	return r
}

// Resolve runs the chain and returns the first hit, or nil when every
// fallback misses. A nil result is "route unavailable", not an error.
func (r *Resolver) Resolve(ctx context.Context, req *Request) (*Result, error) {
	req.Callsign = NormalizeCallsign(req.Callsign)

	for _, s := range r.steps {
		result, err := s(ctx, req)
		if err != nil {
			return nil, err
		}
		if result == nil {
			continue
		}
		r.persist(ctx, req, result)
		return result, nil
	}

	r.logger.Debug("Route resolution exhausted all fallbacks",
		logger.String("icao24", req.ICAO24),
		logger.String("callsign", req.Callsign))
	return nil, nil
}

// persist caches a hit and records it in flight history. Both writes
// are best-effort: a cache failure must never fail the read that
// triggered resolution.
func (r *Resolver) persist(ctx context.Context, req *Request, result *Result) {
	// Cache hits are already held with their original creation time;
	// re-stamping them would extend the TTL on every read
	if result.Source == SourceCache {
		return
	}

	now := r.now().UTC()
	key := CacheKey(req.ICAO24, req.Callsign)
	r.procCache.Put(key, *result, now)

	entry := &CacheEntry{
		CacheKey:      key,
		Departure:     result.Departure,
		DepartureName: result.DepartureName,
		Arrival:       result.Arrival,
		ArrivalName:   result.ArrivalName,
		AircraftType:  result.AircraftType,
		Source:        result.Source,
		CreatedAt:     now,
	}
	if err := r.store.UpsertCache(ctx, entry); err != nil {
		r.logger.Warn("Failed to cache resolved route",
			logger.String("icao24", req.ICAO24),
			logger.Error(err))
	}

	// Provider steps persist their own history (they know the flight
	// times); history-sourced hits are already in history.
	if result.Source != SourceInference {
		return
	}
	history := &HistoryEntry{
		FlightKey: FlightKey(req.ICAO24, req.Callsign, nil, nil),
		ICAO24:    req.ICAO24,
		Callsign:  req.Callsign,
		Departure: result.Departure,
		Arrival:   result.Arrival,
		Source:    result.Source,
		CreatedAt: now,
	}
	if err := r.store.InsertHistory(ctx, history); err != nil {
		r.logger.Warn("Failed to record inferred route",
			logger.String("icao24", req.ICAO24),
			logger.Error(err))
	}
}

// stepProcessCache serves from memory. Skipped when the caller wants
// maximally fresh data.
func (r *Resolver) stepProcessCache(ctx context.Context, req *Request) (*Result, error) {
	if req.AllowExpensive {
		return nil, nil
	}
	return r.procCache.Get(CacheKey(req.ICAO24, req.Callsign), r.now().UTC()), nil
}

// stepPersistentCache serves from the database cache under the
// completeness TTL rules. An expired row is a miss, not a delete.
func (r *Resolver) stepPersistentCache(ctx context.Context, req *Request) (*Result, error) {
	entry, err := r.store.GetCache(ctx, CacheKey(req.ICAO24, req.Callsign))
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}

	now := r.now().UTC()
	if !r.cfg.TTLs.Fresh(entry.Source, entry.Complete(), entry.CreatedAt, now) {
		return nil, nil
	}

	result := &Result{
		Departure:     entry.Departure,
		DepartureName: entry.DepartureName,
		Arrival:       entry.Arrival,
		ArrivalName:   entry.ArrivalName,
		ArrivalStatus: arrivalStatus(entry.Arrival, entry.Source),
		AircraftType:  entry.AircraftType,
		Source:        entry.Source,
	}
	// Seed the process cache with the row's original source and age so
	// the entry expires at the same instant in both layers
	r.procCache.Put(CacheKey(req.ICAO24, req.Callsign), *result, entry.CreatedAt)
	result.Source = SourceCache
	return result, nil
}

// stepHistoricalProvider queries the day-lagged flights API. Never used
// for flights still in the air.
func (r *Resolver) stepHistoricalProvider(ctx context.Context, req *Request) (*Result, error) {
	if req.IsCurrentFlight || r.historical == nil {
		return nil, nil
	}
	if r.histLimit.IsBlocked() {
		r.logger.Debug("Historical provider blocked, skipping",
			logger.String("icao24", req.ICAO24))
		return nil, nil
	}

	now := r.now().UTC()
	flights, err := r.historical.GetFlightsByAircraft(ctx, req.ICAO24,
		now.Add(-r.cfg.HistoricalLookback), now)
	if err != nil {
		if rle, ok := providers.AsRateLimited(err); ok {
			r.histLimit.RecordFailure(rle.RetryAfter)
		} else {
			r.logger.Warn("Historical provider failed",
				logger.String("icao24", req.ICAO24),
				logger.Error(err))
		}
		return nil, nil
	}
	r.histLimit.RecordSuccess()

	flight := latestWithDeparture(flights)
	if flight == nil {
		return nil, nil
	}

	r.recordProviderFlights(ctx, req.ICAO24, []providers.Flight{*flight}, SourceHistorical)
	return r.buildResult(ctx, flight.Departure, flight.Arrival, flight.AircraftType, SourceHistorical), nil
}

// stepRealtimeProvider queries the costly live API, only ever on
// explicit user intent. Flights actively en route win over scheduled or
// arrived ones; every returned flight lands in history.
func (r *Resolver) stepRealtimeProvider(ctx context.Context, req *Request) (*Result, error) {
	if !req.AllowExpensive || r.realtime == nil {
		return nil, nil
	}
	if r.rtLimit.IsBlocked() {
		r.logger.Debug("Realtime provider blocked, skipping",
			logger.String("icao24", req.ICAO24))
		return nil, nil
	}

	callsign := req.Callsign
	if callsign == "" {
		recovered, err := r.store.MostRecentActiveCallsign(ctx, req.ICAO24, r.now().UTC())
		if err != nil {
			return nil, err
		}
		callsign = recovered
	}
	if callsign == "" {
		return nil, nil
	}

	flights, err := r.realtime.GetFlightsByCallsign(ctx, callsign)
	if err != nil {
		if rle, ok := providers.AsRateLimited(err); ok {
			r.rtLimit.RecordFailure(rle.RetryAfter)
		} else {
			r.logger.Warn("Realtime provider failed",
				logger.String("callsign", callsign),
				logger.Error(err))
		}
		return nil, nil
	}

	// One retry through the identifier search before giving up
	if len(flights) == 0 {
		flights, err = r.realtime.SearchByIdentifier(ctx, callsign)
		if err != nil {
			if rle, ok := providers.AsRateLimited(err); ok {
				r.rtLimit.RecordFailure(rle.RetryAfter)
			} else {
				r.logger.Warn("Realtime identifier search failed",
					logger.String("callsign", callsign),
					logger.Error(err))
			}
			return nil, nil
		}
	}
	r.rtLimit.RecordSuccess()

	if len(flights) == 0 {
		return nil, nil
	}

	r.recordProviderFlights(ctx, req.ICAO24, flights, SourceRealtime)

	chosen := flights[0]
	for _, f := range flights {
		if f.EnRoute() {
			chosen = f
			break
		}
	}
	if chosen.Departure == "" && chosen.Arrival == "" {
		return nil, nil
	}
	return r.buildResult(ctx, chosen.Departure, chosen.Arrival, chosen.AircraftType, SourceRealtime), nil
}

// stepLocalHistory reuses a previously recorded flight with both
// endpoints known
func (r *Resolver) stepLocalHistory(ctx context.Context, req *Request) (*Result, error) {
	entry, err := r.store.MostRecentCompleteFlight(ctx, req.ICAO24, r.now().UTC())
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}
	return r.buildResult(ctx, entry.Departure, entry.Arrival, entry.AircraftType, SourceHistory), nil
}

// recordProviderFlights appends every provider-returned flight to
// history. Duplicates are expected and silently ignored by the store;
// other failures are logged and swallowed, since history is a
// best-effort byproduct of a successful resolution.
func (r *Resolver) recordProviderFlights(ctx context.Context, icao24 string, flights []providers.Flight, source string) {
	now := r.now().UTC()
	for _, f := range flights {
		entry := &HistoryEntry{
			FlightKey:    FlightKey(icao24, f.Callsign, f.FirstSeen, f.LastSeen),
			ICAO24:       icao24,
			Callsign:     NormalizeCallsign(f.Callsign),
			Departure:    f.Departure,
			Arrival:      f.Arrival,
			AircraftType: f.AircraftType,
			FlightStart:  f.FirstSeen,
			FlightEnd:    f.LastSeen,
			Source:       source,
			CreatedAt:    now,
		}
		if f.ActualOn != nil {
			entry.ActualFlightEnd = f.ActualOn
		}
		if err := r.store.InsertHistory(ctx, entry); err != nil {
			r.logger.Warn("Failed to record provider flight",
				logger.String("icao24", icao24),
				logger.Error(err))
		}
	}
}

// buildResult fills in airport names through the lookup collaborator
func (r *Resolver) buildResult(ctx context.Context, departure, arrival, aircraftType, source string) *Result {
	result := &Result{
		Departure:     departure,
		Arrival:       arrival,
		ArrivalStatus: arrivalStatus(arrival, source),
		AircraftType:  aircraftType,
		Source:        source,
	}
	if airport := r.lookupAirport(ctx, departure); airport != nil {
		result.DepartureName = airport.Name
	}
	if airport := r.lookupAirport(ctx, arrival); airport != nil {
		result.ArrivalName = airport.Name
	}
	return result
}

func (r *Resolver) lookupAirport(ctx context.Context, code string) *Airport {
	if code == "" || r.airports == nil {
		return nil
	}
	airport, err := r.airports.FindByCode(ctx, code)
	if err != nil {
		r.logger.Warn("Airport lookup failed",
			logger.String("code", code),
			logger.Error(err))
		return nil
	}
	return airport
}

func arrivalStatus(arrival, source string) string {
	if arrival != "" {
		return ArrivalKnown
	}
	if source == SourceInference {
		return ArrivalUnknown
	}
	return ArrivalNotInferred
}

// latestWithDeparture picks the most recently started flight that has
// at least a departure airport
func latestWithDeparture(flights []providers.Flight) *providers.Flight {
	var best *providers.Flight
	for i := range flights {
		f := &flights[i]
		if f.Departure == "" {
			continue
		}
		if best == nil || laterFirstSeen(f, best) {
			best = f
		}
	}
	return best
}

func laterFirstSeen(a, b *providers.Flight) bool {
	if a.FirstSeen == nil {
		return false
	}
	if b.FirstSeen == nil {
		return true
	}
	return a.FirstSeen.After(*b.FirstSeen)
}
