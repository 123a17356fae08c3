package routes

import (
	"context"
	"testing"
	"time"

	"github.com/dhightnm/fly-overhead-sub002/internal/providers"
	"github.com/dhightnm/fly-overhead-sub002/internal/telemetry"
	"github.com/dhightnm/fly-overhead-sub002/pkg/logger"
)

type fakeRouteStore struct {
	cache           map[string]*CacheEntry
	history         []*HistoryEntry
	completeFlight  *HistoryEntry
	activeCallsign  string
	legsByDeparture map[string]*HistoryEntry
}

func newFakeRouteStore() *fakeRouteStore {
	return &fakeRouteStore{
		cache:           make(map[string]*CacheEntry),
		legsByDeparture: make(map[string]*HistoryEntry),
	}
}

func (f *fakeRouteStore) UpsertCache(ctx context.Context, e *CacheEntry) error {
	f.cache[e.CacheKey] = e
	return nil
}

func (f *fakeRouteStore) GetCache(ctx context.Context, key string) (*CacheEntry, error) {
	return f.cache[key], nil
}

func (f *fakeRouteStore) InsertHistory(ctx context.Context, e *HistoryEntry) error {
	f.history = append(f.history, e)
	return nil
}

func (f *fakeRouteStore) MostRecentCompleteFlight(ctx context.Context, icao24 string, now time.Time) (*HistoryEntry, error) {
	return f.completeFlight, nil
}

func (f *fakeRouteStore) MostRecentActiveCallsign(ctx context.Context, icao24 string, now time.Time) (string, error) {
	return f.activeCallsign, nil
}

func (f *fakeRouteStore) ArrivalForDeparture(ctx context.Context, icao24, callsign, departure string) (*HistoryEntry, error) {
	return f.legsByDeparture[departure], nil
}

type fakeSamples struct {
	first  *telemetry.Sample
	latest *telemetry.Sample
}

func (f *fakeSamples) FirstPositionSample(ctx context.Context, icao24 string) (*telemetry.Sample, error) {
	return f.first, nil
}

func (f *fakeSamples) LatestPositionSample(ctx context.Context, icao24 string) (*telemetry.Sample, error) {
	return f.latest, nil
}

type fakeAirports struct {
	byCode map[string]*Airport
	near   []Candidate
}

func (f *fakeAirports) FindByCode(ctx context.Context, code string) (*Airport, error) {
	return f.byCode[code], nil
}

func (f *fakeAirports) FindNear(ctx context.Context, lat, lon, radiusKm float64, airportType string) ([]Candidate, error) {
	return f.near, nil
}

type fakeHistorical struct {
	flights []providers.Flight
	err     error
	calls   int
}

func (f *fakeHistorical) GetFlightsByAircraft(ctx context.Context, icao24 string, begin, end time.Time) ([]providers.Flight, error) {
	f.calls++
	return f.flights, f.err
}

type fakeRealtime struct {
	flights       []providers.Flight
	searchFlights []providers.Flight
	err           error
	calls         int
	searchCalls   int
	lastCallsign  string
}

func (f *fakeRealtime) GetFlightsByCallsign(ctx context.Context, callsign string) ([]providers.Flight, error) {
	f.calls++
	f.lastCallsign = callsign
	return f.flights, f.err
}

func (f *fakeRealtime) SearchByIdentifier(ctx context.Context, ident string) ([]providers.Flight, error) {
	f.searchCalls++
	return f.searchFlights, f.err
}

type fakeLimiter struct {
	blocked   bool
	failures  int
	successes int
}

func (f *fakeLimiter) IsBlocked() bool                        { return f.blocked }
func (f *fakeLimiter) RecordFailure(retryAfter time.Duration) { f.failures++ }
func (f *fakeLimiter) RecordSuccess()                         { f.successes++ }

type resolverFixture struct {
	resolver   *Resolver
	store      *fakeRouteStore
	samples    *fakeSamples
	airports   *fakeAirports
	historical *fakeHistorical
	realtime   *fakeRealtime
	histLimit  *fakeLimiter
	rtLimit    *fakeLimiter
	now        time.Time
}

func newFixture() *resolverFixture {
	f := &resolverFixture{
		store:      newFakeRouteStore(),
		samples:    &fakeSamples{},
		airports:   &fakeAirports{byCode: make(map[string]*Airport)},
		historical: &fakeHistorical{},
		realtime:   &fakeRealtime{},
		histLimit:  &fakeLimiter{},
		rtLimit:    &fakeLimiter{},
		now:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.resolver = NewResolver(f.store, f.samples, f.airports,
		f.historical, f.realtime, f.histLimit, f.rtLimit,
		Config{TTLs: testTTLs}, logger.NewNop())
	f.resolver.now = func() time.Time { return f.now }
	return f
}

func TestCurrentFlightNeverUsesHistoricalProvider(t *testing.T) {
	f := newFixture()
	f.historical.flights = []providers.Flight{{Departure: "KSFO", Arrival: "KLAX"}}

	result, err := f.resolver.Resolve(context.Background(), &Request{
		ICAO24: "abc123", Callsign: "UAL123", IsCurrentFlight: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.historical.calls != 0 {
		t.Error("historical provider must never be consulted for a current flight")
	}
	if result != nil {
		t.Errorf("expected exhausted chain to return nil, got %+v", result)
	}
}

func TestHistoricalHitIsCachedAndRecorded(t *testing.T) {
	f := newFixture()
	start := f.now.Add(-6 * time.Hour)
	end := f.now.Add(-4 * time.Hour)
	f.historical.flights = []providers.Flight{
		{ICAO24: "abc123", Callsign: "UAL123", Departure: "KSFO", Arrival: "KLAX", FirstSeen: &start, LastSeen: &end},
	}
	f.airports.byCode["KSFO"] = &Airport{Ident: "KSFO", Name: "San Francisco Intl"}

	result, err := f.resolver.Resolve(context.Background(), &Request{
		ICAO24: "abc123", Callsign: "UAL123",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil || result.Source != SourceHistorical {
		t.Fatalf("result = %+v, want historical-api source", result)
	}
	if result.Departure != "KSFO" || result.Arrival != "KLAX" {
		t.Errorf("route = %s-%s, want KSFO-KLAX", result.Departure, result.Arrival)
	}
	if result.DepartureName != "San Francisco Intl" {
		t.Errorf("departure name = %q, want resolved name", result.DepartureName)
	}
	if result.ArrivalStatus != ArrivalKnown {
		t.Errorf("arrival status = %q, want known", result.ArrivalStatus)
	}
	if _, ok := f.store.cache["UAL123"]; !ok {
		t.Error("expected hit to be written to the persistent cache")
	}
	if len(f.store.history) != 1 {
		t.Errorf("history entries = %d, want 1", len(f.store.history))
	}
	if f.histLimit.successes != 1 {
		t.Error("expected a success recorded on the historical limiter")
	}
}

func TestBlockedLimiterSkipsProvider(t *testing.T) {
	f := newFixture()
	f.histLimit.blocked = true
	f.historical.flights = []providers.Flight{{Departure: "KSFO", Arrival: "KLAX"}}
	f.store.completeFlight = &HistoryEntry{Departure: "KDEN", Arrival: "KORD"}

	result, err := f.resolver.Resolve(context.Background(), &Request{ICAO24: "abc123"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.historical.calls != 0 {
		t.Error("blocked provider must not be called")
	}
	if result == nil || result.Source != SourceHistory {
		t.Fatalf("result = %+v, want fallthrough to local history", result)
	}
	if result.Departure != "KDEN" || result.Arrival != "KORD" {
		t.Errorf("route = %s-%s, want KDEN-KORD", result.Departure, result.Arrival)
	}
}

func TestRealtimeRecoversCallsignAndPrefersEnRoute(t *testing.T) {
	f := newFixture()
	f.store.activeCallsign = "UAL123"
	off := f.now.Add(-time.Hour)
	on := f.now.Add(-30 * time.Minute)
	f.realtime.flights = []providers.Flight{
		{Callsign: "UAL123", Departure: "KLAX", Arrival: "KSFO", Status: "Arrived", ActualOff: &off, ActualOn: &on},
		{Callsign: "UAL123", Departure: "KSFO", Arrival: "KLAX", Status: "En Route", ActualOff: &off},
	}

	result, err := f.resolver.Resolve(context.Background(), &Request{
		ICAO24: "abc123", IsCurrentFlight: true, AllowExpensive: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.realtime.lastCallsign != "UAL123" {
		t.Errorf("queried callsign %q, want recovered UAL123", f.realtime.lastCallsign)
	}
	if result == nil || result.Source != SourceRealtime {
		t.Fatalf("result = %+v, want realtime-api source", result)
	}
	if result.Departure != "KSFO" {
		t.Errorf("departure = %s, want the en-route flight's KSFO", result.Departure)
	}
	if len(f.store.history) != 2 {
		t.Errorf("history entries = %d, want every returned flight persisted", len(f.store.history))
	}
}

func TestRealtimeRetriesViaIdentifierSearch(t *testing.T) {
	f := newFixture()
	f.realtime.flights = nil
	f.realtime.searchFlights = []providers.Flight{
		{Callsign: "UAL123", Departure: "KSFO", Arrival: "KLAX", Status: "En Route"},
	}

	result, err := f.resolver.Resolve(context.Background(), &Request{
		ICAO24: "abc123", Callsign: "UAL123", IsCurrentFlight: true, AllowExpensive: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.realtime.searchCalls != 1 {
		t.Error("expected one identifier-search retry")
	}
	if result == nil || result.Departure != "KSFO" {
		t.Fatalf("result = %+v, want route from identifier search", result)
	}
}

func TestRateLimitFailureFallsThrough(t *testing.T) {
	f := newFixture()
	f.realtime.err = &providers.RateLimitedError{Provider: "realtime-api", RetryAfter: 60 * time.Second}
	f.store.completeFlight = &HistoryEntry{Departure: "KDEN", Arrival: "KORD"}

	result, err := f.resolver.Resolve(context.Background(), &Request{
		ICAO24: "abc123", Callsign: "UAL123", IsCurrentFlight: true, AllowExpensive: true,
	})
	if err != nil {
		t.Fatalf("rate limit must not abort resolution: %v", err)
	}
	if f.rtLimit.failures != 1 {
		t.Errorf("limiter failures = %d, want 1", f.rtLimit.failures)
	}
	if result == nil || result.Source != SourceHistory {
		t.Fatalf("result = %+v, want fallthrough to local history", result)
	}
}

func TestPersistentCacheHitPopulatesProcessCache(t *testing.T) {
	f := newFixture()
	f.store.cache["UAL123"] = &CacheEntry{
		CacheKey: "UAL123", Departure: "KSFO", Arrival: "KLAX",
		Source: SourceHistorical, CreatedAt: f.now.Add(-time.Hour),
	}

	result, err := f.resolver.Resolve(context.Background(), &Request{
		ICAO24: "abc123", Callsign: "UAL123", IsCurrentFlight: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil || result.Source != SourceCache {
		t.Fatalf("result = %+v, want cache source", result)
	}

	// Drop the persistent row; the process cache should now answer
	delete(f.store.cache, "UAL123")
	result, err = f.resolver.Resolve(context.Background(), &Request{
		ICAO24: "abc123", Callsign: "UAL123", IsCurrentFlight: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil || result.Departure != "KSFO" {
		t.Fatalf("result = %+v, want process-cache hit", result)
	}
}

func TestCacheHitDoesNotRenewLifetime(t *testing.T) {
	f := newFixture()
	f.store.cache["UAL123"] = &CacheEntry{
		CacheKey: "UAL123", Departure: "KSFO", Arrival: "KLAX",
		Source: SourceHistorical, CreatedAt: f.now.Add(-23*time.Hour - 59*time.Minute),
	}

	result, err := f.resolver.Resolve(context.Background(), &Request{
		ICAO24: "abc123", Callsign: "UAL123", IsCurrentFlight: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil || result.Source != SourceCache {
		t.Fatalf("result = %+v, want hit one minute before expiry", result)
	}

	// Two minutes later the entry is past 24h in both cache layers;
	// the read above must not have granted it a fresh lease
	f.now = f.now.Add(2 * time.Minute)
	result, err = f.resolver.Resolve(context.Background(), &Request{
		ICAO24: "abc123", Callsign: "UAL123", IsCurrentFlight: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Fatalf("result = %+v, want miss for entry past its TTL", result)
	}
}

func TestCachedIncompleteInferenceKeepsShortTTL(t *testing.T) {
	f := newFixture()
	f.store.cache["UAL123"] = &CacheEntry{
		CacheKey: "UAL123", Departure: "KSFO",
		Source: SourceInference, CreatedAt: f.now.Add(-29 * time.Minute),
	}

	result, err := f.resolver.Resolve(context.Background(), &Request{
		ICAO24: "abc123", Callsign: "UAL123", IsCurrentFlight: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil || result.Departure != "KSFO" {
		t.Fatalf("result = %+v, want hit inside the 30min inference TTL", result)
	}

	// The process-cache copy keeps the inference TTL class, so at 31
	// minutes both layers miss
	f.now = f.now.Add(2 * time.Minute)
	result, err = f.resolver.Resolve(context.Background(), &Request{
		ICAO24: "abc123", Callsign: "UAL123", IsCurrentFlight: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Fatalf("result = %+v, want miss once the inference TTL lapses", result)
	}
}

func TestExpiredCacheEntryIsMiss(t *testing.T) {
	f := newFixture()
	f.store.cache["UAL123"] = &CacheEntry{
		CacheKey: "UAL123", Departure: "KSFO", Arrival: "KLAX",
		Source: SourceHistorical, CreatedAt: f.now.Add(-25 * time.Hour),
	}

	result, err := f.resolver.Resolve(context.Background(), &Request{
		ICAO24: "abc123", Callsign: "UAL123", IsCurrentFlight: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Fatalf("result = %+v, want miss for 25h-old entry", result)
	}
	if _, ok := f.store.cache["UAL123"]; !ok {
		t.Error("expired entry must not be deleted, only superseded")
	}
}

func TestInferenceDepartureOnly(t *testing.T) {
	f := newFixture()
	lat, lon := 37.6, -122.4
	alt := 10000.0
	climb := 5.0
	f.samples.first = &telemetry.Sample{ICAO24: "abc123", Lat: &lat, Lon: &lon}
	f.samples.latest = &telemetry.Sample{ICAO24: "abc123", Lat: &lat, Lon: &lon, BaroAltitude: &alt, VerticalRate: &climb}
	f.airports.near = []Candidate{
		{Airport: Airport{Ident: "KSFO", Name: "San Francisco Intl", Type: "large_airport", MaxRunwayM: 3600, RunwayCount: 4}, DistanceKM: 3},
	}

	result, err := f.resolver.Resolve(context.Background(), &Request{
		ICAO24: "abc123", Callsign: "UAL123", IsCurrentFlight: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil || result.Source != SourceInference {
		t.Fatalf("result = %+v, want inference source", result)
	}
	if result.Departure != "KSFO" {
		t.Errorf("departure = %s, want KSFO", result.Departure)
	}
	if result.ArrivalStatus != ArrivalNotInferred {
		t.Errorf("arrival status = %q, want not_inferred for a climbing aircraft", result.ArrivalStatus)
	}
	if len(f.store.history) != 1 {
		t.Errorf("inferred route should land in history, got %d entries", len(f.store.history))
	}
}

func TestInferenceReusesHistoricalLeg(t *testing.T) {
	f := newFixture()
	lat, lon := 37.6, -122.4
	f.samples.first = &telemetry.Sample{ICAO24: "abc123", Lat: &lat, Lon: &lon}
	f.airports.near = []Candidate{
		{Airport: Airport{Ident: "KSFO", Name: "San Francisco Intl", Type: "large_airport", MaxRunwayM: 3600, RunwayCount: 4}, DistanceKM: 3},
	}
	f.store.legsByDeparture["KSFO"] = &HistoryEntry{Departure: "KSFO", Arrival: "KLAX", AircraftType: "B738"}

	result, err := f.resolver.Resolve(context.Background(), &Request{
		ICAO24: "abc123", Callsign: "UAL123", IsCurrentFlight: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil || result.Arrival != "KLAX" {
		t.Fatalf("result = %+v, want reused KLAX arrival", result)
	}
	if result.ArrivalStatus != ArrivalKnown {
		t.Errorf("arrival status = %q, want known", result.ArrivalStatus)
	}
	if result.AircraftType != "B738" {
		t.Errorf("aircraft type = %q, want carried over B738", result.AircraftType)
	}
}

func TestInferenceLandingSearch(t *testing.T) {
	f := newFixture()
	depLat, depLon := 37.6, -122.4
	arrLat, arrLon := 33.9, -118.4
	lowAlt := 600.0
	sink := -4.0
	f.samples.first = &telemetry.Sample{ICAO24: "abc123", Lat: &depLat, Lon: &depLon}
	f.samples.latest = &telemetry.Sample{ICAO24: "abc123", Lat: &arrLat, Lon: &arrLon, BaroAltitude: &lowAlt, VerticalRate: &sink}

	// The fake returns the same candidate list for both searches; use
	// distinct idents so the landing pick differs from the departure
	f.airports.near = []Candidate{
		{Airport: Airport{Ident: "KLAX", Name: "Los Angeles Intl", Type: "large_airport", MaxRunwayM: 3600, RunwayCount: 4}, DistanceKM: 2},
		{Airport: Airport{Ident: "KSMO", Name: "Santa Monica Muni", Type: "small_airport", MaxRunwayM: 1500, RunwayCount: 1}, DistanceKM: 5},
	}

	result, err := f.resolver.Resolve(context.Background(), &Request{
		ICAO24: "abc123", Callsign: "UAL123", IsCurrentFlight: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil || result.Source != SourceInference {
		t.Fatalf("result = %+v, want inference source", result)
	}
	if result.ArrivalStatus == ArrivalNotInferred {
		t.Error("descending low aircraft should trigger the landing search")
	}
}
