package routes

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Route provenance tags, recorded on cache entries and results so
// callers can trust-weight what they get back.
const (
	SourceCache      = "cache"
	SourceHistory    = "history"
	SourceHistorical = "historical-api"
	SourceRealtime   = "realtime-api"
	SourceInference  = "inference"
)

// Arrival resolution status. An arrival can be missing for two distinct
// reasons and downstream rendering treats them differently: inference was
// attempted and found nothing plausible, or inference never ran.
const (
	ArrivalKnown       = "known"
	ArrivalNotInferred = "not_inferred"
	ArrivalUnknown     = "inferred_unknown"
)

// Result is a resolved route for one flight
type Result struct {
	Departure     string `json:"departure_airport"`
	DepartureName string `json:"departure_airport_name,omitempty"`
	Arrival       string `json:"arrival_airport,omitempty"`
	ArrivalName   string `json:"arrival_airport_name,omitempty"`
	ArrivalStatus string `json:"arrival_status"`
	AircraftType  string `json:"aircraft_type,omitempty"`
	Source        string `json:"source"`
}

// Complete reports whether the route has a known arrival; completeness
// drives the cache TTL class
func (r *Result) Complete() bool {
	return r.Arrival != ""
}

// CacheEntry is the single best-known route per cache key, refreshed
// whenever a better resolution occurs
type CacheEntry struct {
	CacheKey      string
	Departure     string
	DepartureName string
	Arrival       string
	ArrivalName   string
	AircraftType  string
	Source        string
	CreatedAt     time.Time
}

// Complete reports whether the cached route has a known arrival
func (e *CacheEntry) Complete() bool {
	return e.Arrival != ""
}

// HistoryEntry is one resolved flight in the append-only route log
type HistoryEntry struct {
	ID              int64
	FlightKey       string
	ICAO24          string
	Callsign        string
	Departure       string
	Arrival         string
	AircraftType    string
	FlightStart     *time.Time
	FlightEnd       *time.Time
	ActualFlightEnd *time.Time
	Source          string
	CreatedAt       time.Time
}

// CacheKey derives the route cache key for an aircraft: the normalized
// callsign when one is known, the icao24 otherwise
func CacheKey(icao24, callsign string) string {
	if cs := NormalizeCallsign(callsign); cs != "" {
		return cs
	}
	return strings.ToLower(strings.TrimSpace(icao24))
}

// NormalizeCallsign trims padding and uppercases a reported callsign
func NormalizeCallsign(callsign string) string {
	return strings.ToUpper(strings.TrimSpace(callsign))
}

// FlightKey derives the deterministic identifier for a flight from its
// aircraft, callsign and time window. The same flight observed twice
// hashes to the same key, which is what makes history dedup work.
func FlightKey(icao24, callsign string, start, end *time.Time) string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(icao24))))
	h.Write([]byte("|"))
	h.Write([]byte(NormalizeCallsign(callsign)))
	h.Write([]byte("|"))
	h.Write([]byte(isoOrEmpty(start)))
	h.Write([]byte("|"))
	h.Write([]byte(isoOrEmpty(end)))
	return hex.EncodeToString(h.Sum(nil))
}

func isoOrEmpty(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
