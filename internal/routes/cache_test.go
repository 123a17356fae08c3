package routes

import (
	"testing"
	"time"
)

var testTTLs = TTLs{
	Complete:            24 * time.Hour,
	InferenceIncomplete: 30 * time.Minute,
	OtherIncomplete:     2 * time.Hour,
}

func TestCompletenessTTLs(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		source   string
		complete bool
		age      time.Duration
		fresh    bool
	}{
		{"complete at 23h", SourceHistorical, true, 23 * time.Hour, true},
		{"complete at 25h", SourceHistorical, true, 25 * time.Hour, false},
		{"inference incomplete at 29min", SourceInference, false, 29 * time.Minute, true},
		{"inference incomplete at 31min", SourceInference, false, 31 * time.Minute, false},
		{"inference complete uses long TTL", SourceInference, true, 23 * time.Hour, true},
		{"other incomplete at 1h", SourceHistory, false, time.Hour, true},
		{"other incomplete at 3h", SourceHistory, false, 3 * time.Hour, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := testTTLs.Fresh(tc.source, tc.complete, now.Add(-tc.age), now)
			if got != tc.fresh {
				t.Errorf("Fresh = %v, want %v", got, tc.fresh)
			}
		})
	}
}

func TestProcessCacheRoundTrip(t *testing.T) {
	cache := NewProcessCache(testTTLs)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	result := Result{Departure: "KSFO", Arrival: "KLAX", ArrivalStatus: ArrivalKnown, Source: SourceHistorical}
	cache.Put("UAL123", result, now)

	if got := cache.Get("UAL123", now.Add(time.Hour)); got == nil || got.Arrival != "KLAX" {
		t.Fatalf("Get = %v, want cached KLAX route", got)
	} else if got.Source != SourceCache {
		t.Errorf("source = %q, want cache provenance on lookup", got.Source)
	}
	if got := cache.Get("UAL123", now.Add(25*time.Hour)); got != nil {
		t.Error("expected expired entry to miss")
	}
	if got := cache.Get("DAL999", now); got != nil {
		t.Error("expected unknown key to miss")
	}
}

func TestProcessCacheKeepsTTLClassOfOrigin(t *testing.T) {
	cache := NewProcessCache(testTTLs)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Incomplete inference result: 30 minute class, not the 2 hour
	// class its cache-provenance lookup form would suggest
	result := Result{Departure: "KSFO", ArrivalStatus: ArrivalNotInferred, Source: SourceInference}
	cache.Put("UAL123", result, now)

	if got := cache.Get("UAL123", now.Add(29*time.Minute)); got == nil {
		t.Fatal("expected hit at 29min for inference entry")
	}
	if got := cache.Get("UAL123", now.Add(31*time.Minute)); got != nil {
		t.Errorf("Get = %v, want inference TTL to apply, not the other-incomplete one", got)
	}
}

func TestCacheKeyPrefersCallsign(t *testing.T) {
	if got := CacheKey("ABC123", " ual123 "); got != "UAL123" {
		t.Errorf("CacheKey = %q, want UAL123", got)
	}
	if got := CacheKey(" ABC123 ", ""); got != "abc123" {
		t.Errorf("CacheKey = %q, want abc123", got)
	}
}
