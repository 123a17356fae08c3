package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dhightnm/fly-overhead-sub002/pkg/logger"
)

func TestFetchStatesParsesVectors(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"time": 1700000000,
			"states": [
				["abc123", "UAL123  ", "United States", 1699999990, 1699999995,
				 -122.4, 37.6, 3000.5, false, 210.1, 45.0, -2.5, null,
				 3100.0, "4701", false, 0, 3],
				["def456", null, "Canada", null, null, null, null, null,
				 true, null, null, null, null, null, null, false, 0, 0],
				[null, "GHOST"]
			]
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 36.0, -123.0, 39.0, -121.0, 30, 5*time.Second, logger.NewNop())
	samples, err := client.FetchStates(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if gotQuery != "lamin=36.000000&lomin=-123.000000&lamax=39.000000&lomax=-121.000000" {
		t.Errorf("bounding box query = %q", gotQuery)
	}

	// The icao24-less vector is dropped
	if len(samples) != 2 {
		t.Fatalf("got %d samples, want 2", len(samples))
	}

	full := samples[0]
	if full.ICAO24 != "abc123" || full.Callsign != "UAL123" {
		t.Errorf("identity = %q/%q, want trimmed callsign", full.ICAO24, full.Callsign)
	}
	if full.Lat == nil || *full.Lat != 37.6 || full.Lon == nil || *full.Lon != -122.4 {
		t.Errorf("position = %v/%v, want 37.6/-122.4", full.Lat, full.Lon)
	}
	if full.BaroAltitude == nil || *full.BaroAltitude != 3000.5 {
		t.Errorf("baro altitude = %v", full.BaroAltitude)
	}
	if full.GeoAltitude == nil || *full.GeoAltitude != 3100.0 {
		t.Errorf("geo altitude = %v", full.GeoAltitude)
	}
	if full.VerticalRate == nil || *full.VerticalRate != -2.5 {
		t.Errorf("vertical rate = %v", full.VerticalRate)
	}
	if full.LastContact != 1699999995 {
		t.Errorf("last contact = %d, want 1699999995", full.LastContact)
	}
	if full.Squawk != "4701" || full.Category != "3" {
		t.Errorf("squawk/category = %q/%q", full.Squawk, full.Category)
	}
	if full.SourcePriority != 30 {
		t.Errorf("priority = %d, want configured 30", full.SourcePriority)
	}

	// Sparse vector: nulls stay nil, missing last_contact falls back
	// to the ingestion time
	sparse := samples[1]
	if sparse.Lat != nil || sparse.Velocity != nil {
		t.Errorf("sparse vector grew values: lat=%v velocity=%v", sparse.Lat, sparse.Velocity)
	}
	if sparse.OnGround == nil || !*sparse.OnGround {
		t.Errorf("on_ground = %v, want true", sparse.OnGround)
	}
	if sparse.LastContact == 0 {
		t.Error("last contact fallback missing")
	}
	if sparse.Category != "" {
		t.Errorf("category = %q, want empty for category 0", sparse.Category)
	}
}

func TestFetchStatesErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, 36.0, -123.0, 39.0, -121.0, 30, 5*time.Second, logger.NewNop())
	if _, err := client.FetchStates(context.Background()); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}
