package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dhightnm/fly-overhead-sub002/pkg/logger"
)

func TestHistoricalGetFlightsByAircraft(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/flights/aircraft" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("icao24"); got != "abc123" {
			t.Errorf("icao24 = %q, want abc123", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"icao24":"abc123","firstSeen":1700000000,"estDepartureAirport":"KSFO",
			 "lastSeen":1700020000,"estArrivalAirport":"KLAX","callsign":"UAL123  "}
		]`))
	}))
	defer server.Close()

	client := NewHistoricalClient(server.URL, 5*time.Second, logger.NewNop())
	flights, err := client.GetFlightsByAircraft(context.Background(), "abc123",
		time.Unix(1699990000, 0), time.Unix(1700030000, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(flights) != 1 {
		t.Fatalf("got %d flights, want 1", len(flights))
	}
	f := flights[0]
	if f.Departure != "KSFO" || f.Arrival != "KLAX" {
		t.Errorf("route = %s-%s, want KSFO-KLAX", f.Departure, f.Arrival)
	}
	if f.FirstSeen == nil || f.FirstSeen.Unix() != 1700000000 {
		t.Errorf("unexpected firstSeen %v", f.FirstSeen)
	}
}

func TestHistoricalNotFoundIsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewHistoricalClient(server.URL, 5*time.Second, logger.NewNop())
	flights, err := client.GetFlightsByAircraft(context.Background(), "abc123",
		time.Now().Add(-time.Hour), time.Now())
	if err != nil {
		t.Fatalf("404 should not be an error, got %v", err)
	}
	if len(flights) != 0 {
		t.Errorf("404 should yield empty result, got %d flights", len(flights))
	}
}

func TestHistoricalRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewHistoricalClient(server.URL, 5*time.Second, logger.NewNop())
	_, err := client.GetFlightsByAircraft(context.Background(), "abc123",
		time.Now().Add(-time.Hour), time.Now())

	rle, ok := AsRateLimited(err)
	if !ok {
		t.Fatalf("expected RateLimitedError, got %v", err)
	}
	if rle.RetryAfter != 120*time.Second {
		t.Errorf("RetryAfter = %v, want 120s", rle.RetryAfter)
	}
}

func TestRealtimeGetFlightsByCallsign(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-apikey") != "test-key" {
			t.Errorf("missing api key header")
		}
		if r.URL.Path != "/flights/UAL123" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"flights":[
			{"ident":"UAL123","aircraft_type":"B738","status":"En Route / On Time",
			 "origin":{"code":"KSFO","name":"San Francisco Intl"},
			 "destination":{"code":"KLAX","name":"Los Angeles Intl"},
			 "actual_off":"2026-01-01T12:00:00Z"},
			{"ident":"UAL123","aircraft_type":"B738","status":"Arrived",
			 "origin":{"code":"KLAX"},"destination":{"code":"KSFO"},
			 "actual_off":"2026-01-01T02:00:00Z","actual_on":"2026-01-01T04:00:00Z"}
		]}`))
	}))
	defer server.Close()

	client := NewRealtimeClient(server.URL, "test-key", 15*time.Second, logger.NewNop())
	flights, err := client.GetFlightsByCallsign(context.Background(), "UAL123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(flights) != 2 {
		t.Fatalf("got %d flights, want 2", len(flights))
	}
	if !flights[0].EnRoute() {
		t.Error("first flight should be en route")
	}
	if flights[1].EnRoute() {
		t.Error("arrived flight should not be en route")
	}
	if flights[0].Departure != "KSFO" || flights[0].Arrival != "KLAX" {
		t.Errorf("route = %s-%s, want KSFO-KLAX", flights[0].Departure, flights[0].Arrival)
	}
}

func TestRealtimeRateLimitedWithoutRetryAfter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewRealtimeClient(server.URL, "test-key", 15*time.Second, logger.NewNop())
	_, err := client.GetFlightsByCallsign(context.Background(), "UAL123")

	rle, ok := AsRateLimited(err)
	if !ok {
		t.Fatalf("expected RateLimitedError, got %v", err)
	}
	if rle.RetryAfter != 0 {
		t.Errorf("RetryAfter = %v, want 0 when header absent", rle.RetryAfter)
	}
}
