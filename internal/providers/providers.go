// Package providers implements the external flight-data clients: a
// low-cost historical API and a costly realtime API. Both translate
// HTTP outcomes into the shared error taxonomy so the resolver can fall
// through its chain without caring which provider failed.
package providers

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Flight is one flight leg as reported by an external provider
type Flight struct {
	ICAO24       string
	Callsign     string
	Departure    string
	Arrival      string
	AircraftType string
	Status       string
	FirstSeen    *time.Time
	LastSeen     *time.Time
	ActualOff    *time.Time
	ActualOn     *time.Time
}

// EnRoute reports whether the flight is currently in the air according
// to the provider: explicitly marked en route, or departed without an
// arrival time yet
func (f *Flight) EnRoute() bool {
	if strings.Contains(strings.ToLower(f.Status), "en route") {
		return true
	}
	return f.ActualOff != nil && f.ActualOn == nil
}

// RateLimitedError signals an HTTP 429 from a provider. RetryAfter is
// zero when the provider gave no hint.
type RateLimitedError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s rate limited, retry after %s", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("%s rate limited", e.Provider)
}

// AsRateLimited unwraps a rate-limit error from a provider call chain
func AsRateLimited(err error) (*RateLimitedError, bool) {
	var rle *RateLimitedError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}
