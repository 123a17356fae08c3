package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dhightnm/fly-overhead-sub002/pkg/logger"
)

// RealtimeClient queries the costly realtime flights API
// (AeroAPI-compatible). Every call costs money, so callers gate it
// behind explicit user intent and the rate limiter.
type RealtimeClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *logger.Logger
}

// NewRealtimeClient creates a realtime provider client
func NewRealtimeClient(baseURL, apiKey string, timeout time.Duration, log *logger.Logger) *RealtimeClient {
	return &RealtimeClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		apiKey:  apiKey,
		logger:  log.Named("realtime-api"),
	}
}

type aeroFlight struct {
	Ident        string       `json:"ident"`
	Registration string       `json:"registration"`
	AircraftType string       `json:"aircraft_type"`
	Status       string       `json:"status"`
	Origin       *aeroAirport `json:"origin"`
	Destination  *aeroAirport `json:"destination"`
	ActualOff    *time.Time   `json:"actual_off"`
	ActualOn     *time.Time   `json:"actual_on"`
	ScheduledOut *time.Time   `json:"scheduled_out"`
}

type aeroAirport struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type aeroFlightsResponse struct {
	Flights []aeroFlight `json:"flights"`
}

// GetFlightsByCallsign returns current and recent flights for a
// callsign. 404 means the provider has no data and yields an empty
// result.
func (c *RealtimeClient) GetFlightsByCallsign(ctx context.Context, callsign string) ([]Flight, error) {
	endpoint := fmt.Sprintf("%s/flights/%s", c.baseURL, url.PathEscape(callsign))
	return c.fetchFlights(ctx, endpoint, callsign)
}

// SearchByIdentifier retries a lookup through the identifier search
// endpoint, which also matches registrations
func (c *RealtimeClient) SearchByIdentifier(ctx context.Context, ident string) ([]Flight, error) {
	endpoint := fmt.Sprintf("%s/flights/search?query=%s", c.baseURL,
		url.QueryEscape(fmt.Sprintf("-idents %s", ident)))
	return c.fetchFlights(ctx, endpoint, ident)
}

func (c *RealtimeClient) fetchFlights(ctx context.Context, endpoint, ident string) ([]Flight, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-apikey", c.apiKey)

	c.logger.Debug("Fetching realtime flights", logger.String("ident", ident))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to decode
	case http.StatusNotFound:
		return nil, nil
	case http.StatusTooManyRequests:
		return nil, &RateLimitedError{
			Provider:   "realtime-api",
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	default:
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var raw aeroFlightsResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse flights response: %w", err)
	}

	flights := make([]Flight, 0, len(raw.Flights))
	for _, f := range raw.Flights {
		flight := Flight{
			Callsign:     f.Ident,
			AircraftType: f.AircraftType,
			Status:       f.Status,
			ActualOff:    f.ActualOff,
			ActualOn:     f.ActualOn,
		}
		if f.Origin != nil {
			flight.Departure = f.Origin.Code
		}
		if f.Destination != nil {
			flight.Arrival = f.Destination.Code
		}
		// Map onto the common seen-window fields so history persistence
		// treats both providers uniformly
		if f.ActualOff != nil {
			flight.FirstSeen = f.ActualOff
		} else if f.ScheduledOut != nil {
			flight.FirstSeen = f.ScheduledOut
		}
		flight.LastSeen = f.ActualOn
		flights = append(flights, flight)
	}

	return flights, nil
}
