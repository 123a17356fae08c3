package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dhightnm/fly-overhead-sub002/pkg/logger"
)

// HistoricalClient queries the low-cost historical flights API
// (OpenSky-compatible). Data lags by a day or more, so it is only
// consulted for flights that are already over.
type HistoricalClient struct {
	httpClient *http.Client
	baseURL    string
	logger     *logger.Logger
}

// NewHistoricalClient creates a historical provider client
func NewHistoricalClient(baseURL string, timeout time.Duration, log *logger.Logger) *HistoricalClient {
	return &HistoricalClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		logger:  log.Named("historical-api"),
	}
}

// openskyFlight mirrors one element of the flights API response
type openskyFlight struct {
	ICAO24              string `json:"icao24"`
	FirstSeen           int64  `json:"firstSeen"`
	EstDepartureAirport string `json:"estDepartureAirport"`
	LastSeen            int64  `json:"lastSeen"`
	EstArrivalAirport   string `json:"estArrivalAirport"`
	Callsign            string `json:"callsign"`
}

// GetFlightsByAircraft returns all known flights for an aircraft within
// the time window. A 404 from the API means no flights and is returned
// as an empty slice.
func (c *HistoricalClient) GetFlightsByAircraft(ctx context.Context, icao24 string, begin, end time.Time) ([]Flight, error) {
	endpoint := fmt.Sprintf("%s/flights/aircraft?icao24=%s&begin=%d&end=%d",
		c.baseURL, url.QueryEscape(icao24), begin.Unix(), end.Unix())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("Fetching historical flights",
		logger.String("icao24", icao24),
		logger.Time("begin", begin),
		logger.Time("end", end))

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
			Provider:   "historical-api",
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	default:
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var raw []openskyFlight
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse flights response: %w", err)
	}

	flights := make([]Flight, 0, len(raw))
	for _, f := range raw {
		flight := Flight{
			ICAO24:    f.ICAO24,
			Callsign:  f.Callsign,
			Departure: f.EstDepartureAirport,
			Arrival:   f.EstArrivalAirport,
		}
		if f.FirstSeen > 0 {
			t := time.Unix(f.FirstSeen, 0).UTC()
			flight.FirstSeen = &t
		}
		if f.LastSeen > 0 {
			t := time.Unix(f.LastSeen, 0).UTC()
			flight.LastSeen = &t
		}
		flights = append(flights, flight)
	}

	return flights, nil
}

// parseRetryAfter reads a Retry-After header in delta-seconds form.
// HTTP-date form is rare from these APIs and is treated as absent.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	secs, err := strconv.Atoi(value)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
