package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dhightnm/fly-overhead-sub002/internal/telemetry"
	"github.com/dhightnm/fly-overhead-sub002/pkg/logger"
)

// Client polls the public state-vectors API (OpenSky-compatible) for
// samples inside a configured bounding box
type Client struct {
	httpClient     *http.Client
	sourceURL      string
	lamin, lomin   float64
	lamax, lomax   float64
	sourcePriority int
	logger         *logger.Logger
}

// NewClient creates a poller client
func NewClient(sourceURL string, lamin, lomin, lamax, lomax float64, sourcePriority int, timeout time.Duration, log *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		sourceURL:      sourceURL,
		lamin:          lamin,
		lomin:          lomin,
		lamax:          lamax,
		lomax:          lomax,
		sourcePriority: sourcePriority,
		logger:         log.Named("poller"),
	}
}

// FetchStates fetches the current state vectors and converts them to
// samples
func (c *Client) FetchStates(ctx context.Context) ([]*telemetry.Sample, error) {
	urlStr := fmt.Sprintf("%s?lamin=%f&lomin=%f&lamax=%f&lomax=%f",
		c.sourceURL, c.lamin, c.lomin, c.lamax, c.lomax)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var osResp struct {
		Time   int64           `json:"time"`
		States [][]interface{} `json:"states"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&osResp); err != nil {
		return nil, fmt.Errorf("failed to parse states JSON: %w", err)
	}

	now := time.Now().UTC()
	samples := make([]*telemetry.Sample, 0, len(osResp.States))
	for _, s := range osResp.States {
		sample := c.convertState(s, now)
		if sample == nil {
			continue
		}
		samples = append(samples, sample)
	}

	c.logger.Debug("Fetched state vectors",
		logger.Int("count", len(samples)))
	return samples, nil
}

// convertState maps one state vector array onto a sample. Extraction is
// defensive per the published field order; a vector without an icao24
// is dropped.
func (c *Client) convertState(s []interface{}, now time.Time) *telemetry.Sample {
	sample := &telemetry.Sample{
		DataSource:     telemetry.SourcePoller,
		SourcePriority: c.sourcePriority,
		IngestedAt:     now,
	}

	if len(s) > 0 {
		if v, ok := s[0].(string); ok {
			sample.ICAO24 = v
		}
	}
	if sample.ICAO24 == "" {
		return nil
	}
	if len(s) > 1 {
		if v, ok := s[1].(string); ok {
			// The feed pads callsigns to eight characters with spaces
			sample.Callsign = strings.TrimSpace(v)
		}
	}
	if len(s) > 4 {
		if v, ok := s[4].(float64); ok {
			sample.LastContact = int64(v)
		}
	}
	if len(s) > 5 {
		if v, ok := s[5].(float64); ok {
			lon := v
			sample.Lon = &lon
		}
	}
	if len(s) > 6 {
		if v, ok := s[6].(float64); ok {
			lat := v
			sample.Lat = &lat
		}
	}
	if len(s) > 7 {
		if v, ok := s[7].(float64); ok {
			alt := v
			sample.BaroAltitude = &alt
		}
	}
	if len(s) > 8 {
		if v, ok := s[8].(bool); ok {
			onGround := v
			sample.OnGround = &onGround
		}
	}
	if len(s) > 9 {
		if v, ok := s[9].(float64); ok {
			vel := v
			sample.Velocity = &vel
		}
	}
	if len(s) > 10 {
		if v, ok := s[10].(float64); ok {
			track := v
			sample.Track = &track
		}
	}
	if len(s) > 11 {
		if v, ok := s[11].(float64); ok {
			rate := v
			sample.VerticalRate = &rate
		}
	}
	if len(s) > 13 {
		if v, ok := s[13].(float64); ok {
			alt := v
			sample.GeoAltitude = &alt
		}
	}
	if len(s) > 14 {
		if v, ok := s[14].(string); ok {
			sample.Squawk = v
		}
	}
	if len(s) > 17 {
		if v, ok := s[17].(float64); ok && v > 0 {
			sample.Category = fmt.Sprintf("%d", int(v))
		}
	}

	if sample.LastContact == 0 {
		sample.LastContact = now.Unix()
	}
	return sample
}
