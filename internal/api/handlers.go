package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dhightnm/fly-overhead-sub002/internal/ingest"
	"github.com/dhightnm/fly-overhead-sub002/internal/ratelimit"
	"github.com/dhightnm/fly-overhead-sub002/internal/reconcile"
	"github.com/dhightnm/fly-overhead-sub002/internal/routes"
	"github.com/dhightnm/fly-overhead-sub002/internal/storage/sqlite"
	"github.com/dhightnm/fly-overhead-sub002/internal/telemetry"
	"github.com/dhightnm/fly-overhead-sub002/internal/websocket"
	"github.com/dhightnm/fly-overhead-sub002/pkg/logger"
)

// currentFlightWindow decides whether an aircraft's latest contact
// still counts as an in-progress flight for route resolution
const currentFlightWindow = 30 * time.Minute

// defaultActiveWindow bounds the aircraft list when the client gives no
// window
const defaultActiveWindow = 10 * time.Minute

// Handler contains the API handlers
type Handler struct {
	ingestService *ingest.Service
	feeders       *ingest.Registry
	states        *sqlite.StateStore
	resolver      *routes.Resolver
	wsServer      *websocket.Server
	histLimit     *ratelimit.Limiter
	rtLimit       *ratelimit.Limiter
	logger        *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(
	ingestService *ingest.Service,
	feeders *ingest.Registry,
	states *sqlite.StateStore,
	resolver *routes.Resolver,
	wsServer *websocket.Server,
	histLimit, rtLimit *ratelimit.Limiter,
	log *logger.Logger,
) *Handler {
	return &Handler{
		ingestService: ingestService,
		feeders:       feeders,
		states:        states,
		resolver:      resolver,
		wsServer:      wsServer,
		histLimit:     histLimit,
		rtLimit:       rtLimit,
		logger:        log.Named("api-handler"),
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// registerFeederRequest is the feeder self-registration payload
type registerFeederRequest struct {
	Name     string   `json:"name"`
	Lat      *float64 `json:"lat"`
	Lon      *float64 `json:"lon"`
	Priority int      `json:"priority"`
}

// RegisterFeeder registers a new feeder station and returns its ID
func (h *Handler) RegisterFeeder(w http.ResponseWriter, r *http.Request) {
	var req registerFeederRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	feeder, err := h.feeders.Register(r.Context(), req.Name, req.Lat, req.Lon, req.Priority)
	if err != nil {
		h.logger.Warn("Feeder registration failed", logger.Error(err))
		WriteJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	WriteJSON(w, http.StatusCreated, feeder)
}

// ListFeeders returns all registered feeders
func (h *Handler) ListFeeders(w http.ResponseWriter, r *http.Request) {
	feeders, err := h.feeders.List(r.Context())
	if err != nil {
		h.logger.Error("Failed to list feeders", logger.Error(err))
		WriteJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to list feeders"})
		return
	}
	if feeders == nil {
		feeders = []*telemetry.Feeder{}
	}
	WriteJSON(w, http.StatusOK, feeders)
}

// ingestRequest is a batch of samples from one feeder
type ingestRequest struct {
	FeederID string                 `json:"feeder_id"`
	Samples  []*ingest.FeederSample `json:"samples"`
}

type ingestResponse struct {
	Accepted int      `json:"accepted"`
	Rejected int      `json:"rejected"`
	Errors   []string `json:"errors,omitempty"`
}

// IngestSamples accepts a batch of feeder samples. Validation failures
// reject individual samples; a storage failure fails the whole request
// so the feeder retries.
func (h *Handler) IngestSamples(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if len(req.Samples) == 0 {
		WriteJSON(w, http.StatusBadRequest, errorResponse{Error: "no samples in request"})
		return
	}

	feeder, err := h.feeders.Lookup(r.Context(), req.FeederID)
	if err != nil {
		h.logger.Error("Feeder lookup failed", logger.Error(err))
		WriteJSON(w, http.StatusInternalServerError, errorResponse{Error: "feeder lookup failed"})
		return
	}
	if feeder == nil {
		WriteJSON(w, http.StatusUnauthorized, errorResponse{Error: "unknown feeder_id"})
		return
	}

	resp := ingestResponse{}
	for _, fs := range req.Samples {
		sample := h.feeders.ToSample(feeder, fs)
		if err := h.ingestService.Ingest(r.Context(), sample); err != nil {
			var verr *reconcile.ValidationError
			if errors.As(err, &verr) {
				resp.Rejected++
				resp.Errors = append(resp.Errors, verr.Error())
				continue
			}
			// Storage failure: the feeder must retry the batch
			h.logger.Error("Sample ingest failed",
				logger.String("feeder_id", feeder.ID),
				logger.Error(err))
			WriteJSON(w, http.StatusInternalServerError, errorResponse{Error: "storage failure, retry the batch"})
			return
		}
		resp.Accepted++
	}

	status := http.StatusOK
	if resp.Accepted == 0 {
		status = http.StatusBadRequest
	}
	WriteJSON(w, status, resp)
}

// ListAircraft returns canonical states for recently seen aircraft
func (h *Handler) ListAircraft(w http.ResponseWriter, r *http.Request) {
	window := defaultActiveWindow
	if v := r.URL.Query().Get("active_within_minutes"); v != "" {
		minutes, err := strconv.Atoi(v)
		if err != nil || minutes <= 0 {
			WriteJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid active_within_minutes"})
			return
		}
		window = time.Duration(minutes) * time.Minute
	}

	states, err := h.states.ListActiveStates(r.Context(), time.Now().UTC().Add(-window))
	if err != nil {
		h.logger.Error("Failed to list aircraft", logger.Error(err))
		WriteJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to list aircraft"})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"count":    len(states),
		"aircraft": states,
	})
}

// GetAircraft returns the canonical state for one aircraft
func (h *Handler) GetAircraft(w http.ResponseWriter, r *http.Request) {
	icao24 := chi.URLParam(r, "icao24")

	state, err := h.states.GetState(r.Context(), icao24)
	if err != nil {
		h.logger.Error("Failed to get aircraft state", logger.Error(err))
		WriteJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to get aircraft"})
		return
	}
	if state == nil {
		WriteJSON(w, http.StatusNotFound, errorResponse{Error: "aircraft not found"})
		return
	}
	WriteJSON(w, http.StatusOK, state)
}

// GetRoute resolves the route for one aircraft. ?refresh=true expresses
// explicit user intent: the expensive provider becomes available and
// the in-process cache is bypassed.
func (h *Handler) GetRoute(w http.ResponseWriter, r *http.Request) {
	icao24 := chi.URLParam(r, "icao24")
	refresh := r.URL.Query().Get("refresh") == "true"

	state, err := h.states.GetState(r.Context(), icao24)
	if err != nil {
		h.logger.Error("Failed to get aircraft state", logger.Error(err))
		WriteJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to get aircraft"})
		return
	}

	req := &routes.Request{
		ICAO24:         icao24,
		AllowExpensive: refresh,
	}
	if state != nil {
		req.Callsign = state.Callsign
		lastSeen := time.Unix(state.LastContact, 0)
		req.IsCurrentFlight = time.Since(lastSeen) < currentFlightWindow
	}

	result, err := h.resolver.Resolve(r.Context(), req)
	if err != nil {
		h.logger.Error("Route resolution failed",
			logger.String("icao24", icao24),
			logger.Error(err))
		WriteJSON(w, http.StatusInternalServerError, errorResponse{Error: "route resolution failed"})
		return
	}
	if result == nil {
		WriteJSON(w, http.StatusNotFound, errorResponse{Error: "route unavailable"})
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// GetHealth reports ingest, storage and provider status
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	stateCount, err := h.states.CountStates(r.Context())
	if err != nil {
		WriteJSON(w, http.StatusInternalServerError, errorResponse{Error: "storage unavailable"})
		return
	}
	sampleCount, _ := h.states.CountSamples(r.Context())
	lastFetch, lastSize, lastErr := h.ingestService.Status()

	health := map[string]any{
		"status":       "ok",
		"states":       stateCount,
		"samples":      sampleCount,
		"ws_clients":   h.wsServer.ClientCount(),
		"last_fetch":   lastFetch,
		"last_fetched": lastSize,
		"providers": map[string]any{
			"historical_blocked_until": blockedUntil(h.histLimit),
			"realtime_blocked_until":   blockedUntil(h.rtLimit),
		},
	}
	if lastErr != nil {
		health["last_fetch_error"] = lastErr.Error()
	}

	WriteJSON(w, http.StatusOK, health)
}

// HandleWebSocket upgrades to the live sample stream
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsServer.HandleConnection(w, r)
}

func blockedUntil(l *ratelimit.Limiter) any {
	until := l.BlockedUntil()
	if until.IsZero() {
		return nil
	}
	return until
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
