package routes

import (
	"context"

	"github.com/dhightnm/fly-overhead-sub002/internal/telemetry"
	"github.com/dhightnm/fly-overhead-sub002/pkg/logger"
)

// stepInference is the last resort: infer the departure from the
// aircraft's first known position, then try to fill in the arrival from
// history or from a landing search around the latest position.
func (r *Resolver) stepInference(ctx context.Context, req *Request) (*Result, error) {
	if r.samples == nil || r.airports == nil {
		return nil, nil
	}

	first, err := r.samples.FirstPositionSample(ctx, req.ICAO24)
	if err != nil {
		return nil, err
	}
	if first == nil || !first.HasPosition() {
		return nil, nil
	}

	candidates, err := r.airports.FindNear(ctx, *first.Lat, *first.Lon, r.cfg.InferenceRadiusKM, "")
	if err != nil {
		return nil, err
	}
	departure := BestCandidate(candidates, PositionDeparture, req.Callsign)
	if departure == nil {
		return nil, nil
	}

	result := &Result{
		Departure:     departure.Ident,
		DepartureName: departure.Name,
		ArrivalStatus: ArrivalNotInferred,
		Source:        SourceInference,
	}

	// A known past leg from this departure beats guessing
	leg, err := r.store.ArrivalForDeparture(ctx, req.ICAO24, req.Callsign, departure.Ident)
	if err != nil {
		return nil, err
	}
	if leg != nil && leg.Arrival != "" {
		result.Arrival = leg.Arrival
		result.ArrivalStatus = ArrivalKnown
		if leg.AircraftType != "" {
			result.AircraftType = leg.AircraftType
		}
		if airport := r.lookupAirport(ctx, leg.Arrival); airport != nil {
			result.ArrivalName = airport.Name
		}
		return result, nil
	}

	// No history: if the aircraft looks like it is landing, search for
	// a field under it
	latest, err := r.samples.LatestPositionSample(ctx, req.ICAO24)
	if err != nil {
		return nil, err
	}
	if !r.descending(latest) {
		return result, nil
	}

	landingCandidates, err := r.airports.FindNear(ctx, *latest.Lat, *latest.Lon, r.cfg.LandingRadiusKM, "")
	if err != nil {
		return nil, err
	}
	landing := BestCandidate(landingCandidates, PositionLanding, req.Callsign)
	if landing == nil || landing.Ident == departure.Ident {
		result.ArrivalStatus = ArrivalUnknown
		return result, nil
	}

	result.Arrival = landing.Ident
	result.ArrivalName = landing.Name
	result.ArrivalStatus = ArrivalKnown

	r.logger.Debug("Inferred route from position",
		logger.String("icao24", req.ICAO24),
		logger.String("departure", result.Departure),
		logger.String("arrival", result.Arrival))
	return result, nil
}

// descending reports whether the sample shows an aircraft plausibly on
// approach: sinking and low
func (r *Resolver) descending(s *telemetry.Sample) bool {
	if s == nil || !s.HasPosition() {
		return false
	}
	if s.VerticalRate == nil || *s.VerticalRate > r.cfg.DescentRateMs {
		return false
	}
	alt := s.BaroAltitude
	if alt == nil {
		alt = s.GeoAltitude
	}
	return alt != nil && *alt <= r.cfg.LandingMaxAltM
}
