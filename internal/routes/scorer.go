package routes

import (
	"sort"
	"strings"
)

// PositionType tells the scorer which end of a flight the reference
// position represents
type PositionType string

const (
	PositionDeparture PositionType = "departure"
	PositionLanding   PositionType = "landing"
)

const (
	// Runways shorter than this are penalized as marginal for most
	// commercial traffic
	shortRunwayM = 1500.0
	// Minimum runway a cargo carrier realistically operates from
	cargoRunwayM = 1800.0
)

// cargoPrefixes are callsign prefixes of freight carriers that only
// operate from fields with substantial runways
var cargoPrefixes = []string{
	"FDX", "UPS", "GTI", "CLX", "ABW", "BOX", "CKS", "GEC", "MPH", "NCA",
}

// ScoreCandidate computes the suitability score of a single airport
// candidate. Higher is better. A landing position weights proximity
// more heavily since a descending aircraft is already committed to the
// immediate area.
func ScoreCandidate(c Candidate, positionType PositionType) float64 {
	score := 100 * typeWeight(c.Type)
	score += 10 * minF(c.MaxRunwayM/500, 10)
	score += 2 * minF(float64(c.RunwayCount), 5)

	proximity := 1.0
	if positionType == PositionLanding {
		proximity = 5.0
	}
	score += proximity / (c.DistanceKM + 1)

	if c.Type == "small_airport" {
		score -= 2
	}
	if c.MaxRunwayM < shortRunwayM {
		score -= 5
	}
	return score
}

// BestCandidate picks the most plausible airport from a candidate set.
// Closed airports and heliports are filtered out. When the callsign
// belongs to a cargo carrier and the top pick lacks usable runways, the
// best alternative with cargo-capable runways is substituted. Returns
// nil when no usable candidate remains.
func BestCandidate(candidates []Candidate, positionType PositionType, callsign string) *Candidate {
	usable := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Closed || c.Type == "heliport" {
			continue
		}
		usable = append(usable, c)
	}
	if len(usable) == 0 {
		return nil
	}

	sort.SliceStable(usable, func(i, j int) bool {
		return ScoreCandidate(usable[i], positionType) > ScoreCandidate(usable[j], positionType)
	})

	best := usable[0]
	if isCargoCallsign(callsign) && (best.Type == "small_airport" || best.MaxRunwayM < cargoRunwayM) {
		for _, alt := range usable[1:] {
			if alt.Type != "small_airport" && alt.MaxRunwayM >= cargoRunwayM {
				best = alt
				break
			}
		}
	}

	return &best
}

func typeWeight(airportType string) float64 {
	switch airportType {
	case "large_airport":
		return 3
	case "medium_airport":
		return 2
	default:
		return 1
	}
}

func isCargoCallsign(callsign string) bool {
	cs := NormalizeCallsign(callsign)
	for _, prefix := range cargoPrefixes {
		if strings.HasPrefix(cs, prefix) {
			return true
		}
	}
	return false
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
