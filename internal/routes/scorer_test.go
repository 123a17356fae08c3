package routes

import "testing"

func TestLargeAirportBeatsCloserSmallField(t *testing.T) {
	candidates := []Candidate{
		{Airport: Airport{Ident: "SMALL", Type: "small_airport", MaxRunwayM: 800, RunwayCount: 1}, DistanceKM: 1},
		{Airport: Airport{Ident: "LARGE", Type: "large_airport", MaxRunwayM: 3000, RunwayCount: 4}, DistanceKM: 5},
	}

	best := BestCandidate(candidates, PositionDeparture, "")
	if best == nil {
		t.Fatal("expected a candidate")
	}
	if best.Ident != "LARGE" {
		t.Errorf("best = %s, want LARGE", best.Ident)
	}
}

func TestClosedAndHeliportFilteredOut(t *testing.T) {
	candidates := []Candidate{
		{Airport: Airport{Ident: "CLOSED", Type: "closed", Closed: true, MaxRunwayM: 3000}, DistanceKM: 1},
		{Airport: Airport{Ident: "HELI", Type: "heliport"}, DistanceKM: 2},
		{Airport: Airport{Ident: "FIELD", Type: "small_airport", MaxRunwayM: 900, RunwayCount: 1}, DistanceKM: 10},
	}

	best := BestCandidate(candidates, PositionDeparture, "")
	if best == nil || best.Ident != "FIELD" {
		t.Fatalf("best = %v, want FIELD", best)
	}

	if got := BestCandidate(candidates[:2], PositionDeparture, ""); got != nil {
		t.Errorf("expected nil when only closed/heliport candidates remain, got %s", got.Ident)
	}
}

func TestCargoGuardSubstitutesEquippedField(t *testing.T) {
	// STRIP outscores CARGO on runway count and proximity but its
	// longest runway is below what a freighter can use
	candidates := []Candidate{
		{Airport: Airport{Ident: "STRIP", Type: "medium_airport", MaxRunwayM: 1700, RunwayCount: 5}, DistanceKM: 1},
		{Airport: Airport{Ident: "CARGO", Type: "medium_airport", MaxRunwayM: 1900, RunwayCount: 1}, DistanceKM: 50},
	}

	best := BestCandidate(candidates, PositionDeparture, "FDX1234")
	if best == nil {
		t.Fatal("expected a candidate")
	}
	if best.Ident != "CARGO" {
		t.Errorf("cargo callsign resolved to %s, want the equipped CARGO field", best.Ident)
	}

	// A passenger callsign keeps the plain scoring order
	best = BestCandidate(candidates, PositionDeparture, "UAL123")
	if best == nil || best.Ident != "STRIP" {
		t.Errorf("passenger callsign should keep the top-scored field")
	}
}

func TestScorePenalties(t *testing.T) {
	long := Candidate{Airport: Airport{Type: "medium_airport", MaxRunwayM: 2000, RunwayCount: 2}, DistanceKM: 10}
	short := Candidate{Airport: Airport{Type: "medium_airport", MaxRunwayM: 1400, RunwayCount: 2}, DistanceKM: 10}

	if ScoreCandidate(short, PositionDeparture) >= ScoreCandidate(long, PositionDeparture) {
		t.Error("sub-1500m runway should score below a longer one")
	}
}

func TestLandingPositionWeighsProximity(t *testing.T) {
	near := Candidate{Airport: Airport{Type: "small_airport", MaxRunwayM: 1600, RunwayCount: 1}, DistanceKM: 1}

	depScore := ScoreCandidate(near, PositionDeparture)
	landScore := ScoreCandidate(near, PositionLanding)
	if landScore <= depScore {
		t.Error("landing scoring should weight proximity higher")
	}
}
