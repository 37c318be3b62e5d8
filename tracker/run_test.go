package tracker

import (
	"testing"
	"time"

	"bitbucket.org/bloomspal/sonia_backend/models"
)

func TestDecideRunStatus(t *testing.T) {
	cases := []struct {
		errors int
		want   models.RunStatus
	}{
		{0, models.RunStatusSuccess},
		{1, models.RunStatusPartial},
		{3, models.RunStatusPartial},
	}
	for _, tc := range cases {
		if got := decideRunStatus(tc.errors); got != tc.want {
			t.Errorf("decideRunStatus(%d) = %s, want %s", tc.errors, got, tc.want)
		}
	}
}

// A run where every item errored is still partial. Failed is only for
// runs that could not load their shipments in the first place.
func TestEveryItemFailingIsStillPartial(t *testing.T) {
	if got := decideRunStatus(3); got != models.RunStatusPartial {
		t.Fatalf("all items failing: got %s, want %s", got, models.RunStatusPartial)
	}
}

func TestDetectionCandidates(t *testing.T) {
	recent := time.Now().UTC().Add(-10 * time.Minute)
	shipments := []models.Shipment{
		{TrackingNumber: "TRK100", IsDelivered: true},
		{TrackingNumber: "TRK101"},
		{TrackingNumber: "TRK102", LastFedexCheck: &recent},
	}

	got := detectionCandidates(shipments)
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2", len(got))
	}
	numbers := map[string]bool{}
	for _, s := range got {
		numbers[s.TrackingNumber] = true
	}
	if numbers["TRK100"] {
		t.Error("delivered shipment should not be a candidate")
	}
	if !numbers["TRK102"] {
		t.Error("recently checked shipment must still be evaluated")
	}
}

func TestNextRunAt(t *testing.T) {
	loc := time.UTC

	before := time.Date(2025, 9, 1, 2, 30, 0, 0, loc)
	next := nextRunAt(before, 4)
	if next.Day() != 1 || next.Hour() != 4 {
		t.Errorf("before run hour: got %s", next)
	}

	after := time.Date(2025, 9, 1, 5, 0, 0, 0, loc)
	next = nextRunAt(after, 4)
	if next.Day() != 2 || next.Hour() != 4 {
		t.Errorf("after run hour: got %s", next)
	}

	exact := time.Date(2025, 9, 1, 4, 0, 0, 0, loc)
	next = nextRunAt(exact, 4)
	if next.Day() != 2 {
		t.Errorf("exactly at run hour should schedule tomorrow: got %s", next)
	}
}
