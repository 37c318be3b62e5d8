package tracker

import (
	"testing"
	"time"

	"bitbucket.org/bloomspal/sonia_backend/fedex"
	"bitbucket.org/bloomspal/sonia_backend/models"
)

func testPolicy() CheckPolicy {
	return CheckPolicy{
		MinInterval:   6 * time.Hour,
		TerminalGrace: 7 * 24 * time.Hour,
	}
}

func TestDueNeverForDelivered(t *testing.T) {
	s := &models.Shipment{IsDelivered: true}
	if testPolicy().Due(s, time.Now()) {
		t.Fatal("delivered shipment reported due")
	}
}

func TestDueRespectsMinInterval(t *testing.T) {
	now := time.Now().UTC()
	policy := testPolicy()

	recent := now.Add(-time.Hour)
	s := &models.Shipment{SoniaStatus: models.ShipmentStatusInTransit, LastFedexCheck: &recent}
	if policy.Due(s, now) {
		t.Error("shipment checked an hour ago reported due")
	}

	stale := now.Add(-7 * time.Hour)
	s.LastFedexCheck = &stale
	if !policy.Due(s, now) {
		t.Error("shipment checked seven hours ago not due")
	}

	never := &models.Shipment{SoniaStatus: models.ShipmentStatusUnknown}
	if !policy.Due(never, now) {
		t.Error("never-checked shipment not due")
	}
}

func TestDueTerminalGrace(t *testing.T) {
	now := time.Now().UTC()
	policy := testPolicy()

	recentChange := now.Add(-24 * time.Hour)
	s := &models.Shipment{
		SoniaStatus:      models.ShipmentStatusReturnedToSender,
		LastStatusChange: &recentChange,
	}
	if !policy.Due(s, now) {
		t.Error("returned shipment inside grace not due")
	}

	oldChange := now.Add(-30 * 24 * time.Hour)
	s.LastStatusChange = &oldChange
	if policy.Due(s, now) {
		t.Error("returned shipment past grace reported due")
	}

	cancelled := &models.Shipment{
		SoniaStatus:      models.ShipmentStatusCancelled,
		LastStatusChange: &oldChange,
	}
	if policy.Due(cancelled, now) {
		t.Error("cancelled shipment past grace reported due")
	}
}

func deliveredResult(tn string) fedex.TrackResult {
	return fedex.TrackResult{
		TrackingNumber:  tn,
		SoniaStatus:     models.ShipmentStatusDelivered,
		FedexStatus:     "Delivered",
		FedexStatusCode: "DL",
		IsDelivered:     true,
	}
}

func TestApplyTrackingResultStatusChange(t *testing.T) {
	now := time.Now().UTC()
	s := &models.Shipment{
		TrackingNumber: "TRK001",
		SoniaStatus:    models.ShipmentStatusUnknown,
	}

	outcome := ApplyTrackingResult(s, deliveredResult("TRK001"), now)

	if !outcome.Changed {
		t.Fatal("expected a status change")
	}
	if outcome.StatusFrom != models.ShipmentStatusUnknown || outcome.StatusTo != models.ShipmentStatusDelivered {
		t.Errorf("transition %s -> %s", outcome.StatusFrom, outcome.StatusTo)
	}
	if !outcome.Delivered || !s.IsDelivered {
		t.Error("delivery flag not set")
	}
	if s.FedexCheckCount != 1 {
		t.Errorf("check count %d, want 1", s.FedexCheckCount)
	}
	if s.LastStatusChange == nil || !s.LastStatusChange.Equal(now) {
		t.Error("last status change not advanced")
	}
	if s.LastFedexCheck == nil || !s.LastFedexCheck.Equal(now) {
		t.Error("last check not recorded")
	}
}

func TestApplyTrackingResultRepeatedDeliveredIsNoChange(t *testing.T) {
	now := time.Now().UTC()
	s := &models.Shipment{
		TrackingNumber: "TRK001",
		SoniaStatus:    models.ShipmentStatusUnknown,
	}
	ApplyTrackingResult(s, deliveredResult("TRK001"), now)
	firstChange := *s.LastStatusChange

	later := now.Add(time.Hour)
	outcome := ApplyTrackingResult(s, deliveredResult("TRK001"), later)

	if outcome.Changed {
		t.Error("second delivered result reported a change")
	}
	if outcome.Delivered {
		t.Error("delivery flag reported newly set twice")
	}
	if !s.LastStatusChange.Equal(firstChange) {
		t.Error("last status change moved without a status change")
	}
	if s.FedexCheckCount != 2 {
		t.Errorf("check count %d, want 2", s.FedexCheckCount)
	}
}

func TestApplyTrackingResultSameStatusBumpsBookkeepingOnly(t *testing.T) {
	now := time.Now().UTC()
	s := &models.Shipment{
		TrackingNumber: "TRK002",
		SoniaStatus:    models.ShipmentStatusInTransit,
	}
	result := fedex.TrackResult{
		TrackingNumber: "TRK002",
		SoniaStatus:    models.ShipmentStatusInTransit,
		FedexStatus:    "In transit",
	}

	outcome := ApplyTrackingResult(s, result, now)
	if outcome.Changed {
		t.Error("unchanged status reported as change")
	}
	if s.LastStatusChange != nil {
		t.Error("last status change set without a change")
	}
	if s.FedexCheckCount != 1 || s.LastFedexCheck == nil {
		t.Error("bookkeeping not updated")
	}
}

func TestApplyTrackingResultKeepsExistingDates(t *testing.T) {
	now := time.Now().UTC()
	original := now.AddDate(0, 0, -5)
	s := &models.Shipment{
		TrackingNumber: "TRK003",
		SoniaStatus:    models.ShipmentStatusPickedUp,
		ShipDate:       &original,
	}
	carrierDate := now.AddDate(0, 0, -4)
	result := fedex.TrackResult{
		TrackingNumber: "TRK003",
		SoniaStatus:    models.ShipmentStatusInTransit,
		ShipDate:       &carrierDate,
	}

	ApplyTrackingResult(s, result, now)
	if !s.ShipDate.Equal(original) {
		t.Error("upstream ship date overwritten by carrier date")
	}
}

// TRK001 scenario: unknown shipment, carrier code DL, first pass flips
// to delivered, second pass is a bookkeeping-only no-op.
func TestDeliveryEndToEnd(t *testing.T) {
	now := time.Now().UTC()
	s := &models.Shipment{
		TrackingNumber: "TRK001",
		SoniaStatus:    models.ShipmentStatusUnknown,
	}

	mapped := fedex.MapStatus("DL", "Delivered")
	if mapped != models.ShipmentStatusDelivered {
		t.Fatalf("DL mapped to %s", mapped)
	}

	first := ApplyTrackingResult(s, fedex.TrackResult{
		TrackingNumber:  "TRK001",
		SoniaStatus:     mapped,
		FedexStatusCode: "DL",
		IsDelivered:     true,
	}, now)
	if !first.Changed || !s.IsDelivered {
		t.Fatal("first reconciliation did not deliver")
	}

	// a delivered shipment is no longer due, so the second run never
	// consults the carrier at all
	if testPolicy().Due(s, now.Add(24*time.Hour)) {
		t.Fatal("delivered shipment due for another check")
	}
	if s.FedexCheckCount != 1 {
		t.Fatalf("check count %d after delivery, want 1", s.FedexCheckCount)
	}
}
