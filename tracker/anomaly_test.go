package tracker

import (
	"context"
	"testing"
	"time"

	"bitbucket.org/bloomspal/sonia_backend/models"
)

func intPtr(v int) *int { return &v }

func timePtr(t time.Time) *time.Time { return &t }

// businessDaysAgo walks back the given number of business days from
// now, so the tests stay valid on any weekday.
func businessDaysAgo(cal *Calendar, now time.Time, days int) time.Time {
	day := now
	for count := 0; count < days; {
		day = day.AddDate(0, 0, -1)
		if cal.IsBusinessDay(day) {
			count++
		}
	}
	return day
}

func transitRule(threshold int, enabled bool) models.AnomalyRule {
	return models.AnomalyRule{
		RuleName:      models.RuleTransitTooLong,
		IsEnabled:     enabled,
		ThresholdDays: intPtr(threshold),
	}
}

func TestTransitTooLongFiresExactlyOnce(t *testing.T) {
	cal := NewCalendar(nil)
	now := time.Now().UTC()
	shipment := &models.Shipment{
		TrackingNumber: "TRK100",
		SoniaStatus:    models.ShipmentStatusInTransit,
		ShipDate:       timePtr(businessDaysAgo(cal, now, 10)),
	}

	matches, warnings := EvaluateShipment(shipment, []models.AnomalyRule{transitRule(7, true)}, cal, now)
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
	if matches[0].Rule != models.RuleTransitTooLong {
		t.Errorf("matched rule %s", matches[0].Rule)
	}
}

func TestTransitTooLongDisabledNeverFires(t *testing.T) {
	cal := NewCalendar(nil)
	now := time.Now().UTC()
	shipment := &models.Shipment{
		SoniaStatus: models.ShipmentStatusInTransit,
		ShipDate:    timePtr(businessDaysAgo(cal, now, 10)),
	}
	matches, _ := EvaluateShipment(shipment, []models.AnomalyRule{transitRule(7, false)}, cal, now)
	if len(matches) != 0 {
		t.Fatalf("disabled rule fired: %d matches", len(matches))
	}
}

func TestTransitTooLongBelowThreshold(t *testing.T) {
	cal := NewCalendar(nil)
	now := time.Now().UTC()
	shipment := &models.Shipment{
		SoniaStatus: models.ShipmentStatusInTransit,
		ShipDate:    timePtr(businessDaysAgo(cal, now, 3)),
	}
	matches, _ := EvaluateShipment(shipment, []models.AnomalyRule{transitRule(7, true)}, cal, now)
	if len(matches) != 0 {
		t.Fatalf("got %d matches, want 0", len(matches))
	}
}

func TestThresholdRuleWithoutThresholdIsSkippedWithWarning(t *testing.T) {
	cal := NewCalendar(nil)
	now := time.Now().UTC()
	shipment := &models.Shipment{
		SoniaStatus: models.ShipmentStatusInTransit,
		ShipDate:    timePtr(businessDaysAgo(cal, now, 10)),
	}
	rule := models.AnomalyRule{RuleName: models.RuleTransitTooLong, IsEnabled: true}
	matches, warnings := EvaluateShipment(shipment, []models.AnomalyRule{rule}, cal, now)
	if len(matches) != 0 {
		t.Fatalf("misconfigured rule fired")
	}
	if len(warnings) != 1 {
		t.Fatalf("got %d warnings, want 1", len(warnings))
	}
}

func TestStatusOnlyRules(t *testing.T) {
	cal := NewCalendar(nil)
	now := time.Now().UTC()
	rules := []models.AnomalyRule{
		{RuleName: models.RuleExceptionDetected, IsEnabled: true},
		{RuleName: models.RuleReturnedToSender, IsEnabled: true},
	}

	exception := &models.Shipment{SoniaStatus: models.ShipmentStatusException}
	matches, _ := EvaluateShipment(exception, rules, cal, now)
	if len(matches) != 1 || matches[0].Rule != models.RuleExceptionDetected {
		t.Fatalf("exception shipment: %+v", matches)
	}

	returned := &models.Shipment{SoniaStatus: models.ShipmentStatusReturnedToSender}
	matches, _ = EvaluateShipment(returned, rules, cal, now)
	if len(matches) != 1 || matches[0].Rule != models.RuleReturnedToSender {
		t.Fatalf("returned shipment: %+v", matches)
	}

	inTransit := &models.Shipment{SoniaStatus: models.ShipmentStatusInTransit}
	matches, _ = EvaluateShipment(inTransit, rules, cal, now)
	if len(matches) != 0 {
		t.Fatalf("in-transit shipment matched status rules")
	}
}

func TestRulesEvaluateIndependently(t *testing.T) {
	cal := NewCalendar(nil)
	now := time.Now().UTC()
	past := businessDaysAgo(cal, now, 10)
	shipment := &models.Shipment{
		SoniaStatus:      models.ShipmentStatusInTransit,
		ShipDate:         timePtr(past),
		LastStatusChange: timePtr(past),
	}
	rules := []models.AnomalyRule{
		transitRule(7, true),
		{RuleName: models.RuleExceptionDetected, IsEnabled: true},
	}
	matches, _ := EvaluateShipment(shipment, rules, cal, now)
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
}

type fakeClaimChecker struct {
	open map[uint]bool
}

func (f fakeClaimChecker) HasOpenProactiveClaim(_ context.Context, shipmentId uint) (bool, error) {
	return f.open[shipmentId], nil
}

func TestSuppressOpenClaims(t *testing.T) {
	s1 := &models.Shipment{ID: 1, TrackingNumber: "TRK1"}
	s2 := &models.Shipment{ID: 2, TrackingNumber: "TRK2"}
	matches := []Match{
		{Shipment: s1, Rule: models.RuleExceptionDetected},
		{Shipment: s2, Rule: models.RuleExceptionDetected},
		{Shipment: s2, Rule: models.RuleTransitTooLong},
	}
	checker := fakeClaimChecker{open: map[uint]bool{2: true}}

	kept, err := SuppressOpenClaims(context.Background(), matches, checker)
	if err != nil {
		t.Fatal(err)
	}
	if len(kept) != 1 || kept[0].Shipment.ID != 1 {
		t.Fatalf("kept %+v, want only shipment 1", kept)
	}
}
