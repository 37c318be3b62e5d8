package models

import (
	"testing"
)

func TestClaimTransitionsForwardOnly(t *testing.T) {
	allowed := []struct {
		from, to ClaimStatus
	}{
		{ClaimStatusNew, ClaimStatusInternalReview},
		{ClaimStatusInternalReview, ClaimStatusSentToCarrier},
		{ClaimStatusSentToCarrier, ClaimStatusCarrierInvestigation},
		{ClaimStatusCarrierInvestigation, ClaimStatusApproved},
		{ClaimStatusCarrierInvestigation, ClaimStatusRejected},
		{ClaimStatusApproved, ClaimStatusReimbursementReceived},
		{ClaimStatusRejected, ClaimStatusReimbursementReceived},
		{ClaimStatusRejected, ClaimStatusClosed},
		{ClaimStatusReimbursementReceived, ClaimStatusClosed},
	}
	for _, tc := range allowed {
		if !tc.from.CanTransitionTo(tc.to) {
			t.Errorf("%s -> %s should be allowed", tc.from, tc.to)
		}
	}

	denied := []struct {
		from, to ClaimStatus
	}{
		{ClaimStatusInternalReview, ClaimStatusNew},
		{ClaimStatusNew, ClaimStatusSentToCarrier},
		{ClaimStatusNew, ClaimStatusClosed},
		{ClaimStatusApproved, ClaimStatusRejected},
		{ClaimStatusClosed, ClaimStatusNew},
		{ClaimStatusClosed, ClaimStatusInternalReview},
	}
	for _, tc := range denied {
		if tc.from.CanTransitionTo(tc.to) {
			t.Errorf("%s -> %s should be denied", tc.from, tc.to)
		}
	}
}

func TestClosedIsTerminal(t *testing.T) {
	for _, next := range []ClaimStatus{
		ClaimStatusNew, ClaimStatusInternalReview, ClaimStatusSentToCarrier,
		ClaimStatusCarrierInvestigation, ClaimStatusApproved, ClaimStatusRejected,
		ClaimStatusReimbursementReceived,
	} {
		if ClaimStatusClosed.CanTransitionTo(next) {
			t.Errorf("closed -> %s should be impossible", next)
		}
	}
}

func TestEnumValidation(t *testing.T) {
	if ShipmentStatus("teleported").IsValid() {
		t.Error("unknown shipment status validated")
	}
	if !ShipmentStatusInCustoms.IsValid() {
		t.Error("in_customs rejected")
	}
	if ClaimStatus("reopened").IsValid() {
		t.Error("unknown claim status validated")
	}
	if ClaimType("shrunk").IsValid() {
		t.Error("unknown claim type validated")
	}
	if ClaimOrigin("fax").IsValid() {
		t.Error("unknown origin validated")
	}
	if AnomalyRuleName("gut_feeling").IsValid() {
		t.Error("unknown rule validated")
	}
}

func TestTerminalNotDelivered(t *testing.T) {
	if !ShipmentStatusCancelled.IsTerminalNotDelivered() {
		t.Error("cancelled should be terminal")
	}
	if !ShipmentStatusReturnedToSender.IsTerminalNotDelivered() {
		t.Error("returned_to_sender should be terminal")
	}
	if ShipmentStatusDelivered.IsTerminalNotDelivered() {
		t.Error("delivered is handled by its own flag")
	}
	if ShipmentStatusInTransit.IsTerminalNotDelivered() {
		t.Error("in_transit is not terminal")
	}
}

func TestClaimTypeForRule(t *testing.T) {
	if got := ClaimTypeForRule(RuleTransitTooLong); got != ClaimTypeLateDelivery {
		t.Errorf("transit_too_long -> %s", got)
	}
	if got := ClaimTypeForRule(RuleCustomsTooLong); got != ClaimTypeLateDelivery {
		t.Errorf("customs_too_long -> %s", got)
	}
	if got := ClaimTypeForRule(RuleReturnedToSender); got != ClaimTypeNotDelivered {
		t.Errorf("returned_to_sender -> %s", got)
	}
	if got := ClaimTypeForRule(AnomalyRuleName("nonsense")); got != ClaimTypeOther {
		t.Errorf("unknown rule -> %s", got)
	}
}
