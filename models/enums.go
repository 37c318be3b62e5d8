package models

// Closed enumerations. Adding a value requires a migration, never a
// silent extension; parse helpers reject anything outside the set.

type ShipmentStatus string

const (
	ShipmentStatusLabelCreated      ShipmentStatus = "label_created"
	ShipmentStatusPickedUp          ShipmentStatus = "picked_up"
	ShipmentStatusInTransit         ShipmentStatus = "in_transit"
	ShipmentStatusInCustoms         ShipmentStatus = "in_customs"
	ShipmentStatusOutForDelivery    ShipmentStatus = "out_for_delivery"
	ShipmentStatusDelivered         ShipmentStatus = "delivered"
	ShipmentStatusDeliveryAttempted ShipmentStatus = "delivery_attempted"
	ShipmentStatusException         ShipmentStatus = "exception"
	ShipmentStatusDelayed           ShipmentStatus = "delayed"
	ShipmentStatusOnHold            ShipmentStatus = "on_hold"
	ShipmentStatusReturnedToSender  ShipmentStatus = "returned_to_sender"
	ShipmentStatusCancelled         ShipmentStatus = "cancelled"
	ShipmentStatusUnknown           ShipmentStatus = "unknown"
)

var shipmentStatuses = map[ShipmentStatus]bool{
	ShipmentStatusLabelCreated:      true,
	ShipmentStatusPickedUp:          true,
	ShipmentStatusInTransit:         true,
	ShipmentStatusInCustoms:         true,
	ShipmentStatusOutForDelivery:    true,
	ShipmentStatusDelivered:         true,
	ShipmentStatusDeliveryAttempted: true,
	ShipmentStatusException:         true,
	ShipmentStatusDelayed:           true,
	ShipmentStatusOnHold:            true,
	ShipmentStatusReturnedToSender:  true,
	ShipmentStatusCancelled:         true,
	ShipmentStatusUnknown:           true,
}

func (s ShipmentStatus) IsValid() bool {
	return shipmentStatuses[s]
}

// Terminal statuses other than delivered. Shipments parked in one of
// these are rechecked only within a grace period.
func (s ShipmentStatus) IsTerminalNotDelivered() bool {
	return s == ShipmentStatusCancelled || s == ShipmentStatusReturnedToSender
}

type ClaimType string

const (
	ClaimTypeNotDelivered ClaimType = "not_delivered"
	ClaimTypeDamaged      ClaimType = "damaged"
	ClaimTypeTotalLoss    ClaimType = "total_loss"
	ClaimTypeLateDelivery ClaimType = "late_delivery"
	ClaimTypeOther        ClaimType = "other"
)

func (t ClaimType) IsValid() bool {
	switch t {
	case ClaimTypeNotDelivered, ClaimTypeDamaged, ClaimTypeTotalLoss,
		ClaimTypeLateDelivery, ClaimTypeOther:
		return true
	}
	return false
}

type ClaimStatus string

const (
	ClaimStatusNew                   ClaimStatus = "new"
	ClaimStatusInternalReview        ClaimStatus = "internal_review"
	ClaimStatusSentToCarrier         ClaimStatus = "sent_to_carrier"
	ClaimStatusCarrierInvestigation  ClaimStatus = "carrier_investigation"
	ClaimStatusApproved              ClaimStatus = "approved"
	ClaimStatusRejected              ClaimStatus = "rejected"
	ClaimStatusReimbursementReceived ClaimStatus = "reimbursement_received"
	ClaimStatusClosed                ClaimStatus = "closed"
)

// claimTransitions defines the forward-only workflow. A status maps to
// the set of statuses it may move to; closed maps to nothing.
var claimTransitions = map[ClaimStatus][]ClaimStatus{
	ClaimStatusNew:                   {ClaimStatusInternalReview},
	ClaimStatusInternalReview:        {ClaimStatusSentToCarrier},
	ClaimStatusSentToCarrier:         {ClaimStatusCarrierInvestigation},
	ClaimStatusCarrierInvestigation:  {ClaimStatusApproved, ClaimStatusRejected},
	ClaimStatusApproved:              {ClaimStatusReimbursementReceived},
	ClaimStatusRejected:              {ClaimStatusReimbursementReceived, ClaimStatusClosed},
	ClaimStatusReimbursementReceived: {ClaimStatusClosed},
	ClaimStatusClosed:                {},
}

func (s ClaimStatus) IsValid() bool {
	_, ok := claimTransitions[s]
	return ok
}

func (s ClaimStatus) CanTransitionTo(next ClaimStatus) bool {
	for _, allowed := range claimTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type ClaimOrigin string

const (
	ClaimOriginManual           ClaimOrigin = "manual"
	ClaimOriginProactiveTracker ClaimOrigin = "proactive_tracker"
	ClaimOriginAgent            ClaimOrigin = "agent"
)

func (o ClaimOrigin) IsValid() bool {
	switch o {
	case ClaimOriginManual, ClaimOriginProactiveTracker, ClaimOriginAgent:
		return true
	}
	return false
}

type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusPartial RunStatus = "partial"
	RunStatusFailed  RunStatus = "failed"
)

type AnomalyRuleName string

const (
	RuleExceptionDetected      AnomalyRuleName = "exception_detected"
	RuleTransitTooLong         AnomalyRuleName = "transit_too_long"
	RuleReturnedToSender       AnomalyRuleName = "returned_to_sender"
	RuleDeliveryAttemptedStuck AnomalyRuleName = "delivery_attempted_stuck"
	RuleCustomsTooLong         AnomalyRuleName = "customs_too_long"
	RuleLabelNoMovement        AnomalyRuleName = "label_no_movement"
)

func (r AnomalyRuleName) IsValid() bool {
	switch r {
	case RuleExceptionDetected, RuleTransitTooLong, RuleReturnedToSender,
		RuleDeliveryAttemptedStuck, RuleCustomsTooLong, RuleLabelNoMovement:
		return true
	}
	return false
}

// ClaimTypeForRule picks the claim type an automatic claim gets when a
// rule fires.
func ClaimTypeForRule(rule AnomalyRuleName) ClaimType {
	switch rule {
	case RuleReturnedToSender:
		return ClaimTypeNotDelivered
	case RuleTransitTooLong, RuleCustomsTooLong:
		return ClaimTypeLateDelivery
	case RuleExceptionDetected, RuleDeliveryAttemptedStuck, RuleLabelNoMovement:
		return ClaimTypeNotDelivered
	}
	return ClaimTypeOther
}
