package tracker

import (
	"time"

	"bitbucket.org/bloomspal/sonia_backend/fedex"
	"bitbucket.org/bloomspal/sonia_backend/models"
)

// CheckPolicy decides whether a shipment is due for a carrier lookup.
type CheckPolicy struct {
	// MinInterval is the minimum gap between two checks of the same
	// shipment.
	MinInterval time.Duration
	// TerminalGrace bounds how long cancelled or returned shipments
	// keep being rechecked after their last status change.
	TerminalGrace time.Duration
}

// Due reports whether the shipment should be checked now. Delivered
// shipments are never due.
func (p CheckPolicy) Due(s *models.Shipment, now time.Time) bool {
	if s.IsDelivered {
		return false
	}
	if s.SoniaStatus.IsTerminalNotDelivered() && s.LastStatusChange != nil &&
		now.Sub(*s.LastStatusChange) > p.TerminalGrace {
		return false
	}
	if s.LastFedexCheck != nil && now.Sub(*s.LastFedexCheck) < p.MinInterval {
		return false
	}
	return true
}

// CheckOutcome summarizes what applying one tracking result did.
type CheckOutcome struct {
	Changed    bool
	Delivered  bool
	StatusFrom models.ShipmentStatus
	StatusTo   models.ShipmentStatus
}

// ApplyTrackingResult folds a carrier result into the shipment struct.
// Pure with respect to storage: the caller persists afterwards.
// Bookkeeping fields always move; status fields only move when the
// mapped status differs from the stored one, which keeps a repeated
// delivered result a no-op.
func ApplyTrackingResult(s *models.Shipment, res fedex.TrackResult, now time.Time) CheckOutcome {
	outcome := CheckOutcome{StatusFrom: s.SoniaStatus, StatusTo: s.SoniaStatus}

	s.FedexCheckCount++
	s.LastFedexCheck = &now

	if res.FedexStatus != "" {
		s.FedexStatus = res.FedexStatus
	}
	if res.FedexStatusCode != "" {
		s.FedexStatusCode = res.FedexStatusCode
	}
	if len(res.Raw) > 0 {
		s.RawFedexResponse = res.Raw
	}
	if res.EstimatedDeliveryDate != nil {
		s.EstimatedDeliveryDate = res.EstimatedDeliveryDate
	}
	if res.ShipDate != nil && s.ShipDate == nil {
		s.ShipDate = res.ShipDate
	}
	if res.LabelCreationDate != nil && s.LabelCreationDate == nil {
		s.LabelCreationDate = res.LabelCreationDate
	}
	if res.DeliveryDate != nil {
		s.DeliveryDate = res.DeliveryDate
	}
	if res.DestinationCity != "" && s.DestinationCity == "" {
		s.DestinationCity = res.DestinationCity
		s.DestinationState = res.DestinationState
		s.DestinationCountry = res.DestinationCountry
	}

	if res.SoniaStatus != "" && res.SoniaStatus != s.SoniaStatus {
		s.SoniaStatus = res.SoniaStatus
		s.LastStatusChange = &now
		outcome.Changed = true
		outcome.StatusTo = res.SoniaStatus
	}

	if (res.IsDelivered || s.SoniaStatus == models.ShipmentStatusDelivered) && !s.IsDelivered {
		s.IsDelivered = true
		outcome.Delivered = true
	}
	return outcome
}
