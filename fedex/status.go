package fedex

import (
	"strings"

	"bitbucket.org/bloomspal/sonia_backend/models"
)

// descriptionRules map substrings of the carrier's human-readable
// status to the normalized vocabulary. Order matters: the first match
// wins, and description always beats the status code because codes are
// reused across unrelated scan events.
var descriptionRules = []struct {
	terms  []string
	status models.ShipmentStatus
}{
	{[]string{"shipment information sent", "label created", "shipping label"}, models.ShipmentStatusLabelCreated},
	{[]string{"delivered"}, models.ShipmentStatusDelivered},
	{[]string{"out for delivery", "on fedex vehicle for delivery"}, models.ShipmentStatusOutForDelivery},
	{[]string{"picked up", "package received"}, models.ShipmentStatusPickedUp},
	{[]string{"in transit", "departed", "arrived", "left fedex", "at fedex", "on the way", "at destination sort", "at local fedex", "in fedex", "international shipment release"}, models.ShipmentStatusInTransit},
	{[]string{"clearance", "customs", "import", "broker"}, models.ShipmentStatusInCustoms},
	{[]string{"exception"}, models.ShipmentStatusException},
	{[]string{"delay"}, models.ShipmentStatusDelayed},
	{[]string{"hold"}, models.ShipmentStatusOnHold},
	{[]string{"delivery attempt", "unable to deliver"}, models.ShipmentStatusDeliveryAttempted},
	{[]string{"return"}, models.ShipmentStatusReturnedToSender},
	{[]string{"cancel"}, models.ShipmentStatusCancelled},
}

var codeRules = map[string]models.ShipmentStatus{
	"DL": models.ShipmentStatusDelivered,
	"OD": models.ShipmentStatusOutForDelivery,
	"PU": models.ShipmentStatusPickedUp,
	"IT": models.ShipmentStatusInTransit,
	"AA": models.ShipmentStatusInTransit,
	"AR": models.ShipmentStatusInTransit,
	"DP": models.ShipmentStatusInTransit,
	"AF": models.ShipmentStatusInTransit,
	"PM": models.ShipmentStatusInTransit,
	"DE": models.ShipmentStatusException,
	"SE": models.ShipmentStatusException,
	"OC": models.ShipmentStatusException,
	"HL": models.ShipmentStatusOnHold,
	"RS": models.ShipmentStatusReturnedToSender,
	"CA": models.ShipmentStatusCancelled,
	"CD": models.ShipmentStatusInCustoms,
	"IN": models.ShipmentStatusLabelCreated,
	"SP": models.ShipmentStatusLabelCreated,
	"PL": models.ShipmentStatusLabelCreated,
}

// MapStatus normalizes a carrier status into the closed vocabulary.
// Unmapped input degrades to unknown, never to an error.
func MapStatus(code, description string) models.ShipmentStatus {
	desc := strings.ToLower(description)
	if desc != "" {
		for _, rule := range descriptionRules {
			for _, term := range rule.terms {
				if strings.Contains(desc, term) {
					return rule.status
				}
			}
		}
	}
	if status, ok := codeRules[strings.ToUpper(code)]; ok {
		return status
	}
	return models.ShipmentStatusUnknown
}
