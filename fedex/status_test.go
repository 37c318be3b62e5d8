package fedex

import (
	"testing"

	"bitbucket.org/bloomspal/sonia_backend/models"
)

func TestMapStatusCodeFallback(t *testing.T) {
	cases := []struct {
		code string
		want models.ShipmentStatus
	}{
		{"DL", models.ShipmentStatusDelivered},
		{"OD", models.ShipmentStatusOutForDelivery},
		{"PU", models.ShipmentStatusPickedUp},
		{"IT", models.ShipmentStatusInTransit},
		{"AA", models.ShipmentStatusInTransit},
		{"DE", models.ShipmentStatusException},
		{"SE", models.ShipmentStatusException},
		{"HL", models.ShipmentStatusOnHold},
		{"RS", models.ShipmentStatusReturnedToSender},
		{"CA", models.ShipmentStatusCancelled},
		{"CD", models.ShipmentStatusInCustoms},
		{"SP", models.ShipmentStatusLabelCreated},
		{"dl", models.ShipmentStatusDelivered},
		{"ZZ", models.ShipmentStatusUnknown},
		{"", models.ShipmentStatusUnknown},
	}
	for _, tc := range cases {
		if got := MapStatus(tc.code, ""); got != tc.want {
			t.Errorf("MapStatus(%q, \"\") = %s, want %s", tc.code, got, tc.want)
		}
	}
}

func TestMapStatusDescriptionWinsOverCode(t *testing.T) {
	// the code says delivered but the description says customs; the
	// description is authoritative
	if got := MapStatus("DL", "In customs clearance delay"); got != models.ShipmentStatusInCustoms {
		t.Errorf("got %s, want %s", got, models.ShipmentStatusInCustoms)
	}
	if got := MapStatus("IT", "Delivered"); got != models.ShipmentStatusDelivered {
		t.Errorf("got %s, want %s", got, models.ShipmentStatusDelivered)
	}
	if got := MapStatus("", "Shipment information sent to FedEx"); got != models.ShipmentStatusLabelCreated {
		t.Errorf("got %s, want %s", got, models.ShipmentStatusLabelCreated)
	}
	if got := MapStatus("", "On FedEx vehicle for delivery"); got != models.ShipmentStatusOutForDelivery {
		t.Errorf("got %s, want %s", got, models.ShipmentStatusOutForDelivery)
	}
}

func TestMapStatusUnmappedDegradesToUnknown(t *testing.T) {
	if got := MapStatus("XX", "some brand new carrier wording"); got != models.ShipmentStatusUnknown {
		t.Errorf("got %s, want unknown", got)
	}
}
