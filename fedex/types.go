package fedex

import (
	"context"
	"time"

	"bitbucket.org/bloomspal/sonia_backend/models"
)

// TrackResult is the normalized outcome of one tracking lookup. Raw
// holds the carrier response verbatim for audit; nothing downstream
// parses it again.
type TrackResult struct {
	TrackingNumber        string
	SoniaStatus           models.ShipmentStatus
	FedexStatus           string
	FedexStatusCode       string
	IsDelivered           bool
	LabelCreationDate     *time.Time
	ShipDate              *time.Time
	DeliveryDate          *time.Time
	EstimatedDeliveryDate *time.Time
	DestinationCity       string
	DestinationState      string
	DestinationCountry    string
	ScanEvents            []ScanEvent
	Raw                   []byte
	Err                   error
}

type ScanEvent struct {
	Date        string `json:"date"`
	Description string `json:"description"`
	City        string `json:"city"`
}

// Tracker is the carrier lookup surface the reconciler depends on. The
// real client talks to the FedEx Track API; tests substitute fakes.
type Tracker interface {
	TrackBatch(ctx context.Context, trackingNumbers []string) (map[string]TrackResult, error)
}
