package tracker

import (
	"context"

	"bitbucket.org/bloomspal/sonia_backend/models"
)

// ClaimChecker answers whether an automatic claim is already open for
// a shipment. Split out so rule evaluation stays testable without a
// database.
type ClaimChecker interface {
	HasOpenProactiveClaim(ctx context.Context, shipmentId uint) (bool, error)
}

type dbClaimChecker struct{}

func (dbClaimChecker) HasOpenProactiveClaim(ctx context.Context, shipmentId uint) (bool, error) {
	return models.HasOpenProactiveClaim(ctx, shipmentId)
}

// SuppressOpenClaims drops matches whose shipment already has an open
// automatic claim. One open claim suppresses every further match for
// that shipment until it closes.
func SuppressOpenClaims(ctx context.Context, matches []Match, checker ClaimChecker) ([]Match, error) {
	kept := matches[:0]
	openByShipment := make(map[uint]bool)
	for _, match := range matches {
		id := match.Shipment.ID
		open, seen := openByShipment[id]
		if !seen {
			var err error
			open, err = checker.HasOpenProactiveClaim(ctx, id)
			if err != nil {
				return nil, err
			}
			openByShipment[id] = open
		}
		if !open {
			kept = append(kept, match)
		}
	}
	return kept, nil
}

// CreateClaimForMatch files the automatic claim for one anomaly match.
func CreateClaimForMatch(ctx context.Context, match Match) (*models.Claim, error) {
	rule := match.Rule
	input := models.NewClaim{
		TrackingNumber:    &match.Shipment.TrackingNumber,
		ClaimType:         models.ClaimTypeForRule(rule),
		Description:       match.Reason,
		Origin:            models.ClaimOriginProactiveTracker,
		AutoDetectionRule: &rule,
	}
	return models.CreateClaim(ctx, &input)
}
