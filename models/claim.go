package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/bloomspal/sonia_backend/config"
	"bitbucket.org/bloomspal/sonia_backend/utils"
	"github.com/bsm/redislock"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrClaimClosed = errors.New("claim is closed")

// Claim is one incident filed with the carrier. Shipment linkage is
// optional; a manually filed claim may carry no tracking number.
type Claim struct {
	ID                  uint                `gorm:"primary_key" json:"id"`
	ClaimNumber         string              `gorm:"uniqueIndex;size:20;not null" json:"claim_number"`
	TrackingNumber      *string             `gorm:"index;size:50" json:"tracking_number"`
	ShipmentId          *uint               `gorm:"index" json:"shipment_id"`
	Shipment            *Shipment           `gorm:"foreignKey:ShipmentId" json:"shipment,omitempty"`
	ClientId            *uint               `gorm:"index" json:"client_id"`
	Client              *Client             `gorm:"foreignKey:ClientId" json:"client,omitempty"`
	ClientName          string              `gorm:"size:255" json:"client_name"`
	ClaimType           ClaimType           `gorm:"size:30;not null" json:"claim_type"`
	ClaimTypeOther      string              `gorm:"size:255" json:"claim_type_other"`
	Description         string              `gorm:"type:text" json:"description"`
	Status              ClaimStatus         `gorm:"index;size:30;not null;default:new" json:"status"`
	Origin              ClaimOrigin         `gorm:"size:30;not null;default:manual" json:"origin"`
	AssignedToTeam      string              `gorm:"size:100" json:"assigned_to_team"`
	AssignedToFedexExec string              `gorm:"size:100" json:"assigned_to_fedex_exec"`
	CreatedAutomatically bool               `gorm:"default:false" json:"created_automatically"`
	AutoDetectionRule   *AnomalyRuleName    `gorm:"size:50" json:"auto_detection_rule"`
	ReimbursementAmount decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"reimbursement_amount"`
	ResolutionNotes     string              `gorm:"type:text" json:"resolution_notes"`
	SentToCarrierAt     *time.Time          `json:"sent_to_carrier_at"`
	ResolvedAt          *time.Time          `json:"resolved_at"`
	ClosedAt            *time.Time          `json:"closed_at"`
	Recipient           *ClaimRecipient     `gorm:"foreignKey:ClaimId;constraint:OnDelete:CASCADE" json:"recipient,omitempty"`
	History             []ClaimHistory      `gorm:"foreignKey:ClaimId;constraint:OnDelete:CASCADE" json:"history,omitempty"`
	Evidence            []ClaimEvidence     `gorm:"foreignKey:ClaimId;constraint:OnDelete:CASCADE" json:"evidence,omitempty"`
	CreatedAt           time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewClaim struct {
	TrackingNumber    *string          `json:"tracking_number"`
	ClaimType         ClaimType        `json:"claim_type" binding:"required"`
	ClaimTypeOther    string           `json:"claim_type_other"`
	Description       string           `json:"description"`
	Origin            ClaimOrigin      `json:"origin"`
	AutoDetectionRule *AnomalyRuleName `json:"-"`
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

const claimNumberRetries = 5

// nextClaimNumber computes CLM-<year>-#### as max existing + 1 for the
// year. The read is racy on its own; CreateClaim serializes callers
// with a per-year redis lock and still retries on the unique index in
// case the lock is unavailable.
func nextClaimNumber(tx *gorm.DB, year int) (string, error) {
	prefix := fmt.Sprintf("CLM-%d-", year)
	var last []string
	err := tx.Model(&Claim{}).
		Where("claim_number LIKE ?", prefix+"%").
		Order("claim_number DESC").
		Limit(1).
		Pluck("claim_number", &last).Error
	if err != nil {
		return "", err
	}
	seq := 1
	if len(last) > 0 {
		var parsed int
		if _, err := fmt.Sscanf(last[0], "CLM-%d-%04d", &year, &parsed); err == nil {
			seq = parsed + 1
		}
	}
	return fmt.Sprintf("%s%04d", prefix, seq), nil
}

// CreateClaim validates the input, assigns a collision-free sequential
// claim number and writes the claim plus its initial history row in
// one transaction.
func CreateClaim(ctx context.Context, input *NewClaim) (*Claim, error) {
	if !input.ClaimType.IsValid() {
		return nil, utils.NewValidationError("invalid claim type")
	}
	origin := input.Origin
	if origin == "" {
		origin = ClaimOriginManual
	}
	if !origin.IsValid() {
		return nil, utils.NewValidationError("invalid claim origin")
	}
	if input.ClaimType == ClaimTypeOther && input.ClaimTypeOther == "" {
		return nil, utils.NewValidationError("claim_type_other is required for type other")
	}

	claim := Claim{
		TrackingNumber:       input.TrackingNumber,
		ClaimType:            input.ClaimType,
		ClaimTypeOther:       input.ClaimTypeOther,
		Description:          input.Description,
		Status:               ClaimStatusNew,
		Origin:               origin,
		CreatedAutomatically: origin == ClaimOriginProactiveTracker,
		AutoDetectionRule:    input.AutoDetectionRule,
	}

	// attach the shipment and client when a tracking number is known
	if input.TrackingNumber != nil && *input.TrackingNumber != "" {
		shipment, err := GetShipmentByTracking(ctx, *input.TrackingNumber)
		if err != nil && err != utils.ErrorRecordNotFound {
			return nil, err
		}
		if shipment != nil {
			claim.ShipmentId = &shipment.ID
			claim.ClientId = shipment.ClientId
			claim.ClientName = shipment.ClientNameRaw
		}
	}

	year := time.Now().UTC().Year()
	db := config.GetDB()

	// serialize number assignment per year. Contending callers queue on
	// the lock instead of failing fast, so the unique-index retry loop
	// below only has to absorb the rare case where redis is down or the
	// lock wait is exhausted.
	if locker := config.GetRedisLock(); locker != nil {
		lockKey := fmt.Sprintf("claim-number:%d", year)
		opts := &redislock.Options{
			RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), 180),
		}
		if lock, err := locker.Obtain(ctx, lockKey, 10*time.Second, opts); err == nil {
			defer lock.Release(context.WithoutCancel(ctx))
		}
	}

	var lastErr error
	for attempt := 0; attempt < claimNumberRetries; attempt++ {
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			number, err := nextClaimNumber(tx, year)
			if err != nil {
				return err
			}
			claim.ClaimNumber = number
			claim.ID = 0
			if err := tx.Create(&claim).Error; err != nil {
				return err
			}
			actor := actorFromContext(ctx)
			history := ClaimHistory{
				ClaimId:       claim.ID,
				StatusFrom:    nil,
				StatusTo:      ClaimStatusNew,
				ChangedByName: actor,
				Notes:         "claim created",
			}
			return tx.Create(&history).Error
		})
		if err == nil {
			return &claim, nil
		}
		if !isDuplicateKeyErr(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("claim number assignment kept colliding: %w", lastErr)
}

func actorFromContext(ctx context.Context) string {
	if actor, ok := utils.GetActorNameFromContext(ctx); ok && actor != "" {
		return actor
	}
	return "system"
}

// ChangeClaimStatus advances a claim through the workflow. Setting the
// current status again is a no-op. Closed claims reject every change.
// The status write, the milestone timestamps and the history row
// commit in one transaction.
func ChangeClaimStatus(ctx context.Context, claimId uint, next ClaimStatus, notes string) (*Claim, error) {
	if !next.IsValid() {
		return nil, utils.NewValidationError("invalid claim status")
	}

	claim, err := utils.FetchModel[Claim](ctx, claimId)
	if err != nil {
		return nil, err
	}
	if claim.Status == next {
		return claim, nil
	}
	if claim.Status == ClaimStatusClosed {
		return nil, ErrClaimClosed
	}
	if !claim.Status.CanTransitionTo(next) {
		return nil, utils.NewValidationError(
			fmt.Sprintf("cannot transition claim from %s to %s", claim.Status, next))
	}

	from := claim.Status
	now := time.Now().UTC()
	updates := map[string]interface{}{"status": next}
	claim.Status = next
	switch next {
	case ClaimStatusSentToCarrier:
		claim.SentToCarrierAt = &now
		updates["sent_to_carrier_at"] = &now
	case ClaimStatusApproved, ClaimStatusRejected:
		claim.ResolvedAt = &now
		updates["resolved_at"] = &now
	case ClaimStatusClosed:
		claim.ClosedAt = &now
		updates["closed_at"] = &now
	}

	// the write is guarded by the status the transition was validated
	// against, so a concurrent transition cannot be silently overwritten
	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Claim{}).
			Where("id = ? AND status = ?", claim.ID, from).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return utils.NewValidationError("claim status changed concurrently, retry")
		}
		history := ClaimHistory{
			ClaimId:       claim.ID,
			StatusFrom:    &from,
			StatusTo:      next,
			ChangedByName: actorFromContext(ctx),
			Notes:         notes,
		}
		return tx.Create(&history).Error
	})
	if err != nil {
		return nil, err
	}
	return claim, nil
}

type ClaimAssignment struct {
	AssignedToTeam      *string `json:"assigned_to_team"`
	AssignedToFedexExec *string `json:"assigned_to_fedex_exec"`
}

// AssignClaim sets either assignee independently; both are settable at
// any status except on a closed claim.
func AssignClaim(ctx context.Context, claimId uint, input *ClaimAssignment) (*Claim, error) {
	claim, err := utils.FetchModel[Claim](ctx, claimId)
	if err != nil {
		return nil, err
	}
	if claim.Status == ClaimStatusClosed {
		return nil, ErrClaimClosed
	}
	updates := map[string]interface{}{}
	if input.AssignedToTeam != nil {
		claim.AssignedToTeam = *input.AssignedToTeam
		updates["assigned_to_team"] = *input.AssignedToTeam
	}
	if input.AssignedToFedexExec != nil {
		claim.AssignedToFedexExec = *input.AssignedToFedexExec
		updates["assigned_to_fedex_exec"] = *input.AssignedToFedexExec
	}
	if len(updates) == 0 {
		return claim, nil
	}
	// only the assignment columns are written; a concurrent status
	// change on the same claim is left untouched
	db := config.GetDB()
	res := db.WithContext(ctx).Model(&Claim{}).
		Where("id = ? AND status <> ?", claim.ID, ClaimStatusClosed).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrClaimClosed
	}
	return claim, nil
}

type ClaimResolution struct {
	ReimbursementAmount *decimal.Decimal `json:"reimbursement_amount"`
	ResolutionNotes     *string          `json:"resolution_notes"`
}

// UpdateClaimResolution records reimbursement bookkeeping on an open
// claim.
func UpdateClaimResolution(ctx context.Context, claimId uint, input *ClaimResolution) (*Claim, error) {
	claim, err := utils.FetchModel[Claim](ctx, claimId)
	if err != nil {
		return nil, err
	}
	if claim.Status == ClaimStatusClosed {
		return nil, ErrClaimClosed
	}
	updates := map[string]interface{}{}
	if input.ReimbursementAmount != nil {
		if input.ReimbursementAmount.IsNegative() {
			return nil, utils.NewValidationError("reimbursement amount cannot be negative")
		}
		claim.ReimbursementAmount = decimal.NewNullDecimal(*input.ReimbursementAmount)
		updates["reimbursement_amount"] = claim.ReimbursementAmount
	}
	if input.ResolutionNotes != nil {
		claim.ResolutionNotes = *input.ResolutionNotes
		updates["resolution_notes"] = *input.ResolutionNotes
	}
	if len(updates) == 0 {
		return claim, nil
	}
	db := config.GetDB()
	res := db.WithContext(ctx).Model(&Claim{}).
		Where("id = ? AND status <> ?", claim.ID, ClaimStatusClosed).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrClaimClosed
	}
	return claim, nil
}

// HasOpenProactiveClaim reports whether an automatic claim is already
// open for the shipment. Open means any status except closed.
func HasOpenProactiveClaim(ctx context.Context, shipmentId uint) (bool, error) {
	var count int64
	db := config.GetDB()
	err := db.WithContext(ctx).Model(&Claim{}).
		Where("shipment_id = ? AND origin = ? AND status <> ?",
			shipmentId, ClaimOriginProactiveTracker, ClaimStatusClosed).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func GetClaim(ctx context.Context, claimId uint) (*Claim, error) {
	return utils.FetchModel[Claim](ctx, claimId, "Shipment", "Client", "Recipient", "History", "Evidence")
}

type ClaimFilter struct {
	Status         *ClaimStatus
	Origin         *ClaimOrigin
	ClientId       *uint
	TrackingNumber *string
}

func ListClaims(ctx context.Context, filter ClaimFilter) ([]Claim, error) {
	db := config.GetDB().WithContext(ctx).Model(&Claim{})
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	if filter.Origin != nil {
		db = db.Where("origin = ?", *filter.Origin)
	}
	if filter.ClientId != nil {
		db = db.Where("client_id = ?", *filter.ClientId)
	}
	if filter.TrackingNumber != nil {
		db = db.Where("tracking_number = ?", *filter.TrackingNumber)
	}
	var claims []Claim
	if err := db.Order("created_at DESC").Find(&claims).Error; err != nil {
		return nil, err
	}
	return claims, nil
}
