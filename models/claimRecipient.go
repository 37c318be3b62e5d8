package models

import (
	"context"
	"time"

	"bitbucket.org/bloomspal/sonia_backend/config"
	"bitbucket.org/bloomspal/sonia_backend/utils"
	"gorm.io/gorm/clause"
)

// ClaimRecipient is the end customer's contact data for one claim.
// Never shared with the catalog collaborator.
type ClaimRecipient struct {
	ID          uint      `gorm:"primary_key" json:"id"`
	ClaimId     uint      `gorm:"uniqueIndex;not null" json:"claim_id"`
	FullName    string    `gorm:"size:255;not null" json:"full_name"`
	Phone       string    `gorm:"size:30" json:"phone"`
	Email       string    `gorm:"size:255" json:"email"`
	AddressLine string    `gorm:"size:255" json:"address_line"`
	City        string    `gorm:"size:100" json:"city"`
	State       string    `gorm:"size:100" json:"state"`
	PostalCode  string    `gorm:"size:20" json:"postal_code"`
	Country     string    `gorm:"size:100" json:"country"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewClaimRecipient struct {
	FullName    string `json:"full_name" binding:"required"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
	AddressLine string `json:"address_line"`
	City        string `json:"city"`
	State       string `json:"state"`
	PostalCode  string `json:"postal_code"`
	Country     string `json:"country"`
}

// SetClaimRecipient creates or replaces the single recipient row of a
// claim.
func SetClaimRecipient(ctx context.Context, claimId uint, input *NewClaimRecipient) (*ClaimRecipient, error) {
	claim, err := utils.FetchModel[Claim](ctx, claimId)
	if err != nil {
		return nil, err
	}
	if claim.Status == ClaimStatusClosed {
		return nil, ErrClaimClosed
	}
	if input.Phone != "" {
		if err := utils.ValidatePhoneNumber(input.Phone, utils.CountryCode); err != nil {
			return nil, utils.NewValidationError("invalid phone number")
		}
	}
	if input.Email != "" && !utils.IsValidEmail(input.Email) {
		return nil, utils.NewValidationError("invalid email address")
	}

	recipient := ClaimRecipient{
		ClaimId:     claimId,
		FullName:    input.FullName,
		Phone:       input.Phone,
		Email:       input.Email,
		AddressLine: input.AddressLine,
		City:        input.City,
		State:       input.State,
		PostalCode:  input.PostalCode,
		Country:     input.Country,
	}
	db := config.GetDB()
	err = db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "claim_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"full_name", "phone", "email", "address_line",
			"city", "state", "postal_code", "country",
		}),
	}).Create(&recipient).Error
	if err != nil {
		return nil, err
	}
	return &recipient, nil
}
