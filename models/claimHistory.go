package models

import (
	"context"
	"time"

	"bitbucket.org/bloomspal/sonia_backend/config"
)

// ClaimHistory records every status transition on a claim. Rows are
// append-only; StatusFrom is nil only for the creation entry.
type ClaimHistory struct {
	ID            uint         `gorm:"primary_key" json:"id"`
	ClaimId       uint         `gorm:"index;not null" json:"claim_id"`
	StatusFrom    *ClaimStatus `gorm:"size:30" json:"status_from"`
	StatusTo      ClaimStatus  `gorm:"size:30;not null" json:"status_to"`
	ChangedByName string       `gorm:"size:100;not null" json:"changed_by_name"`
	Notes         string       `gorm:"type:text" json:"notes"`
	CreatedAt     time.Time    `gorm:"autoCreateTime" json:"created_at"`
}

func GetClaimHistory(ctx context.Context, claimId uint) ([]ClaimHistory, error) {
	var rows []ClaimHistory
	db := config.GetDB()
	err := db.WithContext(ctx).
		Where("claim_id = ?", claimId).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
