package models

import (
	"context"
	"time"

	"bitbucket.org/bloomspal/sonia_backend/config"
	"bitbucket.org/bloomspal/sonia_backend/utils"
)

// ClaimEvidence is append-only attachment metadata. The binary itself
// lives in object storage; rows are never updated or deleted while the
// claim exists.
type ClaimEvidence struct {
	ID          uint      `gorm:"primary_key" json:"id"`
	ClaimId     uint      `gorm:"index;not null" json:"claim_id"`
	FileName    string    `gorm:"size:255;not null" json:"file_name"`
	ContentType string    `gorm:"size:100" json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	FileUrl     string    `gorm:"size:500;not null" json:"file_url"`
	UploadedBy  string    `gorm:"size:100" json:"uploaded_by"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func AddClaimEvidence(ctx context.Context, claimId uint, fileName, contentType string, sizeBytes int64, fileUrl string) (*ClaimEvidence, error) {
	claim, err := utils.FetchModel[Claim](ctx, claimId)
	if err != nil {
		return nil, err
	}
	if claim.Status == ClaimStatusClosed {
		return nil, ErrClaimClosed
	}

	evidence := ClaimEvidence{
		ClaimId:     claimId,
		FileName:    fileName,
		ContentType: contentType,
		SizeBytes:   sizeBytes,
		FileUrl:     fileUrl,
		UploadedBy:  actorFromContext(ctx),
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&evidence).Error; err != nil {
		return nil, err
	}
	return &evidence, nil
}

func GetClaimEvidence(ctx context.Context, claimId uint) ([]ClaimEvidence, error) {
	var rows []ClaimEvidence
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
