package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/bloomspal/sonia_backend/config"
	"bitbucket.org/bloomspal/sonia_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Client is a brand whose shipments we track. Rows are created and
// refreshed by the catalog sync collaborator, never by the tracker.
type Client struct {
	ID             uint      `gorm:"primary_key" json:"id"`
	OdooId         int       `gorm:"uniqueIndex;not null" json:"odoo_id"`
	Name           string    `gorm:"size:255;not null" json:"name"`
	DynamoName     string    `gorm:"size:255" json:"dynamo_name"`
	DynamoTenantId *int      `gorm:"index" json:"dynamo_tenant_id"`
	IsActive       bool      `gorm:"default:true" json:"is_active"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewClient struct {
	OdooId         int    `json:"odoo_id" binding:"required"`
	Name           string `json:"name" binding:"required"`
	DynamoName     string `json:"dynamo_name"`
	DynamoTenantId *int   `json:"dynamo_tenant_id"`
	IsActive       *bool  `json:"is_active"`
}

// UpsertClient inserts or refreshes a client keyed by its catalog id.
func UpsertClient(ctx context.Context, input *NewClient) (*Client, error) {
	client := Client{
		OdooId:         input.OdooId,
		Name:           input.Name,
		DynamoName:     input.DynamoName,
		DynamoTenantId: input.DynamoTenantId,
		IsActive:       true,
	}
	if input.IsActive != nil {
		client.IsActive = *input.IsActive
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "odoo_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "dynamo_name", "dynamo_tenant_id", "is_active",
		}),
	}).Create(&client).Error
	if err != nil {
		return nil, err
	}
	return &client, nil
}

func GetActiveClients(ctx context.Context) ([]Client, error) {
	var clients []Client
	db := config.GetDB()
	err := db.WithContext(ctx).Where("is_active = ?", true).Order("name").Find(&clients).Error
	if err != nil {
		return nil, err
	}
	return clients, nil
}

func GetClientById(ctx context.Context, id uint) (*Client, error) {
	var client Client
	db := config.GetDB()
	err := db.WithContext(ctx).First(&client, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &client, nil
}
