package models

import (
	"context"
	"time"

	"bitbucket.org/bloomspal/sonia_backend/config"
	"bitbucket.org/bloomspal/sonia_backend/utils"
	"gorm.io/gorm/clause"
)

// TenantMapping links an upstream tenant id to an internal client. A
// row with a nil ClientId is unresolved and waits for manual mapping;
// shipments for unresolved tenants are still tracked, just not
// attributed to a client.
type TenantMapping struct {
	ID              uint      `gorm:"primary_key" json:"id"`
	DynamoTenantId  int       `gorm:"uniqueIndex;not null" json:"dynamo_tenant_id"`
	ClientId        *uint     `gorm:"index" json:"client_id"`
	Client          *Client   `gorm:"foreignKey:ClientId" json:"client,omitempty"`
	ClientName      string    `gorm:"size:255" json:"client_name"`
	OdooCompanyId   *int      `json:"odoo_company_id"`
	WhatsappNumbers []byte    `gorm:"type:json" json:"whatsapp_numbers"`
	IsActive        bool      `gorm:"default:true" json:"is_active"`
	Notes           string    `gorm:"type:text" json:"notes"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

const tenantMappingCacheKey = "tenant-mapping"

// GetTenantMapping returns all mappings keyed by upstream tenant id,
// served from redis when the cache is warm.
func GetTenantMapping(ctx context.Context) (map[int]TenantMapping, error) {
	cached := make(map[int]TenantMapping)
	if found, err := config.GetRedisObject(tenantMappingCacheKey, &cached); err == nil && found {
		return cached, nil
	}

	var rows []TenantMapping
	db := config.GetDB()
	if err := db.WithContext(ctx).Order("dynamo_tenant_id").Find(&rows).Error; err != nil {
		return nil, err
	}

	mapping := make(map[int]TenantMapping, len(rows))
	for _, row := range rows {
		mapping[row.DynamoTenantId] = row
	}

	_ = config.SetRedisObject(tenantMappingCacheKey, mapping, 10*time.Minute)
	return mapping, nil
}

// ResolveTenant returns the client mapped to a tenant id, or nil when
// the mapping is missing or unresolved.
func ResolveTenant(ctx context.Context, dynamoTenantId int) (*Client, error) {
	mapping, err := GetTenantMapping(ctx)
	if err != nil {
		return nil, err
	}
	row, ok := mapping[dynamoTenantId]
	if !ok || row.ClientId == nil || !row.IsActive {
		return nil, nil
	}
	client, err := GetClientById(ctx, *row.ClientId)
	if err == utils.ErrorRecordNotFound {
		return nil, nil
	}
	return client, err
}

// UpsertTenantMapping inserts or refreshes a mapping row keyed by the
// upstream tenant id and invalidates the cache.
func UpsertTenantMapping(ctx context.Context, row *TenantMapping) error {
	db := config.GetDB()
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "dynamo_tenant_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"client_id", "client_name", "odoo_company_id",
			"whatsapp_numbers", "is_active", "notes",
		}),
	}).Create(row).Error
	if err != nil {
		return err
	}
	_ = config.RemoveRedisKey(tenantMappingCacheKey)
	return nil
}
