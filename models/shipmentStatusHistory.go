package models

import (
	"context"
	"time"

	"bitbucket.org/bloomspal/sonia_backend/config"
)

// ShipmentStatusHistory is the append-only record of every observed
// status change. Rows are never updated or deleted.
type ShipmentStatusHistory struct {
	ID             uint           `gorm:"primary_key" json:"id"`
	ShipmentId     uint           `gorm:"index;not null" json:"shipment_id"`
	TrackingNumber string         `gorm:"index;size:50;not null" json:"tracking_number"`
	StatusFrom     ShipmentStatus `gorm:"size:30" json:"status_from"`
	StatusTo       ShipmentStatus `gorm:"size:30;not null" json:"status_to"`
	FedexStatus    string         `gorm:"size:255" json:"fedex_status"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func GetShipmentStatusHistory(ctx context.Context, shipmentId uint) ([]ShipmentStatusHistory, error) {
	var rows []ShipmentStatusHistory
	db := config.GetDB()
	err := db.WithContext(ctx).
		Where("shipment_id = ?", shipmentId).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
