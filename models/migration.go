package models

import (
	"bitbucket.org/bloomspal/sonia_backend/config"
)

func MigrateTable() error {
	db := config.GetDB()
	return db.AutoMigrate(
		&Client{},
		&TenantMapping{},
		&Shipment{},
		&ShipmentStatusHistory{},
		&Claim{},
		&ClaimHistory{},
		&ClaimRecipient{},
		&ClaimEvidence{},
		&AnomalyRule{},
		&RunLog{},
		&RunLogError{},
	)
}
