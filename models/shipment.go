package models

import (
	"context"
	"time"

	"bitbucket.org/bloomspal/sonia_backend/config"
	"bitbucket.org/bloomspal/sonia_backend/utils"
	"gorm.io/gorm"
)

// Shipment is one tracked package, unique per tracking number.
// IsDelivered is monotonic: once true the shipment is never consulted
// against the carrier again. LastStatusChange only advances when
// SoniaStatus actually changes value.
type Shipment struct {
	ID                    uint           `gorm:"primary_key" json:"id"`
	TrackingNumber        string         `gorm:"uniqueIndex;size:50;not null" json:"tracking_number"`
	ClientId              *uint          `gorm:"index" json:"client_id"`
	Client                *Client        `gorm:"foreignKey:ClientId" json:"client,omitempty"`
	ClientNameRaw         string         `gorm:"size:255" json:"client_name_raw"`
	SoniaStatus           ShipmentStatus `gorm:"index;size:30;not null;default:unknown" json:"sonia_status"`
	FedexStatus           string         `gorm:"size:255" json:"fedex_status"`
	FedexStatusCode       string         `gorm:"size:20" json:"fedex_status_code"`
	LabelCreationDate     *time.Time     `json:"label_creation_date"`
	ShipDate              *time.Time     `json:"ship_date"`
	DeliveryDate          *time.Time     `json:"delivery_date"`
	EstimatedDeliveryDate *time.Time     `json:"estimated_delivery_date"`
	DestinationCity       string         `gorm:"size:100" json:"destination_city"`
	DestinationState      string         `gorm:"size:100" json:"destination_state"`
	DestinationCountry    string         `gorm:"size:100" json:"destination_country"`
	OriginCity            string         `gorm:"size:100" json:"origin_city"`
	OriginState           string         `gorm:"size:100" json:"origin_state"`
	OriginCountry         string         `gorm:"size:100" json:"origin_country"`
	IsDelivered           bool           `gorm:"index;default:false" json:"is_delivered"`
	LastFedexCheck        *time.Time     `json:"last_fedex_check"`
	LastStatusChange      *time.Time     `json:"last_status_change"`
	FedexCheckCount       int            `gorm:"default:0" json:"fedex_check_count"`
	RawFedexResponse      []byte         `gorm:"type:json" json:"raw_fedex_response"`
	DynamoData            []byte         `gorm:"type:json" json:"dynamo_data"`
	CreatedAt             time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// NewShipment is the ingest payload. Every field except the tracking
// number is optional; absent fields never clobber stored values.
type NewShipment struct {
	TrackingNumber        string          `json:"tracking_number" binding:"required"`
	DynamoTenantId        *int            `json:"dynamo_tenant_id"`
	ClientNameRaw         string          `json:"client_name_raw"`
	SoniaStatus           *ShipmentStatus `json:"sonia_status"`
	LabelCreationDate     *time.Time      `json:"label_creation_date"`
	ShipDate              *time.Time      `json:"ship_date"`
	EstimatedDeliveryDate *time.Time      `json:"estimated_delivery_date"`
	DestinationCity       string          `json:"destination_city"`
	DestinationState      string          `json:"destination_state"`
	DestinationCountry    string          `json:"destination_country"`
	OriginCity            string          `json:"origin_city"`
	OriginState           string          `json:"origin_state"`
	OriginCountry         string          `json:"origin_country"`
	DynamoData            []byte          `json:"dynamo_data"`
}

// UpsertShipment inserts a shipment or refreshes its upstream fields,
// keyed by tracking number. Carrier bookkeeping (status, check counts,
// delivery flags) is never touched here; that belongs to the
// reconciler. Returns the stored row and whether it was newly created.
func UpsertShipment(ctx context.Context, input *NewShipment) (*Shipment, bool, error) {
	if input.TrackingNumber == "" {
		return nil, false, utils.NewValidationError("tracking number is required")
	}
	if input.SoniaStatus != nil && !input.SoniaStatus.IsValid() {
		return nil, false, utils.NewValidationError("invalid sonia status")
	}

	var clientId *uint
	if input.DynamoTenantId != nil {
		client, err := ResolveTenant(ctx, *input.DynamoTenantId)
		if err != nil {
			return nil, false, err
		}
		if client != nil {
			clientId = &client.ID
		}
	}

	db := config.GetDB()
	var shipment Shipment
	created := false

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("tracking_number = ?", input.TrackingNumber).First(&shipment).Error
		if err == gorm.ErrRecordNotFound {
			created = true
			shipment = Shipment{
				TrackingNumber: input.TrackingNumber,
				SoniaStatus:    ShipmentStatusUnknown,
			}
		} else if err != nil {
			return err
		}

		if clientId != nil {
			shipment.ClientId = clientId
		}
		if input.ClientNameRaw != "" {
			shipment.ClientNameRaw = input.ClientNameRaw
		}
		if input.SoniaStatus != nil && shipment.SoniaStatus == ShipmentStatusUnknown {
			shipment.SoniaStatus = *input.SoniaStatus
		}
		if input.LabelCreationDate != nil {
			shipment.LabelCreationDate = input.LabelCreationDate
		}
		if input.ShipDate != nil {
			shipment.ShipDate = input.ShipDate
		}
		if input.EstimatedDeliveryDate != nil {
			shipment.EstimatedDeliveryDate = input.EstimatedDeliveryDate
		}
		if input.DestinationCity != "" {
			shipment.DestinationCity = input.DestinationCity
		}
		if input.DestinationState != "" {
			shipment.DestinationState = input.DestinationState
		}
		if input.DestinationCountry != "" {
			shipment.DestinationCountry = input.DestinationCountry
		}
		if input.OriginCity != "" {
			shipment.OriginCity = input.OriginCity
		}
		if input.OriginState != "" {
			shipment.OriginState = input.OriginState
		}
		if input.OriginCountry != "" {
			shipment.OriginCountry = input.OriginCountry
		}
		if len(input.DynamoData) > 0 {
			shipment.DynamoData = input.DynamoData
		}

		return tx.Save(&shipment).Error
	})
	if err != nil {
		if isDuplicateKeyErr(err) {
			// concurrent ingest of the same tracking number; the other
			// writer won, reread and report not-created
			err = db.WithContext(ctx).Where("tracking_number = ?", input.TrackingNumber).First(&shipment).Error
			if err != nil {
				return nil, false, err
			}
			return &shipment, false, nil
		}
		return nil, false, err
	}
	return &shipment, created, nil
}

// GetUndeliveredShipments returns every shipment still subject to
// reconciliation, oldest check first so starved shipments go first.
func GetUndeliveredShipments(ctx context.Context) ([]Shipment, error) {
	var shipments []Shipment
	db := config.GetDB()
	err := db.WithContext(ctx).
		Where("is_delivered = ?", false).
		Order("last_fedex_check IS NULL DESC, last_fedex_check ASC").
		Find(&shipments).Error
	if err != nil {
		return nil, err
	}
	return shipments, nil
}

func GetShipmentByTracking(ctx context.Context, trackingNumber string) (*Shipment, error) {
	var shipment Shipment
	db := config.GetDB()
	err := db.WithContext(ctx).Where("tracking_number = ?", trackingNumber).First(&shipment).Error
	if err == gorm.ErrRecordNotFound {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &shipment, nil
}

const deliveredTrackingSetKey = "delivered-tracking-numbers"

// MarkTrackingDelivered records a tracking number in the redis set the
// ingest path consults to avoid re-activating finished shipments.
func MarkTrackingDelivered(trackingNumber string) {
	_ = config.AddRedisSet(deliveredTrackingSetKey, trackingNumber)
}

func IsTrackingDelivered(trackingNumber string) bool {
	ok, err := config.IsRedisSetMember(deliveredTrackingSetKey, trackingNumber)
	return err == nil && ok
}

// SaveShipmentCheck persists the outcome of one carrier check. The
// caller (the reconciler) has already applied the status semantics to
// the struct; this writes the row and, when the status moved, appends
// the history record in the same transaction.
func SaveShipmentCheck(ctx context.Context, shipment *Shipment, statusChanged bool, statusFrom ShipmentStatus) error {
	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(shipment).Error; err != nil {
			return err
		}
		if !statusChanged {
			return nil
		}
		history := ShipmentStatusHistory{
			ShipmentId:     shipment.ID,
			TrackingNumber: shipment.TrackingNumber,
			StatusFrom:     statusFrom,
			StatusTo:       shipment.SoniaStatus,
			FedexStatus:    shipment.FedexStatus,
		}
		return tx.Create(&history).Error
	})
}
