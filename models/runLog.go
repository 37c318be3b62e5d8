package models

import (
	"context"
	"time"

	"bitbucket.org/bloomspal/sonia_backend/config"
	"bitbucket.org/bloomspal/sonia_backend/utils"
)

// RunLog is one batch execution. Status moves running to exactly one
// of success, partial or failed; CompletedAt is set on every exit path.
type RunLog struct {
	ID                 uint          `gorm:"primary_key" json:"id"`
	RunDate            time.Time     `gorm:"type:date;index;not null" json:"run_date"`
	Status             RunStatus     `gorm:"size:20;not null" json:"status"`
	TriggeredBy        string        `gorm:"size:20" json:"triggered_by"`
	CorrelationId      string        `gorm:"size:64;index" json:"correlation_id"`
	TotalShipmentsRead int           `json:"total_shipments_read"`
	NewShipments       int           `json:"new_shipments"`
	ShipmentsChecked   int           `json:"shipments_checked"`
	ShipmentsUpdated   int           `json:"shipments_updated"`
	ShipmentsDelivered int           `json:"shipments_delivered"`
	AnomaliesDetected  int           `json:"anomalies_detected"`
	ClaimsCreated      int           `json:"claims_created"`
	ReportsGenerated   int           `json:"reports_generated"`
	ErrorCount         int           `json:"error_count"`
	Errors             []RunLogError `gorm:"foreignKey:RunLogId" json:"errors,omitempty"`
	StartedAt          time.Time     `json:"started_at"`
	CompletedAt        *time.Time    `json:"completed_at"`
	CreatedAt          time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

// RunLogError is one per-item failure inside a run. The run continues
// past these; they are the durable audit trail for retry decisions.
type RunLogError struct {
	ID             uint      `gorm:"primary_key" json:"id"`
	RunLogId       uint      `gorm:"index;not null" json:"run_log_id"`
	Stage          string    `gorm:"size:30;not null" json:"stage"`
	TrackingNumber string    `gorm:"size:50" json:"tracking_number"`
	ErrorCode      string    `gorm:"size:64" json:"error_code"`
	Message        string    `gorm:"type:text" json:"message"`
	Retryable      bool      `gorm:"default:false" json:"retryable"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

const (
	RunStageInit      = "init"
	RunStageIngest    = "ingest"
	RunStageReconcile = "reconcile"
	RunStageAnomaly   = "anomaly"
	RunStageClaims    = "claims"
	RunStageReports   = "reports"
)

const (
	RunTriggeredManual    = "manual"
	RunTriggeredScheduled = "scheduled"
)

// StartRun opens a RunLog row in running state.
func StartRun(ctx context.Context, triggeredBy string) (*RunLog, error) {
	now := time.Now().UTC()
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	run := RunLog{
		RunDate:       now.Truncate(24 * time.Hour),
		Status:        RunStatusRunning,
		TriggeredBy:   triggeredBy,
		CorrelationId: correlationId,
		StartedAt:     now,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// AddRunError appends one structured error row and bumps the counter.
func (run *RunLog) AddRunError(ctx context.Context, stage, trackingNumber, errorCode, message string, retryable bool) {
	row := RunLogError{
		RunLogId:       run.ID,
		Stage:          stage,
		TrackingNumber: trackingNumber,
		ErrorCode:      errorCode,
		Message:        message,
		Retryable:      retryable,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&row).Error; err != nil {
		logger := config.GetLogger()
		config.LogError(logger, "runLog.go", "AddRunError", "persist run error", row, err)
		return
	}
	run.ErrorCount++
}

// CompleteRun writes the final status, counters and completion time.
func (run *RunLog) CompleteRun(ctx context.Context, status RunStatus) error {
	now := time.Now().UTC()
	run.Status = status
	run.CompletedAt = &now
	db := config.GetDB()
	return db.WithContext(ctx).Save(run).Error
}

func GetRunLog(ctx context.Context, id uint) (*RunLog, error) {
	return utils.FetchModel[RunLog](ctx, id, "Errors")
}

func ListRunLogs(ctx context.Context, limit int) ([]RunLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var runs []RunLog
	db := config.GetDB()
	err := db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&runs).Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// IsRunActive reports whether any run is still marked running.
func IsRunActive(ctx context.Context) (bool, error) {
	var count int64
	db := config.GetDB()
	err := db.WithContext(ctx).Model(&RunLog{}).
		Where("status = ?", RunStatusRunning).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
