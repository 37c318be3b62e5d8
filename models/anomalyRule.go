package models

import (
	"context"
	"time"

	"bitbucket.org/bloomspal/sonia_backend/config"
	"bitbucket.org/bloomspal/sonia_backend/utils"
	"gorm.io/gorm/clause"
)

// AnomalyRule configures one detection rule. The engine only reads
// these rows; operators toggle and tune them.
type AnomalyRule struct {
	ID            uint            `gorm:"primary_key" json:"id"`
	RuleName      AnomalyRuleName `gorm:"uniqueIndex;size:50;not null" json:"rule_name"`
	IsEnabled     bool            `gorm:"default:true" json:"is_enabled"`
	ThresholdDays *int            `json:"threshold_days"`
	Params        []byte          `gorm:"type:json" json:"params"`
	Description   string          `gorm:"size:255" json:"description"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetActiveAnomalyRules(ctx context.Context) ([]AnomalyRule, error) {
	var rules []AnomalyRule
	db := config.GetDB()
	err := db.WithContext(ctx).Where("is_enabled = ?", true).Order("rule_name").Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}

type AnomalyRulePatch struct {
	IsEnabled     *bool   `json:"is_enabled"`
	ThresholdDays *int    `json:"threshold_days"`
	Description   *string `json:"description"`
}

func UpdateAnomalyRule(ctx context.Context, name AnomalyRuleName, patch *AnomalyRulePatch) (*AnomalyRule, error) {
	if !name.IsValid() {
		return nil, utils.NewValidationError("unknown rule name")
	}
	db := config.GetDB()
	var rule AnomalyRule
	if err := db.WithContext(ctx).Where("rule_name = ?", name).First(&rule).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	if patch.IsEnabled != nil {
		rule.IsEnabled = *patch.IsEnabled
	}
	if patch.ThresholdDays != nil {
		rule.ThresholdDays = patch.ThresholdDays
	}
	if patch.Description != nil {
		rule.Description = *patch.Description
	}
	if err := db.WithContext(ctx).Save(&rule).Error; err != nil {
		return nil, err
	}
	return &rule, nil
}

// SeedAnomalyRules installs the default rule set. Existing rows keep
// their operator-tuned values; only missing rules are inserted.
func SeedAnomalyRules(ctx context.Context, settings config.TrackerSettings) error {
	defaults := []AnomalyRule{
		{RuleName: RuleExceptionDetected, IsEnabled: true,
			Description: "shipment reported an exception by the carrier"},
		{RuleName: RuleTransitTooLong, IsEnabled: true,
			ThresholdDays: &settings.ThresholdTransitDays,
			Description:   "in transit longer than the threshold in business days"},
		{RuleName: RuleReturnedToSender, IsEnabled: true,
			Description: "shipment returned to sender"},
		{RuleName: RuleDeliveryAttemptedStuck, IsEnabled: true,
			ThresholdDays: &settings.ThresholdDeliveryAttemptDays,
			Description:   "no movement since a failed delivery attempt"},
		{RuleName: RuleCustomsTooLong, IsEnabled: true,
			ThresholdDays: &settings.ThresholdCustomsDays,
			Description:   "held in customs longer than the threshold in business days"},
		{RuleName: RuleLabelNoMovement, IsEnabled: true,
			ThresholdDays: &settings.ThresholdLabelNoMovementDays,
			Description:   "label created but never picked up"},
	}

	db := config.GetDB()
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "rule_name"}},
		DoNothing: true,
	}).Create(&defaults).Error
}
