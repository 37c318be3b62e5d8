package tracker

import (
	"fmt"
	"time"

	"bitbucket.org/bloomspal/sonia_backend/models"
)

// Match is one (shipment, rule) hit produced by rule evaluation.
type Match struct {
	Shipment *models.Shipment
	Rule     models.AnomalyRuleName
	Reason   string
}

// EvaluateShipment runs every active rule against one shipment. Rules
// are independent; a shipment can match several at once. Threshold
// rules count business days. A rule missing the threshold it needs is
// a configuration error and is skipped, not fatal.
func EvaluateShipment(s *models.Shipment, rules []models.AnomalyRule, cal *Calendar, now time.Time) ([]Match, []string) {
	var matches []Match
	var warnings []string

	for _, rule := range rules {
		if !rule.IsEnabled {
			continue
		}
		switch rule.RuleName {
		case models.RuleExceptionDetected:
			if s.SoniaStatus == models.ShipmentStatusException {
				matches = append(matches, Match{
					Shipment: s,
					Rule:     rule.RuleName,
					Reason:   fmt.Sprintf("carrier reported an exception: %s", s.FedexStatus),
				})
			}

		case models.RuleReturnedToSender:
			if s.SoniaStatus == models.ShipmentStatusReturnedToSender {
				matches = append(matches, Match{
					Shipment: s,
					Rule:     rule.RuleName,
					Reason:   "shipment returned to sender",
				})
			}

		case models.RuleTransitTooLong:
			if s.SoniaStatus != models.ShipmentStatusInTransit || s.ShipDate == nil {
				continue
			}
			threshold, ok := ruleThreshold(rule, &warnings)
			if !ok {
				continue
			}
			days := cal.BusinessDaysBetween(*s.ShipDate, now)
			if days >= threshold {
				matches = append(matches, Match{
					Shipment: s,
					Rule:     rule.RuleName,
					Reason:   fmt.Sprintf("in transit for %d business days (threshold %d)", days, threshold),
				})
			}

		case models.RuleDeliveryAttemptedStuck:
			if s.SoniaStatus != models.ShipmentStatusDeliveryAttempted || s.LastStatusChange == nil {
				continue
			}
			threshold, ok := ruleThreshold(rule, &warnings)
			if !ok {
				continue
			}
			days := cal.BusinessDaysBetween(*s.LastStatusChange, now)
			if days >= threshold {
				matches = append(matches, Match{
					Shipment: s,
					Rule:     rule.RuleName,
					Reason:   fmt.Sprintf("stuck after delivery attempt for %d business days (threshold %d)", days, threshold),
				})
			}

		case models.RuleCustomsTooLong:
			if s.SoniaStatus != models.ShipmentStatusInCustoms || s.LastStatusChange == nil {
				continue
			}
			threshold, ok := ruleThreshold(rule, &warnings)
			if !ok {
				continue
			}
			days := cal.BusinessDaysBetween(*s.LastStatusChange, now)
			if days >= threshold {
				matches = append(matches, Match{
					Shipment: s,
					Rule:     rule.RuleName,
					Reason:   fmt.Sprintf("in customs for %d business days (threshold %d)", days, threshold),
				})
			}

		case models.RuleLabelNoMovement:
			if s.SoniaStatus != models.ShipmentStatusLabelCreated || s.LabelCreationDate == nil {
				continue
			}
			threshold, ok := ruleThreshold(rule, &warnings)
			if !ok {
				continue
			}
			days := cal.BusinessDaysBetween(*s.LabelCreationDate, now)
			if days >= threshold {
				matches = append(matches, Match{
					Shipment: s,
					Rule:     rule.RuleName,
					Reason:   fmt.Sprintf("label created %d business days ago with no movement (threshold %d)", days, threshold),
				})
			}

		default:
			warnings = append(warnings, fmt.Sprintf("unknown rule %s skipped", rule.RuleName))
		}
	}
	return matches, warnings
}

func ruleThreshold(rule models.AnomalyRule, warnings *[]string) (int, bool) {
	if rule.ThresholdDays == nil || *rule.ThresholdDays <= 0 {
		*warnings = append(*warnings, fmt.Sprintf("rule %s has no usable threshold, skipped", rule.RuleName))
		return 0, false
	}
	return *rule.ThresholdDays, true
}
