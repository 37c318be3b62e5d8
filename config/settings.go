package config

import (
	"os"
	"strings"
	"time"
)

// TrackerSettings carries every tunable of the daily reconciliation pipeline.
// Defaults mirror production; override via env.
type TrackerSettings struct {
	// Minimum interval before a shipment is due for another carrier check.
	RecheckInterval time.Duration
	// Shipments in a terminal non-delivered state (cancelled, returned to
	// sender) are still rechecked for this long after their last status
	// change, then skipped.
	TerminalGracePeriod time.Duration
	// Carrier API batch size. FedEx recommends at most 30 per request.
	CarrierBatchSize int
	// Bounded parallelism for carrier check batches within one run.
	Parallelism int
	// Per-batch carrier call timeout.
	CarrierTimeout time.Duration

	// Anomaly thresholds in business days.
	ThresholdTransitDays         int
	ThresholdCustomsDays         int
	ThresholdDeliveryAttemptDays int
	ThresholdLabelNoMovementDays int

	// Dates listed here (YYYY-MM-DD, comma separated) do not count as
	// business days. There is no built-in holiday calendar.
	Holidays []string

	// Daily schedule, local to Timezone.
	RunHour  int
	Timezone string

	// Directory for generated per-client Excel reports.
	ReportsDir string
}

func GetTrackerSettings() TrackerSettings {
	return TrackerSettings{
		RecheckInterval:     time.Duration(intFromEnv("RECHECK_INTERVAL_HOURS", 6)) * time.Hour,
		TerminalGracePeriod: time.Duration(intFromEnv("TERMINAL_GRACE_DAYS", 7)) * 24 * time.Hour,
		CarrierBatchSize:    intFromEnv("FEDEX_BATCH_SIZE", 30),
		Parallelism:         intFromEnv("RECONCILE_PARALLELISM", 4),
		CarrierTimeout:      time.Duration(intFromEnv("FEDEX_TIMEOUT_SECONDS", 30)) * time.Second,

		ThresholdTransitDays:         intFromEnv("THRESHOLD_TRANSIT_DAYS", 7),
		ThresholdCustomsDays:         intFromEnv("THRESHOLD_CUSTOMS_DAYS", 5),
		ThresholdDeliveryAttemptDays: intFromEnv("THRESHOLD_DELIVERY_ATTEMPT_DAYS", 2),
		ThresholdLabelNoMovementDays: intFromEnv("THRESHOLD_LABEL_NO_MOVEMENT_DAYS", 5),

		Holidays: splitAndTrimEnv("BUSINESS_HOLIDAYS"),

		RunHour:  intFromEnv("CRON_HOUR", 4),
		Timezone: stringFromEnv("TRACKER_TIMEZONE", "America/Bogota"),

		ReportsDir: stringFromEnv("REPORTS_DIR", "reports"),
	}
}

func stringFromEnv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func splitAndTrimEnv(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
