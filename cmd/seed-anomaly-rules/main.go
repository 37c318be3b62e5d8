package main

import (
	"context"

	"bitbucket.org/bloomspal/sonia_backend/config"
	"bitbucket.org/bloomspal/sonia_backend/models"
)

// Seeds the default anomaly rule set. Safe to rerun; existing rules
// keep their tuned values.
func main() {
	logger := config.GetLogger()

	config.ConnectDatabaseWithRetry()
	if err := models.MigrateTable(); err != nil {
		logger.Fatal(err)
	}

	settings := config.GetTrackerSettings()
	if err := models.SeedAnomalyRules(context.Background(), settings); err != nil {
		logger.Fatal(err)
	}
	logger.Info("anomaly rules seeded")
}
