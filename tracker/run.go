package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bitbucket.org/bloomspal/sonia_backend/config"
	"bitbucket.org/bloomspal/sonia_backend/fedex"
	"bitbucket.org/bloomspal/sonia_backend/models"
	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var ErrRunInProgress = errors.New("a run is already in progress")

const runLockKey = "tracker:run"

// ReportBuilder produces the per-client report files at the end of a
// run. Nil disables report generation.
type ReportBuilder interface {
	GenerateDailyReports(ctx context.Context, runDate time.Time) (int, error)
}

// Runner drives one full batch cycle: reconcile, detect, claim,
// report. One Runner serves the whole process; Execute serializes
// itself across replicas with a redis lock.
type Runner struct {
	Tracker  fedex.Tracker
	Settings config.TrackerSettings
	Calendar *Calendar
	Reports  ReportBuilder

	claims ClaimChecker
	logger *logrus.Logger
}

func NewRunner(carrier fedex.Tracker, settings config.TrackerSettings, reports ReportBuilder) *Runner {
	return &Runner{
		Tracker:  carrier,
		Settings: settings,
		Calendar: NewCalendar(settings.Holidays),
		Reports:  reports,
		claims:   dbClaimChecker{},
		logger:   config.GetLogger(),
	}
}

// runStats accumulates counters under a lock; batch workers report
// into it concurrently.
type runStats struct {
	mu        sync.Mutex
	checked   int
	updated   int
	delivered int
}

// decideRunStatus grades a run that got past initialization. Failed is
// reserved for runs that could not start at all; once shipments were
// loaded, per-item errors make the run partial, never failed.
func decideRunStatus(errorCount int) models.RunStatus {
	if errorCount == 0 {
		return models.RunStatusSuccess
	}
	return models.RunStatusPartial
}

// Execute performs one batch run and returns the completed RunLog.
// Per-item failures land in the run's error list; only an
// initialization failure fails the run outright.
func (r *Runner) Execute(ctx context.Context, triggeredBy string) (*models.RunLog, error) {
	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(ctx, runLockKey, 30*time.Minute, nil)
		if err == redislock.ErrNotObtained {
			return nil, ErrRunInProgress
		}
		if err == nil {
			defer lock.Release(context.WithoutCancel(ctx))
		} else {
			r.logger.WithField("error", err.Error()).
				Warn("run lock unavailable, proceeding unlocked")
		}
	}

	run, err := models.StartRun(ctx, triggeredBy)
	if err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}

	status := models.RunStatusFailed
	defer func() {
		if err := run.CompleteRun(context.WithoutCancel(ctx), status); err != nil {
			config.LogError(r.logger, "run.go", "Execute", "complete run", run.ID, err)
		}
	}()

	shipments, err := models.GetUndeliveredShipments(ctx)
	if err != nil {
		run.AddRunError(ctx, models.RunStageInit, "", "data_source_unavailable", err.Error(), true)
		return run, fmt.Errorf("load shipments: %w", err)
	}
	run.TotalShipmentsRead = len(shipments)
	for i := range shipments {
		if shipments[i].LastFedexCheck == nil {
			run.NewShipments++
		}
	}

	stats := &runStats{}
	r.reconcile(ctx, run, shipments, stats)
	run.ShipmentsChecked = stats.checked
	run.ShipmentsUpdated = stats.updated
	run.ShipmentsDelivered = stats.delivered

	// detection covers every undelivered shipment, including ones the
	// recheck policy skipped this cycle
	r.detectAndClaim(ctx, run, detectionCandidates(shipments))

	if r.Reports != nil && ctx.Err() == nil {
		count, err := r.Reports.GenerateDailyReports(ctx, run.RunDate)
		run.ReportsGenerated = count
		if err != nil {
			run.AddRunError(ctx, models.RunStageReports, "", "report_failed", err.Error(), true)
		}
	}

	if ctx.Err() != nil && run.ErrorCount == 0 {
		// aborted between batches with no failures; committed work is
		// valid but the cycle did not finish
		run.AddRunError(ctx, models.RunStageReconcile, "", "cancelled", ctx.Err().Error(), true)
	}

	status = decideRunStatus(run.ErrorCount)
	r.logger.WithFields(logrus.Fields{
		"run_id":              run.ID,
		"status":              status,
		"shipments_read":      run.TotalShipmentsRead,
		"shipments_checked":   run.ShipmentsChecked,
		"shipments_updated":   run.ShipmentsUpdated,
		"shipments_delivered": run.ShipmentsDelivered,
		"anomalies_detected":  run.AnomaliesDetected,
		"claims_created":      run.ClaimsCreated,
		"errors":              run.ErrorCount,
	}).Info("run finished")
	return run, nil
}

// reconcile checks every due shipment against the carrier in parallel
// batches and persists the outcomes. Shipments are updated in place so
// detection after a reconcile sees the refreshed state.
func (r *Runner) reconcile(ctx context.Context, run *models.RunLog, shipments []models.Shipment, stats *runStats) {
	policy := CheckPolicy{
		MinInterval:   r.Settings.RecheckInterval,
		TerminalGrace: r.Settings.TerminalGracePeriod,
	}
	now := time.Now().UTC()

	var due []*models.Shipment
	for i := range shipments {
		if policy.Due(&shipments[i], now) {
			due = append(due, &shipments[i])
		}
	}

	batchSize := r.Settings.CarrierBatchSize
	if batchSize <= 0 {
		batchSize = 30
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(max(r.Settings.Parallelism, 1))

	var errMu sync.Mutex
	for start := 0; start < len(due); start += batchSize {
		if ctx.Err() != nil {
			break
		}
		batch := due[start:min(start+batchSize, len(due))]
		group.Go(func() error {
			r.reconcileBatch(groupCtx, run, batch, stats, &errMu)
			return nil
		})
	}
	_ = group.Wait()
}

// detectionCandidates returns the shipments the anomaly rules apply
// to. Delivered shipments are exempt; everything else is evaluated
// whether or not it was checked against the carrier this cycle.
func detectionCandidates(shipments []models.Shipment) []*models.Shipment {
	out := make([]*models.Shipment, 0, len(shipments))
	for i := range shipments {
		if shipments[i].IsDelivered {
			continue
		}
		out = append(out, &shipments[i])
	}
	return out
}

func (r *Runner) reconcileBatch(ctx context.Context, run *models.RunLog, batch []*models.Shipment, stats *runStats, errMu *sync.Mutex) {
	numbers := make([]string, len(batch))
	for i, s := range batch {
		numbers[i] = s.TrackingNumber
	}

	results, err := r.Tracker.TrackBatch(ctx, numbers)
	if err != nil {
		errMu.Lock()
		run.AddRunError(ctx, models.RunStageReconcile, "", "carrier_unavailable", err.Error(), true)
		errMu.Unlock()
		return
	}

	now := time.Now().UTC()
	for _, shipment := range batch {
		result, ok := results[shipment.TrackingNumber]
		if !ok || result.Err != nil {
			msg := "no result from carrier"
			if ok && result.Err != nil {
				msg = result.Err.Error()
			}
			errMu.Lock()
			run.AddRunError(ctx, models.RunStageReconcile, shipment.TrackingNumber, "carrier_lookup_failed", msg, true)
			errMu.Unlock()
			continue
		}

		outcome := ApplyTrackingResult(shipment, result, now)
		if err := models.SaveShipmentCheck(ctx, shipment, outcome.Changed, outcome.StatusFrom); err != nil {
			errMu.Lock()
			run.AddRunError(ctx, models.RunStageReconcile, shipment.TrackingNumber, "persist_failed", err.Error(), true)
			errMu.Unlock()
			continue
		}
		if outcome.Delivered {
			models.MarkTrackingDelivered(shipment.TrackingNumber)
		}

		stats.mu.Lock()
		stats.checked++
		if outcome.Changed {
			stats.updated++
		}
		if outcome.Delivered {
			stats.delivered++
		}
		stats.mu.Unlock()
	}
}

// detectAndClaim evaluates the anomaly rules over the candidate
// shipments and files automatic claims for unsuppressed matches.
func (r *Runner) detectAndClaim(ctx context.Context, run *models.RunLog, shipments []*models.Shipment) {
	if ctx.Err() != nil {
		return
	}
	rules, err := models.GetActiveAnomalyRules(ctx)
	if err != nil {
		run.AddRunError(ctx, models.RunStageAnomaly, "", "rules_unavailable", err.Error(), true)
		return
	}
	if len(rules) == 0 {
		r.logger.Warn("no active anomaly rules, detection skipped")
		return
	}

	now := time.Now().UTC()
	var matches []Match
	for _, shipment := range shipments {
		found, warnings := EvaluateShipment(shipment, rules, r.Calendar, now)
		matches = append(matches, found...)
		for _, warning := range warnings {
			run.AddRunError(ctx, models.RunStageAnomaly, shipment.TrackingNumber, "rule_config", warning, false)
		}
	}

	matches, err = SuppressOpenClaims(ctx, matches, r.claims)
	if err != nil {
		run.AddRunError(ctx, models.RunStageAnomaly, "", "claim_lookup_failed", err.Error(), true)
		return
	}
	run.AnomaliesDetected = len(matches)

	claimed := make(map[uint]bool)
	for _, match := range matches {
		if claimed[match.Shipment.ID] {
			continue
		}
		if _, err := CreateClaimForMatch(ctx, match); err != nil {
			run.AddRunError(ctx, models.RunStageClaims, match.Shipment.TrackingNumber, "claim_create_failed", err.Error(), true)
			continue
		}
		claimed[match.Shipment.ID] = true
		run.ClaimsCreated++
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
