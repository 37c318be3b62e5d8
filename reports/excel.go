package reports

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bitbucket.org/bloomspal/sonia_backend/config"
	"bitbucket.org/bloomspal/sonia_backend/models"
	"bitbucket.org/bloomspal/sonia_backend/tracker"
	"bitbucket.org/bloomspal/sonia_backend/utils"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

var shipmentHeaders = []string{
	"Client", "Tracking Number", "Status", "Carrier Status",
	"Label Date", "Ship Date", "Days Since Ship", "Business Days",
	"Destination", "Delivered",
}

var claimHeaders = []string{
	"Claim Number", "Tracking Number", "Type", "Status",
	"Origin", "Assigned To", "Created",
}

// Builder writes one Excel workbook per active client, with a sheet
// of in-flight shipments and a sheet of open claims. Files land in
// the configured reports directory; delivery to the client is another
// collaborator's job.
type Builder struct {
	OutputDir string
	Holidays  []string
	logger    *logrus.Logger
}

func NewBuilder(settings config.TrackerSettings) *Builder {
	return &Builder{
		OutputDir: settings.ReportsDir,
		Holidays:  settings.Holidays,
		logger:    config.GetLogger(),
	}
}

// GenerateDailyReports builds the per-client workbooks for one run
// date and returns how many were written. A failure for one client
// does not stop the others; the first error comes back after the loop.
func (b *Builder) GenerateDailyReports(ctx context.Context, runDate time.Time) (int, error) {
	clients, err := models.GetActiveClients(ctx)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(b.OutputDir, 0o755); err != nil {
		return 0, err
	}

	generated := 0
	var firstErr error
	for _, client := range clients {
		if ctx.Err() != nil {
			break
		}
		path, err := b.generateClientReport(ctx, client, runDate)
		if err != nil {
			config.LogError(b.logger, "excel.go", "GenerateDailyReports", "client report", client.Name, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("report for %s: %w", client.Name, err)
			}
			continue
		}
		if path != "" {
			generated++
		}
	}
	return generated, firstErr
}

// generateClientReport returns an empty path when the client has
// nothing to report.
func (b *Builder) generateClientReport(ctx context.Context, client models.Client, runDate time.Time) (string, error) {
	var shipments []models.Shipment
	db := config.GetDB()
	err := db.WithContext(ctx).
		Where("client_id = ? AND is_delivered = ?", client.ID, false).
		Order("ship_date ASC").
		Find(&shipments).Error
	if err != nil {
		return "", err
	}

	claims, err := models.ListClaims(ctx, models.ClaimFilter{ClientId: &client.ID})
	if err != nil {
		return "", err
	}
	var openClaims []models.Claim
	for _, claim := range claims {
		if claim.Status != models.ClaimStatusClosed {
			openClaims = append(openClaims, claim)
		}
	}

	if len(shipments) == 0 && len(openClaims) == 0 {
		return "", nil
	}

	f := excelize.NewFile()
	defer f.Close()

	b.writeShipmentsSheet(f, shipments)
	if len(openClaims) > 0 {
		b.writeClaimsSheet(f, openClaims)
	}

	name := fmt.Sprintf("%s_%s.xlsx", sanitizeFileName(client.Name), runDate.Format("2006-01-02"))
	path := filepath.Join(b.OutputDir, name)
	if err := f.SaveAs(path); err != nil {
		return "", err
	}
	return path, nil
}

func (b *Builder) writeShipmentsSheet(f *excelize.File, shipments []models.Shipment) {
	const sheet = "Shipments"
	index, _ := f.NewSheet(sheet)
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	for col, header := range shipmentHeaders {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		f.SetCellValue(sheet, cell, header)
	}

	now := time.Now().UTC()
	cal := tracker.NewCalendar(b.Holidays)
	for i, s := range shipments {
		row := i + 2
		daysSinceShip := ""
		businessDays := ""
		if s.ShipDate != nil {
			daysSinceShip = fmt.Sprintf("%d", int(now.Sub(*s.ShipDate).Hours()/24))
			businessDays = fmt.Sprintf("%d", cal.BusinessDaysBetween(*s.ShipDate, now))
		}
		values := []interface{}{
			s.ClientNameRaw,
			s.TrackingNumber,
			titleCase(string(s.SoniaStatus)),
			s.FedexStatus,
			formatDate(s.LabelCreationDate),
			formatDate(s.ShipDate),
			daysSinceShip,
			businessDays,
			joinNonEmpty(s.DestinationCity, s.DestinationState, s.DestinationCountry),
			s.IsDelivered,
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			f.SetCellValue(sheet, cell, value)
		}
	}
	if len(shipments) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(shipmentHeaders), len(shipments)+1)
		f.AutoFilter(sheet, "A1:"+last, nil)
	}
}

func (b *Builder) writeClaimsSheet(f *excelize.File, claims []models.Claim) {
	const sheet = "Claims"
	f.NewSheet(sheet)

	for col, header := range claimHeaders {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		f.SetCellValue(sheet, cell, header)
	}
	for i, claim := range claims {
		row := i + 2
		values := []interface{}{
			claim.ClaimNumber,
			utils.DereferencePtr(claim.TrackingNumber),
			titleCase(string(claim.ClaimType)),
			titleCase(string(claim.Status)),
			string(claim.Origin),
			claim.AssignedToTeam,
			claim.CreatedAt.Format("2006-01-02"),
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			f.SetCellValue(sheet, cell, value)
		}
	}
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

func titleCase(s string) string {
	words := strings.Split(strings.ReplaceAll(s, "_", " "), " ")
	for i, word := range words {
		if word != "" {
			words[i] = strings.ToUpper(word[:1]) + word[1:]
		}
	}
	return strings.Join(words, " ")
}

func joinNonEmpty(parts ...string) string {
	var kept []string
	for _, part := range parts {
		if part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, ", ")
}

func sanitizeFileName(name string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", " ", "_", ":", "_")
	return replacer.Replace(name)
}
