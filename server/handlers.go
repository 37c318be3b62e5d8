package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"bitbucket.org/bloomspal/sonia_backend/config"
	"bitbucket.org/bloomspal/sonia_backend/models"
	"bitbucket.org/bloomspal/sonia_backend/tracker"
	"bitbucket.org/bloomspal/sonia_backend/utils"
	"github.com/gin-gonic/gin"
)

// writeError maps the error taxonomy onto HTTP statuses: validation
// rejections are 400, missing resources 404, closed-claim writes 409,
// everything else is an infrastructure failure.
func writeError(c *gin.Context, err error) {
	switch {
	case utils.IsValidationError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err == utils.ErrorRecordNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case err == models.ErrClaimClosed:
		c.JSON(http.StatusConflict, gin.H{"error": "claim is closed"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func claimIdParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid claim id"})
		return 0, false
	}
	return uint(id), true
}

// IngestShipmentsHandler accepts a batch of shipment records from the
// upstream store. Items are upserted independently; one bad record
// does not reject the batch.
func IngestShipmentsHandler() gin.HandlerFunc {
	type itemResult struct {
		TrackingNumber string `json:"tracking_number"`
		Created        bool   `json:"created"`
		Skipped        bool   `json:"skipped,omitempty"`
		Error          string `json:"error,omitempty"`
	}
	return func(c *gin.Context) {
		var items []models.NewShipment
		if err := c.ShouldBindJSON(&items); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		ctx := c.Request.Context()
		results := make([]itemResult, 0, len(items))
		created := 0
		for i := range items {
			item := &items[i]
			if models.IsTrackingDelivered(item.TrackingNumber) {
				results = append(results, itemResult{TrackingNumber: item.TrackingNumber, Skipped: true})
				continue
			}
			_, isNew, err := models.UpsertShipment(ctx, item)
			if err != nil {
				results = append(results, itemResult{TrackingNumber: item.TrackingNumber, Error: err.Error()})
				continue
			}
			if isNew {
				created++
			}
			results = append(results, itemResult{TrackingNumber: item.TrackingNumber, Created: isNew})
		}
		c.JSON(http.StatusOK, gin.H{"created": created, "items": results})
	}
}

func GetShipmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		shipment, err := models.GetShipmentByTracking(c.Request.Context(), c.Param("trackingNumber"))
		if err != nil {
			writeError(c, err)
			return
		}
		history, err := models.GetShipmentStatusHistory(c.Request.Context(), shipment.ID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"shipment": shipment, "history": history})
	}
}

func CreateClaimHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewClaim
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": utils.ProcessValidationErrors(err)})
			return
		}
		// the portal only files manual claims; automatic origins are
		// reserved for the detector
		input.Origin = models.ClaimOriginManual
		input.AutoDetectionRule = nil

		claim, err := models.CreateClaim(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, claim)
	}
}

func ListClaimsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var filter models.ClaimFilter
		if v := strings.TrimSpace(c.Query("status")); v != "" {
			status := models.ClaimStatus(v)
			if !status.IsValid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
				return
			}
			filter.Status = &status
		}
		if v := strings.TrimSpace(c.Query("origin")); v != "" {
			origin := models.ClaimOrigin(v)
			if !origin.IsValid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid origin filter"})
				return
			}
			filter.Origin = &origin
		}
		if v := strings.TrimSpace(c.Query("tracking_number")); v != "" {
			filter.TrackingNumber = &v
		}
		if v := strings.TrimSpace(c.Query("client_id")); v != "" {
			clientId, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid client_id filter"})
				return
			}
			id := uint(clientId)
			filter.ClientId = &id
		}
		claims, err := models.ListClaims(c.Request.Context(), filter)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": claims})
	}
}

func GetClaimHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := claimIdParam(c)
		if !ok {
			return
		}
		claim, err := models.GetClaim(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, claim)
	}
}

func ChangeClaimStatusHandler() gin.HandlerFunc {
	type request struct {
		Status models.ClaimStatus `json:"status" binding:"required"`
		Notes  string             `json:"notes"`
	}
	return func(c *gin.Context) {
		id, ok := claimIdParam(c)
		if !ok {
			return
		}
		var req request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		claim, err := models.ChangeClaimStatus(c.Request.Context(), id, req.Status, req.Notes)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, claim)
	}
}

func AssignClaimHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := claimIdParam(c)
		if !ok {
			return
		}
		var input models.ClaimAssignment
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		claim, err := models.AssignClaim(c.Request.Context(), id, &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, claim)
	}
}

func UpdateClaimResolutionHandler() gin.HandlerFunc {
	type request struct {
		ReimbursementAmount *string `json:"reimbursement_amount"`
		ResolutionNotes     *string `json:"resolution_notes"`
	}
	return func(c *gin.Context) {
		id, ok := claimIdParam(c)
		if !ok {
			return
		}
		var req request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		input := models.ClaimResolution{ResolutionNotes: req.ResolutionNotes}
		if req.ReimbursementAmount != nil {
			amount, err := utils.ParseDecimal(*req.ReimbursementAmount)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reimbursement amount"})
				return
			}
			input.ReimbursementAmount = &amount
		}
		claim, err := models.UpdateClaimResolution(c.Request.Context(), id, &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, claim)
	}
}

func SetClaimRecipientHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := claimIdParam(c)
		if !ok {
			return
		}
		var input models.NewClaimRecipient
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": utils.ProcessValidationErrors(err)})
			return
		}
		recipient, err := models.SetClaimRecipient(c.Request.Context(), id, &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, recipient)
	}
}

const maxEvidenceBytes = 15 << 20

func UploadClaimEvidenceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := claimIdParam(c)
		if !ok {
			return
		}
		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		if fileHeader.Size > maxEvidenceBytes {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file too large"})
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			writeError(c, err)
			return
		}
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, maxEvidenceBytes))
		if err != nil {
			writeError(c, err)
			return
		}

		ctx := c.Request.Context()
		contentType := fileHeader.Header.Get("Content-Type")
		objectName := "claims/evidence/" + utils.GenerateUniqueFilename() + "_" + fileHeader.Filename
		fileUrl, err := utils.StoreEvidenceObject(ctx, objectName, data, contentType)
		if err != nil {
			writeError(c, err)
			return
		}

		evidence, err := models.AddClaimEvidence(ctx, id, fileHeader.Filename, contentType, fileHeader.Size, fileUrl)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, evidence)
	}
}

func ListClaimEvidenceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := claimIdParam(c)
		if !ok {
			return
		}
		evidence, err := models.GetClaimEvidence(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": evidence})
	}
}

func ClaimHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := claimIdParam(c)
		if !ok {
			return
		}
		history, err := models.GetClaimHistory(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": history})
	}
}

func ListAnomalyRulesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		rules, err := utils.FetchAllModels[models.AnomalyRule](c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": rules})
	}
}

func UpdateAnomalyRuleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var patch models.AnomalyRulePatch
		if err := c.ShouldBindJSON(&patch); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		rule, err := models.UpdateAnomalyRule(c.Request.Context(), models.AnomalyRuleName(c.Param("name")), &patch)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, rule)
	}
}

func ListRunsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 0
		if v := strings.TrimSpace(c.Query("limit")); v != "" {
			limit, _ = strconv.Atoi(v)
		}
		runs, err := models.ListRunLogs(c.Request.Context(), limit)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": runs})
	}
}

func RunDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}
		run, err := models.GetRunLog(c.Request.Context(), uint(id))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, run)
	}
}

// TriggerRunHandler starts a batch run in the background and returns
// immediately; callers poll the run log for the outcome.
func TriggerRunHandler(runner *tracker.Runner) gin.HandlerFunc {
	return func(c *gin.Context) {
		active, err := models.IsRunActive(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		if active {
			c.JSON(http.StatusConflict, gin.H{"error": "a run is already in progress"})
			return
		}

		// detach from the request lifetime; the run outlives the response
		runCtx := utils.SetActorNameInContext(context.Background(), actorName(c))
		if cid, ok := utils.GetCorrelationIdFromContext(c.Request.Context()); ok {
			runCtx = utils.SetCorrelationIdInContext(runCtx, cid)
		}
		go func() {
			if _, err := runner.Execute(runCtx, models.RunTriggeredManual); err != nil && err != tracker.ErrRunInProgress {
				config.LogError(config.GetLogger(), "handlers.go", "TriggerRunHandler", "manual run", nil, err)
			}
		}()
		c.JSON(http.StatusAccepted, gin.H{"status": "started"})
	}
}

// UpsertClientHandler receives client rows pushed by the catalog sync
// collaborator.
func UpsertClientHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewClient
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": utils.ProcessValidationErrors(err)})
			return
		}
		client, err := models.UpsertClient(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, client)
	}
}

func UpsertTenantMappingHandler() gin.HandlerFunc {
	type request struct {
		DynamoTenantId  int             `json:"dynamo_tenant_id" binding:"required"`
		ClientId        *uint           `json:"client_id"`
		ClientName      string          `json:"client_name"`
		OdooCompanyId   *int            `json:"odoo_company_id"`
		WhatsappNumbers json.RawMessage `json:"whatsapp_numbers"`
		IsActive        *bool           `json:"is_active"`
		Notes           string          `json:"notes"`
	}
	return func(c *gin.Context) {
		var req request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": utils.ProcessValidationErrors(err)})
			return
		}
		row := models.TenantMapping{
			DynamoTenantId:  req.DynamoTenantId,
			ClientId:        req.ClientId,
			ClientName:      req.ClientName,
			OdooCompanyId:   req.OdooCompanyId,
			WhatsappNumbers: req.WhatsappNumbers,
			IsActive:        true,
			Notes:           req.Notes,
		}
		if req.IsActive != nil {
			row.IsActive = *req.IsActive
		}
		if err := models.UpsertTenantMapping(c.Request.Context(), &row); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, row)
	}
}

func actorName(c *gin.Context) string {
	if name := strings.TrimSpace(c.GetHeader("x-actor-name")); name != "" {
		return name
	}
	return "portal"
}
