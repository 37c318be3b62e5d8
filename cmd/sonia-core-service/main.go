package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/bloomspal/sonia_backend/config"
	"bitbucket.org/bloomspal/sonia_backend/fedex"
	"bitbucket.org/bloomspal/sonia_backend/models"
	"bitbucket.org/bloomspal/sonia_backend/reports"
	"bitbucket.org/bloomspal/sonia_backend/server"
	"bitbucket.org/bloomspal/sonia_backend/tracker"
	"bitbucket.org/bloomspal/sonia_backend/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

func main() {
	port := os.Getenv("SONIA_CORE_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()
	settings := config.GetTrackerSettings()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	carrier := fedex.NewClient(settings)
	runner := tracker.NewRunner(carrier, settings, reports.NewBuilder(settings))

	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), cid)
		if actor := strings.TrimSpace(c.GetHeader("x-actor-name")); actor != "" {
			ctx = utils.SetActorNameInContext(ctx, actor)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", "x-correlation-id", "x-actor-name")
	corsConfig.AddExposeHeaders("Content-Length")

	r.Use(cors.New(corsConfig))
	r.Use(requestLogger(logger))
	r.Use(gin.Recovery())

	// ingest surface for the upstream data store
	r.POST("/api/ingest/shipments", server.IngestShipmentsHandler())
	r.GET("/api/shipments/:trackingNumber", server.GetShipmentHandler())

	// catalog sync pushes client and tenant rows here
	r.PUT("/api/catalog/clients", server.UpsertClientHandler())
	r.PUT("/api/catalog/tenant-mappings", server.UpsertTenantMappingHandler())

	// claim lifecycle
	r.POST("/api/claims", server.CreateClaimHandler())
	r.GET("/api/claims", server.ListClaimsHandler())
	r.GET("/api/claims/:id", server.GetClaimHandler())
	r.POST("/api/claims/:id/status", server.ChangeClaimStatusHandler())
	r.POST("/api/claims/:id/assign", server.AssignClaimHandler())
	r.POST("/api/claims/:id/resolution", server.UpdateClaimResolutionHandler())
	r.PUT("/api/claims/:id/recipient", server.SetClaimRecipientHandler())
	r.POST("/api/claims/:id/evidence", server.UploadClaimEvidenceHandler())
	r.GET("/api/claims/:id/evidence", server.ListClaimEvidenceHandler())
	r.GET("/api/claims/:id/history", server.ClaimHistoryHandler())

	// detection rules
	r.GET("/api/rules", server.ListAnomalyRulesHandler())
	r.PATCH("/api/rules/:name", server.UpdateAnomalyRuleHandler())

	// run summaries and manual trigger
	r.GET("/api/runs", server.ListRunsHandler())
	r.GET("/api/runs/:id", server.RunDetailHandler())
	r.POST("/api/runs/trigger", server.TriggerRunHandler(runner))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		if err := models.MigrateTable(); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Error(err)
		}
		if err := models.SeedAnomalyRules(sigCtx, settings); err != nil {
			logger.WithFields(logrus.Fields{"field": "seed"}).Error(err)
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	if !strings.EqualFold(strings.TrimSpace(os.Getenv("DISABLE_SCHEDULER")), "true") {
		go tracker.NewScheduler(runner).Start(sigCtx)
	}

	select {
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-serverErrCh:
		if err != nil && err != http.ErrServerClosed {
			logger.WithFields(logrus.Fields{"field": "server"}).Error(err)
		}
	}
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		logger.WithFields(logrus.Fields{
			"status":         c.Writer.Status(),
			"method":         c.Request.Method,
			"path":           c.Request.URL.Path,
			"latency":        latency.String(),
			"correlation_id": cid,
		}).Info("request")
	}
}
