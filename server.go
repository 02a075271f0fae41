package main

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/gstrecon_backend/config"
	"bitbucket.org/mmdatafocus/gstrecon_backend/models"
	"bitbucket.org/mmdatafocus/gstrecon_backend/models/reports"
	"bitbucket.org/mmdatafocus/gstrecon_backend/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

const maxUploadSizeBytes int64 = 20 * 1024 * 1024

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Shutdown coordination.
	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until DB/Redis are ready, we return 503 for app endpoints.
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		// Always allow Cloud Run startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate critical endpoints on dependency readiness.
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// Production-safe CORS:
	// - In production, require explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	// - In non-production, allow all (developer convenience).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			// Safer default: deny all if not configured in production.
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "x-correlation-id", "x-business-id")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	api := r.Group("/api/v1")
	api.POST("/reconcile", reconcileHandler())
	api.GET("/reconcile/last-summary", lastSummaryHandler())
	api.GET("/reconciliations", listReconciliationsHandler())
	api.GET("/reconciliations/:id", getReconciliationHandler())
	api.GET("/reconciliations/:id/export", exportReconciliationHandler())

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "ListenAndServe"}).Panic(err.Error())
		}
	}()

	// Connect dependencies after the listener is up (Cloud Run pattern).
	go func() {
		config.ConnectDatabaseWithRetry()
		if db := config.GetDB(); db != nil {
			if err := db.AutoMigrate(&models.ReconciliationRun{}); err != nil {
				config.LogError(logger, "server.go", "main", "auto-migrating reconciliation_runs", nil, err)
			}
		}
	}()
	go config.ConnectRedisWithRetry()

	<-sigCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		config.LogError(logger, "server.go", "main", "graceful shutdown", nil, err)
	}
}

type reconcileRequest struct {
	BusinessId      string `form:"business_id" binding:"required"`
	DateStrategy    string `form:"date_strategy" binding:"omitempty,oneof=month fy quarter"`
	Scope           string `form:"scope" binding:"omitempty,oneof=all b2b cdnr"`
	ToleranceAmount string `form:"tolerance_amount"`
	ToleranceTax    string `form:"tolerance_tax"`
	Workers         int    `form:"workers" binding:"omitempty,min=1,max=8"`
}

func reconcileHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		var req reconcileRequest
		if err := c.ShouldBind(&req); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) {
				c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		opts := models.DefaultReconcileOptions()
		if req.DateStrategy != "" {
			opts.DateStrategy = models.DateStrategy(req.DateStrategy)
		}
		if req.Scope != "" {
			opts.Scope = models.ReconScope(req.Scope)
		}
		if req.ToleranceAmount != "" {
			dec, err := utils.ParseDecimal(req.ToleranceAmount)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "tolerance_amount is not a number"})
				return
			}
			opts.ToleranceAmount = dec
		}
		if req.ToleranceTax != "" {
			dec, err := utils.ParseDecimal(req.ToleranceTax)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "tolerance_tax is not a number"})
				return
			}
			opts.ToleranceTax = dec
		}
		opts.Workers = req.Workers

		localRaws, err := rawRecordsFromUpload(c, "local_file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		portalRaws, err := rawRecordsFromUpload(c, "portal_file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx := utils.SetBusinessIdInContext(c.Request.Context(), req.BusinessId)
		run, result, localErrs, portalErrs, err := models.RunReconciliation(ctx, req.BusinessId, localRaws, portalRaws, opts)
		if err != nil {
			if errors.Is(err, utils.ErrorInvalidOptions) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			config.LogError(logger, "server.go", "reconcileHandler", "running reconciliation", req.BusinessId, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "reconciliation failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"run_id":                run.Id,
			"summary":               result.Summary,
			"invalid_local_count":   len(localErrs),
			"invalid_portal_count":  len(portalErrs),
			"invalid_local_errors":  localErrs,
			"invalid_portal_errors": portalErrs,
		})
	}
}

func rawRecordsFromUpload(c *gin.Context, field string) ([]models.RawInvoiceRecord, error) {
	fileHeader, err := c.FormFile(field)
	if err != nil {
		return nil, fmt.Errorf("%s is required", field)
	}
	if fileHeader.Size > maxUploadSizeBytes {
		return nil, fmt.Errorf("%s exceeds the 20MB limit", field)
	}
	file, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %v", field, err)
	}
	defer file.Close()
	return rawRecordsFromFile(fileHeader, file)
}

func rawRecordsFromFile(fileHeader *multipart.FileHeader, file multipart.File) ([]models.RawInvoiceRecord, error) {
	switch strings.ToLower(filepath.Ext(fileHeader.Filename)) {
	case ".xlsx":
		return ParseInvoiceXlsx(file)
	case ".json":
		return ParseInvoiceJSON(file)
	default:
		return nil, fmt.Errorf("unsupported file type %q: only .xlsx and .json are allowed", filepath.Ext(fileHeader.Filename))
	}
}

func listReconciliationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId := businessIdFromRequest(c)
		if businessId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "business_id is required"})
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

		runs, err := models.ListReconciliationRuns(c.Request.Context(), businessId, limit, offset)
		if err != nil {
			config.LogError(config.GetLogger(), "server.go", "listReconciliationsHandler", "listing runs", businessId, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list reconciliation runs"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"runs": runs})
	}
}

func getReconciliationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId := businessIdFromRequest(c)
		if businessId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "business_id is required"})
			return
		}
		run, err := models.GetReconciliationRunById(c.Request.Context(), businessId, c.Param("id"))
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "reconciliation run not found"})
				return
			}
			config.LogError(config.GetLogger(), "server.go", "getReconciliationHandler", "loading run", businessId, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load reconciliation run"})
			return
		}
		c.Data(http.StatusOK, "application/json", run.Result)
	}
}

func exportReconciliationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId := businessIdFromRequest(c)
		if businessId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "business_id is required"})
			return
		}
		run, err := models.GetReconciliationRunById(c.Request.Context(), businessId, c.Param("id"))
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "reconciliation run not found"})
				return
			}
			config.LogError(config.GetLogger(), "server.go", "exportReconciliationHandler", "loading run", businessId, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load reconciliation run"})
			return
		}

		var result models.ReconciliationResult
		if err := utils.UnmarshalFromJSON(run.Result, &result); err != nil {
			config.LogError(config.GetLogger(), "server.go", "exportReconciliationHandler", "decoding stored result", run.Id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "stored result is unreadable"})
			return
		}

		f, err := reports.ExportReconciliationExcel(&result)
		if err != nil {
			config.LogError(config.GetLogger(), "server.go", "exportReconciliationHandler", "rendering workbook", run.Id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not render workbook"})
			return
		}

		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=reconciliation_%s.xlsx", run.Id))
		if err := f.Write(c.Writer); err != nil {
			config.LogError(config.GetLogger(), "server.go", "exportReconciliationHandler", "writing workbook", run.Id, err)
		}
	}
}

func lastSummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId := businessIdFromRequest(c)
		if businessId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "business_id is required"})
			return
		}
		summary, found, err := models.GetCachedLastSummary(businessId)
		if err != nil {
			config.LogError(config.GetLogger(), "server.go", "lastSummaryHandler", "reading summary cache", businessId, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read summary cache"})
			return
		}
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "no cached summary"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"summary": summary})
	}
}

func businessIdFromRequest(c *gin.Context) string {
	if v := strings.TrimSpace(c.Query("business_id")); v != "" {
		return v
	}
	return strings.TrimSpace(c.GetHeader("x-business-id"))
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
