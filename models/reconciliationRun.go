package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/gstrecon_backend/config"
	"bitbucket.org/mmdatafocus/gstrecon_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ReconciliationRun persists one reconciliation execution: its options, the
// run-wide summary and the full serialized result.
type ReconciliationRun struct {
	Id                 string          `gorm:"primary_key;size:36" json:"id"`
	BusinessId         string          `gorm:"index;not null" json:"business_id"`
	Status             RunStatus       `gorm:"type:enum('Queued','Running','Completed','Failed');default:'Queued'" json:"status"`
	DateStrategy       DateStrategy    `gorm:"size:10" json:"date_strategy"`
	Scope              ReconScope      `gorm:"size:10" json:"scope"`
	ToleranceAmount    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tolerance_amount"`
	ToleranceTax       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tolerance_tax"`
	Summary            json.RawMessage `gorm:"type:json" json:"summary"`
	Result             json.RawMessage `gorm:"type:longtext" json:"-"`
	InvalidLocalCount  int             `gorm:"default:0" json:"invalid_local_count"`
	InvalidPortalCount int             `gorm:"default:0" json:"invalid_portal_count"`
	ErrorMessage       string          `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

const lastSummaryCachePrefix = "recon:last_summary:"
const lastSummaryCacheTTL = 24 * time.Hour

// RunReconciliation standardizes both raw populations, runs the matching
// engine and persists the outcome. One run per business at a time
// (redis lock); validation errors are accumulated, not fatal.
func RunReconciliation(ctx context.Context, businessId string, localRaws, portalRaws []RawInvoiceRecord, opts ReconcileOptions) (*ReconciliationRun, *ReconciliationResult, []ValidationError, []ValidationError, error) {
	logger := config.GetLogger()
	db := config.GetDB()
	if db == nil {
		return nil, nil, nil, nil, errors.New("db is nil")
	}

	lock, err := utils.BusinessLock(ctx, businessId, "reconcile", "reconciliationRun.go", "RunReconciliation")
	if err != nil {
		return nil, nil, nil, nil, err
	}
	// Held until the run row reaches a terminal status; a concurrent upload
	// for the same business must not interleave with this one.
	defer func() {
		_ = lock.Release(ctx)
	}()

	run := &ReconciliationRun{
		Id:              uuid.NewString(),
		BusinessId:      businessId,
		Status:          RunStatusRunning,
		DateStrategy:    opts.DateStrategy,
		Scope:           opts.Scope,
		ToleranceAmount: opts.ToleranceAmount,
		ToleranceTax:    opts.ToleranceTax,
	}
	if err := db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, nil, nil, nil, err
	}

	localRecords, localErrs := StandardizeInvoiceRecords(ctx, localRaws, RecordSourceLocal)
	portalRecords, portalErrs := StandardizeInvoiceRecords(ctx, portalRaws, RecordSourcePortal)

	result, err := Reconcile(ctx, localRecords, portalRecords, opts)
	if err != nil {
		run.Status = RunStatusFailed
		run.ErrorMessage = err.Error()
		if dberr := db.WithContext(ctx).Save(run).Error; dberr != nil {
			config.LogError(logger, "reconciliationRun.go", "RunReconciliation", "persisting failed run", businessId, dberr)
		}
		return run, nil, localErrs, portalErrs, err
	}

	result.Summary.InvalidLocalCount = len(localErrs)
	result.Summary.InvalidPortalCount = len(portalErrs)

	summaryJson, err := json.Marshal(result.Summary)
	if err != nil {
		return run, nil, localErrs, portalErrs, err
	}
	resultJson, err := json.Marshal(result)
	if err != nil {
		return run, nil, localErrs, portalErrs, err
	}

	run.Status = RunStatusCompleted
	run.Summary = summaryJson
	run.Result = resultJson
	run.InvalidLocalCount = len(localErrs)
	run.InvalidPortalCount = len(portalErrs)
	if err := db.WithContext(ctx).Save(run).Error; err != nil {
		return run, result, localErrs, portalErrs, err
	}

	if err := config.SetRedisObject(lastSummaryCachePrefix+businessId, result.Summary, lastSummaryCacheTTL); err != nil {
		config.LogError(logger, "reconciliationRun.go", "RunReconciliation", "caching last summary", businessId, err)
	}

	if logger != nil {
		correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
		logger.WithFields(logrus.Fields{
			"field":          "RunReconciliation",
			"business_id":    businessId,
			"correlation_id": correlationId,
			"run_id":         run.Id,
			"suppliers":      result.Summary.SupplierCount,
			"perfect":        result.Summary.Perfect.Count,
			"tolerance":      result.Summary.Tolerance.Count,
			"mismatch":       result.Summary.Mismatch.Count,
			"potential":      result.Summary.Potential.Count,
		}).Info("reconciliation run completed")
	}

	return run, result, localErrs, portalErrs, nil
}

func GetReconciliationRunById(ctx context.Context, businessId string, id string) (*ReconciliationRun, error) {
	db := config.GetDB()
	if db == nil {
		return nil, errors.New("db is nil")
	}
	var run ReconciliationRun
	err := db.WithContext(ctx).Where("business_id = ? AND id = ?", businessId, id).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func ListReconciliationRuns(ctx context.Context, businessId string, limit int, offset int) ([]*ReconciliationRun, error) {
	db := config.GetDB()
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if limit <= 0 || limit > 100 {
		limit = config.SearchLimit
	}
	var runs []*ReconciliationRun
	err := db.WithContext(ctx).
		Select("id", "business_id", "status", "date_strategy", "scope", "tolerance_amount", "tolerance_tax",
			"summary", "invalid_local_count", "invalid_portal_count", "error_message", "created_at", "updated_at").
		Where("business_id = ?", businessId).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&runs).Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// GetCachedLastSummary returns the redis-cached summary of the most recent
// completed run, if present.
func GetCachedLastSummary(businessId string) (*ReconciliationSummary, bool, error) {
	var summary ReconciliationSummary
	found, err := config.GetRedisObject(lastSummaryCachePrefix+businessId, &summary)
	if err != nil || !found {
		return nil, false, err
	}
	return &summary, true, nil
}
