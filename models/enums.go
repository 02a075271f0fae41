package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
)

type RecordSource string

const (
	RecordSourceLocal  RecordSource = "local"
	RecordSourcePortal RecordSource = "portal"
)

func (s RecordSource) Valid() bool {
	return s == RecordSourceLocal || s == RecordSourcePortal
}

type DocumentType string

const (
	DocumentTypeInvoice    DocumentType = "Invoice"
	DocumentTypeCreditNote DocumentType = "CreditNote"
	DocumentTypeDebitNote  DocumentType = "DebitNote"
	DocumentTypeUnset      DocumentType = ""
)

// DateStrategy selects the granularity used to gate candidate pairs by date.
type DateStrategy string

const (
	DateStrategyMonth         DateStrategy = "month"
	DateStrategyFinancialYear DateStrategy = "fy"
	DateStrategyQuarter       DateStrategy = "quarter"
)

func (s DateStrategy) Valid() bool {
	switch s {
	case DateStrategyMonth, DateStrategyFinancialYear, DateStrategyQuarter:
		return true
	}
	return false
}

// ReconScope restricts the matching population by document type.
type ReconScope string

const (
	ReconScopeAll  ReconScope = "all"
	ReconScopeB2B  ReconScope = "b2b"
	ReconScopeCDNR ReconScope = "cdnr"
)

func (s ReconScope) Valid() bool {
	switch s {
	case ReconScopeAll, ReconScopeB2B, ReconScopeCDNR:
		return true
	}
	return false
}

type MatchCategory string

const (
	MatchCategoryPerfect   MatchCategory = "Perfect"
	MatchCategoryTolerance MatchCategory = "Tolerance"
	MatchCategoryMismatch  MatchCategory = "Mismatch"
	MatchCategoryPotential MatchCategory = "Potential"
)

type RunStatus string

const (
	RunStatusQueued    RunStatus = "Queued"
	RunStatusRunning   RunStatus = "Running"
	RunStatusCompleted RunStatus = "Completed"
	RunStatusFailed    RunStatus = "Failed"
)

func (t RunStatus) Value() (driver.Value, error) {
	return string(t), nil
}

func (t *RunStatus) Scan(value interface{}) error {
	switch v := value.(type) {
	case string:
		*t = RunStatus(v)
	case []byte:
		*t = RunStatus(v)
	default:
		return fmt.Errorf("unsupported run status value: %v", value)
	}
	switch *t {
	case RunStatusQueued, RunStatusRunning, RunStatusCompleted, RunStatusFailed:
		return nil
	}
	return errors.New("invalid run status")
}
