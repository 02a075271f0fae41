package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MatchedPair is one classified local/portal pairing. Diffs are signed,
// local minus portal.
type MatchedPair struct {
	Local            *CanonicalInvoiceRecord `json:"local"`
	Portal           *CanonicalInvoiceRecord `json:"portal"`
	Category         MatchCategory           `json:"category"`
	TaxableDiff      decimal.Decimal         `json:"taxable_diff"`
	TaxDiff          decimal.Decimal         `json:"tax_diff"`
	SimilarityMethod string                  `json:"similarity_method,omitempty"`
	SimilarityScore  int                     `json:"similarity_score,omitempty"`
}

// SupplierBucket holds every outcome for one supplier key. Created on first
// encounter of the key on either side; never merged or deleted afterward.
type SupplierBucket struct {
	SupplierGstin    string                    `json:"supplier_gstin"`
	SupplierName     string                    `json:"supplier_name,omitempty"`
	PerfectMatches   []*MatchedPair            `json:"perfect_matches"`
	ToleranceMatches []*MatchedPair            `json:"tolerance_matches"`
	AmountMismatches []*MatchedPair            `json:"amount_mismatches"`
	PotentialMatches []*MatchedPair            `json:"potential_matches"`
	MissingInPortal  []*CanonicalInvoiceRecord `json:"missing_in_portal"`
	MissingInLocal   []*CanonicalInvoiceRecord `json:"missing_in_local"`
}

type CategoryTotals struct {
	Count         int             `json:"count"`
	TaxableAmount decimal.Decimal `json:"taxable_amount"`
	Igst          decimal.Decimal `json:"igst"`
	Cgst          decimal.Decimal `json:"cgst"`
	Sgst          decimal.Decimal `json:"sgst"`
}

func (t *CategoryTotals) add(r *CanonicalInvoiceRecord) {
	t.Count++
	t.TaxableAmount = t.TaxableAmount.Add(r.TaxableAmount)
	t.Igst = t.Igst.Add(r.Igst)
	t.Cgst = t.Cgst.Add(r.Cgst)
	t.Sgst = t.Sgst.Add(r.Sgst)
}

func (t *CategoryTotals) merge(o CategoryTotals) {
	t.Count += o.Count
	t.TaxableAmount = t.TaxableAmount.Add(o.TaxableAmount)
	t.Igst = t.Igst.Add(o.Igst)
	t.Cgst = t.Cgst.Add(o.Cgst)
	t.Sgst = t.Sgst.Add(o.Sgst)
}

// ReconciliationSummary carries run-wide counters and monetary subtotals.
// Paired categories accumulate the local side's amounts; missing buckets
// accumulate the residual record itself. Invariant (after scope filtering
// and reverse-charge exclusion):
//
//	perfect + tolerance + mismatch + potential + missingInPortal == totalLocal
//
// and symmetrically for portal with missingInLocal.
type ReconciliationSummary struct {
	TotalLocal      CategoryTotals `json:"total_local"`
	TotalPortal     CategoryTotals `json:"total_portal"`
	Perfect         CategoryTotals `json:"perfect"`
	Tolerance       CategoryTotals `json:"tolerance"`
	Mismatch        CategoryTotals `json:"mismatch"`
	Potential       CategoryTotals `json:"potential"`
	MissingInPortal CategoryTotals `json:"missing_in_portal"`
	MissingInLocal  CategoryTotals `json:"missing_in_local"`
	ReverseCharge   CategoryTotals `json:"reverse_charge"`

	SupplierCount      int       `json:"supplier_count"`
	InvalidLocalCount  int       `json:"invalid_local_count"`
	InvalidPortalCount int       `json:"invalid_portal_count"`
	GeneratedAt        time.Time `json:"generated_at"`
}

func (s *ReconciliationSummary) addPair(p *MatchedPair) {
	switch p.Category {
	case MatchCategoryPerfect:
		s.Perfect.add(p.Local)
	case MatchCategoryTolerance:
		s.Tolerance.add(p.Local)
	case MatchCategoryMismatch:
		s.Mismatch.add(p.Local)
	case MatchCategoryPotential:
		s.Potential.add(p.Local)
	}
}

func (s *ReconciliationSummary) merge(delta *ReconciliationSummary) {
	s.TotalLocal.merge(delta.TotalLocal)
	s.TotalPortal.merge(delta.TotalPortal)
	s.Perfect.merge(delta.Perfect)
	s.Tolerance.merge(delta.Tolerance)
	s.Mismatch.merge(delta.Mismatch)
	s.Potential.merge(delta.Potential)
	s.MissingInPortal.merge(delta.MissingInPortal)
	s.MissingInLocal.merge(delta.MissingInLocal)
	s.ReverseCharge.merge(delta.ReverseCharge)
}

// ReconciliationResult is the full serializable output of one run. Supplier
// buckets are ordered by GSTIN so serialization round-trips are lossless
// and runs are reproducible regardless of worker count.
type ReconciliationResult struct {
	Summary              ReconciliationSummary     `json:"summary"`
	Suppliers            []*SupplierBucket         `json:"suppliers"`
	ReverseChargeRecords []*CanonicalInvoiceRecord `json:"reverse_charge_records"`
}
