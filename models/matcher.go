package models

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/gstrecon_backend/utils"
	"github.com/shopspring/decimal"
)

// ReconcileOptions configures one reconciliation run.
type ReconcileOptions struct {
	ToleranceAmount decimal.Decimal `json:"tolerance_amount"`
	ToleranceTax    decimal.Decimal `json:"tolerance_tax"`
	DateStrategy    DateStrategy    `json:"date_strategy"`
	Scope           ReconScope      `json:"scope"`
	// Workers bounds the per-supplier fan-out. <=0 means NumCPU (capped).
	Workers int `json:"workers,omitempty"`
}

const maxReconcileWorkers = 8

// Amount differences below this are "exactly equal" for Perfect grading.
var perfectEpsilon = decimal.RequireFromString("0.001")

func DefaultReconcileOptions() ReconcileOptions {
	return ReconcileOptions{
		ToleranceAmount: decimal.NewFromInt(1),
		ToleranceTax:    decimal.NewFromInt(1),
		DateStrategy:    DateStrategyMonth,
		Scope:           ReconScopeAll,
	}
}

func (o *ReconcileOptions) normalize() error {
	if o.DateStrategy == "" {
		o.DateStrategy = DateStrategyMonth
	}
	if o.Scope == "" {
		o.Scope = ReconScopeAll
	}
	if !o.DateStrategy.Valid() {
		return fmt.Errorf("%w: date strategy %q", utils.ErrorInvalidOptions, o.DateStrategy)
	}
	if !o.Scope.Valid() {
		return fmt.Errorf("%w: scope %q", utils.ErrorInvalidOptions, o.Scope)
	}
	if o.ToleranceAmount.IsNegative() {
		return fmt.Errorf("%w: tolerance amount must not be negative", utils.ErrorInvalidOptions)
	}
	if o.ToleranceTax.IsNegative() {
		return fmt.Errorf("%w: tolerance tax must not be negative", utils.ErrorInvalidOptions)
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.Workers > maxReconcileWorkers {
		o.Workers = maxReconcileWorkers
	}
	return nil
}

// Reconcile classifies every record of both populations into exactly one
// outcome bucket. Pure and synchronous apart from the per-supplier worker
// fan-out; supplier groups are independent, so the resolved-id tracking is
// naturally partitioned and the only shared write is the merged summary,
// applied under a single aggregation barrier in sorted key order.
func Reconcile(ctx context.Context, local, portal []*CanonicalInvoiceRecord, opts ReconcileOptions) (*ReconciliationResult, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}

	result := &ReconciliationResult{
		Suppliers:            []*SupplierBucket{},
		ReverseChargeRecords: []*CanonicalInvoiceRecord{},
	}
	summary := &result.Summary

	// Reverse-charge portal records leave the matching population up front:
	// never matched, never counted as missing.
	portalPop := make([]*CanonicalInvoiceRecord, 0, len(portal))
	for _, r := range portal {
		if r.ReverseCharge {
			result.ReverseChargeRecords = append(result.ReverseChargeRecords, r)
			summary.ReverseCharge.add(r)
			continue
		}
		portalPop = append(portalPop, r)
	}

	localPop := filterScope(local, opts.Scope)
	portalPop = filterScope(portalPop, opts.Scope)

	for _, r := range localPop {
		summary.TotalLocal.add(r)
	}
	for _, r := range portalPop {
		summary.TotalPortal.add(r)
	}

	localGroups := GroupBySupplier(localPop)
	portalGroups := GroupBySupplier(portalPop)

	keys := supplierKeyUnion(localGroups, portalGroups)
	summary.SupplierCount = len(keys)

	type supplierOutcome struct {
		bucket *SupplierBucket
		delta  ReconciliationSummary
	}
	outcomes := make([]*supplierOutcome, len(keys))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				key := keys[idx]
				bucket, delta := matchSupplier(key, localGroups[key], portalGroups[key], opts)
				outcomes[idx] = &supplierOutcome{bucket: bucket, delta: delta}
			}
		}()
	}

	cancelled := false
dispatch:
	for idx := range keys {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		select {
		case <-ctx.Done():
			cancelled = true
			break dispatch
		case jobs <- idx:
		}
	}
	close(jobs)
	wg.Wait()
	if cancelled {
		return nil, ctx.Err()
	}

	// Aggregation barrier: merge in sorted key order so the result is
	// byte-stable regardless of worker count.
	for _, outcome := range outcomes {
		result.Suppliers = append(result.Suppliers, outcome.bucket)
		summary.merge(&outcome.delta)
	}
	summary.GeneratedAt = time.Now().UTC()

	return result, nil
}

func filterScope(records []*CanonicalInvoiceRecord, scope ReconScope) []*CanonicalInvoiceRecord {
	if scope == ReconScopeAll {
		return records
	}
	filtered := make([]*CanonicalInvoiceRecord, 0, len(records))
	for _, r := range records {
		switch scope {
		case ReconScopeB2B:
			if r.DocumentType == DocumentTypeInvoice {
				filtered = append(filtered, r)
			}
		case ReconScopeCDNR:
			if r.DocumentType == DocumentTypeCreditNote || r.DocumentType == DocumentTypeDebitNote {
				filtered = append(filtered, r)
			}
		}
	}
	return filtered
}

func supplierKeyUnion(localGroups, portalGroups map[string][]*CanonicalInvoiceRecord) []string {
	seen := make(map[string]struct{}, len(localGroups)+len(portalGroups))
	for key := range localGroups {
		seen[key] = struct{}{}
	}
	for key := range portalGroups {
		seen[key] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// matchSupplier runs the three passes for one supplier group over
// index-addressed arenas. Greedy first-fit in input order: the first
// qualifying pair wins and both ids are consumed. Not globally optimal by
// design; an auditor must be able to see why X paired with Y.
func matchSupplier(key string, locals, portals []*CanonicalInvoiceRecord, opts ReconcileOptions) (*SupplierBucket, ReconciliationSummary) {
	bucket := &SupplierBucket{
		SupplierGstin:    key,
		SupplierName:     supplierDisplayName(locals, portals),
		PerfectMatches:   []*MatchedPair{},
		ToleranceMatches: []*MatchedPair{},
		AmountMismatches: []*MatchedPair{},
		PotentialMatches: []*MatchedPair{},
		MissingInPortal:  []*CanonicalInvoiceRecord{},
		MissingInLocal:   []*CanonicalInvoiceRecord{},
	}
	var delta ReconciliationSummary

	resolvedLocal := make([]bool, len(locals))
	resolvedPortal := make([]bool, len(portals))

	// Pass 1: exact normalized invoice number, gated by date strategy.
	for i, l := range locals {
		for j, p := range portals {
			if resolvedPortal[j] {
				continue
			}
			if !l.DatesMatch(p, opts.DateStrategy) {
				continue
			}
			if l.InvoiceNumberNormalized != p.InvoiceNumberNormalized {
				continue
			}
			pair := classifyExactPair(l, p, opts)
			resolvedLocal[i] = true
			resolvedPortal[j] = true
			switch pair.Category {
			case MatchCategoryPerfect:
				bucket.PerfectMatches = append(bucket.PerfectMatches, pair)
			case MatchCategoryTolerance:
				bucket.ToleranceMatches = append(bucket.ToleranceMatches, pair)
			default:
				bucket.AmountMismatches = append(bucket.AmountMismatches, pair)
			}
			delta.addPair(pair)
			break
		}
	}

	// Pass 2: amounts within tolerance, invoice numbers merely similar.
	for i, l := range locals {
		if resolvedLocal[i] {
			continue
		}
		for j, p := range portals {
			if resolvedPortal[j] {
				continue
			}
			if !l.DatesMatch(p, opts.DateStrategy) {
				continue
			}
			taxableDiff := l.TaxableAmount.Sub(p.TaxableAmount)
			taxDiff := l.TotalTax.Sub(p.TotalTax)
			if taxableDiff.Abs().GreaterThan(opts.ToleranceAmount) || taxDiff.Abs().GreaterThan(opts.ToleranceTax) {
				continue
			}
			method, score, ok := CheckSimilarity(l.InvoiceNumberNormalized, p.InvoiceNumberNormalized)
			if !ok {
				continue
			}
			pair := &MatchedPair{
				Local:            l,
				Portal:           p,
				Category:         MatchCategoryPotential,
				TaxableDiff:      taxableDiff,
				TaxDiff:          taxDiff,
				SimilarityMethod: method,
				SimilarityScore:  score,
			}
			resolvedLocal[i] = true
			resolvedPortal[j] = true
			bucket.PotentialMatches = append(bucket.PotentialMatches, pair)
			delta.addPair(pair)
			break
		}
	}

	// Residuals.
	for i, l := range locals {
		if !resolvedLocal[i] {
			bucket.MissingInPortal = append(bucket.MissingInPortal, l)
			delta.MissingInPortal.add(l)
		}
	}
	for j, p := range portals {
		if !resolvedPortal[j] {
			bucket.MissingInLocal = append(bucket.MissingInLocal, p)
			delta.MissingInLocal.add(p)
		}
	}

	// Every record lands in exactly one outcome; a shortfall here is a
	// programmer error, not a data condition.
	classified := len(bucket.PerfectMatches) + len(bucket.ToleranceMatches) +
		len(bucket.AmountMismatches) + len(bucket.PotentialMatches)
	if classified+len(bucket.MissingInPortal) != len(locals) {
		panic(fmt.Sprintf("supplier %s: local partition incomplete (%d classified, %d missing, %d records)",
			key, classified, len(bucket.MissingInPortal), len(locals)))
	}
	if classified+len(bucket.MissingInLocal) != len(portals) {
		panic(fmt.Sprintf("supplier %s: portal partition incomplete (%d classified, %d missing, %d records)",
			key, classified, len(bucket.MissingInLocal), len(portals)))
	}

	return bucket, delta
}

func classifyExactPair(l, p *CanonicalInvoiceRecord, opts ReconcileOptions) *MatchedPair {
	taxableDiff := l.TaxableAmount.Sub(p.TaxableAmount)
	taxDiff := l.TotalTax.Sub(p.TotalTax)

	pair := &MatchedPair{
		Local:       l,
		Portal:      p,
		TaxableDiff: taxableDiff,
		TaxDiff:     taxDiff,
	}

	withinTolerance := !taxableDiff.Abs().GreaterThan(opts.ToleranceAmount) &&
		!taxDiff.Abs().GreaterThan(opts.ToleranceTax)
	if !withinTolerance {
		pair.Category = MatchCategoryMismatch
		return pair
	}

	// Perfect requires amounts exactly equal (below epsilon) AND the same
	// calendar day, not just the same month/quarter/FY bucket.
	if taxableDiff.Abs().LessThan(perfectEpsilon) &&
		taxDiff.Abs().LessThan(perfectEpsilon) &&
		l.InvoiceDate.Equal(p.InvoiceDate) {
		pair.Category = MatchCategoryPerfect
		return pair
	}
	pair.Category = MatchCategoryTolerance
	return pair
}

func supplierDisplayName(locals, portals []*CanonicalInvoiceRecord) string {
	for _, r := range locals {
		if r.SupplierName != "" {
			return r.SupplierName
		}
	}
	for _, r := range portals {
		if r.SupplierName != "" {
			return r.SupplierName
		}
	}
	return ""
}
