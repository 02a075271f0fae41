package reports

import (
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/gstrecon_backend/models"
	"github.com/xuri/excelize/v2"
)

const dateLayout = "02-01-2006"

// ExportReconciliationExcel renders a full reconciliation result as an xlsx
// workbook, one sheet per outcome category plus a summary sheet.
func ExportReconciliationExcel(result *models.ReconciliationResult) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := writeSummarySheet(f, result); err != nil {
		return nil, err
	}

	matched := make([]*models.MatchedPair, 0)
	mismatched := make([]*models.MatchedPair, 0)
	potential := make([]*models.MatchedPair, 0)
	missingInPortal := make([]*models.CanonicalInvoiceRecord, 0)
	missingInLocal := make([]*models.CanonicalInvoiceRecord, 0)
	for _, bucket := range result.Suppliers {
		matched = append(matched, bucket.PerfectMatches...)
		matched = append(matched, bucket.ToleranceMatches...)
		mismatched = append(mismatched, bucket.AmountMismatches...)
		potential = append(potential, bucket.PotentialMatches...)
		missingInPortal = append(missingInPortal, bucket.MissingInPortal...)
		missingInLocal = append(missingInLocal, bucket.MissingInLocal...)
	}

	if err := writePairSheet(f, "Matched", matched); err != nil {
		return nil, err
	}
	if err := writePairSheet(f, "Mismatched", mismatched); err != nil {
		return nil, err
	}
	if err := writePairSheet(f, "Potential", potential); err != nil {
		return nil, err
	}
	if err := writeRecordSheet(f, "Missing In Portal", missingInPortal); err != nil {
		return nil, err
	}
	if err := writeRecordSheet(f, "Missing In Local", missingInLocal); err != nil {
		return nil, err
	}
	if err := writeRecordSheet(f, "Reverse Charge", result.ReverseChargeRecords); err != nil {
		return nil, err
	}

	// excelize creates "Sheet1" by default; the summary replaces it.
	f.DeleteSheet("Sheet1")
	if idx, err := f.GetSheetIndex("Summary"); err == nil {
		f.SetActiveSheet(idx)
	}
	return f, nil
}

func writeSummarySheet(f *excelize.File, result *models.ReconciliationResult) error {
	const sheet = "Summary"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	headers := []string{"Category", "Count", "Taxable Amount", "IGST", "CGST", "SGST"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}

	s := result.Summary
	rows := []struct {
		name   string
		totals models.CategoryTotals
	}{
		{"Total Local", s.TotalLocal},
		{"Total Portal", s.TotalPortal},
		{"Perfect Match", s.Perfect},
		{"Tolerance Match", s.Tolerance},
		{"Amount Mismatch", s.Mismatch},
		{"Potential Match", s.Potential},
		{"Missing In Portal", s.MissingInPortal},
		{"Missing In Local", s.MissingInLocal},
		{"Reverse Charge", s.ReverseCharge},
	}
	for i, row := range rows {
		rowNo := i + 2
		f.SetCellValue(sheet, "A"+fmt.Sprint(rowNo), row.name)
		f.SetCellValue(sheet, "B"+fmt.Sprint(rowNo), row.totals.Count)
		f.SetCellValue(sheet, "C"+fmt.Sprint(rowNo), row.totals.TaxableAmount.InexactFloat64())
		f.SetCellValue(sheet, "D"+fmt.Sprint(rowNo), row.totals.Igst.InexactFloat64())
		f.SetCellValue(sheet, "E"+fmt.Sprint(rowNo), row.totals.Cgst.InexactFloat64())
		f.SetCellValue(sheet, "F"+fmt.Sprint(rowNo), row.totals.Sgst.InexactFloat64())
	}

	footerRow := len(rows) + 3
	f.SetCellValue(sheet, "A"+fmt.Sprint(footerRow), "Suppliers")
	f.SetCellValue(sheet, "B"+fmt.Sprint(footerRow), s.SupplierCount)
	f.SetCellValue(sheet, "A"+fmt.Sprint(footerRow+1), "Invalid Local Records")
	f.SetCellValue(sheet, "B"+fmt.Sprint(footerRow+1), s.InvalidLocalCount)
	f.SetCellValue(sheet, "A"+fmt.Sprint(footerRow+2), "Invalid Portal Records")
	f.SetCellValue(sheet, "B"+fmt.Sprint(footerRow+2), s.InvalidPortalCount)
	f.SetCellValue(sheet, "A"+fmt.Sprint(footerRow+3), "Generated At")
	f.SetCellValue(sheet, "B"+fmt.Sprint(footerRow+3), s.GeneratedAt.Format(time.RFC3339))
	return nil
}

func writePairSheet(f *excelize.File, sheet string, pairs []*models.MatchedPair) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	headers := []string{
		"Supplier GSTIN", "Supplier Name", "Category",
		"Local Invoice No", "Portal Invoice No", "Local Date", "Portal Date",
		"Local Taxable", "Portal Taxable", "Taxable Diff",
		"Local Tax", "Portal Tax", "Tax Diff",
		"Similarity Method", "Similarity Score",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}
	for i, pair := range pairs {
		rowNo := i + 2
		values := []interface{}{
			pair.Local.SupplierGstin,
			pair.Local.SupplierName,
			string(pair.Category),
			pair.Local.InvoiceNumberRaw,
			pair.Portal.InvoiceNumberRaw,
			pair.Local.InvoiceDate.Format(dateLayout),
			pair.Portal.InvoiceDate.Format(dateLayout),
			pair.Local.TaxableAmount.InexactFloat64(),
			pair.Portal.TaxableAmount.InexactFloat64(),
			pair.TaxableDiff.InexactFloat64(),
			pair.Local.TotalTax.InexactFloat64(),
			pair.Portal.TotalTax.InexactFloat64(),
			pair.TaxDiff.InexactFloat64(),
			pair.SimilarityMethod,
			pair.SimilarityScore,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, rowNo)
			f.SetCellValue(sheet, cell, v)
		}
	}
	return nil
}

func writeRecordSheet(f *excelize.File, sheet string, records []*models.CanonicalInvoiceRecord) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	headers := []string{
		"Supplier GSTIN", "Supplier Name", "Source", "Invoice No", "Invoice Date",
		"Document Type", "Taxable Amount", "IGST", "CGST", "SGST", "Total Tax", "Invoice Value",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}
	for i, r := range records {
		rowNo := i + 2
		values := []interface{}{
			r.SupplierGstin,
			r.SupplierName,
			string(r.Source),
			r.InvoiceNumberRaw,
			r.InvoiceDate.Format(dateLayout),
			string(r.DocumentType),
			r.TaxableAmount.InexactFloat64(),
			r.Igst.InexactFloat64(),
			r.Cgst.InexactFloat64(),
			r.Sgst.InexactFloat64(),
			r.TotalTax.InexactFloat64(),
			r.InvoiceValue.InexactFloat64(),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, rowNo)
			f.SetCellValue(sheet, cell, v)
		}
	}
	return nil
}
