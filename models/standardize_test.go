package models_test

import (
	"context"
	"testing"

	"bitbucket.org/mmdatafocus/gstrecon_backend/models"
	"github.com/shopspring/decimal"
)

const testGstin = "29ABCDE1234F1Z5"

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func validRaw() models.RawInvoiceRecord {
	return models.RawInvoiceRecord{
		SupplierGstin: testGstin,
		SupplierName:  "Acme Traders",
		InvoiceNumber: "INV-100/24-25",
		InvoiceDate:   "10-05-2024",
		TaxableAmount: decPtr("1000.00"),
		Igst:          decPtr("180.00"),
		VoucherType:   "Purchase",
		RowNumber:     2,
	}
}

func TestStandardizeDerivedFields(t *testing.T) {
	records, errs := models.StandardizeInvoiceRecords(context.Background(), []models.RawInvoiceRecord{validRaw()}, models.RecordSourceLocal)
	if len(errs) != 0 {
		t.Fatalf("unexpected validation errors: %v", errs)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	r := records[0]
	if r.Id == "" {
		t.Error("id must be assigned at standardization")
	}
	if r.Source != models.RecordSourceLocal {
		t.Errorf("source = %q", r.Source)
	}
	if r.InvoiceNumberNormalized != "INV-100" {
		t.Errorf("normalized = %q, want INV-100", r.InvoiceNumberNormalized)
	}
	if r.MonthYear != "2024-05" || r.FinancialYear != "2024-25" || r.Quarter != 1 {
		t.Errorf("derived date keys = %q %q %d", r.MonthYear, r.FinancialYear, r.Quarter)
	}
	if !r.TotalTax.Equal(decimal.RequireFromString("180.00")) {
		t.Errorf("total tax = %s, want 180.00", r.TotalTax)
	}
	if !r.InvoiceValue.Equal(decimal.RequireFromString("1180.00")) {
		t.Errorf("invoice value = %s, want 1180.00", r.InvoiceValue)
	}
	if r.DocumentType != models.DocumentTypeInvoice {
		t.Errorf("document type = %q, want Invoice", r.DocumentType)
	}
}

func TestStandardizeTotalTaxFromCgstSgst(t *testing.T) {
	raw := validRaw()
	raw.Igst = nil
	raw.Cgst = decPtr("90.005")
	raw.Sgst = decPtr("90.005")
	records, errs := models.StandardizeInvoiceRecords(context.Background(), []models.RawInvoiceRecord{raw}, models.RecordSourceLocal)
	if len(errs) != 0 || len(records) != 1 {
		t.Fatalf("records=%d errs=%v", len(records), errs)
	}
	// 90.005 + 90.005 = 180.01, rounded once to 2 places.
	if !records[0].TotalTax.Equal(decimal.RequireFromString("180.01")) {
		t.Errorf("total tax = %s, want 180.01", records[0].TotalTax)
	}
}

func TestStandardizeSuppliedInvoiceValueWins(t *testing.T) {
	raw := validRaw()
	raw.InvoiceValue = decPtr("1200.00")
	records, _ := models.StandardizeInvoiceRecords(context.Background(), []models.RawInvoiceRecord{raw}, models.RecordSourceLocal)
	if !records[0].InvoiceValue.Equal(decimal.RequireFromString("1200.00")) {
		t.Errorf("invoice value = %s, want supplied 1200.00", records[0].InvoiceValue)
	}
}

func TestStandardizeRejections(t *testing.T) {
	cases := []struct {
		name      string
		mutate    func(*models.RawInvoiceRecord)
		wantField string
	}{
		{"missing gstin", func(r *models.RawInvoiceRecord) { r.SupplierGstin = "" }, "supplier_gstin"},
		{"short gstin", func(r *models.RawInvoiceRecord) { r.SupplierGstin = "29AB" }, "supplier_gstin"},
		{"missing invoice number", func(r *models.RawInvoiceRecord) { r.InvoiceNumber = "  " }, "invoice_number"},
		{"missing date", func(r *models.RawInvoiceRecord) { r.InvoiceDate = nil }, "invoice_date"},
		{"unparseable date", func(r *models.RawInvoiceRecord) { r.InvoiceDate = "32-13-2024" }, "invoice_date"},
		{"missing taxable", func(r *models.RawInvoiceRecord) { r.TaxableAmount = nil }, "taxable_amount"},
		{"negative taxable", func(r *models.RawInvoiceRecord) { r.TaxableAmount = decPtr("-1") }, "taxable_amount"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := validRaw()
			tc.mutate(&raw)
			records, errs := models.StandardizeInvoiceRecords(context.Background(), []models.RawInvoiceRecord{raw}, models.RecordSourceLocal)
			if len(records) != 0 {
				t.Fatalf("record should have been rejected")
			}
			if len(errs) != 1 || errs[0].Field != tc.wantField {
				t.Fatalf("errs = %v, want single error on %s", errs, tc.wantField)
			}
			if errs[0].Row != 2 {
				t.Errorf("row = %d, want 2", errs[0].Row)
			}
		})
	}
}

func TestStandardizeBatchContinuesPastInvalidRecords(t *testing.T) {
	bad := validRaw()
	bad.InvoiceDate = "garbage"
	good := validRaw()
	good.InvoiceNumber = "INV-101"
	records, errs := models.StandardizeInvoiceRecords(context.Background(), []models.RawInvoiceRecord{bad, good}, models.RecordSourceLocal)
	if len(records) != 1 || len(errs) != 1 {
		t.Fatalf("records=%d errs=%d, want 1 and 1", len(records), len(errs))
	}
	if records[0].InvoiceNumberRaw != "INV-101" {
		t.Errorf("surviving record = %q", records[0].InvoiceNumberRaw)
	}
}

func TestStandardizeUnknownSupplierSentinel(t *testing.T) {
	raw := validRaw()
	raw.SupplierGstin = "NOTAGSTIN123"
	records, errs := models.StandardizeInvoiceRecords(context.Background(), []models.RawInvoiceRecord{raw}, models.RecordSourceLocal)
	if len(errs) != 0 || len(records) != 1 {
		t.Fatalf("records=%d errs=%v", len(records), errs)
	}
	if records[0].SupplierGstin != models.UnknownSupplierKey {
		t.Errorf("gstin = %q, want %q", records[0].SupplierGstin, models.UnknownSupplierKey)
	}
}

func TestStandardizeDocumentTypeInference(t *testing.T) {
	cases := []struct {
		source models.RecordSource
		hint   string
		want   models.DocumentType
	}{
		{models.RecordSourceLocal, "Purchase", models.DocumentTypeInvoice},
		{models.RecordSourceLocal, "Credit Note", models.DocumentTypeCreditNote},
		{models.RecordSourceLocal, "debit note", models.DocumentTypeDebitNote},
		{models.RecordSourceLocal, "Journal", models.DocumentTypeUnset},
		{models.RecordSourceLocal, "", models.DocumentTypeUnset},
		{models.RecordSourcePortal, "Invoice", models.DocumentTypeInvoice},
		{models.RecordSourcePortal, "C", models.DocumentTypeCreditNote},
		{models.RecordSourcePortal, "D", models.DocumentTypeDebitNote},
	}
	for _, tc := range cases {
		raw := validRaw()
		if tc.source == models.RecordSourcePortal {
			raw.DocumentType = tc.hint
			raw.VoucherType = ""
		} else {
			raw.VoucherType = tc.hint
		}
		records, errs := models.StandardizeInvoiceRecords(context.Background(), []models.RawInvoiceRecord{raw}, tc.source)
		if len(errs) != 0 || len(records) != 1 {
			t.Fatalf("hint %q: records=%d errs=%v", tc.hint, len(records), errs)
		}
		if records[0].DocumentType != tc.want {
			t.Errorf("source %s hint %q: document type = %q, want %q", tc.source, tc.hint, records[0].DocumentType, tc.want)
		}
	}
}

func TestStandardizeReverseChargePortalOnly(t *testing.T) {
	raw := validRaw()
	raw.ReverseCharge = true
	records, _ := models.StandardizeInvoiceRecords(context.Background(), []models.RawInvoiceRecord{raw}, models.RecordSourceLocal)
	if records[0].ReverseCharge {
		t.Error("reverse charge must be ignored on local records")
	}
	raw.DocumentType = "Invoice"
	records, _ = models.StandardizeInvoiceRecords(context.Background(), []models.RawInvoiceRecord{raw}, models.RecordSourcePortal)
	if !records[0].ReverseCharge {
		t.Error("reverse charge must be kept on portal records")
	}
}
