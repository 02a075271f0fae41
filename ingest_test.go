package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func buildWorkbook(t *testing.T, rows [][]interface{}) *bytes.Reader {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return bytes.NewReader(buf.Bytes())
}

func TestParseInvoiceXlsxPortalHeaders(t *testing.T) {
	r := buildWorkbook(t, [][]interface{}{
		{"GSTIN of Supplier", "Trade/Legal Name", "Invoice No.", "Invoice Date",
			"Taxable Value", "Integrated Tax", "Central Tax", "State/UT Tax",
			"Invoice Value", "Invoice Type", "Reverse Charge", "Place of Supply", "ITC Availability"},
		{"29ABCDE1234F1Z5", "Acme Traders", "INV-100", "10-05-2024",
			"1,000.00", "180.00", "", "", "1,180.00", "Invoice", "Y", "29-Karnataka", "Yes"},
		{"", "", "", "", "", "", "", "", "", "", "", "", ""},
		{"29ABCDE1234F1Z5", "Acme Traders", "INV-101", "45422",
			"500.00", "", "45.00", "45.00", "", "Invoice", "N", "", ""},
	})

	records, err := ParseInvoiceXlsx(r)
	if err != nil {
		t.Fatalf("ParseInvoiceXlsx: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2 (blank row skipped)", len(records))
	}

	first := records[0]
	if first.SupplierGstin != "29ABCDE1234F1Z5" || first.SupplierName != "Acme Traders" {
		t.Errorf("supplier = %q / %q", first.SupplierGstin, first.SupplierName)
	}
	if first.InvoiceNumber != "INV-100" || first.InvoiceDate != "10-05-2024" {
		t.Errorf("invoice = %q on %v", first.InvoiceNumber, first.InvoiceDate)
	}
	if first.TaxableAmount == nil || !first.TaxableAmount.Equal(mustDecimal(t, "1000.00")) {
		t.Errorf("taxable = %v, want 1000.00 with separator stripped", first.TaxableAmount)
	}
	if first.InvoiceValue == nil || !first.InvoiceValue.Equal(mustDecimal(t, "1180.00")) {
		t.Errorf("invoice value = %v", first.InvoiceValue)
	}
	if first.DocumentType != "Invoice" || !first.ReverseCharge {
		t.Errorf("document type = %q reverse charge = %v", first.DocumentType, first.ReverseCharge)
	}
	if first.PlaceOfSupply != "29-Karnataka" || first.ItcEligibility != "Yes" {
		t.Errorf("pos = %q itc = %q", first.PlaceOfSupply, first.ItcEligibility)
	}
	if first.RowNumber != 2 {
		t.Errorf("row number = %d, want 2", first.RowNumber)
	}

	second := records[1]
	if second.InvoiceDate != "45422" {
		t.Errorf("serial date passed through = %v", second.InvoiceDate)
	}
	if second.Igst != nil || second.Cgst == nil || !second.Cgst.Equal(mustDecimal(t, "45.00")) {
		t.Errorf("taxes = igst %v cgst %v", second.Igst, second.Cgst)
	}
	if second.ReverseCharge {
		t.Error("N must parse as false")
	}
	if second.RowNumber != 4 {
		t.Errorf("row number = %d, want 4 (blank rows keep their position)", second.RowNumber)
	}
}

func TestParseInvoiceXlsxBooksHeaders(t *testing.T) {
	r := buildWorkbook(t, [][]interface{}{
		{"Party GSTIN", "Party Name", "Voucher No", "Date", "Taxable Amount", "IGST Amount", "Voucher Type"},
		{"29ABCDE1234F1Z5", "Acme Traders", "INV-7/24-25", "10-05-2024", "1000", "180", "Purchase"},
	})

	records, err := ParseInvoiceXlsx(r)
	if err != nil {
		t.Fatalf("ParseInvoiceXlsx: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].InvoiceNumber != "INV-7/24-25" || records[0].VoucherType != "Purchase" {
		t.Errorf("record = %+v", records[0])
	}
}

func TestParseInvoiceXlsxMissingInvoiceNumberColumn(t *testing.T) {
	r := buildWorkbook(t, [][]interface{}{
		{"GSTIN", "Taxable Value"},
		{"29ABCDE1234F1Z5", "1000"},
	})
	if _, err := ParseInvoiceXlsx(r); err == nil {
		t.Fatal("expected error for missing invoice number column")
	}
}

func TestParseInvoiceXlsxHeaderOnly(t *testing.T) {
	r := buildWorkbook(t, [][]interface{}{
		{"GSTIN", "Invoice No", "Taxable Value"},
	})
	if _, err := ParseInvoiceXlsx(r); err == nil {
		t.Fatal("expected error for sheet with no data rows")
	}
}

func TestParseInvoiceXlsxNotAWorkbook(t *testing.T) {
	if _, err := ParseInvoiceXlsx(strings.NewReader("not an xlsx payload")); err == nil {
		t.Fatal("expected error for unreadable file")
	}
}

func TestParseInvoiceJSON(t *testing.T) {
	payload := `[
		{"supplier_gstin":"29ABCDE1234F1Z5","invoice_number":"INV-100","invoice_date":"10-05-2024","taxable_amount":1000.00,"igst":180.00},
		{"supplier_gstin":"29ABCDE1234F1Z5","invoice_number":"INV-101","invoice_date":45422,"taxable_amount":500,"cgst":45,"sgst":45,"row_number":12}
	]`
	records, err := ParseInvoiceJSON(strings.NewReader(payload))
	if err != nil {
		t.Fatalf("ParseInvoiceJSON: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].RowNumber != 1 {
		t.Errorf("row number defaulted to %d, want 1", records[0].RowNumber)
	}
	if records[1].RowNumber != 12 {
		t.Errorf("explicit row number = %d, want 12", records[1].RowNumber)
	}
	if records[0].TaxableAmount == nil || !records[0].TaxableAmount.Equal(mustDecimal(t, "1000")) {
		t.Errorf("taxable = %v", records[0].TaxableAmount)
	}

	if _, err := ParseInvoiceJSON(strings.NewReader(`{"not":"an array"}`)); err == nil {
		t.Fatal("expected error for non-array payload")
	}
}
