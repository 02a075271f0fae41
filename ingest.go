package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"bitbucket.org/mmdatafocus/gstrecon_backend/models"
	"bitbucket.org/mmdatafocus/gstrecon_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Header synonyms across books exports and portal downloads, matched after
// lowercasing and whitespace-squashing.
var headerSynonyms = map[string]string{
	"gstinofsupplier": "gstin",
	"gstin":           "gstin",
	"suppliergstin":   "gstin",
	"partygstin":      "gstin",

	"tradelegalname": "supplier_name",
	"suppliername":   "supplier_name",
	"partyname":      "supplier_name",

	"invoicenumber": "invoice_number",
	"invoiceno":     "invoice_number",
	"billno":        "invoice_number",
	"voucherno":     "invoice_number",
	"notenumber":    "invoice_number",

	"invoicedate": "invoice_date",
	"billdate":    "invoice_date",
	"notedate":    "invoice_date",
	"date":        "invoice_date",

	"taxablevalue":  "taxable_amount",
	"taxableamount": "taxable_amount",

	"integratedtax": "igst",
	"igst":          "igst",
	"igstamount":    "igst",

	"centraltax": "cgst",
	"cgst":       "cgst",
	"cgstamount": "cgst",

	"stateuttax": "sgst",
	"statetax":   "sgst",
	"sgst":       "sgst",
	"sgstamount": "sgst",

	"invoicevalue": "invoice_value",
	"totalvalue":   "invoice_value",

	"invoicetype":  "document_type",
	"notetype":     "document_type",
	"documenttype": "document_type",
	"vouchertype":  "voucher_type",

	"reversecharge": "reverse_charge",

	"placeofsupply": "place_of_supply",

	"itcavailability": "itc_eligibility",
	"itceligibility":  "itc_eligibility",
}

// ParseInvoiceXlsx reads the first sheet of an uploaded workbook into raw
// invoice records. Cell-level problems are left to standardization; this
// layer only fails on unreadable files or a missing header row.
func ParseInvoiceXlsx(r io.Reader) ([]models.RawInvoiceRecord, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("unable to read sheet: %v", err)
	}
	if len(rows) < 2 {
		return nil, errors.New("sheet has no data rows")
	}

	columns := mapHeaderColumns(rows[0])
	if _, ok := columns["invoice_number"]; !ok {
		return nil, errors.New("header row has no invoice number column")
	}

	records := make([]models.RawInvoiceRecord, 0, len(rows)-1)
	for idx, row := range rows[1:] {
		if rowIsEmpty(row) {
			continue
		}
		record := models.RawInvoiceRecord{RowNumber: idx + 2}
		record.SupplierGstin = cellAt(row, columns, "gstin")
		record.SupplierName = cellAt(row, columns, "supplier_name")
		record.InvoiceNumber = cellAt(row, columns, "invoice_number")
		if v := cellAt(row, columns, "invoice_date"); v != "" {
			record.InvoiceDate = v
		}
		record.TaxableAmount = decimalCellAt(row, columns, "taxable_amount")
		record.Igst = decimalCellAt(row, columns, "igst")
		record.Cgst = decimalCellAt(row, columns, "cgst")
		record.Sgst = decimalCellAt(row, columns, "sgst")
		record.InvoiceValue = decimalCellAt(row, columns, "invoice_value")
		record.DocumentType = cellAt(row, columns, "document_type")
		record.VoucherType = cellAt(row, columns, "voucher_type")
		record.ReverseCharge = parseYesNo(cellAt(row, columns, "reverse_charge"))
		record.PlaceOfSupply = cellAt(row, columns, "place_of_supply")
		record.ItcEligibility = cellAt(row, columns, "itc_eligibility")
		records = append(records, record)
	}
	return records, nil
}

// ParseInvoiceJSON reads an array of raw invoice objects using the same
// field names the canonical JSON representation carries.
func ParseInvoiceJSON(r io.Reader) ([]models.RawInvoiceRecord, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var records []models.RawInvoiceRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("invalid JSON payload: %v", err)
	}
	for i := range records {
		if records[i].RowNumber == 0 {
			records[i].RowNumber = i + 1
		}
	}
	return records, nil
}

func mapHeaderColumns(header []string) map[string]int {
	columns := make(map[string]int)
	for i, h := range header {
		key := strings.ToLower(strings.Join(strings.Fields(h), ""))
		key = strings.NewReplacer("/", "", "-", "", "_", "", ".", "", "(₹)", "", "(rs)", "").Replace(key)
		if canonical, ok := headerSynonyms[key]; ok {
			if _, taken := columns[canonical]; !taken {
				columns[canonical] = i
			}
		}
	}
	return columns
}

func cellAt(row []string, columns map[string]int, field string) string {
	idx, ok := columns[field]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func decimalCellAt(row []string, columns map[string]int, field string) *decimal.Decimal {
	raw := cellAt(row, columns, field)
	if raw == "" {
		return nil
	}
	// Amounts sometimes arrive with thousands separators.
	raw = strings.ReplaceAll(raw, ",", "")
	dec, err := utils.ParseDecimal(raw)
	if err != nil {
		return nil
	}
	return &dec
}

func parseYesNo(v string) bool {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "Y", "YES", "TRUE", "1":
		return true
	}
	return false
}

func rowIsEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
