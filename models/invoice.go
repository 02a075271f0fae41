package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Reports and stored results carry amounts as plain JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// RawInvoiceRecord is the partially populated shape produced by ingestion
// (Excel row or JSON object). Everything is optional here; StandardizeInvoiceRecords
// decides what is usable.
type RawInvoiceRecord struct {
	SupplierGstin  string           `json:"supplier_gstin"`
	SupplierName   string           `json:"supplier_name"`
	InvoiceNumber  string           `json:"invoice_number"`
	InvoiceDate    interface{}      `json:"invoice_date"` // spreadsheet serial, DD-MM-YYYY string, or time.Time
	TaxableAmount  *decimal.Decimal `json:"taxable_amount"`
	Igst           *decimal.Decimal `json:"igst"`
	Cgst           *decimal.Decimal `json:"cgst"`
	Sgst           *decimal.Decimal `json:"sgst"`
	InvoiceValue   *decimal.Decimal `json:"invoice_value"`
	DocumentType   string           `json:"document_type"` // portal tag
	VoucherType    string           `json:"voucher_type"`  // local mode/type hint
	ReverseCharge  bool             `json:"reverse_charge"`
	PlaceOfSupply  string           `json:"place_of_supply"`
	ItcEligibility string           `json:"itc_eligibility"`
	RowNumber      int              `json:"row_number"`
}

// CanonicalInvoiceRecord is the unit of comparison. All derived fields
// (InvoiceNumberNormalized, MonthYear, FinancialYear, Quarter, TotalTax) are
// computed at standardization time and never supplied by the source.
type CanonicalInvoiceRecord struct {
	Id                      string          `json:"id"`
	Source                  RecordSource    `json:"source"`
	SupplierGstin           string          `json:"supplier_gstin"`
	SupplierName            string          `json:"supplier_name,omitempty"`
	InvoiceNumberRaw        string          `json:"invoice_number_raw"`
	InvoiceNumberNormalized string          `json:"invoice_number_normalized"`
	InvoiceDate             time.Time       `json:"invoice_date"`
	MonthYear               string          `json:"month_year"`
	FinancialYear           string          `json:"financial_year"`
	Quarter                 int             `json:"quarter"`
	TaxableAmount           decimal.Decimal `json:"taxable_amount"`
	Igst                    decimal.Decimal `json:"igst"`
	Cgst                    decimal.Decimal `json:"cgst"`
	Sgst                    decimal.Decimal `json:"sgst"`
	TotalTax                decimal.Decimal `json:"total_tax"`
	InvoiceValue            decimal.Decimal `json:"invoice_value"`
	DocumentType            DocumentType    `json:"document_type"`
	ReverseCharge           bool            `json:"reverse_charge"`
	PlaceOfSupply           string          `json:"place_of_supply,omitempty"`
	ItcEligibility          string          `json:"itc_eligibility,omitempty"`
	RowNumber               int             `json:"row_number,omitempty"`
}

// DatesMatch reports whether two records fall in the same date bucket under
// the given strategy. Both records are guaranteed to have valid dates
// (standardization rejects unparseable ones).
func (r *CanonicalInvoiceRecord) DatesMatch(other *CanonicalInvoiceRecord, strategy DateStrategy) bool {
	switch strategy {
	case DateStrategyFinancialYear:
		return r.FinancialYear == other.FinancialYear
	case DateStrategyQuarter:
		return r.FinancialYear == other.FinancialYear && r.Quarter == other.Quarter
	default:
		return r.MonthYear == other.MonthYear
	}
}
