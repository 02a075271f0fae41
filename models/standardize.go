package models

import (
	"context"
	"regexp"
	"strings"

	"bitbucket.org/mmdatafocus/gstrecon_backend/config"
	"bitbucket.org/mmdatafocus/gstrecon_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ValidationError describes why a single raw record was dropped during
// standardization. Never fatal; the batch continues.
type ValidationError struct {
	Row    int    `json:"row"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

// UnknownSupplierKey groups records whose supplier key is present but fails
// the GSTIN shape check. They still participate in matching within this group.
const UnknownSupplierKey = "UNKNOWN"

const minSupplierKeyLen = 5

var gstinRegex = regexp.MustCompile(`^[0-9]{2}[A-Z]{5}[0-9]{4}[A-Z][0-9A-Z]Z[0-9A-Z]$`)

// StandardizeInvoiceRecords converts raw ingestion output into canonical,
// fully typed records. Records failing essential-field checks are dropped
// and reported; they never enter the matching population.
func StandardizeInvoiceRecords(ctx context.Context, raws []RawInvoiceRecord, source RecordSource) ([]*CanonicalInvoiceRecord, []ValidationError) {
	logger := config.GetLogger()

	records := make([]*CanonicalInvoiceRecord, 0, len(raws))
	var invalid []ValidationError

	for _, raw := range raws {
		record, verr := standardizeOne(raw, source, logger)
		if verr != nil {
			invalid = append(invalid, *verr)
			continue
		}
		records = append(records, record)
	}

	if len(invalid) > 0 && logger != nil {
		correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
		businessId, _ := utils.GetBusinessIdFromContext(ctx)
		logger.WithFields(logrus.Fields{
			"field":          "StandardizeInvoiceRecords",
			"source":         string(source),
			"business_id":    businessId,
			"valid_count":    len(records),
			"invalid_count":  len(invalid),
			"correlation_id": correlationId,
		}).Warn("dropped records failing standardization")
	}

	return records, invalid
}

func standardizeOne(raw RawInvoiceRecord, source RecordSource, logger *logrus.Logger) (*CanonicalInvoiceRecord, *ValidationError) {
	gstin := strings.ToUpper(strings.TrimSpace(raw.SupplierGstin))
	if len(gstin) < minSupplierKeyLen {
		return nil, &ValidationError{Row: raw.RowNumber, Field: "supplier_gstin", Reason: "missing or too short"}
	}
	if !gstinRegex.MatchString(gstin) {
		gstin = UnknownSupplierKey
	}

	invoiceNumber := strings.TrimSpace(raw.InvoiceNumber)
	if invoiceNumber == "" {
		return nil, &ValidationError{Row: raw.RowNumber, Field: "invoice_number", Reason: "missing"}
	}

	date, ok := ParseInvoiceDate(raw.InvoiceDate)
	if !ok {
		return nil, &ValidationError{Row: raw.RowNumber, Field: "invoice_date", Reason: "missing or unparseable"}
	}

	if raw.TaxableAmount == nil {
		return nil, &ValidationError{Row: raw.RowNumber, Field: "taxable_amount", Reason: "missing"}
	}
	taxable := *raw.TaxableAmount
	if taxable.IsNegative() {
		return nil, &ValidationError{Row: raw.RowNumber, Field: "taxable_amount", Reason: "negative"}
	}

	igst := utils.DereferencePtr(raw.Igst, decimal.Zero)
	cgst := utils.DereferencePtr(raw.Cgst, decimal.Zero)
	sgst := utils.DereferencePtr(raw.Sgst, decimal.Zero)

	// IGST applies to inter-state supplies, CGST+SGST to intra-state; a
	// single invoice never carries both. Round once here so later tolerance
	// comparisons never see accumulated drift.
	totalTax := igst
	if !igst.IsPositive() {
		totalTax = cgst.Add(sgst)
	}
	totalTax = totalTax.Round(2)

	invoiceValue := taxable.Add(totalTax)
	if raw.InvoiceValue != nil && raw.InvoiceValue.IsPositive() {
		invoiceValue = *raw.InvoiceValue
	}

	record := &CanonicalInvoiceRecord{
		Id:                      uuid.NewString(),
		Source:                  source,
		SupplierGstin:           gstin,
		SupplierName:            strings.TrimSpace(raw.SupplierName),
		InvoiceNumberRaw:        invoiceNumber,
		InvoiceNumberNormalized: NormalizeInvoiceNumber(invoiceNumber),
		InvoiceDate:             date,
		MonthYear:               MonthYear(date),
		FinancialYear:           FinancialYear(date),
		Quarter:                 FinancialQuarter(date),
		TaxableAmount:           taxable,
		Igst:                    igst,
		Cgst:                    cgst,
		Sgst:                    sgst,
		TotalTax:                totalTax,
		InvoiceValue:            invoiceValue,
		DocumentType:            inferDocumentType(raw, source, logger),
		ReverseCharge:           source == RecordSourcePortal && raw.ReverseCharge,
		PlaceOfSupply:           raw.PlaceOfSupply,
		ItcEligibility:          raw.ItcEligibility,
		RowNumber:               raw.RowNumber,
	}
	return record, nil
}

func inferDocumentType(raw RawInvoiceRecord, source RecordSource, logger *logrus.Logger) DocumentType {
	var hint string
	if source == RecordSourcePortal {
		// Portal rows carry an explicit type tag from ingestion.
		hint = raw.DocumentType
	} else {
		// Local rows only carry a voucher mode hint.
		hint = raw.VoucherType
	}

	cleaned := strings.ToUpper(strings.Join(strings.Fields(hint), ""))
	switch cleaned {
	case "INVOICE", "INV", "I", "PURCHASE", "B2B":
		return DocumentTypeInvoice
	case "CREDITNOTE", "CDN", "C", "CRN":
		return DocumentTypeCreditNote
	case "DEBITNOTE", "DBN", "D", "DRN":
		return DocumentTypeDebitNote
	}

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"field":          "inferDocumentType",
			"source":         string(source),
			"hint":           hint,
			"invoice_number": raw.InvoiceNumber,
		}).Warn("unrecognized document type hint; record matches under scope 'all' only")
	}
	return DocumentTypeUnset
}
