package models

// GroupBySupplier partitions canonical records by supplier GSTIN. Input
// order is preserved within each group; Pass 1/2 tie-breaks depend on it.
func GroupBySupplier(records []*CanonicalInvoiceRecord) map[string][]*CanonicalInvoiceRecord {
	groups := make(map[string][]*CanonicalInvoiceRecord)
	for _, record := range records {
		groups[record.SupplierGstin] = append(groups[record.SupplierGstin], record)
	}
	return groups
}
