package classify

import "strings"

// TransferDetector decides whether a transaction is a transfer or payment
// between accounts rather than real spending. It is a pluggable predicate
// so the keyword heuristic can be swapped without touching the pipeline.
type TransferDetector interface {
	IsTransfer(name, merchantName string, sourceCategories []string) bool
}

// transferKeywords are matched case-insensitively against the transaction
// and merchant names.
var transferKeywords = []string{
	"AUTOPAY",
	"TRANSFER",
	"PAYMENT THANK YOU",
	"ONLINE PAYMENT",
	"BILL PAY",
	"BILLPAY",
	"DIRECT DEBIT",
	"CREDIT CRD PMT",
	"ACH PMT",
	"ZELLE",
	"VENMO",
}

// transferHints are matched against the aggregator's category hints.
var transferHints = []string{
	"transfer",
	"payment",
	"credit card payment",
}

// KeywordDetector is the default TransferDetector.
type KeywordDetector struct{}

// NewKeywordDetector returns the default keyword-based detector.
func NewKeywordDetector() *KeywordDetector {
	return &KeywordDetector{}
}

// IsTransfer reports whether any transfer keyword appears in the names or
// the source category hints.
func (d *KeywordDetector) IsTransfer(name, merchantName string, sourceCategories []string) bool {
	upperName := strings.ToUpper(name)
	upperMerchant := strings.ToUpper(merchantName)
	for _, kw := range transferKeywords {
		if strings.Contains(upperName, kw) || strings.Contains(upperMerchant, kw) {
			return true
		}
	}

	for _, hint := range sourceCategories {
		lower := strings.ToLower(hint)
		for _, t := range transferHints {
			if strings.Contains(lower, t) {
				return true
			}
		}
	}
	return false
}

var _ TransferDetector = (*KeywordDetector)(nil)
