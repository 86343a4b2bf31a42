// Package domain defines the core interfaces and types for bonusledger.
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DocumentKind distinguishes invoice rows from credit-note rows.
type DocumentKind string

const (
	KindInvoice    DocumentKind = "INVOICE"
	KindCreditNote DocumentKind = "CREDIT_NOTE"
)

// ParseDocumentKind maps an export marker to a DocumentKind.
// Accepts the English names and the Czech accounting terms used by the ERP export.
func ParseDocumentKind(s string) (DocumentKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "invoice", "inv", "i", "f", "faktura":
		return KindInvoice, true
	case "credit_note", "credit-note", "credit note", "credit", "cn", "d", "dobropis":
		return KindCreditNote, true
	}
	return "", false
}

// LedgerLine is one row of an uploaded export.
// It only lives for the duration of a run.
type LedgerLine struct {
	Row                 int             `json:"row"`
	ClientCode          string          `json:"clientCode"`
	DocumentID          string          `json:"documentId"`
	ItemCode            string          `json:"itemCode"`
	Value               decimal.Decimal `json:"value"`
	Kind                DocumentKind    `json:"kind"`
	DocumentDate        *time.Time      `json:"documentDate,omitempty"`
	ReferenceDocumentID string          `json:"referenceDocumentId,omitempty"`
}
