package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionKind is the business reason for a points movement.
type TransactionKind string

const (
	KindStandardPoints TransactionKind = "STANDARD_POINTS"
	KindCreditReversal TransactionKind = "CREDIT_REVERSAL"
)

// TransactionStatus is driven by the external approval workflow.
// The engine only ever creates PENDING transactions.
type TransactionStatus string

const (
	StatusPending TransactionStatus = "PENDING"
	StatusActive  TransactionStatus = "ACTIVE"
	StatusDenied  TransactionStatus = "DENIED"
)

// PointsTransaction is the durable output of a run. Immutable once created.
type PointsTransaction struct {
	ID                  string            `json:"id"`
	ClientID            string            `json:"clientId"`
	ClientCode          string            `json:"clientCode"`
	BrandID             string            `json:"brandId"`
	DocumentID          string            `json:"documentId"`
	ReferenceDocumentID string            `json:"referenceDocumentId,omitempty"`
	Amount              int64             `json:"amount"`
	Kind                TransactionKind   `json:"kind"`
	Status              TransactionStatus `json:"status"`
	Description         string            `json:"description"`

	// Audit trail of how Amount was derived.
	Value decimal.Decimal `json:"value"`
	Ratio decimal.Decimal `json:"ratio"`

	DocumentDate *time.Time `json:"documentDate,omitempty"`
	BatchID      string     `json:"batchId"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// Fingerprint returns the uniqueness key of the transaction.
func (t *PointsTransaction) Fingerprint() Fingerprint {
	return Fingerprint{ClientID: t.ClientID, DocumentID: t.DocumentID, BrandID: t.BrandID}
}

// Fingerprint is the (client, source-document, brand) key guaranteeing
// at most one transaction per brand per document.
type Fingerprint struct {
	ClientID   string
	DocumentID string
	BrandID    string
}

// TransactionFilter narrows transaction listings.
type TransactionFilter struct {
	ClientCode string
	DocumentID string
	BatchID    string
	Kind       TransactionKind
	Limit      int
}
