package domain

import "time"

// BatchStatus tracks a ProcessingBatch through its single run.
type BatchStatus string

const (
	BatchPending   BatchStatus = "PENDING"
	BatchRunning   BatchStatus = "RUNNING"
	BatchCompleted BatchStatus = "COMPLETED"
	BatchFailed    BatchStatus = "FAILED"
)

// Finished reports whether the batch reached a terminal status.
func (s BatchStatus) Finished() bool {
	return s == BatchCompleted || s == BatchFailed
}

// ProcessingBatch is one run of the engine over one uploaded export.
// Created at run start, finalized at run end, never mutated afterward.
type ProcessingBatch struct {
	ID          string       `json:"id"`
	Filename    string       `json:"filename"`
	FileHash    string       `json:"fileHash,omitempty"`
	SubmittedBy string       `json:"submittedBy,omitempty"`
	AsOf        time.Time    `json:"asOf"`
	Status      BatchStatus  `json:"status"`
	Error       string       `json:"error,omitempty"`
	Report      *BatchReport `json:"report,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	StartedAt   *time.Time   `json:"startedAt,omitempty"`
	FinishedAt  *time.Time   `json:"finishedAt,omitempty"`
}

// Diagnostic categories. Every skipped item lands in exactly one.
const (
	CategoryRowParse      = "row_parse"
	CategoryExcluded      = "excluded_by_rule"
	CategoryUnregistered  = "unregistered_client"
	CategoryNoActiveBonus = "no_active_bonus"
	CategoryAmbiguous     = "ambiguous_prefix"
	CategoryNoPriorGrant  = "no_prior_grant"
	CategoryDuplicate     = "duplicate_fingerprint"
	CategoryDocFailed     = "document_failed"
)

// Diagnostic describes one skipped row, line, client or candidate.
type Diagnostic struct {
	Category   string `json:"category"`
	Row        int    `json:"row,omitempty"`
	ClientCode string `json:"clientCode,omitempty"`
	DocumentID string `json:"documentId,omitempty"`
	ItemCode   string `json:"itemCode,omitempty"`
	BrandID    string `json:"brandId,omitempty"`
	Message    string `json:"message"`
}

// BatchReport summarises a run for operator review.
// It never drives further processing.
type BatchReport struct {
	RowsRead    int `json:"rowsRead"`
	RowsSkipped int `json:"rowsSkipped"`

	LinesExcluded int `json:"linesExcluded"`

	ClientsUnregistered int `json:"clientsUnregistered"`
	ClientsNoBonus      int `json:"clientsNoBonus"`
	LinesDropped        int `json:"linesDropped"`

	LinesUnmatched int `json:"linesUnmatched"`
	LinesAmbiguous int `json:"linesAmbiguous"`

	NoPriorGrant      int `json:"noPriorGrant"`
	ZeroAmount        int `json:"zeroAmount"`
	DuplicatesSkipped int `json:"duplicatesSkipped"`

	DocumentsProcessed int `json:"documentsProcessed"`
	DocumentsFailed    int `json:"documentsFailed"`

	StandardCreated  int `json:"standardCreated"`
	ReversalsCreated int `json:"reversalsCreated"`

	Diagnostics        []Diagnostic `json:"diagnostics,omitempty"`
	DiagnosticsDropped int          `json:"diagnosticsDropped,omitempty"`
}

// TransactionsCreated returns the number of transactions written by the run.
func (r *BatchReport) TransactionsCreated() int {
	return r.StandardCreated + r.ReversalsCreated
}
