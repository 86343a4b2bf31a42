package domain

import "time"

// LineRule is an operator-configured CEL predicate over a ledger line.
// Lines for which an enabled rule evaluates to true are excluded from the run,
// e.g. freight or packaging items: `item_code.startsWith("DOPR")`.
type LineRule struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Expression  string    `json:"expression"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty"`
}
