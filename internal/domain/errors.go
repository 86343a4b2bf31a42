package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Recoverable conditions. The offending row, client or candidate is skipped,
// counted and surfaced in the BatchReport; the run continues.
var (
	ErrUnregisteredClient   = errors.New("client not registered or without active contract")
	ErrNoActiveBonus        = errors.New("client has no active brand bonus")
	ErrAmbiguousPrefix      = errors.New("item code matches several brands with equal prefix length")
	ErrNoPrefixMatch        = errors.New("item code matches no brand prefix")
	ErrDuplicateFingerprint = errors.New("transaction already exists for client, document and brand")
	ErrNoPriorGrant         = errors.New("no prior standard points grant to reverse")
	ErrPointsOutOfRange     = errors.New("points amount out of range")
)

// MalformedInputError aborts a whole run before any transaction is written.
type MalformedInputError struct {
	Reason  string
	Missing []string
}

func (e *MalformedInputError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("malformed input: %s (missing columns: %s)", e.Reason, strings.Join(e.Missing, ", "))
	}
	return "malformed input: " + e.Reason
}

// RowParseError marks a single row as unusable.
type RowParseError struct {
	Row    int
	Column string
	Value  string
	Reason string
}

func (e *RowParseError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
	}
	return fmt.Sprintf("row %d, column %s (%q): %s", e.Row, e.Column, e.Value, e.Reason)
}

// IsMalformedInput reports whether err is, or wraps, a MalformedInputError.
func IsMalformedInput(err error) bool {
	var m *MalformedInputError
	return errors.As(err, &m)
}
