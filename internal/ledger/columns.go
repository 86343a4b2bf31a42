package ledger

import (
	"fmt"
	"strings"

	"github.com/opensource-finance/bonusledger/internal/domain"
)

type column int

const (
	colClient column = iota
	colDocument
	colInvoice
	colCreditNote
	colItem
	colValue
	colKind
	colDate
	colReference
)

var columnNames = map[column]string{
	colClient:     "client_code",
	colDocument:   "document_id",
	colInvoice:    "invoice",
	colCreditNote: "credit_note",
	colItem:       "item_code",
	colValue:      "value",
	colKind:       "kind",
	colDate:       "date",
	colReference:  "reference",
}

// headerAliases maps normalised header text to a column. The Czech names are
// the ones produced by the ERP export (ZČ = client number, Kód = item code,
// Cena = price, Faktura = invoice, Dobropis = credit note).
var headerAliases = map[string]column{
	"zč":                 colClient,
	"zc":                 colClient,
	"client":             colClient,
	"client_code":        colClient,
	"client code":        colClient,
	"document":           colDocument,
	"document_id":        colDocument,
	"document id":        colDocument,
	"doc":                colDocument,
	"faktura":            colInvoice,
	"invoice":            colInvoice,
	"invoice_id":         colInvoice,
	"dobropis":           colCreditNote,
	"credit_note":        colCreditNote,
	"credit_note_id":     colCreditNote,
	"kód":                colItem,
	"kod":                colItem,
	"item":               colItem,
	"item_code":          colItem,
	"code":               colItem,
	"cena":               colValue,
	"value":              colValue,
	"amount":             colValue,
	"kind":               colKind,
	"document_kind":      colKind,
	"typ":                colKind,
	"datum":              colDate,
	"date":               colDate,
	"reference":          colReference,
	"original_document":  colReference,
	"reference_document": colReference,
}

// layout is the resolved position of every recognised column.
type layout struct {
	index     map[column]int
	document  int
	fixedKind domain.DocumentKind // set when the document header implies the kind
}

func (l *layout) has(c column) bool {
	_, ok := l.index[c]
	return ok
}

func normaliseHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	return strings.ToLower(strings.TrimSpace(h))
}

// resolveLayout validates the header row. Any schema-level problem is a
// MalformedInputError: the file cannot be processed at all.
func resolveLayout(header []string) (*layout, error) {
	l := &layout{index: make(map[column]int)}

	for i, h := range header {
		c, ok := headerAliases[normaliseHeader(h)]
		if !ok {
			continue
		}
		if prev, dup := l.index[c]; dup {
			return nil, &domain.MalformedInputError{
				Reason: fmt.Sprintf("column %s appears twice (positions %d and %d)", columnNames[c], prev+1, i+1),
			}
		}
		l.index[c] = i
	}

	var docCols []column
	for _, c := range []column{colDocument, colInvoice, colCreditNote} {
		if l.has(c) {
			docCols = append(docCols, c)
		}
	}
	if len(docCols) > 1 {
		names := make([]string, len(docCols))
		for i, c := range docCols {
			names[i] = columnNames[c]
		}
		return nil, &domain.MalformedInputError{
			Reason: "more than one document id column: " + strings.Join(names, ", "),
		}
	}

	var missing []string
	for _, c := range []column{colClient, colItem, colValue} {
		if !l.has(c) {
			missing = append(missing, columnNames[c])
		}
	}
	if len(docCols) == 0 {
		missing = append(missing, columnNames[colDocument])
	}
	if len(missing) > 0 {
		return nil, &domain.MalformedInputError{Reason: "required columns not found", Missing: missing}
	}

	l.document = l.index[docCols[0]]
	switch docCols[0] {
	case colInvoice:
		l.fixedKind = domain.KindInvoice
	case colCreditNote:
		l.fixedKind = domain.KindCreditNote
	}
	return l, nil
}
