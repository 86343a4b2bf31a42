// Package ledger reads accounting ledger exports (CSV or XLSX) into typed
// ledger lines.
package ledger

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/opensource-finance/bonusledger/internal/domain"
)

// Options control how ambiguous input is interpreted.
type Options struct {
	// DefaultKind applies to rows whose kind is not given by a column or
	// by the document header.
	DefaultKind domain.DocumentKind
}

// Result is the outcome of loading a file. Rows that fail to parse are
// reported in Errors and never appear in Lines.
type Result struct {
	Lines    []domain.LedgerLine
	Errors   []*domain.RowParseError
	RowsRead int
}

// SupportedExtension reports whether the loader can read files with the
// given name.
func SupportedExtension(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt", ".xlsx":
		return true
	}
	return false
}

// Load reads a ledger export. The format is chosen from the filename's
// extension. A MalformedInputError is returned when the file as a whole
// cannot be interpreted; individual bad rows are collected in Result.Errors.
func Load(r io.Reader, filename string, opts Options) (*Result, error) {
	var (
		rows [][]string
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".csv", ".txt":
		rows, err = readCSV(r)
	case ".xlsx":
		rows, err = readXLSX(r)
	default:
		return nil, &domain.MalformedInputError{Reason: fmt.Sprintf("unsupported file type %q", ext)}
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.MalformedInputError{Reason: "file is empty"}
	}

	lay, err := resolveLayout(rows[0])
	if err != nil {
		return nil, err
	}

	if opts.DefaultKind == "" {
		opts.DefaultKind = domain.KindInvoice
	}
	return parseRows(lay, rows[1:], opts), nil
}

func parseRows(lay *layout, rows [][]string, opts Options) *Result {
	res := &Result{}
	kinds := make(map[string]domain.DocumentKind)

	for i, row := range rows {
		if blank(row) {
			continue
		}
		res.RowsRead++
		// Row numbers follow the spreadsheet: header is row 1.
		line, perr := parseRow(lay, row, i+2, opts)
		if perr != nil {
			res.Errors = append(res.Errors, perr)
			continue
		}

		if seen, ok := kinds[line.DocumentID]; ok && seen != line.Kind {
			res.Errors = append(res.Errors, &domain.RowParseError{
				Row:    line.Row,
				Column: columnNames[colKind],
				Value:  string(line.Kind),
				Reason: fmt.Sprintf("document %s already seen as %s", line.DocumentID, seen),
			})
			continue
		}
		kinds[line.DocumentID] = line.Kind
		res.Lines = append(res.Lines, line)
	}
	return res
}

func parseRow(lay *layout, row []string, rowNum int, opts Options) (domain.LedgerLine, *domain.RowParseError) {
	cell := func(c column) string {
		i, ok := lay.index[c]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	fail := func(c column, value, reason string) *domain.RowParseError {
		return &domain.RowParseError{Row: rowNum, Column: columnNames[c], Value: value, Reason: reason}
	}

	line := domain.LedgerLine{
		Row:                 rowNum,
		ClientCode:          cell(colClient),
		ItemCode:            cell(colItem),
		ReferenceDocumentID: cell(colReference),
	}
	if line.ClientCode == "" {
		return line, fail(colClient, "", "empty client code")
	}

	if lay.document < len(row) {
		line.DocumentID = strings.TrimSpace(row[lay.document])
	}
	if line.DocumentID == "" {
		return line, fail(colDocument, "", "empty document id")
	}

	raw := cell(colValue)
	v, err := parseValue(raw)
	if err != nil {
		return line, fail(colValue, raw, err.Error())
	}
	line.Value = v

	switch {
	case lay.fixedKind != "":
		line.Kind = lay.fixedKind
	case cell(colKind) != "":
		k, ok := domain.ParseDocumentKind(cell(colKind))
		if !ok {
			return line, fail(colKind, cell(colKind), "unknown document kind")
		}
		line.Kind = k
	default:
		line.Kind = opts.DefaultKind
	}

	if raw := cell(colDate); raw != "" {
		d, err := parseDate(raw)
		if err != nil {
			return line, fail(colDate, raw, err.Error())
		}
		line.DocumentDate = &d
	}
	return line, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
