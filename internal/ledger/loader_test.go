package ledger

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/opensource-finance/bonusledger/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

func loadString(t *testing.T, name, content string, opts Options) *Result {
	t.Helper()
	res, err := Load(strings.NewReader(content), name, opts)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return res
}

func TestLoadCSV(t *testing.T) {
	t.Run("GenericHeaders", func(t *testing.T) {
		csv := "client_code,document_id,item_code,value\n" +
			"C1,INV-1,BR1-100,1000\n" +
			"C1,INV-1,BR2-7,300.50\n"
		res := loadString(t, "ledger.csv", csv, Options{})

		if res.RowsRead != 2 {
			t.Errorf("expected 2 rows read, got %d", res.RowsRead)
		}
		if len(res.Lines) != 2 {
			t.Fatalf("expected 2 lines, got %d", len(res.Lines))
		}
		l := res.Lines[1]
		if l.ClientCode != "C1" || l.DocumentID != "INV-1" || l.ItemCode != "BR2-7" {
			t.Errorf("unexpected line: %+v", l)
		}
		if !l.Value.Equal(decimal.RequireFromString("300.50")) {
			t.Errorf("expected 300.50, got %s", l.Value)
		}
		if l.Kind != domain.KindInvoice {
			t.Errorf("expected default kind INVOICE, got %s", l.Kind)
		}
		if l.Row != 3 {
			t.Errorf("expected row 3, got %d", l.Row)
		}
	})

	t.Run("CzechExportWithSemicolons", func(t *testing.T) {
		csv := "\ufeffZČ;Dobropis;Kód;Cena;Datum\n" +
			"C7;D-55;BR1-X;1 250,75;03.02.2024\n"
		res := loadString(t, "export.csv", csv, Options{})

		if len(res.Lines) != 1 {
			t.Fatalf("expected 1 line, got %d (errors: %v)", len(res.Lines), res.Errors)
		}
		l := res.Lines[0]
		if l.Kind != domain.KindCreditNote {
			t.Errorf("Dobropis header should imply CREDIT_NOTE, got %s", l.Kind)
		}
		if !l.Value.Equal(decimal.RequireFromString("1250.75")) {
			t.Errorf("expected 1250.75, got %s", l.Value)
		}
		if l.DocumentDate == nil || l.DocumentDate.Format("2006-01-02") != "2024-02-03" {
			t.Errorf("unexpected document date: %v", l.DocumentDate)
		}
	})

	t.Run("KindColumn", func(t *testing.T) {
		csv := "client,document,item,amount,kind,reference\n" +
			"C1,INV-1,BR1-1,100,invoice,\n" +
			"C1,CN-1,BR1-1,-40,credit_note,INV-1\n"
		res := loadString(t, "l.csv", csv, Options{DefaultKind: domain.KindInvoice})

		if len(res.Lines) != 2 {
			t.Fatalf("expected 2 lines, got %d", len(res.Lines))
		}
		if res.Lines[1].Kind != domain.KindCreditNote {
			t.Errorf("expected CREDIT_NOTE, got %s", res.Lines[1].Kind)
		}
		if res.Lines[1].ReferenceDocumentID != "INV-1" {
			t.Errorf("expected reference INV-1, got %q", res.Lines[1].ReferenceDocumentID)
		}
	})

	t.Run("DefaultKindCreditNote", func(t *testing.T) {
		csv := "client,document,item,value\nC1,X-1,BR1-1,10\n"
		res := loadString(t, "l.csv", csv, Options{DefaultKind: domain.KindCreditNote})
		if res.Lines[0].Kind != domain.KindCreditNote {
			t.Errorf("expected CREDIT_NOTE, got %s", res.Lines[0].Kind)
		}
	})

	t.Run("BlankRowsIgnored", func(t *testing.T) {
		csv := "client,document,item,value\n" +
			"C1,D1,BR1-1,10\n" +
			",,,\n" +
			"C1,D1,BR1-2,20\n"
		res := loadString(t, "l.csv", csv, Options{})
		if res.RowsRead != 2 || len(res.Lines) != 2 {
			t.Errorf("expected 2 rows and lines, got %d/%d", res.RowsRead, len(res.Lines))
		}
	})

	t.Run("EmptyItemCodeAllowed", func(t *testing.T) {
		csv := "client,document,item,value\nC1,D1,,10\n"
		res := loadString(t, "l.csv", csv, Options{})
		if len(res.Lines) != 1 || len(res.Errors) != 0 {
			t.Errorf("expected 1 line and no errors, got %d/%d", len(res.Lines), len(res.Errors))
		}
	})

	t.Run("Windows1252Fallback", func(t *testing.T) {
		utf := "client,document,item,value\nCafé,D1,BR1-1,10\n"
		encoded, err := charmap.Windows1252.NewEncoder().String(utf)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		res := loadString(t, "l.csv", encoded, Options{})
		if len(res.Lines) != 1 || res.Lines[0].ClientCode != "Café" {
			t.Errorf("expected decoded client code Café, got %+v", res.Lines)
		}
	})
}

func TestLoadRowErrors(t *testing.T) {
	csv := "client,document,item,value,date,kind\n" +
		"C1,D1,BR1-1,abc,,\n" + // bad value
		",D1,BR1-1,10,,\n" + // missing client
		"C1,,BR1-1,10,,\n" + // missing document
		"C1,D1,BR1-1,10,31/31/2024,\n" + // bad date
		"C1,D2,BR1-1,10,,refund\n" + // bad kind
		"C1,D3,BR1-1,10,,invoice\n" +
		"C1,D3,BR1-2,10,,credit\n" + // conflicting kind for D3
		"C1,D4,BR1-1,10,,\n"

	res := loadString(t, "l.csv", csv, Options{})

	if res.RowsRead != 8 {
		t.Errorf("expected 8 rows read, got %d", res.RowsRead)
	}
	if len(res.Lines) != 2 {
		t.Errorf("expected 2 good lines, got %d", len(res.Lines))
	}
	if len(res.Errors) != 6 {
		t.Fatalf("expected 6 row errors, got %d: %v", len(res.Errors), res.Errors)
	}

	wantColumns := []string{"value", "client_code", "document_id", "date", "kind", "kind"}
	for i, e := range res.Errors {
		if e.Column != wantColumns[i] {
			t.Errorf("error %d: expected column %s, got %s (%v)", i, wantColumns[i], e.Column, e)
		}
	}
	if res.Errors[0].Row != 2 {
		t.Errorf("expected first error on row 2, got %d", res.Errors[0].Row)
	}
}

func TestLoadMalformed(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		missing []string
	}{
		{"Empty", "a.csv", "", nil},
		{"UnsupportedType", "a.pdf", "whatever", nil},
		{"MissingColumns", "a.csv", "client,document\nC1,D1\n", []string{"item_code", "value"}},
		{"NoDocumentColumn", "a.csv", "client,item,value\nC1,X,1\n", []string{"document_id"}},
		{"BothDocumentHeaders", "a.csv", "ZČ;Faktura;Dobropis;Kód;Cena\n", nil},
		{"DuplicateColumn", "a.csv", "client,document,item,value,Cena\n", nil},
		{"BadXLSX", "a.xlsx", "not a zip", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.content), tt.file, Options{})
			if err == nil {
				t.Fatal("expected error")
			}
			var mErr *domain.MalformedInputError
			if !errors.As(err, &mErr) {
				t.Fatalf("expected MalformedInputError, got %T: %v", err, err)
			}
			if tt.missing != nil && strings.Join(mErr.Missing, ",") != strings.Join(tt.missing, ",") {
				t.Errorf("expected missing %v, got %v", tt.missing, mErr.Missing)
			}
		})
	}
}

func TestLoadXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"ZČ", "Faktura", "Kód", "Cena", "Datum"},
		{"C1", "F-100", "BR1-A", 1000, "15.01.2024"},
		{"C1", "F-100", "BR2-B", 300.5, "15.01.2024"},
		{nil, nil, nil, nil, nil},
		{"C2", "F-101", "XX-1", "12,5", "16.01.2024"},
	}
	for i, row := range rows {
		cellName, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cellName, &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}

	res, err := Load(bytes.NewReader(buf.Bytes()), "upload.XLSX", Options{DefaultKind: domain.KindCreditNote})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if res.RowsRead != 3 {
		t.Errorf("expected 3 rows read, got %d", res.RowsRead)
	}
	if len(res.Lines) != 3 {
		t.Fatalf("expected 3 lines, got %d (errors: %v)", len(res.Lines), res.Errors)
	}
	for _, l := range res.Lines {
		if l.Kind != domain.KindInvoice {
			t.Errorf("Faktura header should force INVOICE, got %s", l.Kind)
		}
	}
	if !res.Lines[1].Value.Equal(decimal.RequireFromString("300.5")) {
		t.Errorf("expected 300.5, got %s", res.Lines[1].Value)
	}
	if !res.Lines[2].Value.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("expected 12.5, got %s", res.Lines[2].Value)
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"1234.5", "1234.5", true},
		{"1234,5", "1234.5", true},
		{"1 234,50", "1234.5", true},
		{"1\u00a0234,50", "1234.5", true},
		{"1.234,50", "1234.5", true},
		{"1,234.50", "1234.5", true},
		{"1,234,567", "1234567", true},
		{"-40", "-40", true},
		{"", "", false},
		{"12a", "", false},
	}
	for _, tt := range tests {
		got, err := parseValue(tt.in)
		if (err == nil) != tt.ok {
			t.Errorf("parseValue(%q) error = %v, want ok=%v", tt.in, err, tt.ok)
			continue
		}
		if tt.ok && !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("parseValue(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestParseDate(t *testing.T) {
	for _, in := range []string{"03.02.2024", "3.2.2024", "2024-02-03", "45325"} {
		d, err := parseDate(in)
		if err != nil {
			t.Errorf("parseDate(%q): %v", in, err)
			continue
		}
		if got := d.Format("2006-01-02"); got != "2024-02-03" {
			t.Errorf("parseDate(%q) = %s", in, got)
		}
	}
	if _, err := parseDate("yesterday"); err == nil {
		t.Error("expected error for unparseable date")
	}
}

func TestSniffDelimiter(t *testing.T) {
	if d := sniffDelimiter([]byte("a;b;c\n1,2;3;4")); d != ';' {
		t.Errorf("expected ';', got %q", d)
	}
	if d := sniffDelimiter([]byte("a,b,c")); d != ',' {
		t.Errorf("expected ',', got %q", d)
	}
	if d := sniffDelimiter([]byte("a\tb")); d != '\t' {
		t.Errorf("expected tab, got %q", d)
	}
}
