package reconcile

import (
	"testing"

	"github.com/opensource-finance/bonusledger/internal/domain"
	"github.com/shopspring/decimal"
)

func ledgerLine(client, doc, item, value string) domain.LedgerLine {
	return domain.LedgerLine{
		ClientCode: client,
		DocumentID: doc,
		ItemCode:   item,
		Value:      decimal.RequireFromString(value),
		Kind:       domain.KindInvoice,
	}
}

func TestGroupDocuments(t *testing.T) {
	lines := []domain.LedgerLine{
		ledgerLine("C1", "D2", "A", "1"),
		ledgerLine("C1", "D1", "A", "1"),
		ledgerLine("C2", "D2", "A", "1"),
		ledgerLine("C1", "D2", "B", "1"),
	}

	docs := GroupDocuments(lines)
	if len(docs) != 3 {
		t.Fatalf("expected 3 documents, got %d", len(docs))
	}

	want := []struct {
		client, doc string
		lines       int
	}{
		{"C1", "D2", 2},
		{"C1", "D1", 1},
		{"C2", "D2", 1},
	}
	for i, w := range want {
		if docs[i].ClientCode != w.client || docs[i].DocumentID != w.doc || len(docs[i].Lines) != w.lines {
			t.Errorf("document %d: expected %s/%s with %d lines, got %s/%s with %d",
				i, w.client, w.doc, w.lines, docs[i].ClientCode, docs[i].DocumentID, len(docs[i].Lines))
		}
	}
}

func TestAggregate(t *testing.T) {
	table := NewPrefixTable([]*domain.BrandBonus{
		bonus("br1", "BR1", "1.0"),
		bonus("br2", "BR2", "0.5"),
		bonus("x-a", "AMB", "1"),
		bonus("x-b", "AMB", "1"),
	})

	doc := GroupDocuments([]domain.LedgerLine{
		ledgerLine("C1", "INV-1", "BR1-100", "50"),
		ledgerLine("C1", "INV-1", "BR2-200", "30"),
		ledgerLine("C1", "INV-1", "XX-999", "20"),
		ledgerLine("C1", "INV-1", "BR1-101", "0.25"),
		ledgerLine("C1", "INV-1", "AMB-1", "7"),
	})[0]

	agg := Aggregate(doc, table)

	if len(agg.Sums) != 2 {
		t.Fatalf("expected 2 brand sums, got %d", len(agg.Sums))
	}
	if agg.Sums[0].Bonus.Brand.ID != "br1" || !agg.Sums[0].Sum.Equal(decimal.RequireFromString("50.25")) {
		t.Errorf("unexpected BR1 sum: %s %s", agg.Sums[0].Bonus.Brand.ID, agg.Sums[0].Sum)
	}
	if agg.Sums[0].Lines != 2 {
		t.Errorf("expected 2 BR1 lines, got %d", agg.Sums[0].Lines)
	}
	if !agg.Sums[1].Sum.Equal(decimal.NewFromInt(30)) {
		t.Errorf("unexpected BR2 sum: %s", agg.Sums[1].Sum)
	}
	if len(agg.Unmatched) != 2 || agg.Unmatched[0].ItemCode != "XX-999" {
		t.Errorf("expected both XX-999 lines unmatched, got %+v", agg.Unmatched)
	}
	if len(agg.Ambiguous) != 1 {
		t.Errorf("expected 1 ambiguous line, got %d", len(agg.Ambiguous))
	}

	// Attributed value never exceeds the document total.
	total := decimal.Zero
	for _, l := range doc.Lines {
		total = total.Add(l.Value)
	}
	attributed := decimal.Zero
	for _, s := range agg.Sums {
		attributed = attributed.Add(s.Sum)
	}
	if attributed.GreaterThan(total) {
		t.Errorf("attributed %s exceeds document total %s", attributed, total)
	}
}

func TestAggregateReferences(t *testing.T) {
	table := NewPrefixTable([]*domain.BrandBonus{bonus("br1", "BR1", "1.0")})

	line := func(item, value, ref string) domain.LedgerLine {
		l := ledgerLine("C1", "CN-1", item, value)
		l.Kind = domain.KindCreditNote
		l.ReferenceDocumentID = ref
		return l
	}
	doc := GroupDocuments([]domain.LedgerLine{
		line("BR1-1", "-10", ""),
		line("BR1-2", "-10", "INV-1"),
		line("BR1-3", "-10", "INV-2"),
		line("BR1-4", "-10", "INV-1"),
	})[0]

	agg := Aggregate(doc, table)
	if len(agg.Sums) != 1 {
		t.Fatalf("expected 1 brand sum, got %d", len(agg.Sums))
	}
	bs := agg.Sums[0]
	if bs.Reference != "INV-1" {
		t.Errorf("expected first reference INV-1, got %q", bs.Reference)
	}
	if len(bs.References) != 2 || bs.References[0] != "INV-1" || bs.References[1] != "INV-2" {
		t.Errorf("expected references [INV-1 INV-2], got %v", bs.References)
	}
}
