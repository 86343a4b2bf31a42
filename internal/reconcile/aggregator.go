package reconcile

import (
	"errors"
	"time"

	"github.com/opensource-finance/bonusledger/internal/domain"
	"github.com/shopspring/decimal"
)

// Document is the set of ledger lines sharing a client and document id.
type Document struct {
	ClientCode   string
	DocumentID   string
	Kind         domain.DocumentKind
	DocumentDate *time.Time
	Lines        []domain.LedgerLine
}

// GroupDocuments groups lines by (client, document id), keeping the order in
// which documents first appear in the export.
func GroupDocuments(lines []domain.LedgerLine) []*Document {
	type key struct{ client, document string }

	index := make(map[key]*Document)
	var docs []*Document

	for _, l := range lines {
		k := key{l.ClientCode, l.DocumentID}
		doc, ok := index[k]
		if !ok {
			doc = &Document{ClientCode: l.ClientCode, DocumentID: l.DocumentID, Kind: l.Kind}
			index[k] = doc
			docs = append(docs, doc)
		}
		if doc.DocumentDate == nil && l.DocumentDate != nil {
			doc.DocumentDate = l.DocumentDate
		}
		doc.Lines = append(doc.Lines, l)
	}
	return docs
}

// BrandSum is the value of a document attributed to one brand bonus.
type BrandSum struct {
	Bonus      *domain.BrandBonus
	Sum        decimal.Decimal
	Lines      int
	Reference  string   // first reference document id seen on the brand's lines
	References []string // distinct reference document ids, in order of appearance
}

func (bs *BrandSum) addReference(ref string) {
	if ref == "" {
		return
	}
	for _, r := range bs.References {
		if r == ref {
			return
		}
	}
	bs.References = append(bs.References, ref)
	if bs.Reference == "" {
		bs.Reference = ref
	}
}

// Aggregation is the per-brand breakdown of one document.
type Aggregation struct {
	Sums      []*BrandSum // in order of first attribution
	Unmatched []domain.LedgerLine
	Ambiguous []AmbiguousLine
}

// AmbiguousLine is a line rejected because of an equal-length prefix clash.
type AmbiguousLine struct {
	Line domain.LedgerLine
	Err  error
}

// Aggregate attributes each line of the document to a brand through the
// prefix table and sums values per brand. Unmatched and ambiguous lines are
// kept out of every sum.
func Aggregate(doc *Document, table *PrefixTable) *Aggregation {
	agg := &Aggregation{}
	byBrand := make(map[string]*BrandSum)

	for _, l := range doc.Lines {
		bonus, err := table.Match(l.ItemCode)
		switch {
		case errors.Is(err, domain.ErrAmbiguousPrefix):
			agg.Ambiguous = append(agg.Ambiguous, AmbiguousLine{Line: l, Err: err})
			continue
		case err != nil:
			agg.Unmatched = append(agg.Unmatched, l)
			continue
		}

		bs, ok := byBrand[bonus.Brand.ID]
		if !ok {
			bs = &BrandSum{Bonus: bonus}
			byBrand[bonus.Brand.ID] = bs
			agg.Sums = append(agg.Sums, bs)
		}
		bs.Sum = bs.Sum.Add(l.Value)
		bs.Lines++
		bs.addReference(l.ReferenceDocumentID)
	}
	return agg
}
