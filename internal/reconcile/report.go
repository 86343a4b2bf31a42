package reconcile

import (
	"github.com/opensource-finance/bonusledger/internal/domain"
)

// recorder fills a BatchReport. Counts are always kept; diagnostics are
// capped at max entries (0 means unlimited).
type recorder struct {
	report *domain.BatchReport
	max    int
}

func newRecorder(max int) *recorder {
	return &recorder{report: &domain.BatchReport{}, max: max}
}

func (r *recorder) diag(d domain.Diagnostic) {
	if r.max > 0 && len(r.report.Diagnostics) >= r.max {
		r.report.DiagnosticsDropped++
		return
	}
	r.report.Diagnostics = append(r.report.Diagnostics, d)
}

func (r *recorder) rowSkipped(err *domain.RowParseError) {
	r.report.RowsSkipped++
	r.diag(domain.Diagnostic{Category: domain.CategoryRowParse, Row: err.Row, Message: err.Error()})
}

func (r *recorder) lineExcluded(l *domain.LedgerLine, ruleID string) {
	r.report.LinesExcluded++
	r.diag(domain.Diagnostic{
		Category:   domain.CategoryExcluded,
		Row:        l.Row,
		ClientCode: l.ClientCode,
		DocumentID: l.DocumentID,
		ItemCode:   l.ItemCode,
		Message:    "excluded by rule " + ruleID,
	})
}

func (r *recorder) clientUnregistered(code string, lines int) {
	r.report.ClientsUnregistered++
	r.report.LinesDropped += lines
	r.diag(domain.Diagnostic{
		Category:   domain.CategoryUnregistered,
		ClientCode: code,
		Message:    domain.ErrUnregisteredClient.Error(),
	})
}

func (r *recorder) clientNoBonus(code string, lines int) {
	r.report.ClientsNoBonus++
	r.report.LinesDropped += lines
	r.diag(domain.Diagnostic{
		Category:   domain.CategoryNoActiveBonus,
		ClientCode: code,
		Message:    domain.ErrNoActiveBonus.Error(),
	})
}

// Unmatched value is reported as a count only.
func (r *recorder) linesUnmatched(n int) {
	r.report.LinesUnmatched += n
}

func (r *recorder) lineAmbiguous(a AmbiguousLine) {
	r.report.LinesAmbiguous++
	r.diag(domain.Diagnostic{
		Category:   domain.CategoryAmbiguous,
		Row:        a.Line.Row,
		ClientCode: a.Line.ClientCode,
		DocumentID: a.Line.DocumentID,
		ItemCode:   a.Line.ItemCode,
		Message:    a.Err.Error(),
	})
}

func (r *recorder) noPriorGrant(doc *Document, bs *BrandSum, err error) {
	r.report.NoPriorGrant++
	r.diag(domain.Diagnostic{
		Category:   domain.CategoryNoPriorGrant,
		ClientCode: doc.ClientCode,
		DocumentID: doc.DocumentID,
		BrandID:    bs.Bonus.Brand.ID,
		Message:    err.Error(),
	})
}

func (r *recorder) zeroAmount() {
	r.report.ZeroAmount++
}

func (r *recorder) documentFailed(doc *Document, err error) {
	r.report.DocumentsFailed++
	r.diag(domain.Diagnostic{
		Category:   domain.CategoryDocFailed,
		ClientCode: doc.ClientCode,
		DocumentID: doc.DocumentID,
		Message:    err.Error(),
	})
}

func (r *recorder) committed(res *CommitResult) {
	r.report.DocumentsProcessed++
	for _, tx := range res.Created {
		switch tx.Kind {
		case domain.KindCreditReversal:
			r.report.ReversalsCreated++
		default:
			r.report.StandardCreated++
		}
	}
	for _, tx := range res.Duplicates {
		r.report.DuplicatesSkipped++
		r.diag(domain.Diagnostic{
			Category:   domain.CategoryDuplicate,
			ClientCode: tx.ClientCode,
			DocumentID: tx.DocumentID,
			BrandID:    tx.BrandID,
			Message:    domain.ErrDuplicateFingerprint.Error(),
		})
	}
}
