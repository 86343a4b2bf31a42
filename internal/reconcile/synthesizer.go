package reconcile

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/bonusledger/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	maxPoints = decimal.NewFromInt(math.MaxInt64)
	minPoints = decimal.NewFromInt(math.MinInt64)
)

// Points converts a value to points: value × ratio rounded half away from zero.
// A result that does not fit in int64 is ErrPointsOutOfRange.
func Points(value, ratio decimal.Decimal) (int64, error) {
	p := value.Mul(ratio).Round(0)
	if p.GreaterThan(maxPoints) || p.LessThan(minPoints) {
		return 0, fmt.Errorf("%w: %s × %s", domain.ErrPointsOutOfRange, value, ratio)
	}
	return p.IntPart(), nil
}

// Synthesizer turns brand sums into PENDING points transactions.
type Synthesizer struct {
	now   func() time.Time
	newID func() string
}

// NewSynthesizer creates a synthesizer with wall-clock timestamps and UUIDs.
func NewSynthesizer() *Synthesizer {
	return &Synthesizer{
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.New().String() },
	}
}

// Standard builds the STANDARD_POINTS candidate for an invoice brand sum.
// It returns nil when the sum earns no points.
func (s *Synthesizer) Standard(client *ResolvedClient, doc *Document, bs *BrandSum, batchID string) (*domain.PointsTransaction, error) {
	amount, err := Points(bs.Sum, bs.Bonus.Ratio)
	if err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, nil
	}
	return s.build(client, doc, bs, amount, domain.KindStandardPoints, batchID), nil
}

// Reversal builds the CREDIT_REVERSAL candidate for a credit-note brand sum.
// The sign of the exported values does not matter; the amount is always
// negative. It returns nil when the sum rounds to zero points.
func (s *Synthesizer) Reversal(client *ResolvedClient, doc *Document, bs *BrandSum, batchID string) (*domain.PointsTransaction, error) {
	amount, err := Points(bs.Sum.Abs(), bs.Bonus.Ratio)
	if err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, nil
	}
	tx := s.build(client, doc, bs, -amount, domain.KindCreditReversal, batchID)
	tx.ReferenceDocumentID = bs.Reference
	return tx, nil
}

func (s *Synthesizer) build(client *ResolvedClient, doc *Document, bs *BrandSum, amount int64, kind domain.TransactionKind, batchID string) *domain.PointsTransaction {
	return &domain.PointsTransaction{
		ID:           s.newID(),
		ClientID:     client.Client.ID,
		ClientCode:   client.Client.Code,
		BrandID:      bs.Bonus.Brand.ID,
		DocumentID:   doc.DocumentID,
		Amount:       amount,
		Kind:         kind,
		Status:       domain.StatusPending,
		Description:  doc.DocumentID,
		Value:        bs.Sum,
		Ratio:        bs.Bonus.Ratio,
		DocumentDate: doc.DocumentDate,
		BatchID:      batchID,
		CreatedAt:    s.now(),
	}
}
