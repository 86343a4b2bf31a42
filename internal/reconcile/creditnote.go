package reconcile

import (
	"context"
	"fmt"

	"github.com/opensource-finance/bonusledger/internal/domain"
)

// CreditNoteReconciler emits reversals only where points were granted before.
type CreditNoteReconciler struct {
	store domain.TransactionStore
	synth *Synthesizer
}

// NewCreditNoteReconciler creates a reconciler over the transaction store.
func NewCreditNoteReconciler(store domain.TransactionStore, synth *Synthesizer) *CreditNoteReconciler {
	return &CreditNoteReconciler{store: store, synth: synth}
}

// Reverse returns the CREDIT_REVERSAL candidate for a credit-note brand sum.
// Every document referenced by the brand's lines must carry a prior
// STANDARD_POINTS grant for the client and brand; without references any
// earlier grant qualifies. A missing grant is ErrNoPriorGrant.
// A nil candidate with a nil error means the sum earns no points.
func (c *CreditNoteReconciler) Reverse(ctx context.Context, client *ResolvedClient, doc *Document, bs *BrandSum, batchID string) (*domain.PointsTransaction, error) {
	if len(bs.References) == 0 {
		granted, err := c.store.HasStandardGrant(ctx, client.Client.ID, "", bs.Bonus.Brand.ID)
		if err != nil {
			return nil, fmt.Errorf("check prior grant: %w", err)
		}
		if !granted {
			return nil, fmt.Errorf("%w: %s has no points for brand %s",
				domain.ErrNoPriorGrant, client.Client.Code, bs.Bonus.Brand.ID)
		}
		return c.synth.Reversal(client, doc, bs, batchID)
	}

	for _, ref := range bs.References {
		granted, err := c.store.HasStandardGrant(ctx, client.Client.ID, ref, bs.Bonus.Brand.ID)
		if err != nil {
			return nil, fmt.Errorf("check prior grant: %w", err)
		}
		if !granted {
			return nil, fmt.Errorf("%w: %s has no points for brand %s on %s",
				domain.ErrNoPriorGrant, client.Client.Code, bs.Bonus.Brand.ID, ref)
		}
	}
	return c.synth.Reversal(client, doc, bs, batchID)
}
