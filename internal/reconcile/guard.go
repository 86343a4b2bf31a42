package reconcile

import (
	"context"

	"github.com/opensource-finance/bonusledger/internal/domain"
)

// Guard gates transaction writes on fingerprint uniqueness. The check and the
// insert are one statement inside the store, so concurrent runs in different
// processes cannot both write the same fingerprint.
type Guard struct {
	store domain.TransactionStore
}

// NewGuard creates a guard over the transaction store.
func NewGuard(store domain.TransactionStore) *Guard {
	return &Guard{store: store}
}

// CommitResult splits a document's candidates by outcome.
type CommitResult struct {
	Created    []*domain.PointsTransaction
	Duplicates []*domain.PointsTransaction
}

// Commit writes one document's candidates atomically. On error nothing of
// the document is written.
func (g *Guard) Commit(ctx context.Context, candidates []*domain.PointsTransaction) (*CommitResult, error) {
	res := &CommitResult{}
	if len(candidates) == 0 {
		return res, nil
	}

	inserted, err := g.store.CommitDocument(ctx, candidates)
	if err != nil {
		return nil, err
	}
	for i, tx := range candidates {
		if inserted[i] {
			res.Created = append(res.Created, tx)
		} else {
			res.Duplicates = append(res.Duplicates, tx)
		}
	}
	return res, nil
}
