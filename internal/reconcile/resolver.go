package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/bonusledger/internal/domain"
	"github.com/opensource-finance/bonusledger/internal/repository"
)

// ResolvedClient is a registered client together with the contract that is
// in force on the processing date.
type ResolvedClient struct {
	Client   *domain.Client
	Contract *domain.Contract
}

// Resolver maps ledger client codes to registered, contracted clients.
type Resolver struct {
	store domain.CatalogueReader
}

// NewResolver creates a resolver over the catalogue store.
func NewResolver(store domain.CatalogueReader) *Resolver {
	return &Resolver{store: store}
}

// Resolution is the outcome of resolving a set of client codes.
type Resolution struct {
	Resolved     map[string]*ResolvedClient
	Unregistered []string
}

// Resolve looks each distinct code up once. Codes without a client record or
// without a contract active on asOf are reported as unregistered. Store
// failures other than not-found are returned.
func (r *Resolver) Resolve(ctx context.Context, codes []string, asOf time.Time) (*Resolution, error) {
	res := &Resolution{Resolved: make(map[string]*ResolvedClient, len(codes))}
	seen := make(map[string]bool, len(codes))

	for _, code := range codes {
		if seen[code] {
			continue
		}
		seen[code] = true

		rc, err := r.resolveOne(ctx, code, asOf)
		if errors.Is(err, domain.ErrUnregisteredClient) {
			res.Unregistered = append(res.Unregistered, code)
			continue
		}
		if err != nil {
			return nil, err
		}
		res.Resolved[code] = rc
	}
	return res, nil
}

func (r *Resolver) resolveOne(ctx context.Context, code string, asOf time.Time) (*ResolvedClient, error) {
	client, err := r.store.GetClientByCode(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnregisteredClient, code)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup client %s: %w", code, err)
	}

	contracts, err := r.store.ListContracts(ctx, client.ID)
	if err != nil {
		return nil, fmt.Errorf("list contracts for %s: %w", code, err)
	}

	contract := currentContract(contracts, asOf)
	if contract == nil {
		return nil, fmt.Errorf("%w: %s has no active contract", domain.ErrUnregisteredClient, code)
	}
	return &ResolvedClient{Client: client, Contract: contract}, nil
}

// currentContract picks the active contract with the latest start date.
func currentContract(contracts []*domain.Contract, asOf time.Time) *domain.Contract {
	var current *domain.Contract
	for _, c := range contracts {
		if !c.ActiveOn(asOf) {
			continue
		}
		if current == nil || c.ValidFrom.After(current.ValidFrom) {
			current = c
		}
	}
	return current
}
