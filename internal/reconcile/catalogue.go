package reconcile

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/opensource-finance/bonusledger/internal/domain"
)

// Catalogue returns the bonus agreements a client earns points under.
type Catalogue struct {
	store domain.CatalogueReader
}

// NewCatalogue creates a catalogue lookup over the store.
func NewCatalogue(store domain.CatalogueReader) *Catalogue {
	return &Catalogue{store: store}
}

// Lookup returns the prefix table of the contract's bonuses active on asOf.
// An empty set yields ErrNoActiveBonus.
func (c *Catalogue) Lookup(ctx context.Context, contract *domain.Contract, asOf time.Time) (*PrefixTable, error) {
	bonuses, err := c.store.ListBrandBonuses(ctx, contract.ID)
	if err != nil {
		return nil, fmt.Errorf("list bonuses for contract %s: %w", contract.ID, err)
	}

	active := make([]*domain.BrandBonus, 0, len(bonuses))
	for _, b := range bonuses {
		if b.ActiveOn(asOf) {
			active = append(active, b)
		}
	}
	if len(active) == 0 {
		return nil, domain.ErrNoActiveBonus
	}
	return NewPrefixTable(active), nil
}

// PrefixTable resolves item codes to brand bonuses by longest prefix.
type PrefixTable struct {
	byPrefix map[string][]*domain.BrandBonus
	lengths  []int // distinct prefix lengths, longest first
	size     int
}

// NewPrefixTable builds a table from a set of bonuses. Bonuses whose brand
// has an empty prefix are ignored.
func NewPrefixTable(bonuses []*domain.BrandBonus) *PrefixTable {
	t := &PrefixTable{byPrefix: make(map[string][]*domain.BrandBonus)}
	lengths := make(map[int]bool)

	for _, b := range bonuses {
		prefix := strings.TrimSpace(b.Brand.Prefix)
		if prefix == "" {
			continue
		}
		t.byPrefix[prefix] = append(t.byPrefix[prefix], b)
		lengths[len(prefix)] = true
		t.size++
	}

	for l := range lengths {
		t.lengths = append(t.lengths, l)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(t.lengths)))
	return t
}

// Len returns the number of matchable bonuses.
func (t *PrefixTable) Len() int {
	return t.size
}

// Match returns the bonus whose brand prefix is the longest prefix of
// itemCode. Two different brands sharing that prefix is ErrAmbiguousPrefix;
// no match is ErrNoPrefixMatch.
func (t *PrefixTable) Match(itemCode string) (*domain.BrandBonus, error) {
	for _, l := range t.lengths {
		if l > len(itemCode) {
			continue
		}
		candidates, ok := t.byPrefix[itemCode[:l]]
		if !ok {
			continue
		}
		if distinctBrands(candidates) > 1 {
			return nil, fmt.Errorf("%w: %q matches %s", domain.ErrAmbiguousPrefix, itemCode, brandNames(candidates))
		}
		return candidates[0], nil
	}
	return nil, domain.ErrNoPrefixMatch
}

func distinctBrands(bonuses []*domain.BrandBonus) int {
	ids := make(map[string]bool, len(bonuses))
	for _, b := range bonuses {
		ids[b.Brand.ID] = true
	}
	return len(ids)
}

func brandNames(bonuses []*domain.BrandBonus) string {
	names := make([]string, len(bonuses))
	for i, b := range bonuses {
		names[i] = b.Brand.Name
		if names[i] == "" {
			names[i] = b.Brand.ID
		}
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
