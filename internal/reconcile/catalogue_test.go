package reconcile

import (
	"errors"
	"math"
	"testing"

	"github.com/opensource-finance/bonusledger/internal/domain"
	"github.com/shopspring/decimal"
)

func bonus(brandID, prefix, ratio string) *domain.BrandBonus {
	return &domain.BrandBonus{
		ID:    "bb-" + brandID,
		Brand: domain.Brand{ID: brandID, Name: brandID, Prefix: prefix},
		Ratio: decimal.RequireFromString(ratio),
	}
}

func TestPrefixTableMatch(t *testing.T) {
	table := NewPrefixTable([]*domain.BrandBonus{
		bonus("br1", "BR1", "1"),
		bonus("br1a", "BR1A", "1"),
		bonus("br2", "BR2", "0.5"),
		bonus("dup-a", "DUP", "1"),
		bonus("dup-b", "DUP", "1"),
		bonus("dupx", "DUPX", "1"),
		bonus("empty", "", "1"),
	})

	if table.Len() != 6 {
		t.Errorf("expected 6 matchable bonuses, got %d", table.Len())
	}

	tests := []struct {
		name  string
		code  string
		brand string
		err   error
	}{
		{"ShortPrefix", "BR1-100", "br1", nil},
		{"LongestPrefixWins", "BR1A-777", "br1a", nil},
		{"OtherBrand", "BR2-200", "br2", nil},
		{"ExactPrefix", "BR2", "br2", nil},
		{"NoMatch", "XX-999", "", domain.ErrNoPrefixMatch},
		{"EmptyCode", "", "", domain.ErrNoPrefixMatch},
		{"CaseSensitive", "br1-100", "", domain.ErrNoPrefixMatch},
		{"Ambiguous", "DUP-1", "", domain.ErrAmbiguousPrefix},
		{"LongerPrefixResolvesAmbiguity", "DUPX-1", "dupx", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := table.Match(tt.code)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("expected %v, got %v", tt.err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Brand.ID != tt.brand {
				t.Errorf("expected brand %s, got %s", tt.brand, got.Brand.ID)
			}
		})
	}
}

func TestPoints(t *testing.T) {
	tests := []struct {
		value, ratio string
		want         int64
	}{
		{"50", "1.0", 50},
		{"30", "0.5", 15},
		{"25", "0.5", 13},
		{"24.9", "0.5", 12},
		{"-25", "0.5", -13},
		{"0.4", "1", 0},
		{"1000.50", "0.05", 50},
		{"1010", "0.05", 51},
		{"9223372036854775807", "1", math.MaxInt64},
		{"-9223372036854775808", "1", math.MinInt64},
	}
	for _, tt := range tests {
		got, err := Points(decimal.RequireFromString(tt.value), decimal.RequireFromString(tt.ratio))
		if err != nil {
			t.Errorf("Points(%s, %s) unexpected error: %v", tt.value, tt.ratio, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Points(%s, %s) = %d, want %d", tt.value, tt.ratio, got, tt.want)
		}
	}

	t.Run("OutOfRange", func(t *testing.T) {
		for _, v := range []string{
			"9223372036854775808",
			"18446744073709551617",
			"100000000000000000000",
			"-9223372036854775809",
			"9223372036854775807.5",
		} {
			got, err := Points(decimal.RequireFromString(v), decimal.NewFromInt(1))
			if !errors.Is(err, domain.ErrPointsOutOfRange) {
				t.Errorf("Points(%s) = %d, %v; want ErrPointsOutOfRange", v, got, err)
			}
		}
	})
}

func TestCurrentContract(t *testing.T) {
	contracts := []*domain.Contract{
		{ID: "expired", ValidFrom: date(2020, 1, 1), ValidTo: date(2023, 12, 31), Active: true},
		{ID: "older", ValidFrom: date(2022, 1, 1), Active: true},
		{ID: "newer", ValidFrom: date(2024, 1, 1), Active: true},
		{ID: "future", ValidFrom: date(2025, 1, 1), Active: true},
		{ID: "disabled", ValidFrom: date(2024, 3, 1), Active: false},
	}

	got := currentContract(contracts, testAsOf)
	if got == nil || got.ID != "newer" {
		t.Fatalf("expected contract 'newer', got %+v", got)
	}

	if got := currentContract(contracts[:1], testAsOf); got != nil {
		t.Errorf("expired contract must not be current, got %s", got.ID)
	}
}
