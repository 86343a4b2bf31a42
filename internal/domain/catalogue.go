package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Client is a registered loyalty-programme participant.
// Owned by the registration subsystem; the engine only reads it.
type Client struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// Contract belongs to a Client and carries its BrandBonus agreements.
type Contract struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"clientId"`
	ValidFrom time.Time `json:"validFrom"`
	ValidTo   time.Time `json:"validTo,omitempty"` // zero = open-ended
	Active    bool      `json:"active"`
}

// ActiveOn reports whether the contract is in force on the given date.
func (c *Contract) ActiveOn(d time.Time) bool {
	return c.Active && withinWindow(d, c.ValidFrom, c.ValidTo)
}

// Brand identifies the goods whose item codes begin with Prefix.
type Brand struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Prefix string `json:"prefix"`
}

// BrandBonus converts turnover in one brand to points for one contract.
// Ratio 0.5 means 10 units of turnover earn 5 points.
type BrandBonus struct {
	ID         string          `json:"id"`
	ContractID string          `json:"contractId"`
	Brand      Brand           `json:"brand"`
	Name       string          `json:"name"`
	Ratio      decimal.Decimal `json:"ratio"`
	ValidFrom  time.Time       `json:"validFrom,omitempty"` // zero = unbounded
	ValidTo    time.Time       `json:"validTo,omitempty"`   // zero = unbounded
}

// ActiveOn reports whether the bonus window contains the given date.
func (b *BrandBonus) ActiveOn(d time.Time) bool {
	return withinWindow(d, b.ValidFrom, b.ValidTo)
}

// withinWindow compares at date granularity. Zero bounds are open.
func withinWindow(d, from, to time.Time) bool {
	day := truncateDay(d)
	if !from.IsZero() && day.Before(truncateDay(from)) {
		return false
	}
	if !to.IsZero() && day.After(truncateDay(to)) {
		return false
	}
	return true
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
