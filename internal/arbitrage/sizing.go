package arbitrage

import (
	"github.com/shopspring/decimal"
	"spotarb/internal/config"
)

type band struct {
	maxPrice decimal.Decimal // zero means open-ended
	amount   decimal.Decimal
}

// AmountPolicy sizes a trade in asset units from the lower of the two quoted
// prices, so the notional stays in a similar range across assets.
type AmountPolicy struct {
	bands []band
}

// NewAmountPolicy builds a policy from configured bands. The table must be
// ordered by price and must never size up as price rises.
func NewAmountPolicy(bands []config.AmountBand) (*AmountPolicy, error) {
	if err := config.ValidateBands(bands); err != nil {
		return nil, err
	}
	p := &AmountPolicy{bands: make([]band, 0, len(bands))}
	for _, b := range bands {
		p.bands = append(p.bands, band{
			maxPrice: decimal.NewFromFloat(b.MaxPrice),
			amount:   decimal.NewFromFloat(b.Amount),
		})
	}
	return p, nil
}

// Amount returns the unit count for an asset trading at price.
func (p *AmountPolicy) Amount(price decimal.Decimal) decimal.Decimal {
	for _, b := range p.bands {
		if b.maxPrice.IsZero() || price.LessThan(b.maxPrice) {
			return b.amount
		}
	}
	// closed table and price above the last breakpoint
	return p.bands[len(p.bands)-1].amount
}
