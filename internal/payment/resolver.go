// Package payment resolves how a receipt total is settled: cash, card, a mix
// of both, or precious metal accepted in kind.
package payment

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"jewelpos/backend/internal/domain"
	"jewelpos/backend/internal/store"
)

const BaseCurrency = "UAH"

var (
	ErrLotIndex = fmt.Errorf("%w: metal lot index out of range", store.ErrInvalid)
	// ErrInsufficient is returned when the tender does not cover the total.
	ErrInsufficient = fmt.Errorf("%w: amount tendered is less than total", store.ErrInvalid)
)

// Lot is a metal lot being entered at the till.
type Lot struct {
	domain.MetalLot
	// Overridden is set once the cashier types a price directly; type or
	// purity changes then keep that price.
	Overridden bool `json:"overridden"`
	// PriceFound is false when the (type, purity) pair is not in the table.
	PriceFound bool `json:"priceFound"`
}

// LotPatch carries the fields to change; nil means unchanged.
type LotPatch struct {
	Type         *domain.MetalType
	Purity       *int
	Weight       *decimal.Decimal
	PricePerGram *decimal.Decimal
}

type Resolver struct {
	Mode         domain.PaymentMethod
	Cash         decimal.Decimal
	Card         decimal.Decimal
	Currency     string
	ExchangeRate decimal.Decimal
	lots         []Lot
}

func NewResolver(mode domain.PaymentMethod) *Resolver {
	return &Resolver{
		Mode:         mode,
		Currency:     BaseCurrency,
		ExchangeRate: decimal.NewFromInt(1),
	}
}

// Validate rejects inputs no till could produce.
func (p *Resolver) Validate() error {
	if !p.Mode.Valid() {
		return fmt.Errorf("%w: unsupported payment method %q", store.ErrInvalid, p.Mode)
	}
	if p.Cash.IsNegative() || p.Card.IsNegative() {
		return fmt.Errorf("%w: payment amounts must not be negative", store.ErrInvalid)
	}
	if !p.ExchangeRate.IsPositive() {
		return fmt.Errorf("%w: exchange rate must be positive", store.ErrInvalid)
	}
	if strings.TrimSpace(p.Currency) == "" {
		return fmt.Errorf("%w: currency required", store.ErrInvalid)
	}
	for i, lot := range p.lots {
		if !lot.Type.Valid() {
			return fmt.Errorf("%w: metal lot %d has unknown metal %q", store.ErrInvalid, i, lot.Type)
		}
		if lot.Weight.IsNegative() || lot.PricePerGram.IsNegative() {
			return fmt.Errorf("%w: metal lot %d has negative weight or price", store.ErrInvalid, i)
		}
	}
	return nil
}

// AmountTendered converts cash and card through the exchange rate. Metal is
// valued in the base currency and ignores the rate.
func (p *Resolver) AmountTendered() decimal.Decimal {
	switch p.Mode {
	case domain.PaymentCash:
		return p.Cash.Mul(p.ExchangeRate)
	case domain.PaymentCard:
		return p.Card.Mul(p.ExchangeRate)
	case domain.PaymentMixed:
		return p.Cash.Add(p.Card).Mul(p.ExchangeRate)
	case domain.PaymentMetal:
		sum := decimal.Zero
		for _, lot := range p.lots {
			sum = sum.Add(lot.Value())
		}
		return sum
	}
	return decimal.Zero
}

func (p *Resolver) Change(total decimal.Decimal) decimal.Decimal {
	change := p.AmountTendered().Sub(total)
	if change.IsNegative() {
		return decimal.Zero
	}
	return change
}

func (p *Resolver) CanComplete(total decimal.Decimal) bool {
	return p.AmountTendered().GreaterThanOrEqual(total)
}

// AddMetalLot appends a gold 585 lot at the table price with zero weight and
// returns its index.
func (p *Resolver) AddMetalLot() int {
	price, found := PricePerGram(domain.MetalGold, 585)
	p.lots = append(p.lots, Lot{
		MetalLot:   domain.MetalLot{Type: domain.MetalGold, Purity: 585, PricePerGram: price},
		PriceFound: found,
	})
	return len(p.lots) - 1
}

func (p *Resolver) UpdateMetalLot(index int, patch LotPatch) error {
	if index < 0 || index >= len(p.lots) {
		return ErrLotIndex
	}
	lot := &p.lots[index]

	if patch.Weight != nil {
		if patch.Weight.IsNegative() {
			return fmt.Errorf("%w: metal weight must not be negative", store.ErrInvalid)
		}
		lot.Weight = *patch.Weight
	}

	rederive := false
	if patch.Type != nil && *patch.Type != lot.Type {
		lot.Type = *patch.Type
		rederive = true
	}
	if patch.Purity != nil && *patch.Purity != lot.Purity {
		lot.Purity = *patch.Purity
		rederive = true
	}

	if patch.PricePerGram != nil {
		if patch.PricePerGram.IsNegative() {
			return fmt.Errorf("%w: price per gram must not be negative", store.ErrInvalid)
		}
		lot.PricePerGram = *patch.PricePerGram
		lot.Overridden = true
		_, lot.PriceFound = PricePerGram(lot.Type, lot.Purity)
		return nil
	}

	if rederive {
		table, found := PricePerGram(lot.Type, lot.Purity)
		lot.PriceFound = found
		if !lot.Overridden {
			lot.PricePerGram = table
		}
	}
	return nil
}

func (p *Resolver) RemoveMetalLot(index int) error {
	if index < 0 || index >= len(p.lots) {
		return ErrLotIndex
	}
	p.lots = append(p.lots[:index], p.lots[index+1:]...)
	return nil
}

func (p *Resolver) Lots() []Lot {
	out := make([]Lot, len(p.lots))
	copy(out, p.lots)
	return out
}

// Details is the persisted payment breakdown. Fields that do not apply to
// the mode are zeroed.
func (p *Resolver) Details() domain.PaymentDetails {
	details := domain.PaymentDetails{
		Currency:     p.Currency,
		ExchangeRate: p.ExchangeRate,
	}
	if p.Mode == domain.PaymentCash || p.Mode == domain.PaymentMixed {
		details.Cash = p.Cash
	}
	if p.Mode == domain.PaymentCard || p.Mode == domain.PaymentMixed {
		details.Card = p.Card
	}
	if p.Mode == domain.PaymentMetal {
		details.Metal = make([]domain.MetalLot, 0, len(p.lots))
		for _, lot := range p.lots {
			details.Metal = append(details.Metal, lot.MetalLot)
		}
	}
	return details
}

// FromDetails rebuilds a resolver from a posted payment breakdown. Lots
// without a price take the table price.
func FromDetails(mode domain.PaymentMethod, details domain.PaymentDetailsRequest) (*Resolver, error) {
	p := NewResolver(mode)
	p.Cash = details.Cash
	p.Card = details.Card
	if strings.TrimSpace(details.Currency) != "" {
		p.Currency = strings.ToUpper(strings.TrimSpace(details.Currency))
	}
	if !details.ExchangeRate.IsZero() {
		p.ExchangeRate = details.ExchangeRate
	}
	for _, lot := range details.Metal {
		if err := p.AddLot(lot); err != nil {
			return nil, err
		}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// AddLot appends a lot with the given fields. A nil price takes the table
// price for the pair.
func (p *Resolver) AddLot(in domain.MetalLotInput) error {
	return p.addLot(in.Type, in.Purity, in.Weight, in.PricePerGram)
}

func (p *Resolver) addLot(metal domain.MetalType, purity int, weight decimal.Decimal, price *decimal.Decimal) error {
	if !metal.Valid() {
		return fmt.Errorf("%w: unknown metal %q", store.ErrInvalid, metal)
	}
	idx := p.AddMetalLot()
	err := p.UpdateMetalLot(idx, LotPatch{Type: &metal, Purity: &purity, Weight: &weight, PricePerGram: price})
	if err != nil {
		_ = p.RemoveMetalLot(idx)
		return err
	}
	return nil
}
