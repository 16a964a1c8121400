package payment

import (
	"slices"

	"github.com/shopspring/decimal"

	"jewelpos/backend/internal/domain"
)

// Reference buy-back prices per gram in the base currency, by metal and
// fineness (parts per thousand).
var priceTable = map[domain.MetalType]map[int]decimal.Decimal{
	domain.MetalGold: {
		585: decimal.NewFromInt(1850),
		750: decimal.NewFromInt(2100),
		999: decimal.NewFromInt(2300),
	},
	domain.MetalSilver: {
		925: decimal.NewFromInt(28),
		999: decimal.NewFromInt(35),
	},
	domain.MetalPlatinum: {
		950: decimal.NewFromInt(1200),
		999: decimal.NewFromInt(1400),
	},
}

// PricePerGram looks up the table price. An unknown pair yields zero and
// found=false.
func PricePerGram(metal domain.MetalType, purity int) (price decimal.Decimal, found bool) {
	byPurity, ok := priceTable[metal]
	if !ok {
		return decimal.Zero, false
	}
	price, ok = byPurity[purity]
	if !ok {
		return decimal.Zero, false
	}
	return price, true
}

// Purities lists the fineness grades accepted for metal, ascending.
func Purities(metal domain.MetalType) []int {
	byPurity := priceTable[metal]
	out := make([]int, 0, len(byPurity))
	for p := range byPurity {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

type PriceEntry struct {
	Metal        domain.MetalType `json:"metal"`
	Purity       int              `json:"purity"`
	PricePerGram decimal.Decimal  `json:"pricePerGram"`
}

// Table flattens the price table in metal then purity order.
func Table() []PriceEntry {
	metals := []domain.MetalType{domain.MetalGold, domain.MetalSilver, domain.MetalPlatinum}
	entries := make([]PriceEntry, 0, 8)
	for _, m := range metals {
		for _, p := range Purities(m) {
			entries = append(entries, PriceEntry{Metal: m, Purity: p, PricePerGram: priceTable[m][p]})
		}
	}
	return entries
}
