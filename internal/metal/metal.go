// Package metal builds and aggregates precious-metal ledger records.
package metal

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"jewelpos/backend/internal/domain"
	"jewelpos/backend/internal/payment"
	"jewelpos/backend/internal/store"
)

// AvgPricePlaces is the rounding applied to weighted-average prices.
const AvgPricePlaces = 2

// NewTransaction validates req and fills the derived fields. A missing price
// takes the table price for the metal and purity.
func NewTransaction(id string, req domain.MetalTransactionRequest, processedBy string, at time.Time) (domain.MetalTransaction, error) {
	if !req.MetalType.Valid() {
		return domain.MetalTransaction{}, fmt.Errorf("%w: unknown metal type %q", store.ErrInvalid, req.MetalType)
	}
	if !req.Weight.IsPositive() {
		return domain.MetalTransaction{}, fmt.Errorf("%w: weight must be positive", store.ErrInvalid)
	}
	txType := req.TransactionType
	if txType == "" {
		txType = domain.MetalPurchase
	}
	if txType != domain.MetalPurchase && txType != domain.MetalSale {
		return domain.MetalTransaction{}, fmt.Errorf("%w: transaction type must be purchase or sale", store.ErrInvalid)
	}

	var price decimal.Decimal
	if req.PricePerGram != nil {
		price = *req.PricePerGram
	} else {
		tablePrice, found := payment.PricePerGram(req.MetalType, req.Purity)
		if !found {
			return domain.MetalTransaction{}, fmt.Errorf("%w: no reference price for %s %d, pricePerGram required", store.ErrInvalid, req.MetalType, req.Purity)
		}
		price = tablePrice
	}
	if price.IsNegative() {
		return domain.MetalTransaction{}, fmt.Errorf("%w: price per gram must not be negative", store.ErrInvalid)
	}

	return domain.MetalTransaction{
		ID:              id,
		MetalType:       req.MetalType,
		Weight:          req.Weight,
		Purity:          req.Purity,
		PricePerGram:    price,
		TotalValue:      req.Weight.Mul(price),
		TransactionType: txType,
		RelatedSaleID:   req.RelatedSaleID,
		Timestamp:       at,
		ProcessedBy:     processedBy,
	}, nil
}

// FromLots turns the metal lots of a sale into purchase records linked to
// the sale. ids must hold one id per lot.
func FromLots(lots []domain.MetalLot, ids []string, saleID string, processedBy string, at time.Time) []domain.MetalTransaction {
	out := make([]domain.MetalTransaction, 0, len(lots))
	for i, lot := range lots {
		out = append(out, domain.MetalTransaction{
			ID:              ids[i],
			MetalType:       lot.Type,
			Weight:          lot.Weight,
			Purity:          lot.Purity,
			PricePerGram:    lot.PricePerGram,
			TotalValue:      lot.Value(),
			TransactionType: domain.MetalPurchase,
			RelatedSaleID:   saleID,
			Timestamp:       at,
			ProcessedBy:     processedBy,
		})
	}
	return out
}

// Summarize groups transactions by metal type. avgPrice is the
// weight-weighted mean price per gram, or zero when no weight was recorded.
func Summarize(txs []domain.MetalTransaction) map[domain.MetalType]domain.MetalAggregate {
	summary := make(map[domain.MetalType]domain.MetalAggregate)
	for _, tx := range txs {
		agg := summary[tx.MetalType]
		agg.TotalWeight = agg.TotalWeight.Add(tx.Weight)
		agg.TotalValue = agg.TotalValue.Add(tx.Weight.Mul(tx.PricePerGram))
		summary[tx.MetalType] = agg
	}
	for metalType, agg := range summary {
		if agg.TotalWeight.IsZero() {
			agg.AvgPrice = decimal.Zero
		} else {
			agg.AvgPrice = agg.TotalValue.DivRound(agg.TotalWeight, AvgPricePlaces)
		}
		summary[metalType] = agg
	}
	return summary
}
