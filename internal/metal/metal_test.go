package metal

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"jewelpos/backend/internal/domain"
	"jewelpos/backend/internal/store"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestSummarizeWeightedAverage(t *testing.T) {
	txs := []domain.MetalTransaction{
		{MetalType: domain.MetalGold, Weight: dec("10"), PricePerGram: dec("1850")},
		{MetalType: domain.MetalGold, Weight: dec("5"), PricePerGram: dec("2100")},
		{MetalType: domain.MetalSilver, Weight: dec("100"), PricePerGram: dec("28")},
	}

	summary := Summarize(txs)
	gold := summary[domain.MetalGold]
	if !gold.TotalValue.Equal(dec("29000")) {
		t.Fatalf("expected total value 29000, got %s", gold.TotalValue)
	}
	if !gold.TotalWeight.Equal(dec("15")) {
		t.Fatalf("expected total weight 15, got %s", gold.TotalWeight)
	}
	if !gold.AvgPrice.Equal(dec("1933.33")) {
		t.Fatalf("expected avg 1933.33, got %s", gold.AvgPrice)
	}
	if !summary[domain.MetalSilver].AvgPrice.Equal(dec("28")) {
		t.Fatalf("expected silver avg 28, got %s", summary[domain.MetalSilver].AvgPrice)
	}
	if _, ok := summary[domain.MetalPlatinum]; ok {
		t.Fatalf("platinum has no transactions and must be absent")
	}
}

func TestSummarizeZeroWeightYieldsZeroAverage(t *testing.T) {
	summary := Summarize([]domain.MetalTransaction{
		{MetalType: domain.MetalPlatinum, Weight: decimal.Zero, PricePerGram: dec("1200")},
	})
	if !summary[domain.MetalPlatinum].AvgPrice.IsZero() {
		t.Fatalf("expected zero average, got %s", summary[domain.MetalPlatinum].AvgPrice)
	}
	if len(Summarize(nil)) != 0 {
		t.Fatalf("expected empty summary")
	}
}

func TestNewTransactionUsesTablePriceWhenMissing(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tx, err := NewTransaction("metal-1", domain.MetalTransactionRequest{
		MetalType: domain.MetalGold,
		Weight:    dec("2"),
		Purity:    750,
	}, "user-1", at)
	if err != nil {
		t.Fatalf("new transaction: %v", err)
	}
	if !tx.PricePerGram.Equal(dec("2100")) || !tx.TotalValue.Equal(dec("4200")) {
		t.Fatalf("unexpected pricing %+v", tx)
	}
	if tx.TransactionType != domain.MetalPurchase {
		t.Fatalf("expected default purchase type, got %s", tx.TransactionType)
	}
}

func TestNewTransactionRejectsInvalidInput(t *testing.T) {
	cases := []domain.MetalTransactionRequest{
		{MetalType: "bronze", Weight: dec("1"), Purity: 585},
		{MetalType: domain.MetalGold, Weight: dec("0"), Purity: 585},
		{MetalType: domain.MetalGold, Weight: dec("1"), Purity: 123},
		{MetalType: domain.MetalGold, Weight: dec("1"), Purity: 585, TransactionType: "swap"},
	}
	for i, req := range cases {
		if _, err := NewTransaction("m", req, "u", time.Now()); !errors.Is(err, store.ErrInvalid) {
			t.Fatalf("case %d: expected invalid error, got %v", i, err)
		}
	}
}

func TestFromLotsLinksSale(t *testing.T) {
	lots := []domain.MetalLot{
		{Type: domain.MetalGold, Purity: 585, Weight: dec("3"), PricePerGram: dec("1850")},
		{Type: domain.MetalSilver, Purity: 925, Weight: dec("10"), PricePerGram: dec("28")},
	}
	txs := FromLots(lots, []string{"m1", "m2"}, "sale-1", "cashier", time.Now())
	if len(txs) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txs))
	}
	for _, tx := range txs {
		if tx.RelatedSaleID != "sale-1" || tx.TransactionType != domain.MetalPurchase {
			t.Fatalf("unexpected transaction %+v", tx)
		}
	}
	if !txs[0].TotalValue.Equal(dec("5550")) {
		t.Fatalf("expected 5550, got %s", txs[0].TotalValue)
	}
}
