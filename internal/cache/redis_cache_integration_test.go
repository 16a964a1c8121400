package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"jewelpos/backend/internal/domain"
)

func TestRedisCatalogCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("POS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("POS_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	c := NewRedisCatalogCache(addr, "", 0, time.Minute)
	t.Cleanup(func() { _ = c.Close() })
	if err := c.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	_ = c.Invalidate(ctx)

	if _, ok, err := c.GetProducts(ctx); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	products := []domain.Product{{ID: "1", Name: "ring", Price: decimal.RequireFromString("25000.50"), InStock: 2}}
	if err := c.SetProducts(ctx, products); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := c.GetProducts(ctx)
	if err != nil || !ok || len(got) != 1 || !got[0].Price.Equal(products[0].Price) {
		t.Fatalf("unexpected cached products %+v ok=%v err=%v", got, ok, err)
	}
	if err := c.Invalidate(ctx); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, ok, _ := c.GetProducts(ctx); ok {
		t.Fatalf("expected miss after invalidate")
	}
}

func TestNoopCatalogCacheAlwaysMisses(t *testing.T) {
	var c CatalogCache = NoopCatalogCache{}
	_ = c.SetProducts(context.Background(), []domain.Product{{ID: "1"}})
	if _, ok, err := c.GetProducts(context.Background()); ok || err != nil {
		t.Fatalf("noop cache must miss, got ok=%v err=%v", ok, err)
	}
}
