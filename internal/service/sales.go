package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"jewelpos/backend/internal/domain"
	"jewelpos/backend/internal/payment"
	"jewelpos/backend/internal/receipt"
	"jewelpos/backend/internal/sale"
	"jewelpos/backend/internal/store"
	"jewelpos/backend/internal/xid"
)

// totalsTolerance is how far client-computed totals may drift from ours.
var totalsTolerance = decimal.RequireFromString("0.01")

// builtinServices are sold without a catalog entry and never touch stock.
var builtinServices = map[string]domain.Product{
	"repair-1": {ID: "repair-1", Name: "Ремонт прикрас", Price: decimal.NewFromInt(500), Category: domain.CategoryService},
	"resize-1": {ID: "resize-1", Name: "Зміна розміру", Price: decimal.NewFromInt(300), Category: domain.CategoryService},
}

// CreateSale records a sale assembled by an external client. Lines, totals
// and change are recomputed here; a client price overrides the catalog price
// when it is positive. Each product may appear once; quantity carries repeats.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleRequest) (sale.Outcome, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return sale.Outcome{}, fmt.Errorf("%w: sign in required", ErrForbidden)
	}
	if len(req.Items) == 0 {
		return sale.Outcome{}, sale.ErrEmptyReceipt
	}

	r := receipt.New()
	seen := make(map[string]struct{}, len(req.Items))
	for _, item := range req.Items {
		if item.Quantity < 1 {
			return sale.Outcome{}, fmt.Errorf("%w: quantity for %s must be at least 1", store.ErrInvalid, item.ProductID)
		}
		if _, dup := seen[item.ProductID]; dup {
			return sale.Outcome{}, fmt.Errorf("%w: item %s listed more than once", store.ErrInvalid, item.ProductID)
		}
		seen[item.ProductID] = struct{}{}
		product, err := s.lookupProduct(ctx, item.ProductID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			product = domain.Product{ID: item.ProductID, Name: item.ProductName, Category: domain.CategoryService}
			if !item.Price.IsPositive() {
				return sale.Outcome{}, fmt.Errorf("%w: price required for unknown item %s", store.ErrInvalid, item.ProductID)
			}
		case err != nil:
			return sale.Outcome{}, err
		}
		if item.Price.IsPositive() {
			product.Price = item.Price
		}
		if strings.TrimSpace(product.Name) == "" {
			product.Name = item.ProductID
		}
		r.AddLine(product, item.Quantity)
		if !item.Discount.IsZero() {
			r.UpdateLineDiscount(product.ID, item.Discount)
		}
	}
	r.SetReceiptDiscount(req.ReceiptDiscount)

	if id := strings.TrimSpace(req.CustomerID); id != "" {
		customer, err := s.repo.GetCustomer(ctx, id)
		if err != nil {
			return sale.Outcome{}, err
		}
		r.SetCustomer(customer)
	}

	pay, err := payment.FromDetails(req.PaymentMethod, req.PaymentDetails)
	if err != nil {
		return sale.Outcome{}, err
	}

	built, txs, err := sale.Build(r, pay, actor, xid.New("sale"), s.now())
	if err != nil {
		return sale.Outcome{}, err
	}
	if err := checkClientTotal("subtotal", req.Subtotal, built.Subtotal); err != nil {
		return sale.Outcome{}, err
	}
	if err := checkClientTotal("total", req.Total, built.Total); err != nil {
		return sale.Outcome{}, err
	}

	return s.record(ctx, built, txs)
}

func (s *Service) record(ctx context.Context, built domain.Sale, txs []domain.MetalTransaction) (sale.Outcome, error) {
	outcome, err := s.committer.Record(ctx, built, txs)
	if err != nil {
		return sale.Outcome{}, err
	}
	if outcome.Status == sale.Committed {
		s.invalidateCatalog(ctx)
	}
	s.logAudit(ctx, "sale_create", "sale", built.ID, fmt.Sprintf("status=%s,total=%s,method=%s,items=%d", outcome.Status, built.Total.StringFixed(2), built.PaymentMethod, len(built.Items)))
	return outcome, nil
}

// ListSales returns every stored sale, newest first.
func (s *Service) ListSales(ctx context.Context) ([]domain.Sale, error) {
	sales, err := s.repo.ListSales(ctx)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(sales, func(a, b domain.Sale) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return sales, nil
}

// SalesSummary aggregates sales with from <= timestamp <= to. Empty bounds
// default to the last seven days. A date-only "to" covers that whole day.
func (s *Service) SalesSummary(ctx context.Context, fromRaw string, toRaw string) (domain.SalesSummary, error) {
	now := s.now()
	from := now.Add(-7 * 24 * time.Hour)
	to := now

	if strings.TrimSpace(fromRaw) != "" {
		t, _, err := parseBound(fromRaw)
		if err != nil {
			return domain.SalesSummary{}, err
		}
		from = t
	}
	if strings.TrimSpace(toRaw) != "" {
		t, dateOnly, err := parseBound(toRaw)
		if err != nil {
			return domain.SalesSummary{}, err
		}
		if dateOnly {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		to = t
	}
	if from.After(to) {
		return domain.SalesSummary{}, fmt.Errorf("%w: from must not be after to", store.ErrInvalid)
	}

	sales, err := s.repo.ListSalesBetween(ctx, from, to)
	if err != nil {
		return domain.SalesSummary{}, err
	}

	summary := domain.SalesSummary{
		From:              from,
		To:                to,
		TotalSales:        decimal.Zero,
		TotalTransactions: len(sales),
		SalesByDate:       make(map[string]decimal.Decimal),
	}
	for _, sl := range sales {
		summary.TotalSales = summary.TotalSales.Add(sl.Total)
		day := sl.Timestamp.UTC().Format(time.DateOnly)
		summary.SalesByDate[day] = summary.SalesByDate[day].Add(sl.Total)
	}
	if len(sales) > 0 {
		summary.AvgTransactionValue = summary.TotalSales.DivRound(decimal.NewFromInt(int64(len(sales))), 2)
	}
	return summary, nil
}

// lookupProduct resolves a catalog product, then the built-in services.
func (s *Service) lookupProduct(ctx context.Context, id string) (domain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, fmt.Errorf("%w: product id required", store.ErrInvalid)
	}
	p, err := s.repo.GetProduct(ctx, id)
	if err == nil {
		return *p, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		if svc, ok := builtinServices[id]; ok {
			return svc, nil
		}
	}
	return domain.Product{}, err
}

func checkClientTotal(field string, claimed *decimal.Decimal, computed decimal.Decimal) error {
	if claimed == nil {
		return nil
	}
	if claimed.Sub(computed).Abs().GreaterThan(totalsTolerance) {
		return fmt.Errorf("%w: %s %s does not match computed %s", store.ErrInvalid, field, claimed.StringFixed(2), computed.StringFixed(2))
	}
	return nil
}

func parseBound(raw string) (time.Time, bool, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), false, nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, true, nil
	}
	return time.Time{}, false, fmt.Errorf("%w: invalid date %q (want RFC 3339 or YYYY-MM-DD)", store.ErrInvalid, raw)
}
