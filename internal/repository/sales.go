package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jewelpos/backend/internal/domain"
	"jewelpos/backend/internal/store"
)

// RecordSale stores sale together with its effects in one atomic update:
// stock of every sold product drops by the sold quantity (floored at zero,
// unknown products such as services are skipped), the customer's
// totalPurchases grows by the sale total, and every metal transaction is
// appended. Stock and totals are read inside the update, so concurrent sales
// each apply against the latest stored values.
//
// Recording is idempotent by sale id: when the sale is already stored
// nothing changes and applied is false.
func (r *Repository) RecordSale(ctx context.Context, sale domain.Sale, metal []domain.MetalTransaction) (applied bool, err error) {
	if sale.ID == "" {
		return false, fmt.Errorf("%w: sale id required", store.ErrInvalid)
	}

	qtyByProduct := make(map[string]int, len(sale.Items))
	order := make([]string, 0, len(sale.Items))
	for _, item := range sale.Items {
		if _, seen := qtyByProduct[item.ProductID]; !seen {
			order = append(order, item.ProductID)
		}
		qtyByProduct[item.ProductID] += item.Quantity
	}

	keys := []string{saleKey(sale.ID)}
	for _, id := range order {
		keys = append(keys, productKey(id))
	}
	if sale.CustomerID != "" {
		keys = append(keys, customerKey(sale.CustomerID))
	}
	for _, m := range metal {
		keys = append(keys, metalKey(m.ID))
	}

	err = r.kv.Update(ctx, keys, func(tx store.Tx) error {
		applied = false
		if _, err := tx.Get(ctx, saleKey(sale.ID)); err == nil {
			return nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		now := sale.Timestamp
		for _, id := range order {
			product, err := getJSON[domain.Product](ctx, tx, productKey(id))
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			product.InStock = max(0, product.InStock-qtyByProduct[id])
			product.UpdatedAt = &now
			if err := putJSON(ctx, tx, productKey(id), product); err != nil {
				return err
			}
		}

		if sale.CustomerID != "" {
			customer, err := getJSON[domain.Customer](ctx, tx, customerKey(sale.CustomerID))
			switch {
			case errors.Is(err, store.ErrNotFound):
			case err != nil:
				return err
			default:
				customer.TotalPurchases = customer.TotalPurchases.Add(sale.Total)
				customer.UpdatedAt = &now
				if err := putJSON(ctx, tx, customerKey(sale.CustomerID), customer); err != nil {
					return err
				}
			}
		}

		for _, m := range metal {
			if err := putJSON(ctx, tx, metalKey(m.ID), m); err != nil {
				return err
			}
		}

		if err := putJSON(ctx, tx, saleKey(sale.ID), sale); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

func (r *Repository) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	s, err := getJSON[domain.Sale](ctx, r.kv, saleKey(id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("sale %s: %w", id, store.ErrNotFound)
		}
		return nil, err
	}
	return &s, nil
}

func (r *Repository) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return listJSON[domain.Sale](ctx, r.kv, store.PrefixSale)
}

// ListSalesBetween returns sales with from <= timestamp <= to.
func (r *Repository) ListSalesBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	all, err := r.ListSales(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Sale, 0, len(all))
	for _, s := range all {
		if s.Timestamp.Before(from) || s.Timestamp.After(to) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}
