package repository

import (
	"context"
	"errors"
	"fmt"

	"jewelpos/backend/internal/domain"
	"jewelpos/backend/internal/store"
)

func (r *Repository) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return listJSON[domain.Product](ctx, r.kv, store.PrefixProduct)
}

func (r *Repository) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := getJSON[domain.Product](ctx, r.kv, productKey(id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("product %s: %w", id, store.ErrNotFound)
		}
		return nil, err
	}
	return &p, nil
}

func (r *Repository) CreateProduct(ctx context.Context, p domain.Product) error {
	return r.create(ctx, productKey(p.ID), p)
}

func (r *Repository) UpdateProduct(ctx context.Context, id string, fn func(*domain.Product) error) (*domain.Product, error) {
	p, err := modify(ctx, r.kv, productKey(id), fn)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("product %s: %w", id, store.ErrNotFound)
	}
	return p, err
}

func (r *Repository) DeleteProduct(ctx context.Context, id string) error {
	key := productKey(id)
	return r.kv.Update(ctx, []string{key}, func(tx store.Tx) error {
		if _, err := tx.Get(ctx, key); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("product %s: %w", id, store.ErrNotFound)
			}
			return err
		}
		return tx.Delete(ctx, key)
	})
}

func (r *Repository) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return listJSON[domain.Customer](ctx, r.kv, store.PrefixCustomer)
}

func (r *Repository) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	c, err := getJSON[domain.Customer](ctx, r.kv, customerKey(id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("customer %s: %w", id, store.ErrNotFound)
		}
		return nil, err
	}
	return &c, nil
}

func (r *Repository) CreateCustomer(ctx context.Context, c domain.Customer) error {
	return r.create(ctx, customerKey(c.ID), c)
}

func (r *Repository) UpdateCustomer(ctx context.Context, id string, fn func(*domain.Customer) error) (*domain.Customer, error) {
	c, err := modify(ctx, r.kv, customerKey(id), fn)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("customer %s: %w", id, store.ErrNotFound)
	}
	return c, err
}
