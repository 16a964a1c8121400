package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jewelpos/backend/internal/domain"
	"jewelpos/backend/internal/store"
)

func (r *Repository) CreateMovement(ctx context.Context, m domain.StockMovement) error {
	return r.create(ctx, movementKey(m.ID), m)
}

func (r *Repository) GetMovement(ctx context.Context, id string) (*domain.StockMovement, error) {
	m, err := getJSON[domain.StockMovement](ctx, r.kv, movementKey(id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("movement %s: %w", id, store.ErrNotFound)
		}
		return nil, err
	}
	return &m, nil
}

func (r *Repository) ListMovements(ctx context.Context) ([]domain.StockMovement, error) {
	return listJSON[domain.StockMovement](ctx, r.kv, store.PrefixMovement)
}

// TransitionMovement moves a pending movement to completed or cancelled.
// Completing it sets the product's storeLocation to the destination in the
// same atomic update. Movements already in a terminal state are left as they
// are and ErrConflict is returned.
func (r *Repository) TransitionMovement(ctx context.Context, id string, to domain.MovementStatus, by string, at time.Time) (*domain.StockMovement, error) {
	if to != domain.MovementCompleted && to != domain.MovementCancelled {
		return nil, fmt.Errorf("%w: status must be completed or cancelled", store.ErrInvalid)
	}

	current, err := r.GetMovement(ctx, id)
	if err != nil {
		return nil, err
	}

	var updated domain.StockMovement
	keys := []string{movementKey(id), productKey(current.ProductID)}
	err = r.kv.Update(ctx, keys, func(tx store.Tx) error {
		m, err := getJSON[domain.StockMovement](ctx, tx, movementKey(id))
		if err != nil {
			return err
		}
		if m.Status != domain.MovementPending {
			return fmt.Errorf("%w: movement %s is already %s", store.ErrConflict, id, m.Status)
		}

		if to == domain.MovementCompleted {
			product, err := getJSON[domain.Product](ctx, tx, productKey(m.ProductID))
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("product %s: %w", m.ProductID, store.ErrNotFound)
				}
				return err
			}
			product.StoreLocation = m.ToLocation
			product.UpdatedAt = &at
			if err := putJSON(ctx, tx, productKey(m.ProductID), product); err != nil {
				return err
			}
		}

		m.Status = to
		m.UpdatedAt = &at
		m.UpdatedBy = by
		updated = m
		return putJSON(ctx, tx, movementKey(id), m)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *Repository) CreateMetalTransaction(ctx context.Context, m domain.MetalTransaction) error {
	return r.create(ctx, metalKey(m.ID), m)
}

func (r *Repository) ListMetalTransactions(ctx context.Context) ([]domain.MetalTransaction, error) {
	return listJSON[domain.MetalTransaction](ctx, r.kv, store.PrefixMetal)
}
