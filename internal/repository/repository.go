// Package repository stores the POS records as JSON documents in a KV store.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"jewelpos/backend/internal/store"
)

type Repository struct {
	kv store.KV
}

func New(kv store.KV) *Repository {
	return &Repository{kv: kv}
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.kv.Ping(ctx)
}

func productKey(id string) string  { return store.PrefixProduct + id }
func customerKey(id string) string { return store.PrefixCustomer + id }
func saleKey(id string) string     { return store.PrefixSale + id }
func movementKey(id string) string { return store.PrefixMovement + id }
func metalKey(id string) string    { return store.PrefixMetal + id }
func auditKey(id string) string    { return store.PrefixAudit + id }

func getJSON[T any](ctx context.Context, tx store.Tx, key string) (T, error) {
	var out T
	raw, err := tx.Get(ctx, key)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode %s: %w", key, err)
	}
	return out, nil
}

func putJSON(ctx context.Context, tx store.Tx, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return tx.Set(ctx, key, raw)
}

func listJSON[T any](ctx context.Context, kv store.KV, prefix string) ([]T, error) {
	entries, err := kv.ScanPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(entries))
	for _, entry := range entries {
		var item T
		if err := json.Unmarshal(entry.Value, &item); err != nil {
			return nil, fmt.Errorf("decode %s: %w", entry.Key, err)
		}
		out = append(out, item)
	}
	return out, nil
}

// create stores value under key, failing with ErrConflict when the key is
// already taken.
func (r *Repository) create(ctx context.Context, key string, value any) error {
	return r.kv.Update(ctx, []string{key}, func(tx store.Tx) error {
		if _, err := tx.Get(ctx, key); err == nil {
			return fmt.Errorf("%w: %s already exists", store.ErrConflict, key)
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return putJSON(ctx, tx, key, value)
	})
}

// modify applies fn to the stored record under key inside one atomic update.
func modify[T any](ctx context.Context, kv store.KV, key string, fn func(*T) error) (*T, error) {
	var updated T
	err := kv.Update(ctx, []string{key}, func(tx store.Tx) error {
		current, err := getJSON[T](ctx, tx, key)
		if err != nil {
			return err
		}
		if err := fn(&current); err != nil {
			return err
		}
		updated = current
		return putJSON(ctx, tx, key, current)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}
