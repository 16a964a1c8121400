package sale

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"jewelpos/backend/internal/domain"
	"jewelpos/backend/internal/store"
)

// Outbox holds sales whose recording failed.
type Outbox interface {
	Enqueue(ctx context.Context, entry domain.OutboxEntry) error
	Pending(ctx context.Context) ([]domain.OutboxEntry, error)
	MarkFailed(ctx context.Context, saleID string, cause error, at time.Time) error
	Remove(ctx context.Context, saleID string) error
}

// KVOutbox keeps entries in their own KV store, normally a local SQLite file
// so a failing primary store does not take the queue down with it.
type KVOutbox struct {
	kv store.KV
}

func NewKVOutbox(kv store.KV) *KVOutbox {
	return &KVOutbox{kv: kv}
}

func outboxKey(saleID string) string {
	return store.PrefixOutbox + saleID
}

func (o *KVOutbox) Enqueue(ctx context.Context, entry domain.OutboxEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return o.kv.Set(ctx, outboxKey(entry.Sale.ID), raw)
}

func (o *KVOutbox) Pending(ctx context.Context) ([]domain.OutboxEntry, error) {
	entries, err := o.kv.ScanPrefix(ctx, store.PrefixOutbox)
	if err != nil {
		return nil, err
	}
	out := make([]domain.OutboxEntry, 0, len(entries))
	for _, e := range entries {
		var entry domain.OutboxEntry
		if err := json.Unmarshal(e.Value, &entry); err != nil {
			log.Printf("[outbox] WARN skipping undecodable entry %s: %v", e.Key, err)
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func (o *KVOutbox) MarkFailed(ctx context.Context, saleID string, cause error, at time.Time) error {
	key := outboxKey(saleID)
	return o.kv.Update(ctx, []string{key}, func(tx store.Tx) error {
		raw, err := tx.Get(ctx, key)
		if err != nil {
			return err
		}
		var entry domain.OutboxEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		entry.Attempts++
		entry.LastError = cause.Error()
		entry.LastTryAt = &at
		updated, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return tx.Set(ctx, key, updated)
	})
}

func (o *KVOutbox) Remove(ctx context.Context, saleID string) error {
	err := o.kv.Delete(ctx, outboxKey(saleID))
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}
