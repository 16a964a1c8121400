package redis

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"jewelpos/backend/internal/store"
)

const (
	maxWatchRetries = 10
	scanBatch       = 500
)

// Store maps the KV contract onto Redis strings. Update uses WATCH/MULTI and
// retries when a watched key changes before EXEC.
type Store struct {
	client    *goredis.Client
	namespace string
}

func New(ctx context.Context, addr string, password string, db int, namespace string) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &Store{client: client, namespace: namespace}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) key(k string) string {
	return s.namespace + k
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	return readKey(ctx, s.client, s.key(key))
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.client.Set(ctx, s.key(key), value, 0).Err()
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

func (s *Store) ScanPrefix(ctx context.Context, prefix string) ([]store.Entry, error) {
	keys := make([]string, 0, 64)
	iter := s.client.Scan(ctx, 0, s.key(prefix)+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	slices.Sort(keys)
	keys = slices.Compact(keys)

	entries := make([]store.Entry, 0, len(keys))
	for start := 0; start < len(keys); start += scanBatch {
		end := min(start+scanBatch, len(keys))
		values, err := s.client.MGet(ctx, keys[start:end]...).Result()
		if err != nil {
			return nil, err
		}
		for i, raw := range values {
			str, ok := raw.(string)
			if !ok {
				// deleted between SCAN and MGET
				continue
			}
			entries = append(entries, store.Entry{
				Key:   strings.TrimPrefix(keys[start+i], s.namespace),
				Value: []byte(str),
			})
		}
	}
	return entries, nil
}

func (s *Store) Update(ctx context.Context, keys []string, fn func(tx store.Tx) error) error {
	watched := make([]string, 0, len(keys))
	for _, k := range keys {
		watched = append(watched, s.key(k))
	}

	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err := s.client.Watch(ctx, func(rtx *goredis.Tx) error {
			tx := &watchTx{store: s, rtx: rtx, writes: make(map[string][]byte), deletes: make(map[string]bool)}
			if err := fn(tx); err != nil {
				return err
			}
			if len(tx.writes) == 0 && len(tx.deletes) == 0 {
				return nil
			}
			_, err := rtx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				for k, v := range tx.writes {
					pipe.Set(ctx, k, v, 0)
				}
				for k := range tx.deletes {
					pipe.Del(ctx, k)
				}
				return nil
			})
			return err
		}, watched...)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("redis update: %w after %d attempts", store.ErrConflict, maxWatchRetries)
}

// watchTx buffers writes until EXEC; reads go through the watching connection
// and see buffered writes first.
type watchTx struct {
	store   *Store
	rtx     *goredis.Tx
	writes  map[string][]byte
	deletes map[string]bool
}

func (t *watchTx) Get(ctx context.Context, key string) ([]byte, error) {
	full := t.store.key(key)
	if t.deletes[full] {
		return nil, store.ErrNotFound
	}
	if val, ok := t.writes[full]; ok {
		return slices.Clone(val), nil
	}
	return readKey(ctx, t.rtx, full)
}

func (t *watchTx) Set(_ context.Context, key string, value []byte) error {
	full := t.store.key(key)
	delete(t.deletes, full)
	t.writes[full] = slices.Clone(value)
	return nil
}

func (t *watchTx) Delete(_ context.Context, key string) error {
	full := t.store.key(key)
	delete(t.writes, full)
	t.deletes[full] = true
	return nil
}

type getter interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
}

func readKey(ctx context.Context, c getter, key string) ([]byte, error) {
	val, err := c.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}
