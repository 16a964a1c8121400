package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"jewelpos/backend/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), filepath.Join(t.TempDir(), "pos.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSetGetDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Set(ctx, "product:1", []byte(`{"id":"1"}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set(ctx, "product:1", []byte(`{"id":"1","name":"ring"}`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err := s.Get(ctx, "product:1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != `{"id":"1","name":"ring"}` {
		t.Fatalf("unexpected value %s", got)
	}

	if err := s.Delete(ctx, "product:1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "product:1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestScanPrefixDoesNotMatchSiblings(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_ = s.Set(ctx, "sale:b", []byte("{}"))
	_ = s.Set(ctx, "sale:a", []byte("{}"))
	_ = s.Set(ctx, "sales-report", []byte("{}"))

	entries, err := s.ScanPrefix(ctx, "sale:")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(entries) != 2 || entries[0].Key != "sale:a" || entries[1].Key != "sale:b" {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

func TestUpdateRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_ = s.Set(ctx, "product:1", []byte(`{"inStock":2}`))

	boom := errors.New("boom")
	err := s.Update(ctx, []string{"product:1"}, func(tx store.Tx) error {
		if err := tx.Set(ctx, "product:1", []byte(`{"inStock":0}`)); err != nil {
			return err
		}
		if err := tx.Set(ctx, "sale:1", []byte(`{}`)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	got, _ := s.Get(ctx, "product:1")
	if string(got) != `{"inStock":2}` {
		t.Fatalf("expected rollback, got %s", got)
	}
	if _, err := s.Get(ctx, "sale:1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected no sale, got %v", err)
	}
}

func TestDataSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "outbox.db")

	first, err := New(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := first.Set(ctx, "outbox:sale-1", []byte(`{"attempts":1}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	_ = first.Close()

	second, err := New(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()

	got, err := second.Get(ctx, "outbox:sale-1")
	if err != nil || string(got) != `{"attempts":1}` {
		t.Fatalf("expected persisted value, got %s %v", got, err)
	}
}
