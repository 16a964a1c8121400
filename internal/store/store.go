package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid request")
	ErrConflict = errors.New("conflict")
)

// Key prefixes shared by every backend.
const (
	PrefixProduct  = "product:"
	PrefixCustomer = "customer:"
	PrefixSale     = "sale:"
	PrefixMovement = "movement:"
	PrefixMetal    = "metal:"
	PrefixUser     = "user:"
	PrefixAudit    = "audit:"
	PrefixOutbox   = "outbox:"
	KeySettings    = "system:settings"
)

type Entry struct {
	Key   string
	Value []byte
}

// Tx is the read/write view handed to an Update callback. Get returns
// ErrNotFound for absent keys.
type Tx interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// KV is a string-keyed byte store. Outside Update, Set and Delete apply
// immediately. ScanPrefix returns entries ordered by key.
//
// Update runs fn against a consistent view and applies every write it makes
// atomically, or none of them when fn or the commit fails. keys names the
// records fn intends to read-modify-write; backends use it to lock or watch
// them for the duration of the callback.
type KV interface {
	Tx
	ScanPrefix(ctx context.Context, prefix string) ([]Entry, error)
	Update(ctx context.Context, keys []string, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}
