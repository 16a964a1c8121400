package xid

import (
	"github.com/google/uuid"
)

// New returns prefix-<uuid>. Version 7 UUIDs sort by creation time, so keys
// built from them list in insertion order.
func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		return prefix + "-" + uuid.NewString()
	}
	return prefix + "-" + id.String()
}
