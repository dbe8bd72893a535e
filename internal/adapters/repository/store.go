// Package repository provides the key-value persistence capability used by
// the calibration store and the local metric override.
//
// Every store is bound to a scope (for example "device") so that different
// owners never collide on keys. Values are opaque bytes; callers own the
// encoding.
package repository

import (
	"strings"

	"github.com/okian/oratio/internal/domain/model"
)

var (
	_ model.KeyValueStore = (*MemoryStore)(nil)
	_ model.KeyValueStore = (*FileStore)(nil)
	_ model.KeyValueStore = (*PostgresStore)(nil)
)

func validKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	return nil
}
