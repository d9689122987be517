// Package blobstore keeps large sealed storage values out of the database.
// Callers hand it ciphertext only.
package blobstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	// Get returns common.ErrorNotFound for a missing key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete ignores missing keys.
	Delete(ctx context.Context, keys ...string) error
}

// NewKey returns a fresh object key under the namespace prefix.
func NewKey(namespace string) string {
	d := time.Now().UTC()
	return fmt.Sprintf("ns/%s/%d/%02d/%02d/%s", namespace, d.Year(), d.Month(), d.Day(), uuid.New())
}
