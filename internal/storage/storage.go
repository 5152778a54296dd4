// Package storage provides the object store used as the relay mailbox.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectStore is the mailbox abstraction: a flat keyspace of JSON blobs.
// Implementations must tolerate concurrent use.
type ObjectStore interface {
	// List returns every key under prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	// Get downloads the object at key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put uploads data to key, overwriting any existing object.
	Put(ctx context.Context, key string, data []byte) error
	// Delete removes the object at key. Deleting a missing key is not an
	// error: the relay retries deletes after crashes.
	Delete(ctx context.Context, key string) error
}
