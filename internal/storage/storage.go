// Package storage persists per-session state (cart lines, favorites) the way
// a browser keeps it in local storage: opaque values under string keys.
package storage

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("not found")

type KV interface {
	// Get returns ErrNotFound when the key was never written or has expired.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
