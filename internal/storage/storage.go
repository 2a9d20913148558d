package storage

import (
	"context"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("cart blob not found")

// Storage keeps one opaque cart blob per key.
// Consumers define this interface, the backends only satisfy it.
type Storage interface {
	// Load returns ErrNotFound when nothing is stored under key.
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, blob []byte) error
	// Delete of an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// Key is the namespaced storage key for a cart session.
func Key(sessionID string) string {
	return fmt.Sprintf("cart:%s", sessionID)
}
