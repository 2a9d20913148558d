package storage

import (
	"context"
	"slices"

	"github.com/fjod/cartstore/pkg/circuitbreaker"
)

type breakerStorage struct {
	next    Storage
	breaker *circuitbreaker.Breaker
}

// WithBreaker guards a remote backend. ErrNotFound is a normal answer and
// never trips the breaker.
func WithBreaker(next Storage, cfg circuitbreaker.Config) Storage {
	cfg.Ignore = append(slices.Clone(cfg.Ignore), ErrNotFound)
	return &breakerStorage{
		next:    next,
		breaker: circuitbreaker.New(cfg),
	}
}

func (b *breakerStorage) Load(ctx context.Context, key string) ([]byte, error) {
	return circuitbreaker.Fetch(b.breaker, func() ([]byte, error) {
		return b.next.Load(ctx, key)
	})
}

func (b *breakerStorage) Save(ctx context.Context, key string, blob []byte) error {
	return b.breaker.Do(func() error {
		return b.next.Save(ctx, key, blob)
	})
}

func (b *breakerStorage) Delete(ctx context.Context, key string) error {
	return b.breaker.Do(func() error {
		return b.next.Delete(ctx, key)
	})
}
