package querycache

import (
	"context"
	"time"

	"github.com/unkn0wn-root/querycache/codec"
)

// Query is a typed view over a Cache for one payload type.
type Query[V any] struct {
	cache Cache
	codec codec.Codec[V]
}

func NewQuery[V any](c Cache, cd codec.Codec[V]) *Query[V] {
	return &Query[V]{cache: c, codec: cd}
}

// Read is Cache.Read with typed fetch and result. A cached payload that no
// longer decodes is removed and fetched again once.
func (q *Query[V]) Read(ctx context.Context, key Key, fetch func(context.Context) (V, error)) (V, error) {
	return q.read(ctx, key, fetch, func(f Fetcher) ([]byte, error) {
		return q.cache.Read(ctx, key, f)
	})
}

func (q *Query[V]) ReadWithin(ctx context.Context, key Key, fetch func(context.Context) (V, error), window time.Duration) (V, error) {
	return q.read(ctx, key, fetch, func(f Fetcher) ([]byte, error) {
		return q.cache.ReadWithin(ctx, key, f, window)
	})
}

func (q *Query[V]) Write(ctx context.Context, key Key, v V) error {
	b, err := q.codec.Encode(v)
	if err != nil {
		return err
	}
	return q.cache.Write(ctx, key, b)
}

func (q *Query[V]) read(ctx context.Context, key Key, fetch func(context.Context) (V, error), do func(Fetcher) ([]byte, error)) (V, error) {
	var zero V
	if fetch == nil {
		return zero, ErrNilFetcher
	}
	f := q.fetcher(fetch)
	b, err := do(f)
	if err != nil {
		return zero, err
	}
	v, err := q.codec.Decode(b)
	if err == nil {
		return v, nil
	}

	// undecodable entry (payload type changed); drop it and fetch fresh
	if rerr := q.cache.Remove(ctx, key); rerr != nil {
		return zero, rerr
	}
	if b, err = do(f); err != nil {
		return zero, err
	}
	return q.codec.Decode(b)
}

func (q *Query[V]) fetcher(fetch func(context.Context) (V, error)) Fetcher {
	return func(ctx context.Context) ([]byte, error) {
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		return q.codec.Encode(v)
	}
}
