// Package providertest holds the behavioural contract every provider.Provider
// adapter must satisfy.
package providertest

import (
	"bytes"
	"context"
	"testing"
	"time"

	pr "github.com/unkn0wn-root/querycache/provider"
)

type CleanupFunc = func()

type Factory func(t *testing.T) (pr.Provider, CleanupFunc)

// Run exercises miss, byte-transparent round trip, overwrite, delete and
// delete-of-missing semantics.
func Run(t *testing.T, newProvider Factory) {
	t.Helper()
	ctx := context.Background()

	p, cleanup := newProvider(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	const key = "q:test:bookings:{}"

	if _, ok, err := p.Get(ctx, key); err != nil || ok {
		t.Fatalf("Get on empty store: ok=%v err=%v", ok, err)
	}

	val := []byte{0x00, 'Q', 'C', 0xff, 0x10}
	if ok, err := p.Set(ctx, key, val, int64(len(val)), time.Minute); err != nil || !ok {
		t.Fatalf("Set: ok=%v err=%v", ok, err)
	}
	got, ok, err := p.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Get after Set: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(got, val) {
		t.Fatalf("provider is not byte transparent: got %x want %x", got, val)
	}

	next := []byte("second")
	if _, err := p.Set(ctx, key, next, int64(len(next)), time.Minute); err != nil {
		t.Fatalf("overwrite Set: %v", err)
	}
	if got, ok, _ := p.Get(ctx, key); !ok || !bytes.Equal(got, next) {
		t.Fatalf("overwrite not visible: ok=%v got=%q", ok, got)
	}

	if err := p.Del(ctx, key); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, ok, _ := p.Get(ctx, key); ok {
		t.Fatalf("entry still present after Del")
	}
	if err := p.Del(ctx, "q:test:never-written"); err != nil {
		t.Fatalf("Del of a missing key must not fail: %v", err)
	}
}
