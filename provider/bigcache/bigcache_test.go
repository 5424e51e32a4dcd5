package bigcache

import (
	"context"
	"testing"
	"time"

	pr "github.com/unkn0wn-root/querycache/provider"
	"github.com/unkn0wn-root/querycache/provider/providertest"
)

func TestContract_BigCache(t *testing.T) {
	providertest.Run(t, func(t *testing.T) (pr.Provider, func()) {
		t.Helper()
		p, err := New(context.Background(), Config{LifeWindow: time.Minute, Shards: 16})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		return p, func() { _ = p.Close(context.Background()) }
	})
}
