package ristretto

import (
	"context"
	"testing"

	pr "github.com/unkn0wn-root/querycache/provider"
	"github.com/unkn0wn-root/querycache/provider/providertest"
)

func TestContract_Ristretto(t *testing.T) {
	providertest.Run(t, func(t *testing.T) (pr.Provider, func()) {
		t.Helper()
		p, err := New(DefaultConfig())
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		return p, func() { _ = p.Close(context.Background()) }
	})
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error for zero config")
	}
}
