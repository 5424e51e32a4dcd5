package querycache

import (
	"context"
	"testing"

	"github.com/unkn0wn-root/querycache/codec"
)

type trek struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}

func TestQueryReadAndWrite(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, newMemProvider(), nil)
	q := NewQuery[trek](cc, codec.JSON[trek]{})
	k := MustKey("trek", Params{"id": 7})

	calls := 0
	fetch := func(context.Context) (trek, error) {
		calls++
		return trek{ID: 7, Title: "Annapurna Circuit"}, nil
	}
	for range 2 {
		got, err := q.Read(ctx, k, fetch)
		if err != nil || got.Title != "Annapurna Circuit" {
			t.Fatalf("Read: %+v err=%v", got, err)
		}
	}
	if calls != 1 {
		t.Fatalf("fetch calls: %d", calls)
	}

	if err := q.Write(ctx, k, trek{ID: 7, Title: "Annapurna Base Camp"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := q.Read(ctx, k, fetch)
	if got.Title != "Annapurna Base Camp" || calls != 1 {
		t.Fatalf("after write: %+v calls=%d", got, calls)
	}
}

func TestQueryUndecodableEntryIsRefetched(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, newMemProvider(), nil)
	k := MustKey("trek", Params{"id": 2})
	if err := cc.Write(ctx, k, []byte("not json")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	q := NewQuery[trek](cc, codec.JSON[trek]{})
	got, err := q.Read(ctx, k, func(context.Context) (trek, error) {
		return trek{ID: 2, Title: "Kedarkantha"}, nil
	})
	if err != nil || got.Title != "Kedarkantha" {
		t.Fatalf("Read: %+v err=%v", got, err)
	}
	if e := mustPeek(t, cc, k); string(e.Payload) != `{"id":2,"title":"Kedarkantha"}` {
		t.Fatalf("entry not replaced: %s", e.Payload)
	}
}
