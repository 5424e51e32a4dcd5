package zap

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/unkn0wn-root/querycache"
)

func TestLoggerWritesLevelsAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(zap.New(core))

	l.Debug("family invalidated", querycache.Fields{"family": "bookings", "seq": uint64(4)})
	l.Warn("background revalidation failed", querycache.Fields{"key": "q:s:trek:", "err": errors.New("offline")})

	entries := logs.AllUntimed()
	if len(entries) != 2 {
		t.Fatalf("entries: got %d want 2", len(entries))
	}
	if entries[0].Level != zapcore.DebugLevel || entries[0].LoggerName != "querycache" {
		t.Fatalf("first entry: level=%v name=%q", entries[0].Level, entries[0].LoggerName)
	}
	if got := entries[0].ContextMap()["family"]; got != "bookings" {
		t.Fatalf("family field: %v", got)
	}
	if got := entries[1].ContextMap()["err"]; got != "offline" {
		t.Fatalf("err field: %v", got)
	}
	if entries[1].Context[0].Key != "err" || entries[1].Context[1].Key != "key" {
		t.Fatalf("fields not sorted: %v", entries[1].Context)
	}
}
