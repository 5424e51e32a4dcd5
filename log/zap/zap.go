// Package zap adapts a *zap.Logger to querycache.Logger.
package zap

import (
	"go.uber.org/zap"

	"github.com/unkn0wn-root/querycache"
	qlog "github.com/unkn0wn-root/querycache/log"
)

type Logger struct{ L *zap.Logger }

var _ querycache.Logger = Logger{}

// New names the logger "querycache" so cache events are easy to filter.
func New(l *zap.Logger) Logger { return Logger{L: l.Named("querycache")} }

func (z Logger) Debug(msg string, f querycache.Fields) { z.L.Debug(msg, fields(f)...) }
func (z Logger) Info(msg string, f querycache.Fields)  { z.L.Info(msg, fields(f)...) }
func (z Logger) Warn(msg string, f querycache.Fields)  { z.L.Warn(msg, fields(f)...) }
func (z Logger) Error(msg string, f querycache.Fields) { z.L.Error(msg, fields(f)...) }

func fields(f querycache.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(f))
	for _, k := range qlog.SortedKeys(f) {
		if err, ok := f[k].(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, f[k]))
	}
	return out
}
