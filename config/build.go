package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/oauth2"

	"github.com/unkn0wn-root/querycache"
	"github.com/unkn0wn-root/querycache/apiclient"
	"github.com/unkn0wn-root/querycache/console"
	"github.com/unkn0wn-root/querycache/genstore"
	"github.com/unkn0wn-root/querycache/mutation"
	qlogrus "github.com/unkn0wn-root/querycache/log/logrus"
	qslog "github.com/unkn0wn-root/querycache/log/slog"
	qzap "github.com/unkn0wn-root/querycache/log/zap"
	"github.com/unkn0wn-root/querycache/provider"
	"github.com/unkn0wn-root/querycache/provider/bigcache"
	"github.com/unkn0wn-root/querycache/provider/redis"
	"github.com/unkn0wn-root/querycache/provider/ristretto"
)

// Open builds the cache for one session. The namespace is the configured one
// suffixed with session, so sessions sharing a redis never see each other's
// entries. The returned cache owns every backend opened here.
func (c *Config) Open(ctx context.Context, session string, log querycache.Logger, hooks querycache.Hooks) (querycache.Cache, error) {
	ns := c.Namespace
	if session != "" {
		ns += ":" + session
	}

	var rdb goredis.UniversalClient
	if c.Provider.Kind == ProviderRedis || c.GenStore.Kind == GenStoreRedis {
		r := c.Provider.Redis
		rdb = goredis.NewClient(&goredis.Options{Addr: r.Addr, Password: r.Password, DB: r.DB})
	}

	p, err := c.newProvider(ctx, rdb)
	if err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		return nil, err
	}

	var gs genstore.GenStore
	switch c.GenStore.Kind {
	case GenStoreRedis:
		rgs := genstore.NewRedisGenStoreWithTTL(rdb, ns, c.GenStore.TTL)
		if c.Provider.Kind != ProviderRedis {
			rgs = rgs.OwnClient()
		}
		gs = rgs
	default:
		gs = genstore.NewLocalGenStore(c.GenStore.CleanupInterval, c.GenStore.Retention)
	}

	cache, err := querycache.New(querycache.Options{
		Namespace:         ns,
		Provider:          p,
		GenStore:          gs,
		Logger:            log,
		Hooks:             hooks,
		DefaultStaleTime:  c.Cache.DefaultStaleTime,
		Staleness:         c.Staleness(),
		EntryTTL:          c.Cache.EntryTTL,
		CleanupInterval:   c.GenStore.CleanupInterval,
		GenRetention:      c.GenStore.Retention,
		RevalidateWorkers: c.Cache.RevalidateWorkers,
		Disabled:          c.Cache.Disabled,
	})
	if err != nil {
		return nil, errors.Join(err, gs.Close(ctx), p.Close(ctx))
	}
	return cache, nil
}

func (c *Config) newProvider(ctx context.Context, rdb goredis.UniversalClient) (provider.Provider, error) {
	switch c.Provider.Kind {
	case ProviderBigCache:
		b := c.Provider.BigCache
		return bigcache.New(ctx, bigcache.Config{
			LifeWindow:         c.Cache.EntryTTL,
			Shards:             b.Shards,
			MaxEntriesInWindow: b.MaxEntriesInWindow,
			MaxEntrySize:       b.MaxEntrySize,
			HardMaxCacheSizeMB: b.HardMaxCacheSizeMB,
		})
	case ProviderRistretto:
		r := c.Provider.Ristretto
		return ristretto.New(ristretto.Config{NumCounters: r.NumCounters, MaxCost: r.MaxCost, BufferItems: r.BufferItems})
	case ProviderRedis:
		return redis.New(redis.Config{Client: rdb, CloseClient: true, DefaultTTL: c.Cache.EntryTTL})
	default:
		return nil, fmt.Errorf("config: unknown provider %q", c.Provider.Kind)
	}
}

// NewLogger builds the configured logger writing JSON lines to w.
func (c *Config) NewLogger(w io.Writer) (querycache.Logger, error) {
	level := c.Log.Level
	if level == "" {
		level = "info"
	}
	switch c.Log.Backend {
	case LogNone:
		return querycache.NopLogger{}, nil
	case LogLogrus:
		lvl, err := logrus.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		l := logrus.New()
		l.SetOutput(w)
		l.SetLevel(lvl)
		l.SetFormatter(&logrus.JSONFormatter{})
		return qlogrus.New(l), nil
	case LogSlog:
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, err
		}
		return qslog.New(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))), nil
	default:
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		core := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), zapcore.AddSync(w), lvl)
		return qzap.New(zap.New(core)), nil
	}
}

// NewAPIClient builds the REST client; ts supplies the session's bearer token.
func (c *Config) NewAPIClient(ts oauth2.TokenSource) (*apiclient.Client, error) {
	return apiclient.New(apiclient.Config{
		BaseURL:     c.API.BaseURL,
		TokenSource: ts,
		Timeout:     c.API.Timeout,
		UserAgent:   c.API.UserAgent,
	})
}

// NewService builds the console service over cache with the configured rule
// table and payload codec.
func (c *Config) NewService(api console.API, cache querycache.Cache, n mutation.Notifier, log querycache.Logger) (*console.Service, error) {
	return console.New(console.Options{
		API:        api,
		Cache:      cache,
		Rules:      c.RuleTable(),
		Notifier:   n,
		Logger:     log,
		Codec:      c.Cache.Codec,
		MaxPayload: c.Cache.MaxPayload,
	})
}
