// Package sloghooks reports cache hook events through log/slog, with sampling
// for the noisy ones and key redaction.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/querycache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery   uint64
	DiscardEvery    uint64
	RevalidateEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr   atomic.Uint64
	discardCtr    atomic.Uint64
	revalidateCtr atomic.Uint64
}

var _ querycache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

// Storage keys carry query parameters (user ids, emails in filters), so they
// are redacted by default.
func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("querycache.self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) FetchDiscarded(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.DiscardEvery, &h.discardCtr) {
		return
	}
	h.l.Debug("querycache.fetch_discarded",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) RevalidateFailed(storageKey string, err error) {
	if h.l == nil || !sample(h.opts.RevalidateEvery, &h.revalidateCtr) {
		return
	}
	h.l.Warn("querycache.revalidate_failed",
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) RevalidateSkipped(storageKey string) {
	if h.l == nil || !sample(h.opts.RevalidateEvery, &h.revalidateCtr) {
		return
	}
	h.l.Info("querycache.revalidate_skipped",
		"key", h.redact(storageKey))
}

func (h *Hooks) ProviderSetRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("querycache.provider_set_rejected",
		"key", h.redact(storageKey))
}

func (h *Hooks) ProviderError(op string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("querycache.provider_error",
		"op", op,
		"err", err)
}

func (h *Hooks) GenStoreError(op string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("querycache.genstore_error",
		"op", op,
		"err", err)
}

func (h *Hooks) RemoveOutage(key string, bumpErr, delErr error) {
	if h.l == nil {
		return
	}
	h.l.Error("querycache.remove_outage",
		"key", h.redact(key),
		"bump_err", bumpErr,
		"del_err", delErr)
}

func (h *Hooks) AuthCleared(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("querycache.auth_cleared",
		"key", h.redact(storageKey))
}
