// Package otelhooks counts cache hook events as OpenTelemetry metrics.
package otelhooks

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/unkn0wn-root/querycache"
)

// Hooks records every event on one of three counters:
//
//	querycache.events         event, reason
//	querycache.backend_errors backend, op
//	querycache.revalidations  outcome
type Hooks struct {
	events        metric.Int64Counter
	backendErrors metric.Int64Counter
	revalidations metric.Int64Counter
}

var _ querycache.Hooks = (*Hooks)(nil)

func New(meter metric.Meter) (*Hooks, error) {
	events, err := meter.Int64Counter(
		"querycache.events",
		metric.WithDescription("Cache entries healed, discarded, rejected or cleared"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create events counter: %w", err)
	}
	backendErrors, err := meter.Int64Counter(
		"querycache.backend_errors",
		metric.WithDescription("Provider and GenStore call failures"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create backend errors counter: %w", err)
	}
	revalidations, err := meter.Int64Counter(
		"querycache.revalidations",
		metric.WithDescription("Background revalidations that failed or were skipped"),
		metric.WithUnit("{revalidation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create revalidations counter: %w", err)
	}
	return &Hooks{events: events, backendErrors: backendErrors, revalidations: revalidations}, nil
}

func (h *Hooks) event(name, reason string) {
	h.events.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("event", name),
		attribute.String("reason", reason),
	))
}

func (h *Hooks) backend(backend, op string) {
	h.backendErrors.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("op", op),
	))
}

func (h *Hooks) revalidation(outcome string) {
	h.revalidations.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

func (h *Hooks) SelfHeal(_, reason string)        { h.event("self_heal", reason) }
func (h *Hooks) FetchDiscarded(_, reason string)  { h.event("fetch_discarded", reason) }
func (h *Hooks) ProviderSetRejected(string)       { h.event("set_rejected", "") }
func (h *Hooks) AuthCleared(string)               { h.event("auth_cleared", "") }
func (h *Hooks) RevalidateFailed(string, error)   { h.revalidation("failed") }
func (h *Hooks) RevalidateSkipped(string)         { h.revalidation("skipped") }
func (h *Hooks) ProviderError(op string, _ error) { h.backend("provider", op) }
func (h *Hooks) GenStoreError(op string, _ error) { h.backend("genstore", op) }
func (h *Hooks) RemoveOutage(string, error, error) {
	h.backend("provider", "del")
	h.backend("genstore", "bump")
}
