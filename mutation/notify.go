package mutation

import (
	"context"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/querycache/apierr"
)

type Severity int

const (
	SeverityInfo Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "info"
}

// Notification is the user-facing outcome of one execution.
type Notification struct {
	ExecutionID uuid.UUID
	Mutation    string
	Severity    Severity
	Message     string
	Kind        apierr.Kind // failures only
	Err         error
}

// Notifier shows mutation outcomes to the user (toasts, banners).
// Notify is called synchronously after the cache has been updated.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

type NotifierFunc func(ctx context.Context, n Notification)

func (f NotifierFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notification) {}
