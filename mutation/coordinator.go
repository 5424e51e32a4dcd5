// Package mutation runs server mutations and applies their declared cache
// effects. Each execution moves Idle -> Pending -> Success|Failure exactly
// once; failures leave the cache as it was and nothing is retried.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/querycache"
	"github.com/unkn0wn-root/querycache/apierr"
	"github.com/unkn0wn-root/querycache/codec"
)

var (
	ErrUnknownMutation = errors.New("mutation: unknown mutation kind")
	ErrAlreadyRun      = errors.New("mutation: execution already run")
	ErrNilExec         = errors.New("mutation: nil exec")
)

type State int

const (
	StateIdle State = iota
	StatePending
	StateSuccess
	StateFailure
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateSuccess:
		return "success"
	case StateFailure:
		return "failure"
	default:
		return "idle"
	}
}

// Exec performs the server call. idempotencyKey is stable for one execution
// and should be sent with the request.
type Exec func(ctx context.Context, idempotencyKey string) ([]byte, error)

// Mutation is one requested change.
type Mutation struct {
	Kind string // rule table key
	// Target is the exact key the rule overwrites or removes; zero if none.
	Target querycache.Key
	// Invalidate adds families only known at call time, e.g. the vendor of
	// the booking being changed.
	Invalidate []querycache.Family
	Exec       Exec
}

type Options struct {
	Cache    querycache.Cache // required
	Rules    Table
	Notifier Notifier          // nil => NopNotifier
	Logger   querycache.Logger // nil => NopLogger
}

type Coordinator struct {
	cache    querycache.Cache
	rules    Table
	families map[string][]querycache.Family
	notify   Notifier
	log      querycache.Logger
}

func New(opts Options) (*Coordinator, error) {
	if opts.Cache == nil {
		return nil, errors.New("mutation: cache is required")
	}
	if err := opts.Rules.Validate(); err != nil {
		return nil, fmt.Errorf("mutation: invalid rules: %w", err)
	}
	c := &Coordinator{
		cache:    opts.Cache,
		rules:    opts.Rules,
		families: make(map[string][]querycache.Family, len(opts.Rules)),
		notify:   opts.Notifier,
		log:      opts.Logger,
	}
	if c.notify == nil {
		c.notify = NopNotifier{}
	}
	if c.log == nil {
		c.log = querycache.NopLogger{}
	}
	for kind, r := range opts.Rules {
		fams, err := r.Families()
		if err != nil {
			return nil, fmt.Errorf("mutation: %s: %w", kind, err)
		}
		c.families[kind] = fams
	}
	return c, nil
}

// Rule returns the rule registered for kind.
func (c *Coordinator) Rule(kind string) (Rule, bool) {
	r, ok := c.rules[kind]
	return r, ok
}

// Begin prepares an execution in StateIdle. Nothing is sent until Run.
func (c *Coordinator) Begin(m Mutation) (*Execution, error) {
	rule, ok := c.rules[m.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMutation, m.Kind)
	}
	if m.Exec == nil {
		return nil, ErrNilExec
	}
	fams := append(append([]querycache.Family(nil), c.families[m.Kind]...), m.Invalidate...)
	return &Execution{
		id:       uuid.New(),
		c:        c,
		m:        m,
		rule:     rule,
		families: fams,
	}, nil
}

// Execute is Begin followed by Run.
func (c *Coordinator) Execute(ctx context.Context, m Mutation) ([]byte, error) {
	e, err := c.Begin(m)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx)
}

// Do runs a typed mutation: the result is encoded with cd before the rule is
// applied, so an overwritten key holds exactly what a Query[V] would decode.
func Do[V any](ctx context.Context, c *Coordinator, kind string, target querycache.Key, cd codec.Codec[V],
	exec func(ctx context.Context, idempotencyKey string) (V, error)) (V, error) {
	return DoMutation(ctx, c, Mutation{Kind: kind, Target: target}, cd, exec)
}

// DoMutation is Do for a mutation that also carries call-time families.
// m.Exec is ignored.
func DoMutation[V any](ctx context.Context, c *Coordinator, m Mutation, cd codec.Codec[V],
	exec func(ctx context.Context, idempotencyKey string) (V, error)) (V, error) {
	var out V
	m.Exec = func(ctx context.Context, idem string) ([]byte, error) {
		v, err := exec(ctx, idem)
		if err != nil {
			return nil, err
		}
		out = v
		raw, err := cd.Encode(v)
		if err != nil {
			// the server already applied the change; only the overwrite is lost
			c.log.Warn("mutation result not encodable, target left stale", querycache.Fields{"mutation": m.Kind, "err": err})
			return nil, nil
		}
		return raw, nil
	}
	if _, err := c.Execute(ctx, m); err != nil {
		var zero V
		return zero, err
	}
	return out, nil
}

// Execution is a single run of a mutation.
type Execution struct {
	id       uuid.UUID
	c        *Coordinator
	m        Mutation
	rule     Rule
	families []querycache.Family

	mu     sync.Mutex
	state  State
	result []byte
	err    error
}

func (e *Execution) ID() uuid.UUID { return e.id }

func (e *Execution) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Result is the outcome of a finished execution.
func (e *Execution) Result() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result, e.err
}

// Run sends the mutation once. On success the rule is applied to the cache;
// cache errors are logged and never turn a server-side success into a failure.
// On failure the error is returned unchanged and the cache is untouched,
// except that an auth failure clears it. Cache effects run even if ctx ends
// once Exec has returned.
func (e *Execution) Run(ctx context.Context) ([]byte, error) {
	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		return nil, ErrAlreadyRun
	}
	e.state = StatePending
	e.mu.Unlock()

	res, err := e.m.Exec(ctx, e.id.String())
	cacheCtx := context.WithoutCancel(ctx)
	if err != nil {
		e.fail(cacheCtx, err)
		return nil, err
	}
	e.apply(cacheCtx, res)

	e.mu.Lock()
	e.state, e.result = StateSuccess, res
	e.mu.Unlock()

	e.c.notify.Notify(ctx, Notification{
		ExecutionID: e.id,
		Mutation:    e.m.Kind,
		Severity:    SeverityInfo,
		Message:     e.rule.Success,
	})
	return res, nil
}

// apply runs the rule. An Overwrite rule with a nil result marks the target
// stale instead.
func (e *Execution) apply(ctx context.Context, res []byte) {
	log := e.c.log
	target := e.m.Target
	switch {
	case e.rule.Overwrite && !target.IsZero() && res == nil:
		if err := e.c.cache.InvalidatePrefix(ctx, querycache.FamilyOf(target)); err != nil {
			log.Warn("mutation invalidate failed", querycache.Fields{"mutation": e.m.Kind, "key": target.String(), "err": err})
		}
	case e.rule.Overwrite && !target.IsZero():
		if err := e.c.cache.Write(ctx, target, res); err != nil {
			log.Warn("mutation overwrite failed", querycache.Fields{"mutation": e.m.Kind, "key": target.String(), "err": err})
		}
	case e.rule.Remove && !target.IsZero():
		if err := e.c.cache.Remove(ctx, target); err != nil {
			log.Warn("mutation remove failed", querycache.Fields{"mutation": e.m.Kind, "key": target.String(), "err": err})
		}
	}
	for _, f := range e.families {
		if err := e.c.cache.InvalidatePrefix(ctx, f); err != nil {
			log.Warn("mutation invalidate failed", querycache.Fields{"mutation": e.m.Kind, "family": f.String(), "err": err})
		}
	}
	log.Debug("mutation applied", querycache.Fields{"mutation": e.m.Kind, "id": e.id.String(), "families": len(e.families)})
}

func (e *Execution) fail(ctx context.Context, err error) {
	kind := apierr.KindOf(err)
	if kind == apierr.KindAuth {
		if cerr := e.c.cache.Clear(ctx); cerr != nil {
			e.c.log.Error("clear after auth failure", querycache.Fields{"mutation": e.m.Kind, "err": cerr})
		}
	}

	e.mu.Lock()
	e.state, e.err = StateFailure, err
	e.mu.Unlock()

	msg := e.rule.Failure
	if msg == "" {
		msg = err.Error()
		var ae *apierr.Error
		if errors.As(err, &ae) && ae.Message != "" {
			msg = ae.Message
		}
	}
	e.c.log.Info("mutation failed", querycache.Fields{"mutation": e.m.Kind, "id": e.id.String(), "kind": kind.String()})
	e.c.notify.Notify(ctx, Notification{
		ExecutionID: e.id,
		Mutation:    e.m.Kind,
		Severity:    SeverityError,
		Message:     msg,
		Kind:        kind,
		Err:         err,
	})
}
