package throttle

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// HostLimits are the per-host portion of the throttle's policy.
type HostLimits struct {
	// Concurrency is the maximum in-flight fetches to one host.
	// Zero means no per-host concurrency cap.
	Concurrency int

	// MinInterval is the minimum time between two requests to one host.
	// Zero means no pacing.
	MinInterval time.Duration
}

// Throttle bounds fetch concurrency globally and per host.
//
// Design decision: Per-host throttling is a mapping from host to a small
// per-host state record rather than one global semaphore, because a
// single FIFO line across all hosts would let one slow host block
// progress on every other host.
type Throttle struct {
	// global caps concurrently in-flight fetches across all hosts.
	global *semaphore.Weighted

	// defaults apply to hosts without an override.
	defaults HostLimits

	// overrides holds per-host policy exceptions, keyed by lowercase
	// host, typically loaded from the config file.
	overrides map[string]HostLimits

	// mu guards hosts.
	mu sync.Mutex

	// hosts is the lazily-built per-host state.
	hosts map[string]*hostState
}

// hostState is the throttle's record for one remote host.
type hostState struct {
	// slots bounds in-flight fetches to this host; nil when uncapped.
	slots chan struct{}

	// limiter paces requests to this host; nil when unpaced.
	limiter *rate.Limiter
}

// Option configures a Throttle.
type Option func(*Throttle)

// WithHostLimits overrides the default per-host policy for one host.
func WithHostLimits(host string, limits HostLimits) Option {
	return func(t *Throttle) {
		t.overrides[strings.ToLower(host)] = limits
	}
}

// New creates a Throttle with the given global concurrency cap and
// default per-host limits. maxConcurrency values below one are raised to
// one; a throttle that can never admit anything is always a bug.
func New(maxConcurrency int, defaults HostLimits, opts ...Option) *Throttle {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	t := &Throttle{
		global:    semaphore.NewWeighted(int64(maxConcurrency)),
		defaults:  defaults,
		overrides: make(map[string]HostLimits),
		hosts:     make(map[string]*hostState),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Permit is one unit of allowed fetch activity. Release returns it;
// releasing more than once is a no-op so every exit path of a fetch task
// can defer it safely.
type Permit struct {
	throttle *Throttle
	state    *hostState
	once     sync.Once
}

// Release returns the permit. Safe to call multiple times; only the
// first call has an effect.
func (p *Permit) Release() {
	p.once.Do(func() {
		p.throttle.global.Release(1)
		if p.state.slots != nil {
			<-p.state.slots
		}
	})
}

// Acquire blocks until the caller may fetch from host, or until ctx is
// done. The wait order is host slot, then host pacing interval, then the
// global cap; see the package comment for why.
func (t *Throttle) Acquire(ctx context.Context, host string) (*Permit, error) {
	state := t.hostState(host)

	if state.slots != nil {
		select {
		case state.slots <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if state.limiter != nil {
		if err := state.limiter.Wait(ctx); err != nil {
			if state.slots != nil {
				<-state.slots
			}
			return nil, err
		}
	}

	if err := t.global.Acquire(ctx, 1); err != nil {
		if state.slots != nil {
			<-state.slots
		}
		return nil, err
	}
	return &Permit{throttle: t, state: state}, nil
}

// hostState returns the state record for host, creating it on first use
// from the host's limits (override or defaults).
func (t *Throttle) hostState(host string) *hostState {
	host = strings.ToLower(host)

	t.mu.Lock()
	defer t.mu.Unlock()
	if state, ok := t.hosts[host]; ok {
		return state
	}

	limits := t.defaults
	if override, ok := t.overrides[host]; ok {
		limits = override
	}

	state := &hostState{}
	if limits.Concurrency > 0 {
		state.slots = make(chan struct{}, limits.Concurrency)
	}
	if limits.MinInterval > 0 {
		state.limiter = rate.NewLimiter(rate.Every(limits.MinInterval), 1)
	}
	t.hosts[host] = state
	return state
}
