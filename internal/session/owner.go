// Package session owns the client-side view of who is signed in. One Owner is
// constructed per application instance; it bootstraps the persisted session
// once, reconciles identity provider events, and answers role gate queries.
// Auth operations return redirect targets and never navigate.
package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/rolegate"
)

const (
	DefaultSafetyValve  = 15 * time.Second
	DefaultFetchTimeout = 10 * time.Second
)

type Options struct {
	// SafetyValve forces readiness to Resolved if the bootstrap has not
	// settled in time.
	SafetyValve time.Duration
	// FetchTimeout bounds every individual session or profile fetch.
	FetchTimeout time.Duration
	Logger       *slog.Logger
	Metrics      metrics.Recorder
	Now          func() time.Time
}

func (o Options) withDefaults() Options {
	if o.SafetyValve <= 0 {
		o.SafetyValve = DefaultSafetyValve
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = DefaultFetchTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Metrics == nil {
		o.Metrics = metrics.Nop{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// State is a copy of the owner's fields at one instant.
type State struct {
	Session    *rolegate.Session
	User       *rolegate.Identity
	Profile    *rolegate.Profile
	Readiness  rolegate.Readiness
	Generation uint64
}

func (s State) GateInput(now time.Time) rolegate.Input {
	return rolegate.Input{Session: s.Session, Profile: s.Profile, Readiness: s.Readiness, Now: now}
}

type Owner struct {
	provider IdentityProvider
	profiles ProfileStore
	opts     Options
	log      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	initialized atomic.Bool
	closed      atomic.Bool

	mu         sync.Mutex
	session    *rolegate.Session
	profile    *rolegate.Profile
	readiness  rolegate.Readiness
	generation uint64
	// fetchDone is non-nil while a profile fetch holds the exclusion flag.
	fetchDone   chan struct{}
	valve       *time.Timer
	unsubscribe func()

	ready   chan struct{}
	started chan struct{}
	done    chan struct{}
	events  chan Event
	wg      sync.WaitGroup

	heal singleflight.Group

	subsMu  sync.Mutex
	subs    map[int]chan State
	nextSub int
}

func New(provider IdentityProvider, profiles ProfileStore, opts Options) *Owner {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Owner{
		provider: provider,
		profiles: profiles,
		opts:     opts,
		log:      opts.Logger.With("component", "auth_state"),
		ctx:      ctx,
		cancel:   cancel,
		ready:    make(chan struct{}),
		started:  make(chan struct{}),
		done:     make(chan struct{}),
		events:   make(chan Event, 64),
		subs:     make(map[int]chan State),
	}
}

// Initialize starts the one-time bootstrap. Only the first call does any
// work; later and concurrent calls return immediately. The event
// subscription is in place before Initialize returns.
func (o *Owner) Initialize(ctx context.Context) {
	if o.closed.Load() || !o.initialized.CompareAndSwap(false, true) {
		return
	}

	unsubscribe := o.provider.OnAuthStateChange(o.enqueue)
	start := o.opts.Now()

	o.mu.Lock()
	if o.closed.Load() {
		o.mu.Unlock()
		unsubscribe()
		return
	}
	o.wg.Add(2)
	o.unsubscribe = unsubscribe
	o.readiness = rolegate.Resolving
	o.valve = time.AfterFunc(o.opts.SafetyValve, func() {
		if o.resolve() {
			o.log.Warn("auth bootstrap did not settle, forcing readiness",
				"safety_valve", o.opts.SafetyValve.String(),
			)
			o.opts.Metrics.RecordBootstrap("safety_valve", o.opts.Now().Sub(start))
		}
	})
	o.mu.Unlock()
	o.broadcast()

	bootCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(o.ctx, cancel)

	go func() {
		defer stop()
		defer cancel()
		o.bootstrap(bootCtx, start)
	}()
	go o.reconcileLoop()
}

func (o *Owner) bootstrap(ctx context.Context, start time.Time) {
	defer o.wg.Done()

	o.mu.Lock()
	startGen := o.generation
	o.mu.Unlock()

	close(o.started)

	restored, err := o.getSession(ctx)
	if err != nil {
		o.log.Warn("session restore failed", "error", err)
	}
	if o.closed.Load() {
		return
	}

	o.mu.Lock()
	// A sign-out handled while the restore was in flight bumps the
	// generation; the restored session is stale then and must stay out.
	if restored != nil && o.session == nil && o.generation == startGen && !o.closed.Load() {
		o.session = restored
	}
	current := o.session
	gen := o.generation
	needProfile := current != nil && (o.profile == nil || o.profile.ID != current.User.ID)
	o.mu.Unlock()
	o.broadcast()

	if needProfile {
		if inflight, acquired := o.fetchProfile(ctx, gen, current.User.ID, "bootstrap"); !acquired {
			// Someone else is already fetching; let them populate state
			// before declaring readiness.
			select {
			case <-inflight:
			case <-ctx.Done():
			}
		}
	}

	o.stopValve()
	if o.resolve() {
		o.opts.Metrics.RecordBootstrap("settled", o.opts.Now().Sub(start))
		st := o.Snapshot()
		o.log.Info("auth bootstrap resolved",
			"has_session", st.Session != nil,
			"has_profile", st.Profile != nil,
		)
	}
}

func (o *Owner) getSession(ctx context.Context) (*rolegate.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, o.opts.FetchTimeout)
	defer cancel()
	return o.provider.GetSession(ctx)
}

// resolve moves readiness to Resolved. It reports whether this call made the
// transition.
func (o *Owner) resolve() bool {
	o.mu.Lock()
	if o.readiness == rolegate.Resolved {
		o.mu.Unlock()
		return false
	}
	o.readiness = rolegate.Resolved
	o.mu.Unlock()

	close(o.ready)
	o.broadcast()
	return true
}

func (o *Owner) stopValve() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.valve != nil {
		o.valve.Stop()
	}
}

// Ready is closed once readiness reaches Resolved.
func (o *Owner) Ready() <-chan struct{} {
	return o.ready
}

func (o *Owner) WaitReady(ctx context.Context) error {
	if o.closed.Load() {
		return ErrClosed
	}
	select {
	case <-o.ready:
		return nil
	case <-o.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Owner) Snapshot() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Owner) snapshotLocked() State {
	st := State{Readiness: o.readiness, Generation: o.generation}
	if o.session != nil {
		s := *o.session
		u := s.User
		st.Session = &s
		st.User = &u
	}
	if o.profile != nil {
		p := *o.profile
		st.Profile = &p
	}
	return st
}

// Decide consults the role gate with the current state.
func (o *Owner) Decide(req rolegate.Requirement) rolegate.Decision {
	now := o.opts.Now()
	return rolegate.Decide(o.Snapshot().GateInput(now), req)
}

// Subscribe delivers the latest state after every change. Slow readers only
// ever see the most recent state.
func (o *Owner) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	o.subsMu.Lock()
	id := o.nextSub
	o.nextSub++
	if o.closed.Load() {
		close(ch)
	} else {
		o.subs[id] = ch
	}
	o.subsMu.Unlock()

	return ch, func() {
		o.subsMu.Lock()
		defer o.subsMu.Unlock()
		if c, ok := o.subs[id]; ok {
			delete(o.subs, id)
			close(c)
		}
	}
}

func (o *Owner) broadcast() {
	st := o.Snapshot()

	o.subsMu.Lock()
	defer o.subsMu.Unlock()
	for _, ch := range o.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- st:
		default:
		}
	}
}

// Close tears the owner down: the provider subscription is dropped, in-flight
// fetches are cancelled and their results discarded.
func (o *Owner) Close() {
	if !o.closed.CompareAndSwap(false, true) {
		return
	}
	close(o.done)
	o.cancel()

	o.mu.Lock()
	unsubscribe := o.unsubscribe
	o.unsubscribe = nil
	if o.valve != nil {
		o.valve.Stop()
	}
	o.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	o.wg.Wait()

	o.subsMu.Lock()
	for id, ch := range o.subs {
		delete(o.subs, id)
		close(ch)
	}
	o.subsMu.Unlock()
}
