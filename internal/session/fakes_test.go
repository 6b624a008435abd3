package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/rolegate"
)

func testSession(id string) *rolegate.Session {
	return &rolegate.Session{
		AccessToken:  "access-" + id,
		RefreshToken: "refresh-" + id,
		ExpiresAt:    time.Now().Add(time.Hour),
		User:         rolegate.Identity{ID: id, Email: id + "@example.com"},
	}
}

type fakeProvider struct {
	mu        sync.Mutex
	session   *rolegate.Session
	getErr    error
	getBlock  chan struct{}
	signInErr error
	listeners map[int]func(Event)
	next      int

	getCalls    atomic.Int32
	signOutErr  error
	signOutSent atomic.Int32
}

func newFakeProvider(s *rolegate.Session) *fakeProvider {
	return &fakeProvider{session: s, listeners: make(map[int]func(Event))}
}

func (f *fakeProvider) GetSession(ctx context.Context) (*rolegate.Session, error) {
	f.getCalls.Add(1)
	if f.getBlock != nil {
		select {
		case <-f.getBlock:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session, f.getErr
}

func (f *fakeProvider) SignInWithPassword(_ context.Context, email, password string) (*rolegate.Session, error) {
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	if password != "correct-horse" {
		return nil, errors.New("Invalid login credentials")
	}
	id, _, _ := strings.Cut(email, "@")
	s := testSession(id)
	f.mu.Lock()
	f.session = s
	f.mu.Unlock()
	f.emit(Event{Kind: EventSignedIn, Session: s})
	return s, nil
}

func (f *fakeProvider) SignUp(_ context.Context, params SignUpParams) (*rolegate.Session, error) {
	id, _, _ := strings.Cut(params.Email, "@")
	s := testSession(id)
	f.emit(Event{Kind: EventSignedIn, Session: s})
	return s, nil
}

func (f *fakeProvider) SignOut(context.Context) error {
	f.signOutSent.Add(1)
	f.mu.Lock()
	f.session = nil
	f.mu.Unlock()
	f.emit(Event{Kind: EventSignedOut})
	return f.signOutErr
}

func (f *fakeProvider) ResetPasswordForEmail(context.Context, string, string) error { return nil }
func (f *fakeProvider) UpdatePassword(context.Context, string) error                { return nil }

func (f *fakeProvider) OnAuthStateChange(listener func(Event)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.listeners[id] = listener
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	}
}

func (f *fakeProvider) emit(ev Event) {
	f.mu.Lock()
	ls := make([]func(Event), 0, len(f.listeners))
	for _, l := range f.listeners {
		ls = append(ls, l)
	}
	f.mu.Unlock()
	for _, l := range ls {
		l(ev)
	}
}

func (f *fakeProvider) listenerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

type fakeProfiles struct {
	mu       sync.Mutex
	profiles map[string]*rolegate.Profile
	getErr   error
	// block, when set, holds GetProfile until it is closed or ctx ends.
	block   chan struct{}
	entered chan string

	getCalls atomic.Int32
	fixCalls atomic.Int32
	fixDelay time.Duration
}

func newFakeProfiles(ps ...*rolegate.Profile) *fakeProfiles {
	f := &fakeProfiles{profiles: make(map[string]*rolegate.Profile)}
	for _, p := range ps {
		f.profiles[p.ID] = p
	}
	return f
}

func (f *fakeProfiles) GetProfile(ctx context.Context, id string) (*rolegate.Profile, error) {
	f.getCalls.Add(1)
	if f.entered != nil {
		select {
		case f.entered <- id:
		default:
		}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	p, ok := f.profiles[id]
	if !ok {
		return nil, ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProfiles) FixProfile(_ context.Context, req FixProfileRequest) (*rolegate.Profile, error) {
	f.fixCalls.Add(1)
	if f.fixDelay > 0 {
		time.Sleep(f.fixDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.profiles[req.ID]; ok {
		cp := *p
		return &cp, nil
	}
	p := &rolegate.Profile{ID: req.ID, Email: req.Email, FullName: req.FullName, Role: req.Role, IsActive: true}
	f.profiles[req.ID] = p
	cp := *p
	return &cp, nil
}

func (f *fakeProfiles) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.profiles)
}

func userProfile(id string, role rolegate.Role) *rolegate.Profile {
	return &rolegate.Profile{ID: id, Email: id + "@example.com", Role: role, IsActive: true}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitReady(t *testing.T, o *Owner) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := o.WaitReady(ctx); err != nil {
		t.Fatalf("WaitReady() error = %v", err)
	}
}

// inflightFetch returns the completion channel of the running profile fetch,
// or nil.
func (o *Owner) inflightFetch() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fetchDone == nil {
		return nil
	}
	return o.fetchDone
}

type recordedFetch struct {
	source, outcome string
}

type fakeRecorder struct {
	mu         sync.Mutex
	bootstraps []string
	fetches    []recordedFetch
	events     []string
}

func (r *fakeRecorder) RecordBootstrap(outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bootstraps = append(r.bootstraps, outcome)
}

func (r *fakeRecorder) RecordProfileFetch(source, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetches = append(r.fetches, recordedFetch{source, outcome})
}

func (r *fakeRecorder) RecordAuthEvent(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, kind)
}

func (r *fakeRecorder) RecordDecision(string, string) {}

func (r *fakeRecorder) fetchCount(source, outcome string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, f := range r.fetches {
		if f.source == source && f.outcome == outcome {
			n++
		}
	}
	return n
}

func (r *fakeRecorder) bootstrapOutcomes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.bootstraps...)
}
