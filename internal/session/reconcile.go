package session

import (
	"context"
	"errors"

	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/rolegate"
)

// enqueue is the provider callback. Blocking on a full queue keeps events in
// emission order.
func (o *Owner) enqueue(ev Event) {
	select {
	case o.events <- ev:
	case <-o.done:
	}
}

func (o *Owner) reconcileLoop() {
	defer o.wg.Done()

	// The bootstrap always gets its fetch going before the first event is
	// looked at.
	select {
	case <-o.started:
	case <-o.done:
		return
	}

	for {
		select {
		case ev := <-o.events:
			o.handle(ev)
		case <-o.done:
			return
		}
	}
}

func (o *Owner) handle(ev Event) {
	o.opts.Metrics.RecordAuthEvent(string(ev.Kind))

	switch ev.Kind {
	case EventSignedIn:
		if ev.Session == nil {
			o.log.Warn("signed-in event without session ignored")
			return
		}
		gen, needProfile := o.replaceSession(ev.Session)
		o.broadcast()
		if needProfile {
			o.wg.Add(1)
			go func() {
				defer o.wg.Done()
				o.fetchProfile(o.ctx, gen, ev.Session.User.ID, "signed_in")
			}()
		}

	case EventTokenRefreshed, EventUserUpdated, EventPasswordRecovery:
		if ev.Session == nil {
			return
		}
		o.replaceSession(ev.Session)
		o.broadcast()

	case EventSignedOut:
		o.clear()
		o.broadcast()

	default:
		o.log.Debug("unhandled auth event", "kind", string(ev.Kind))
	}
}

// replaceSession swaps in s. A change of subject drops the profile and bumps
// the generation so in-flight fetches for the old subject are discarded.
func (o *Owner) replaceSession(s *rolegate.Session) (gen uint64, needProfile bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session != nil && o.session.User.ID != s.User.ID {
		o.generation++
		o.profile = nil
	}
	cp := *s
	o.session = &cp
	needProfile = o.profile == nil || o.profile.ID != s.User.ID
	return o.generation, needProfile
}

func (o *Owner) clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.session = nil
	o.profile = nil
	o.generation++
}

// beginFetch takes the profile fetch flag. When the flag is already held it
// returns the holder's completion channel and false.
func (o *Owner) beginFetch() (release func(), inflight <-chan struct{}, acquired bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.fetchDone != nil {
		return nil, o.fetchDone, false
	}
	done := make(chan struct{})
	o.fetchDone = done
	return func() {
		o.mu.Lock()
		o.fetchDone = nil
		o.mu.Unlock()
		close(done)
	}, done, true
}

// fetchProfile loads the profile for userID unless another fetch is already
// running, in which case it declines and returns the running fetch's
// completion channel. Declined fetches are not retried.
func (o *Owner) fetchProfile(ctx context.Context, gen uint64, userID, source string) (inflight <-chan struct{}, acquired bool) {
	release, inflight, acquired := o.beginFetch()
	if !acquired {
		o.opts.Metrics.RecordProfileFetch(source, "declined")
		o.log.Debug("profile fetch already in flight, declining", "source", source, "user_id", userID)
		return inflight, false
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, o.opts.FetchTimeout)
	defer cancel()

	p, err := o.profiles.GetProfile(ctx, userID)
	if err != nil {
		outcome := "error"
		if errors.Is(err, ErrProfileNotFound) {
			outcome = "not_found"
		}
		o.opts.Metrics.RecordProfileFetch(source, outcome)
		o.log.Warn("profile fetch failed", "source", source, "user_id", userID, "error", err)
		return inflight, true
	}

	if o.applyProfile(gen, userID, p) {
		o.opts.Metrics.RecordProfileFetch(source, "ok")
		o.broadcast()
	} else {
		o.opts.Metrics.RecordProfileFetch(source, "stale")
		o.log.Debug("discarding stale profile", "source", source, "user_id", userID)
	}
	return inflight, true
}

// applyProfile stores p only if nothing has invalidated the fetch since it
// started.
func (o *Owner) applyProfile(gen uint64, userID string, p *rolegate.Profile) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed.Load() || o.generation != gen {
		return false
	}
	if o.session == nil || o.session.User.ID != userID || p == nil || p.ID != userID {
		return false
	}
	cp := *p
	o.profile = &cp
	return true
}
