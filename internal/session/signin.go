package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/rolegate"
)

// SignInResult tells the caller where to go next. Auth code never navigates.
type SignInResult struct {
	Success        bool   `json:"success"`
	Error          string `json:"error,omitempty"`
	RedirectTarget string `json:"redirect_target,omitempty"`
}

// SignIn exchanges credentials for a session and makes sure a profile exists
// before returning, so the redirect target reflects a real role. Credential
// errors are passed through verbatim.
func (o *Owner) SignIn(ctx context.Context, email, password string) SignInResult {
	if o.closed.Load() {
		return SignInResult{Error: ErrClosed.Error()}
	}

	s, err := o.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		o.log.Info("sign in rejected", "email", email, "error", err)
		return SignInResult{Error: err.Error()}
	}
	if s == nil {
		return SignInResult{Error: "identity provider returned no session"}
	}

	return o.establish(ctx, s, "")
}

// SignUp registers a new account. When the provider defers the session until
// the email is confirmed the result points at the login page.
func (o *Owner) SignUp(ctx context.Context, params SignUpParams) SignInResult {
	if o.closed.Load() {
		return SignInResult{Error: ErrClosed.Error()}
	}

	s, err := o.provider.SignUp(ctx, params)
	if err != nil {
		return SignInResult{Error: err.Error()}
	}
	if s == nil {
		return SignInResult{Success: true, RedirectTarget: rolegate.LoginPath}
	}
	return o.establish(ctx, s, params.FullName)
}

func (o *Owner) establish(ctx context.Context, s *rolegate.Session, fullName string) SignInResult {
	gen, _ := o.replaceSession(s)
	o.broadcast()

	// Hold the fetch flag when it is free so the SIGNED_IN event that follows
	// does not start a duplicate fetch. SignIn fetches regardless.
	if release, _, acquired := o.beginFetch(); acquired {
		defer release()
	}

	p, err := o.loadOrHeal(ctx, s.User, fullName)
	if err != nil {
		o.log.Error("profile unavailable after sign in", "user_id", s.User.ID, "error", err)
		return SignInResult{Error: fmt.Sprintf("signed in but profile could not be loaded: %v", err)}
	}

	if !o.applyProfile(gen, s.User.ID, p) {
		return SignInResult{Error: "session changed during sign in"}
	}
	o.opts.Metrics.RecordProfileFetch("sign_in", "ok")
	o.broadcast()

	return SignInResult{Success: true, RedirectTarget: rolegate.HomeFor(p.Role)}
}

// loadOrHeal fetches the profile and, when the backend has none, asks it to
// create the default one and fetches again. Concurrent heals for one user
// share a single fix-profile call.
func (o *Owner) loadOrHeal(ctx context.Context, user rolegate.Identity, fullName string) (*rolegate.Profile, error) {
	p, err := o.getProfile(ctx, user.ID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrProfileNotFound) {
		return nil, err
	}

	o.log.Info("profile missing, requesting default", "user_id", user.ID)
	v, err, _ := o.heal.Do(user.ID, func() (any, error) {
		fixCtx, cancel := context.WithTimeout(ctx, o.opts.FetchTimeout)
		defer cancel()
		if _, err := o.profiles.FixProfile(fixCtx, FixProfileRequest{
			ID:       user.ID,
			Email:    user.Email,
			FullName: defaultFullName(fullName, user.Email),
			Role:     rolegate.RoleUser,
		}); err != nil {
			return nil, fmt.Errorf("fix profile: %w", err)
		}
		return o.getProfile(ctx, user.ID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*rolegate.Profile), nil
}

func (o *Owner) getProfile(ctx context.Context, id string) (*rolegate.Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, o.opts.FetchTimeout)
	defer cancel()
	return o.profiles.GetProfile(ctx, id)
}

func defaultFullName(fullName, email string) string {
	if fullName != "" {
		return fullName
	}
	name, _, _ := strings.Cut(email, "@")
	return name
}

// SignOut revokes the session with the provider and clears local state even
// when the provider call fails.
func (o *Owner) SignOut(ctx context.Context) error {
	err := o.provider.SignOut(ctx)
	o.clear()
	o.broadcast()
	if err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

func (o *Owner) ResetPassword(ctx context.Context, email, redirectTo string) error {
	return o.provider.ResetPasswordForEmail(ctx, email, redirectTo)
}

func (o *Owner) UpdatePassword(ctx context.Context, password string) error {
	if o.Snapshot().Session == nil {
		return errors.New("not signed in")
	}
	return o.provider.UpdatePassword(ctx, password)
}
