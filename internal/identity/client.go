// Package identity is the HTTP client for the portal's identity endpoints. It
// persists the session, refreshes it ahead of expiry and emits auth state
// events to registered listeners in order.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/dto"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/rolegate"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/session"
)

var ErrNoSession = errors.New("no active session")

// APIError carries the provider's message unchanged so it can be shown to
// the user.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Store      Store
	Logger     *slog.Logger
	// RefreshMargin is how long before expiry a session is refreshed.
	RefreshMargin time.Duration
	Now           func() time.Time
}

type Client struct {
	baseURL string
	http    *http.Client
	store   Store
	log     *slog.Logger
	margin  time.Duration
	now     func() time.Time

	mu      sync.Mutex
	current *rolegate.Session
	loaded  bool

	// refreshes is keyed by refresh token; the token is single use.
	refreshes singleflight.Group

	listenersMu sync.Mutex
	listeners   map[int]func(session.Event)
	nextID      int

	dispatch  chan session.Event
	done      chan struct{}
	closeOnce sync.Once
}

func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Store == nil {
		cfg.Store = &MemoryStore{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RefreshMargin <= 0 {
		cfg.RefreshMargin = 60 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	c := &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		http:      cfg.HTTPClient,
		store:     cfg.Store,
		log:       cfg.Logger.With("component", "identity"),
		margin:    cfg.RefreshMargin,
		now:       cfg.Now,
		listeners: make(map[int]func(session.Event)),
		dispatch:  make(chan session.Event, 32),
		done:      make(chan struct{}),
	}
	go c.dispatchLoop()
	return c
}

func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// GetSession returns the persisted session, refreshing it first when it is
// inside the refresh margin.
func (c *Client) GetSession(ctx context.Context) (*rolegate.Session, error) {
	c.mu.Lock()
	if !c.loaded {
		s, err := c.store.Load()
		if err != nil {
			c.mu.Unlock()
			return nil, err
		}
		c.current = s
		c.loaded = true
	}
	current := c.current
	c.mu.Unlock()

	if current == nil {
		return nil, nil
	}
	if c.now().Add(c.margin).Before(current.ExpiresAt) {
		cp := *current
		return &cp, nil
	}

	refreshed, err := c.Refresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("restored session expired: %w", err)
	}
	return refreshed, nil
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*rolegate.Session, error) {
	var resp dto.TokenResponse
	body := dto.PasswordGrantRequest{Email: email, Password: password}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "", body, &resp); err != nil {
		return nil, err
	}

	s, err := c.sessionFrom(&resp)
	if err != nil {
		return nil, err
	}
	c.setCurrent(s)
	c.emit(session.EventSignedIn, s)
	return s, nil
}

func (c *Client) SignUp(ctx context.Context, params session.SignUpParams) (*rolegate.Session, error) {
	var resp dto.TokenResponse
	body := dto.SignUpRequest{Email: params.Email, Password: params.Password, FullName: params.FullName}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/signup", "", body, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, nil
	}

	s, err := c.sessionFrom(&resp)
	if err != nil {
		return nil, err
	}
	c.setCurrent(s)
	c.emit(session.EventSignedIn, s)
	return s, nil
}

// Refresh rotates the refresh token. Concurrent callers holding the same
// token share one exchange. A rejected refresh token ends the session unless
// it was already rotated away.
func (c *Client) Refresh(ctx context.Context) (*rolegate.Session, error) {
	c.mu.Lock()
	current := c.current
	c.mu.Unlock()
	if current == nil || current.RefreshToken == "" {
		return nil, ErrNoSession
	}

	v, err, _ := c.refreshes.Do(current.RefreshToken, func() (any, error) {
		return c.exchange(ctx, current.RefreshToken)
	})
	if err != nil {
		return nil, err
	}
	cp := *v.(*rolegate.Session)
	return &cp, nil
}

func (c *Client) exchange(ctx context.Context, refreshToken string) (*rolegate.Session, error) {
	var resp dto.TokenResponse
	body := dto.RefreshGrantRequest{RefreshToken: refreshToken}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "", body, &resp); err != nil {
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Status >= 500 {
			return nil, err
		}

		c.mu.Lock()
		latest := c.current
		c.mu.Unlock()
		switch {
		case latest == nil:
			return nil, err
		case latest.RefreshToken != refreshToken:
			// Another exchange already rotated this token.
			c.log.Debug("ignoring rejection of a rotated refresh token")
			return latest, nil
		}
		c.setCurrent(nil)
		c.emit(session.EventSignedOut, nil)
		return nil, err
	}

	s, err := c.sessionFrom(&resp)
	if err != nil {
		return nil, err
	}
	c.setCurrent(s)
	c.emit(session.EventTokenRefreshed, s)
	return s, nil
}

// SignOut always drops the local session, even when the server call fails.
func (c *Client) SignOut(ctx context.Context) error {
	token, _ := c.AccessToken(ctx)

	var err error
	if token != "" {
		err = c.do(ctx, http.MethodPost, "/auth/v1/logout", token, nil, nil)
	}
	c.setCurrent(nil)
	c.emit(session.EventSignedOut, nil)
	return err
}

func (c *Client) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	body := dto.RecoverRequest{Email: email, RedirectTo: redirectTo}
	return c.do(ctx, http.MethodPost, "/auth/v1/recover", "", body, nil)
}

func (c *Client) UpdatePassword(ctx context.Context, password string) error {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return err
	}
	if err := c.do(ctx, http.MethodPut, "/auth/v1/user", token, dto.UpdateUserRequest{Password: password}, nil); err != nil {
		return err
	}

	c.mu.Lock()
	current := c.current
	c.mu.Unlock()
	if current != nil {
		cp := *current
		c.emit(session.EventUserUpdated, &cp)
	}
	return nil
}

// AccessToken returns the bearer token for backend calls.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	s, err := c.GetSession(ctx)
	if err != nil {
		return "", err
	}
	if s == nil {
		return "", ErrNoSession
	}
	return s.AccessToken, nil
}

func (c *Client) OnAuthStateChange(listener func(session.Event)) func() {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = listener
	return func() {
		c.listenersMu.Lock()
		defer c.listenersMu.Unlock()
		delete(c.listeners, id)
	}
}

func (c *Client) emit(kind session.EventKind, s *rolegate.Session) {
	var cp *rolegate.Session
	if s != nil {
		v := *s
		cp = &v
	}
	select {
	case c.dispatch <- session.Event{Kind: kind, Session: cp}:
	case <-c.done:
	}
}

func (c *Client) dispatchLoop() {
	for {
		select {
		case ev := <-c.dispatch:
			c.listenersMu.Lock()
			ls := make([]func(session.Event), 0, len(c.listeners))
			for _, l := range c.listeners {
				ls = append(ls, l)
			}
			c.listenersMu.Unlock()
			for _, l := range ls {
				l(ev)
			}
		case <-c.done:
			return
		}
	}
}

func (c *Client) setCurrent(s *rolegate.Session) {
	c.mu.Lock()
	c.current = s
	c.loaded = true
	c.mu.Unlock()

	var err error
	if s == nil {
		err = c.store.Clear()
	} else {
		err = c.store.Save(s)
	}
	if err != nil {
		c.log.Warn("session persistence failed", "error", err)
	}
}

func (c *Client) sessionFrom(resp *dto.TokenResponse) (*rolegate.Session, error) {
	if resp.AccessToken == "" {
		return nil, errors.New("token response without access token")
	}

	s := &rolegate.Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		User: rolegate.Identity{
			Email:      resp.User.Email,
			VerifiedAt: resp.User.EmailConfirmedAt,
		},
	}
	if resp.User.ID != uuid.Nil {
		s.User.ID = resp.User.ID.String()
	}

	switch {
	case resp.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(resp.ExpiresAt, 0)
	case resp.ExpiresIn > 0:
		s.ExpiresAt = c.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}

	claims, err := parseClaims(resp.AccessToken)
	if err != nil {
		return nil, err
	}
	if s.User.ID == "" {
		s.User.ID = claims.Subject
	} else if claims.Subject != "" && claims.Subject != s.User.ID {
		return nil, fmt.Errorf("access token subject %q does not match user %q", claims.Subject, s.User.ID)
	}
	if s.User.Email == "" {
		s.User.Email = claims.Email
	}
	if s.ExpiresAt.IsZero() && claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	if s.User.ID == "" {
		return nil, errors.New("token response without subject")
	}

	return s, nil
}

type accessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// parseClaims reads the access token claims without verifying the
// signature; the backend verifies every request.
func parseClaims(token string) (*accessClaims, error) {
	var claims accessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, fmt.Errorf("malformed access token: %w", err)
	}
	return &claims, nil
}

func (c *Client) do(ctx context.Context, method, path, bearer string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("identity request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read identity response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse identity response: %w", err)
	}
	return nil
}

func decodeError(status int, data []byte) error {
	var body struct {
		Message          string `json:"message"`
		Msg              string `json:"msg"`
		ErrorDescription string `json:"error_description"`
	}
	_ = json.Unmarshal(data, &body)

	msg := body.Message
	if msg == "" {
		msg = body.Msg
	}
	if msg == "" {
		msg = body.ErrorDescription
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{Status: status, Message: msg}
}

var _ session.IdentityProvider = (*Client)(nil)
