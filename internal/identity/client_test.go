package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/dto"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/rolegate"
	"github.com/ahmetcoskunkizilkaya/agency-portal/internal/session"
)

var testUserID = uuid.MustParse("7b0c7f7e-5a49-4a57-9d4e-2f4a3f0c1a11")

func signToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   sub,
		"email": "ada@example.com",
		"exp":   exp.Unix(),
	})
	s, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func tokenResponse(t *testing.T, refresh string) dto.TokenResponse {
	exp := time.Now().Add(time.Hour)
	return dto.TokenResponse{
		AccessToken:  signToken(t, testUserID.String(), exp),
		TokenType:    "bearer",
		ExpiresIn:    3600,
		ExpiresAt:    exp.Unix(),
		RefreshToken: refresh,
		User:         dto.UserResponse{ID: testUserID, Email: "ada@example.com"},
	}
}

type eventLog struct {
	mu     sync.Mutex
	events []session.Event
}

func (l *eventLog) record(ev session.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) kinds() []session.EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]session.EventKind, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Kind
	}
	return out
}

func waitKinds(t *testing.T, l *eventLog, want ...session.EventKind) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got := l.kinds()
		if len(got) == len(want) {
			for i := range got {
				if got[i] != want[i] {
					t.Fatalf("events = %v, want %v", got, want)
				}
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("events = %v, want %v", l.kinds(), want)
}

func newTestClient(t *testing.T, srv *httptest.Server, store Store) *Client {
	t.Helper()
	c := New(Config{
		BaseURL: srv.URL,
		Store:   store,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	t.Cleanup(c.Close)
	return c
}

func TestSignInWithPassword_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/token" || r.URL.Query().Get("grant_type") != "password" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL)
		}
		var req dto.PasswordGrantRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Email != "ada@example.com" || req.Password != "pw" {
			t.Errorf("unexpected body %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(tokenResponse(t, "r1"))
	}))
	defer srv.Close()

	store := &MemoryStore{}
	c := newTestClient(t, srv, store)
	log := &eventLog{}
	c.OnAuthStateChange(log.record)

	s, err := c.SignInWithPassword(context.Background(), "ada@example.com", "pw")
	if err != nil {
		t.Fatalf("SignInWithPassword() error = %v", err)
	}
	if s.User.ID != testUserID.String() {
		t.Errorf("User.ID = %q", s.User.ID)
	}
	if s.RefreshToken != "r1" {
		t.Errorf("RefreshToken = %q", s.RefreshToken)
	}
	if s.Expired(time.Now()) {
		t.Error("session should not be expired")
	}

	stored, _ := store.Load()
	if stored == nil || stored.AccessToken != s.AccessToken {
		t.Error("session should be persisted")
	}
	waitKinds(t, log, session.EventSignedIn)
}

func TestSignInWithPassword_CredentialErrorVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(dto.ErrorResponse{Error: true, Message: "Invalid login credentials"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	_, err := c.SignInWithPassword(context.Background(), "ada@example.com", "nope")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusBadRequest {
		t.Errorf("Status = %d", apiErr.Status)
	}
	if err.Error() != "Invalid login credentials" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestDecodeError_Fallbacks(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"message", `{"message":"a"}`, "a"},
		{"msg", `{"msg":"b"}`, "b"},
		{"error_description", `{"error_description":"c"}`, "c"},
		{"empty", ``, "Unauthorized"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := decodeError(http.StatusUnauthorized, []byte(tt.body))
			if err.Error() != tt.want {
				t.Errorf("Error() = %q, want %q", err.Error(), tt.want)
			}
		})
	}
}

func TestGetSession_RestoresWithoutNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL)
	}))
	defer srv.Close()

	store := &MemoryStore{}
	store.Save(&rolegate.Session{
		AccessToken:  "a",
		RefreshToken: "r",
		ExpiresAt:    time.Now().Add(time.Hour),
		User:         rolegate.Identity{ID: testUserID.String()},
	})

	c := newTestClient(t, srv, store)
	s, err := c.GetSession(context.Background())
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if s == nil || s.AccessToken != "a" {
		t.Errorf("session = %+v", s)
	}
}

func TestGetSession_EmptyStore(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := newTestClient(t, srv, &MemoryStore{})
	s, err := c.GetSession(context.Background())
	if err != nil || s != nil {
		t.Errorf("GetSession() = %+v, %v; want nil, nil", s, err)
	}
}

func TestGetSession_RefreshesExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("grant_type") != "refresh_token" {
			t.Errorf("unexpected grant %q", r.URL.Query().Get("grant_type"))
		}
		var req dto.RefreshGrantRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.RefreshToken != "old" {
			t.Errorf("refresh token = %q", req.RefreshToken)
		}
		json.NewEncoder(w).Encode(tokenResponse(t, "new"))
	}))
	defer srv.Close()

	store := &MemoryStore{}
	store.Save(&rolegate.Session{
		AccessToken:  "stale",
		RefreshToken: "old",
		ExpiresAt:    time.Now().Add(-time.Minute),
		User:         rolegate.Identity{ID: testUserID.String()},
	})

	c := newTestClient(t, srv, store)
	log := &eventLog{}
	c.OnAuthStateChange(log.record)

	s, err := c.GetSession(context.Background())
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if s.RefreshToken != "new" {
		t.Errorf("RefreshToken = %q, want rotated", s.RefreshToken)
	}
	waitKinds(t, log, session.EventTokenRefreshed)
}

func TestRefresh_RejectedTokenSignsOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(dto.ErrorResponse{Error: true, Message: "invalid or expired refresh token"})
	}))
	defer srv.Close()

	store := &MemoryStore{}
	store.Save(&rolegate.Session{AccessToken: "a", RefreshToken: "r", ExpiresAt: time.Now().Add(-time.Minute)})

	c := newTestClient(t, srv, store)
	log := &eventLog{}
	c.OnAuthStateChange(log.record)

	if _, err := c.GetSession(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if s, _ := store.Load(); s != nil {
		t.Error("store should be cleared")
	}
	waitKinds(t, log, session.EventSignedOut)
}

func TestSignOut_RevokesAndClears(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/v1/token":
			json.NewEncoder(w).Encode(tokenResponse(t, "r1"))
		case "/auth/v1/logout":
			gotAuth = r.Header.Get("Authorization")
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	store := &MemoryStore{}
	c := newTestClient(t, srv, store)
	log := &eventLog{}
	c.OnAuthStateChange(log.record)

	s, err := c.SignInWithPassword(context.Background(), "ada@example.com", "pw")
	if err != nil {
		t.Fatal(err)
	}
	if err := c.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut() error = %v", err)
	}

	if gotAuth != "Bearer "+s.AccessToken {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if s, _ := store.Load(); s != nil {
		t.Error("store should be cleared")
	}
	waitKinds(t, log, session.EventSignedIn, session.EventSignedOut)
}

func TestSignUp_PendingConfirmation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(dto.TokenResponse{User: dto.UserResponse{ID: testUserID, Email: "ada@example.com"}})
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	s, err := c.SignUp(context.Background(), session.SignUpParams{Email: "ada@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if s != nil {
		t.Errorf("session = %+v, want nil until confirmed", s)
	}
}

func TestUpdatePassword_EmitsUserUpdated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/v1/user" {
			if r.Method != http.MethodPut {
				t.Errorf("method = %s", r.Method)
			}
			w.Write([]byte(`{}`))
			return
		}
		json.NewEncoder(w).Encode(tokenResponse(t, "r1"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	log := &eventLog{}
	c.OnAuthStateChange(log.record)

	if _, err := c.SignInWithPassword(context.Background(), "ada@example.com", "pw"); err != nil {
		t.Fatal(err)
	}
	if err := c.UpdatePassword(context.Background(), "n3w-password"); err != nil {
		t.Fatalf("UpdatePassword() error = %v", err)
	}
	waitKinds(t, log, session.EventSignedIn, session.EventUserUpdated)
}

func TestUpdatePassword_NoSession(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	if err := c.UpdatePassword(context.Background(), "x"); !errors.Is(err, ErrNoSession) {
		t.Errorf("error = %v, want ErrNoSession", err)
	}
}

func TestSessionFrom_SubjectMismatch(t *testing.T) {
	c := New(Config{})
	defer c.Close()

	resp := dto.TokenResponse{
		AccessToken: signToken(t, uuid.NewString(), time.Now().Add(time.Hour)),
		User:        dto.UserResponse{ID: testUserID},
	}
	if _, err := c.sessionFrom(&resp); err == nil {
		t.Error("expected subject mismatch error")
	}
}

func TestSessionFrom_FallsBackToClaims(t *testing.T) {
	c := New(Config{})
	defer c.Close()

	exp := time.Now().Add(30 * time.Minute).Truncate(time.Second)
	resp := dto.TokenResponse{AccessToken: signToken(t, testUserID.String(), exp)}
	s, err := c.sessionFrom(&resp)
	if err != nil {
		t.Fatalf("sessionFrom() error = %v", err)
	}
	if s.User.ID != testUserID.String() || s.User.Email != "ada@example.com" {
		t.Errorf("user = %+v", s.User)
	}
	if !s.ExpiresAt.Equal(exp) {
		t.Errorf("ExpiresAt = %v, want %v", s.ExpiresAt, exp)
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	fs := NewFileStore(path)

	if s, err := fs.Load(); err != nil || s != nil {
		t.Fatalf("Load() on missing file = %+v, %v", s, err)
	}

	want := &rolegate.Session{AccessToken: "a", RefreshToken: "r", ExpiresAt: time.Now().Add(time.Hour).UTC().Truncate(time.Second)}
	if err := fs.Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := fs.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.AccessToken != "a" || !got.ExpiresAt.Equal(want.ExpiresAt) {
		t.Errorf("Load() = %+v", got)
	}

	if err := fs.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if err := fs.Clear(); err != nil {
		t.Errorf("second Clear() error = %v", err)
	}
	if s, _ := fs.Load(); s != nil {
		t.Error("session should be gone")
	}
}

func TestStartAutoRefresh_RefreshesBeforeExpiry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("grant_type") {
		case "password":
			// Already inside the refresh margin.
			exp := time.Now().Add(30 * time.Second)
			resp := tokenResponse(t, "r1")
			resp.AccessToken = signToken(t, testUserID.String(), exp)
			resp.ExpiresAt = exp.Unix()
			json.NewEncoder(w).Encode(resp)
		case "refresh_token":
			json.NewEncoder(w).Encode(tokenResponse(t, "r2"))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv, &MemoryStore{})
	var log eventLog
	c.OnAuthStateChange(log.record)
	if _, err := c.SignInWithPassword(context.Background(), "ada@example.com", "pw"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.StartAutoRefresh(ctx)
	}()

	waitKinds(t, &log, session.EventSignedIn, session.EventTokenRefreshed)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("StartAutoRefresh did not stop after cancel")
	}

	s, err := c.GetSession(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if s.RefreshToken != "r2" {
		t.Errorf("RefreshToken = %q, want r2", s.RefreshToken)
	}
}

// rotatingServer issues single-use refresh tokens: each exchange retires the
// presented token.
type rotatingServer struct {
	mu        sync.Mutex
	valid     string
	exchanges int
}

func (rs *rotatingServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("grant_type") {
		case "password":
			exp := time.Now().Add(30 * time.Second)
			resp := tokenResponse(t, "r1")
			resp.AccessToken = signToken(t, testUserID.String(), exp)
			resp.ExpiresAt = exp.Unix()
			rs.mu.Lock()
			rs.valid = "r1"
			rs.mu.Unlock()
			json.NewEncoder(w).Encode(resp)
		case "refresh_token":
			var req dto.RefreshGrantRequest
			json.NewDecoder(r.Body).Decode(&req)

			rs.mu.Lock()
			if req.RefreshToken != rs.valid {
				rs.mu.Unlock()
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(dto.ErrorResponse{Error: true, Message: "Invalid Refresh Token"})
				return
			}
			rs.exchanges++
			next := fmt.Sprintf("r%d", rs.exchanges+1)
			rs.valid = next
			rs.mu.Unlock()

			// Keeps concurrent callers overlapping.
			time.Sleep(50 * time.Millisecond)
			json.NewEncoder(w).Encode(tokenResponse(t, next))
		}
	}
}

func (rs *rotatingServer) exchangeCount() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.exchanges
}

func TestRefresh_ConcurrentCallersShareOneExchange(t *testing.T) {
	rs := &rotatingServer{}
	srv := httptest.NewServer(rs.handler(t))
	defer srv.Close()

	c := newTestClient(t, srv, &MemoryStore{})
	log := &eventLog{}
	c.OnAuthStateChange(log.record)
	if _, err := c.SignInWithPassword(context.Background(), "ada@example.com", "pw"); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.AccessToken(context.Background())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("AccessToken %d error = %v", i, err)
		}
	}
	if got := rs.exchangeCount(); got != 1 {
		t.Errorf("refresh exchanges = %d, want 1", got)
	}
	waitKinds(t, log, session.EventSignedIn, session.EventTokenRefreshed)
}

func TestRefresh_RejectedRotatedTokenKeepsSession(t *testing.T) {
	rs := &rotatingServer{}
	srv := httptest.NewServer(rs.handler(t))
	defer srv.Close()

	c := newTestClient(t, srv, &MemoryStore{})
	log := &eventLog{}
	c.OnAuthStateChange(log.record)
	if _, err := c.SignInWithPassword(context.Background(), "ada@example.com", "pw"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	// A late exchange with the retired token.
	s, err := c.exchange(context.Background(), "r1")
	if err != nil {
		t.Fatalf("exchange() error = %v", err)
	}
	if s.RefreshToken != "r2" {
		t.Errorf("RefreshToken = %q, want r2", s.RefreshToken)
	}
	waitKinds(t, log, session.EventSignedIn, session.EventTokenRefreshed)
	if cur, _ := c.GetSession(context.Background()); cur == nil {
		t.Error("session dropped after a stale rejection")
	}
}
