package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	authkit "github.com/noteleaf/authkit"
	"github.com/noteleaf/authkit/ledger"
	"github.com/noteleaf/authkit/middleware"
	"github.com/redis/go-redis/v9"
)

type staticProvider struct{}

func (staticProvider) FindSubjectByID(_ context.Context, subjectID string) (authkit.Identity, error) {
	if subjectID == "u1" {
		return authkit.Identity{SubjectID: "u1", Role: "member"}, nil
	}
	return authkit.Identity{}, errors.New("unknown subject")
}

type guardFixture struct {
	engine *authkit.Engine
	clock  *shiftClock
}

type shiftClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *shiftClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *shiftClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newGuardFixture(t *testing.T) *guardFixture {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := authkit.DefaultConfig()
	cfg.Tokens.AccessSecret = []byte("access-secret-access-secret-0001")
	cfg.Tokens.RefreshSecret = []byte("refresh-secret-refresh-secret-01")

	clock := &shiftClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	engine, err := authkit.New().
		WithConfig(cfg).
		WithRedis(client).
		WithLedger(ledger.NewMemoryStore()).
		WithIdentityProvider(staticProvider{}).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	return &guardFixture{engine: engine, clock: clock}
}

func echoHandler(t *testing.T, wantSubject string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, ok := middleware.AuthResultFromContext(r.Context())
		if !ok {
			t.Error("auth result missing from context")
			return
		}
		if res.SubjectID != wantSubject {
			t.Errorf("subject = %q, want %q", res.SubjectID, wantSubject)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestGuardValidBearerPassesThrough(t *testing.T) {
	f := newGuardFixture(t)
	pair, err := f.engine.Issue(context.Background(), "u1", authkit.IssueOptions{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	handler := middleware.Guard(f.engine)(echoHandler(t, "u1"))

	req := httptest.NewRequest("GET", "/notes", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	// no renewal happened, nothing to set
	if cookies := rec.Result().Cookies(); len(cookies) != 0 {
		t.Fatalf("unexpected Set-Cookie: %v", cookies)
	}
}

func TestGuardRenewsExpiredAccess(t *testing.T) {
	f := newGuardFixture(t)
	pair, err := f.engine.Issue(context.Background(), "u1", authkit.IssueOptions{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	f.clock.Advance(20 * time.Minute)

	handler := middleware.Guard(f.engine)(echoHandler(t, "u1"))

	req := httptest.NewRequest("GET", "/notes", nil)
	req.AddCookie(&http.Cookie{Name: "accessToken", Value: pair.AccessToken})
	req.AddCookie(&http.Cookie{Name: "refreshToken", Value: pair.RefreshToken})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// both credentials rewritten mid-request
	var gotAccess, gotRefresh *http.Cookie
	for _, c := range rec.Result().Cookies() {
		switch c.Name {
		case "accessToken":
			gotAccess = c
		case "refreshToken":
			gotRefresh = c
		}
	}
	if gotAccess == nil || gotRefresh == nil {
		t.Fatalf("cookies = %v", rec.Result().Cookies())
	}
	if gotAccess.Value == pair.AccessToken || gotRefresh.Value == pair.RefreshToken {
		t.Fatal("cookies not renewed")
	}
	if !gotAccess.HttpOnly || !gotRefresh.HttpOnly {
		t.Fatal("session cookies must be HttpOnly")
	}
	if gotRefresh.MaxAge != pair.RefreshTTL {
		t.Fatalf("refresh Max-Age = %d, want %d", gotRefresh.MaxAge, pair.RefreshTTL)
	}

	// the consumed refresh token must not renew again
	replayReq := httptest.NewRequest("GET", "/notes", nil)
	replayReq.AddCookie(&http.Cookie{Name: "refreshToken", Value: pair.RefreshToken})
	replayRec := httptest.NewRecorder()
	handler.ServeHTTP(replayRec, replayReq)

	if replayRec.Code != http.StatusUnauthorized {
		t.Fatalf("replay status = %d, want 401", replayRec.Code)
	}
	if cookies := replayRec.Result().Cookies(); len(cookies) != 0 {
		t.Fatalf("replay must not receive cookies: %v", cookies)
	}
}

func TestGuardNoCredentials(t *testing.T) {
	f := newGuardFixture(t)
	handler := middleware.Guard(f.engine)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("handler reached without credentials")
	}))

	req := httptest.NewRequest("GET", "/notes", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestGuardGarbageRefresh(t *testing.T) {
	f := newGuardFixture(t)
	handler := middleware.Guard(f.engine)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("handler reached with garbage refresh")
	}))

	req := httptest.NewRequest("GET", "/notes", nil)
	req.AddCookie(&http.Cookie{Name: "refreshToken", Value: "not-a-token"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if cookies := rec.Result().Cookies(); len(cookies) != 0 {
		t.Fatalf("failed renewal must not set cookies: %v", cookies)
	}
}

func TestGuardRefreshViaHeader(t *testing.T) {
	f := newGuardFixture(t)
	pair, err := f.engine.Issue(context.Background(), "u1", authkit.IssueOptions{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	handler := middleware.Guard(f.engine)(echoHandler(t, "u1"))

	req := httptest.NewRequest("GET", "/notes", nil)
	req.Header.Set("X-Refresh-Token", pair.RefreshToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRequireAccessBearerOnly(t *testing.T) {
	f := newGuardFixture(t)
	pair, err := f.engine.Issue(context.Background(), "u1", authkit.IssueOptions{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	handler := middleware.RequireAccess(f.engine)(echoHandler(t, "u1"))

	// bearer passes
	req := httptest.NewRequest("GET", "/api", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("bearer status = %d", rec.Code)
	}

	// cookie alone does not
	cookieReq := httptest.NewRequest("GET", "/api", nil)
	cookieReq.AddCookie(&http.Cookie{Name: "accessToken", Value: pair.AccessToken})
	cookieRec := httptest.NewRecorder()
	handler.ServeHTTP(cookieRec, cookieReq)
	if cookieRec.Code != http.StatusUnauthorized {
		t.Fatalf("cookie status = %d, want 401", cookieRec.Code)
	}

	// refresh cookie never rotates here
	refreshReq := httptest.NewRequest("GET", "/api", nil)
	refreshReq.AddCookie(&http.Cookie{Name: "refreshToken", Value: pair.RefreshToken})
	refreshRec := httptest.NewRecorder()
	handler.ServeHTTP(refreshRec, refreshReq)
	if refreshRec.Code != http.StatusUnauthorized {
		t.Fatalf("refresh status = %d, want 401", refreshRec.Code)
	}
}
