package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/formflow/api/internal/platform/requestctx"
	"github.com/formflow/api/internal/platform/session"
)

func newTestSessionManager(t *testing.T) *session.Manager {
	t.Helper()
	manager, err := session.NewManager("test-signing-secret", "ff_session", time.Hour)
	if err != nil {
		t.Fatalf("new session manager: %v", err)
	}
	return manager
}

func TestSessionMiddlewareIssuesNewSession(t *testing.T) {
	manager := newTestSessionManager(t)

	var seen string
	handler := SessionMiddleware(manager)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestctx.SessionID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/wizard/state", nil))

	if seen == "" {
		t.Fatalf("expected a session id on the context")
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "ff_session" {
		t.Fatalf("expected ff_session cookie, got %v", cookies)
	}
	if !cookies[0].HttpOnly {
		t.Fatalf("expected HttpOnly cookie")
	}

	parsed, err := manager.Parse(cookies[0].Value)
	if err != nil {
		t.Fatalf("parse issued cookie: %v", err)
	}
	if parsed != seen {
		t.Fatalf("cookie session %q does not match context session %q", parsed, seen)
	}
}

func TestSessionMiddlewareReusesValidSession(t *testing.T) {
	manager := newTestSessionManager(t)
	sessionID := manager.NewSessionID()
	token, err := manager.Issue(sessionID)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	var seen string
	handler := SessionMiddleware(manager)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestctx.SessionID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/wizard/state", nil)
	req.AddCookie(&http.Cookie{Name: "ff_session", Value: token})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != sessionID {
		t.Fatalf("expected existing session %q, got %q", sessionID, seen)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatalf("expected no new cookie for a valid session")
	}
}

func TestSessionMiddlewareReplacesInvalidCookie(t *testing.T) {
	manager := newTestSessionManager(t)

	var seen string
	handler := SessionMiddleware(manager)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestctx.SessionID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/wizard/state", nil)
	req.AddCookie(&http.Cookie{Name: "ff_session", Value: "garbage"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen == "" {
		t.Fatalf("expected a replacement session id")
	}
	if len(rec.Result().Cookies()) != 1 {
		t.Fatalf("expected a replacement cookie")
	}
}

func TestSessionMiddlewareNilManager(t *testing.T) {
	handler := SessionMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not run without a session manager")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/wizard/state", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
