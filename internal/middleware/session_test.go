package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func tokenEcho(t *testing.T, req *http.Request) string {
	t.Helper()
	var got string
	h := Session()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetSessionToken(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), req)
	return got
}

func TestSessionFromCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/auth/status", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "tok-cookie"})

	if got := tokenEcho(t, req); got != "tok-cookie" {
		t.Fatalf("token = %q, want tok-cookie", got)
	}
}

func TestSessionFromQueryFallback(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws?session=tok-query", nil)

	if got := tokenEcho(t, req); got != "tok-query" {
		t.Fatalf("token = %q, want tok-query", got)
	}
}

func TestSessionCookieWinsOverQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws?session=tok-query", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "tok-cookie"})

	if got := tokenEcho(t, req); got != "tok-cookie" {
		t.Fatalf("token = %q, want tok-cookie", got)
	}
}

func TestSessionAbsent(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)

	if got := tokenEcho(t, req); got != "" {
		t.Fatalf("token = %q, want empty", got)
	}
}

func TestValidateLimit(t *testing.T) {
	if got, err := ValidateLimit(0, 20, 100); err != nil || got != 20 {
		t.Fatalf("default limit = %d, %v", got, err)
	}
	if got, err := ValidateLimit(50, 20, 100); err != nil || got != 50 {
		t.Fatalf("explicit limit = %d, %v", got, err)
	}
	if _, err := ValidateLimit(101, 20, 100); err == nil {
		t.Fatal("expected error for limit over max")
	}
	if _, err := ValidateLimit(-1, 20, 100); err == nil {
		t.Fatal("expected error for negative limit")
	}
}
