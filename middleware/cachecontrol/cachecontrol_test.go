package cachecontrol

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func serve(opts Options, path string) *httptest.ResponseRecorder {
	h := Middleware(opts)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestMiddleware_RuleMatchSetsMaxAge(t *testing.T) {
	opts := Options{
		Default: 60 * time.Second,
		Rules: []Rule{
			{Prefix: "/server_prices", MaxAge: 5 * time.Minute},
			{Prefix: "/healthcheck", MaxAge: 0},
		},
	}

	if got := serve(opts, "/server_prices/aws").Header().Get("Cache-Control"); got != "public, max-age=300" {
		t.Fatalf("expected 5min rule, got %q", got)
	}
	if got := serve(opts, "/servers").Header().Get("Cache-Control"); got != "public, max-age=60" {
		t.Fatalf("expected default, got %q", got)
	}
	// MaxAge 0 suprime o header mesmo com default configurado
	if got := serve(opts, "/healthcheck").Header().Get("Cache-Control"); got != "" {
		t.Fatalf("expected no header for healthcheck, got %q", got)
	}
}

func TestMiddleware_NoHeaderWithoutConfig(t *testing.T) {
	if got := serve(Options{}, "/anything").Header().Get("Cache-Control"); got != "" {
		t.Fatalf("expected no header, got %q", got)
	}
}

func TestMiddleware_FirstMatchingRuleWins(t *testing.T) {
	opts := Options{
		Rules: []Rule{
			{Prefix: "/server_prices", MaxAge: 5 * time.Minute},
			{Prefix: "/server", MaxAge: time.Minute},
		},
	}
	if got := serve(opts, "/server_prices").Header().Get("Cache-Control"); got != "public, max-age=300" {
		t.Fatalf("expected first rule to win, got %q", got)
	}
}
