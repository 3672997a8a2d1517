package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDefaultKeyFunc_HeaderWins(t *testing.T) {
	fn := DefaultKeyFunc("X-Api-Key", true)

	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.Header.Set("X-Api-Key", "abc123")
	r.Header.Set("X-Forwarded-For", "1.2.3.4")
	r.RemoteAddr = "10.0.0.1:5000"

	if got := fn(r); got != "key:abc123" {
		t.Fatalf("expected key:abc123, got %q", got)
	}
}

func TestDefaultKeyFunc_XFFFirstHop(t *testing.T) {
	fn := DefaultKeyFunc("", true)

	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8")
	r.RemoteAddr = "10.0.0.1:5000"

	if got := fn(r); got != "ip:1.2.3.4" {
		t.Fatalf("expected first XFF hop, got %q", got)
	}
}

func TestDefaultKeyFunc_XFFIgnoredWhenUntrusted(t *testing.T) {
	fn := DefaultKeyFunc("", false)

	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.Header.Set("X-Forwarded-For", "1.2.3.4")
	r.RemoteAddr = "10.0.0.1:5000"

	// sem confiança no proxy, o header é spoofável: cai no RemoteAddr
	if got := fn(r); got != "ip:10.0.0.1" {
		t.Fatalf("expected RemoteAddr fallback, got %q", got)
	}
}

func TestDefaultKeyFunc_RemoteAddrWithoutPort(t *testing.T) {
	fn := DefaultKeyFunc("", false)

	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.RemoteAddr = "10.0.0.1"

	if got := fn(r); got != "ip:10.0.0.1" {
		t.Fatalf("expected raw RemoteAddr, got %q", got)
	}
}

func TestDefaultKeyFunc_UnknownWhenEmpty(t *testing.T) {
	fn := DefaultKeyFunc("", false)

	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.RemoteAddr = ""

	if got := fn(r); got != "ip:unknown" {
		t.Fatalf("expected ip:unknown, got %q", got)
	}
}
