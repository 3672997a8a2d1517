package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"keeper-gateway/middleware/ratelimit/application"
	"keeper-gateway/middleware/ratelimit/domain"
	"keeper-gateway/middleware/ratelimit/infra"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func statusHandler(status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
}

func newRequest(path string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, path, nil)
	r.RemoteAddr = "10.0.0.1:5000"
	return r
}

func TestMiddleware_AllowsThenRejectsWith429(t *testing.T) {
	svc := application.Service{
		Ledger:       infra.NewMemoryLedger(time.Minute),
		Costs:        domain.CostTable{Default: 1},
		DefaultLimit: 2,
	}
	h := Middleware(Options{Service: svc, AddRateLimitHeaders: true})(okHandler())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, newRequest("/servers"))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, newRequest("/servers"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 once budget is spent, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header on 429")
	}
}

func TestMiddleware_SetsRateLimitHeaders(t *testing.T) {
	svc := application.Service{
		Ledger:       infra.NewMemoryLedger(time.Minute),
		Costs:        domain.CostTable{Default: 1, Entries: []domain.CostEntry{{Prefix: "/server_prices", Cost: 5}}},
		DefaultLimit: 60,
	}
	h := Middleware(Options{Service: svc, AddRateLimitHeaders: true})(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, newRequest("/server_prices"))

	if got := rec.Header().Get("X-RateLimit-Limit"); got != "60" {
		t.Fatalf("expected X-RateLimit-Limit=60, got %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Cost"); got != "5" {
		t.Fatalf("expected X-RateLimit-Cost=5, got %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "55" {
		t.Fatalf("expected X-RateLimit-Remaining=55, got %q", got)
	}
}

func TestMiddleware_NoHeadersWhenDisabledByOption(t *testing.T) {
	svc := application.Service{
		Ledger:       infra.NewMemoryLedger(time.Minute),
		Costs:        domain.CostTable{Default: 1},
		DefaultLimit: 60,
	}
	h := Middleware(Options{Service: svc})(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, newRequest("/servers"))
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "" {
		t.Fatalf("expected no rate limit headers, got X-RateLimit-Limit=%q", got)
	}
}

func TestMiddleware_DisabledWithoutLedgerPassesThrough(t *testing.T) {
	h := Middleware(Options{})(okHandler())

	// sem ledger não há contagem: qualquer volume passa
	for i := 0; i < 100; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, newRequest("/servers"))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected pass-through, got %d", rec.Code)
		}
	}
}

func TestMiddleware_PenalizesUnauthorizedOnce(t *testing.T) {
	led := infra.NewMemoryLedger(time.Minute)
	svc := application.Service{
		Ledger:       led,
		Costs:        domain.CostTable{Default: 1},
		DefaultLimit: 60,
		Penalty:      10,
	}
	h := Middleware(Options{Service: svc, AddRateLimitHeaders: true})(statusHandler(http.StatusUnauthorized))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, newRequest("/servers"))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected handler 401 to pass through, got %d", rec.Code)
	}

	// custo 1 + penalidade 10 = 11 debitados; a próxima leitura mostra 49
	dec := led.TryConsume(context.Background(), "ip:10.0.0.1", 0, 60)
	if dec.Remaining != 49 {
		t.Fatalf("expected remaining=49 after cost+penalty, got %v", dec.Remaining)
	}
}

func TestMiddleware_NoPenaltyOnSuccess(t *testing.T) {
	led := infra.NewMemoryLedger(time.Minute)
	svc := application.Service{
		Ledger:       led,
		Costs:        domain.CostTable{Default: 1},
		DefaultLimit: 60,
		Penalty:      10,
	}
	h := Middleware(Options{Service: svc})(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, newRequest("/servers"))

	dec := led.TryConsume(context.Background(), "ip:10.0.0.1", 0, 60)
	if dec.Remaining != 59 {
		t.Fatalf("expected remaining=59 (cost only), got %v", dec.Remaining)
	}
}

func TestMiddleware_LimitFnOverridesDefault(t *testing.T) {
	svc := application.Service{
		Ledger:       infra.NewMemoryLedger(time.Minute),
		Costs:        domain.CostTable{Default: 1},
		DefaultLimit: 2,
	}
	h := Middleware(Options{
		Service:             svc,
		AddRateLimitHeaders: true,
		LimitFn:             func(*http.Request) float64 { return 600 },
	})(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, newRequest("/servers"))
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "600" {
		t.Fatalf("expected override limit 600, got %q", got)
	}
}

func TestMiddleware_RecordsStats(t *testing.T) {
	stats := infra.NewMemoryStatsStore()
	svc := application.Service{
		Ledger:       infra.NewMemoryLedger(time.Minute),
		Costs:        domain.CostTable{Default: 1},
		DefaultLimit: 1,
	}
	h := Middleware(Options{Service: svc, Stats: stats})(okHandler())

	h.ServeHTTP(httptest.NewRecorder(), newRequest("/servers"))
	h.ServeHTTP(httptest.NewRecorder(), newRequest("/servers"))

	total := stats.Total()
	if total.Allowed != 1 || total.Denied != 1 {
		t.Fatalf("expected 1 allowed / 1 denied recorded, got %+v", total)
	}
}

func TestMiddleware_WriterSupportsFlush(t *testing.T) {
	svc := application.Service{
		Ledger:       infra.NewMemoryLedger(time.Minute),
		Costs:        domain.CostTable{Default: 1},
		DefaultLimit: 60,
	}

	// streaming do proxy: o Flush precisa atravessar o wrapper de status
	var flushErr error
	h := Middleware(Options{Service: svc})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("chunk"))
		flushErr = http.NewResponseController(w).Flush()
	}))

	h.ServeHTTP(httptest.NewRecorder(), newRequest("/servers"))
	if flushErr != nil {
		t.Fatalf("expected flush to pass through the wrapper, got %v", flushErr)
	}
}

func TestRetryAfterSeconds_RoundsUp(t *testing.T) {
	if got := retryAfterSeconds(300 * time.Millisecond); got != 1 {
		t.Fatalf("expected 1s for 300ms, got %d", got)
	}
	if got := retryAfterSeconds(1500 * time.Millisecond); got != 2 {
		t.Fatalf("expected 2s for 1.5s, got %d", got)
	}
	if got := retryAfterSeconds(2 * time.Second); got != 2 {
		t.Fatalf("expected 2s for 2s, got %d", got)
	}
}
