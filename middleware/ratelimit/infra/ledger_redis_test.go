package infra

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// unreachableRedis devolve um client apontando para uma porta fechada, com
// timeouts curtos: toda chamada falha rápido, simulando o redis fora do ar.
func unreachableRedis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		ReadTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestRedisLedger_FallsBackToMemoryWhenRedisDown(t *testing.T) {
	rdb := unreachableRedis()
	defer func() { _ = rdb.Close() }()

	l := NewRedisLedger(rdb, time.Minute)
	ctx := context.Background()

	// com o redis fora, a decisão continua saindo (fallback local), nunca erro
	if dec := l.TryConsume(ctx, "k", 1, 2); !dec.Allowed {
		t.Fatalf("expected allowed via fallback")
	}
	if dec := l.TryConsume(ctx, "k", 1, 2); !dec.Allowed {
		t.Fatalf("expected second allowed via fallback")
	}
	if dec := l.TryConsume(ctx, "k", 1, 2); dec.Allowed {
		t.Fatalf("expected denied via fallback once budget is spent")
	}
}

func TestRedisLedger_LogsOutageOncePerTransition(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	rdb := unreachableRedis()
	defer func() { _ = rdb.Close() }()

	l := NewRedisLedger(rdb, time.Minute, WithLogger(zap.New(core)))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		l.TryConsume(ctx, "k", 1, 100)
	}

	if got := logs.FilterMessage("redis ledger unavailable, falling back to in-memory").Len(); got != 1 {
		t.Fatalf("expected exactly 1 outage log for the whole outage, got %d", got)
	}
}

func TestRedisLedger_PenalizeFallsBackAndClamps(t *testing.T) {
	rdb := unreachableRedis()
	defer func() { _ = rdb.Close() }()

	l := NewRedisLedger(rdb, time.Minute)
	ctx := context.Background()

	l.TryConsume(ctx, "k", 8, 10)
	dec := l.Penalize(ctx, "k", 10, 10)
	if dec.Remaining != 0 {
		t.Fatalf("expected remaining=0 after clamped penalty, got %v", dec.Remaining)
	}
}

func TestParseConsumeReply(t *testing.T) {
	if _, _, ok := parseConsumeReply("nope"); ok {
		t.Fatalf("expected reject of non-array reply")
	}
	if _, _, ok := parseConsumeReply([]any{int64(1)}); ok {
		t.Fatalf("expected reject of short reply")
	}
	allowed, remaining, ok := parseConsumeReply([]any{int64(1), "2.5"})
	if !ok || !allowed || remaining != 2.5 {
		t.Fatalf("expected allowed with remaining=2.5, got ok=%v allowed=%v remaining=%v", ok, allowed, remaining)
	}
	allowed, remaining, ok = parseConsumeReply([]any{int64(0), "0"})
	if !ok || allowed || remaining != 0 {
		t.Fatalf("expected denied with remaining=0, got ok=%v allowed=%v remaining=%v", ok, allowed, remaining)
	}
}

func TestRedisLedger_WindowKeyIsEpochStable(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 30, 0, time.UTC)
	l := NewRedisLedger(unreachableRedis(), time.Minute,
		WithRedisClock(func() time.Time { return now }))

	key1, retry := l.windowKey("user:42", now)
	if retry != 30*time.Second {
		t.Fatalf("expected 30s until next window, got %s", retry)
	}

	// mesma janela, mesma chave
	key2, _ := l.windowKey("user:42", now.Add(29*time.Second))
	if key1 != key2 {
		t.Fatalf("expected same key within window: %q vs %q", key1, key2)
	}

	// janela seguinte, chave nova
	key3, _ := l.windowKey("user:42", now.Add(30*time.Second))
	if key1 == key3 {
		t.Fatalf("expected different key in next window")
	}
}
