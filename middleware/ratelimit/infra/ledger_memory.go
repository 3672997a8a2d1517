package infra

import (
	"context"
	"sync"
	"time"

	"keeper-gateway/middleware/ratelimit/domain"
)

// MemoryLedger é o Ledger em memória: janela fixa por chave, com consumo
// acumulado protegido por lock por bucket.
//
// O início da janela é now truncado pelo tamanho da janela (época estável),
// então uma request que chega exatamente na fronteira pertence à janela nova,
// de forma determinística, sem depender de jitter de relógio.
//
// Correto apenas dentro de um processo; para múltiplas instâncias use o
// RedisLedger.
type MemoryLedger struct {
	mu      sync.RWMutex
	buckets map[string]*bucket

	window       time.Duration
	idleTTL      time.Duration
	cleanupEvery time.Duration

	now func() time.Time
}

type bucket struct {
	mu          sync.Mutex
	consumed    float64
	windowStart time.Time
	lastSeen    time.Time
}

type MemoryLedgerOption func(*MemoryLedger)

func WithIdleTTL(d time.Duration) MemoryLedgerOption {
	return func(l *MemoryLedger) { l.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) MemoryLedgerOption {
	return func(l *MemoryLedger) { l.cleanupEvery = d }
}

// WithClock troca a fonte de tempo (para testes).
func WithClock(now func() time.Time) MemoryLedgerOption {
	return func(l *MemoryLedger) { l.now = now }
}

func NewMemoryLedger(window time.Duration, opts ...MemoryLedgerOption) *MemoryLedger {
	if window <= 0 {
		window = time.Minute
	}
	l := &MemoryLedger{
		buckets:      make(map[string]*bucket),
		window:       window,
		idleTTL:      2 * window,
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *MemoryLedger) Window() time.Duration { return l.window }

// TryConsume implementa domain.Ledger.
func (l *MemoryLedger) TryConsume(_ context.Context, key domain.Key, cost, limit float64) domain.Decision {
	now := l.now()
	b := l.get(string(key))

	b.mu.Lock()
	defer b.mu.Unlock()

	l.roll(b, now)
	b.lastSeen = now

	retry := b.windowStart.Add(l.window).Sub(now)
	if b.consumed+cost > limit {
		remaining := limit - b.consumed
		if remaining < 0 {
			remaining = 0
		}
		return domain.Decision{Allowed: false, Remaining: remaining, RetryAfter: retry}
	}

	b.consumed += cost
	return domain.Decision{Allowed: true, Remaining: limit - b.consumed, RetryAfter: 0}
}

// Penalize implementa domain.Ledger: debita até amount, truncando em zero.
func (l *MemoryLedger) Penalize(_ context.Context, key domain.Key, amount, limit float64) domain.Decision {
	now := l.now()
	b := l.get(string(key))

	b.mu.Lock()
	defer b.mu.Unlock()

	l.roll(b, now)
	b.lastSeen = now

	b.consumed += amount
	if b.consumed > limit {
		b.consumed = limit
	}
	remaining := limit - b.consumed
	if remaining < 0 {
		remaining = 0
	}
	return domain.Decision{Allowed: true, Remaining: remaining}
}

// roll reinicia o bucket quando a janela atual é outra. Chamar com b.mu travado.
func (l *MemoryLedger) roll(b *bucket, now time.Time) {
	ws := now.Truncate(l.window)
	if !b.windowStart.Equal(ws) {
		b.windowStart = ws
		b.consumed = 0
	}
}

// get retorna o bucket da chave, criando sob demanda.
// O lock externo protege apenas o mapa; o débito usa o lock do próprio bucket,
// então chaves distintas não se serializam.
func (l *MemoryLedger) get(key string) *bucket {
	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[key]; ok {
		return b
	}
	b = &bucket{}
	l.buckets[key] = b
	return b
}

func (l *MemoryLedger) Cleanup() {
	cutoff := l.now().Add(-l.idleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()

	for k, b := range l.buckets {
		b.mu.Lock()
		idle := b.lastSeen.Before(cutoff)
		b.mu.Unlock()
		if idle {
			delete(l.buckets, k)
		}
	}
}

// StartJanitor inicia uma goroutine que remove buckets inativos periodicamente.
// Pare cancelando o contexto.
func (l *MemoryLedger) StartJanitor(ctx context.Context) {
	if l.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(l.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				l.Cleanup()
			}
		}
	}()
}
