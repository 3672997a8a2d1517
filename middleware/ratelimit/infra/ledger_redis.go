package infra

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"keeper-gateway/middleware/ratelimit/domain"
)

// consumeScript faz o check-and-decrement atômico da janela fixa.
// A chave já carrega o início da janela, então o script só enxerga o consumo
// acumulado da janela corrente. Valores trafegam como string para preservar
// frações de crédito (retorno numérico de Lua viraria inteiro).
var consumeScript = redis.NewScript(`
local consumed = tonumber(redis.call('GET', KEYS[1]) or '0')
local limit = tonumber(ARGV[1])
local cost = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])
if consumed + cost > limit then
  return {0, tostring(math.max(0, limit - consumed))}
end
consumed = consumed + cost
redis.call('SET', KEYS[1], tostring(consumed), 'EX', ttl)
return {1, tostring(limit - consumed)}
`)

// penalizeScript debita até amount, truncando o saldo em zero.
var penalizeScript = redis.NewScript(`
local consumed = tonumber(redis.call('GET', KEYS[1]) or '0')
local limit = tonumber(ARGV[1])
local amount = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])
consumed = math.min(limit, consumed + amount)
redis.call('SET', KEYS[1], tostring(consumed), 'EX', ttl)
return tostring(math.max(0, limit - consumed))
`)

// RedisLedger é o Ledger compartilhado entre instâncias: o consumo é um script
// atômico no redis, com a janela embutida na chave (época estável, mesmo
// tie-break da implementação em memória).
//
// Quando o redis está indisponível, cai para um MemoryLedger local pelo tempo
// que durar a queda, e volta sozinho quando o redis responde de novo. A queda
// é logada uma vez por transição (não por request).
type RedisLedger struct {
	rdb      *redis.Client
	fallback *MemoryLedger

	window time.Duration
	prefix string

	logger   *zap.Logger
	down     atomic.Bool
	logEvery rate.Sometimes

	now func() time.Time
}

type RedisLedgerOption func(*RedisLedger)

func WithPrefix(prefix string) RedisLedgerOption {
	return func(l *RedisLedger) { l.prefix = prefix }
}

func WithLogger(logger *zap.Logger) RedisLedgerOption {
	return func(l *RedisLedger) { l.logger = logger }
}

// WithRedisClock troca a fonte de tempo (para testes).
func WithRedisClock(now func() time.Time) RedisLedgerOption {
	return func(l *RedisLedger) { l.now = now }
}

func NewRedisLedger(rdb *redis.Client, window time.Duration, opts ...RedisLedgerOption) *RedisLedger {
	if window <= 0 {
		window = time.Minute
	}
	l := &RedisLedger{
		rdb:      rdb,
		window:   window,
		prefix:   "ratelimit",
		logger:   zap.NewNop(),
		logEvery: rate.Sometimes{Interval: time.Minute},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.fallback = NewMemoryLedger(window, WithClock(l.now))
	return l
}

func (l *RedisLedger) Window() time.Duration { return l.window }

// TryConsume implementa domain.Ledger.
func (l *RedisLedger) TryConsume(ctx context.Context, key domain.Key, cost, limit float64) domain.Decision {
	now := l.now()
	redisKey, retry := l.windowKey(string(key), now)

	res, err := consumeScript.Run(ctx, l.rdb,
		[]string{redisKey},
		formatCredits(limit), formatCredits(cost), l.ttlSeconds(),
	).Result()
	if err != nil {
		l.degraded(err)
		return l.fallback.TryConsume(ctx, key, cost, limit)
	}
	l.recovered()

	allowed, remaining, ok := parseConsumeReply(res)
	if !ok {
		// resposta fora do formato esperado: trata como queda
		l.degraded(errUnexpectedReply)
		return l.fallback.TryConsume(ctx, key, cost, limit)
	}

	dec := domain.Decision{Allowed: allowed, Remaining: remaining}
	if !allowed {
		dec.RetryAfter = retry
	}
	return dec
}

// Penalize implementa domain.Ledger: debita até amount, truncando em zero.
func (l *RedisLedger) Penalize(ctx context.Context, key domain.Key, amount, limit float64) domain.Decision {
	now := l.now()
	redisKey, _ := l.windowKey(string(key), now)

	res, err := penalizeScript.Run(ctx, l.rdb,
		[]string{redisKey},
		formatCredits(limit), formatCredits(amount), l.ttlSeconds(),
	).Result()
	if err != nil {
		l.degraded(err)
		return l.fallback.Penalize(ctx, key, amount, limit)
	}
	l.recovered()

	remaining, ok := parseCredits(res)
	if !ok {
		l.degraded(errUnexpectedReply)
		return l.fallback.Penalize(ctx, key, amount, limit)
	}
	return domain.Decision{Allowed: true, Remaining: remaining}
}

// windowKey monta a chave com o início da janela e devolve também o tempo até
// a próxima janela (Retry-After).
func (l *RedisLedger) windowKey(key string, now time.Time) (string, time.Duration) {
	ws := now.Truncate(l.window)
	return l.prefix + ":" + key + ":" + strconv.FormatInt(ws.Unix(), 10),
		ws.Add(l.window).Sub(now)
}

// ttlSeconds expira a chave bem depois do fim da janela; a janela em si é
// delimitada pela chave, o TTL só evita lixo acumulado.
func (l *RedisLedger) ttlSeconds() int64 {
	return int64((2 * l.window) / time.Second)
}

func (l *RedisLedger) degraded(err error) {
	if l.down.CompareAndSwap(false, true) {
		l.logger.Warn("redis ledger unavailable, falling back to in-memory",
			zap.Error(err))
		return
	}
	// queda prolongada: mantém um sinal de vida no log sem virar tempestade
	l.logEvery.Do(func() {
		l.logger.Debug("redis ledger still unavailable", zap.Error(err))
	})
}

func (l *RedisLedger) recovered() {
	if l.down.CompareAndSwap(true, false) {
		l.logger.Info("redis ledger recovered, resuming shared accounting")
	}
}

type unexpectedReplyError struct{}

func (unexpectedReplyError) Error() string { return "unexpected redis script reply" }

var errUnexpectedReply = unexpectedReplyError{}

func formatCredits(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseConsumeReply(res any) (allowed bool, remaining float64, ok bool) {
	arr, isArr := res.([]any)
	if !isArr || len(arr) != 2 {
		return false, 0, false
	}
	flag, isInt := arr[0].(int64)
	if !isInt {
		return false, 0, false
	}
	remaining, ok = parseCredits(arr[1])
	if !ok {
		return false, 0, false
	}
	return flag == 1, remaining, true
}

func parseCredits(v any) (float64, bool) {
	s, isStr := v.(string)
	if !isStr {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
