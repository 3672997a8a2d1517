package infra

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"keeper-gateway/middleware/authgate/domain"
)

// SharedCache é o contrato do nível L2 visto pelo TieredCache.
// *L2Cache implementa; testes podem injetar um stub.
type SharedCache interface {
	Get(ctx context.Context, key string) (*domain.IntrospectionResult, bool)
	Set(ctx context.Context, key string, res *domain.IntrospectionResult, ttl time.Duration)
}

// TieredCache compõe L1 (processo) e L2 (compartilhado) atrás do contrato
// domain.TokenCache.
//
// A chave é um HMAC-SHA256 do token com o salt do processo: um backend de
// cache vazado não revela tokens utilizáveis, e o token cru nunca é
// persistido nem logado.
//
// Ordem de lookup: L1, depois L2 (hit no L2 repovoa o L1). TTLs independentes
// por nível (convenção: L1 <= L2). Resultados negativos (active=false) usam o
// TTL curto NegativeTTL nos dois níveis.
type TieredCache struct {
	l1 *L1Cache
	l2 SharedCache // nil = operação L1-only

	salt []byte

	ttlL1       time.Duration
	ttlL2       time.Duration
	negativeTTL time.Duration
}

type TieredConfig struct {
	Salt        string
	TTLL1       time.Duration
	TTLL2       time.Duration
	NegativeTTL time.Duration
}

func NewTieredCache(l1 *L1Cache, l2 SharedCache, cfg TieredConfig) *TieredCache {
	if cfg.TTLL1 <= 0 {
		cfg.TTLL1 = time.Minute
	}
	if cfg.TTLL2 <= 0 {
		cfg.TTLL2 = 5 * time.Minute
	}
	if cfg.NegativeTTL <= 0 {
		cfg.NegativeTTL = 30 * time.Second
	}
	return &TieredCache{
		l1:          l1,
		l2:          l2,
		salt:        []byte(cfg.Salt),
		ttlL1:       cfg.TTLL1,
		ttlL2:       cfg.TTLL2,
		negativeTTL: cfg.NegativeTTL,
	}
}

// Lookup implementa domain.TokenCache.
func (c *TieredCache) Lookup(ctx context.Context, token string) (*domain.IntrospectionResult, bool) {
	key := c.hash(token)

	if res, ok := c.l1.Get(key); ok {
		return res, true
	}

	if c.l2 != nil {
		if res, ok := c.l2.Get(ctx, key); ok {
			c.l1.Set(key, res, c.l1TTL(res))
			return res, true
		}
	}

	return nil, false
}

// Store implementa domain.TokenCache: grava nos dois níveis com os TTLs de cada um.
func (c *TieredCache) Store(ctx context.Context, token string, res *domain.IntrospectionResult) {
	key := c.hash(token)
	c.l1.Set(key, res, c.l1TTL(res))
	if c.l2 != nil {
		c.l2.Set(ctx, key, res, c.l2TTL(res))
	}
}

func (c *TieredCache) l1TTL(res *domain.IntrospectionResult) time.Duration {
	if !res.Active && c.negativeTTL < c.ttlL1 {
		return c.negativeTTL
	}
	return c.ttlL1
}

func (c *TieredCache) l2TTL(res *domain.IntrospectionResult) time.Duration {
	if !res.Active && c.negativeTTL < c.ttlL2 {
		return c.negativeTTL
	}
	return c.ttlL2
}

func (c *TieredCache) hash(token string) string {
	mac := hmac.New(sha256.New, c.salt)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}
