package infra

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"keeper-gateway/middleware/authgate/domain"
)

// L2Cache é o cache de tokens compartilhado entre instâncias, em redis.
//
// Indisponibilidade do redis degrada para miss (a request segue para a
// introspecção), nunca para erro na request. A degradação é logada com
// frequência reduzida para não virar tempestade de log.
type L2Cache struct {
	rdb    *redis.Client
	prefix string

	logger   *zap.Logger
	logEvery rate.Sometimes
}

type L2Option func(*L2Cache)

func WithL2Prefix(prefix string) L2Option {
	return func(c *L2Cache) { c.prefix = strings.Trim(prefix, ":") }
}

func WithL2Logger(logger *zap.Logger) L2Option {
	return func(c *L2Cache) { c.logger = logger }
}

func NewL2Cache(rdb *redis.Client, opts ...L2Option) *L2Cache {
	c := &L2Cache{
		rdb:      rdb,
		prefix:   "token",
		logger:   zap.NewNop(),
		logEvery: rate.Sometimes{First: 1, Interval: time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// cacheRecord é o formato serializado da entrada no redis.
type cacheRecord struct {
	Active    bool          `json:"active"`
	Claims    domain.Claims `json:"claims"`
	FetchedAt int64         `json:"fetched_at"`
}

func (c *L2Cache) Get(ctx context.Context, key string) (*domain.IntrospectionResult, bool) {
	data, err := c.rdb.Get(ctx, c.prefix+":"+key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.degraded("read", err)
		}
		return nil, false
	}

	var rec cacheRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		// entrada corrompida: ignora, a introspecção regrava
		return nil, false
	}
	return &domain.IntrospectionResult{
		Active:    rec.Active,
		Claims:    rec.Claims,
		FetchedAt: time.Unix(rec.FetchedAt, 0),
	}, true
}

func (c *L2Cache) Set(ctx context.Context, key string, res *domain.IntrospectionResult, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	data, err := json.Marshal(cacheRecord{
		Active:    res.Active,
		Claims:    res.Claims,
		FetchedAt: res.FetchedAt.Unix(),
	})
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, c.prefix+":"+key, data, ttl).Err(); err != nil {
		c.degraded("write", err)
	}
}

func (c *L2Cache) degraded(op string, err error) {
	c.logEvery.Do(func() {
		c.logger.Warn("token cache L2 unavailable, degrading to L1-only",
			zap.String("op", op),
			zap.Error(err))
	})
}
