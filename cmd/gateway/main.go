package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"keeper-gateway/middleware/authgate"
	authgateapp "keeper-gateway/middleware/authgate/application"
	authgateinfra "keeper-gateway/middleware/authgate/infra"
	"keeper-gateway/middleware/cachecontrol"
	"keeper-gateway/middleware/ratelimit"
	ratelimitapp "keeper-gateway/middleware/ratelimit/application"
	ratelimitdomain "keeper-gateway/middleware/ratelimit/domain"
	ratelimitinfra "keeper-gateway/middleware/ratelimit/infra"
	"keeper-gateway/middleware/requestlog"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := readConfig()
	if err != nil {
		logger.Fatal("config error", zap.Error(err))
	}

	target, err := url.Parse(cfg.upstreamURL)
	if err != nil {
		logger.Fatal("invalid UPSTREAM_URL", zap.Error(err))
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("proxy error", zap.Error(err),
			zap.String("request_id", requestlog.GetRequestID(r.Context())))
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// redis compartilhado entre cache L2, ledger e stats (quando configurado)
	var rdb *redis.Client
	if cfg.redisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.redisURL)
		if err != nil {
			logger.Fatal("invalid REDIS_URL", zap.Error(err))
		}
		rdb = redis.NewClient(redisOpts)
		defer func() { _ = rdb.Close() }()

		pingCtx, cancelPing := context.WithTimeout(ctx, 2*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			// não-fatal: ledger e cache sabem operar degradados
			logger.Warn("redis unreachable at startup, will operate degraded until it recovers",
				zap.Error(err))
		}
		cancelPing()
	}

	verifier := buildVerifier(cfg, rdb, logger)

	var ledger ratelimitdomain.Ledger
	if cfg.rateEnabled {
		switch cfg.rateBackend {
		case "redis":
			ledger = ratelimitinfra.NewRedisLedger(rdb, cfg.rateWindow,
				ratelimitinfra.WithLogger(logger))
		default:
			mem := ratelimitinfra.NewMemoryLedger(cfg.rateWindow)
			mem.StartJanitor(ctx)
			ledger = mem
		}
		logger.Info("rate limiting enabled",
			zap.String("backend", cfg.rateBackend),
			zap.Float64("credits_per_window", cfg.rateCreditsPerMin),
			zap.Duration("window", cfg.rateWindow))
	}

	var statsStore ratelimitdomain.StatsStore
	if cfg.rateStatsEnabled {
		statsStore = ratelimitinfra.NewRedisStatsStore(rdb,
			ratelimitinfra.WithStatsPrefix(cfg.rateStatsPrefix),
			ratelimitinfra.WithStatsTTL(cfg.rateStatsTTL),
			ratelimitinfra.WithStatsBucket(cfg.rateStatsBucket),
			ratelimitinfra.WithStatsTrackKeys(cfg.rateStatsTrackKeys),
		)
	}

	r := chi.NewRouter()
	if cfg.trustXFF {
		r.Use(chimw.RealIP)
	}
	r.Use(requestlog.RequestID)
	r.Use(requestlog.Middleware(logger))
	r.Use(authgate.Extract(authgate.Options{Verifier: verifier, Logger: logger}))
	r.Use(authgate.Require(authgate.RequireAuthPrefixes(cfg.authRequiredRoutes)))
	r.Use(ratelimit.Middleware(ratelimit.Options{
		Service: ratelimitapp.Service{
			Ledger:       ledger,
			Costs:        ratelimitdomain.CostTable{Default: cfg.rateDefaultCost, Entries: cfg.rateRouteCosts},
			DefaultLimit: cfg.rateCreditsPerMin,
			Penalty:      cfg.ratePenalty,
		},
		Stats:               statsStore,
		KeyFn:               authKeyFunc(cfg.trustXFF),
		LimitFn:             authLimitFunc(),
		AddRateLimitHeaders: cfg.addHeaders,
	}))
	r.Use(authgate.Guard())
	r.Use(ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
		Max:            cfg.concurrencyMax,
		AcquireTimeout: cfg.concurrencyTimeout,
	}))
	r.Use(cachecontrol.Middleware(cachecontrol.Options{
		Default: time.Hour,
		Rules: []cachecontrol.Rule{
			{Prefix: "/healthcheck", MaxAge: 0},
			{Prefix: "/server_prices", MaxAge: 10 * time.Minute},
		},
	}))
	r.Handle("/*", proxy)

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("gateway listening",
		zap.String("addr", cfg.listenAddr),
		zap.String("upstream", target.String()),
		zap.Bool("auth", verifier != nil),
		zap.Bool("rate_limit", cfg.rateEnabled))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}

// buildVerifier monta o pipeline de verificação; retorna nil com auth desligada.
// Política CEL malformada é erro de configuração: derruba a subida, nunca
// desliga auth em silêncio.
func buildVerifier(cfg config, rdb *redis.Client, logger *zap.Logger) *authgateapp.VerifierService {
	if cfg.authIntrospectionURL == "" {
		logger.Warn("AUTH_INTROSPECTION_URL not set, authentication disabled")
		return nil
	}

	var policy *authgateinfra.CELPolicy
	if cfg.authPolicyCEL != "" {
		var err error
		policy, err = authgateinfra.NewCELPolicy(cfg.authPolicyCEL)
		if err != nil {
			logger.Fatal("invalid AUTH_POLICY_CEL", zap.Error(err))
		}
	}

	// o salt protege o backend de cache: sem ele, o HMAC das chaves usa chave
	// vazia e um dump do backend fica trivialmente correlacionável com tokens
	if cfg.cacheSalt == "" {
		logger.Warn("AUTH_CACHE_SALT not set, token cache keys are hashed with an empty key")
	}

	var l2 authgateinfra.SharedCache
	if rdb != nil {
		l2 = authgateinfra.NewL2Cache(rdb, authgateinfra.WithL2Logger(logger))
	}
	cache := authgateinfra.NewTieredCache(
		authgateinfra.NewL1Cache(cfg.cacheL1Max),
		l2,
		authgateinfra.TieredConfig{
			Salt:        cfg.cacheSalt,
			TTLL1:       cfg.cacheL1TTL,
			TTLL2:       cfg.cacheL2TTL,
			NegativeTTL: cfg.cacheNegTTL,
		},
	)

	svc := &authgateapp.VerifierService{
		Cache:         cache,
		Introspector:  authgateinfra.NewIntrospectionClient(cfg.authIntrospectionURL, cfg.authClientID, cfg.authClientSecret),
		IdentityClaim: cfg.authIdentityClaim,
		CreditsClaim:  cfg.authCreditsClaim,
		FailOpen:      cfg.authFailOpen,
		Logger:        logger,
	}
	if policy != nil {
		svc.Policy = policy
	}
	return svc
}

// authKeyFunc prioriza a identidade autenticada; anônimo cai no IP/XFF.
func authKeyFunc(trustXFF bool) ratelimit.KeyFunc {
	fallback := ratelimit.DefaultKeyFunc("", trustXFF)
	return func(r *http.Request) ratelimitdomain.Key {
		if ac := authgate.FromContext(r.Context()); ac.Authenticated && ac.Identity != "" {
			return ratelimitdomain.Key("user:" + ac.Identity)
		}
		return fallback(r)
	}
}

// authLimitFunc lê o override de créditos do AuthContext (0 = padrão).
func authLimitFunc() ratelimit.LimitFunc {
	return func(r *http.Request) float64 {
		return authgate.FromContext(r.Context()).CreditsPerMinute
	}
}
