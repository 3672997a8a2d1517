package main

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"keeper-gateway/middleware/ratelimit/domain"
)

type config struct {
	listenAddr  string
	upstreamURL string

	// autenticação (vazio = auth desligada no processo)
	authIntrospectionURL string
	authClientID         string
	authClientSecret     string
	authPolicyCEL        string
	authFailOpen         bool
	authRequiredRoutes   []string
	authIdentityClaim    string
	authCreditsClaim     string

	// cache de tokens
	cacheL1TTL      time.Duration
	cacheL1Max      int
	cacheL2TTL      time.Duration
	cacheNegTTL     time.Duration
	cacheSalt       string

	// rate limit
	rateEnabled       bool
	rateCreditsPerMin float64
	rateWindow        time.Duration
	rateDefaultCost   float64
	rateRouteCosts    []domain.CostEntry
	ratePenalty       float64
	rateBackend       string // "memory" (padrão) ou "redis"

	redisURL string

	trustXFF           bool
	addHeaders         bool
	concurrencyMax     int
	concurrencyTimeout time.Duration

	rateStatsEnabled   bool
	rateStatsPrefix    string
	rateStatsTTL       time.Duration
	rateStatsBucket    string
	rateStatsTrackKeys bool
}

func readConfig() (config, error) {
	cfg := config{}
	cfg.listenAddr = getenvDefault("LISTEN_ADDR", ":8080")
	cfg.upstreamURL = os.Getenv("UPSTREAM_URL")

	cfg.authIntrospectionURL = os.Getenv("AUTH_INTROSPECTION_URL")
	cfg.authClientID = os.Getenv("AUTH_CLIENT_ID")
	cfg.authClientSecret = os.Getenv("AUTH_CLIENT_SECRET")
	cfg.authPolicyCEL = os.Getenv("AUTH_POLICY_CEL")
	cfg.authFailOpen = getenvBoolDefault("AUTH_FAIL_OPEN", false)
	cfg.authRequiredRoutes = splitList(os.Getenv("AUTH_REQUIRED_ROUTES"))
	cfg.authIdentityClaim = getenvDefault("AUTH_IDENTITY_CLAIM", "sub")
	cfg.authCreditsClaim = getenvDefault("AUTH_CREDITS_CLAIM", "api_credits_per_minute")

	cfg.cacheL1TTL = getenvDurationDefault("AUTH_CACHE_L1_TTL", 60*time.Second)
	cfg.cacheL1Max = getenvIntDefault("AUTH_CACHE_L1_MAX", 1000)
	cfg.cacheL2TTL = getenvDurationDefault("AUTH_CACHE_L2_TTL", 300*time.Second)
	cfg.cacheNegTTL = getenvDurationDefault("AUTH_CACHE_NEGATIVE_TTL", 30*time.Second)
	cfg.cacheSalt = os.Getenv("AUTH_CACHE_SALT")

	cfg.rateEnabled = getenvBoolDefault("RATE_LIMIT_ENABLED", false)
	cfg.rateCreditsPerMin = getenvFloatDefault("RATE_LIMIT_CREDITS_PER_MINUTE", 60)
	cfg.rateWindow = getenvDurationDefault("RATE_LIMIT_WINDOW", time.Minute)
	cfg.rateDefaultCost = getenvFloatDefault("RATE_LIMIT_DEFAULT_CREDIT_COST", 1)
	cfg.ratePenalty = getenvFloatDefault("RATE_LIMIT_UNAUTHORIZED_PENALTY", 10)
	cfg.rateBackend = strings.ToLower(getenvDefault("RATE_LIMIT_BACKEND", "memory"))

	var err error
	cfg.rateRouteCosts, err = parseRouteCosts(os.Getenv("RATE_LIMIT_ROUTE_COSTS"))
	if err != nil {
		return config{}, err
	}

	cfg.redisURL = os.Getenv("REDIS_URL")

	cfg.trustXFF = getenvBoolDefault("TRUST_XFF", false)
	cfg.addHeaders = getenvBoolDefault("ADD_RATELIMIT_HEADERS", true)
	cfg.concurrencyMax = getenvIntDefault("CONCURRENCY_MAX", 100)
	cfg.concurrencyTimeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", 0)

	cfg.rateStatsEnabled = getenvBoolDefault("RATE_STATS_ENABLED", false)
	cfg.rateStatsPrefix = getenvDefault("RATE_STATS_PREFIX", "gate:stats")
	cfg.rateStatsTTL = getenvDurationDefault("RATE_STATS_TTL", 24*time.Hour)
	cfg.rateStatsBucket = getenvDefault("RATE_STATS_BUCKET", "minute")
	cfg.rateStatsTrackKeys = getenvBoolDefault("RATE_STATS_TRACK_KEYS", false)

	if cfg.upstreamURL == "" {
		return config{}, errors.New("UPSTREAM_URL is required")
	}
	if cfg.authIntrospectionURL != "" && (cfg.authClientID == "" || cfg.authClientSecret == "") {
		return config{}, errors.New("AUTH_CLIENT_ID and AUTH_CLIENT_SECRET are required when AUTH_INTROSPECTION_URL is set")
	}
	if cfg.rateEnabled {
		if cfg.rateCreditsPerMin <= 0 {
			return config{}, errors.New("RATE_LIMIT_CREDITS_PER_MINUTE must be > 0")
		}
		if cfg.rateDefaultCost <= 0 {
			return config{}, errors.New("RATE_LIMIT_DEFAULT_CREDIT_COST must be > 0")
		}
		if cfg.rateBackend != "memory" && cfg.rateBackend != "redis" {
			return config{}, errors.New(`RATE_LIMIT_BACKEND must be "memory" or "redis"`)
		}
		if cfg.rateBackend == "redis" && cfg.redisURL == "" {
			return config{}, errors.New("REDIS_URL is required when RATE_LIMIT_BACKEND=redis")
		}
	}
	if cfg.rateStatsEnabled && cfg.redisURL == "" {
		return config{}, errors.New("REDIS_URL is required when RATE_STATS_ENABLED=true")
	}
	if cfg.concurrencyMax < 0 {
		return config{}, errors.New("CONCURRENCY_MAX must be >= 0")
	}
	return cfg, nil
}

// parseRouteCosts lê pares "prefixo=custo" separados por vírgula, em ordem.
// Ex: "/server_prices=5,/servers=3".
func parseRouteCosts(raw string) ([]domain.CostEntry, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var entries []domain.CostEntry
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		prefix, costStr, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, errors.New("RATE_LIMIT_ROUTE_COSTS entries must look like /path=cost")
		}
		cost, err := strconv.ParseFloat(strings.TrimSpace(costStr), 64)
		if err != nil || cost <= 0 {
			return nil, errors.New("RATE_LIMIT_ROUTE_COSTS cost must be a positive number")
		}
		entries = append(entries, domain.CostEntry{Prefix: strings.TrimSpace(prefix), Cost: cost})
	}
	return entries, nil
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
