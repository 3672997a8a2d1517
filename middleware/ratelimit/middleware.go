package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"keeper-gateway/middleware/ratelimit/application"
	"keeper-gateway/middleware/ratelimit/domain"
)

// KeyFunc deriva a chave de rate limit a partir da request.
type KeyFunc func(r *http.Request) domain.Key

// LimitFunc resolve o teto de créditos do chamador (0 = usar o padrão).
// Normalmente lê o override de créditos do AuthContext injetado pelo authgate.
type LimitFunc func(r *http.Request) float64

type Options struct {
	Service application.Service
	Stats   domain.StatsStore

	KeyFn   KeyFunc
	LimitFn LimitFunc

	KeyHeader          string
	TrustXForwardedFor bool

	RejectStatus int
	// PenaltyStatuses define quais status de resposta disparam a penalidade
	// (padrão: somente 401).
	PenaltyStatuses []int

	AddRateLimitHeaders bool
}

// DefaultKeyFunc deriva a chave do cliente por header, X-Forwarded-For ou IP,
// com prefixo "ip:"/"key:" para nunca colidir com chaves "user:" autenticadas.
func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) domain.Key {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return domain.Key("key:" + v)
			}
		}

		if trustXFF {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				parts := strings.Split(xff, ",")
				if len(parts) > 0 {
					ip := strings.TrimSpace(parts[0])
					if ip != "" {
						return domain.Key("ip:" + ip)
					}
				}
			}
		}

		// fallback: RemoteAddr
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return domain.Key("ip:" + host)
		}
		if r.RemoteAddr != "" {
			return domain.Key("ip:" + r.RemoteAddr)
		}
		return domain.Key("ip:unknown")
	}
}

// Middleware aplica o rate limit por créditos: debita o custo da rota antes de
// chamar o próximo handler e, depois da resposta, aplica a penalidade quando o
// status está em PenaltyStatuses (ex: 401, para encarecer tentativas com
// credencial inválida).
//
// O desligamento global é decidido aqui, uma única vez: sem Ledger no Service,
// o middleware devolve o next intocado.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.Service.Ledger == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.LimitFn == nil {
		opts.LimitFn = func(*http.Request) float64 { return 0 }
	}
	if opts.PenaltyStatuses == nil {
		opts.PenaltyStatuses = []int{http.StatusUnauthorized}
	}
	penalized := make(map[int]bool, len(opts.PenaltyStatuses))
	for _, st := range opts.PenaltyStatuses {
		penalized[st] = true
	}

	svc := opts.Service

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)
			limitOverride := opts.LimitFn(r)

			dec, cost := svc.Decide(r.Context(), key, r.URL.Path, limitOverride)

			if opts.Stats != nil {
				_ = opts.Stats.Record(r.Context(), domain.StatsEvent{
					Key:     key,
					Allowed: dec.Allowed,
					Method:  r.Method,
					Path:    r.URL.Path,
					Cost:    cost,
					At:      time.Now(),
				})
			}

			if opts.AddRateLimitHeaders {
				w.Header().Set("X-RateLimit-Limit", formatCredits(svc.Limit(limitOverride)))
				w.Header().Set("X-RateLimit-Cost", formatCredits(cost))
				w.Header().Set("X-RateLimit-Remaining", formatCredits(dec.Remaining))
			}

			if !dec.Allowed {
				if dec.RetryAfter > 0 {
					w.Header().Set("Retry-After", formatInt(retryAfterSeconds(dec.RetryAfter)))
				}
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			}

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			// penalidade pós-resposta: mesmo ledger, mesma chave, uma vez por request
			if svc.Penalty > 0 && penalized[sw.status] {
				svc.Penalize(r.Context(), key, limitOverride)
			}
		})
	}
}

// statusWriter captura o status escrito pelo handler interno.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

// Unwrap expõe o writer original para http.ResponseController: Flush/Hijack
// do proxy reverso atravessam o wrapper.
func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// retryAfterSeconds arredonda para cima: anunciar 0s para uma espera de 300ms
// convidaria retry imediato.
func retryAfterSeconds(d time.Duration) int {
	s := int((d + time.Second - 1) / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}

func formatInt(v int) string { return strconv.Itoa(v) }

func formatCredits(v float64) string {
	// sem depender de fmt, e sem notação científica para valores comuns
	return strconv.FormatFloat(v, 'f', -1, 64)
}
