package ratelimit

import (
	"net/http"
	"time"

	"keeper-gateway/middleware/ratelimit/application"
	"keeper-gateway/middleware/ratelimit/infra"
)

type ConcurrencyOptions struct {
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	// RetryAfter é anunciado no header Retry-After da resposta de saturação
	// (0 = um segundo, o mínimo que o header consegue expressar).
	RetryAfter time.Duration
}

// ConcurrencyMiddleware limita requests em voo no processo, complementando o
// rate limit por créditos: o ledger controla volume por janela, este gate
// controla pressão instantânea. Com Max <= 0 o middleware é desativado (next
// intocado).
//
// A saturação responde com RejectStatus (503 por padrão) e Retry-After, no
// mesmo vocabulário de headers do 429 de créditos.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}

	svc := application.ConcurrencyService{
		Pool:           infra.NewChanPool(opts.Max),
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, ok := svc.Acquire(r.Context())
			if !ok {
				w.Header().Set("Retry-After", formatInt(retryAfterSeconds(opts.RetryAfter)))
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
