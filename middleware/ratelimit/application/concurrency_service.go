package application

import (
	"context"
	"time"

	"keeper-gateway/middleware/ratelimit/domain"
)

// ConcurrencyService decide a espera por uma vaga do gate, sem saber nada
// sobre HTTP. Sem Pool configurado, toda aquisição é um noop permitido.
type ConcurrencyService struct {
	Pool domain.SlotPool
	// AcquireTimeout limita a espera por vaga; <= 0 espera até o ctx encerrar.
	AcquireTimeout time.Duration
}

// Acquire tenta adquirir uma vaga. Retorna (release, ok); com ok=false nenhuma
// vaga foi adquirida e não há o que liberar.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), bool) {
	if s.Pool == nil {
		return func() {}, true
	}

	if s.AcquireTimeout <= 0 {
		return s.Pool.Acquire(ctx)
	}

	acqCtx, cancel := context.WithTimeout(ctx, s.AcquireTimeout)
	defer cancel()
	return s.Pool.Acquire(acqCtx)
}
