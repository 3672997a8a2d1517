package infra

import (
	"context"

	"keeper-gateway/middleware/ratelimit/domain"
)

// chanPool implementa domain.SlotPool com um canal com buffer: cada request em
// voo ocupa uma posição do buffer, o release a devolve.
type chanPool struct {
	sem chan struct{}
}

// NewChanPool cria o pool de vagas do gate com capacidade max.
func NewChanPool(max int) domain.SlotPool {
	return &chanPool{sem: make(chan struct{}, max)}
}

func (p *chanPool) Acquire(ctx context.Context) (func(), bool) {
	select {
	case p.sem <- struct{}{}:
		return func() { <-p.sem }, true
	case <-ctx.Done():
		return nil, false
	}
}
