package application

import (
	"context"
	"time"

	"keeper-gateway/middleware/ratelimit/domain"
)

// Service concentra a regra de aplicação do rate limit por créditos.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
type Service struct {
	Ledger domain.Ledger
	Costs  domain.CostTable

	// DefaultLimit é o teto de créditos por janela para quem não tem override.
	DefaultLimit float64
	// Penalty é o débito extra aplicado após respostas 401.
	Penalty float64

	RetryAfter time.Duration
}

// Limit resolve o teto efetivo: override do chamador (quando > 0) ou o padrão.
func (s Service) Limit(override float64) float64 {
	if override > 0 {
		return override
	}
	return s.DefaultLimit
}

// Decide debita o custo da rota e decide allow/deny.
func (s Service) Decide(ctx context.Context, key domain.Key, path string, limitOverride float64) (domain.Decision, float64) {
	cost := s.Costs.CostFor(path)
	limit := s.Limit(limitOverride)

	if s.Ledger == nil {
		return domain.Decision{Allowed: true, Remaining: limit}, cost
	}

	dec := s.Ledger.TryConsume(ctx, key, cost, limit)
	if !dec.Allowed && dec.RetryAfter <= 0 && s.RetryAfter > 0 {
		dec.RetryAfter = s.RetryAfter
	}
	return dec, cost
}

// Penalize aplica o débito extra de 401, truncado em zero pelo ledger.
func (s Service) Penalize(ctx context.Context, key domain.Key, limitOverride float64) domain.Decision {
	if s.Ledger == nil || s.Penalty <= 0 {
		return domain.Decision{Allowed: true}
	}
	return s.Ledger.Penalize(ctx, key, s.Penalty, s.Limit(limitOverride))
}
