package application

import (
	"context"
	"testing"
	"time"

	"keeper-gateway/middleware/ratelimit/domain"
)

type fakeLedger struct {
	allow     bool
	remaining float64

	lastKey    domain.Key
	lastCost   float64
	lastLimit  float64
	penalized  float64
	penalCalls int
}

func (f *fakeLedger) TryConsume(_ context.Context, key domain.Key, cost, limit float64) domain.Decision {
	f.lastKey, f.lastCost, f.lastLimit = key, cost, limit
	return domain.Decision{Allowed: f.allow, Remaining: f.remaining}
}

func (f *fakeLedger) Penalize(_ context.Context, key domain.Key, amount, limit float64) domain.Decision {
	f.lastKey, f.lastLimit = key, limit
	f.penalized += amount
	f.penalCalls++
	return domain.Decision{Allowed: true, Remaining: 0}
}

func TestService_Decide_AllowsWhenNoLedger(t *testing.T) {
	svc := Service{DefaultLimit: 60}
	dec, cost := svc.Decide(context.Background(), "k", "/servers", 0)
	if !dec.Allowed {
		t.Fatalf("expected allowed")
	}
	if cost != 0 {
		t.Fatalf("expected zero default cost when unconfigured, got %v", cost)
	}
}

func TestService_Decide_UsesCostTableAndDefaultLimit(t *testing.T) {
	led := &fakeLedger{allow: true, remaining: 50}
	svc := Service{
		Ledger:       led,
		Costs:        domain.CostTable{Default: 1, Entries: []domain.CostEntry{{Prefix: "/servers", Cost: 3}}},
		DefaultLimit: 60,
	}

	_, cost := svc.Decide(context.Background(), "k", "/servers/aws", 0)
	if cost != 3 {
		t.Fatalf("expected route cost 3, got %v", cost)
	}
	if led.lastCost != 3 || led.lastLimit != 60 {
		t.Fatalf("expected ledger called with cost=3 limit=60, got cost=%v limit=%v", led.lastCost, led.lastLimit)
	}
}

func TestService_Decide_OverrideLimitWins(t *testing.T) {
	led := &fakeLedger{allow: true}
	svc := Service{Ledger: led, Costs: domain.CostTable{Default: 1}, DefaultLimit: 60}

	svc.Decide(context.Background(), "k", "/x", 600)
	if led.lastLimit != 600 {
		t.Fatalf("expected authenticated override limit 600, got %v", led.lastLimit)
	}
}

func TestService_Decide_DeniedFillsRetryAfterDefault(t *testing.T) {
	led := &fakeLedger{allow: false}
	svc := Service{Ledger: led, Costs: domain.CostTable{Default: 1}, DefaultLimit: 60, RetryAfter: 2 * time.Second}

	dec, _ := svc.Decide(context.Background(), "k", "/x", 0)
	if dec.Allowed {
		t.Fatalf("expected denied")
	}
	if dec.RetryAfter != 2*time.Second {
		t.Fatalf("expected configured RetryAfter, got %s", dec.RetryAfter)
	}
}

func TestService_Penalize_UsesConfiguredPenalty(t *testing.T) {
	led := &fakeLedger{}
	svc := Service{Ledger: led, DefaultLimit: 60, Penalty: 10}

	svc.Penalize(context.Background(), "k", 0)
	if led.penalized != 10 || led.lastLimit != 60 {
		t.Fatalf("expected penalty 10 at limit 60, got %v at %v", led.penalized, led.lastLimit)
	}
}

func TestService_Penalize_NoopWithoutPenaltyOrLedger(t *testing.T) {
	led := &fakeLedger{}
	svc := Service{Ledger: led, DefaultLimit: 60}
	svc.Penalize(context.Background(), "k", 0)
	if led.penalCalls != 0 {
		t.Fatalf("expected no penalty call when Penalty=0")
	}

	svc = Service{Penalty: 10}
	dec := svc.Penalize(context.Background(), "k", 0) // sem ledger: só não pode explodir
	if !dec.Allowed {
		t.Fatalf("expected allowed noop")
	}
}
