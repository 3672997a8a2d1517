package application

import (
	"context"
	"testing"
	"time"
)

type fakePool struct {
	acquired int
	released int
	block    bool
}

func (p *fakePool) Acquire(ctx context.Context) (func(), bool) {
	if p.block {
		<-ctx.Done()
		return nil, false
	}
	p.acquired++
	return func() { p.released++ }, true
}

func TestConcurrencyService_AcquireWithoutPoolIsNoop(t *testing.T) {
	svc := ConcurrencyService{}
	release, ok := svc.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected ok without pool")
	}
	release() // não pode explodir
}

func TestConcurrencyService_AcquireAndRelease(t *testing.T) {
	pool := &fakePool{}
	svc := ConcurrencyService{Pool: pool}

	release, ok := svc.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected acquire to succeed")
	}
	release()

	if pool.acquired != 1 || pool.released != 1 {
		t.Fatalf("expected 1 acquire / 1 release, got %d/%d", pool.acquired, pool.released)
	}
}

func TestConcurrencyService_TimeoutGivesUp(t *testing.T) {
	pool := &fakePool{block: true}
	svc := ConcurrencyService{Pool: pool, AcquireTimeout: 20 * time.Millisecond}

	start := time.Now()
	_, ok := svc.Acquire(context.Background())
	if ok {
		t.Fatalf("expected acquire to fail on timeout")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("acquire took too long to give up")
	}
}
