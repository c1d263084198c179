package model

import (
	"testing"
	"time"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewBreaker(3, time.Minute, 1)

	for i := 0; i < 2; i++ {
		if ok, probe := b.Allow(); !ok || probe {
			t.Fatalf("call %d: ok=%v probe=%v while closed", i, ok, probe)
		}
		b.Failure()
	}
	if b.State() != BreakerClosed {
		t.Fatalf("state = %s before threshold, want closed", b.State())
	}

	if ok, _ := b.Allow(); !ok {
		t.Fatal("third call blocked while closed")
	}
	b.Failure()

	if b.State() != BreakerOpen {
		t.Fatalf("state = %s after threshold, want open", b.State())
	}
	if ok, _ := b.Allow(); ok {
		t.Fatal("open breaker admitted a call")
	}
}

func TestBreakerProbeAfterCooldown(t *testing.T) {
	now := time.Now()
	b := NewBreaker(1, time.Minute, 1)
	b.now = func() time.Time { return now }

	b.Allow()
	b.Failure()
	if b.State() != BreakerOpen {
		t.Fatalf("state = %s, want open", b.State())
	}

	now = now.Add(30 * time.Second)
	if ok, _ := b.Allow(); ok {
		t.Fatal("breaker admitted a call before cool-down elapsed")
	}

	now = now.Add(31 * time.Second)
	ok, probe := b.Allow()
	if !ok {
		t.Fatal("breaker refused the probe after cool-down")
	}
	if !probe {
		t.Fatal("post-cool-down admission not flagged as a probe")
	}
	if b.State() != BreakerHalfOpen {
		t.Fatalf("state = %s, want half_open", b.State())
	}
	if ok, _ := b.Allow(); ok {
		t.Fatal("breaker admitted a second concurrent probe")
	}

	b.Success()
	if b.State() != BreakerClosed {
		t.Fatalf("state = %s after probe success, want closed", b.State())
	}
	if ok, probe := b.Allow(); !ok || probe {
		t.Fatalf("closed breaker: ok=%v probe=%v, want plain admission", ok, probe)
	}
}

func TestBreakerProbeFailureReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker(1, time.Minute, 1)
	b.now = func() time.Time { return now }

	b.Allow()
	b.Failure()
	now = now.Add(2 * time.Minute)
	if ok, _ := b.Allow(); !ok {
		t.Fatal("probe refused after cool-down")
	}
	b.Failure()

	if b.State() != BreakerOpen {
		t.Fatalf("state = %s after probe failure, want open", b.State())
	}
	// cool-down restarted, so still blocked just before it elapses
	now = now.Add(59 * time.Second)
	if ok, _ := b.Allow(); ok {
		t.Fatal("breaker admitted a call before the restarted cool-down elapsed")
	}
}

func TestBreakerReleaseReturnsProbeSlot(t *testing.T) {
	now := time.Now()
	b := NewBreaker(1, time.Minute, 1)
	b.now = func() time.Time { return now }

	b.Allow()
	b.Failure()
	now = now.Add(2 * time.Minute)
	if ok, _ := b.Allow(); !ok {
		t.Fatal("probe refused after cool-down")
	}

	b.Release()
	if b.State() != BreakerHalfOpen {
		t.Fatalf("state = %s after release, want half_open", b.State())
	}
	if ok, _ := b.Allow(); !ok {
		t.Fatal("released slot was not reusable")
	}
}
