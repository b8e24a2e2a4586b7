package ratelimit

import (
	"testing"
	"time"
)

func TestLimiterSpendsBurstThenDenies(t *testing.T) {
	l := NewLimiter(1, 3)
	base := time.Now()
	l.now = func() time.Time { return base }

	for i := 0; i < 3; i++ {
		if !l.Allow() {
			t.Fatalf("request %d within burst should be allowed", i+1)
		}
	}
	if l.Allow() {
		t.Fatal("request past the burst should be denied")
	}
}

func TestLimiterRefills(t *testing.T) {
	l := NewLimiter(2, 4)
	base := time.Now()
	l.now = func() time.Time { return base }

	for i := 0; i < 4; i++ {
		l.Allow()
	}
	if l.Allow() {
		t.Fatal("bucket should be empty")
	}

	// 2 tokens/s for one second buys two more requests.
	l.now = func() time.Time { return base.Add(time.Second) }
	if !l.Allow() || !l.Allow() {
		t.Fatal("refilled tokens should be spendable")
	}
	if l.Allow() {
		t.Fatal("third request should outrun the refill")
	}
}

func TestLimiterNeverExceedsBurst(t *testing.T) {
	l := NewLimiter(10, 2)
	base := time.Now()
	l.now = func() time.Time { return base.Add(time.Hour) }

	// A long quiet period must not bank more than the burst.
	allowed := 0
	for i := 0; i < 5; i++ {
		if l.Allow() {
			allowed++
		}
	}
	if allowed != 2 {
		t.Fatalf("allowed %d requests after idle period, want 2", allowed)
	}
}

func TestPerClientIsolation(t *testing.T) {
	p := NewPerClient(0.001, 2)
	defer p.Stop()

	p.Allow("10.0.0.1")
	p.Allow("10.0.0.1")
	if p.Allow("10.0.0.1") {
		t.Fatal("first client should be exhausted")
	}
	if !p.Allow("10.0.0.2") {
		t.Fatal("second client must have its own bucket")
	}
}
