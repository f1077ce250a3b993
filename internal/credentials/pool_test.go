package credentials

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestAcquire_RoundRobin(t *testing.T) {
	p := NewPool([]string{"sk_a", "sk_b", "sk_c"}, time.Hour)
	var got []int
	for i := 0; i < 4; i++ {
		c, err := p.Acquire()
		if err != nil {
			t.Fatalf("acquire: %v", err)
		}
		got = append(got, c.Index)
	}
	want := []int{0, 1, 2, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected order %v", got)
		}
	}
}

func TestAcquire_SkipsExhausted(t *testing.T) {
	p := NewPool([]string{"sk_a", "sk_b", "sk_c"}, time.Hour)
	p.ReportQuotaError(Credential{Index: 1, Key: "sk_b"})

	for i := 0; i < 10; i++ {
		c, err := p.Acquire()
		if err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		if c.Index == 1 {
			t.Fatalf("exhausted credential returned on call %d", i)
		}
	}
	if n := p.AvailableCount(); n != 2 {
		t.Fatalf("expected 2 available, got %d", n)
	}
}

func TestAcquire_AllExhausted(t *testing.T) {
	p := NewPool([]string{"sk_a", "sk_b", "sk_c"}, time.Hour)
	for i := 0; i < 3; i++ {
		p.ReportQuotaError(Credential{Index: i})
	}
	if _, err := p.Acquire(); !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("expected ErrPoolExhausted, got %v", err)
	}

	empty := NewPool(nil, time.Hour)
	if _, err := empty.Acquire(); !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("empty pool: expected ErrPoolExhausted, got %v", err)
	}
}

func TestAcquire_CooldownRestores(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewPool([]string{"sk_a", "sk_b"}, 24*time.Hour, WithClock(func() time.Time { return now }))

	p.ReportQuotaError(Credential{Index: 0})
	p.ReportQuotaError(Credential{Index: 1})
	if _, err := p.Acquire(); !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("expected exhaustion, got %v", err)
	}

	now = now.Add(24 * time.Hour)
	if _, err := p.Acquire(); err != nil {
		t.Fatalf("credentials should be back after cooldown: %v", err)
	}
	if n := p.AvailableCount(); n != 2 {
		t.Fatalf("expected 2 available, got %d", n)
	}
}

func TestIsQuotaError(t *testing.T) {
	yes := []error{
		errors.New("elevenlabs: status 401: Quota Exceeded (quota exceeded)"),
		fmt.Errorf("synthesize: %w", errors.New("You have insufficient credits")),
		errors.New("monthly character limit reached"),
	}
	for _, err := range yes {
		if !IsQuotaError(err) {
			t.Fatalf("expected quota error: %v", err)
		}
	}
	no := []error{nil, errors.New("connection reset by peer"), errors.New("status 500")}
	for _, err := range no {
		if IsQuotaError(err) {
			t.Fatalf("unexpected quota match: %v", err)
		}
	}
}
