package embedding

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRateLimitProvider_Unlimited(t *testing.T) {
	inner := &scriptedProvider{}
	p := NewRateLimitProvider(inner, 0, 0)
	for i := 0; i < 50; i++ {
		if _, err := p.Embed(context.Background(), []string{"q"}); err != nil {
			t.Fatalf("Embed: %v", err)
		}
	}
	if inner.calls != 50 {
		t.Errorf("calls = %d, want 50", inner.calls)
	}
	if p.Name() != "scripted" {
		t.Errorf("Name = %q", p.Name())
	}
}

func TestRateLimitProvider_BlocksBeyondBurst(t *testing.T) {
	inner := &scriptedProvider{}
	p := NewRateLimitProvider(inner, 1, 2)

	for i := 0; i < 2; i++ {
		if _, err := p.Embed(context.Background(), []string{"q"}); err != nil {
			t.Fatalf("burst call %d: %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Embed(ctx, []string{"q"})
	if err == nil {
		t.Fatal("expected the third call to be limited")
	}
	if !errors.Is(err, ErrProvider) && !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("calls = %d, want 2", inner.calls)
	}
}
