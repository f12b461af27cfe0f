package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestWaitSpacesRequestsPerDomain(t *testing.T) {
	t.Parallel()

	l := New(Config{Rules: []Rule{{Pattern: "slow.example.com", RPS: 10}}}, nil)
	ctx := context.Background()

	// First request proceeds immediately, second waits for the next token,
	// roughly 100ms at 10 rps.
	if err := l.Wait(ctx, "https://slow.example.com/a"); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}
	start := time.Now()
	if err := l.Wait(ctx, "https://slow.example.com/b"); err != nil {
		t.Fatalf("second Wait() error = %v", err)
	}
	if waited := time.Since(start); waited < 80*time.Millisecond {
		t.Fatalf("expected ~100ms spacing, waited only %v", waited)
	}
}

func TestWaitDomainsAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(Config{Rules: []Rule{{Pattern: "slow.example.com", RPS: 1}}}, nil)
	ctx := context.Background()

	if err := l.Wait(ctx, "https://slow.example.com/a"); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	// A different domain carries no debt from the slow one.
	start := time.Now()
	if err := l.Wait(ctx, "https://fast.example.org/a"); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if waited := time.Since(start); waited > 50*time.Millisecond {
		t.Fatalf("expected unrelated domain to proceed immediately, waited %v", waited)
	}
}

func TestWaitSpacesFromProceedTime(t *testing.T) {
	t.Parallel()

	// Domain spacing is 250ms at 4 rps; the global bucket at 10 rps adds
	// ~100ms of delay to the first slow.test request because warm.test
	// already spent the global token. The next slow.test request must wait
	// a full 250ms from the end of that delay, not from its start.
	l := New(Config{
		GlobalRPS: 10,
		Rules:     []Rule{{Pattern: "slow.test", RPS: 4}},
	}, nil)
	ctx := context.Background()

	if err := l.Wait(ctx, "https://warm.test/"); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if err := l.Wait(ctx, "https://slow.test/a"); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	proceed := time.Now()
	if err := l.Wait(ctx, "https://slow.test/b"); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if gap := time.Since(proceed); gap < 220*time.Millisecond {
		t.Fatalf("expected ~250ms spacing from the proceed time, got %v", gap)
	}
}

func TestWaitHonorsCancellation(t *testing.T) {
	t.Parallel()

	l := New(Config{Rules: []Rule{{Pattern: "slow.example.com", RPS: 0.1}}}, nil)
	ctx := context.Background()
	if err := l.Wait(ctx, "https://slow.example.com/a"); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	cancelCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := l.Wait(cancelCtx, "https://slow.example.com/b"); err == nil {
		t.Fatal("expected cancellation error while waiting 10s for the next token")
	}
}

func TestResolveMatchesRulesInOrder(t *testing.T) {
	t.Parallel()

	l := New(Config{
		GlobalRPS: 8,
		Rules: []Rule{
			{Pattern: "api.example.com", RPS: 1},
			{Pattern: "*.example.com", RPS: 2},
			{Pattern: "*shop*", RPS: 3},
			{Pattern: "cdn*", RPS: 4},
		},
	}, nil)

	cases := []struct {
		domain string
		want   float64
	}{
		{"api.example.com", 1},    // exact beats wildcard
		{"www.example.com", 2},    // suffix wildcard
		{"myshop.example.org", 3}, // substring wildcard
		{"cdn7.example.net", 4},   // prefix wildcard
		{"unrelated.org", 8},      // global fallback
	}
	for _, tc := range cases {
		if got := l.resolve(tc.domain); got != tc.want {
			t.Fatalf("resolve(%q) = %v, want %v", tc.domain, got, tc.want)
		}
	}
}

func TestTightenInstallsStricterRule(t *testing.T) {
	t.Parallel()

	l := New(Config{Rules: []Rule{{Pattern: "example.com", RPS: 10}}}, nil)

	l.Tighten("example.com", 4*time.Second)
	if got := l.resolve("example.com"); got != 0.125 {
		t.Fatalf("expected tightened rate 0.125 rps, got %v", got)
	}

	// A hint that would loosen the limit is ignored.
	l.Tighten("example.com", time.Millisecond)
	if got := l.resolve("example.com"); got != 0.125 {
		t.Fatalf("expected rate to stay at 0.125 rps, got %v", got)
	}
}

func TestRuleManagement(t *testing.T) {
	t.Parallel()

	l := New(Config{GlobalRPS: 5}, nil)

	l.SetRule("example.com", 1)
	if got := l.resolve("example.com"); got != 1 {
		t.Fatalf("expected rule to apply, got %v", got)
	}

	if !l.RemoveRule("example.com") {
		t.Fatal("expected RemoveRule to report the rule existed")
	}
	if l.RemoveRule("example.com") {
		t.Fatal("expected RemoveRule to report a missing rule")
	}
	if got := l.resolve("example.com"); got != 5 {
		t.Fatalf("expected fallback to global after removal, got %v", got)
	}

	l.SetRule("a.example.com", 1)
	l.SetRule("b.example.com", 2)
	l.ClearRules()
	if got := l.resolve("a.example.com"); got != 5 {
		t.Fatalf("expected ClearRules to drop all rules, got %v", got)
	}

	l.SetGlobalLimit(7)
	if got := l.resolve("a.example.com"); got != 7 {
		t.Fatalf("expected new global limit, got %v", got)
	}
}

func TestDomainTrackingEvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	l := New(Config{MaxDomains: 2}, nil)
	ctx := context.Background()

	for _, u := range []string{"https://a.test/", "https://b.test/", "https://c.test/"} {
		if err := l.Wait(ctx, u); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.domains) != 2 {
		t.Fatalf("expected 2 tracked domains, got %d", len(l.domains))
	}
	if _, ok := l.domains["a.test"]; ok {
		t.Fatal("expected the oldest domain to be evicted")
	}
	if _, ok := l.domains["c.test"]; !ok {
		t.Fatal("expected the newest domain to be tracked")
	}
}

func TestSetRuleUpdatesLiveBucket(t *testing.T) {
	t.Parallel()

	l := New(Config{}, nil)
	ctx := context.Background()

	// Create the bucket with no limit, then install one and confirm the
	// live bucket starts pacing.
	if err := l.Wait(ctx, "https://example.com/a"); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	l.SetRule("example.com", 10)

	if err := l.Wait(ctx, "https://example.com/b"); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	start := time.Now()
	if err := l.Wait(ctx, "https://example.com/c"); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if waited := time.Since(start); waited < 80*time.Millisecond {
		t.Fatalf("expected the live bucket to pace after SetRule, waited %v", waited)
	}
}
