// Package ratelimit paces outbound requests per domain and globally.
package ratelimit

import (
	"container/list"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hivefetch/hivefetch/internal/fetch"
	"github.com/hivefetch/hivefetch/internal/metrics"
)

// DefaultMaxDomains caps the number of tracked domains before LRU eviction.
const DefaultMaxDomains = 100

// Rule binds a domain pattern to a requests-per-second limit. Patterns may
// be exact domains or wildcards: "*.suffix", "prefix*", "*substring*".
type Rule struct {
	Pattern string
	RPS     float64
}

// Config holds rate limiter configuration. A rate of zero disables pacing
// for the corresponding scope.
type Config struct {
	GlobalRPS  float64
	Rules      []Rule
	MaxDomains int
}

// Limiter enforces minimum spacing between requests per domain and
// globally using token buckets with burst one. It never errors except on
// context cancellation.
type Limiter struct {
	mu        sync.Mutex
	globalRPS float64
	global    *rate.Limiter
	rules     []Rule
	domains   map[string]*list.Element
	order     *list.List // front = most recently used
	max       int
	logger    *zap.Logger
}

type domainEntry struct {
	domain  string
	limiter *rate.Limiter
}

// New creates a Limiter. Rules are matched in order, first match wins.
func New(cfg Config, logger *zap.Logger) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	max := cfg.MaxDomains
	if max <= 0 {
		max = DefaultMaxDomains
	}
	return &Limiter{
		globalRPS: cfg.GlobalRPS,
		global:    rate.NewLimiter(toLimit(cfg.GlobalRPS), 1),
		rules:     append([]Rule(nil), cfg.Rules...),
		domains:   make(map[string]*list.Element),
		order:     list.New(),
		max:       max,
		logger:    logger,
	}
}

// Wait blocks until the URL's domain and the global budget both allow
// another request. Whichever bucket is ready first is re-reserved at the
// time the combined wait ends, so the next request's spacing is measured
// from the proceed time rather than from reservation.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	domain := fetch.Domain(rawURL)

	l.mu.Lock()
	dl := l.touch(domain)
	global := l.global
	l.mu.Unlock()

	now := time.Now()
	rd := dl.ReserveN(now, 1)
	rg := global.ReserveN(now, 1)
	delay := rd.DelayFrom(now)
	if d := rg.DelayFrom(now); d > delay {
		delay = d
	}
	ready := now.Add(delay)
	if rd.DelayFrom(now) < delay {
		rd.CancelAt(now)
		rd = dl.ReserveN(ready, 1)
	}
	if rg.DelayFrom(now) < delay {
		rg.CancelAt(now)
		rg = global.ReserveN(ready, 1)
	}

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			rd.Cancel()
			rg.Cancel()
			return fmt.Errorf("rate limit wait for %s: %w", domain, ctx.Err())
		}
	}
	if delay > time.Millisecond {
		metrics.ObserveRateLimitDelay(domain, delay)
		l.logger.Debug("rate limited", zap.String("domain", domain), zap.Duration("waited", delay))
	}
	return nil
}

// Tighten installs a temporary exact-domain rule derived from a server
// Retry-After hint, at half the rate the server requested. It is a no-op
// when the current effective rate is already stricter.
func (l *Limiter) Tighten(domain string, retryAfter time.Duration) {
	if retryAfter <= 0 {
		return
	}
	rps := 1.0 / (2 * retryAfter.Seconds())

	l.mu.Lock()
	defer l.mu.Unlock()
	current := l.resolve(domain)
	if current > 0 && rps >= current {
		return
	}
	l.setRuleLocked(domain, rps)
	l.logger.Warn("tightened domain rate limit",
		zap.String("domain", domain),
		zap.Float64("rps", rps))
}

// SetRule adds or updates a domain rule and applies it to any live bucket
// whose resolution changes.
func (l *Limiter) SetRule(pattern string, rps float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.setRuleLocked(pattern, rps)
}

// RemoveRule deletes a domain rule, reporting whether it existed.
func (l *Limiter) RemoveRule(pattern string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, r := range l.rules {
		if r.Pattern == pattern {
			l.rules = append(l.rules[:i], l.rules[i+1:]...)
			l.reapplyLocked()
			return true
		}
	}
	return false
}

// ClearRules removes all domain rules.
func (l *Limiter) ClearRules() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rules = nil
	l.reapplyLocked()
}

// SetGlobalLimit replaces the global requests-per-second limit.
func (l *Limiter) SetGlobalLimit(rps float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.globalRPS = rps
	l.global.SetLimit(toLimit(rps))
}

func (l *Limiter) setRuleLocked(pattern string, rps float64) {
	replaced := false
	for i, r := range l.rules {
		if r.Pattern == pattern {
			l.rules[i].RPS = rps
			replaced = true
			break
		}
	}
	if !replaced {
		l.rules = append(l.rules, Rule{Pattern: pattern, RPS: rps})
	}
	l.reapplyLocked()
}

// reapplyLocked refreshes every live bucket's limit after a rule change.
func (l *Limiter) reapplyLocked() {
	for domain, el := range l.domains {
		el.Value.(*domainEntry).limiter.SetLimit(toLimit(l.resolve(domain)))
	}
}

// touch returns the bucket for a domain, creating it on first sight,
// promoting it to most-recently-used, and evicting the least-recently-used
// domain once the cap is exceeded.
func (l *Limiter) touch(domain string) *rate.Limiter {
	if el, ok := l.domains[domain]; ok {
		l.order.MoveToFront(el)
		return el.Value.(*domainEntry).limiter
	}
	entry := &domainEntry{
		domain:  domain,
		limiter: rate.NewLimiter(toLimit(l.resolve(domain)), 1),
	}
	l.domains[domain] = l.order.PushFront(entry)
	if l.order.Len() > l.max {
		oldest := l.order.Back()
		l.order.Remove(oldest)
		delete(l.domains, oldest.Value.(*domainEntry).domain)
	}
	return entry.limiter
}

// resolve returns the effective requests-per-second limit for a domain:
// exact match first, then wildcard patterns in rule order, then the global
// limit.
func (l *Limiter) resolve(domain string) float64 {
	for _, r := range l.rules {
		if r.Pattern == domain {
			return r.RPS
		}
	}
	for _, r := range l.rules {
		if matchPattern(r.Pattern, domain) {
			return r.RPS
		}
	}
	return l.globalRPS
}

func matchPattern(pattern, domain string) bool {
	switch {
	case strings.HasPrefix(pattern, "*."):
		return strings.HasSuffix(domain, pattern[1:])
	case strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*") && len(pattern) > 1:
		return strings.Contains(domain, pattern[1:len(pattern)-1])
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(domain, pattern[1:])
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(domain, pattern[:len(pattern)-1])
	default:
		return false
	}
}

func toLimit(rps float64) rate.Limit {
	if rps <= 0 {
		return rate.Inf
	}
	return rate.Limit(rps)
}
