package fetch

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hivefetch/hivefetch/internal/metrics"
)

// Config controls orchestrator defaults applied to requests with
// zero-valued budgets.
type Config struct {
	Retries     int
	Timeout     time.Duration
	BackoffBase time.Duration // unit for the 2^attempt backoff, default 1s
	CacheTTL    time.Duration // 0 caches without expiry
	UserAgents  []string
	Proxies     []string
}

// Orchestrator composes the cache, rate limiter, auth provider, session,
// and transports into the single and batch fetch operations.
type Orchestrator struct {
	cfg      Config
	plain    Transport
	renderer Renderer
	cache    Cache
	limiter  Limiter
	auth     AuthProvider
	session  Session
	logger   *zap.Logger
}

// NewOrchestrator constructs an Orchestrator. The plain transport and
// session are required; cache, limiter, auth, and renderer may be nil, in
// which case the corresponding pre-flight stage is skipped and rendered
// fetches fail.
func NewOrchestrator(
	plain Transport,
	renderer Renderer,
	cache Cache,
	limiter Limiter,
	auth AuthProvider,
	session Session,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.UserAgents) == 0 {
		cfg.UserAgents = []string{DefaultUserAgent}
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	return &Orchestrator{
		cfg:      cfg,
		plain:    plain,
		renderer: renderer,
		cache:    cache,
		limiter:  limiter,
		auth:     auth,
		session:  session,
		logger:   logger,
	}
}

// Fetch retrieves a single URL over the plain transport using the
// configured retry and timeout budgets.
func (o *Orchestrator) Fetch(ctx context.Context, url string) (Result, error) {
	return o.Do(ctx, Request{URL: url})
}

// FetchOnce retrieves a single URL without updating the cache afterwards.
func (o *Orchestrator) FetchOnce(ctx context.Context, url string) (Result, error) {
	return o.Do(ctx, Request{URL: url, NoStore: true})
}

// FetchRendered retrieves a single URL through the page-rendering backend.
func (o *Orchestrator) FetchRendered(ctx context.Context, url string) (Result, error) {
	return o.Do(ctx, Request{URL: url, Render: true})
}

// Do executes one fetch described by req. Zero-valued budgets take the
// configured defaults. It fails with *NetworkError once the retry budget is
// exhausted, or *RateLimitError when the final failure was a 429.
func (o *Orchestrator) Do(ctx context.Context, req Request) (Result, error) {
	req = o.withDefaults(req)
	if req.Render {
		if o.renderer == nil {
			return Result{}, errors.New("no rendering backend configured")
		}
		return o.fetchOne(ctx, req, o.renderer, nil)
	}
	if err := o.session.Open(); err != nil {
		return Result{}, fmt.Errorf("open session: %w", err)
	}
	defer o.closeSession()
	return o.fetchOne(ctx, req, o.plain, nil)
}

// FetchMultiple fetches every URL concurrently over one shared session and
// returns outcomes in input order. One URL's failure never aborts the rest.
func (o *Orchestrator) FetchMultiple(ctx context.Context, urls []string) []Outcome {
	reqs := make([]Request, len(urls))
	for i, u := range urls {
		reqs[i] = Request{URL: u}
	}
	return o.DoMultiple(ctx, reqs)
}

// FetchRenderedMultiple fetches every URL through one shared browser
// context, opening a page per URL and closing the browser once all pages
// are done. Outcomes preserve input order.
func (o *Orchestrator) FetchRenderedMultiple(ctx context.Context, urls []string) []Outcome {
	reqs := make([]Request, len(urls))
	for i, u := range urls {
		reqs[i] = Request{URL: u, Render: true}
	}
	return o.DoMultiple(ctx, reqs)
}

// DoMultiple runs every request concurrently and returns outcomes in input
// order. Plain requests share one session; rendered requests share one
// browser context with a page per URL. A request whose backend cannot be
// opened fails individually without aborting the rest.
func (o *Orchestrator) DoMultiple(ctx context.Context, reqs []Request) []Outcome {
	outcomes := make([]Outcome, len(reqs))
	needPlain, needRender := false, false
	for i := range reqs {
		reqs[i] = o.withDefaults(reqs[i])
		if reqs[i].Render {
			needRender = true
		} else {
			needPlain = true
		}
	}

	plainOK := false
	if needPlain {
		if err := o.session.Open(); err != nil {
			err = fmt.Errorf("open session: %w", err)
			for i, r := range reqs {
				if !r.Render {
					outcomes[i] = Outcome{URL: r.URL, Err: err}
				}
			}
		} else {
			plainOK = true
			defer o.closeSession()
		}
	}

	var group RenderGroup
	if needRender {
		g, err := o.openGroup(ctx)
		if err != nil {
			for i, r := range reqs {
				if r.Render {
					outcomes[i] = Outcome{URL: r.URL, Err: err}
				}
			}
		} else {
			group = g
			defer func() {
				if cerr := group.Close(); cerr != nil {
					o.logger.Warn("render group close failed", zap.Error(cerr))
				}
			}()
		}
	}

	batchID := uuid.NewString()
	o.logger.Debug("starting batch fetch",
		zap.String("batch_id", batchID),
		zap.Int("requests", len(reqs)))

	var wg sync.WaitGroup
	for i, r := range reqs {
		if r.Render && group == nil {
			continue
		}
		if !r.Render && !plainOK {
			continue
		}
		wg.Add(1)
		go func(i int, r Request) {
			defer wg.Done()
			var res Result
			var err error
			if r.Render {
				res, err = o.fetchOne(ctx, r, nil, group)
			} else {
				res, err = o.fetchOne(ctx, r, o.plain, nil)
			}
			outcomes[i] = Outcome{URL: r.URL, Result: res, Err: err}
		}(i, r)
	}
	wg.Wait()
	return outcomes
}

// openGroup rolls one identity for the whole batch and opens the shared
// browser context with it.
func (o *Orchestrator) openGroup(ctx context.Context) (RenderGroup, error) {
	if o.renderer == nil {
		return nil, errors.New("no rendering backend configured")
	}
	id, err := o.identity(ctx)
	if err != nil {
		return nil, err
	}
	group, err := o.renderer.Group(ctx, id.headers, id.proxy)
	if err != nil {
		return nil, fmt.Errorf("open render group: %w", err)
	}
	return group, nil
}

// fetchOne runs the retry loop for one URL. Every attempt re-runs the full
// pre-flight so a retry rolls a fresh user-agent and proxy; a failure may be
// identity-specific and rotating improves the odds of success.
func (o *Orchestrator) fetchOne(ctx context.Context, req Request, transport Transport, group RenderGroup) (Result, error) {
	var lastErr error
	for attempt := 0; attempt <= req.Retries; attempt++ {
		if attempt > 0 {
			if err := o.backoff(ctx, attempt-1); err != nil {
				return Result{}, err
			}
		}

		cached, hit, id, err := o.preflight(ctx, req.URL)
		if err != nil {
			return Result{}, err
		}
		if hit {
			return cached, nil
		}

		var res Result
		attemptSpec := Attempt{URL: req.URL, Headers: id.headers, Proxy: id.proxy, Timeout: req.Timeout}
		switch {
		case group != nil:
			res, err = group.Fetch(ctx, req.URL, req.Timeout)
		default:
			res, err = transport.Fetch(ctx, attemptSpec)
		}
		if err == nil {
			metrics.RecordFetchAttempt(transportLabel(req, group), "success")
			o.storeResult(ctx, req, res)
			return res, nil
		}

		metrics.RecordFetchAttempt(transportLabel(req, group), "failure")
		o.logger.Warn("fetch attempt failed",
			zap.String("url", req.URL),
			zap.Int("attempt", attempt),
			zap.Error(err))
		o.noteRateLimit(req.URL, err)
		lastErr = err
	}

	var httpErr *HTTPError
	if errors.As(lastErr, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests {
		return Result{}, &RateLimitError{URL: req.URL, RetryAfter: httpErr.RetryAfter, Err: lastErr}
	}
	return Result{}, &NetworkError{URL: req.URL, Attempts: req.Retries + 1, Err: lastErr}
}

// preflight runs the cache check, rate-limiter wait, identity roll, and
// credential merge that precede every network attempt. A cache hit
// short-circuits everything after it.
func (o *Orchestrator) preflight(ctx context.Context, url string) (Result, bool, identity, error) {
	if o.cache != nil {
		res, ok, err := o.cache.Get(ctx, url)
		switch {
		case err != nil:
			// Treated as a miss: the cache is best-effort.
			metrics.RecordCacheLookup("error")
			o.logger.Warn("cache lookup failed", zap.String("url", url), zap.Error(err))
		case ok:
			metrics.RecordCacheLookup("hit")
			o.logger.Debug("cache hit", zap.String("url", url))
			return res, true, identity{}, nil
		default:
			metrics.RecordCacheLookup("miss")
		}
	}

	if o.limiter != nil {
		if err := o.limiter.Wait(ctx, url); err != nil {
			return Result{}, false, identity{}, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	id, err := o.identity(ctx)
	if err != nil {
		return Result{}, false, identity{}, err
	}
	return Result{}, false, id, nil
}

type identity struct {
	headers http.Header
	proxy   string
}

// identity picks a user-agent and proxy uniformly at random and merges the
// session defaults plus any credential headers.
func (o *Orchestrator) identity(ctx context.Context) (identity, error) {
	headers := http.Header{}
	if o.session != nil {
		for k, vs := range o.session.Headers() {
			for _, v := range vs {
				headers.Add(k, v)
			}
		}
	}
	headers.Set("User-Agent", o.cfg.UserAgents[rand.IntN(len(o.cfg.UserAgents))])

	var proxy string
	if len(o.cfg.Proxies) > 0 {
		proxy = o.cfg.Proxies[rand.IntN(len(o.cfg.Proxies))]
	}

	if o.auth != nil {
		if !o.auth.IsAuthenticated() {
			if err := o.auth.Authenticate(ctx); err != nil {
				return identity{}, err
			}
		}
		for k, vs := range o.auth.Headers() {
			if len(vs) > 0 {
				headers.Set(k, vs[len(vs)-1])
			}
		}
	}
	return identity{headers: headers, proxy: proxy}, nil
}

func (o *Orchestrator) storeResult(ctx context.Context, req Request, res Result) {
	if o.cache == nil || req.NoStore {
		return
	}
	if err := o.cache.Set(ctx, req.URL, res, o.cfg.CacheTTL); err != nil {
		o.logger.Warn("cache write failed", zap.String("url", req.URL), zap.Error(err))
	}
}

// backoff sleeps base*2^exponent, honoring cancellation.
func (o *Orchestrator) backoff(ctx context.Context, exponent int) error {
	delay := o.cfg.BackoffBase << uint(exponent)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("backoff canceled: %w", ctx.Err())
	}
}

// noteRateLimit tightens the domain rule when a transport reported a 429
// with a Retry-After hint.
func (o *Orchestrator) noteRateLimit(url string, err error) {
	if o.limiter == nil {
		return
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusTooManyRequests || httpErr.RetryAfter <= 0 {
		return
	}
	domain := Domain(url)
	o.logger.Info("tightening domain rate limit",
		zap.String("domain", domain),
		zap.Duration("retry_after", httpErr.RetryAfter))
	o.limiter.Tighten(domain, httpErr.RetryAfter)
}

func (o *Orchestrator) withDefaults(req Request) Request {
	if req.Retries == 0 {
		req.Retries = o.cfg.Retries
	}
	if req.Timeout == 0 {
		req.Timeout = o.cfg.Timeout
	}
	return req
}

func (o *Orchestrator) closeSession() {
	if err := o.session.Close(); err != nil {
		o.logger.Warn("session close failed", zap.Error(err))
	}
}

func transportLabel(req Request, group RenderGroup) string {
	if req.Render || group != nil {
		return "rendered"
	}
	return "plain"
}
