// Package headless implements the page-rendering transport on chromedp.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/hivefetch/hivefetch/internal/fetch"
)

const renderedContentType = "text/html"

// Config controls the rendering transport.
type Config struct {
	MaxParallel int           // concurrent pages, 0 = unbounded
	NavTimeout  time.Duration // fallback when the attempt carries none
}

// Transport renders pages with headless Chrome. Every single-URL attempt
// launches its own browser and tears it down regardless of outcome; batch
// fetches share one browser through Group.
type Transport struct {
	cfg     Config
	limiter chan struct{}
}

// New creates a rendering transport.
func New(cfg Config) *Transport {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 45 * time.Second
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}
	return &Transport{cfg: cfg, limiter: limiter}
}

// Fetch launches a browser, opens a page, navigates, and extracts the
// rendered DOM. Browser, context, and page are all released even when a
// later step fails.
func (t *Transport) Fetch(ctx context.Context, attempt fetch.Attempt) (fetch.Result, error) {
	if err := t.acquire(ctx); err != nil {
		return fetch.Result{}, err
	}
	defer t.release()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, t.allocatorOptions(attempt.Proxy)...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	html, err := t.renderPage(taskCtx, attempt.URL, attempt.Headers, t.timeout(attempt.Timeout))
	if err != nil {
		return fetch.Result{}, err
	}
	return fetch.Result{Body: []byte(html), ContentType: renderedContentType}, nil
}

// Group launches one browser with the given identity, shared by every page
// of a batch. The caller must Close it once all pages are done.
func (t *Transport) Group(ctx context.Context, headers http.Header, proxy string) (fetch.RenderGroup, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, t.allocatorOptions(proxy)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Start the browser eagerly so a broken environment fails the whole
	// batch up front instead of per page.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	return &group{
		transport:     t,
		headers:       headers,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}, nil
}

type group struct {
	transport     *Transport
	headers       http.Header
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
}

// Fetch opens one page (a new tab) in the shared browser, navigates, and
// closes the page when done.
func (g *group) Fetch(ctx context.Context, url string, timeout time.Duration) (fetch.Result, error) {
	if err := g.transport.acquire(ctx); err != nil {
		return fetch.Result{}, err
	}
	defer g.transport.release()

	tabCtx, tabCancel := chromedp.NewContext(g.browserCtx)
	defer tabCancel()

	html, err := g.transport.renderPage(tabCtx, url, g.headers, g.transport.timeout(timeout))
	if err != nil {
		return fetch.Result{}, err
	}
	return fetch.Result{Body: []byte(html), ContentType: renderedContentType}, nil
}

// Close tears down the shared browser and its allocator.
func (g *group) Close() error {
	g.browserCancel()
	g.allocCancel()
	return nil
}

func (t *Transport) renderPage(ctx context.Context, url string, headers http.Header, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var html string
	actions := []chromedp.Action{
		networkSetupAction(headers),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", fmt.Errorf("render %s: %w", url, err)
	}
	return html, nil
}

func (t *Transport) allocatorOptions(proxy string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	if proxy != "" {
		opts = append(opts, chromedp.ProxyServer(proxy))
	}
	return opts
}

func networkSetupAction(headers http.Header) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if ua := headers.Get("User-Agent"); ua != "" {
			if err := emulation.SetUserAgentOverride(ua).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(headers) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		if len(values) == 1 {
			headers[key] = values[0]
		} else {
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}

func (t *Transport) timeout(requested time.Duration) time.Duration {
	if requested > 0 {
		return requested
	}
	return t.cfg.NavTimeout
}

func (t *Transport) acquire(ctx context.Context) error {
	if t.limiter == nil {
		return nil
	}
	select {
	case t.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("render slot wait canceled: %w", ctx.Err())
	}
}

func (t *Transport) release() {
	if t.limiter == nil {
		return
	}
	select {
	case <-t.limiter:
	default:
	}
}
