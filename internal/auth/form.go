package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/hivefetch/hivefetch/internal/fetch"
	"github.com/hivefetch/hivefetch/internal/metrics"
)

// TokenExtractor pulls a bearer token out of a login response body.
type TokenExtractor func(body []byte) (string, error)

// FormConfig describes a login-form flow. SuccessText, ErrorText,
// SuccessURL, AuthCookie, and Extractor are each optional; every configured
// check must pass for the flow to succeed.
type FormConfig struct {
	LoginURL      string
	UsernameField string
	PasswordField string
	Username      string
	Password      string
	ExtraFields   map[string]string
	SuccessURL    string
	SuccessText   string
	ErrorText     string
	AuthCookie    string
	Extractor     TokenExtractor
	HTTPClient    *http.Client
}

// Form submits credentials to a login endpoint and, when configured,
// replays an extracted bearer token on subsequent requests. Authenticate is
// serialized; concurrent callers wait for the in-flight flow and then
// observe its outcome instead of racing their own logins.
type Form struct {
	cfg    FormConfig
	client *http.Client

	mu            sync.Mutex
	authenticated bool
	token         string
}

// NewForm builds a form-login provider. A nil HTTP client uses
// http.DefaultClient.
func NewForm(cfg FormConfig) *Form {
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &Form{cfg: cfg, client: client}
}

// Headers returns the extracted bearer token header, if any.
func (f *Form) Headers() http.Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.token == "" {
		return http.Header{}
	}
	return http.Header{"Authorization": []string{"Bearer " + f.token}}
}

// IsAuthenticated reports whether the login flow has completed.
func (f *Form) IsAuthenticated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authenticated
}

// Authenticate submits the login form and validates every configured
// success check. It fails with *fetch.AuthError.
func (f *Form) Authenticate(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.authenticated {
		return nil
	}
	if err := f.login(ctx); err != nil {
		metrics.RecordAuthFlow("form", "failure")
		return err
	}
	f.authenticated = true
	metrics.RecordAuthFlow("form", "success")
	return nil
}

func (f *Form) login(ctx context.Context) error {
	form := url.Values{}
	form.Set(f.cfg.UsernameField, f.cfg.Username)
	form.Set(f.cfg.PasswordField, f.cfg.Password)
	for k, v := range f.cfg.ExtraFields {
		form.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.LoginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return f.fail("build login request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := f.client.Do(req)
	if err != nil {
		return f.fail("submit login form", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return f.fail(fmt.Sprintf("login endpoint returned HTTP %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return f.fail("read login response", err)
	}
	text := string(body)

	if f.cfg.ErrorText != "" && strings.Contains(text, f.cfg.ErrorText) {
		return f.fail("error text found in response", nil)
	}
	if f.cfg.SuccessText != "" && !strings.Contains(text, f.cfg.SuccessText) {
		return f.fail("success text not found in response", nil)
	}
	if f.cfg.SuccessURL != "" && resp.Request.URL.String() != f.cfg.SuccessURL {
		return f.fail("response URL does not match success URL", nil)
	}
	if f.cfg.AuthCookie != "" && !hasCookie(resp, f.cfg.AuthCookie) {
		return f.fail("auth cookie not found in response", nil)
	}
	if f.cfg.Extractor != nil {
		token, err := f.cfg.Extractor(body)
		if err != nil {
			return f.fail("extract token from response", err)
		}
		if token == "" {
			return f.fail("extractor returned an empty token", nil)
		}
		f.token = token
	}
	return nil
}

func (f *Form) fail(reason string, err error) error {
	return &fetch.AuthError{Flow: "form", Reason: reason, Err: err}
}

func hasCookie(resp *http.Response, name string) bool {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return true
		}
	}
	return false
}
