package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hivefetch/hivefetch/internal/clock/system"
	"github.com/hivefetch/hivefetch/internal/fetch"
	"github.com/hivefetch/hivefetch/internal/metrics"
)

// OAuth2Config describes a client-credentials flow. RefreshURL defaults to
// TokenURL; AccessToken and RefreshToken may seed an existing grant.
type OAuth2Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	RefreshURL   string
	Scope        string
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    time.Duration // expiry for a seeded access token
	HTTPClient   *http.Client
	Clock        fetch.Clock
}

// OAuth2 holds access and refresh tokens with an absolute expiry.
// Authenticate first attempts a refresh when a refresh token exists,
// falling back to a full client-credentials exchange. Calls are
// serialized; a waiting caller re-checks the token before starting its own
// exchange.
type OAuth2 struct {
	cfg    OAuth2Config
	client *http.Client
	clock  fetch.Clock

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	tokenType    string
	expiresAt    time.Time // zero means no expiry
}

// NewOAuth2 builds an OAuth2 provider.
func NewOAuth2(cfg OAuth2Config) *OAuth2 {
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	clk := cfg.Clock
	if clk == nil {
		clk = system.New()
	}
	if cfg.RefreshURL == "" {
		cfg.RefreshURL = cfg.TokenURL
	}
	tokenType := cfg.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	o := &OAuth2{
		cfg:          cfg,
		client:       client,
		clock:        clk,
		accessToken:  cfg.AccessToken,
		refreshToken: cfg.RefreshToken,
		tokenType:    tokenType,
	}
	if cfg.AccessToken != "" && cfg.ExpiresIn > 0 {
		o.expiresAt = clk.Now().Add(cfg.ExpiresIn)
	}
	return o
}

// Headers returns the Authorization header for the current access token.
func (o *OAuth2) Headers() http.Header {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.accessToken == "" {
		return http.Header{}
	}
	return http.Header{"Authorization": []string{o.tokenType + " " + o.accessToken}}
}

// IsAuthenticated reports whether a live, unexpired access token is held.
func (o *OAuth2) IsAuthenticated() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.liveLocked()
}

// Authenticate refreshes or acquires an access token. It fails with
// *fetch.AuthError on a non-2xx token endpoint response or a missing
// access token.
func (o *OAuth2) Authenticate(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.liveLocked() {
		return nil
	}

	if o.refreshToken != "" {
		if err := o.exchange(ctx, o.cfg.RefreshURL, url.Values{
			"grant_type":    []string{"refresh_token"},
			"refresh_token": []string{o.refreshToken},
			"client_id":     []string{o.cfg.ClientID},
			"client_secret": []string{o.cfg.ClientSecret},
		}); err == nil {
			metrics.RecordAuthFlow("oauth2_refresh", "success")
			return nil
		}
		metrics.RecordAuthFlow("oauth2_refresh", "failure")
	}

	form := url.Values{
		"grant_type":    []string{"client_credentials"},
		"client_id":     []string{o.cfg.ClientID},
		"client_secret": []string{o.cfg.ClientSecret},
	}
	if o.cfg.Scope != "" {
		form.Set("scope", o.cfg.Scope)
	}
	if err := o.exchange(ctx, o.cfg.TokenURL, form); err != nil {
		metrics.RecordAuthFlow("oauth2", "failure")
		return err
	}
	metrics.RecordAuthFlow("oauth2", "success")
	return nil
}

func (o *OAuth2) liveLocked() bool {
	if o.accessToken == "" {
		return false
	}
	return o.expiresAt.IsZero() || o.clock.Now().Before(o.expiresAt)
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// exchange posts the grant to endpoint and installs the returned tokens.
// Caller holds the mutex.
func (o *OAuth2) exchange(ctx context.Context, endpoint string, form url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return o.fail("build token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := o.client.Do(req)
	if err != nil {
		return o.fail("post token request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return o.fail(fmt.Sprintf("token endpoint returned HTTP %d", resp.StatusCode), nil)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return o.fail("read token response", err)
	}
	var token tokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return o.fail("decode token response", err)
	}
	if token.AccessToken == "" {
		return o.fail("no access token in response", nil)
	}

	o.accessToken = token.AccessToken
	if token.RefreshToken != "" {
		o.refreshToken = token.RefreshToken
	}
	if token.TokenType != "" {
		o.tokenType = token.TokenType
	}
	if token.ExpiresIn > 0 {
		o.expiresAt = o.clock.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	} else {
		o.expiresAt = time.Time{}
	}
	return nil
}

func (o *OAuth2) fail(reason string, err error) error {
	return &fetch.AuthError{Flow: "oauth2", Reason: reason, Err: err}
}
