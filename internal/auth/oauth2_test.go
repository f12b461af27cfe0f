package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hivefetch/hivefetch/internal/fetch"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestOAuth2ClientCredentials(t *testing.T) {
	t.Parallel()

	var grants []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		grants = append(grants, r.PostFormValue("grant_type"))
		require.Equal(t, "client-1", r.PostFormValue("client_id"))
		require.Equal(t, "read:pages", r.PostFormValue("scope"))
		fmt.Fprint(w, `{"access_token":"at-1","refresh_token":"rt-1","expires_in":3600}`)
	}))
	defer srv.Close()

	clk := newManualClock()
	p := NewOAuth2(OAuth2Config{
		ClientID:     "client-1",
		ClientSecret: "shh",
		TokenURL:     srv.URL,
		Scope:        "read:pages",
		Clock:        clk,
	})

	require.False(t, p.IsAuthenticated())
	require.NoError(t, p.Authenticate(context.Background()))
	require.True(t, p.IsAuthenticated())
	require.Equal(t, []string{"client_credentials"}, grants)
	require.Equal(t, "Bearer at-1", p.Headers().Get("Authorization"))

	// The token expires with the clock.
	clk.Advance(2 * time.Hour)
	require.False(t, p.IsAuthenticated())
}

func TestOAuth2PrefersRefreshGrant(t *testing.T) {
	t.Parallel()

	var grants []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		grants = append(grants, r.PostFormValue("grant_type"))
		require.Equal(t, "rt-0", r.PostFormValue("refresh_token"))
		fmt.Fprint(w, `{"access_token":"at-2","refresh_token":"rt-1","expires_in":60}`)
	}))
	defer srv.Close()

	p := NewOAuth2(OAuth2Config{
		ClientID:     "client-1",
		TokenURL:     srv.URL,
		RefreshToken: "rt-0",
		Clock:        newManualClock(),
	})

	require.NoError(t, p.Authenticate(context.Background()))
	require.Equal(t, []string{"refresh_token"}, grants)
	require.Equal(t, "Bearer at-2", p.Headers().Get("Authorization"))
}

func TestOAuth2FallsBackWhenRefreshFails(t *testing.T) {
	t.Parallel()

	var grants []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		grant := r.PostFormValue("grant_type")
		grants = append(grants, grant)
		if grant == "refresh_token" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `{"access_token":"at-3"}`)
	}))
	defer srv.Close()

	p := NewOAuth2(OAuth2Config{
		ClientID:     "client-1",
		TokenURL:     srv.URL,
		RefreshToken: "rt-stale",
		Clock:        newManualClock(),
	})

	require.NoError(t, p.Authenticate(context.Background()))
	require.Equal(t, []string{"refresh_token", "client_credentials"}, grants)
	// No expires_in means the token never expires on its own.
	require.True(t, p.IsAuthenticated())
}

func TestOAuth2SeededTokenSkipsExchange(t *testing.T) {
	t.Parallel()

	p := NewOAuth2(OAuth2Config{
		ClientID:    "client-1",
		TokenURL:    "http://127.0.0.1:0/unreachable",
		AccessToken: "seeded",
		TokenType:   "Token",
		Clock:       newManualClock(),
	})

	require.True(t, p.IsAuthenticated())
	require.NoError(t, p.Authenticate(context.Background()))
	require.Equal(t, "Token seeded", p.Headers().Get("Authorization"))
}

func TestOAuth2ErrorOnMissingAccessToken(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"token_type":"Bearer"}`)
	}))
	defer srv.Close()

	p := NewOAuth2(OAuth2Config{ClientID: "client-1", TokenURL: srv.URL})
	var authErr *fetch.AuthError
	require.ErrorAs(t, p.Authenticate(context.Background()), &authErr)
	require.Equal(t, "oauth2", authErr.Flow)
}
