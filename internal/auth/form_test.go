package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hivefetch/hivefetch/internal/fetch"
)

func TestFormAuthenticateSuccess(t *testing.T) {
	t.Parallel()

	var posted map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		posted = map[string]string{
			"user": r.PostFormValue("user"),
			"pass": r.PostFormValue("pass"),
			"csrf": r.PostFormValue("csrf"),
		}
		http.SetCookie(w, &http.Cookie{Name: "sessionid", Value: "s1"})
		fmt.Fprint(w, `{"status":"welcome back","token":"tok-42"}`)
	}))
	defer srv.Close()

	p := NewForm(FormConfig{
		LoginURL:      srv.URL,
		UsernameField: "user",
		PasswordField: "pass",
		Username:      "alice",
		Password:      "hunter2",
		ExtraFields:   map[string]string{"csrf": "c0ffee"},
		SuccessText:   "welcome back",
		AuthCookie:    "sessionid",
		Extractor: func(body []byte) (string, error) {
			var payload struct {
				Token string `json:"token"`
			}
			if err := json.Unmarshal(body, &payload); err != nil {
				return "", err
			}
			return payload.Token, nil
		},
	})

	require.False(t, p.IsAuthenticated())
	require.NoError(t, p.Authenticate(context.Background()))
	require.True(t, p.IsAuthenticated())
	require.Equal(t, "Bearer tok-42", p.Headers().Get("Authorization"))
	require.Equal(t, map[string]string{"user": "alice", "pass": "hunter2", "csrf": "c0ffee"}, posted)

	// Re-authentication is a no-op once the flow succeeded.
	require.NoError(t, p.Authenticate(context.Background()))
}

func TestFormAuthenticateErrorText(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "invalid credentials, try again")
	}))
	defer srv.Close()

	p := NewForm(FormConfig{
		LoginURL:  srv.URL,
		ErrorText: "invalid credentials",
	})

	err := p.Authenticate(context.Background())
	var authErr *fetch.AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, "form", authErr.Flow)
	require.False(t, p.IsAuthenticated())
}

func TestFormAuthenticateBadStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	p := NewForm(FormConfig{LoginURL: srv.URL})
	var authErr *fetch.AuthError
	require.ErrorAs(t, p.Authenticate(context.Background()), &authErr)
}

func TestFormAuthenticateMissingCookie(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	p := NewForm(FormConfig{LoginURL: srv.URL, AuthCookie: "sessionid"})
	require.Error(t, p.Authenticate(context.Background()))
}

func TestFormAuthenticateEmptyToken(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	p := NewForm(FormConfig{
		LoginURL:  srv.URL,
		Extractor: func([]byte) (string, error) { return "", nil },
	})
	require.Error(t, p.Authenticate(context.Background()))
	require.False(t, p.IsAuthenticated())
}
