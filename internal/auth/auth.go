// Package auth implements the credential providers injected into the fetch
// orchestrator's pre-flight.
package auth

import (
	"context"
	"encoding/base64"
	"net/http"
)

// None is the default provider: always authenticated, no headers.
type None struct{}

// NewNone returns the no-auth provider.
func NewNone() *None {
	return &None{}
}

// Headers returns no headers.
func (None) Headers() http.Header { return http.Header{} }

// IsAuthenticated always reports true.
func (None) IsAuthenticated() bool { return true }

// Authenticate is a no-op success.
func (None) Authenticate(context.Context) error { return nil }

// Basic injects a static Authorization: Basic header computed once from the
// credentials. It is stateless and always authenticated.
type Basic struct {
	header string
}

// NewBasic builds a basic-auth provider.
func NewBasic(username, password string) *Basic {
	encoded := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	return &Basic{header: "Basic " + encoded}
}

// Headers returns the Authorization header.
func (b *Basic) Headers() http.Header {
	return http.Header{"Authorization": []string{b.header}}
}

// IsAuthenticated always reports true; the header rides on every request.
func (b *Basic) IsAuthenticated() bool { return true }

// Authenticate is a no-op success.
func (b *Basic) Authenticate(context.Context) error { return nil }

// Token injects a static prefixed token header. It is stateless and always
// authenticated.
type Token struct {
	header string
}

// NewToken builds a token provider. An empty prefix defaults to "Bearer".
func NewToken(token, prefix string) *Token {
	if prefix == "" {
		prefix = "Bearer"
	}
	return &Token{header: prefix + " " + token}
}

// Headers returns the Authorization header.
func (t *Token) Headers() http.Header {
	return http.Header{"Authorization": []string{t.header}}
}

// IsAuthenticated always reports true.
func (t *Token) IsAuthenticated() bool { return true }

// Authenticate is a no-op success.
func (t *Token) Authenticate(context.Context) error { return nil }
