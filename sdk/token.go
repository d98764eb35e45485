package sdk

import (
	"context"
	"net/http"
	"strings"
)

// TokenKey is the storage key and cookie name holding the bearer token.
const TokenKey = "authToken"

const bearerPrefix = "Bearer "

// TokenSource supplies the bearer token for outbound requests. An empty
// token means the request is sent without an Authorization header.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func(ctx context.Context) (string, error)

// Token calls f(ctx).
func (f TokenSourceFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticToken always returns the same token.
type StaticToken string

// Token returns the static value.
func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// KeyReader is the read side of a key-value store. internal/storage
// backends satisfy it.
type KeyReader interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// StorageTokenSource reads the token from local persistent storage under
// TokenKey. Lookups are done per request so a token written after the
// client was built is picked up.
type StorageTokenSource struct {
	Store KeyReader
	// Key overrides TokenKey when set.
	Key string
}

// NewStorageTokenSource creates a token source backed by store.
func NewStorageTokenSource(store KeyReader) *StorageTokenSource {
	return &StorageTokenSource{Store: store}
}

// Token returns the stored token, or "" when none is stored.
func (s *StorageTokenSource) Token(ctx context.Context) (string, error) {
	if s == nil || s.Store == nil {
		return "", nil
	}
	key := s.Key
	if key == "" {
		key = TokenKey
	}
	v, err := s.Store.Get(ctx, key)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(v)), nil
}

// RequestTokenSource holds the token captured from one incoming request.
// It must not outlive or be shared beyond that request.
type RequestTokenSource struct {
	token string
}

// NewRequestTokenSource captures the token from a cookie value and an
// Authorization header value. The cookie wins; the header is used only when
// it carries the Bearer prefix.
func NewRequestTokenSource(cookie, authorization string) *RequestTokenSource {
	return &RequestTokenSource{token: extractToken(cookie, authorization)}
}

// FromHTTPRequest captures the token of a net/http request.
func FromHTTPRequest(r *http.Request) *RequestTokenSource {
	var cookie string
	if c, err := r.Cookie(TokenKey); err == nil {
		cookie = c.Value
	}
	return NewRequestTokenSource(cookie, r.Header.Get("Authorization"))
}

// Token returns the captured token.
func (s *RequestTokenSource) Token(context.Context) (string, error) {
	if s == nil {
		return "", nil
	}
	return s.token, nil
}

func extractToken(cookie, authorization string) string {
	if cookie = strings.TrimSpace(cookie); cookie != "" {
		return cookie
	}
	if strings.HasPrefix(authorization, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(authorization, bearerPrefix))
	}
	return ""
}
