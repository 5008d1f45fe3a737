package auth

import (
	"context"
	"fmt"
	"strings"
)

// Client is the runtime identity behind an API key.
type Client struct {
	ID string
}

// Auth holds mappings from API keys to clients.
type Auth struct {
	apiKeyToClient map[string]Client
}

// New builds an Auth instance from the configured keys. A key may be written
// as "name=secret" to give the client a readable ID; bare keys are numbered.
// With no keys, Enabled reports false and every request is allowed.
func New(keys []string) (*Auth, error) {
	m := make(map[string]Client)

	for i, raw := range keys {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		client := Client{ID: fmt.Sprintf("key-%d", i+1)}
		key := raw
		if name, secret, ok := strings.Cut(raw, "="); ok && name != "" && secret != "" {
			client.ID = name
			key = secret
		}
		if _, exists := m[key]; exists {
			return nil, fmt.Errorf("api key #%d is configured more than once", i+1)
		}
		m[key] = client
	}

	return &Auth{
		apiKeyToClient: m,
	}, nil
}

// Enabled reports whether any key is configured.
func (a *Auth) Enabled() bool {
	return a != nil && len(a.apiKeyToClient) > 0
}

// Lookup returns the client for a given API key, if any.
func (a *Auth) Lookup(apiKey string) (Client, bool) {
	if a == nil || apiKey == "" {
		return Client{}, false
	}
	c, ok := a.apiKeyToClient[apiKey]
	return c, ok
}

type clientContextKey struct{}

// WithClient attaches the authenticated client to ctx.
func WithClient(ctx context.Context, c Client) context.Context {
	return context.WithValue(ctx, clientContextKey{}, c)
}

// ClientFromContext returns the authenticated client, or "anonymous" when
// authentication is disabled.
func ClientFromContext(ctx context.Context) Client {
	c, ok := ctx.Value(clientContextKey{}).(Client)
	if !ok || c.ID == "" {
		return Client{ID: "anonymous"}
	}
	return c
}
