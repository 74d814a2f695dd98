package api

import (
	"context"
	"net/http"
	"net/url"
)

// Developer app management. The backend masks client secrets in listings;
// the plaintext secret appears only in CreateApp and RegenerateSecret
// responses and is never retrievable again.

// Apps lists the caller's registered applications.
func (c *Caller) Apps(ctx context.Context) ([]App, error) {
	var out struct {
		Apps []App `json:"apps"`
	}
	if err := c.do(ctx, http.MethodGet, "/oauth/apps", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Apps, nil
}

// CreateApp registers a new application. The returned App carries the
// plaintext ClientSecret exactly once.
func (c *Caller) CreateApp(ctx context.Context, p AppParams) (*App, error) {
	var out App
	if err := c.do(ctx, http.MethodPost, "/oauth/apps", nil, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateApp updates an application's mutable fields.
func (c *Caller) UpdateApp(ctx context.Context, clientID string, p AppParams) (*App, error) {
	var out App
	if err := c.do(ctx, http.MethodPut, "/oauth/apps/"+url.PathEscape(clientID), nil, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteApp removes an application and revokes its grants.
func (c *Caller) DeleteApp(ctx context.Context, clientID string) error {
	return c.do(ctx, http.MethodDelete, "/oauth/apps/"+url.PathEscape(clientID), nil, nil, nil)
}

// RegenerateSecret replaces the application's secret. The returned App
// carries the new plaintext ClientSecret exactly once.
func (c *Caller) RegenerateSecret(ctx context.Context, clientID string) (*App, error) {
	var out App
	if err := c.do(ctx, http.MethodPost, "/oauth/apps/"+url.PathEscape(clientID)+"/regenerate-secret", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
