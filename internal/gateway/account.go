package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/nhle/mailroom/internal/model"
)

// GetSettings returns the user's settings.
func (c *Client) GetSettings(ctx context.Context) (*model.UserSettings, error) {
	var settings model.UserSettings
	if err := c.get(ctx, "/api/settings", nil, &settings); err != nil {
		return nil, fmt.Errorf("getting settings: %w", err)
	}
	return &settings, nil
}

// UpdateSettings replaces the user's settings and returns the stored copy.
func (c *Client) UpdateSettings(
	ctx context.Context,
	settings model.UserSettings,
) (*model.UserSettings, error) {
	var stored model.UserSettings
	if err := c.do(ctx, http.MethodPut, "/api/settings", nil, settings, &stored); err != nil {
		return nil, fmt.Errorf("updating settings: %w", err)
	}
	return &stored, nil
}

// ListDomains returns the configured domains.
func (c *Client) ListDomains(ctx context.Context) ([]model.Domain, error) {
	var domains []model.Domain
	if err := c.get(ctx, "/api/domains", nil, &domains); err != nil {
		return nil, fmt.Errorf("listing domains: %w", err)
	}
	return domains, nil
}

// CreateDomain registers a new domain. The server assigns the ID.
func (c *Client) CreateDomain(ctx context.Context, d model.Domain) (*model.Domain, error) {
	var created model.Domain
	if err := c.do(ctx, http.MethodPost, "/api/domains", nil, d, &created); err != nil {
		return nil, fmt.Errorf("creating domain %q: %w", d.Name, err)
	}
	return &created, nil
}

// UpdateDomain replaces the fields of domain id.
func (c *Client) UpdateDomain(
	ctx context.Context,
	id string,
	d model.Domain,
) (*model.Domain, error) {
	escaped, err := escapeKey("domain_id", id)
	if err != nil {
		return nil, err
	}

	var updated model.Domain
	if err := c.do(ctx, http.MethodPut, "/api/domains/"+escaped, nil, d, &updated); err != nil {
		return nil, fmt.Errorf("updating domain %s: %w", id, err)
	}
	return &updated, nil
}

// DeleteDomain removes domain id.
func (c *Client) DeleteDomain(ctx context.Context, id string) error {
	escaped, err := escapeKey("domain_id", id)
	if err != nil {
		return err
	}

	if err := c.do(ctx, http.MethodDelete, "/api/domains/"+escaped, nil, nil, nil); err != nil {
		return fmt.Errorf("deleting domain %s: %w", id, err)
	}
	return nil
}
