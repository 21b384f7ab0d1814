// Package crm syncs contacts to the mailing-list provider.
package crm

import (
	"context"
	"errors"
	"meet-backend/internal/upstream"
	"net/http"
	"net/url"
	"strings"
)

var ErrContactNotFound = errors.New("crm contact not found")

type Client struct {
	api    *upstream.Client
	apiKey string
	listID int64
}

func NewClient(baseURL, apiKey string, listID int64, httpClient *http.Client) *Client {
	return &Client{
		api:    upstream.NewClient("crm", strings.TrimSuffix(baseURL, "/"), httpClient),
		apiKey: apiKey,
		listID: listID,
	}
}

func (c *Client) do(ctx context.Context, method, path string, in any) error {
	header := http.Header{"api-key": {c.apiKey}}
	return c.api.Do(ctx, method, path, header, in, nil)
}

type upsertContactRequest struct {
	Email         string         `json:"email"`
	Attributes    map[string]any `json:"attributes,omitempty"`
	ListIDs       []int64        `json:"listIds,omitempty"`
	UpdateEnabled bool           `json:"updateEnabled"`
}

// UpsertContact creates the contact or updates it in place, and adds it to the
// configured mailing list.
func (c *Client) UpsertContact(ctx context.Context, email string, attrs map[string]any) error {
	req := upsertContactRequest{
		Email:         email,
		Attributes:    attrs,
		UpdateEnabled: true,
	}
	if c.listID > 0 {
		req.ListIDs = []int64{c.listID}
	}
	return c.do(ctx, http.MethodPost, "/contacts", req)
}

// UpdateContact changes attributes of the contact currently registered under
// email. Renaming is done by passing the new address as the EMAIL attribute.
func (c *Client) UpdateContact(ctx context.Context, email string, attrs map[string]any) error {
	err := c.do(ctx, http.MethodPut, "/contacts/"+url.PathEscape(email), map[string]any{"attributes": attrs})
	if upstream.StatusCode(err) == http.StatusNotFound {
		return ErrContactNotFound
	}
	return err
}

func (c *Client) DeleteContact(ctx context.Context, email string) error {
	err := c.do(ctx, http.MethodDelete, "/contacts/"+url.PathEscape(email), nil)
	if upstream.StatusCode(err) == http.StatusNotFound {
		return ErrContactNotFound
	}
	return err
}
