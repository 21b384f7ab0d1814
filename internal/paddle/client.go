// Package paddle is a client for the billing provider's REST API.
package paddle

import (
	"context"
	"errors"
	"fmt"
	"meet-backend/internal/upstream"
	"net/http"
	"net/url"
	"strings"
)

var ErrCustomerNotFound = errors.New("billing customer not found")

type Customer struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	Status string `json:"status,omitempty"`
}

type Subscription struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	CustomerID string `json:"customer_id"`
}

type envelope[T any] struct {
	Data T `json:"data"`
}

type Client struct {
	api    *upstream.Client
	apiKey string
}

func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	return &Client{
		api:    upstream.NewClient("paddle", strings.TrimSuffix(baseURL, "/"), httpClient),
		apiKey: apiKey,
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	header := http.Header{"Authorization": {"Bearer " + c.apiKey}}
	return c.api.Do(ctx, method, path, header, in, out)
}

func (c *Client) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	var resp envelope[Customer]
	err := c.do(ctx, http.MethodGet, "/customers/"+url.PathEscape(id), nil, &resp)
	if upstream.StatusCode(err) == http.StatusNotFound {
		return nil, ErrCustomerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

func (c *Client) FindCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	var resp envelope[[]Customer]
	q := url.Values{"email": {email}}
	if err := c.do(ctx, http.MethodGet, "/customers?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	for i := range resp.Data {
		if strings.EqualFold(resp.Data[i].Email, email) {
			return &resp.Data[i], nil
		}
	}
	return nil, ErrCustomerNotFound
}

// CreateCustomer creates a customer, or returns the existing one when the
// email is already registered.
func (c *Client) CreateCustomer(ctx context.Context, email, name string) (*Customer, error) {
	var resp envelope[Customer]
	in := map[string]string{"email": email}
	if name != "" {
		in["name"] = name
	}
	err := c.do(ctx, http.MethodPost, "/customers", in, &resp)
	if upstream.StatusCode(err) == http.StatusConflict {
		return c.FindCustomerByEmail(ctx, email)
	}
	if err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

func (c *Client) UpdateCustomer(ctx context.Context, id, email, name string) error {
	in := map[string]string{}
	if email != "" {
		in["email"] = email
	}
	if name != "" {
		in["name"] = name
	}
	if len(in) == 0 {
		return nil
	}
	return c.do(ctx, http.MethodPatch, "/customers/"+url.PathEscape(id), in, nil)
}

// ListActiveSubscriptions returns the customer's subscriptions that can still
// be managed or canceled.
func (c *Client) ListActiveSubscriptions(ctx context.Context, customerID string) ([]Subscription, error) {
	var resp envelope[[]Subscription]
	q := url.Values{
		"customer_id": {customerID},
		"status":      {"active,trialing,past_due,paused"},
	}
	if err := c.do(ctx, http.MethodGet, "/subscriptions?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) CancelSubscription(ctx context.Context, id string) error {
	in := map[string]string{"effective_from": "immediately"}
	if err := c.do(ctx, http.MethodPost, "/subscriptions/"+url.PathEscape(id)+"/cancel", in, nil); err != nil {
		return fmt.Errorf("cancel subscription %s: %w", id, err)
	}
	return nil
}

type portalSession struct {
	URLs struct {
		General struct {
			Overview string `json:"overview"`
		} `json:"general"`
	} `json:"urls"`
}

// CreatePortalSession returns an authenticated customer portal link.
func (c *Client) CreatePortalSession(ctx context.Context, customerID string, subscriptionIDs []string) (string, error) {
	var resp envelope[portalSession]
	in := map[string][]string{"subscription_ids": subscriptionIDs}
	if subscriptionIDs == nil {
		in["subscription_ids"] = []string{}
	}
	err := c.do(ctx, http.MethodPost, "/customers/"+url.PathEscape(customerID)+"/portal-sessions", in, &resp)
	if upstream.StatusCode(err) == http.StatusNotFound {
		return "", ErrCustomerNotFound
	}
	if err != nil {
		return "", err
	}
	if resp.Data.URLs.General.Overview == "" {
		return "", errors.New("paddle: portal session without url")
	}
	return resp.Data.URLs.General.Overview, nil
}
