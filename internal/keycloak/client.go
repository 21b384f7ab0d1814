// Package keycloak talks to the identity provider's admin REST API.
package keycloak

import (
	"context"
	"errors"
	"fmt"
	"meet-backend/internal/tokencache"
	"meet-backend/internal/upstream"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var ErrUserNotFound = errors.New("identity user not found")

// User is the admin API user representation. Attributes carries the billing
// linkage fields written by the webhook applier.
type User struct {
	ID            string              `json:"id,omitempty"`
	Username      string              `json:"username,omitempty"`
	Email         string              `json:"email,omitempty"`
	FirstName     string              `json:"firstName,omitempty"`
	LastName      string              `json:"lastName,omitempty"`
	Enabled       bool                `json:"enabled"`
	EmailVerified bool                `json:"emailVerified"`
	Attributes    map[string][]string `json:"attributes,omitempty"`
}

func (u *User) Attribute(name string) string {
	if vs := u.Attributes[name]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func (u *User) SetAttribute(name, value string) {
	if u.Attributes == nil {
		u.Attributes = map[string][]string{}
	}
	u.Attributes[name] = []string{value}
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

type Config struct {
	BaseURL      string
	Realm        string
	ClientID     string
	ClientSecret string
}

type Client struct {
	api    *upstream.Client
	cfg    Config
	tokens *tokencache.Cache
}

func NewClient(cfg Config, tokens *tokencache.Cache, httpClient *http.Client) *Client {
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	return &Client{
		api:    upstream.NewClient("keycloak", cfg.BaseURL, httpClient),
		cfg:    cfg,
		tokens: tokens,
	}
}

func (c *Client) tokenKey() string {
	return "keycloak:" + c.cfg.Realm + ":" + c.cfg.ClientID
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (c *Client) fetchToken(ctx context.Context) (string, time.Duration, error) {
	var resp tokenResponse
	err := c.api.DoForm(ctx, "/realms/"+url.PathEscape(c.cfg.Realm)+"/protocol/openid-connect/token", url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
	}, &resp)
	if err != nil {
		return "", 0, fmt.Errorf("keycloak: obtain admin token: %w", err)
	}
	if resp.AccessToken == "" {
		return "", 0, errors.New("keycloak: empty admin token")
	}
	return resp.AccessToken, time.Duration(resp.ExpiresIn) * time.Second, nil
}

// admin calls the realm admin API. A 401 drops the cached token and retries
// once with a fresh one.
func (c *Client) admin(ctx context.Context, method, path string, in, out any) error {
	fullPath := "/admin/realms/" + url.PathEscape(c.cfg.Realm) + path
	for attempt := 0; ; attempt++ {
		token, err := c.tokens.Token(ctx, c.tokenKey(), c.fetchToken)
		if err != nil {
			return err
		}
		header := http.Header{"Authorization": {"Bearer " + token}}
		err = c.api.Do(ctx, method, fullPath, header, in, out)
		if upstream.StatusCode(err) == http.StatusUnauthorized && attempt == 0 {
			_ = c.tokens.Invalidate(ctx, c.tokenKey())
			continue
		}
		return err
	}
}

func (c *Client) GetUser(ctx context.Context, id string) (*User, error) {
	var user User
	err := c.admin(ctx, http.MethodGet, "/users/"+url.PathEscape(id), nil, &user)
	if upstream.StatusCode(err) == http.StatusNotFound {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) findOne(ctx context.Context, query url.Values, match func(User) bool) (*User, error) {
	var users []User
	if err := c.admin(ctx, http.MethodGet, "/users?"+query.Encode(), nil, &users); err != nil {
		return nil, err
	}
	for i := range users {
		if match(users[i]) {
			return &users[i], nil
		}
	}
	return nil, ErrUserNotFound
}

func (c *Client) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	if email == "" {
		return nil, ErrUserNotFound
	}
	return c.findOne(ctx, url.Values{
		"email":               {email},
		"exact":               {"true"},
		"briefRepresentation": {"false"},
	}, func(u User) bool {
		return strings.EqualFold(u.Email, email)
	})
}

// FindUserByAttribute searches on a custom attribute, e.g. the billing
// subscription id. An empty value matches nobody.
func (c *Client) FindUserByAttribute(ctx context.Context, name, value string) (*User, error) {
	if value == "" {
		return nil, ErrUserNotFound
	}
	return c.findOne(ctx, url.Values{
		"q":                   {name + ":" + value},
		"exact":               {"true"},
		"briefRepresentation": {"false"},
	}, func(u User) bool {
		return u.Attribute(name) == value
	})
}

func (c *Client) UpdateUser(ctx context.Context, user *User) error {
	if user.ID == "" {
		return errors.New("keycloak: update user without id")
	}
	return c.admin(ctx, http.MethodPut, "/users/"+url.PathEscape(user.ID), user, nil)
}

func (c *Client) DeleteUser(ctx context.Context, id string) error {
	err := c.admin(ctx, http.MethodDelete, "/users/"+url.PathEscape(id), nil, nil)
	if upstream.StatusCode(err) == http.StatusNotFound {
		return ErrUserNotFound
	}
	return err
}
