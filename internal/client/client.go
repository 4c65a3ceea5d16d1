// Package client is a typed HTTP client for the kitties API.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/smallbiznis/kitties/internal/kitty/domain"
)

// APIError is a non-2xx response decoded from the error envelope. It unwraps
// to the matching registry error where one exists.
type APIError struct {
	Status  int
	Type    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kitties api: %d %s: %s", e.Status, e.Type, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Type {
	case "unauthorized":
		return domain.ErrUnauthenticated
	case "capacity_exceeded":
		return domain.ErrCapacityExceeded
	case "not_found":
		return domain.ErrNotFound
	case "not_owner":
		return domain.ErrNotOwner
	case "service_unavailable":
		return domain.ErrLockUnavailable
	}
	return nil
}

type errorEnvelope struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type dataEnvelope[T any] struct {
	Data T `json:"data"`
}

type Client struct {
	http *resty.Client
}

type Option func(*resty.Client)

func WithTimeout(d time.Duration) Option {
	return func(c *resty.Client) { c.SetTimeout(d) }
}

// New builds a client for baseURL. Reads are retried on 503; writes are not.
func New(baseURL, token string, opts ...Option) *Client {
	rc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(10*time.Second).
		SetHeader("User-Agent", "kittyctl/1.0").
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if resp == nil || resp.Request == nil || resp.Request.Method != http.MethodGet {
				return false
			}
			return resp.StatusCode() == http.StatusServiceUnavailable
		})
	if token = strings.TrimSpace(token); token != "" {
		rc.SetAuthToken(token)
	}
	for _, opt := range opts {
		opt(rc)
	}
	return &Client{http: rc}
}

func (c *Client) Create(ctx context.Context, dna []byte, price int64) (domain.Kitty, error) {
	var out dataEnvelope[domain.Kitty]
	resp, err := c.request(ctx).
		SetBody(map[string]any{"dna": dna, "price": price}).
		SetResult(&out).
		Post("/api/kitties")
	if err := check(resp, err); err != nil {
		return domain.Kitty{}, err
	}
	return out.Data, nil
}

func (c *Client) Transfer(ctx context.Context, id domain.KittyID, newOwner domain.PrincipalID) error {
	resp, err := c.request(ctx).
		SetPathParam("id", id.String()).
		SetBody(map[string]any{"new_owner": newOwner}).
		Post("/api/kitties/{id}/transfer")
	return check(resp, err)
}

func (c *Client) Get(ctx context.Context, id domain.KittyID) (domain.Kitty, error) {
	var out dataEnvelope[domain.Kitty]
	resp, err := c.request(ctx).
		SetPathParam("id", id.String()).
		SetResult(&out).
		Get("/api/kitties/{id}")
	if err := check(resp, err); err != nil {
		return domain.Kitty{}, err
	}
	return out.Data, nil
}

func (c *Client) Owned(ctx context.Context, principal domain.PrincipalID) ([]domain.Kitty, error) {
	var out dataEnvelope[[]domain.Kitty]
	resp, err := c.request(ctx).
		SetPathParam("principal", principal.String()).
		SetResult(&out).
		Get("/api/owners/{principal}/kitties")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	if out.Data == nil {
		return []domain.Kitty{}, nil
	}
	return out.Data, nil
}

func (c *Client) request(ctx context.Context) *resty.Request {
	return c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetError(&errorEnvelope{})
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if !resp.IsError() {
		return nil
	}
	apiErr := &APIError{Status: resp.StatusCode()}
	if env, ok := resp.Error().(*errorEnvelope); ok && env != nil {
		apiErr.Type = env.Error.Type
		apiErr.Message = env.Error.Message
	}
	if apiErr.Type == "" {
		apiErr.Type = strings.ToLower(strings.ReplaceAll(http.StatusText(apiErr.Status), " ", "_"))
	}
	return apiErr
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}
