// Package client is an HTTP client for the /v1/records API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"poe/internal/registry/models"
	dErrors "poe/pkg/domain-errors"
	"poe/pkg/platform/httputil"
)

// Client calls a registry server. Token is sent as a bearer credential on
// mutating calls.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

type Option func(*Client)

func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Create(ctx context.Context, req models.RecordRequest) (*models.Entry, error) {
	var entry models.Entry
	if err := c.do(ctx, http.MethodPost, "/v1/records", req, true, http.StatusCreated, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (c *Client) Delete(ctx context.Context, req models.RecordRequest) error {
	return c.do(ctx, http.MethodPost, "/v1/records/delete", req, true, http.StatusNoContent, nil)
}

func (c *Client) Transfer(ctx context.Context, req models.TransferRequest) (*models.Entry, error) {
	var entry models.Entry
	if err := c.do(ctx, http.MethodPost, "/v1/records/transfer", req, true, http.StatusOK, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (c *Client) Lookup(ctx context.Context, req models.RecordRequest) (*models.Entry, error) {
	var entry models.Entry
	if err := c.do(ctx, http.MethodPost, "/v1/records/lookup", req, false, http.StatusOK, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (c *Client) LookupByID(ctx context.Context, rid models.RecordID) (*models.Entry, error) {
	var entry models.Entry
	if err := c.do(ctx, http.MethodGet, "/v1/records/"+rid.String(), nil, false, http.StatusOK, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, authed bool, want int, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed && c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeError rebuilds a coded error from the server's error envelope.
func decodeError(resp *http.Response) error {
	var envelope httputil.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&envelope); err != nil || envelope.Error == "" {
		return dErrors.New(dErrors.CodeInternal, fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}
	msg := envelope.ErrorDescription
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return dErrors.New(dErrors.Code(envelope.Error), msg)
}
