// Package httpclient provides a bounded-timeout HTTP client for outbound
// calls to external payment rails. Named httpclient rather than http so
// call sites keep the standard library import.
package httpclient

import (
	"context"
	"net/http"
	"time"
)

type Client struct {
	httpClient *http.Client
}

// NewClient builds a client with a hard per-request timeout. A rail that
// hangs must never hold a collection call open indefinitely.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req.WithContext(ctx))
}
