package coolingunit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-resty/resty/v2"

	"github.com/CUMTD/Mtd.Kiosk/internal/resilience"
)

// Source is one kiosk whose climate is read from a cooling unit API.
type Source struct {
	KioskID    string `yaml:"kiosk_id"`
	URL        string `yaml:"url"`
	DeviceID   string `yaml:"device_id"`
	EntityID   string `yaml:"entity_id"`
	Fahrenheit bool   `yaml:"fahrenheit"`
}

// Target is the breaker key for the source: one breaker per API host.
func (s Source) Target() string {
	u, err := url.Parse(s.URL)
	if err != nil || u.Host == "" {
		return s.URL
	}
	return u.Host
}

// StatusError is a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("cooling unit api status %d: %s", e.StatusCode, e.Body)
}

// Client performs single GET requests. It neither retries nor times out on its
// own; the caller's context and resilience policy own that.
type Client struct {
	http   *resty.Client
	apiKey string
}

func NewClient(apiKey string) *Client {
	return NewClientWithHTTP(&http.Client{}, apiKey)
}

func NewClientWithHTTP(hc *http.Client, apiKey string) *Client {
	rc := resty.NewWithClient(hc).
		SetHeader("Accept", "application/json").
		SetRetryCount(0)
	return &Client{http: rc, apiKey: apiKey}
}

// Fetch reads and decodes one response. Client errors and undecodable bodies
// are permanent; they will not improve on retry.
func (c *Client) Fetch(ctx context.Context, src Source) (*Response, error) {
	req := c.http.R().SetContext(ctx)
	if c.apiKey != "" {
		req.SetHeader("X-Api-Key", c.apiKey)
	}

	resp, err := req.Get(src.URL)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", src.Target(), err)
	}

	status := resp.StatusCode()
	switch {
	case status >= 500 || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout:
		return nil, &StatusError{StatusCode: status, Body: truncate(resp.String())}
	case status >= 400:
		return nil, resilience.Permanent(&StatusError{StatusCode: status, Body: truncate(resp.String())})
	}

	var out Response
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, resilience.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return &out, nil
}

func truncate(s string) string {
	const max = 256
	if len(s) > max {
		return s[:max]
	}
	return s
}
