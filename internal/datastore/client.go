// Package datastore is the client of the external REST data store that owns
// products, categories, farmers, buyers and orders.
package datastore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Skotchmaster/farmers_market/pkg/logging"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("data store unavailable")
)

// StatusError is returned for any non-2xx answer other than 404.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

type response struct {
	code int
	body []byte
}

type Client struct {
	base    *url.URL
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[response]
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New builds a client for baseURL. Requests are traced and go through a
// circuit breaker that opens after five consecutive failures.
func New(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse data store url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("data store url %q must be absolute", baseURL)
	}

	c := &Client{
		base: u,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, o := range opts {
		o(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker[response](gobreaker.Settings{
		Name:        "datastore",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return c, nil
}

func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// Ping checks that the data store answers at all.
func (c *Client) Ping(ctx context.Context) error {
	var out []json.RawMessage
	return c.do(ctx, http.MethodGet, "/categories", nil, nil, &out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(raw)
	}

	// path is already escaped by itemPath; RawPath keeps it from being escaped twice.
	unescaped, err := url.PathUnescape(path)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	u := *c.base
	u.Path = c.base.Path + unescaped
	u.RawPath = c.base.EscapedPath() + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.breaker.Execute(func() (response, error) {
		r, err := c.http.Do(req)
		if err != nil {
			return response{}, err
		}
		defer r.Body.Close()
		raw, err := io.ReadAll(io.LimitReader(r.Body, 8<<20))
		if err != nil {
			return response{}, err
		}
		res := response{code: r.StatusCode, body: raw}
		if r.StatusCode >= 500 {
			return res, &StatusError{Method: method, Path: path, Code: r.StatusCode, Body: snippet(raw)}
		}
		return res, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		logging.FromContext(ctx).Warn("datastore_breaker_open", "method", method, "path", path)
		return fmt.Errorf("%s %s: %w", method, path, ErrUnavailable)
	}
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			return se
		}
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	switch {
	case resp.code == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	case resp.code < 200 || resp.code > 299:
		return &StatusError{Method: method, Path: path, Code: resp.code, Body: snippet(resp.body)}
	}

	if out == nil || len(bytes.TrimSpace(resp.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		return s[:200]
	}
	return s
}

func itemPath(collection string, id fmt.Stringer) string {
	return "/" + collection + "/" + url.PathEscape(id.String())
}
