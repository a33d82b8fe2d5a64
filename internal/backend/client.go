// Package backend is the single choke point for calls to the home-automation REST backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// RequestIDHeader carries a per-request id so backend logs can be correlated
const RequestIDHeader = "X-Request-ID"

// Options configures a Client
type Options struct {
	Timeout      time.Duration // default 10s, ignored when HTTPClient is set
	RateLimitRPS float64       // 0 = unlimited
	HTTPClient   *http.Client
	Headers      http.Header // sent with every request, before per-call headers
}

// RequestOptions are the per-call settings merged over the defaults
type RequestOptions struct {
	Method string
	Body   any // JSON-encoded when non-nil
	Header http.Header
}

// Client performs JSON requests against a fixed base origin.
// It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	headers    http.Header
}

// NewClient creates a client for the given base origin (e.g. "http://10.0.0.5:8080").
func NewClient(baseURL string, opts Options) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q: need http(s)://host", baseURL)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		headers:    opts.Headers.Clone(),
	}
	if opts.RateLimitRPS > 0 {
		burst := int(opts.RateLimitRPS)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), burst)
	}
	return c, nil
}

// BaseURL returns the configured origin
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Close closes idle connections
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// Do issues a request to path and decodes a JSON response into out.
// A 204 or empty body leaves out untouched. out may be nil to discard the body.
// Every failure is returned as *Error.
func (c *Client) Do(ctx context.Context, path string, opts *RequestOptions, out any) error {
	if opts == nil {
		opts = &RequestOptions{}
	}
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	fail := func(kind Kind, err error) *Error {
		return &Error{Kind: kind, Method: method, Path: path, Message: err.Error(), Err: err}
	}

	var body io.Reader
	if opts.Body != nil {
		payload, err := json.Marshal(opts.Body)
		if err != nil {
			return fail(KindTransport, fmt.Errorf("failed to encode body: %w", err))
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fail(KindTransport, err)
	}

	requestID, ok := RequestIDFrom(ctx)
	if !ok {
		requestID = uuid.NewString()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)
	mergeHeaders(req.Header, c.headers)
	mergeHeaders(req.Header, opts.Header)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fail(KindTransport, err)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("method", method).Str("path", path).Str("request_id", requestID).Msg("Backend request failed")
		return fail(KindTransport, err)
	}
	defer resp.Body.Close()

	log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Str("request_id", requestID).
		Msg("Backend request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(resp.Body)
		return &Error{
			Kind:       KindStatus,
			Method:     method,
			Path:       path,
			Status:     resp.StatusCode,
			StatusText: statusText(resp),
			Message:    string(text),
		}
	}

	if resp.StatusCode == http.StatusNoContent || out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return &Error{
			Kind:       KindDecode,
			Method:     method,
			Path:       path,
			Status:     resp.StatusCode,
			StatusText: statusText(resp),
			Message:    err.Error(),
			Err:        err,
		}
	}
	return nil
}

// Get is shorthand for a GET decoding into out
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, path, nil, out)
}

func mergeHeaders(dst, src http.Header) {
	for key, values := range src {
		dst.Del(key)
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}

// statusText prefers the reason phrase the server sent
func statusText(resp *http.Response) string {
	text := strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)+" ")
	if text == "" || text == resp.Status {
		return http.StatusText(resp.StatusCode)
	}
	return text
}
