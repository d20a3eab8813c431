// Package transport performs the network call for a chat request and
// validates its outcome.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ai-gateway/chatstream-go/internal/reqerr"
)

const maxErrBody = 64 << 10

// Doer performs an HTTP round trip. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// FetchFunc adapts a function to Doer.
type FetchFunc func(req *http.Request) (*http.Response, error)

func (f FetchFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

// RequestInfo is handed to the request middleware alongside the request.
type RequestInfo struct {
	BaseURL string
	Init    SendOptions
}

// Middlewares may inspect or replace the request before it is sent and the
// response before it is interpreted. Returning nil is a configuration error.
type Middlewares struct {
	OnRequest  func(req *http.Request, info RequestInfo) (*http.Request, error)
	OnResponse func(resp *http.Response) (*http.Response, error)
}

// SendOptions describe one call.
type SendOptions struct {
	Method  string
	Params  any
	Headers http.Header
}

var defaultHeaders atomic.Pointer[http.Header]

// SetDefaultHeaders replaces the process-wide headers applied to every
// request before any other header.
func SetDefaultHeaders(h http.Header) {
	c := h.Clone()
	defaultHeaders.Store(&c)
}

// DefaultHeaders returns a copy of the process-wide headers.
func DefaultHeaders() http.Header {
	if p := defaultHeaders.Load(); p != nil && *p != nil {
		return p.Clone()
	}
	return make(http.Header)
}

// Client sends requests. It holds no per-call state.
type Client struct {
	doer        Doer
	headers     http.Header
	middlewares Middlewares
	log         zerolog.Logger
}

type Option func(*Client)

// WithDoer replaces the HTTP client used for the call.
func WithDoer(d Doer) Option {
	return func(c *Client) {
		if d != nil {
			c.doer = d
		}
	}
}

// WithHeader sets a header on every request from this client.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.headers.Set(key, value) }
}

// WithHeaders adds headers to every request from this client.
func WithHeaders(h http.Header) Option {
	return func(c *Client) {
		for k, vv := range h {
			c.headers.Del(k)
			for _, v := range vv {
				c.headers.Add(k, v)
			}
		}
	}
}

// WithCredential sets an opaque credential header, e.g. Authorization.
func WithCredential(header, value string) Option {
	return func(c *Client) {
		if header != "" && value != "" {
			c.headers.Set(header, value)
		}
	}
}

func WithMiddlewares(m Middlewares) Option {
	return func(c *Client) { c.middlewares = m }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

func New(opts ...Option) *Client {
	c := &Client{
		doer:    &http.Client{},
		headers: make(http.Header),
		log:     log.Logger,
	}
	for _, o := range opts {
		if o != nil {
			o(c)
		}
	}
	return c
}

// Send builds the request, runs the middlewares, performs the call and
// validates the response. On success the caller owns resp.Body.
func (c *Client) Send(ctx context.Context, url string, opts SendOptions) (*http.Response, error) {
	if strings.TrimSpace(url) == "" {
		return nil, reqerr.ErrMissingURL
	}
	req, err := c.build(ctx, url, opts)
	if err != nil {
		return nil, err
	}

	if c.middlewares.OnRequest != nil {
		next, err := c.middlewares.OnRequest(req, RequestInfo{BaseURL: url, Init: opts})
		if err != nil {
			return nil, errors.Wrap(err, "request middleware")
		}
		if next == nil {
			return nil, errors.Wrap(reqerr.ErrMiddleware, "request middleware returned nil")
		}
		req = next.WithContext(ctx)
	}

	t0 := time.Now()
	resp, err := c.doer.Do(req)
	c.log.Debug().Str("method", req.Method).Str("url", url).Dur("took", time.Since(t0)).Err(err).Msg("transport: request sent")
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, reqerr.New(reqerr.NameNetwork, "no response")
	}

	if c.middlewares.OnResponse != nil {
		next, err := c.middlewares.OnResponse(resp)
		if err != nil {
			closeBody(resp)
			return nil, errors.Wrap(err, "response middleware")
		}
		if next == nil {
			closeBody(resp)
			return nil, errors.Wrap(reqerr.ErrMiddleware, "response middleware returned nil")
		}
		resp = next
	}

	return validate(resp)
}

func (c *Client) build(ctx context.Context, url string, opts SendOptions) (*http.Request, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	if opts.Params != nil {
		data, err := json.Marshal(opts.Params)
		if err != nil {
			return nil, reqerr.Wrap(reqerr.NameConfiguration, err, "encode params: %v", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, reqerr.Wrap(reqerr.NameConfiguration, err, "build request: %v", err)
	}

	h := DefaultHeaders()
	if body != nil && h.Get("Content-Type") == "" {
		h.Set("Content-Type", "application/json")
	}
	for _, layer := range []http.Header{c.headers, opts.Headers} {
		for k, vv := range layer {
			h.Del(k)
			for _, v := range vv {
				h.Add(k, v)
			}
		}
	}
	req.Header = h
	return req, nil
}

func validate(resp *http.Response) (*http.Response, error) {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var raw []byte
		if resp.Body != nil {
			raw, _ = io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
			_ = resp.Body.Close()
		}
		return nil, &reqerr.StatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: raw}
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		closeBody(resp)
		return nil, reqerr.ErrEmptyBody
	}
	return resp, nil
}

func closeBody(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
}
