// Package api implements the wire protocol of the bsdtools v2 HTTP API:
// ordered query parameters, HMAC request signing, URL construction under
// the fixed /page/api/ root, and the raw request/response plumbing the
// higher-level client package builds on.
package api

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// defaultUserAgent identifies direct users of this package. The client
// package overrides it with a versioned string.
const defaultUserAgent = "bsdtools-client-go"

// Doer executes a single HTTP request. *http.Client satisfies it; tests
// and instrumentation layers wrap it.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

var _ Doer = (*http.Client)(nil)

// Response is a raw API response. The endpoints under /page/api/ share
// no response schema, so the body is returned exactly as received.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Deferred reports whether the server deferred the operation: the result
// was not ready and Body holds a token redeemable at the
// get_deferred_results endpoint.
func (r *Response) Deferred() bool {
	return r.StatusCode == StatusDeferred
}

// Client issues signed requests against a single bsdtools endpoint. It
// is safe for concurrent use as long as its Doer is.
type Client struct {
	root      *url.URL
	signer    Signer
	doer      Doer
	userAgent string
	auth      string
}

// Option configures a Client.
type Option func(*Client)

// WithDoer sets the HTTP executor. Defaults to a plain http.Client.
func WithDoer(d Doer) Option {
	return func(c *Client) { c.doer = d }
}

// WithUserAgent overrides the User-Agent header sent on every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// NewClient returns a Client for the API server at baseURL. baseURL must
// be absolute and names the server only; the /page/api/ root is appended
// here. Credentials travel both in the signed query and, per the wire
// contract, as a basic-auth-style Authorization header tagged with the
// protocol scheme.
func NewClient(baseURL string, signer Signer, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base URL %q is not absolute", baseURL)
	}

	c := &Client{
		root:   u.JoinPath(Root),
		signer: signer,
		auth:   AuthScheme + " " + base64.StdEncoding.EncodeToString([]byte(signer.Identity+":"+signer.Secret)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.doer == nil {
		c.doer = &http.Client{}
	}
	if c.userAgent == "" {
		c.userAgent = defaultUserAgent
	}
	return c, nil
}

// Get issues a signed GET to the endpoint at apiPath under /page/api/.
func (c *Client) Get(ctx context.Context, apiPath string, params Params) (*Response, error) {
	return c.call(ctx, http.MethodGet, apiPath, params, "")
}

// Post issues a signed POST. The query is signed exactly as for GET; the
// body is sent verbatim and is not covered by the MAC.
func (c *Client) Post(ctx context.Context, apiPath string, params Params, body string) (*Response, error) {
	return c.call(ctx, http.MethodPost, apiPath, params, body)
}

func (c *Client) call(ctx context.Context, method, apiPath string, params Params, body string) (*Response, error) {
	req, err := c.NewRequest(ctx, method, apiPath, params, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// NewRequest builds a fully signed *http.Request for the endpoint at
// apiPath without sending it. The query is signed at call time, so the
// request must be sent promptly or the server will reject its timestamp.
func (c *Client) NewRequest(ctx context.Context, method, apiPath string, params Params, body string) (*http.Request, error) {
	u := c.root.JoinPath(apiPath)
	u.RawQuery = c.signer.Sign(u.Path, params).Encode()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), r)
	if err != nil {
		return nil, fmt.Errorf("build %s %s request: %w", method, apiPath, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Authorization", c.auth)
	if body != "" {
		req.Header.Set("Content-Type", "text/plain")
	}
	return req, nil
}
