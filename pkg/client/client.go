package client

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bsdtools/client-go/pkg/api"
)

// Version is the library release version, reported in the default
// User-Agent header.
const Version = "2.0.0"

// Client is an authenticated bsdtools API client. Every request it sends
// carries a fresh time-bound signature, and deferred responses are
// resolved transparently: callers see only final results.
//
// A Client is safe for concurrent use by multiple goroutines, except for
// the SetDeferredResult* setters, which must not race with in-flight
// calls. Credentials are fixed at construction and never mutated.
//
// Do not copy a Client after first use.
type Client struct {
	raw *api.Client
	log zerolog.Logger

	maxAttempts int
	interval    time.Duration
}

// New creates a client for the bsdtools API server at baseURL,
// authenticating as identity with secret. baseURL must be absolute and
// names the server only; the /page/api/ root is appended internally.
//
// All configuration is validated here: an error from New means no
// request was sent and none will be, and no partially usable client is
// ever returned.
func New(baseURL, identity, secret string, opts ...Option) (*Client, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	if baseURL == "" {
		return nil, &ConfigError{Field: "base URL", Reason: "cannot be empty"}
	}
	if identity == "" {
		return nil, &ConfigError{Field: "identity", Reason: "cannot be empty"}
	}
	if secret == "" {
		return nil, &ConfigError{Field: "secret", Reason: "cannot be empty"}
	}
	if err := options.validate(); err != nil {
		return nil, err
	}

	transport := options.transport
	if transport == nil {
		transport = &http.Client{Timeout: options.timeout}
	}
	if options.debugHTTP {
		transport = newDumpTransport(transport, options.logger)
	}

	userAgent := options.userAgent
	if userAgent == "" {
		userAgent = "bsdtools-client-go/" + Version
	}

	raw, err := api.NewClient(baseURL,
		api.Signer{Identity: identity, Secret: secret, Now: options.clock},
		api.WithDoer(transport),
		api.WithUserAgent(userAgent),
	)
	if err != nil {
		return nil, &ConfigError{Field: "base URL", Reason: err.Error()}
	}

	return &Client{
		raw:         raw,
		log:         options.logger,
		maxAttempts: options.maxAttempts,
		interval:    options.interval,
	}, nil
}

// Get issues a signed GET to the endpoint at apiPath, relative to the
// /page/api/ root, and resolves any deferral before returning. The
// returned response is always final: its status and body are whatever
// the server ultimately answered.
func (c *Client) Get(ctx context.Context, apiPath string, params api.Params) (*api.Response, error) {
	return c.do(ctx, http.MethodGet, apiPath, params, "")
}

// Post is Get with a raw request body. The query is signed exactly as
// for Get; the body is not covered by the signature.
func (c *Client) Post(ctx context.Context, apiPath string, params api.Params, body string) (*api.Response, error) {
	return c.do(ctx, http.MethodPost, apiPath, params, body)
}

// SetDeferredResultMaxAttempts adjusts the polling budget for subsequent
// calls. Zero disables polling. It must not be called concurrently with
// an in-flight request.
func (c *Client) SetDeferredResultMaxAttempts(n int) {
	c.maxAttempts = n
}

// SetDeferredResultInterval adjusts the inter-poll pause for subsequent
// calls. It must not be called concurrently with an in-flight request.
func (c *Client) SetDeferredResultInterval(d time.Duration) {
	c.interval = d
}

func (c *Client) do(ctx context.Context, method, apiPath string, params api.Params, body string) (resp *api.Response, err error) {
	defer func() {
		requestsTotal.WithLabelValues(method, outcomeLabel(err)).Inc()
	}()

	for _, p := range params {
		if api.IsReserved(p.Key) {
			return nil, &ConfigError{Field: "query parameter " + p.Key, Reason: "is reserved for authentication"}
		}
	}

	log := c.log.With().
		Str("call_id", uuid.NewString()).
		Str("method", method).
		Str("path", apiPath).
		Logger()

	log.Debug().Msg("sending request")
	resp, err = c.send(ctx, method, apiPath, params, body)
	if err != nil {
		log.Debug().Err(err).Msg("request failed")
		return nil, err
	}

	// The policy is captured per call: setter changes apply to the next
	// call, never to a resolution already in flight.
	resolver := newResolver(c.maxAttempts, c.interval, log)
	resp, err = resolver.Resolve(ctx, resp, c.poll)
	if err != nil {
		log.Debug().Err(err).Msg("request failed")
		return nil, err
	}

	log.Debug().Int("status", resp.StatusCode).Msg("request complete")
	return resp, nil
}

// send performs one signed exchange, classifying any failure as a
// transport error.
func (c *Client) send(ctx context.Context, method, apiPath string, params api.Params, body string) (*api.Response, error) {
	var resp *api.Response
	var err error
	if method == http.MethodPost {
		resp, err = c.raw.Post(ctx, apiPath, params, body)
	} else {
		resp, err = c.raw.Get(ctx, apiPath, params)
	}
	if err != nil {
		return nil, &TransportError{Op: method + " " + apiPath, Err: err}
	}
	return resp, nil
}

// poll redeems a deferral token with a freshly signed GET.
func (c *Client) poll(ctx context.Context, token string) (*api.Response, error) {
	return c.send(ctx, http.MethodGet, api.DeferredResultsPath,
		api.Params{{Key: api.DeferredTokenParam, Value: token}}, "")
}
