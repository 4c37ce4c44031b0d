package client

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/bsdtools/client-go/pkg/api"
)

// Defaults applied by New when the corresponding option is not given.
const (
	// DefaultTimeout bounds each HTTP request made by the default
	// transport, including each individual poll.
	DefaultTimeout = 30 * time.Second

	// DefaultDeferredResultMaxAttempts is how many polls a deferred
	// result gets before the call fails with DeferredTimeoutError.
	DefaultDeferredResultMaxAttempts = 20

	// DefaultDeferredResultInterval is the pause before each poll.
	DefaultDeferredResultInterval = 5 * time.Second
)

// Options configures the client behavior.
type Options struct {
	timeout     time.Duration
	transport   api.Doer
	logger      zerolog.Logger
	clock       func() time.Time
	userAgent   string
	debugHTTP   bool
	maxAttempts int
	interval    time.Duration
}

func defaultOptions() *Options {
	return &Options{
		timeout:     DefaultTimeout,
		logger:      zerolog.Nop(),
		maxAttempts: DefaultDeferredResultMaxAttempts,
		interval:    DefaultDeferredResultInterval,
	}
}

func (o *Options) validate() error {
	if o.timeout <= 0 {
		return &ConfigError{Field: "timeout", Reason: "must be positive"}
	}
	if o.maxAttempts < 0 {
		return &ConfigError{Field: "deferred result max attempts", Reason: "cannot be negative"}
	}
	if o.interval < 0 {
		return &ConfigError{Field: "deferred result interval", Reason: "cannot be negative"}
	}
	return nil
}

// Option configures the client.
type Option func(*Options)

// WithTimeout sets the HTTP request timeout of the default transport.
// It has no effect when WithTransport supplies a custom executor.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.timeout = d
	}
}

// WithTransport replaces the HTTP executor used for every request.
// The executor must be safe for concurrent use.
func WithTransport(d api.Doer) Option {
	return func(o *Options) {
		o.transport = d
	}
}

// WithLogger attaches a logger. The client emits request lifecycle and
// polling progress events at debug level; without this option nothing
// is logged. Credentials and signatures never appear in log fields.
func WithLogger(log zerolog.Logger) Option {
	return func(o *Options) {
		o.logger = log
	}
}

// WithClock overrides the time source used to stamp api_ts on every
// request. Tests pin it to produce reproducible signatures.
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		o.clock = now
	}
}

// WithUserAgent overrides the default User-Agent header.
func WithUserAgent(ua string) Option {
	return func(o *Options) {
		o.userAgent = ua
	}
}

// WithDebugHTTP dumps every request and response on the wire to the
// configured logger at debug level. Dumps carry signed URLs and full
// bodies, with the Authorization header redacted; enable only during
// development.
func WithDebugHTTP() Option {
	return func(o *Options) {
		o.debugHTTP = true
	}
}

// WithDeferredResultMaxAttempts sets how many polls a deferred result
// gets before the call fails with DeferredTimeoutError. Zero disables
// polling: a deferred response times out immediately.
func WithDeferredResultMaxAttempts(n int) Option {
	return func(o *Options) {
		o.maxAttempts = n
	}
}

// WithDeferredResultInterval sets the pause before each deferred-result
// poll. Zero polls back-to-back, which tests use to avoid real waits.
func WithDeferredResultInterval(d time.Duration) Option {
	return func(o *Options) {
		o.interval = d
	}
}
