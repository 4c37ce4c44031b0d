package client

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/bsdtools/client-go/pkg/api"
)

// pollFunc redeems a deferral token once. Every invocation must go out
// as a freshly signed request.
type pollFunc func(ctx context.Context, token string) (*api.Response, error)

// Resolver turns a deferred response into a final one by polling the
// deferred-results endpoint until the server answers with anything other
// than 202 or the attempt budget runs out.
// It is safe for concurrent use by multiple goroutines.
type Resolver struct {
	maxAttempts int
	interval    time.Duration
	log         zerolog.Logger
}

func newResolver(maxAttempts int, interval time.Duration, log zerolog.Logger) *Resolver {
	return &Resolver{
		maxAttempts: maxAttempts,
		interval:    interval,
		log:         log,
	}
}

// Resolve returns initial unchanged unless it is deferred, with no extra
// calls or delay. Otherwise it polls with the deferral token, pausing
// the configured interval before each attempt. The first non-deferred
// poll response is final whatever its status: the server reports
// poll-level failures as ordinary statuses and they reach the caller
// untouched. Transport errors abort resolution immediately, as does
// cancellation of ctx during a pause.
func (r *Resolver) Resolve(ctx context.Context, initial *api.Response, poll pollFunc) (*api.Response, error) {
	if !initial.Deferred() {
		return initial, nil
	}

	token := string(initial.Body)
	deferredResultsTotal.Inc()
	r.log.Debug().
		Int("max_attempts", r.maxAttempts).
		Dur("interval", r.interval).
		Msg("response deferred, polling for result")

	wait := backoff.NewConstantBackOff(r.interval)
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if err := sleep(ctx, wait.NextBackOff()); err != nil {
			r.log.Debug().Int("attempt", attempt).Msg("resolution cancelled")
			return nil, err
		}

		deferredPollsTotal.Inc()
		resp, err := poll(ctx, token)
		if err != nil {
			return nil, err
		}
		if !resp.Deferred() {
			r.log.Debug().
				Int("attempt", attempt).
				Int("status", resp.StatusCode).
				Msg("deferred result ready")
			return resp, nil
		}
		r.log.Debug().Int("attempt", attempt).Msg("result still pending")
	}

	r.log.Debug().Int("max_attempts", r.maxAttempts).Msg("polling budget exhausted")
	return nil, &DeferredTimeoutError{Token: token, Attempts: r.maxAttempts}
}

// sleep waits for d unless the context ends first. A non-positive d
// still observes cancellation but adds no delay.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
