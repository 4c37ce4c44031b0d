package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bsdtools/client-go/pkg/api"
)

func deferredResp(token string) *api.Response {
	return &api.Response{StatusCode: api.StatusDeferred, Body: []byte(token), Header: http.Header{}}
}

func finalResp(status int, body string) *api.Response {
	return &api.Response{StatusCode: status, Body: []byte(body), Header: http.Header{}}
}

func TestResolver(t *testing.T) {
	tests := []struct {
		name        string
		maxAttempts int
		initial     *api.Response
		poll        func(n int) *api.Response
		wantStatus  int
		wantBody    string
		wantPolls   int
		wantTimeout bool
	}{
		{
			name:        "immediate response returned unchanged",
			maxAttempts: 20,
			initial:     finalResp(200, "right away"),
			poll:        func(int) *api.Response { t.Error("poll issued for non-deferred response"); return nil },
			wantStatus:  200,
			wantBody:    "right away",
			wantPolls:   0,
		},
		{
			name:        "immediate error status returned unchanged",
			maxAttempts: 20,
			initial:     finalResp(500, "broken"),
			poll:        func(int) *api.Response { return nil },
			wantStatus:  500,
			wantBody:    "broken",
			wantPolls:   0,
		},
		{
			name:        "resolved on first poll",
			maxAttempts: 20,
			initial:     deferredResp("tok-1"),
			poll:        func(int) *api.Response { return finalResp(200, "done") },
			wantStatus:  200,
			wantBody:    "done",
			wantPolls:   1,
		},
		{
			name:        "resolved after pending polls",
			maxAttempts: 20,
			initial:     deferredResp("tok-1"),
			poll: func(n int) *api.Response {
				if n < 3 {
					return deferredResp("tok-1")
				}
				return finalResp(200, "Finally!")
			},
			wantStatus: 200,
			wantBody:   "Finally!",
			wantPolls:  3,
		},
		{
			name:        "error status on poll is final",
			maxAttempts: 20,
			initial:     deferredResp("tok-1"),
			poll:        func(int) *api.Response { return finalResp(503, "maintenance") },
			wantStatus:  503,
			wantBody:    "maintenance",
			wantPolls:   1,
		},
		{
			name:        "budget exhausted while pending",
			maxAttempts: 2,
			initial:     deferredResp("tok-1"),
			poll: func(n int) *api.Response {
				if n > 2 {
					return finalResp(200, "Finally!")
				}
				return deferredResp("tok-1")
			},
			wantPolls:   2,
			wantTimeout: true,
		},
		{
			name:        "zero budget times out without polling",
			maxAttempts: 0,
			initial:     deferredResp("tok-1"),
			poll:        func(int) *api.Response { t.Error("poll issued with zero budget"); return nil },
			wantPolls:   0,
			wantTimeout: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := newResolver(tt.maxAttempts, 0, zerolog.Nop())

			polls := 0
			resp, err := resolver.Resolve(context.Background(), tt.initial, func(_ context.Context, _ string) (*api.Response, error) {
				polls++
				return tt.poll(polls), nil
			})

			if polls != tt.wantPolls {
				t.Errorf("expected %d polls, got %d", tt.wantPolls, polls)
			}
			if tt.wantTimeout {
				if !IsDeferredTimeout(err) {
					t.Fatalf("expected DeferredTimeoutError, got %v", err)
				}
				var dte *DeferredTimeoutError
				if errors.As(err, &dte) {
					if dte.Attempts != tt.maxAttempts {
						t.Errorf("expected Attempts %d, got %d", tt.maxAttempts, dte.Attempts)
					}
					if dte.Token != "tok-1" {
						t.Errorf("expected Token tok-1, got %q", dte.Token)
					}
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, resp.StatusCode)
			}
			if string(resp.Body) != tt.wantBody {
				t.Errorf("expected body %q, got %q", tt.wantBody, resp.Body)
			}
		})
	}
}

func TestResolverPassesTokenToEveryPoll(t *testing.T) {
	resolver := newResolver(5, 0, zerolog.Nop())

	var tokens []string
	_, err := resolver.Resolve(context.Background(), deferredResp("tok-42"), func(_ context.Context, token string) (*api.Response, error) {
		tokens = append(tokens, token)
		if len(tokens) < 3 {
			return deferredResp("tok-42"), nil
		}
		return finalResp(200, "ok"), nil
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if len(tokens) != 3 {
		t.Fatalf("expected 3 polls, got %d", len(tokens))
	}
	for i, token := range tokens {
		if token != "tok-42" {
			t.Errorf("poll %d used token %q, want tok-42", i+1, token)
		}
	}
}

func TestResolverTransportErrorAborts(t *testing.T) {
	resolver := newResolver(10, 0, zerolog.Nop())
	boom := errors.New("connection reset")

	polls := 0
	_, err := resolver.Resolve(context.Background(), deferredResp("tok-1"), func(_ context.Context, _ string) (*api.Response, error) {
		polls++
		if polls == 2 {
			return nil, boom
		}
		return deferredResp("tok-1"), nil
	})

	if !errors.Is(err, boom) {
		t.Fatalf("expected poll error to propagate, got %v", err)
	}
	if polls != 2 {
		t.Errorf("expected polling to stop at the failed attempt, got %d polls", polls)
	}
	if IsDeferredTimeout(err) {
		t.Error("transport failure misreported as timeout")
	}
}

func TestResolverZeroIntervalDoesNotDelay(t *testing.T) {
	resolver := newResolver(50, 0, zerolog.Nop())

	start := time.Now()
	polls := 0
	resp, err := resolver.Resolve(context.Background(), deferredResp("tok-1"), func(_ context.Context, _ string) (*api.Response, error) {
		polls++
		if polls < 50 {
			return deferredResp("tok-1"), nil
		}
		return finalResp(200, "ok"), nil
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if resp.StatusCode != 200 {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("50 zero-interval polls took %v", elapsed)
	}
}

func TestResolverCancelledDuringWait(t *testing.T) {
	resolver := newResolver(10, 10*time.Second, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	polls := 0
	_, err := resolver.Resolve(ctx, deferredResp("tok-1"), func(_ context.Context, _ string) (*api.Response, error) {
		polls++
		return deferredResp("tok-1"), nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if IsDeferredTimeout(err) {
		t.Error("cancellation misreported as timeout")
	}
	if polls != 0 {
		t.Errorf("expected no polls after cancellation, got %d", polls)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("cancellation took %v to take effect", elapsed)
	}
}

func TestResolverCancelledBeforePoll(t *testing.T) {
	resolver := newResolver(10, 0, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	polls := 0
	_, err := resolver.Resolve(ctx, deferredResp("tok-1"), func(_ context.Context, _ string) (*api.Response, error) {
		polls++
		return deferredResp("tok-1"), nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if polls != 0 {
		t.Errorf("expected no polls on a dead context, got %d", polls)
	}
}

// deferredServer scripts an endpoint that defers and a poll endpoint
// whose nth hit is produced by script.
func deferredServer(t *testing.T, token string, script func(pollN int) (int, string)) (*httptest.Server, *struct {
	mu       sync.Mutex
	pollHits int
	queries  []url.Values
}) {
	t.Helper()
	state := &struct {
		mu       sync.Mutex
		pollHits int
		queries  []url.Values
	}{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/"+api.DeferredResultsPath) {
			state.mu.Lock()
			state.pollHits++
			n := state.pollHits
			state.queries = append(state.queries, r.URL.Query())
			state.mu.Unlock()

			status, body := script(n)
			w.WriteHeader(status)
			_, _ = w.Write([]byte(body))
			return
		}
		w.WriteHeader(api.StatusDeferred)
		_, _ = w.Write([]byte(token))
	}))
	return server, state
}

func TestGetResolvesDeferredResult(t *testing.T) {
	server, state := deferredServer(t, "tok-123", func(n int) (int, string) {
		if n < 3 {
			return api.StatusDeferred, "tok-123"
		}
		return http.StatusOK, "Finally!"
	})
	defer server.Close()

	c, err := New(server.URL, "acme", "s3cret", WithDeferredResultInterval(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resp, err := c.Get(context.Background(), "circuit_search", nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
	if string(resp.Body) != "Finally!" {
		t.Errorf("expected body %q, got %q", "Finally!", resp.Body)
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	if state.pollHits != 3 {
		t.Errorf("expected exactly 3 polls, got %d", state.pollHits)
	}
	for i, q := range state.queries {
		if got := q.Get(api.DeferredTokenParam); got != "tok-123" {
			t.Errorf("poll %d sent %s=%q, want tok-123", i+1, api.DeferredTokenParam, got)
		}
		if q.Get(api.ParamMAC) == "" {
			t.Errorf("poll %d was not signed", i+1)
		}
	}
}

func TestGetDeferredTimeout(t *testing.T) {
	server, state := deferredServer(t, "tok-123", func(n int) (int, string) {
		if n > 2 {
			return http.StatusOK, "Finally!"
		}
		return api.StatusDeferred, "tok-123"
	})
	defer server.Close()

	c, err := New(server.URL, "acme", "s3cret",
		WithDeferredResultMaxAttempts(2),
		WithDeferredResultInterval(0),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resp, err := c.Get(context.Background(), "circuit_search", nil)
	if !IsDeferredTimeout(err) {
		t.Fatalf("expected DeferredTimeoutError, got %v", err)
	}
	if resp != nil {
		t.Errorf("expected nil response, got %+v", resp)
	}

	var dte *DeferredTimeoutError
	if errors.As(err, &dte) {
		if dte.Attempts != 2 {
			t.Errorf("expected Attempts 2, got %d", dte.Attempts)
		}
		if dte.Token != "tok-123" {
			t.Errorf("expected Token tok-123, got %q", dte.Token)
		}
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	if state.pollHits != 2 {
		t.Errorf("expected exactly 2 polls, got %d", state.pollHits)
	}
}

// tickingClock advances one second per reading so consecutive requests
// carry distinct timestamps.
func tickingClock(start int64) func() time.Time {
	var mu sync.Mutex
	var n int64
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		n++
		return time.Unix(start+n, 0)
	}
}

func TestGetDeferredPollsFreshlySigned(t *testing.T) {
	server, state := deferredServer(t, "tok-9", func(n int) (int, string) {
		if n < 3 {
			return api.StatusDeferred, "tok-9"
		}
		return http.StatusOK, "done"
	})
	defer server.Close()

	c, err := New(server.URL, "acme", "s3cret",
		WithDeferredResultInterval(0),
		WithClock(tickingClock(1700000000)),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Get(context.Background(), "circuit_search", nil); err != nil {
		t.Fatalf("Get: %v", err)
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	seenTS := map[string]bool{}
	seenMAC := map[string]bool{}
	for i, q := range state.queries {
		ts, mac := q.Get(api.ParamTimestamp), q.Get(api.ParamMAC)
		if seenTS[ts] {
			t.Errorf("poll %d reused timestamp %s", i+1, ts)
		}
		if seenMAC[mac] {
			t.Errorf("poll %d reused signature %s", i+1, mac)
		}
		seenTS[ts], seenMAC[mac] = true, true
	}
}

func TestPostResolvesDeferredWithGetPolls(t *testing.T) {
	var pollMethods []string
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/"+api.DeferredResultsPath) {
			mu.Lock()
			pollMethods = append(pollMethods, r.Method)
			mu.Unlock()
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("recorded"))
			return
		}
		w.WriteHeader(api.StatusDeferred)
		_, _ = w.Write([]byte("tok-55"))
	}))
	defer server.Close()

	c, err := New(server.URL, "acme", "s3cret", WithDeferredResultInterval(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resp, err := c.Post(context.Background(), "note_add", nil, "escalating")
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if string(resp.Body) != "recorded" {
		t.Errorf("expected body %q, got %q", "recorded", resp.Body)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(pollMethods) != 1 || pollMethods[0] != http.MethodGet {
		t.Errorf("expected one GET poll, got %v", pollMethods)
	}
}

func TestGetPollTransportErrorAbandonsResolution(t *testing.T) {
	boom := errors.New("connection reset by peer")
	doer := &scriptedDoer{steps: []step{
		{status: api.StatusDeferred, body: "tok-7"},
		{status: api.StatusDeferred, body: "tok-7"},
		{err: boom},
	}}

	c, err := New("https://portal.example.com", "acme", "s3cret",
		WithTransport(doer),
		WithDeferredResultInterval(0),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = c.Get(context.Background(), "circuit_search", nil)
	if !IsTransportError(err) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("underlying cause lost: %v", err)
	}
	if n := len(doer.requests()); n != 3 {
		t.Errorf("expected polling to stop after the failure, got %d requests", n)
	}
}

func TestSetDeferredResultPolicyAppliesToNextCall(t *testing.T) {
	server, state := deferredServer(t, "tok-1", func(int) (int, string) {
		return api.StatusDeferred, "tok-1"
	})
	defer server.Close()

	c, err := New(server.URL, "acme", "s3cret", WithDeferredResultInterval(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	c.SetDeferredResultMaxAttempts(1)
	if _, err := c.Get(context.Background(), "circuit_search", nil); !IsDeferredTimeout(err) {
		t.Fatalf("expected DeferredTimeoutError, got %v", err)
	}

	c.SetDeferredResultMaxAttempts(4)
	if _, err := c.Get(context.Background(), "circuit_search", nil); !IsDeferredTimeout(err) {
		t.Fatalf("expected DeferredTimeoutError, got %v", err)
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	if state.pollHits != 5 {
		t.Errorf("expected 1+4 polls across the two calls, got %d", state.pollHits)
	}
}
