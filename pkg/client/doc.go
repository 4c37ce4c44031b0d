// Package client provides an authenticated client for the bsdtools v2
// HTTP API.
//
// The package wraps the wire layer (pkg/api) with the two behaviors
// every caller needs and none should reimplement:
//   - Request signing: every request carries a fresh, time-bound
//     HMAC covering its identity, timestamp, path and query
//   - Deferred results: when the server answers 202 with a deferral
//     token, the client polls get_deferred_results until the real
//     response is ready and returns that instead
//
// Endpoints are addressed by their path segment under the fixed
// /page/api/ root and return raw responses; the API exposes no shared
// response schema, so interpreting the body is the caller's business.
//
// # Basic Usage
//
// Create a client and call endpoints:
//
//	c, err := client.New("https://portal.example.com",
//	    os.Getenv("BSDTOOLS_API_ID"),
//	    os.Getenv("BSDTOOLS_API_SECRET"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	resp, err := c.Get(ctx, "circuit_search", api.Params{
//	    {Key: "q", Value: "example.com"},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("%d: %s\n", resp.StatusCode, resp.Body)
//
// A 202 never reaches the caller: Get blocks (respecting ctx) through
// up to 20 polls, 5 seconds apart, before giving up. Both knobs are
// configurable per client:
//
//	c, err := client.New(baseURL, id, secret,
//	    client.WithDeferredResultMaxAttempts(40),
//	    client.WithDeferredResultInterval(2*time.Second),
//	)
//
// # Error Handling
//
// The client surfaces three error types with helper functions:
//
//	resp, err := c.Get(ctx, "circuit_search", params)
//	if err != nil {
//	    switch {
//	    case client.IsDeferredTimeout(err):
//	        // Server still working; token in the error can be
//	        // redeemed manually later
//	    case client.IsTransportError(err):
//	        // Network-level failure; no usable response arrived
//	    default:
//	        // Cancellation or configuration mistakes
//	    }
//	}
//
// HTTP-level failures are not errors: a 404 or 500 comes back as an
// ordinary response with that status, mirroring exactly what the server
// said.
package client
