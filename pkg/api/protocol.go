package api

import "net/http"

// Wire-protocol constants for the bsdtools v2 API. These values are fixed
// by the server and must match exactly; changing any of them breaks
// authentication or deferred-result resolution.
const (
	// Version is the protocol version, sent as api_ver and covered by
	// the request MAC.
	Version = "2"

	// AuthScheme tags the Authorization header that carries the
	// basic-auth-style credential pair alongside the MAC.
	AuthScheme = "bsdtools_v2"

	// Root is the fixed path prefix every API endpoint lives under.
	// Callers address endpoints by their segment relative to this root.
	Root = "/page/api/"

	// StatusDeferred marks a response whose body is a deferral token
	// rather than a result.
	StatusDeferred = http.StatusAccepted

	// DeferredResultsPath is the endpoint polled to redeem a deferral
	// token.
	DeferredResultsPath = "get_deferred_results"

	// DeferredTokenParam is the query key carrying the deferral token on
	// poll requests.
	DeferredTokenParam = "deferred_id"
)

// Authentication parameter names the Signer injects into every query.
const (
	ParamID        = "api_id"
	ParamTimestamp = "api_ts"
	ParamVersion   = "api_ver"
	ParamMAC       = "api_mac"
)

// IsReserved reports whether name is one of the authentication parameters
// the Signer injects itself. Caller-supplied parameters must not use
// these keys.
func IsReserved(name string) bool {
	switch name {
	case ParamID, ParamTimestamp, ParamVersion, ParamMAC:
		return true
	}
	return false
}
