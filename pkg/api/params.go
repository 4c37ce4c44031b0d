package api

import (
	"net/url"
	"strings"
)

// Param is a single query parameter.
type Param struct {
	Key   string
	Value string
}

// Params is an ordered list of query parameters. Order is significant:
// the server verifies the request MAC against the query serialized in
// exactly the order the parameters were added, so Params must never be
// sorted or deduplicated. Values are raw strings; the protocol performs
// no type coercion.
type Params []Param

// Add returns p with a key/value pair appended.
func (p Params) Add(key, value string) Params {
	return append(p, Param{Key: key, Value: value})
}

// Get returns the value of the first parameter named key, or "" if none
// is present.
func (p Params) Get(key string) string {
	for _, kv := range p {
		if kv.Key == key {
			return kv.Value
		}
	}
	return ""
}

// String serializes the parameters as key=value pairs joined by "&",
// in order, without percent-encoding. This is the form covered by the
// request MAC: the server URL-decodes the query it received before
// recomputing the digest.
func (p Params) String() string {
	var b strings.Builder
	for i, kv := range p {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(kv.Key)
		b.WriteByte('=')
		b.WriteString(kv.Value)
	}
	return b.String()
}

// Encode serializes the parameters for the request URL, percent-encoding
// keys and values while preserving order. url.Values is unsuitable here:
// its Encode sorts by key, which would desynchronize the sent query from
// the signed one.
func (p Params) Encode() string {
	var b strings.Builder
	for i, kv := range p {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(kv.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(kv.Value))
	}
	return b.String()
}
