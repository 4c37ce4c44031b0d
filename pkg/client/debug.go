package client

import (
	"net/http"
	"net/http/httputil"
	"regexp"

	"github.com/rs/zerolog"

	"github.com/bsdtools/client-go/pkg/api"
)

// authorizationLine matches the Authorization header inside a wire dump.
var authorizationLine = regexp.MustCompile(`(?mi)^Authorization:.*$`)

// dumpTransport wraps a Doer and dumps every request and response to the
// logger at debug level. The Authorization header is redacted before
// logging; signed URLs and bodies appear exactly as sent.
type dumpTransport struct {
	base api.Doer
	log  zerolog.Logger
}

func newDumpTransport(base api.Doer, log zerolog.Logger) *dumpTransport {
	return &dumpTransport{base: base, log: log}
}

func (d *dumpTransport) Do(req *http.Request) (*http.Response, error) {
	if dump, err := httputil.DumpRequestOut(req, true); err == nil {
		redacted := authorizationLine.ReplaceAll(dump, []byte("Authorization: [redacted]"))
		d.log.Debug().Str("dump", string(redacted)).Msg("http request")
	}

	resp, err := d.base.Do(req)
	if err != nil {
		d.log.Debug().Err(err).Msg("http transport error")
		return nil, err
	}

	if dump, err := httputil.DumpResponse(resp, true); err == nil {
		d.log.Debug().Str("dump", string(dump)).Msg("http response")
	}
	return resp, nil
}
