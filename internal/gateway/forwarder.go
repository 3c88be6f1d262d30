package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/austindbirch/prestus_bff/internal/downstream"
	"github.com/austindbirch/prestus_bff/internal/logging"
)

// Headers that describe the inbound connection rather than the request
var hopHeaders = []string{
	"Host",
	"Connection",
	"Keep-Alive",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
	"Content-Length",
	"Accept-Encoding", // the transport negotiates compression itself
}

// Forwarder relays single-resource calls to one downstream and mirrors the answer
type Forwarder struct {
	logger *logging.Logger
}

func NewForwarder(logger *logging.Logger) *Forwarder {
	return &Forwarder{logger: logger}
}

// Forward sends method+path to c with payload, a sanitized copy of inbound headers
// and the inbound query, then mirrors the downstream status and body. It never retries.
func (f *Forwarder) Forward(ctx context.Context, c downstream.Caller, method, path string, payload []byte, inbound http.Header, query url.Values) Response {
	res, err := c.Do(ctx, downstream.Spec{
		Method: method,
		Path:   path,
		Body:   payload,
		Query:  query,
		Header: OutboundHeaders(inbound),
	})
	if err != nil {
		resp := ErrorResponse(err)
		f.logger.WithContext(ctx).WithDownstream(c.Name()).WithError(err).
			WithField("status", resp.Status).
			Debug("forward failed")
		return resp
	}
	return passthrough(res)
}

// OutboundHeaders copies inbound minus the host header and hop-by-hop headers.
// A nil inbound yields nil.
func OutboundHeaders(inbound http.Header) http.Header {
	if inbound == nil {
		return nil
	}
	out := inbound.Clone()
	for _, v := range inbound.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				out.Del(name)
			}
		}
	}
	for _, h := range hopHeaders {
		out.Del(h)
	}
	return out
}
