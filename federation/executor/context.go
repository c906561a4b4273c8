package executor

import (
	"context"
	"net/http"
)

type requestHeaderKey struct{}

// SetRequestHeaderToContext stores the client's request header so that it is
// forwarded on every subgraph request made with ctx.
func SetRequestHeaderToContext(ctx context.Context, header http.Header) context.Context {
	return context.WithValue(ctx, requestHeaderKey{}, header)
}

// GetRequestHeaderFromContext returns the header stored by SetRequestHeaderToContext.
func GetRequestHeaderFromContext(ctx context.Context) (http.Header, bool) {
	header, ok := ctx.Value(requestHeaderKey{}).(http.Header)
	return header, ok
}

// headers that describe the client connection or body, not the request
var skippedForwardHeaders = map[string]bool{
	"Connection":        true,
	"Content-Length":    true,
	"Content-Type":      true,
	"Accept-Encoding":   true,
	"Keep-Alive":        true,
	"Te":                true,
	"Trailer":           true,
	"Transfer-Encoding": true,
	"Upgrade":           true,
	"Host":              true,
}

func forwardHeader(ctx context.Context, req *http.Request) {
	header, ok := GetRequestHeaderFromContext(ctx)
	if !ok {
		return
	}
	for k, values := range header {
		if skippedForwardHeaders[http.CanonicalHeaderKey(k)] {
			continue
		}
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
}
