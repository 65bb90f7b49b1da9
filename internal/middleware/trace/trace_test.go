package trace

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"lifelog/internal/log"
	"lifelog/internal/metrics"
)

func TestMiddlewareTagsRequest(t *testing.T) {
	m := metrics.New()
	var seenID string
	var seenLogger *log.Logger
	h := NewMiddleware(nil, log.Discard(), m).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = GetRequestID(r.Context())
		seenLogger = log.FromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if !strings.HasPrefix(seenID, "req_") || rec.Header().Get(HeaderRequestID) != seenID {
		t.Fatalf("request id = %q, header = %q", seenID, rec.Header().Get(HeaderRequestID))
	}
	if seenLogger == nil || seenLogger.Component() != log.ComponentTrace {
		t.Fatalf("request logger not installed")
	}
	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "418")); got != 1 {
		t.Fatalf("requests{code=418} = %v", got)
	}
}

func TestMiddlewareKeepsUpstreamID(t *testing.T) {
	h := NewMiddleware(nil, log.Discard(), nil).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "abc123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get(HeaderRequestID); got != "abc123" {
		t.Fatalf("request id = %q", got)
	}
}
