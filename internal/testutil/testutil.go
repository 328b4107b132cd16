// Package testutil provides shared test utilities for the debug routes and
// the process logger.
package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/banshee-data/clpe-bridge/internal/monitoring"
)

// LoopbackAddr is the remote address given to debug requests. tsweb only
// serves /debug/ to local callers.
const LoopbackAddr = "127.0.0.1:12345"

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// NewDebugRequest creates a request that tsweb accepts as local. An empty
// body sends no body.
func NewDebugRequest(method, target, body string) *http.Request {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	req.RemoteAddr = LoopbackAddr
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// ServeDebug sends a local request through mux and returns the recorded
// response.
func ServeDebug(t *testing.T, mux http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, NewDebugRequest(method, target, body))
	return rec
}

// QuietLogs mutes monitoring.Logf for the rest of the test and restores
// it to t.Logf afterwards.
func QuietLogs(t *testing.T) {
	t.Helper()
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(t.Logf) })
}
