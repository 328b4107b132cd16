package testutil

import (
	"io"
	"net/http"
	"testing"

	"github.com/banshee-data/clpe-bridge/internal/monitoring"
)

func TestAssertStatusCode(t *testing.T) {
	AssertStatusCode(t, http.StatusOK, http.StatusOK)
	AssertStatusCode(t, http.StatusNotFound, http.StatusNotFound)
}

func TestNewDebugRequest(t *testing.T) {
	req := NewDebugRequest(http.MethodPost, "/debug/frame-rate", `{"frame_rate":20}`)
	if req.RemoteAddr != LoopbackAddr {
		t.Errorf("RemoteAddr = %q, want %q", req.RemoteAddr, LoopbackAddr)
	}
	if got := req.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	body, _ := io.ReadAll(req.Body)
	if string(body) != `{"frame_rate":20}` {
		t.Errorf("body = %q", body)
	}

	get := NewDebugRequest(http.MethodGet, "/debug/clpe/status", "")
	if get.Header.Get("Content-Type") != "" {
		t.Error("GET without body should not set Content-Type")
	}
}

func TestServeDebug(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/echo", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		io.WriteString(w, r.RemoteAddr)
	})

	rec := ServeDebug(t, mux, http.MethodGet, "/debug/echo", "")
	AssertStatusCode(t, rec.Code, http.StatusTeapot)
	if rec.Body.String() != LoopbackAddr {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestQuietLogs(t *testing.T) {
	var called bool
	monitoring.SetLogger(func(string, ...interface{}) { called = true })
	t.Run("muted", func(t *testing.T) {
		QuietLogs(t)
		monitoring.Logf("hidden")
	})
	if called {
		t.Error("Logf reached the previous logger while muted")
	}
	monitoring.SetLogger(nil)
}
