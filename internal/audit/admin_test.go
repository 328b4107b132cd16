package audit

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/clpe-bridge/internal/testutil"
)

func TestAuditRoutes(t *testing.T) {
	f := newFixture(t, 0, 1)
	mux := http.NewServeMux()
	f.audit.AttachAdminRoutes(mux)

	rec := testutil.ServeDebug(t, mux, http.MethodPost, "/debug/audit", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var res Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, Result{Checked: 2, Recorded: 2}, res)

	rec = testutil.ServeDebug(t, mux, http.MethodGet, "/debug/audit", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var counters Counters
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&counters))
	assert.Equal(t, uint64(1), counters.Runs)

	rec = testutil.ServeDebug(t, mux, http.MethodDelete, "/debug/audit", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAuditHistoryRoute(t *testing.T) {
	f := newFixture(t, 1)
	mux := http.NewServeMux()
	f.audit.AttachAdminRoutes(mux)

	rec := testutil.ServeDebug(t, mux, http.MethodGet, "/debug/audit/history?camera=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	f.audit.RunOnce(t.Context())
	rec = testutil.ServeDebug(t, mux, http.MethodGet, "/debug/audit/history?camera=1&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var reads []map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&reads))
	require.Len(t, reads, 1)
	assert.Equal(t, float64(1), reads[0]["camera_id"])

	rec = testutil.ServeDebug(t, mux, http.MethodGet, "/debug/audit/history?camera=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
