package audit

import (
	"net/http"
	"strconv"

	"tailscale.com/tsweb"

	"github.com/banshee-data/clpe-bridge/internal/db"
	"github.com/banshee-data/clpe-bridge/internal/httputil"
)

type historyReader interface {
	CalibrationHistory(cameraID, limit int) ([]db.CalibrationRead, error)
}

// AttachAdminRoutes mounts /debug/audit (GET counters, POST run a pass
// now) and, when the store can list it, /debug/audit/history?camera=N.
func (a *Auditor) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("audit", "Calibration audit counters; POST runs a pass", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			httputil.WriteJSON(w, http.StatusOK, a.Counters())
		case http.MethodPost:
			httputil.WriteJSON(w, http.StatusOK, a.RunOnce(r.Context()))
		default:
			w.Header().Set("Allow", "GET, POST")
			httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})

	hr, ok := a.store.(historyReader)
	if !ok {
		return
	}
	debug.HandleFunc("audit/history", "Stored calibration reads (?camera=N&limit=M)", func(w http.ResponseWriter, r *http.Request) {
		if !httputil.RequireMethod(w, r, http.MethodGet) {
			return
		}
		id, err := strconv.Atoi(r.URL.Query().Get("camera"))
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "camera must be an integer")
			return
		}
		limit := 20
		if s := r.URL.Query().Get("limit"); s != "" {
			if limit, err = strconv.Atoi(s); err != nil {
				httputil.WriteError(w, http.StatusBadRequest, "limit must be an integer")
				return
			}
		}
		reads, err := hr.CalibrationHistory(id, limit)
		if err != nil {
			httputil.WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if reads == nil {
			reads = []db.CalibrationRead{}
		}
		httputil.WriteJSON(w, http.StatusOK, reads)
	})
}
