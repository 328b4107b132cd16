package clpe

import (
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/clpe-bridge/internal/calibration"
	"github.com/banshee-data/clpe-bridge/internal/testutil"
)

// localHostRequest passes tsweb.AllowDebugAccess, which admits loopback
// callers only.
func localHostRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = testutil.LoopbackAddr
	return req
}

func adminMux(t *testing.T) (*http.ServeMux, *Client[*Simulator], *Simulator) {
	t.Helper()
	c, sim := connectedClient(t)
	mux := http.NewServeMux()
	c.AttachAdminRoutes(mux)
	return mux, c, sim
}

func serve(mux *http.ServeMux, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestAdminStatus(t *testing.T) {
	mux, c, _ := adminMux(t)
	require.NoError(t, c.StartStream(20, noopCallback))
	defer c.Stop()

	rec := serve(mux, localHostRequest(http.MethodGet, "/debug/clpe/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		State     string `json:"state"`
		FrameRate int    `json:"frame_rate"`
		SessionID string `json:"session_id"`
		Cameras   []int  `json:"cameras"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "streaming", got.State)
	assert.Equal(t, 20, got.FrameRate)
	assert.Equal(t, c.SessionID(), got.SessionID)
	assert.Equal(t, []int{0, 1, 2, 3}, got.Cameras)
}

func TestAdminStatusStateName(t *testing.T) {
	mux, _, _ := adminMux(t)
	rec := serve(mux, localHostRequest(http.MethodGet, "/debug/clpe/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"connecting"`)
}

func TestAdminRejectsRemoteCallers(t *testing.T) {
	mux, _, _ := adminMux(t)
	req := httptest.NewRequest(http.MethodGet, "/debug/clpe/status", nil)
	req.RemoteAddr = "203.0.113.9:4000"
	rec := serve(mux, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminCalibration(t *testing.T) {
	mux, _, sim := adminMux(t)

	rec := serve(mux, localHostRequest(http.MethodGet, "/debug/clpe/calibration?camera=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var info calibration.CameraInfo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))
	assert.Equal(t, 1002.0, info.K[0])
	assert.Equal(t, "plumb_bob", info.DistortionModel)

	rec = serve(mux, localHostRequest(http.MethodGet, "/debug/clpe/calibration?camera=x", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(mux, localHostRequest(http.MethodGet, "/debug/clpe/calibration?camera=9", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(mux, localHostRequest(http.MethodGet, "/debug/clpe/calibration?camera=2&u=1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	sim.EepromCode = 2
	rec = serve(mux, localHostRequest(http.MethodGet, "/debug/clpe/calibration?camera=1", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "ReadEeprom returned 2")
}

func TestAdminCalibrationDerivedGeometry(t *testing.T) {
	mux, _, sim := adminMux(t)

	rec := serve(mux, localHostRequest(http.MethodGet, "/debug/clpe/calibration?camera=2&u=1461&v=540", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got calibrationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.InDelta(t, 2*math.Atan(960.0/1002)*180/math.Pi, got.HorizontalFOV, 1e-9)
	assert.InDelta(t, 2*math.Atan(540.0/1002)*180/math.Pi, got.VerticalFOV, 1e-9)
	require.Len(t, got.Ray, 3)
	assert.InDelta(t, 0.5, got.Ray[0], 1e-9)
	assert.InDelta(t, 0, got.Ray[1], 1e-9)
	assert.Empty(t, got.DerivedError)

	rec2 := DefaultRecord(0)
	rec2.Fy = 0
	sim.SetRecord(0, rec2)
	rec = serve(mux, localHostRequest(http.MethodGet, "/debug/clpe/calibration?camera=0&u=1&v=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	got = calibrationResponse{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Contains(t, got.DerivedError, "singular")
	assert.Zero(t, got.HorizontalFOV)
	assert.Nil(t, got.Ray)
}

func TestAdminFrame(t *testing.T) {
	mux, _, _ := adminMux(t)

	rec := serve(mux, localHostRequest(http.MethodGet, "/debug/clpe/frame?camera=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got frameResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, 1, got.CameraID)
	assert.Equal(t, testFrameBytes, got.Bytes)
	assert.Equal(t, 4, got.Step)
	assert.Equal(t, "yuv422", got.Encoding)
}

func TestAdminFrameRate(t *testing.T) {
	mux, c, sim := adminMux(t)
	require.NoError(t, c.StartStream(30, noopCallback))
	defer c.Stop()

	rec := serve(mux, localHostRequest(http.MethodPost, "/debug/frame-rate", strings.NewReader(`{"frame_rate": 18}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 18, c.FrameRate())
	assert.Equal(t, 18, sim.FrameRate())

	rec = serve(mux, localHostRequest(http.MethodPost, "/debug/frame-rate", strings.NewReader(`{"frame_rate": 31}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 18, c.FrameRate())

	rec = serve(mux, localHostRequest(http.MethodPost, "/debug/frame-rate", strings.NewReader(`{"fps": 20}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(mux, localHostRequest(http.MethodGet, "/debug/frame-rate", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"frame_rate": 18}`, rec.Body.String())

	rec = serve(mux, localHostRequest(http.MethodDelete, "/debug/frame-rate", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
