package clpe

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"tailscale.com/tsweb"

	"github.com/banshee-data/clpe-bridge/internal/calibration"
	"github.com/banshee-data/clpe-bridge/internal/httputil"
)

type statusResponse struct {
	State     State  `json:"state"`
	FrameRate int    `json:"frame_rate"`
	SessionID string `json:"session_id"`
	Cameras   []int  `json:"cameras"`
}

// calibrationResponse is CameraInfo plus the geometry derived from K.
// Derived fields are omitted when K is singular.
type calibrationResponse struct {
	calibration.CameraInfo
	HorizontalFOV float64   `json:"horizontal_fov_deg,omitempty"`
	VerticalFOV   float64   `json:"vertical_fov_deg,omitempty"`
	Ray           []float64 `json:"ray,omitempty"`
	DerivedError  string    `json:"derived_error,omitempty"`
}

type frameResponse struct {
	CameraID  int    `json:"camera_id"`
	FrameID   string `json:"frame_id"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Step      int    `json:"step"`
	Encoding  string `json:"encoding"`
	Bytes     int    `json:"bytes"`
	Timestamp string `json:"timestamp"`
}

// AttachAdminRoutes mounts the connection debug endpoints under /debug/ on
// mux. These are served on the local debug listener only.
func (c *Client[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("clpe/status", "CLPE connection state and stream session", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, statusResponse{
			State:     c.State(),
			FrameRate: c.FrameRate(),
			SessionID: c.SessionID(),
			Cameras:   c.Cameras(),
		})
	})

	debug.HandleFunc("clpe/calibration", "Read camera calibration from EEPROM (?camera=N, optional &u=&v= to back-project a pixel)", func(w http.ResponseWriter, r *http.Request) {
		id, ok := cameraParam(w, r)
		if !ok {
			return
		}
		u, v, hasPixel, err := pixelParams(r)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		info, err := c.CameraInfo(id)
		if err != nil {
			writeClientError(w, err)
			return
		}

		resp := calibrationResponse{CameraInfo: info}
		resp.HorizontalFOV, resp.VerticalFOV, err = info.FieldOfView()
		if err != nil {
			resp.DerivedError = err.Error()
		} else if hasPixel {
			x, y, _ := info.Ray(u, v)
			resp.Ray = []float64{x, y, 1}
		}
		httputil.WriteJSON(w, http.StatusOK, resp)
	})

	debug.HandleFunc("clpe/frame", "Pull one frame and report its metadata (?camera=N)", func(w http.ResponseWriter, r *http.Request) {
		id, ok := cameraParam(w, r)
		if !ok {
			return
		}
		f, err := c.ReadFrame(id)
		if err != nil {
			writeClientError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, frameResponse{
			CameraID:  f.CameraID,
			FrameID:   f.FrameID,
			Width:     f.Width,
			Height:    f.Height,
			Step:      f.Step,
			Encoding:  f.Encoding,
			Bytes:     len(f.Data),
			Timestamp: f.Timestamp.Format("2006-01-02T15:04:05.000000Z07:00"),
		})
	})

	// Runtime frame-rate updates: POST {"frame_rate": N}.
	debug.HandleSilentFunc("frame-rate", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			httputil.WriteJSON(w, http.StatusOK, map[string]int{"frame_rate": c.FrameRate()})
			return
		}
		if !httputil.RequireMethod(w, r, http.MethodPost) {
			return
		}
		var req struct {
			FrameRate int `json:"frame_rate"`
		}
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := c.SetFrameRate(req.FrameRate); err != nil {
			writeClientError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]int{"frame_rate": c.FrameRate()})
	})
}

func cameraParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.URL.Query().Get("camera"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "camera query parameter must be an integer")
		return 0, false
	}
	return id, true
}

// pixelParams parses the optional u and v query parameters. Both or neither
// must be given.
func pixelParams(r *http.Request) (u, v float64, ok bool, err error) {
	us, vs := r.URL.Query().Get("u"), r.URL.Query().Get("v")
	if us == "" && vs == "" {
		return 0, 0, false, nil
	}
	if u, err = strconv.ParseFloat(us, 64); err != nil {
		return 0, 0, false, fmt.Errorf("u must be a number")
	}
	if v, err = strconv.ParseFloat(vs, 64); err != nil {
		return 0, 0, false, fmt.Errorf("v must be a number")
	}
	return u, v, true, nil
}

func writeClientError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrFrameRateOutOfRange), errors.Is(err, ErrInvalidCamera):
		status = http.StatusBadRequest
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrFrameRateUnsupported):
		status = http.StatusConflict
	case errors.Is(err, ErrFailed):
		status = http.StatusServiceUnavailable
	}
	httputil.WriteError(w, status, err.Error())
}
