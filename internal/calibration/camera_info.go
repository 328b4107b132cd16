// Package calibration maps CLPE EEPROM calibration records onto the standard
// camera-info representation (intrinsic matrix, distortion vector, model tag).
//
// Results are derived on every request and must not be cached by callers:
// self-calibrating rigs can rewrite the EEPROM while streaming.
package calibration

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/clpe-bridge/internal/eeprom"
)

// Distortion model tags understood by the middleware.
const (
	DistortionPlumbBob    = "plumb_bob"   // radial + tangential
	DistortionEquidistant = "equidistant" // fisheye / Kannala-Brandt
)

// ErrSingularIntrinsics is returned when K cannot be inverted (fx or fy is 0).
var ErrSingularIntrinsics = errors.New("intrinsic matrix is singular")

// CameraInfo is the calibration message published alongside each image.
type CameraInfo struct {
	FrameID         string      `json:"frame_id"`
	Width           int         `json:"width"`
	Height          int         `json:"height"`
	DistortionModel string      `json:"distortion_model"`
	D               []float64   `json:"d"` // distortion coefficients
	K               [9]float64  `json:"k"` // intrinsic matrix, row-major
	R               [9]float64  `json:"r"` // rectification, identity for a monocular camera
	P               [12]float64 `json:"p"` // projection, [K | 0]
}

// DistortionModelFor returns the tag for a decoded calibration model.
// Records that reach the mapper have already passed eeprom.Decode, so the
// model is always one of the two known values.
func DistortionModelFor(m eeprom.CalibrationModel) string {
	if m == eeprom.ModelFishEye {
		return DistortionEquidistant
	}
	return DistortionPlumbBob
}

// BuildCameraInfo converts rec to a CameraInfo for an image of the given size.
//
// The distortion vector is [k1, k2, p1, p2, k3, k4] for both models. The
// equidistant model conventionally takes only [k1..k4]; the tangential terms
// are kept in place until the vendor confirms how FishEye records are meant
// to be read.
func BuildCameraInfo(rec eeprom.Record, width, height int) CameraInfo {
	fx, fy := float64(rec.Fx), float64(rec.Fy)
	cx, cy := float64(rec.Cx), float64(rec.Cy)

	return CameraInfo{
		Width:           width,
		Height:          height,
		DistortionModel: DistortionModelFor(rec.Model),
		D: []float64{
			float64(rec.K1), float64(rec.K2),
			float64(rec.P1), float64(rec.P2),
			float64(rec.K3), float64(rec.K4),
		},
		K: [9]float64{
			fx, 0, cx,
			0, fy, cy,
			0, 0, 1,
		},
		R: [9]float64{
			1, 0, 0,
			0, 1, 0,
			0, 0, 1,
		},
		P: [12]float64{
			fx, 0, cx, 0,
			0, fy, cy, 0,
			0, 0, 1, 0,
		},
	}
}

// Intrinsics returns K as a 3×3 matrix.
func (ci CameraInfo) Intrinsics() *mat.Dense {
	k := ci.K
	return mat.NewDense(3, 3, k[:])
}

// Ray back-projects pixel (u, v) to a unit-depth ray (x, y, 1) in the camera
// frame through K⁻¹. Distortion is not removed.
func (ci CameraInfo) Ray(u, v float64) (x, y float64, err error) {
	inv, err := ci.inverse()
	if err != nil {
		return 0, 0, err
	}
	x, y = backProject(inv, u, v)
	return x, y, nil
}

// FieldOfView returns the pinhole field of view in degrees, measured from
// the image edges through the principal point. Distortion is ignored, so for
// equidistant cameras this understates the true coverage.
func (ci CameraInfo) FieldOfView() (horizontal, vertical float64, err error) {
	inv, err := ci.inverse()
	if err != nil {
		return 0, 0, err
	}
	cx, cy := ci.K[2], ci.K[5]
	left, _ := backProject(inv, 0, cy)
	right, _ := backProject(inv, float64(ci.Width), cy)
	_, top := backProject(inv, cx, 0)
	_, bottom := backProject(inv, cx, float64(ci.Height))

	horizontal = (math.Atan(right) - math.Atan(left)) * 180 / math.Pi
	vertical = (math.Atan(bottom) - math.Atan(top)) * 180 / math.Pi
	return horizontal, vertical, nil
}

func (ci CameraInfo) inverse() (*mat.Dense, error) {
	var inv mat.Dense
	if err := inv.Inverse(ci.Intrinsics()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingularIntrinsics, err)
	}
	return &inv, nil
}

func backProject(inv *mat.Dense, u, v float64) (x, y float64) {
	var r mat.VecDense
	r.MulVec(inv, mat.NewVecDense(3, []float64{u, v, 1}))
	return r.AtVec(0) / r.AtVec(2), r.AtVec(1) / r.AtVec(2)
}
