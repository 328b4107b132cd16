package calibration

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/clpe-bridge/internal/eeprom"
)

func scenarioRecord() eeprom.Record {
	return eeprom.Record{
		Model: eeprom.ModelJhang,
		Fx:    1000, Fy: 1000, Cx: 960, Cy: 540,
		K1: 0.1, K2: -0.05, K3: 0, K4: 0,
		P1: 0.001, P2: 0,
	}
}

// float32 → float64 widening keeps the float32 rounding error, so compare
// against the widened literals.
func f(v float32) float64 { return float64(v) }

func TestBuildCameraInfoScenario(t *testing.T) {
	info := BuildCameraInfo(scenarioRecord(), 1920, 1080)

	want := CameraInfo{
		Width:           1920,
		Height:          1080,
		DistortionModel: DistortionPlumbBob,
		K:               [9]float64{1000, 0, 960, 0, 1000, 540, 0, 0, 1},
		D:               []float64{f(0.1), f(-0.05), f(0.001), 0, 0, 0},
		R:               [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
		P:               [12]float64{1000, 0, 960, 0, 0, 1000, 540, 0, 0, 0, 1, 0},
	}
	if diff := cmp.Diff(want, info); diff != "" {
		t.Errorf("BuildCameraInfo mismatch (-want +got):\n%s", diff)
	}

	// Same values within float32 precision of the decimal literals.
	approx := cmpopts.EquateApprox(0, 1e-7)
	if diff := cmp.Diff([]float64{0.1, -0.05, 0.001, 0, 0, 0}, info.D, approx); diff != "" {
		t.Errorf("distortion vector (-want +got):\n%s", diff)
	}
}

func TestDistortionModelMapping(t *testing.T) {
	tests := []struct {
		model eeprom.CalibrationModel
		want  string
	}{
		{eeprom.ModelJhang, "plumb_bob"},
		{eeprom.ModelFishEye, "equidistant"},
	}
	for _, tt := range tests {
		rec := scenarioRecord()
		rec.Model = tt.model
		info := BuildCameraInfo(rec, 1920, 1080)
		assert.Equal(t, tt.want, info.DistortionModel, "model %v", tt.model)
	}
}

func TestUnknownModelNeverReachesMapper(t *testing.T) {
	rec := scenarioRecord()
	rec.Model = 5
	_, err := eeprom.Decode(eeprom.Encode(rec))
	require.ErrorIs(t, err, eeprom.ErrUnknownCalibrationModel)
}

func TestFishEyeKeepsTangentialOrdering(t *testing.T) {
	rec := eeprom.Record{
		Model: eeprom.ModelFishEye,
		Fx:    700, Fy: 701, Cx: 950, Cy: 530,
		K1: 1, K2: 2, K3: 5, K4: 6,
		P1: 3, P2: 4,
	}
	info := BuildCameraInfo(rec, 1920, 1080)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, info.D)
	assert.Equal(t, DistortionEquidistant, info.DistortionModel)
}

func TestBuildCameraInfoIsPure(t *testing.T) {
	rec := scenarioRecord()
	a := BuildCameraInfo(rec, 1920, 1080)
	a.D[0] = 99
	b := BuildCameraInfo(rec, 1920, 1080)
	assert.Equal(t, f(0.1), b.D[0])

	rec.Fx = 1200
	c := BuildCameraInfo(rec, 1920, 1080)
	assert.Equal(t, 1200.0, c.K[0], "calibration changes must show up on the next call")
}

func TestRay(t *testing.T) {
	info := BuildCameraInfo(scenarioRecord(), 1920, 1080)

	x, y, err := info.Ray(960, 540)
	require.NoError(t, err)
	assert.InDelta(t, 0, x, 1e-9)
	assert.InDelta(t, 0, y, 1e-9)

	x, y, err = info.Ray(1460, 290)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, x, 1e-9)
	assert.InDelta(t, -0.25, y, 1e-9)
}

func TestFieldOfView(t *testing.T) {
	info := BuildCameraInfo(scenarioRecord(), 1920, 1080)

	h, v, err := info.FieldOfView()
	require.NoError(t, err)
	assert.InDelta(t, 2*math.Atan(0.96)*180/math.Pi, h, 1e-9)
	assert.InDelta(t, 2*math.Atan(0.54)*180/math.Pi, v, 1e-9)

	// An off-centre principal point keeps the total angle from edge to edge.
	rec := scenarioRecord()
	rec.Cx = 1000
	info = BuildCameraInfo(rec, 1920, 1080)
	h, _, err = info.FieldOfView()
	require.NoError(t, err)
	assert.InDelta(t, (math.Atan(0.92)+math.Atan(1.0))*180/math.Pi, h, 1e-9)
}

func TestFieldOfViewSingular(t *testing.T) {
	rec := scenarioRecord()
	rec.Fx = 0
	_, _, err := BuildCameraInfo(rec, 1920, 1080).FieldOfView()
	assert.True(t, errors.Is(err, ErrSingularIntrinsics))
}

func TestRaySingular(t *testing.T) {
	info := BuildCameraInfo(eeprom.Record{}, 1920, 1080)
	_, _, err := info.Ray(10, 10)
	if !errors.Is(err, ErrSingularIntrinsics) {
		t.Fatalf("error = %v, want ErrSingularIntrinsics", err)
	}
}

func TestIntrinsicsDoesNotAlias(t *testing.T) {
	info := BuildCameraInfo(scenarioRecord(), 1920, 1080)
	k := info.Intrinsics()
	k.Set(0, 0, math.Pi)
	assert.Equal(t, 1000.0, info.K[0])
}
