// Package eeprom decodes the calibration record stored on each CLPE camera's
// EEPROM.
package eeprom

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
)

/*
CLPE EEPROM Calibration Record

The record is a packed little-endian blob with no padding between fields. The
vendor documentation gives 95 bytes; the reference sheet shipped with the
cameras gives 107, which is what the hardware actually stores.

RECORD LAYOUT (107 bytes total):
├── Signature code        offset   0, 2 bytes (uint16)
├── Format version        offset   2, 8 bytes (uint64)
├── Calibration model     offset  10, 4 bytes (uint32: 0 = Jhang, 1 = FishEye)
├── fx, fy, cx, cy        offset  14, 4 × float32
├── k1, k2, k3, k4        offset  30, 4 × float32
├── RMS                   offset  46, float32
├── FOV                   offset  50, float32
├── Calibration temp.     offset  54, float32
├── Reserved              offset  58, 20 bytes
├── p1, p2                offset  78, 2 × float32
├── Reserved              offset  86, 8 bytes
├── Checksum              offset  94, 2 bytes (uint16, not validated)
└── Production date       offset  96, 11 bytes (ASCII, NUL padded)
*/
const (
	SIGNATURE_SIZE       = 2
	VERSION_SIZE         = 8
	MODEL_SIZE           = 4
	FLOAT_SIZE           = 4
	RESERVED1_SIZE       = 20
	RESERVED2_SIZE       = 8
	CHECKSUM_SIZE        = 2
	PRODUCTION_DATE_SIZE = 11

	OFFSET_SIGNATURE       = 0
	OFFSET_VERSION         = OFFSET_SIGNATURE + SIGNATURE_SIZE
	OFFSET_MODEL           = OFFSET_VERSION + VERSION_SIZE
	OFFSET_INTRINSICS      = OFFSET_MODEL + MODEL_SIZE        // fx, fy, cx, cy
	OFFSET_RADIAL          = OFFSET_INTRINSICS + 4*FLOAT_SIZE // k1..k4
	OFFSET_RMS             = OFFSET_RADIAL + 4*FLOAT_SIZE
	OFFSET_FOV             = OFFSET_RMS + FLOAT_SIZE
	OFFSET_TEMPERATURE     = OFFSET_FOV + FLOAT_SIZE
	OFFSET_RESERVED1       = OFFSET_TEMPERATURE + FLOAT_SIZE
	OFFSET_TANGENTIAL      = OFFSET_RESERVED1 + RESERVED1_SIZE // p1, p2
	OFFSET_RESERVED2       = OFFSET_TANGENTIAL + 2*FLOAT_SIZE
	OFFSET_CHECKSUM        = OFFSET_RESERVED2 + RESERVED2_SIZE
	OFFSET_PRODUCTION_DATE = OFFSET_CHECKSUM + CHECKSUM_SIZE

	// RecordSize is the exact number of bytes the hardware stores (107).
	RecordSize = OFFSET_PRODUCTION_DATE + PRODUCTION_DATE_SIZE
)

var (
	// ErrTruncatedInput is returned when the input is shorter than RecordSize.
	ErrTruncatedInput = errors.New("truncated eeprom record")
	// ErrUnknownCalibrationModel is returned when the model field is not one
	// of the known CalibrationModel values.
	ErrUnknownCalibrationModel = errors.New("unknown calibration model")
)

// DecodeError describes why a record could not be decoded. Kind is one of
// ErrTruncatedInput or ErrUnknownCalibrationModel.
type DecodeError struct {
	Kind   error
	Detail string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("eeprom: %v: %s", e.Kind, e.Detail)
}

func (e *DecodeError) Unwrap() error { return e.Kind }

// CalibrationModel identifies the lens model the factory calibration was
// fitted with.
type CalibrationModel uint32

const (
	ModelJhang   CalibrationModel = 0
	ModelFishEye CalibrationModel = 1
)

// Valid reports whether m is one of the known models.
func (m CalibrationModel) Valid() bool {
	return m == ModelJhang || m == ModelFishEye
}

func (m CalibrationModel) String() string {
	switch m {
	case ModelJhang:
		return "jhang"
	case ModelFishEye:
		return "fisheye"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(m))
	}
}

// Record is the decoded EEPROM calibration record of a single camera.
type Record struct {
	SignatureCode uint16
	Version       uint64
	Model         CalibrationModel

	// Intrinsics in pixels
	Fx, Fy float32
	Cx, Cy float32

	// Radial distortion
	K1, K2, K3, K4 float32

	RMS                    float32 // reprojection error of the factory calibration
	FOV                    float32 // degrees
	CalibrationTemperature float32 // degrees Celsius

	Reserved1 [RESERVED1_SIZE]byte

	// Tangential distortion
	P1, P2 float32

	Reserved2 [RESERVED2_SIZE]byte

	// Checksum is carried through as read. Nothing validates it: the algorithm
	// is undocumented by the vendor.
	Checksum       uint16
	ProductionDate [PRODUCTION_DATE_SIZE]byte
}

// ProductionDateString returns the production date with NUL and space
// padding removed.
func (r Record) ProductionDateString() string {
	return strings.TrimRight(string(r.ProductionDate[:]), "\x00 ")
}

// reader walks a fixed-size buffer field by field. Callers must check the
// buffer length before constructing one.
type reader struct {
	buf []byte
	off int
}

func (r *reader) uint16() uint16 {
	v := binary.LittleEndian.Uint16(r.buf[r.off : r.off+2])
	r.off += 2
	return v
}

func (r *reader) uint32() uint32 {
	v := binary.LittleEndian.Uint32(r.buf[r.off : r.off+4])
	r.off += 4
	return v
}

func (r *reader) uint64() uint64 {
	v := binary.LittleEndian.Uint64(r.buf[r.off : r.off+8])
	r.off += 8
	return v
}

func (r *reader) float32() float32 {
	return math.Float32frombits(r.uint32())
}

func (r *reader) bytes(dst []byte) {
	r.off += copy(dst, r.buf[r.off:r.off+len(dst)])
}

// Decode parses a raw EEPROM image into a Record. Only the first RecordSize
// bytes are read; trailing bytes are ignored.
func Decode(data []byte) (Record, error) {
	var rec Record
	if len(data) < RecordSize {
		return rec, &DecodeError{
			Kind:   ErrTruncatedInput,
			Detail: fmt.Sprintf("need %d bytes, have %d", RecordSize, len(data)),
		}
	}

	r := &reader{buf: data[:RecordSize]}
	rec.SignatureCode = r.uint16()
	rec.Version = r.uint64()
	rec.Model = CalibrationModel(r.uint32())
	if !rec.Model.Valid() {
		return Record{}, &DecodeError{
			Kind:   ErrUnknownCalibrationModel,
			Detail: fmt.Sprintf("model field is %d", uint32(rec.Model)),
		}
	}

	rec.Fx = r.float32()
	rec.Fy = r.float32()
	rec.Cx = r.float32()
	rec.Cy = r.float32()
	rec.K1 = r.float32()
	rec.K2 = r.float32()
	rec.K3 = r.float32()
	rec.K4 = r.float32()
	rec.RMS = r.float32()
	rec.FOV = r.float32()
	rec.CalibrationTemperature = r.float32()
	r.bytes(rec.Reserved1[:])
	rec.P1 = r.float32()
	rec.P2 = r.float32()
	r.bytes(rec.Reserved2[:])
	rec.Checksum = r.uint16()
	r.bytes(rec.ProductionDate[:])

	return rec, nil
}
