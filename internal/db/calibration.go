package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/banshee-data/clpe-bridge/internal/eeprom"
)

// ErrNoCalibration is returned when no read has been stored for a camera.
var ErrNoCalibration = errors.New("no calibration recorded")

// CalibrationRead is one stored EEPROM read.
type CalibrationRead struct {
	ReadID    int64         `json:"read_id"`
	SessionID string        `json:"session_id"`
	CameraID  int           `json:"camera_id"`
	ReadAt    time.Time     `json:"read_at"`
	Record    eeprom.Record `json:"record"`
}

// Raw returns the record re-encoded in EEPROM layout.
func (c CalibrationRead) Raw() []byte {
	return eeprom.Encode(c.Record)
}

// RecordCalibration stores rec as read from cameraID at readAt. The decoded
// fields are kept as columns for querying through tailsql; the raw blob is
// the source of truth when the row is loaded back.
func (db *DB) RecordCalibration(sessionID string, cameraID int, rec eeprom.Record, readAt time.Time) (int64, error) {
	res, err := db.Exec(`
		INSERT INTO calibration_reads (
			session_id, camera_id, read_at_ns,
			signature_code, version, model,
			fx, fy, cx, cy, k1, k2, k3, k4, p1, p2,
			rms, fov, calibration_temperature,
			checksum, production_date, raw
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, cameraID, readAt.UnixNano(),
		int(rec.SignatureCode), strconv.FormatUint(rec.Version, 10), int(rec.Model),
		f64(rec.Fx), f64(rec.Fy), f64(rec.Cx), f64(rec.Cy),
		f64(rec.K1), f64(rec.K2), f64(rec.K3), f64(rec.K4), f64(rec.P1), f64(rec.P2),
		f64(rec.RMS), f64(rec.FOV), f64(rec.CalibrationTemperature),
		int(rec.Checksum), rec.ProductionDateString(), eeprom.Encode(rec),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to record calibration for camera %d: %w", cameraID, err)
	}
	return res.LastInsertId()
}

func f64(v float32) float64 { return float64(v) }

const selectCalibrationReads = `
	SELECT read_id, session_id, camera_id, read_at_ns, raw
	FROM calibration_reads
	WHERE camera_id = ?
	ORDER BY read_at_ns DESC, read_id DESC`

// LatestCalibration returns the most recent stored read of cameraID, or
// ErrNoCalibration.
func (db *DB) LatestCalibration(cameraID int) (CalibrationRead, error) {
	row := db.QueryRow(selectCalibrationReads+" LIMIT 1", cameraID)
	read, err := scanCalibrationRead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return CalibrationRead{}, fmt.Errorf("camera %d: %w", cameraID, ErrNoCalibration)
	}
	return read, err
}

// CalibrationHistory returns up to limit reads of cameraID, newest first.
// A non-positive limit returns every read.
func (db *DB) CalibrationHistory(cameraID, limit int) ([]CalibrationRead, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(selectCalibrationReads+" LIMIT ?", cameraID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query calibration history: %w", err)
	}
	defer rows.Close()

	var out []CalibrationRead
	for rows.Next() {
		read, err := scanCalibrationRead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, read)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCalibrationRead(s rowScanner) (CalibrationRead, error) {
	var (
		read   CalibrationRead
		readAt int64
		raw    []byte
	)
	if err := s.Scan(&read.ReadID, &read.SessionID, &read.CameraID, &readAt, &raw); err != nil {
		return CalibrationRead{}, err
	}
	rec, err := eeprom.Decode(raw)
	if err != nil {
		return CalibrationRead{}, fmt.Errorf("stored read %d: %w", read.ReadID, err)
	}
	read.ReadAt = time.Unix(0, readAt).UTC()
	read.Record = rec
	return read, nil
}
