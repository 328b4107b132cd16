package eeprom

import (
	"encoding/binary"
	"math"
)

// writer is the mirror of reader used by Encode.
type writer struct {
	buf []byte
	off int
}

func (w *writer) uint16(v uint16) {
	binary.LittleEndian.PutUint16(w.buf[w.off:w.off+2], v)
	w.off += 2
}

func (w *writer) uint32(v uint32) {
	binary.LittleEndian.PutUint32(w.buf[w.off:w.off+4], v)
	w.off += 4
}

func (w *writer) uint64(v uint64) {
	binary.LittleEndian.PutUint64(w.buf[w.off:w.off+8], v)
	w.off += 8
}

func (w *writer) float32(v float32) {
	w.uint32(math.Float32bits(v))
}

func (w *writer) bytes(src []byte) {
	w.off += copy(w.buf[w.off:w.off+len(src)], src)
}

// Encode serialises rec into the RecordSize-byte EEPROM layout. The model
// field is written as-is, so records with an unknown model can be produced for
// testing decoders.
func Encode(rec Record) []byte {
	w := &writer{buf: make([]byte, RecordSize)}
	w.uint16(rec.SignatureCode)
	w.uint64(rec.Version)
	w.uint32(uint32(rec.Model))
	w.float32(rec.Fx)
	w.float32(rec.Fy)
	w.float32(rec.Cx)
	w.float32(rec.Cy)
	w.float32(rec.K1)
	w.float32(rec.K2)
	w.float32(rec.K3)
	w.float32(rec.K4)
	w.float32(rec.RMS)
	w.float32(rec.FOV)
	w.float32(rec.CalibrationTemperature)
	w.bytes(rec.Reserved1[:])
	w.float32(rec.P1)
	w.float32(rec.P2)
	w.bytes(rec.Reserved2[:])
	w.uint16(rec.Checksum)
	w.bytes(rec.ProductionDate[:])
	return w.buf
}

// SetProductionDate copies s into the fixed production date field,
// truncating or NUL padding as needed.
func (r *Record) SetProductionDate(s string) {
	r.ProductionDate = [PRODUCTION_DATE_SIZE]byte{}
	copy(r.ProductionDate[:], s)
}
