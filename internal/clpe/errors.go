package clpe

import (
	"errors"
	"fmt"
)

// Sentinels matched by *SDKError through errors.Is, one per domain.
var (
	ErrConnection  = errors.New("clpe connection error")
	ErrStreamStart = errors.New("clpe stream error")
	ErrEepromRead  = errors.New("clpe eeprom read error")
	ErrFrameRead   = errors.New("clpe frame read error")
)

var (
	ErrFrameRateOutOfRange  = fmt.Errorf("frame rate must be between %d and %d", MIN_FRAME_RATE, MAX_FRAME_RATE)
	ErrInvalidState         = errors.New("operation not valid in current connection state")
	ErrFailed               = errors.New("connection has failed; create a new client to retry")
	ErrInvalidCamera        = errors.New("invalid camera id")
	ErrFrameRateUnsupported = errors.New("sdk does not support changing the frame rate while streaming")
	ErrNilCallback          = errors.New("stream callback is nil")
	ErrHardwareUnavailable  = errors.New("built without the CLPE vendor binding; rebuild with -tags clpe or use -dev")
)

// Domain tags which SDK surface produced an error.
type Domain int

const (
	DomainConnection Domain = iota
	DomainEeprom
	DomainFrame
	DomainStream
)

func (d Domain) String() string {
	switch d {
	case DomainConnection:
		return "connection"
	case DomainEeprom:
		return "eeprom"
	case DomainFrame:
		return "frame"
	case DomainStream:
		return "stream"
	}
	return fmt.Sprintf("domain(%d)", int(d))
}

// SDKError carries a non-zero vendor return code and the SDK operation that
// produced it.
type SDKError struct {
	Domain Domain
	Op     string
	Code   int
}

func (e *SDKError) Error() string {
	return fmt.Sprintf("clpe %s error: %s returned %d", e.Domain, e.Op, e.Code)
}

// Is matches the domain sentinel, so callers can test
// errors.Is(err, ErrEepromRead) without unpacking the code.
func (e *SDKError) Is(target error) bool {
	switch target {
	case ErrConnection:
		return e.Domain == DomainConnection
	case ErrStreamStart:
		return e.Domain == DomainStream
	case ErrEepromRead:
		return e.Domain == DomainEeprom
	case ErrFrameRead:
		return e.Domain == DomainFrame
	}
	return false
}

func sdkError(d Domain, op string, code int) error {
	if code == 0 {
		return nil
	}
	return &SDKError{Domain: d, Op: op, Code: code}
}
