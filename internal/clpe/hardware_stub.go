//go:build !(clpe && cgo)

package clpe

// HardwareAvailable reports whether this binary was built with the vendor
// binding. Build with -tags clpe and cgo enabled to include it.
const HardwareAvailable = false

// NewHardwareClient always fails in builds without the vendor binding.
func NewHardwareClient(opts ...Option) (ClientInterface, error) {
	return nil, ErrHardwareUnavailable
}
