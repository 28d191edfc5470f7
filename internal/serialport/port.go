// Package serialport abstracts the serial links to the OBD-II dongle and the
// inertial unit so the protocol code can be tested without hardware.
package serialport

import (
	"io"
	"time"
)

// Port defines the minimal interface needed for a serial port.
type Port interface {
	io.ReadWriter
	io.Closer
}

// TimeoutPort extends Port with a read timeout. With a timeout set, a Read
// that sees no data returns (0, nil) once the timeout elapses.
type TimeoutPort interface {
	Port
	// SetReadTimeout sets the read timeout for the serial port.
	SetReadTimeout(timeout time.Duration) error
}

// Factory opens serial ports.
type Factory interface {
	// Open opens the serial port at path with the given options.
	Open(path string, opts PortOptions) (Port, error)
}

// OpenerFunc adapts a function to the Factory interface.
type OpenerFunc func(path string, opts PortOptions) (Port, error)

// Open calls f.
func (f OpenerFunc) Open(path string, opts PortOptions) (Port, error) {
	return f(path, opts)
}
