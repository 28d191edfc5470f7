package serialport

import (
	"fmt"

	"go.bug.st/serial"
)

// RealFactory opens hardware serial ports with go.bug.st/serial.
type RealFactory struct{}

// Open opens path, applies the line settings and the read timeout.
func (RealFactory) Open(path string, opts PortOptions) (Port, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if opts.ReadTimeout > 0 {
		if err := port.SetReadTimeout(opts.ReadTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("set read timeout on %s: %w", path, err)
		}
	}

	return port, nil
}
