package serialport

import (
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
)

// DefaultBaudRate is used by both the OBD-II dongle and the inertial unit.
const DefaultBaudRate = 115200

var baudRates = []int{1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200, 230400}

var parities = map[string]serial.Parity{
	"N": serial.NoParity, "NONE": serial.NoParity,
	"E": serial.EvenParity, "EVEN": serial.EvenParity,
	"O": serial.OddParity, "ODD": serial.OddParity,
}

// PortOptions are the line settings of a sensor port. Zero fields mean
// 115200 8N1. Flow control is always off.
type PortOptions struct {
	BaudRate    int
	DataBits    int
	StopBits    int
	Parity      string
	ReadTimeout time.Duration
}

// DefaultOptions returns 115200 8N1 with the given read timeout.
func DefaultOptions(readTimeout time.Duration) PortOptions {
	return PortOptions{BaudRate: DefaultBaudRate, DataBits: 8, StopBits: 1, Parity: "N", ReadTimeout: readTimeout}
}

// SerialMode validates the options and converts them for serial.Open.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	mode := &serial.Mode{BaudRate: o.BaudRate, DataBits: o.DataBits, StopBits: serial.OneStopBit}
	if mode.BaudRate == 0 {
		mode.BaudRate = DefaultBaudRate
	}
	if !validBaud(mode.BaudRate) {
		return nil, fmt.Errorf("unsupported baud rate %d", mode.BaudRate)
	}
	if mode.DataBits == 0 {
		mode.DataBits = 8
	}
	if mode.DataBits < 5 || mode.DataBits > 8 {
		return nil, fmt.Errorf("invalid data bits %d", mode.DataBits)
	}
	switch o.StopBits {
	case 0, 1:
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("invalid stop bits %d", o.StopBits)
	}
	p := strings.ToUpper(strings.TrimSpace(o.Parity))
	if p == "" {
		p = "N"
	}
	parity, ok := parities[p]
	if !ok {
		return nil, fmt.Errorf("unsupported parity %q", o.Parity)
	}
	mode.Parity = parity
	if o.ReadTimeout < 0 {
		return nil, fmt.Errorf("invalid read timeout %v", o.ReadTimeout)
	}
	return mode, nil
}

func validBaud(b int) bool {
	for _, r := range baudRates {
		if r == b {
			return true
		}
	}
	return false
}
