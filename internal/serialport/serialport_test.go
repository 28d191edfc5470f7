package serialport

import (
	"errors"
	"io"
	"testing"
	"time"

	"go.bug.st/serial"
)

func TestPortOptions_SerialMode(t *testing.T) {
	tests := []struct {
		name string
		opts PortOptions
		want serial.Mode
	}{
		{"zero is 115200 8N1", PortOptions{}, serial.Mode{BaudRate: 115200, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit}},
		{"defaults", DefaultOptions(3100 * time.Millisecond), serial.Mode{BaudRate: 115200, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit}},
		{"7E2", PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: " even "}, serial.Mode{BaudRate: 9600, DataBits: 7, Parity: serial.EvenParity, StopBits: serial.TwoStopBits}},
		{"odd", PortOptions{Parity: "o"}, serial.Mode{BaudRate: 115200, DataBits: 8, Parity: serial.OddParity, StopBits: serial.OneStopBit}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mode, err := tc.opts.SerialMode()
			if err != nil {
				t.Fatalf("SerialMode() error = %v", err)
			}
			if *mode != tc.want {
				t.Errorf("SerialMode() = %+v, want %+v", *mode, tc.want)
			}
		})
	}
}

func TestPortOptions_SerialModeInvalid(t *testing.T) {
	tests := []struct {
		name string
		opts PortOptions
	}{
		{"baud", PortOptions{BaudRate: 12345}},
		{"data bits", PortOptions{DataBits: 9}},
		{"stop bits", PortOptions{StopBits: 3}},
		{"parity", PortOptions{Parity: "X"}},
		{"timeout", PortOptions{ReadTimeout: -time.Second}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.opts.SerialMode(); err == nil {
				t.Errorf("SerialMode(%+v) expected error", tc.opts)
			}
		})
	}
}

func TestRealFactory_InvalidOptions(t *testing.T) {
	if _, err := (RealFactory{}).Open("/dev/null", PortOptions{Parity: "X"}); err == nil {
		t.Error("expected error for invalid parity")
	}
}

func TestTestablePort_Respond(t *testing.T) {
	p := NewTestablePort()
	p.Respond = func(b []byte) []byte {
		if string(b) == "atz\n" {
			return []byte("ELM327 v1.5\r\r>")
		}
		return nil
	}

	if _, err := p.Write([]byte("atz\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	buf := make([]byte, 64)
	n, err := p.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "ELM327 v1.5\r\r>" {
		t.Errorf("Read = %q", buf[:n])
	}
	if string(p.GetWrittenData()) != "atz\n" {
		t.Errorf("written = %q", p.GetWrittenData())
	}
}

func TestTestablePort_EmptyReads(t *testing.T) {
	p := NewTestablePort()
	buf := make([]byte, 8)
	if _, err := p.Read(buf); err != io.EOF {
		t.Errorf("empty Read = %v, want io.EOF", err)
	}

	p.TimeoutOnEmpty = true
	n, err := p.Read(buf)
	if n != 0 || err != nil {
		t.Errorf("empty Read with timeout = %d, %v, want 0, nil", n, err)
	}
}

func TestTestablePort_Errors(t *testing.T) {
	p := NewTestablePort()
	boom := errors.New("boom")
	p.WriteError = boom
	if _, err := p.Write([]byte("x")); !errors.Is(err, boom) {
		t.Errorf("Write = %v, want boom", err)
	}
	if _, err := p.Write([]byte("x")); err != nil {
		t.Errorf("WriteError should be one-shot, got %v", err)
	}

	p.ReadError = boom
	if _, err := p.Read(make([]byte, 1)); !errors.Is(err, boom) {
		t.Errorf("Read = %v, want boom", err)
	}

	if err := p.SetReadTimeout(time.Second); err != nil || p.ReadTimeout != time.Second {
		t.Errorf("SetReadTimeout = %v, timeout %v", err, p.ReadTimeout)
	}

	_ = p.Close()
	if !p.IsClosed() {
		t.Error("IsClosed() = false after Close")
	}
	if _, err := p.Write([]byte("x")); !errors.Is(err, ErrPortClosed) {
		t.Errorf("Write after Close = %v", err)
	}
}

func TestTestablePort_BlockReadsUnblocksOnData(t *testing.T) {
	p := NewTestablePort()
	p.BlockReads = true

	got := make(chan string, 1)
	go func() {
		buf := make([]byte, 8)
		n, _ := p.Read(buf)
		got <- string(buf[:n])
	}()

	time.Sleep(10 * time.Millisecond)
	p.AddReadData([]byte("A"))

	select {
	case s := <-got:
		if s != "A" {
			t.Errorf("Read = %q, want A", s)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked read did not wake up")
	}
}

func TestMockFactory_Sequence(t *testing.T) {
	p1, p2 := NewTestablePort(), NewTestablePort()
	f := NewMockFactory(p1, p2)
	f.Errors = []error{errors.New("busy"), nil}

	if _, err := f.Open("/dev/ttyUSB0", DefaultOptions(0)); err == nil {
		t.Error("first Open should fail")
	}
	if port, err := f.Open("/dev/ttyUSB0", DefaultOptions(0)); err != nil || port != Port(p1) {
		t.Errorf("second Open = %v, %v, want p1", port, err)
	}
	if port, _ := f.Open("/dev/ttyUSB0", DefaultOptions(0)); port != Port(p2) {
		t.Errorf("third Open should return p2")
	}
	if port, _ := f.Open("/dev/ttyUSB0", DefaultOptions(0)); port != Port(p2) {
		t.Errorf("exhausted factory should keep returning the last port")
	}
	if f.Calls() != 4 || f.LastCall().Path != "/dev/ttyUSB0" {
		t.Errorf("Calls() = %d, LastCall = %+v", f.Calls(), f.LastCall())
	}
}

func TestOpenerFunc(t *testing.T) {
	p := NewTestablePort()
	var f Factory = OpenerFunc(func(path string, opts PortOptions) (Port, error) {
		return p, nil
	})
	got, err := f.Open("x", PortOptions{})
	if err != nil || got != Port(p) {
		t.Errorf("OpenerFunc.Open = %v, %v", got, err)
	}
}
