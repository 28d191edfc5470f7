package serialport

import (
	"bytes"
	"errors"
	"sync"
	"time"
)

// ErrPortClosed is returned by TestablePort after Close.
var ErrPortClosed = errors.New("serial port closed")

// TestablePort implements TimeoutPort with configurable behaviour for testing.
// It provides fine-grained control over reads, writes, errors and scripted
// replies.
type TestablePort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer

	// WriteBuffer captures data written to the port
	WriteBuffer *bytes.Buffer

	// Respond, if set, is called with every successful Write; whatever it
	// returns is queued for subsequent reads. It models a device answering
	// commands.
	Respond func(written []byte) []byte

	// ReadError is returned by the next Read call if set
	ReadError error

	// WriteError is returned by the next Write call if set
	WriteError error

	// CloseError is returned by Close if set
	CloseError error

	// Closed indicates whether Close was called
	Closed bool

	// ReadCalls records the number of Read calls
	ReadCalls int

	// WriteCalls records the number of Write calls
	WriteCalls int

	// ReadTimeout is the current read timeout
	ReadTimeout time.Duration

	// TimeoutOnEmpty makes Read on an empty buffer return (0, nil), the way
	// a real port with a read timeout behaves. Otherwise it returns io.EOF.
	TimeoutOnEmpty bool

	// BlockReads causes Read to block until data is added or Close is called
	BlockReads bool

	readCond *sync.Cond
}

// NewTestablePort creates a new TestablePort for testing.
func NewTestablePort() *TestablePort {
	p := &TestablePort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
	}
	p.readCond = sync.NewCond(&p.mu)
	return p
}

// Read reads from the read buffer, optionally simulating errors.
func (p *TestablePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ReadCalls++

	if p.Closed {
		return 0, ErrPortClosed
	}

	if p.ReadError != nil {
		err := p.ReadError
		p.ReadError = nil
		return 0, err
	}

	if p.BlockReads && p.ReadBuffer.Len() == 0 {
		for !p.Closed && p.ReadBuffer.Len() == 0 {
			p.readCond.Wait()
		}
		if p.Closed {
			return 0, ErrPortClosed
		}
	}

	if p.TimeoutOnEmpty && p.ReadBuffer.Len() == 0 {
		return 0, nil
	}

	return p.ReadBuffer.Read(b)
}

// Write writes to the write buffer, optionally simulating errors and
// queueing a scripted reply.
func (p *TestablePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.WriteCalls++

	if p.Closed {
		return 0, ErrPortClosed
	}

	if p.WriteError != nil {
		err := p.WriteError
		p.WriteError = nil
		return 0, err
	}

	n, err := p.WriteBuffer.Write(b)
	if err != nil {
		return n, err
	}

	if p.Respond != nil {
		if reply := p.Respond(append([]byte(nil), b...)); len(reply) > 0 {
			p.ReadBuffer.Write(reply)
			p.readCond.Signal()
		}
	}
	return n, nil
}

// Close marks the port as closed.
func (p *TestablePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Closed = true
	p.readCond.Broadcast()

	return p.CloseError
}

// SetReadTimeout implements TimeoutPort.
func (p *TestablePort) SetReadTimeout(timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ReadTimeout = timeout
	return nil
}

// AddReadData adds data to be returned by subsequent Read calls.
func (p *TestablePort) AddReadData(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ReadBuffer.Write(data)
	p.readCond.Signal()
}

// GetWrittenData returns a copy of all data written to the port.
func (p *TestablePort) GetWrittenData() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]byte(nil), p.WriteBuffer.Bytes()...)
}

// IsClosed reports whether Close was called.
func (p *TestablePort) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Closed
}

// MockFactory implements Factory for testing.
type MockFactory struct {
	mu sync.Mutex

	// Ports are returned by successive Open calls. When exhausted, the last
	// one is returned again.
	Ports []Port

	// Errors[i], when non-nil, makes the i-th Open call fail.
	Errors []error

	// OpenCalls records all Open calls
	OpenCalls []MockOpenCall

	handed int
}

// MockOpenCall records details of an Open call.
type MockOpenCall struct {
	Path string
	Opts PortOptions
}

// NewMockFactory creates a MockFactory handing out ports in order.
func NewMockFactory(ports ...Port) *MockFactory {
	return &MockFactory{Ports: ports}
}

// Open returns the next configured error or port.
func (f *MockFactory) Open(path string, opts PortOptions) (Port, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	call := len(f.OpenCalls)
	f.OpenCalls = append(f.OpenCalls, MockOpenCall{Path: path, Opts: opts})

	if call < len(f.Errors) && f.Errors[call] != nil {
		return nil, f.Errors[call]
	}

	if len(f.Ports) == 0 {
		return nil, errors.New("mock factory: no ports configured")
	}
	idx := f.handed
	f.handed++
	if idx >= len(f.Ports) {
		idx = len(f.Ports) - 1
	}
	return f.Ports[idx], nil
}

// Calls returns the number of Open calls.
func (f *MockFactory) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.OpenCalls)
}

// LastCall returns the most recent Open call, or nil if none.
func (f *MockFactory) LastCall() *MockOpenCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.OpenCalls) == 0 {
		return nil
	}
	c := f.OpenCalls[len(f.OpenCalls)-1]
	return &c
}
