// Package transport connects the exchange driver to a chain over a serial
// link. The adapter on the other end forwards raw telegram bytes to the
// first node and returns whatever the chain clocks back.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.bug.st/serial"

	"osp-go-host/internal/osp"
)

// ErrShortRead is returned when a response stops before the expected size.
var ErrShortRead = errors.New("transport: short read")

// Port is the subset of serial.Port the transport needs.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	SetRTS(rts bool) error
	ResetInputBuffer() error
}

// Serial implements osp.Transport over a serial port. The RTS line selects
// the chain direction: asserted for loop, released for bidirectional.
type Serial struct {
	mu      sync.Mutex
	port    Port
	name    string
	timeout time.Duration
	logger  *slog.Logger
}

// OpenSerial opens portName at baud (8N1). timeout bounds the wait for a
// response; a context deadline shortens it.
func OpenSerial(portName string, baud int, timeout time.Duration, logger *slog.Logger) (*Serial, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", portName, err)
	}
	s := NewSerial(port, timeout, logger)
	s.name = portName
	return s, nil
}

// NewSerial wraps an already open port.
func NewSerial(port Port, timeout time.Duration, logger *slog.Logger) *Serial {
	if timeout <= 0 {
		timeout = 50 * time.Millisecond
	}
	return &Serial{
		port:    port,
		timeout: timeout,
		logger:  logger.With("component", "serial"),
	}
}

// SetDirection implements osp.Transport.
func (s *Serial) SetDirection(d osp.Direction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.port.SetRTS(d == osp.DirLoop); err != nil {
		return fmt.Errorf("serial: set rts: %w", err)
	}
	s.logger.Debug("direction selected", "dir", d.String())
	return nil
}

// Transmit implements osp.Transport.
func (s *Serial) Transmit(ctx context.Context, tx []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(tx)
}

// TransmitReceive implements osp.Transport. No byte before the deadline is
// osp.ErrNoClock; fewer than n bytes is ErrShortRead.
func (s *Serial) TransmitReceive(ctx context.Context, tx []byte, n int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.port.ResetInputBuffer(); err != nil {
		return nil, fmt.Errorf("serial: flush: %w", err)
	}
	if err := s.write(tx); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	rx := make([]byte, n)
	got := 0
	for got < n {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		remain := time.Until(deadline)
		if remain <= 0 {
			break
		}
		if err := s.port.SetReadTimeout(remain); err != nil {
			return nil, fmt.Errorf("serial: set timeout: %w", err)
		}
		m, err := s.port.Read(rx[got:])
		if err != nil {
			return nil, fmt.Errorf("serial: read: %w", err)
		}
		if m == 0 {
			break // timeout
		}
		got += m
	}

	switch {
	case got == 0:
		return nil, osp.ErrNoClock
	case got < n:
		s.logger.Debug("short response", "want", n, "got", got, "rx", fmt.Sprintf("%X", rx[:got]))
		return rx[:got], fmt.Errorf("%w: %d of %d bytes", ErrShortRead, got, n)
	}
	return rx, nil
}

func (s *Serial) write(tx []byte) error {
	if _, err := s.port.Write(tx); err != nil {
		return fmt.Errorf("serial: write: %w", err)
	}
	return nil
}

// Close releases the port.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port.Close()
}

// Name returns the device path, empty for wrapped ports.
func (s *Serial) Name() string { return s.name }
