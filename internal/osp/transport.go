// Package osp drives telegram exchanges with the nodes of an OSP chain.
//
// A Client encodes one request with the telegram package, hands the bytes to
// a Transport and decodes the response, if the command defines one. Every
// call is recorded as an Exchange and handed to registered observers.
package osp

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoClock is returned by a Transport when the chain does not clock back:
// no node answered, or the wiring does not match the selected direction.
var ErrNoClock = errors.New("osp: no clock from chain")

// Direction selects how the host terminates the chain.
type Direction uint8

const (
	// DirLoop: the last node's SIO2 is wired back to the host receiver.
	DirLoop Direction = iota
	// DirBidir: responses travel back along the chain to the first node.
	DirBidir
)

func (d Direction) String() string {
	switch d {
	case DirLoop:
		return "loop"
	case DirBidir:
		return "bidir"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

// ParseDirection accepts "loop" and "bidir".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "loop":
		return DirLoop, nil
	case "bidir":
		return DirBidir, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

// Transport moves raw telegram bytes to and from the chain.
type Transport interface {
	// Transmit sends tx and expects no answer.
	Transmit(ctx context.Context, tx []byte) error
	// TransmitReceive sends tx and returns exactly n response bytes.
	// It returns ErrNoClock when nothing comes back.
	TransmitReceive(ctx context.Context, tx []byte, n int) ([]byte, error)
	// SetDirection selects loop or bidirectional termination.
	SetDirection(d Direction) error
}
