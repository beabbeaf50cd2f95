package telegram

import (
	"errors"
	"fmt"
)

// ErrInvalid matches every error raised from input inspection, before any
// bytes reach the bus.
var ErrInvalid = errors.New("invalid request")

var (
	ErrArgument = fmt.Errorf("%w: argument out of range", ErrInvalid)
	ErrAddress  = fmt.Errorf("%w: illegal address", ErrInvalid)
	ErrNilFrame = fmt.Errorf("%w: nil frame", ErrInvalid)
)

// ErrFrame matches every validation failure of received bytes.
var ErrFrame = errors.New("malformed telegram")

var (
	ErrSize     = fmt.Errorf("%w: size mismatch", ErrFrame)
	ErrPreamble = fmt.Errorf("%w: preamble mismatch", ErrFrame)
	ErrPSI      = fmt.Errorf("%w: payload size indicator mismatch", ErrFrame)
	ErrTID      = fmt.Errorf("%w: telegram id mismatch", ErrFrame)
	ErrCRC      = fmt.Errorf("%w: checksum mismatch", ErrFrame)
)
