package chain

import "errors"

var (
	// ErrCabling: the chain clocks back in neither loop nor bidir direction.
	ErrCabling = errors.New("chain: no response in loop or bidir direction, check cabling")

	ErrWrongDevice = errors.New("chain: node is not a SAID")
	ErrNoI2CBridge = errors.New("chain: I2C bridge not enabled in OTP")
	ErrI2CTimeout  = errors.New("chain: I2C transaction still busy")
	ErrI2CNack     = errors.New("chain: I2C transaction not acknowledged")
)

// ErrNotDiscovered is returned by operations that need a discovered chain.
var ErrNotDiscovered = errors.New("chain: not discovered, run reset/init first")
