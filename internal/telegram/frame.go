package telegram

import "fmt"

const (
	MaxPayload = 8
	MinSize    = 4
	MaxSize    = MaxPayload + MinSize

	preamble = 0xA
)

// Frame is one telegram: 3 header bytes, 0..8 payload bytes and a checksum.
type Frame struct {
	Data [MaxSize]byte
	Size int
}

// FromBytes copies b into a Frame without validating its content.
func FromBytes(b []byte) (*Frame, error) {
	if len(b) < MinSize || len(b) > MaxSize {
		return nil, fmt.Errorf("%d bytes: %w", len(b), ErrSize)
	}
	f := &Frame{Size: len(b)}
	copy(f.Data[:], b)
	return f, nil
}

// Bytes returns the wire bytes of f.
func (f *Frame) Bytes() []byte { return f.Data[:f.Size] }

// Addr is the destination (request) or originating/last (response) address.
func (f *Frame) Addr() Address {
	return Address(slice8(f.Data[0], 0, 4))<<6 | Address(slice8(f.Data[1], 2, 8))
}

// PSI returns the 3-bit payload size indicator.
func (f *Frame) PSI() uint8 {
	return slice8(f.Data[1], 0, 2)<<1 | bit(f.Data[2], 7)
}

// TID returns the 7-bit telegram id.
func (f *Frame) TID() uint8 { return slice8(f.Data[2], 0, 7) }

// Payload returns the bytes between header and checksum.
func (f *Frame) Payload() []byte { return f.Data[3 : f.Size-1] }

// String renders the frame as space separated hex, e.g. "A0 09 02 00 50 6D".
func (f *Frame) String() string {
	if f == nil {
		return ""
	}
	return Hex(f.Bytes())
}

// Hex renders bytes as space-separated upper-case pairs, "" for none.
func Hex(b []byte) string {
	return fmt.Sprintf("% X", b)
}

// PayloadSizeIndicator maps a payload size to its PSI. Sizes 7 and 8 share
// indicator 7; receivers tell them apart by the expected size.
func PayloadSizeIndicator(n int) uint8 {
	if n >= 7 {
		return 7
	}
	return uint8(n)
}

// build assembles a frame. Callers have validated addr and len(payload).
func build(addr Address, tid uint8, payload []byte) Frame {
	var f Frame
	psi := PayloadSizeIndicator(len(payload))
	f.Size = len(payload) + MinSize
	f.Data[0] = preamble<<4 | slice16(uint16(addr), 6, 10)
	f.Data[1] = slice16(uint16(addr), 0, 6)<<2 | slice8(psi, 1, 3)
	f.Data[2] = slice8(psi, 0, 1)<<7 | slice8(tid, 0, 7)
	copy(f.Data[3:], payload)
	f.Data[f.Size-1] = Checksum(f.Data[:f.Size-1])
	return f
}

// Build assembles a telegram for any address (including Uninit, which nodes
// use in responses before they are initialized) and tid.
func Build(addr Address, tid uint8, payload []byte) (Frame, error) {
	if addr > Uninit {
		return Frame{}, fmt.Errorf("address 0x%X: %w", uint16(addr), ErrAddress)
	}
	if tid > 0x7F {
		return Frame{}, fmt.Errorf("tid 0x%02X: %w", tid, ErrArgument)
	}
	if len(payload) > MaxPayload {
		return Frame{}, fmt.Errorf("payload %d bytes: %w", len(payload), ErrArgument)
	}
	return build(addr, tid, payload), nil
}

// Parse validates the framing of b (size, preamble, PSI, checksum) without
// knowing which command it carries. It is used by receivers of requests.
func Parse(b []byte) (*Frame, error) {
	f, err := FromBytes(b)
	if err != nil {
		return nil, err
	}
	if slice8(f.Data[0], 4, 8) != preamble {
		return nil, fmt.Errorf("byte 0x%02X: %w", f.Data[0], ErrPreamble)
	}
	if f.PSI() != PayloadSizeIndicator(f.Size-MinSize) {
		return nil, fmt.Errorf("psi %d for %d payload bytes: %w", f.PSI(), f.Size-MinSize, ErrPSI)
	}
	if Checksum(f.Bytes()) != 0 {
		return nil, ErrCRC
	}
	return f, nil
}

// check validates a received frame expected to carry tid with payload bytes.
func check(f *Frame, tid uint8, payload int) error {
	if f == nil {
		return ErrNilFrame
	}
	if f.Size != payload+MinSize {
		return fmt.Errorf("%d bytes, want %d: %w", f.Size, payload+MinSize, ErrSize)
	}
	if slice8(f.Data[0], 4, 8) != preamble {
		return fmt.Errorf("byte 0x%02X: %w", f.Data[0], ErrPreamble)
	}
	if f.PSI() != PayloadSizeIndicator(payload) {
		return fmt.Errorf("psi %d, want %d: %w", f.PSI(), PayloadSizeIndicator(payload), ErrPSI)
	}
	if f.TID() != tid {
		return fmt.Errorf("tid 0x%02X, want 0x%02X: %w", f.TID(), tid, ErrTID)
	}
	if Checksum(f.Bytes()) != 0 {
		return ErrCRC
	}
	return nil
}
