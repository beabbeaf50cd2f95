package telegram

import "fmt"

// OTP layout.
const (
	OTPSize        = 0x20
	OTPRowSize     = 8 // bytes returned by READOTP
	OTPWriteSize   = 7 // bytes taken by SETOTP
	OTPCustomerMin = 0x0D
	OTPCustomerMax = 0x1F
)

// Test password values.
const (
	// TestPWUnknown is the placeholder used when the real password is not
	// configured. Nodes reject it.
	TestPWUnknown uint64 = 0x0000FFFFFFFFFFFF
	// TestPWRevoke is sent to leave the authenticated state.
	TestPWRevoke uint64 = 0
	testPWMask   uint64 = 0x0000FFFFFFFFFFFF
)

// EncodeReadOTP reads the 8 bytes starting at OTP row.
func EncodeReadOTP(addr Address, row uint8) (Frame, error) {
	if row >= OTPSize {
		return Frame{}, fmt.Errorf("readotp: row 0x%02X: %w", row, ErrArgument)
	}
	return CmdReadOTP.encode(addr, row)
}

func ParseReadOTP(f *Frame) (uint8, error) {
	if err := CmdReadOTP.checkRequest(f); err != nil {
		return 0, err
	}
	return f.Data[3], nil
}

// DecodeReadOTP returns the bytes in OTP row order. The wire carries them
// most significant (highest row) first.
func DecodeReadOTP(f *Frame) ([OTPRowSize]byte, error) {
	var out [OTPRowSize]byte
	if err := CmdReadOTP.checkResponse(f); err != nil {
		return out, err
	}
	p := f.Payload()
	for i := range out {
		out[i] = p[OTPRowSize-1-i]
	}
	return out, nil
}

// EncodeReadOTPResponse builds the READOTP response a node sends for the 8
// bytes in row order.
func EncodeReadOTPResponse(addr Address, data [OTPRowSize]byte) (Frame, error) {
	var p [OTPRowSize]byte
	for i := range data {
		p[OTPRowSize-1-i] = data[i]
	}
	return Build(addr, CmdReadOTP.TID, p[:])
}

// EncodeSetOTP writes exactly 7 bytes (row order) to the OTP mirror starting
// at row. Nodes only accept it while authenticated.
func EncodeSetOTP(addr Address, row uint8, data []byte) (Frame, error) {
	if row >= OTPSize {
		return Frame{}, fmt.Errorf("setotp: row 0x%02X: %w", row, ErrArgument)
	}
	if len(data) != OTPWriteSize {
		return Frame{}, fmt.Errorf("setotp: %d bytes: %w", len(data), ErrArgument)
	}
	var p [OTPRowSize]byte
	for i, b := range data {
		p[OTPWriteSize-1-i] = b
	}
	p[OTPWriteSize] = row
	return CmdSetOTP.encode(addr, p[:]...)
}

// ParseSetOTP decodes a SETOTP request into its row and 7 bytes (row order).
func ParseSetOTP(f *Frame) (uint8, [OTPWriteSize]byte, error) {
	var out [OTPWriteSize]byte
	if err := CmdSetOTP.checkRequest(f); err != nil {
		return 0, out, err
	}
	p := f.Payload()
	for i := range out {
		out[i] = p[OTPWriteSize-1-i]
	}
	return p[OTPWriteSize], out, nil
}

// EncodeSetTestData writes the 16-bit test register.
func EncodeSetTestData(addr Address, data uint16) (Frame, error) {
	return CmdSetTestData.encode(addr, uint8(data>>8), uint8(data))
}

func ParseSetTestData(f *Frame) (uint16, error) {
	if err := CmdSetTestData.checkRequest(f); err != nil {
		return 0, err
	}
	return be16(f.Data[3], f.Data[4]), nil
}

// EncodeSetTestPW sends the 48-bit test password. The bytes go out least
// significant first, matching how vendor passwords are distributed.
func EncodeSetTestPW(addr Address, pw uint64) (Frame, error) {
	if pw&^testPWMask != 0 {
		return Frame{}, fmt.Errorf("settestpw: password wider than 48 bits: %w", ErrArgument)
	}
	var p [6]byte
	for i := range p {
		p[i] = slice64(pw, uint(8*i), uint(8*i+8))
	}
	return CmdSetTestPW.encode(addr, p[:]...)
}

func ParseSetTestPW(f *Frame) (uint64, error) {
	if err := CmdSetTestPW.checkRequest(f); err != nil {
		return 0, err
	}
	var pw uint64
	for i, b := range f.Payload() {
		pw |= uint64(b) << (8 * i)
	}
	return pw, nil
}
