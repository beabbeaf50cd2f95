package telegram

import "fmt"

// I2C bridge limits.
const (
	I2CMaxRead  = 8
	I2CMaxWrite = MaxPayload - 2
)

// I2CRequest is a bridged I2C transaction: a 7-bit device address, a register
// address and either a byte count (read) or the bytes to write.
type I2CRequest struct {
	Device   uint8
	Register uint8
	Count    int
	Data     []byte
}

// EncodeI2CRead asks a SAID to read count bytes from register raddr of the
// I2C device daddr7. The result is fetched with READLAST.
func EncodeI2CRead(addr Address, daddr7, raddr uint8, count int) (Frame, error) {
	if daddr7 > 0x7F {
		return Frame{}, fmt.Errorf("i2cread: device 0x%02X: %w", daddr7, ErrArgument)
	}
	if count < 1 || count > I2CMaxRead {
		return Frame{}, fmt.Errorf("i2cread: count %d: %w", count, ErrArgument)
	}
	return CmdI2CRead.encode(addr, daddr7<<1, raddr, uint8(count))
}

func ParseI2CRead(f *Frame) (I2CRequest, error) {
	if err := CmdI2CRead.checkRequest(f); err != nil {
		return I2CRequest{}, err
	}
	return I2CRequest{Device: f.Data[3] >> 1, Register: f.Data[4], Count: int(f.Data[5])}, nil
}

// I2CWriteSizeValid reports whether n data bytes can be bridged in one
// I2CWRITE: the payload (n+2) must fit and must not be 5 or 7 bytes.
func I2CWriteSizeValid(n int) bool {
	p := n + 2
	return n >= 1 && p <= MaxPayload && p != 5 && p != 7
}

// EncodeI2CWrite asks a SAID to write data to register raddr of the I2C
// device daddr7.
func EncodeI2CWrite(addr Address, daddr7, raddr uint8, data []byte) (Frame, error) {
	if daddr7 > 0x7F {
		return Frame{}, fmt.Errorf("i2cwrite: device 0x%02X: %w", daddr7, ErrArgument)
	}
	if !I2CWriteSizeValid(len(data)) {
		return Frame{}, fmt.Errorf("i2cwrite: %d data bytes: %w", len(data), ErrArgument)
	}
	return CmdI2CWrite.encode(addr, append([]byte{daddr7 << 1, raddr}, data...)...)
}

func ParseI2CWrite(f *Frame) (I2CRequest, error) {
	if f == nil {
		return I2CRequest{}, ErrNilFrame
	}
	if !I2CWriteSizeValid(f.Size - MinSize - 2) {
		return I2CRequest{}, fmt.Errorf("i2cwrite request: %d bytes: %w", f.Size, ErrSize)
	}
	if err := check(f, CmdI2CWrite.TID, f.Size-MinSize); err != nil {
		return I2CRequest{}, fmt.Errorf("i2cwrite request: %w", err)
	}
	data := append([]byte(nil), f.Data[5:f.Size-1]...)
	return I2CRequest{Device: f.Data[3] >> 1, Register: f.Data[4], Count: len(data), Data: data}, nil
}

func EncodeReadLast(addr Address) (Frame, error) { return CmdReadLast.encode(addr) }

// DecodeReadLast returns the last n (1..8) bytes captured by the previous
// I2CREAD; the node right-aligns them in the 8 byte payload.
func DecodeReadLast(f *Frame, n int) ([]byte, error) {
	if err := CmdReadLast.checkResponse(f); err != nil {
		return nil, err
	}
	if n < 1 || n > I2CMaxRead {
		return nil, fmt.Errorf("readlast: size %d: %w", n, ErrArgument)
	}
	p := f.Payload()
	return append([]byte(nil), p[len(p)-n:]...), nil
}
