package telegram

import (
	"bytes"
	"errors"
	"testing"
)

func mustFrame(t *testing.T, b ...byte) *Frame {
	t.Helper()
	f, err := FromBytes(b)
	if err != nil {
		t.Fatalf("FromBytes(% X): %v", b, err)
	}
	return f
}

func TestChecksumKnownValues(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint8
	}{
		{"check string", []byte("123456789"), 0x3E},
		{"initloop request", []byte{0xA0, 0x04, 0x03}, 0x86},
		{"initloop response", []byte{0xA0, 0x09, 0x03, 0x00, 0x50}, 0x63},
		{"initbidir response", []byte{0xA0, 0x09, 0x02, 0x00, 0x50}, 0x6D},
		{"empty", nil, 0x00},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Checksum(tt.data); got != tt.want {
				t.Errorf("Checksum = 0x%02X, want 0x%02X", got, tt.want)
			}
		})
	}
}

func TestChecksumOfCompleteFrameIsZero(t *testing.T) {
	f, err := EncodeSetOTP(0x123, 0x0D, []byte{1, 2, 3, 4, 5, 6, 7})
	if err != nil {
		t.Fatal(err)
	}
	if c := Checksum(f.Bytes()); c != 0 {
		t.Errorf("Checksum(frame) = 0x%02X, want 0", c)
	}
}

func TestEncodeInitLoopWireBytes(t *testing.T) {
	f, err := EncodeInitLoop(0x001)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0xA0, 0x04, 0x03, 0x86}
	if !bytes.Equal(f.Bytes(), want) {
		t.Errorf("bytes = %s, want % X", f.String(), want)
	}
}

func TestHeaderFields(t *testing.T) {
	f, err := Build(0x3AB, 0x5F, []byte{1, 2, 3, 4, 5, 6})
	if err != nil {
		t.Fatal(err)
	}
	if f.Addr() != 0x3AB {
		t.Errorf("Addr = %s, want 0x3AB", f.Addr())
	}
	if f.TID() != 0x5F {
		t.Errorf("TID = 0x%02X, want 0x5F", f.TID())
	}
	if f.PSI() != 6 {
		t.Errorf("PSI = %d, want 6", f.PSI())
	}
	if f.Size != 10 {
		t.Errorf("Size = %d, want 10", f.Size)
	}
	if !bytes.Equal(f.Payload(), []byte{1, 2, 3, 4, 5, 6}) {
		t.Errorf("Payload = % X", f.Payload())
	}
}

func TestDecodeInitLoopResponse(t *testing.T) {
	f := mustFrame(t, 0xA0, 0x09, 0x03, 0x00, 0x50, 0x63)
	got, err := DecodeInitLoop(f)
	if err != nil {
		t.Fatal(err)
	}
	if got.Last != 2 {
		t.Errorf("Last = %s, want 0x002", got.Last)
	}
	if got.Temp != 0 {
		t.Errorf("Temp = %d, want 0", got.Temp)
	}
	if got.Stat.State() != StateSleep || !got.Stat.Has(StatDirLoop) {
		t.Errorf("Stat = 0x%02X, want sleep with loop flag", uint8(got.Stat))
	}
}

func TestDecodeValidationOrder(t *testing.T) {
	good := []byte{0xA0, 0x09, 0x02, 0x00, 0x50, 0x6D}

	withCRC := func(b []byte) []byte {
		b[len(b)-1] = Checksum(b[:len(b)-1])
		return b
	}

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"size", []byte{0xA0, 0x04, 0x02, 0x00, 0x50}, ErrSize},
		{"preamble", withCRC([]byte{0xB0, 0x09, 0x02, 0x00, 0x50, 0x00}), ErrPreamble},
		{"psi", withCRC([]byte{0xA0, 0x0A, 0x02, 0x00, 0x50, 0x00}), ErrPSI},
		{"tid", withCRC([]byte{0xA0, 0x09, 0x03, 0x00, 0x50, 0x00}), ErrTID},
		{"crc", []byte{0xA0, 0x09, 0x02, 0x00, 0x50, 0x6C}, ErrCRC},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeInitBidir(mustFrame(t, tt.data...))
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if !errors.Is(err, ErrFrame) {
				t.Errorf("err = %v, want it to match ErrFrame", err)
			}
		})
	}

	if _, err := DecodeInitBidir(mustFrame(t, good...)); err != nil {
		t.Errorf("good frame: %v", err)
	}
	if _, err := DecodeInitBidir(nil); !errors.Is(err, ErrNilFrame) {
		t.Errorf("nil frame: err = %v, want ErrNilFrame", err)
	}
}

func TestSingleBitFlipsAreRejected(t *testing.T) {
	var frames []Frame
	if f, err := Build(0x002, CmdInitBidir.TID, []byte{0x00, 0x50}); err == nil {
		frames = append(frames, f)
	}
	if f, err := Build(0x001, CmdIdentify.TID, []byte{0x00, 0x00, 0x00, 0x40}); err == nil {
		frames = append(frames, f)
	}
	if f, err := EncodeReadOTPResponse(0x3EF, [8]byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01, 0x02, 0x03, 0x04}); err == nil {
		frames = append(frames, f)
	}
	if len(frames) != 3 {
		t.Fatalf("built %d frames, want 3", len(frames))
	}

	decoders := map[uint8]func(*Frame) error{
		CmdInitBidir.TID: func(f *Frame) error { _, err := DecodeInitBidir(f); return err },
		CmdIdentify.TID:  func(f *Frame) error { _, err := DecodeIdentify(f); return err },
		CmdReadOTP.TID:   func(f *Frame) error { _, err := DecodeReadOTP(f); return err },
	}

	for _, orig := range frames {
		decode := decoders[orig.TID()]
		if err := decode(&orig); err != nil {
			t.Fatalf("%s: unmodified frame rejected: %v", orig.String(), err)
		}
		for i := 0; i < orig.Size; i++ {
			for b := 0; b < 8; b++ {
				f := orig
				f.Data[i] ^= 1 << b
				err := decode(&f)
				if err == nil {
					t.Errorf("%s: flip byte %d bit %d accepted", orig.String(), i, b)
					continue
				}
				if !errors.Is(err, ErrFrame) {
					t.Errorf("%s: flip byte %d bit %d: err = %v, want a frame error", orig.String(), i, b, err)
				}
			}
		}
	}
}

func TestPayloadSizeIndicatorCollapse(t *testing.T) {
	for n, want := range []uint8{0, 1, 2, 3, 4, 5, 6, 7, 7} {
		if got := PayloadSizeIndicator(n); got != want {
			t.Errorf("PayloadSizeIndicator(%d) = %d, want %d", n, got, want)
		}
	}

	seven, err := Build(0x001, CmdReadLast.TID, []byte{1, 2, 3, 4, 5, 6, 7})
	if err != nil {
		t.Fatal(err)
	}
	eight, err := Build(0x001, CmdReadLast.TID, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	if err != nil {
		t.Fatal(err)
	}
	if seven.PSI() != 7 || eight.PSI() != 7 {
		t.Fatalf("PSI = %d/%d, want 7/7", seven.PSI(), eight.PSI())
	}

	// The expected response size decides: READLAST carries 8 bytes.
	if _, err := DecodeReadLast(&seven, 7); !errors.Is(err, ErrSize) {
		t.Errorf("7 byte payload: err = %v, want ErrSize", err)
	}
	got, err := DecodeReadLast(&eight, 8)
	if err != nil {
		t.Fatalf("8 byte payload: %v", err)
	}
	if !bytes.Equal(got, []byte{1, 2, 3, 4, 5, 6, 7, 8}) {
		t.Errorf("payload = % X", got)
	}

	// Both sizes parse as requests; the length disambiguates.
	if _, err := Parse(seven.Bytes()); err != nil {
		t.Errorf("Parse(7 byte payload): %v", err)
	}
	if _, err := Parse(eight.Bytes()); err != nil {
		t.Errorf("Parse(8 byte payload): %v", err)
	}
}

func TestParse(t *testing.T) {
	f, err := EncodeSetTestData(0x010, 0xBEEF)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Parse(f.Bytes()); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	bad := append([]byte(nil), f.Bytes()...)
	bad[3] ^= 0x01
	if _, err := Parse(bad); !errors.Is(err, ErrCRC) {
		t.Errorf("corrupted: err = %v, want ErrCRC", err)
	}
	if _, err := Parse([]byte{0xA0, 0x04}); !errors.Is(err, ErrSize) {
		t.Errorf("short: err = %v, want ErrSize", err)
	}
	if _, err := Parse(make([]byte, 13)); !errors.Is(err, ErrSize) {
		t.Errorf("long: err = %v, want ErrSize", err)
	}
}

func TestBuildRejects(t *testing.T) {
	if _, err := Build(0x400, 0x00, nil); !errors.Is(err, ErrAddress) {
		t.Errorf("address: err = %v, want ErrAddress", err)
	}
	if _, err := Build(0x001, 0x80, nil); !errors.Is(err, ErrArgument) {
		t.Errorf("tid: err = %v, want ErrArgument", err)
	}
	if _, err := Build(0x001, 0x00, make([]byte, 9)); !errors.Is(err, ErrArgument) {
		t.Errorf("payload: err = %v, want ErrArgument", err)
	}
}

func TestBitHelpers(t *testing.T) {
	if got := slice8(0b11101011, 2, 6); got != 0b1010 {
		t.Errorf("slice8 = %04b, want 1010", got)
	}
	if got := slice8(0xFF, 0, 8); got != 0xFF {
		t.Errorf("slice8 full = 0x%02X, want 0xFF", got)
	}
	if got := slice16(0x3AB, 6, 10); got != 0xE {
		t.Errorf("slice16 = 0x%X, want 0xE", got)
	}
	if got := slice64(0x112233445566, 40, 48); got != 0x11 {
		t.Errorf("slice64 = 0x%02X, want 0x11", got)
	}
	if bit(0x80, 7) != 1 || bit(0x80, 6) != 0 {
		t.Error("bit helper wrong")
	}
	if be16(0x12, 0x34) != 0x1234 {
		t.Error("be16 wrong")
	}
}

func TestHex(t *testing.T) {
	tests := []struct {
		in   []byte
		want string
	}{
		{nil, ""},
		{[]byte{}, ""},
		{[]byte{0x0A}, "0A"},
		{[]byte{0xA0, 0x04, 0x02}, "A0 04 02"},
	}
	for _, tt := range tests {
		if got := Hex(tt.in); got != tt.want {
			t.Errorf("Hex(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
