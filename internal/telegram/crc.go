package telegram

import "github.com/sigurn/crc8"

// CRC-8 with polynomial 0x2F, zero init, no reflection, no final xor.
var crcTable = crc8.MakeTable(crc8.Params{
	Poly:   0x2F,
	Init:   0x00,
	RefIn:  false,
	RefOut: false,
	XorOut: 0x00,
	Check:  0x3E,
	Name:   "CRC-8/OSP",
})

// Checksum returns the telegram checksum of b. A complete telegram, including
// its trailing checksum byte, sums to zero.
func Checksum(b []byte) uint8 {
	return crc8.Checksum(b, crcTable)
}
