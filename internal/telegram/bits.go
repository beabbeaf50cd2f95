package telegram

// slice8 returns bits [lo, hi) of v, shifted down to bit 0.
func slice8(v uint8, lo, hi uint) uint8 {
	return v >> lo & (1<<(hi-lo) - 1)
}

func slice16(v uint16, lo, hi uint) uint8 {
	return uint8(v >> lo & (1<<(hi-lo) - 1))
}

func slice64(v uint64, lo, hi uint) uint8 {
	return uint8(v >> lo & (1<<(hi-lo) - 1))
}

// bit returns 1 when bit n of v is set.
func bit(v uint8, n uint) uint8 {
	return v >> n & 1
}

func be16(hi, lo uint8) uint16 {
	return uint16(hi)<<8 | uint16(lo)
}
