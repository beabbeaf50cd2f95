// Package pretty renders raw node values (temperatures, status and
// configuration bytes, PWM settings) as short human readable strings.
//
// Flag strings use one letter per bit, upper case when the bit is set:
// "sleep-oL-clou" is a sleeping RGBI in loop direction without errors.
package pretty

import (
	"fmt"
	"strings"

	"osp-go-host/internal/telegram"
)

// TempRGBI converts an RGBI temperature byte to degrees Celsius
// (1.08 per step, offset -126).
func TempRGBI(raw uint8) int {
	return (int(raw)*108+50)/100 - 126
}

// TempSAID converts a SAID temperature byte to degrees Celsius
// ((raw-116)/0.85 + 25).
func TempSAID(raw uint8) int {
	t100 := (int(raw) - 116) * 100
	round := 42
	if t100 < 0 {
		round = -42
	}
	return (t100+round)/85 + 25
}

// Temp converts raw by the formula of family.
func Temp(fam telegram.Family, raw uint8) int {
	if fam == telegram.FamilySAID {
		return TempSAID(raw)
	}
	return TempRGBI(raw)
}

// flags renders the low len(letters) bits of v, most significant first.
func flags(v uint8, letters string) string {
	var sb strings.Builder
	n := len(letters)
	for i := 0; i < n; i++ {
		c := letters[i]
		if v&(1<<uint(n-1-i)) != 0 {
			sb.WriteByte(c)
		} else {
			sb.WriteByte(c + 'a' - 'A')
		}
	}
	return sb.String()
}

// State returns the lifecycle state name held in bits 7:6 of stat.
func State(stat telegram.Status) string { return stat.State().String() }

// StatRGBI renders an RGBI status byte, e.g. "sleep-oL-clou": OTP error and
// loop direction, then communication, LED, over temperature and under
// voltage errors.
func StatRGBI(stat telegram.Status) string {
	return State(stat) + "-" + flags(uint8(stat)>>4, "OL") + "-" + flags(uint8(stat), "CLOU")
}

// StatSAID renders a SAID status byte, e.g. "active-tv-clou": test mode and
// over voltage, then the shared error flags.
func StatSAID(stat telegram.Status) string {
	return State(stat) + "-" + flags(uint8(stat)>>4, "TV") + "-" + flags(uint8(stat), "CLOU")
}

// Stat renders stat for the given family.
func Stat(fam telegram.Family, stat telegram.Status) string {
	if fam == telegram.FamilySAID {
		return StatSAID(stat)
	}
	return StatRGBI(stat)
}

// Setup renders a setup byte, e.g. "pccT-clOU": fast PWM, inverted clock,
// CRC check and slow temperature sensor (OTP on SAID), then the error
// interrupt enables.
func Setup(s telegram.Setup) string {
	return flags(uint8(s)>>4, "PCCT") + "-" + flags(uint8(s), "CLOU")
}

// LEDStatus renders open (O) and short (S) flags per color, e.g. "os-oS-Os".
func LEDStatus(l telegram.LEDStatus) string {
	part := func(color int) string {
		b := []byte("os")
		if l.Open(color) {
			b[0] = 'O'
		}
		if l.Short(color) {
			b[1] = 'S'
		}
		return string(b)
	}
	return part(telegram.Red) + "-" + part(telegram.Green) + "-" + part(telegram.Blue)
}

// ComRGBI renders the link types of SIO2 and SIO1, e.g. "lvds-lvds".
func ComRGBI(c telegram.ComStatus) string {
	return c.SIO2().String() + "-" + c.SIO1().String()
}

// ComSAID renders SIO2, the direction and SIO1, e.g. "lvds-loop-lvds".
func ComSAID(c telegram.ComStatus) string {
	dir := "bidir"
	if c.Loop() {
		dir = "loop"
	}
	return c.SIO2().String() + "-" + dir + "-" + c.SIO1().String()
}

// Com renders c for the given family.
func Com(fam telegram.Family, c telegram.ComStatus) string {
	if fam == telegram.FamilySAID {
		return ComSAID(c)
	}
	return ComRGBI(c)
}

// PWMRGBI renders "D.VVVV" per color, D being the day (high current) bit.
func PWMRGBI(p telegram.PWM) string {
	return fmt.Sprintf("%X.%04X-%X.%04X-%X.%04X",
		p.Daytimes>>2&1, p.Red, p.Daytimes>>1&1, p.Green, p.Daytimes&1, p.Blue)
}

// PWMSAID renders a channel PWM triplet, e.g. "0000-FFFF-0000".
func PWMSAID(p telegram.ChannelPWM) string {
	return fmt.Sprintf("%04X-%04X-%04X", p.Red, p.Green, p.Blue)
}

// CurFlags renders reserved, sync, hybrid and dither flags, e.g. "rShd".
func CurFlags(f telegram.CurFlags) string { return flags(uint8(f), "RSHD") }

// Current renders a channel current setting, e.g. "rshd 4/4/4".
func Current(c telegram.Current) string {
	return fmt.Sprintf("%s %d/%d/%d", CurFlags(c.Flags), c.Red, c.Green, c.Blue)
}

// I2CFlags renders interrupt, 12-bit, NACK and busy flags, e.g. "itNb".
func I2CFlags(f telegram.I2CFlags) string { return flags(uint8(f), "ITNB") }

// I2CConfig renders flags and bus frequency, e.g. "itnb 93kHz".
func I2CConfig(c telegram.I2CConfig) string {
	return fmt.Sprintf("%s %dkHz", I2CFlags(c.Flags), (I2CSpeed(c.Speed)+500)/1000)
}

// I2CSpeed returns the bus frequency in Hz for a divider setting (1..15).
// 0 is not a valid setting and returns 0.
func I2CSpeed(speed uint8) int {
	if speed == 0 {
		return 0
	}
	div := 2 * (int(speed&0x0F)*8 + 7)
	return (19_200_000 + div/2) / div
}

// Bytes renders b as space separated hex, e.g. "A0 09 02 00 50 6D".
func Bytes(b []byte) string { return fmt.Sprintf("% X", b) }
