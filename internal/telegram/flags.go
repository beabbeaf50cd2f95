package telegram

// State is the node lifecycle state held in status bits 7:6.
type State uint8

const (
	StateUninitialized State = iota
	StateSleep
	StateActive
	StateDeepSleep
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateSleep:
		return "sleep"
	case StateActive:
		return "active"
	default:
		return "deepsleep"
	}
}

// Status is the byte returned by READSTAT, READTEMPSTAT and INIT*.
type Status uint8

const (
	StatOTPCRC1  Status = 0x20 // OTP checksum error (RGBI)
	StatTestMode Status = 0x20 // test mode (SAID)
	StatOV       Status = 0x10 // over voltage (SAID)
	StatDirLoop  Status = 0x10 // direction is loop (RGBI)
	StatCE       Status = 0x08 // communication error
	StatLOS      Status = 0x04 // LED open or short
	StatOT       Status = 0x02 // over temperature
	StatUV       Status = 0x01 // under voltage

	StatErrorsRGBI = StatOTPCRC1 | StatCE | StatLOS | StatOT | StatUV
	StatErrorsSAID = StatOTPCRC1 | StatOV | StatCE | StatLOS | StatOT | StatUV
)

func (s Status) State() State { return State(slice8(uint8(s), 6, 8)) }

func (s Status) Has(f Status) bool { return s&f == f }

// WithState returns s with its state bits replaced.
func (s Status) WithState(st State) Status {
	return s&0x3F | Status(st)<<6
}

// Setup is the byte of READSETUP/SETSETUP.
type Setup uint8

const (
	SetupPWMF      Setup = 0x80 // PWM uses fast clock
	SetupComClkInv Setup = 0x40 // MCU SPI clock inverted
	SetupCRCEn     Setup = 0x20 // telegram CRC check enabled
	SetupOTP       Setup = 0x10 // SAID
	SetupTempCk    Setup = 0x10 // RGBI: slow temperature sensor clock
	SetupCE        Setup = 0x08
	SetupLOS       Setup = 0x04
	SetupOT        Setup = 0x02
	SetupUV        Setup = 0x01

	SetupDefaultRGBI = SetupTempCk | SetupOT | SetupUV
	SetupDefaultSAID = SetupOTP | SetupOT | SetupUV
)

func (s Setup) Has(f Setup) bool { return s&f == f }

// Link is the configuration of a serial IO port.
type Link uint8

const (
	LinkLVDS Link = iota
	LinkEOL
	LinkMCU
	LinkCAN
)

func (l Link) String() string {
	return [...]string{"lvds", "eol", "mcu", "can"}[l&3]
}

// ComStatus is the byte returned by READCOMST.
type ComStatus uint8

const ComDirLoop ComStatus = 0x10

func (c ComStatus) SIO1() Link { return Link(slice8(uint8(c), 0, 2)) }
func (c ComStatus) SIO2() Link { return Link(slice8(uint8(c), 2, 4)) }
func (c ComStatus) Loop() bool { return c&ComDirLoop != 0 }

// LEDStatus holds open (bits 6:4) and short (bits 2:0) flags per color.
type LEDStatus uint8

// Channel colors in LED status order.
const (
	Red = iota
	Green
	Blue
)

// Open reports an open LED for color (Red, Green, Blue).
func (l LEDStatus) Open(color int) bool { return bit(uint8(l), uint(6-color)) == 1 }

// Short reports a shorted LED for color.
func (l LEDStatus) Short(color int) bool { return bit(uint8(l), uint(2-color)) == 1 }

// CurFlags are the 4-bit channel flags of READCURCHN/SETCURCHN.
type CurFlags uint8

const (
	CurReserved CurFlags = 0x08
	CurSyncEn   CurFlags = 0x04
	CurHybrid   CurFlags = 0x02
	CurDither   CurFlags = 0x01
)

// I2CFlags are the 4-bit flags of READI2CCFG/SETI2CCFG.
type I2CFlags uint8

const (
	I2CInt   I2CFlags = 0x08 // INT pin status
	I2C12Bit I2CFlags = 0x04 // 12-bit addressing
	I2CNack  I2CFlags = 0x02 // last transaction ended with NACK
	I2CBusy  I2CFlags = 0x01 // transaction in flight
)

func (f I2CFlags) Has(x I2CFlags) bool { return f&x == x }

// I2C bus speed settings (divider index, 1..15).
const (
	I2CSpeedFast     uint8 = 0x03 // ~400 kHz
	I2CSpeedStandard uint8 = 0x0C // ~100 kHz, hardware default
	I2CSpeedDefault        = I2CSpeedStandard
)

// CurrentValid reports whether v is a defined channel current level
// (0..4 normal, 8..11 aging compensation).
func CurrentValid(v uint8) bool {
	return v <= 4 || (v >= 8 && v <= 11)
}
