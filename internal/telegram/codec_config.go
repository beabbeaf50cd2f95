package telegram

import "fmt"

// PWM is the RGBI PWM setting: 15-bit values and three day-time (high current)
// bits, red in bit 2.
type PWM struct {
	Red      uint16 `json:"red"`
	Green    uint16 `json:"green"`
	Blue     uint16 `json:"blue"`
	Daytimes uint8  `json:"daytimes"`
}

// ChannelPWM is the 16-bit PWM setting of one SAID channel.
type ChannelPWM struct {
	Red   uint16 `json:"red"`
	Green uint16 `json:"green"`
	Blue  uint16 `json:"blue"`
}

// Current is the channel configuration of READCURCHN/SETCURCHN.
type Current struct {
	Flags CurFlags `json:"flags"`
	Red   uint8    `json:"red"`
	Green uint8    `json:"green"`
	Blue  uint8    `json:"blue"`
}

// I2CConfig is the I2C configuration/status byte of a SAID.
type I2CConfig struct {
	Flags I2CFlags `json:"flags"`
	Speed uint8    `json:"speed"`
}

// NumChannels is the number of SAID channels.
const NumChannels = 3

func checkChannel(op string, chn uint8) error {
	if chn >= NumChannels {
		return fmt.Errorf("%s: channel %d: %w", op, chn, ErrArgument)
	}
	return nil
}

func EncodeReadStat(addr Address) (Frame, error)     { return CmdReadStat.encode(addr) }
func EncodeReadTempStat(addr Address) (Frame, error) { return CmdReadTempStat.encode(addr) }
func EncodeReadComSt(addr Address) (Frame, error)    { return CmdReadComSt.encode(addr) }
func EncodeReadLEDSt(addr Address) (Frame, error)    { return CmdReadLEDSt.encode(addr) }
func EncodeReadTemp(addr Address) (Frame, error)     { return CmdReadTemp.encode(addr) }
func EncodeReadSetup(addr Address) (Frame, error)    { return CmdReadSetup.encode(addr) }
func EncodeReadPWM(addr Address) (Frame, error)      { return CmdReadPWM.encode(addr) }
func EncodeReadI2CCfg(addr Address) (Frame, error)   { return CmdReadI2CCfg.encode(addr) }

// decodeByte decodes the single payload byte of a one byte response.
func decodeByte(c Command, f *Frame) (uint8, error) {
	if err := c.checkResponse(f); err != nil {
		return 0, err
	}
	return f.Data[3], nil
}

func DecodeReadStat(f *Frame) (Status, error) {
	b, err := decodeByte(CmdReadStat, f)
	return Status(b), err
}

func DecodeReadComSt(f *Frame) (ComStatus, error) {
	b, err := decodeByte(CmdReadComSt, f)
	return ComStatus(b), err
}

func DecodeReadLEDSt(f *Frame) (LEDStatus, error) {
	b, err := decodeByte(CmdReadLEDSt, f)
	return LEDStatus(b), err
}

func DecodeReadTemp(f *Frame) (uint8, error) {
	return decodeByte(CmdReadTemp, f)
}

func DecodeReadSetup(f *Frame) (Setup, error) {
	b, err := decodeByte(CmdReadSetup, f)
	return Setup(b), err
}

func EncodeSetSetup(addr Address, flags Setup) (Frame, error) {
	return CmdSetSetup.encode(addr, uint8(flags))
}

func ParseSetSetup(f *Frame) (Setup, error) {
	if err := CmdSetSetup.checkRequest(f); err != nil {
		return 0, err
	}
	return Setup(f.Data[3]), nil
}

// pwm15 packs an RGBI PWM setting: per color the day bit in bit 7 of the high
// byte followed by the 15-bit value.
func pwm15(p PWM) []byte {
	return []byte{
		bit(p.Daytimes, 2)<<7 | slice16(p.Red, 8, 15), slice16(p.Red, 0, 8),
		bit(p.Daytimes, 1)<<7 | slice16(p.Green, 8, 15), slice16(p.Green, 0, 8),
		bit(p.Daytimes, 0)<<7 | slice16(p.Blue, 8, 15), slice16(p.Blue, 0, 8),
	}
}

func unpwm15(d []byte) PWM {
	return PWM{
		Red:      be16(slice8(d[0], 0, 7), d[1]),
		Green:    be16(slice8(d[2], 0, 7), d[3]),
		Blue:     be16(slice8(d[4], 0, 7), d[5]),
		Daytimes: bit(d[0], 7)<<2 | bit(d[2], 7)<<1 | bit(d[4], 7),
	}
}

// DecodeReadPWM decodes the RGBI PWM response.
func DecodeReadPWM(f *Frame) (PWM, error) {
	if err := CmdReadPWM.checkResponse(f); err != nil {
		return PWM{}, err
	}
	return unpwm15(f.Data[3:9]), nil
}

// EncodeSetPWM configures an RGBI node.
func EncodeSetPWM(addr Address, p PWM) (Frame, error) {
	if p.Red&^0x7FFF != 0 || p.Green&^0x7FFF != 0 || p.Blue&^0x7FFF != 0 || p.Daytimes&^0x07 != 0 {
		return Frame{}, fmt.Errorf("setpwm: %+v: %w", p, ErrArgument)
	}
	return CmdSetPWM.encode(addr, pwm15(p)...)
}

func ParseSetPWM(f *Frame) (PWM, error) {
	if err := CmdSetPWM.checkRequest(f); err != nil {
		return PWM{}, err
	}
	return unpwm15(f.Data[3:9]), nil
}

// EncodeReadPWMChn asks a SAID for the PWM setting of channel chn.
func EncodeReadPWMChn(addr Address, chn uint8) (Frame, error) {
	if err := checkChannel("readpwmchn", chn); err != nil {
		return Frame{}, err
	}
	return CmdReadPWMChn.encode(addr, chn)
}

func ParseReadPWMChn(f *Frame) (uint8, error) {
	if err := CmdReadPWMChn.checkRequest(f); err != nil {
		return 0, err
	}
	return f.Data[3], nil
}

func pwm16(p ChannelPWM) []byte {
	return []byte{
		uint8(p.Red >> 8), uint8(p.Red),
		uint8(p.Green >> 8), uint8(p.Green),
		uint8(p.Blue >> 8), uint8(p.Blue),
	}
}

func unpwm16(d []byte) ChannelPWM {
	return ChannelPWM{Red: be16(d[0], d[1]), Green: be16(d[2], d[3]), Blue: be16(d[4], d[5])}
}

func DecodeReadPWMChn(f *Frame) (ChannelPWM, error) {
	if err := CmdReadPWMChn.checkResponse(f); err != nil {
		return ChannelPWM{}, err
	}
	return unpwm16(f.Data[3:9]), nil
}

// EncodeSetPWMChn configures channel chn of a SAID. The second payload byte
// is unused and sent as 0xFF.
func EncodeSetPWMChn(addr Address, chn uint8, p ChannelPWM) (Frame, error) {
	if err := checkChannel("setpwmchn", chn); err != nil {
		return Frame{}, err
	}
	return CmdSetPWMChn.encode(addr, append([]byte{chn, 0xFF}, pwm16(p)...)...)
}

func ParseSetPWMChn(f *Frame) (uint8, ChannelPWM, error) {
	if err := CmdSetPWMChn.checkRequest(f); err != nil {
		return 0, ChannelPWM{}, err
	}
	return f.Data[3], unpwm16(f.Data[5:11]), nil
}

func EncodeReadCurChn(addr Address, chn uint8) (Frame, error) {
	if err := checkChannel("readcurchn", chn); err != nil {
		return Frame{}, err
	}
	return CmdReadCurChn.encode(addr, chn)
}

func ParseReadCurChn(f *Frame) (uint8, error) {
	if err := CmdReadCurChn.checkRequest(f); err != nil {
		return 0, err
	}
	return f.Data[3], nil
}

func packCurrent(c Current) []byte {
	return []byte{uint8(c.Flags)<<4 | c.Red&0x0F, c.Green<<4 | c.Blue&0x0F}
}

func unpackCurrent(d []byte) Current {
	return Current{
		Flags: CurFlags(slice8(d[0], 4, 8)),
		Red:   slice8(d[0], 0, 4),
		Green: slice8(d[1], 4, 8),
		Blue:  slice8(d[1], 0, 4),
	}
}

func DecodeReadCurChn(f *Frame) (Current, error) {
	if err := CmdReadCurChn.checkResponse(f); err != nil {
		return Current{}, err
	}
	return unpackCurrent(f.Data[3:5]), nil
}

// EncodeSetCurChn configures the currents of channel chn. The reserved flag
// must stay clear and each current must be a defined level.
func EncodeSetCurChn(addr Address, chn uint8, c Current) (Frame, error) {
	if err := checkChannel("setcurchn", chn); err != nil {
		return Frame{}, err
	}
	if c.Flags&^0x07 != 0 {
		return Frame{}, fmt.Errorf("setcurchn: flags 0x%X: %w", uint8(c.Flags), ErrArgument)
	}
	if !CurrentValid(c.Red) || !CurrentValid(c.Green) || !CurrentValid(c.Blue) {
		return Frame{}, fmt.Errorf("setcurchn: currents %d/%d/%d: %w", c.Red, c.Green, c.Blue, ErrArgument)
	}
	return CmdSetCurChn.encode(addr, append([]byte{chn}, packCurrent(c)...)...)
}

func ParseSetCurChn(f *Frame) (uint8, Current, error) {
	if err := CmdSetCurChn.checkRequest(f); err != nil {
		return 0, Current{}, err
	}
	return f.Data[3], unpackCurrent(f.Data[4:6]), nil
}

func DecodeReadI2CCfg(f *Frame) (I2CConfig, error) {
	b, err := decodeByte(CmdReadI2CCfg, f)
	if err != nil {
		return I2CConfig{}, err
	}
	return I2CConfig{Flags: I2CFlags(slice8(b, 4, 8)), Speed: slice8(b, 0, 4)}, nil
}

// EncodeSetI2CCfg writes the I2C configuration; speed 0 is not allowed.
func EncodeSetI2CCfg(addr Address, cfg I2CConfig) (Frame, error) {
	if cfg.Flags&^0x0F != 0 || cfg.Speed < 1 || cfg.Speed > 0x0F {
		return Frame{}, fmt.Errorf("seti2ccfg: flags 0x%X speed %d: %w", uint8(cfg.Flags), cfg.Speed, ErrArgument)
	}
	return CmdSetI2CCfg.encode(addr, uint8(cfg.Flags)<<4|cfg.Speed)
}

func ParseSetI2CCfg(f *Frame) (I2CConfig, error) {
	if err := CmdSetI2CCfg.checkRequest(f); err != nil {
		return I2CConfig{}, err
	}
	b := f.Data[3]
	return I2CConfig{Flags: I2CFlags(slice8(b, 4, 8)), Speed: slice8(b, 0, 4)}, nil
}
