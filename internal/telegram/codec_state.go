package telegram

import "fmt"

// InitResult is the response of INITBIDIR and INITLOOP. Last is the address
// assigned to the final node, i.e. the chain length.
type InitResult struct {
	Last Address `json:"last"`
	Temp uint8   `json:"temp"`
	Stat Status  `json:"stat"`
}

// TempStat is the two byte temperature/status payload shared by READTEMPSTAT
// and the status-response variants of the state commands.
type TempStat struct {
	Temp uint8  `json:"temp"`
	Stat Status `json:"stat"`
}

func EncodeReset(addr Address) (Frame, error)       { return CmdReset.encode(addr) }
func EncodeClrError(addr Address) (Frame, error)    { return CmdClrError.encode(addr) }
func EncodeInitBidir(addr Address) (Frame, error)   { return CmdInitBidir.encode(addr) }
func EncodeInitLoop(addr Address) (Frame, error)    { return CmdInitLoop.encode(addr) }
func EncodeGoSleep(addr Address) (Frame, error)     { return CmdGoSleep.encode(addr) }
func EncodeGoActive(addr Address) (Frame, error)    { return CmdGoActive.encode(addr) }
func EncodeGoDeepSleep(addr Address) (Frame, error) { return CmdGoDeepSleep.encode(addr) }
func EncodeIdentify(addr Address) (Frame, error)    { return CmdIdentify.encode(addr) }
func EncodeReadMult(addr Address) (Frame, error)    { return CmdReadMult.encode(addr) }
func EncodeSync(addr Address) (Frame, error)        { return CmdSync.encode(addr) }
func EncodeIdle(addr Address) (Frame, error)        { return CmdIdle.encode(addr) }
func EncodeFoundry(addr Address) (Frame, error)     { return CmdFoundry.encode(addr) }
func EncodeCust(addr Address) (Frame, error)        { return CmdCust.encode(addr) }
func EncodeBurn(addr Address) (Frame, error)        { return CmdBurn.encode(addr) }

func EncodeClrErrorSR(addr Address) (Frame, error)    { return CmdClrErrorSR.encode(addr) }
func EncodeGoSleepSR(addr Address) (Frame, error)     { return CmdGoSleepSR.encode(addr) }
func EncodeGoActiveSR(addr Address) (Frame, error)    { return CmdGoActiveSR.encode(addr) }
func EncodeGoDeepSleepSR(addr Address) (Frame, error) { return CmdGoDeepSleepSR.encode(addr) }

func decodeInit(c Command, f *Frame) (InitResult, error) {
	if err := c.checkResponse(f); err != nil {
		return InitResult{}, err
	}
	return InitResult{Last: f.Addr(), Temp: f.Data[3], Stat: Status(f.Data[4])}, nil
}

func DecodeInitBidir(f *Frame) (InitResult, error) { return decodeInit(CmdInitBidir, f) }
func DecodeInitLoop(f *Frame) (InitResult, error)  { return decodeInit(CmdInitLoop, f) }

func decodeTempStat(c Command, f *Frame) (TempStat, error) {
	if err := c.checkResponse(f); err != nil {
		return TempStat{}, err
	}
	return TempStat{Temp: f.Data[3], Stat: Status(f.Data[4])}, nil
}

func DecodeClrErrorSR(f *Frame) (TempStat, error)    { return decodeTempStat(CmdClrErrorSR, f) }
func DecodeGoSleepSR(f *Frame) (TempStat, error)     { return decodeTempStat(CmdGoSleepSR, f) }
func DecodeGoActiveSR(f *Frame) (TempStat, error)    { return decodeTempStat(CmdGoActiveSR, f) }
func DecodeGoDeepSleepSR(f *Frame) (TempStat, error) { return decodeTempStat(CmdGoDeepSleepSR, f) }
func DecodeReadTempStat(f *Frame) (TempStat, error)  { return decodeTempStat(CmdReadTempStat, f) }

// DecodeIdentify returns the big-endian 32-bit node id.
func DecodeIdentify(f *Frame) (Identity, error) {
	if err := CmdIdentify.checkResponse(f); err != nil {
		return 0, err
	}
	d := f.Data[3:7]
	return Identity(uint32(d[0])<<24 | uint32(d[1])<<16 | uint32(d[2])<<8 | uint32(d[3])), nil
}

// DecodeReadMult returns the 15-bit group membership mask.
func DecodeReadMult(f *Frame) (uint16, error) {
	if err := CmdReadMult.checkResponse(f); err != nil {
		return 0, err
	}
	return be16(f.Data[3], f.Data[4]), nil
}

// EncodeSetMult assigns addr to the groups set in the 15-bit mask (bit n is
// group n).
func EncodeSetMult(addr Address, groups uint16) (Frame, error) {
	if groups&^0x7FFF != 0 {
		return Frame{}, fmt.Errorf("setmult: groups 0x%04X: %w", groups, ErrArgument)
	}
	return CmdSetMult.encode(addr, uint8(groups>>8), uint8(groups))
}

// ParseSetMult decodes a SETMULT request.
func ParseSetMult(f *Frame) (uint16, error) {
	if err := CmdSetMult.checkRequest(f); err != nil {
		return 0, err
	}
	return be16(f.Data[3], f.Data[4]), nil
}
