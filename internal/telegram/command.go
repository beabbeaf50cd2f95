package telegram

import "fmt"

// Mode is the set of addresses a command may be sent to.
type Mode uint8

const (
	// AnyAddress accepts broadcast, unicast and group addresses.
	AnyAddress Mode = iota
	// UnicastOnly is used by commands that expect a response.
	UnicastOnly
)

// Command describes one telegram type. RespSize 0 means the command has no
// response. ReqSize -1 marks a variable request payload.
type Command struct {
	TID      uint8
	Name     string
	ReqSize  int
	RespSize int
	Mode     Mode
	Family   Family // FamilyUnknown when the command is shared
}

// HasResponse reports whether the node answers this command.
func (c Command) HasResponse() bool { return c.RespSize > 0 }

func (c Command) String() string { return c.Name }

// checkAddr validates addr against the command's addressing mode.
func (c Command) checkAddr(addr Address) error {
	if !addr.Valid() {
		return fmt.Errorf("%s: %s: %w", c.Name, addr, ErrAddress)
	}
	if c.Mode == UnicastOnly && !addr.IsUnicast() {
		return fmt.Errorf("%s: %s is not unicast: %w", c.Name, addr, ErrAddress)
	}
	return nil
}

// encode builds the request after the address check.
func (c Command) encode(addr Address, payload ...byte) (Frame, error) {
	if err := c.checkAddr(addr); err != nil {
		return Frame{}, err
	}
	return build(addr, c.TID, payload), nil
}

// checkResponse validates a response frame for c.
func (c Command) checkResponse(f *Frame) error {
	if err := check(f, c.TID, c.RespSize); err != nil {
		return fmt.Errorf("%s response: %w", c.Name, err)
	}
	return nil
}

// checkRequest validates a request frame for c with a fixed payload size.
func (c Command) checkRequest(f *Frame) error {
	if err := check(f, c.TID, c.ReqSize); err != nil {
		return fmt.Errorf("%s request: %w", c.Name, err)
	}
	return nil
}

var (
	CmdReset         = Command{TID: 0x00, Name: "reset"}
	CmdClrError      = Command{TID: 0x01, Name: "clrerror"}
	CmdInitBidir     = Command{TID: 0x02, Name: "initbidir", RespSize: 2, Mode: UnicastOnly}
	CmdInitLoop      = Command{TID: 0x03, Name: "initloop", RespSize: 2, Mode: UnicastOnly}
	CmdGoSleep       = Command{TID: 0x04, Name: "gosleep"}
	CmdGoActive      = Command{TID: 0x05, Name: "goactive"}
	CmdGoDeepSleep   = Command{TID: 0x06, Name: "godeepsleep"}
	CmdIdentify      = Command{TID: 0x07, Name: "identify", RespSize: 4, Mode: UnicastOnly}
	CmdReadMult      = Command{TID: 0x0C, Name: "readmult", RespSize: 2, Mode: UnicastOnly}
	CmdSetMult       = Command{TID: 0x0D, Name: "setmult", ReqSize: 2}
	CmdSync          = Command{TID: 0x0F, Name: "sync"}
	CmdIdle          = Command{TID: 0x11, Name: "idle"}
	CmdFoundry       = Command{TID: 0x12, Name: "foundry"}
	CmdCust          = Command{TID: 0x13, Name: "cust"}
	CmdBurn          = Command{TID: 0x14, Name: "burn"}
	CmdI2CRead       = Command{TID: 0x18, Name: "i2cread", ReqSize: 3, Family: FamilySAID}
	CmdI2CWrite      = Command{TID: 0x19, Name: "i2cwrite", ReqSize: -1, Family: FamilySAID}
	CmdReadLast      = Command{TID: 0x1E, Name: "readlast", RespSize: 8, Mode: UnicastOnly, Family: FamilySAID}
	CmdClrErrorSR    = Command{TID: 0x21, Name: "clrerror_sr", RespSize: 2, Mode: UnicastOnly}
	CmdGoSleepSR     = Command{TID: 0x24, Name: "gosleep_sr", RespSize: 2, Mode: UnicastOnly}
	CmdGoActiveSR    = Command{TID: 0x25, Name: "goactive_sr", RespSize: 2, Mode: UnicastOnly}
	CmdGoDeepSleepSR = Command{TID: 0x26, Name: "godeepsleep_sr", RespSize: 2, Mode: UnicastOnly}
	CmdReadStat      = Command{TID: 0x40, Name: "readstat", RespSize: 1, Mode: UnicastOnly}
	CmdReadTempStat  = Command{TID: 0x42, Name: "readtempstat", RespSize: 2, Mode: UnicastOnly}
	CmdReadComSt     = Command{TID: 0x44, Name: "readcomst", RespSize: 1, Mode: UnicastOnly}
	CmdReadLEDSt     = Command{TID: 0x46, Name: "readledst", RespSize: 1, Mode: UnicastOnly}
	CmdReadTemp      = Command{TID: 0x48, Name: "readtemp", RespSize: 1, Mode: UnicastOnly}
	CmdReadSetup     = Command{TID: 0x4C, Name: "readsetup", RespSize: 1, Mode: UnicastOnly}
	CmdSetSetup      = Command{TID: 0x4D, Name: "setsetup", ReqSize: 1}
	CmdReadPWM       = Command{TID: 0x4E, Name: "readpwm", RespSize: 6, Mode: UnicastOnly, Family: FamilyRGBI}
	CmdReadPWMChn    = Command{TID: 0x4E, Name: "readpwmchn", ReqSize: 1, RespSize: 6, Mode: UnicastOnly, Family: FamilySAID}
	CmdSetPWM        = Command{TID: 0x4F, Name: "setpwm", ReqSize: 6, Family: FamilyRGBI}
	CmdSetPWMChn     = Command{TID: 0x4F, Name: "setpwmchn", ReqSize: 8, Family: FamilySAID}
	CmdReadCurChn    = Command{TID: 0x50, Name: "readcurchn", ReqSize: 1, RespSize: 2, Mode: UnicastOnly, Family: FamilySAID}
	CmdSetCurChn     = Command{TID: 0x51, Name: "setcurchn", ReqSize: 3, Family: FamilySAID}
	CmdReadI2CCfg    = Command{TID: 0x56, Name: "readi2ccfg", RespSize: 1, Mode: UnicastOnly, Family: FamilySAID}
	CmdSetI2CCfg     = Command{TID: 0x57, Name: "seti2ccfg", ReqSize: 1, Family: FamilySAID}
	CmdReadOTP       = Command{TID: 0x58, Name: "readotp", ReqSize: 1, RespSize: 8, Mode: UnicastOnly}
	CmdSetOTP        = Command{TID: 0x59, Name: "setotp", ReqSize: 8}
	CmdSetTestData   = Command{TID: 0x5B, Name: "settestdata", ReqSize: 2}
	CmdSetTestPW     = Command{TID: 0x5F, Name: "settestpw", ReqSize: 6}
)

// Commands lists the catalog in telegram id order.
var Commands = []Command{
	CmdReset, CmdClrError, CmdInitBidir, CmdInitLoop, CmdGoSleep, CmdGoActive,
	CmdGoDeepSleep, CmdIdentify, CmdReadMult, CmdSetMult, CmdSync, CmdIdle,
	CmdFoundry, CmdCust, CmdBurn, CmdI2CRead, CmdI2CWrite, CmdReadLast,
	CmdClrErrorSR, CmdGoSleepSR, CmdGoActiveSR, CmdGoDeepSleepSR,
	CmdReadStat, CmdReadTempStat, CmdReadComSt, CmdReadLEDSt, CmdReadTemp,
	CmdReadSetup, CmdSetSetup, CmdReadPWM, CmdReadPWMChn, CmdSetPWM,
	CmdSetPWMChn, CmdReadCurChn, CmdSetCurChn, CmdReadI2CCfg, CmdSetI2CCfg,
	CmdReadOTP, CmdSetOTP, CmdSetTestData, CmdSetTestPW,
}

// Lookup returns the commands sharing tid (two for the per-family PWM
// telegrams, none for reserved or unassigned ids).
func Lookup(tid uint8) []Command {
	var out []Command
	for _, c := range Commands {
		if c.TID == tid {
			out = append(out, c)
		}
	}
	return out
}

// Name returns the command name for tid, joining per-family variants.
func Name(tid uint8) string {
	cmds := Lookup(tid)
	switch len(cmds) {
	case 0:
		return fmt.Sprintf("tid%02X", tid)
	case 1:
		return cmds[0].Name
	default:
		return cmds[0].Name + "/" + cmds[1].Name
	}
}
