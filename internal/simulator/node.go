package simulator

import "osp-go-host/internal/telegram"

// Simulated node identities.
const (
	IDSAID telegram.Identity = 0x00000040
	IDRGBI telegram.Identity = 0x00000001
)

type node struct {
	family telegram.Family
	id     telegram.Identity

	addr          telegram.Address
	state         telegram.State
	errs          telegram.Status
	loop          bool
	setup         telegram.Setup
	groups        uint16
	temp          uint8
	pwm           telegram.PWM
	chpwm         [telegram.NumChannels]telegram.ChannelPWM
	cur           [telegram.NumChannels]telegram.Current
	testdata      uint16
	authenticated bool
	cust          bool

	otp   [telegram.OTPSize]byte
	fuses [telegram.OTPSize]byte

	i2ccfg  telegram.I2CConfig
	i2cBusy int
	last    [telegram.I2CMaxRead]byte
	devices map[uint8]*Device
}

func newNode(fam telegram.Family) *node {
	n := &node{family: fam, devices: make(map[uint8]*Device)}
	switch fam {
	case telegram.FamilySAID:
		n.id = IDSAID
		n.temp = 0x74 // 25 C
	default:
		n.id = IDRGBI
		n.temp = 0x8E // 27 C
	}
	n.powerOn()
	return n
}

// powerOn restores the power-on state, including the OTP mirror.
func (n *node) powerOn() {
	n.otp = n.fuses
	n.reset()
}

// reset is the RESET telegram: everything except the OTP mirror.
func (n *node) reset() {
	n.addr = telegram.Uninit
	n.state = telegram.StateUninitialized
	n.errs = 0
	n.loop = false
	n.groups = 0
	n.pwm = telegram.PWM{}
	n.chpwm = [telegram.NumChannels]telegram.ChannelPWM{}
	n.cur = [telegram.NumChannels]telegram.Current{}
	n.testdata = 0
	n.authenticated = false
	n.cust = false
	n.i2ccfg = telegram.I2CConfig{Speed: telegram.I2CSpeedDefault}
	n.i2cBusy = 0
	n.last = [telegram.I2CMaxRead]byte{}
	if n.family == telegram.FamilySAID {
		n.setup = telegram.SetupDefaultSAID
	} else {
		n.setup = telegram.SetupDefaultRGBI
	}
}

func (n *node) said() bool { return n.family == telegram.FamilySAID }

func (n *node) bridge() bool {
	return n.said() && n.otp[telegram.OTPCustomerMin]&0x01 != 0
}

func (n *node) status() telegram.Status {
	s := n.errs.WithState(n.state)
	if n.loop && !n.said() {
		s |= telegram.StatDirLoop
	}
	if n.authenticated && n.said() {
		s |= telegram.StatTestMode
	}
	return s
}

func (n *node) comst() telegram.ComStatus {
	c := telegram.ComStatus(telegram.LinkMCU) | telegram.ComStatus(telegram.LinkLVDS)<<2
	if n.loop {
		c |= telegram.ComDirLoop
	}
	return c
}

// accepts reports whether a telegram to addr is for this node.
func (n *node) accepts(addr telegram.Address) bool {
	switch {
	case addr.IsBroadcast():
		return true
	case addr.IsGroup():
		return n.groups&(1<<(addr-telegram.GroupMin)) != 0
	default:
		return addr == n.addr
	}
}

func (n *node) respond(f *telegram.Frame, payload ...byte) ([]byte, error) {
	if !f.Addr().IsUnicast() {
		return nil, nil
	}
	r, err := telegram.Build(n.addr, f.TID(), payload)
	if err != nil {
		return nil, err
	}
	return r.Bytes(), nil
}

func (n *node) tempStat(f *telegram.Frame) ([]byte, error) {
	return n.respond(f, n.temp, uint8(n.status()))
}

func (n *node) goState(st telegram.State) {
	if n.state != telegram.StateUninitialized {
		n.state = st
	}
}

// exec runs one telegram. Telegrams with the wrong payload size for the
// node's family are ignored, like on the real part.
func (n *node) exec(c *Chain, f *telegram.Frame) ([]byte, error) {
	switch f.TID() {
	case telegram.CmdReset.TID:
		n.reset()
	case telegram.CmdClrError.TID:
		n.errs = 0
	case telegram.CmdGoSleep.TID:
		n.goState(telegram.StateSleep)
	case telegram.CmdGoActive.TID:
		n.goState(telegram.StateActive)
	case telegram.CmdGoDeepSleep.TID:
		n.goState(telegram.StateDeepSleep)
	case telegram.CmdClrErrorSR.TID:
		n.errs = 0
		return n.tempStat(f)
	case telegram.CmdGoSleepSR.TID:
		n.goState(telegram.StateSleep)
		return n.tempStat(f)
	case telegram.CmdGoActiveSR.TID:
		n.goState(telegram.StateActive)
		return n.tempStat(f)
	case telegram.CmdGoDeepSleepSR.TID:
		n.goState(telegram.StateDeepSleep)
		return n.tempStat(f)
	case telegram.CmdIdentify.TID:
		id := uint32(n.id)
		return n.respond(f, uint8(id>>24), uint8(id>>16), uint8(id>>8), uint8(id))
	case telegram.CmdReadMult.TID:
		return n.respond(f, uint8(n.groups>>8), uint8(n.groups))
	case telegram.CmdSetMult.TID:
		if v, err := telegram.ParseSetMult(f); err == nil {
			n.groups = v & 0x7FFF
		}
	case telegram.CmdSync.TID, telegram.CmdIdle.TID:
		n.cust = false
	case telegram.CmdFoundry.TID:
		n.cust = false
	case telegram.CmdCust.TID:
		n.cust = true
	case telegram.CmdBurn.TID:
		if n.authenticated && n.cust {
			for i := telegram.OTPCustomerMin; i < telegram.OTPSize; i++ {
				n.fuses[i] |= n.otp[i]
			}
		}
	case telegram.CmdI2CRead.TID:
		if req, err := telegram.ParseI2CRead(f); err == nil && n.bridge() {
			n.i2cRead(c, req)
		}
	case telegram.CmdI2CWrite.TID:
		if req, err := telegram.ParseI2CWrite(f); err == nil && n.bridge() {
			n.i2cWrite(c, req)
		}
	case telegram.CmdReadLast.TID:
		if !n.said() {
			return nil, nil
		}
		return n.respond(f, n.last[:]...)
	case telegram.CmdReadStat.TID:
		return n.respond(f, uint8(n.status()))
	case telegram.CmdReadTempStat.TID:
		return n.tempStat(f)
	case telegram.CmdReadComSt.TID:
		return n.respond(f, uint8(n.comst()))
	case telegram.CmdReadLEDSt.TID:
		return n.respond(f, 0)
	case telegram.CmdReadTemp.TID:
		return n.respond(f, n.temp)
	case telegram.CmdReadSetup.TID:
		return n.respond(f, uint8(n.setup))
	case telegram.CmdSetSetup.TID:
		if v, err := telegram.ParseSetSetup(f); err == nil {
			n.setup = v
		}
	case telegram.CmdReadPWM.TID:
		return n.readPWM(f)
	case telegram.CmdSetPWM.TID:
		n.setPWM(f)
	case telegram.CmdReadCurChn.TID:
		chn, err := telegram.ParseReadCurChn(f)
		if err != nil || !n.said() || chn >= telegram.NumChannels {
			return nil, nil
		}
		cur := n.cur[chn]
		return n.respond(f, uint8(cur.Flags)<<4|cur.Red, cur.Green<<4|cur.Blue)
	case telegram.CmdSetCurChn.TID:
		chn, cur, err := telegram.ParseSetCurChn(f)
		if err == nil && n.said() && chn < telegram.NumChannels {
			n.cur[chn] = cur
		}
	case telegram.CmdReadI2CCfg.TID:
		if !n.said() {
			return nil, nil
		}
		flags := n.i2ccfg.Flags
		if n.i2cBusy > 0 {
			n.i2cBusy--
			flags |= telegram.I2CBusy
		}
		return n.respond(f, uint8(flags)<<4|n.i2ccfg.Speed)
	case telegram.CmdSetI2CCfg.TID:
		if cfg, err := telegram.ParseSetI2CCfg(f); err == nil && n.said() {
			n.i2ccfg = cfg
		}
	case telegram.CmdReadOTP.TID:
		row, err := telegram.ParseReadOTP(f)
		if err != nil {
			return nil, nil
		}
		var buf [telegram.OTPRowSize]byte
		for i := range buf {
			if a := int(row) + i; a < telegram.OTPSize {
				buf[i] = n.otp[a]
			}
		}
		r, err := telegram.EncodeReadOTPResponse(n.addr, buf)
		if err != nil || !f.Addr().IsUnicast() {
			return nil, err
		}
		return r.Bytes(), nil
	case telegram.CmdSetOTP.TID:
		row, data, err := telegram.ParseSetOTP(f)
		if err != nil || !n.authenticated {
			return nil, nil
		}
		for i, b := range data {
			if a := int(row) + i; a < telegram.OTPSize {
				n.otp[a] = b
			}
		}
	case telegram.CmdSetTestData.TID:
		if v, err := telegram.ParseSetTestData(f); err == nil {
			n.testdata = v
		}
	case telegram.CmdSetTestPW.TID:
		if pw, err := telegram.ParseSetTestPW(f); err == nil {
			n.authenticated = pw == c.password
		}
	}
	return nil, nil
}

func (n *node) readPWM(f *telegram.Frame) ([]byte, error) {
	if n.said() {
		chn, err := telegram.ParseReadPWMChn(f)
		if err != nil || chn >= telegram.NumChannels {
			return nil, nil
		}
		p := n.chpwm[chn]
		return n.respond(f, uint8(p.Red>>8), uint8(p.Red), uint8(p.Green>>8), uint8(p.Green), uint8(p.Blue>>8), uint8(p.Blue))
	}
	if f.PSI() != 0 {
		return nil, nil
	}
	p := n.pwm
	day := func(b uint8) uint8 { return (p.Daytimes >> b & 1) << 7 }
	return n.respond(f,
		day(2)|uint8(p.Red>>8), uint8(p.Red),
		day(1)|uint8(p.Green>>8), uint8(p.Green),
		day(0)|uint8(p.Blue>>8), uint8(p.Blue))
}

func (n *node) setPWM(f *telegram.Frame) {
	if n.said() {
		if chn, p, err := telegram.ParseSetPWMChn(f); err == nil && chn < telegram.NumChannels {
			n.chpwm[chn] = p
		}
		return
	}
	if p, err := telegram.ParseSetPWM(f); err == nil {
		n.pwm = p
	}
}
