package osp

import (
	"context"
	"fmt"

	"osp-go-host/internal/telegram"
)

// noArgs encodes a zero-payload request.
func noArgs(enc func(telegram.Address) (telegram.Frame, error), addr telegram.Address) func() (telegram.Frame, error) {
	return func() (telegram.Frame, error) { return enc(addr) }
}

// --- state commands ---

func (c *Client) Reset(ctx context.Context, addr telegram.Address) error {
	return c.send(ctx, telegram.CmdReset, addr, nil, noArgs(telegram.EncodeReset, addr))
}

func (c *Client) ClrError(ctx context.Context, addr telegram.Address) error {
	return c.send(ctx, telegram.CmdClrError, addr, nil, noArgs(telegram.EncodeClrError, addr))
}

// InitBidir assigns addresses starting at addr with responses travelling
// back along the chain. The result carries the address of the last node.
func (c *Client) InitBidir(ctx context.Context, addr telegram.Address) (telegram.InitResult, error) {
	return do(c, ctx, telegram.CmdInitBidir, addr, nil, noArgs(telegram.EncodeInitBidir, addr), telegram.DecodeInitBidir)
}

// InitLoop is InitBidir for a chain whose last node loops back to the host.
func (c *Client) InitLoop(ctx context.Context, addr telegram.Address) (telegram.InitResult, error) {
	return do(c, ctx, telegram.CmdInitLoop, addr, nil, noArgs(telegram.EncodeInitLoop, addr), telegram.DecodeInitLoop)
}

func (c *Client) GoSleep(ctx context.Context, addr telegram.Address) error {
	return c.send(ctx, telegram.CmdGoSleep, addr, nil, noArgs(telegram.EncodeGoSleep, addr))
}

func (c *Client) GoActive(ctx context.Context, addr telegram.Address) error {
	return c.send(ctx, telegram.CmdGoActive, addr, nil, noArgs(telegram.EncodeGoActive, addr))
}

func (c *Client) GoDeepSleep(ctx context.Context, addr telegram.Address) error {
	return c.send(ctx, telegram.CmdGoDeepSleep, addr, nil, noArgs(telegram.EncodeGoDeepSleep, addr))
}

func (c *Client) ClrErrorSR(ctx context.Context, addr telegram.Address) (telegram.TempStat, error) {
	return do(c, ctx, telegram.CmdClrErrorSR, addr, nil, noArgs(telegram.EncodeClrErrorSR, addr), telegram.DecodeClrErrorSR)
}

func (c *Client) GoSleepSR(ctx context.Context, addr telegram.Address) (telegram.TempStat, error) {
	return do(c, ctx, telegram.CmdGoSleepSR, addr, nil, noArgs(telegram.EncodeGoSleepSR, addr), telegram.DecodeGoSleepSR)
}

func (c *Client) GoActiveSR(ctx context.Context, addr telegram.Address) (telegram.TempStat, error) {
	return do(c, ctx, telegram.CmdGoActiveSR, addr, nil, noArgs(telegram.EncodeGoActiveSR, addr), telegram.DecodeGoActiveSR)
}

func (c *Client) GoDeepSleepSR(ctx context.Context, addr telegram.Address) (telegram.TempStat, error) {
	return do(c, ctx, telegram.CmdGoDeepSleepSR, addr, nil, noArgs(telegram.EncodeGoDeepSleepSR, addr), telegram.DecodeGoDeepSleepSR)
}

func (c *Client) Identify(ctx context.Context, addr telegram.Address) (telegram.Identity, error) {
	return do(c, ctx, telegram.CmdIdentify, addr, nil, noArgs(telegram.EncodeIdentify, addr), telegram.DecodeIdentify)
}

func (c *Client) ReadMult(ctx context.Context, addr telegram.Address) (uint16, error) {
	return do(c, ctx, telegram.CmdReadMult, addr, nil, noArgs(telegram.EncodeReadMult, addr), telegram.DecodeReadMult)
}

// SetMult makes addr a member of the groups in mask (bit n is group n).
func (c *Client) SetMult(ctx context.Context, addr telegram.Address, groups uint16) error {
	return c.send(ctx, telegram.CmdSetMult, addr, []any{"groups", groups}, func() (telegram.Frame, error) {
		return telegram.EncodeSetMult(addr, groups)
	})
}

func (c *Client) Sync(ctx context.Context, addr telegram.Address) error {
	return c.send(ctx, telegram.CmdSync, addr, nil, noArgs(telegram.EncodeSync, addr))
}

func (c *Client) Idle(ctx context.Context, addr telegram.Address) error {
	return c.send(ctx, telegram.CmdIdle, addr, nil, noArgs(telegram.EncodeIdle, addr))
}

func (c *Client) Foundry(ctx context.Context, addr telegram.Address) error {
	return c.send(ctx, telegram.CmdFoundry, addr, nil, noArgs(telegram.EncodeFoundry, addr))
}

func (c *Client) Cust(ctx context.Context, addr telegram.Address) error {
	return c.send(ctx, telegram.CmdCust, addr, nil, noArgs(telegram.EncodeCust, addr))
}

func (c *Client) Burn(ctx context.Context, addr telegram.Address) error {
	return c.send(ctx, telegram.CmdBurn, addr, nil, noArgs(telegram.EncodeBurn, addr))
}

// --- I2C bridge (SAID) ---

// I2CRead starts a read of count bytes; fetch them with ReadLast once the
// bridge is no longer busy.
func (c *Client) I2CRead(ctx context.Context, addr telegram.Address, daddr7, raddr uint8, count int) error {
	args := []any{"daddr7", daddr7, "raddr", raddr, "count", count}
	return c.send(ctx, telegram.CmdI2CRead, addr, args, func() (telegram.Frame, error) {
		return telegram.EncodeI2CRead(addr, daddr7, raddr, count)
	})
}

func (c *Client) I2CWrite(ctx context.Context, addr telegram.Address, daddr7, raddr uint8, data []byte) error {
	args := []any{"daddr7", daddr7, "raddr", raddr, "data", telegram.Hex(data)}
	return c.send(ctx, telegram.CmdI2CWrite, addr, args, func() (telegram.Frame, error) {
		return telegram.EncodeI2CWrite(addr, daddr7, raddr, data)
	})
}

// ReadLast returns the last n bytes captured by the previous I2C read.
func (c *Client) ReadLast(ctx context.Context, addr telegram.Address, n int) ([]byte, error) {
	return do(c, ctx, telegram.CmdReadLast, addr, []any{"n", n}, func() (telegram.Frame, error) {
		if n < 1 || n > telegram.I2CMaxRead {
			return telegram.Frame{}, fmt.Errorf("readlast: size %d: %w", n, telegram.ErrArgument)
		}
		return telegram.EncodeReadLast(addr)
	}, func(f *telegram.Frame) ([]byte, error) {
		return telegram.DecodeReadLast(f, n)
	})
}

// --- status and configuration ---

func (c *Client) ReadStat(ctx context.Context, addr telegram.Address) (telegram.Status, error) {
	return do(c, ctx, telegram.CmdReadStat, addr, nil, noArgs(telegram.EncodeReadStat, addr), telegram.DecodeReadStat)
}

func (c *Client) ReadTempStat(ctx context.Context, addr telegram.Address) (telegram.TempStat, error) {
	return do(c, ctx, telegram.CmdReadTempStat, addr, nil, noArgs(telegram.EncodeReadTempStat, addr), telegram.DecodeReadTempStat)
}

func (c *Client) ReadComSt(ctx context.Context, addr telegram.Address) (telegram.ComStatus, error) {
	return do(c, ctx, telegram.CmdReadComSt, addr, nil, noArgs(telegram.EncodeReadComSt, addr), telegram.DecodeReadComSt)
}

func (c *Client) ReadLEDSt(ctx context.Context, addr telegram.Address) (telegram.LEDStatus, error) {
	return do(c, ctx, telegram.CmdReadLEDSt, addr, nil, noArgs(telegram.EncodeReadLEDSt, addr), telegram.DecodeReadLEDSt)
}

// ReadTemp returns the raw temperature reading; see the pretty package for
// the per-family conversion to degrees.
func (c *Client) ReadTemp(ctx context.Context, addr telegram.Address) (uint8, error) {
	return do(c, ctx, telegram.CmdReadTemp, addr, nil, noArgs(telegram.EncodeReadTemp, addr), telegram.DecodeReadTemp)
}

func (c *Client) ReadSetup(ctx context.Context, addr telegram.Address) (telegram.Setup, error) {
	return do(c, ctx, telegram.CmdReadSetup, addr, nil, noArgs(telegram.EncodeReadSetup, addr), telegram.DecodeReadSetup)
}

func (c *Client) SetSetup(ctx context.Context, addr telegram.Address, flags telegram.Setup) error {
	return c.send(ctx, telegram.CmdSetSetup, addr, []any{"flags", uint8(flags)}, func() (telegram.Frame, error) {
		return telegram.EncodeSetSetup(addr, flags)
	})
}

// ReadPWM reads the PWM setting of an RGBI node.
func (c *Client) ReadPWM(ctx context.Context, addr telegram.Address) (telegram.PWM, error) {
	return do(c, ctx, telegram.CmdReadPWM, addr, nil, noArgs(telegram.EncodeReadPWM, addr), telegram.DecodeReadPWM)
}

// SetPWM configures an RGBI node.
func (c *Client) SetPWM(ctx context.Context, addr telegram.Address, p telegram.PWM) error {
	args := []any{"red", p.Red, "green", p.Green, "blue", p.Blue, "daytimes", p.Daytimes}
	return c.send(ctx, telegram.CmdSetPWM, addr, args, func() (telegram.Frame, error) {
		return telegram.EncodeSetPWM(addr, p)
	})
}

// ReadPWMChn reads the PWM setting of channel chn of a SAID.
func (c *Client) ReadPWMChn(ctx context.Context, addr telegram.Address, chn uint8) (telegram.ChannelPWM, error) {
	return do(c, ctx, telegram.CmdReadPWMChn, addr, []any{"chn", chn}, func() (telegram.Frame, error) {
		return telegram.EncodeReadPWMChn(addr, chn)
	}, telegram.DecodeReadPWMChn)
}

func (c *Client) SetPWMChn(ctx context.Context, addr telegram.Address, chn uint8, p telegram.ChannelPWM) error {
	args := []any{"chn", chn, "red", p.Red, "green", p.Green, "blue", p.Blue}
	return c.send(ctx, telegram.CmdSetPWMChn, addr, args, func() (telegram.Frame, error) {
		return telegram.EncodeSetPWMChn(addr, chn, p)
	})
}

func (c *Client) ReadCurChn(ctx context.Context, addr telegram.Address, chn uint8) (telegram.Current, error) {
	return do(c, ctx, telegram.CmdReadCurChn, addr, []any{"chn", chn}, func() (telegram.Frame, error) {
		return telegram.EncodeReadCurChn(addr, chn)
	}, telegram.DecodeReadCurChn)
}

func (c *Client) SetCurChn(ctx context.Context, addr telegram.Address, chn uint8, cur telegram.Current) error {
	args := []any{"chn", chn, "flags", uint8(cur.Flags), "red", cur.Red, "green", cur.Green, "blue", cur.Blue}
	return c.send(ctx, telegram.CmdSetCurChn, addr, args, func() (telegram.Frame, error) {
		return telegram.EncodeSetCurChn(addr, chn, cur)
	})
}

func (c *Client) ReadI2CCfg(ctx context.Context, addr telegram.Address) (telegram.I2CConfig, error) {
	return do(c, ctx, telegram.CmdReadI2CCfg, addr, nil, noArgs(telegram.EncodeReadI2CCfg, addr), telegram.DecodeReadI2CCfg)
}

func (c *Client) SetI2CCfg(ctx context.Context, addr telegram.Address, cfg telegram.I2CConfig) error {
	args := []any{"flags", uint8(cfg.Flags), "speed", cfg.Speed}
	return c.send(ctx, telegram.CmdSetI2CCfg, addr, args, func() (telegram.Frame, error) {
		return telegram.EncodeSetI2CCfg(addr, cfg)
	})
}

// --- OTP and test registers ---

// ReadOTP returns the 8 OTP mirror bytes starting at row, in row order.
func (c *Client) ReadOTP(ctx context.Context, addr telegram.Address, row uint8) ([telegram.OTPRowSize]byte, error) {
	return do(c, ctx, telegram.CmdReadOTP, addr, []any{"row", row}, func() (telegram.Frame, error) {
		return telegram.EncodeReadOTP(addr, row)
	}, telegram.DecodeReadOTP)
}

// SetOTP writes 7 bytes to the OTP mirror. The node ignores it unless a
// valid test password was sent first.
func (c *Client) SetOTP(ctx context.Context, addr telegram.Address, row uint8, data []byte) error {
	args := []any{"row", row, "data", telegram.Hex(data)}
	return c.send(ctx, telegram.CmdSetOTP, addr, args, func() (telegram.Frame, error) {
		return telegram.EncodeSetOTP(addr, row, data)
	})
}

func (c *Client) SetTestData(ctx context.Context, addr telegram.Address, data uint16) error {
	return c.send(ctx, telegram.CmdSetTestData, addr, []any{"data", data}, func() (telegram.Frame, error) {
		return telegram.EncodeSetTestData(addr, data)
	})
}

// SetTestPW authenticates with pw, or revokes with TestPWRevoke. The
// password itself is never logged.
func (c *Client) SetTestPW(ctx context.Context, addr telegram.Address, pw uint64) error {
	return c.send(ctx, telegram.CmdSetTestPW, addr, []any{"pw", passwordLabel(pw)}, func() (telegram.Frame, error) {
		return telegram.EncodeSetTestPW(addr, pw)
	})
}

func passwordLabel(pw uint64) string {
	switch pw {
	case telegram.TestPWRevoke:
		return "revoke"
	case telegram.TestPWUnknown:
		return "unknown"
	default:
		return "set"
	}
}
