package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"osp-go-host/internal/telegram"
)

const (
	i2cPollBudget   = 10
	i2cPollInterval = time.Millisecond

	// I2C device addresses probed by I2CScan; the rest are reserved.
	i2cScanFirst = 0x08
	i2cScanLast  = 0x77
)

// i2cPowerChannel feeds the I2C pull-ups on SAID boards with a bridge.
const i2cPowerChannel = 2

// checkBridge verifies that addr is a SAID with the I2C bridge enabled in
// OTP before anything touches the I2C bus.
func (c *Controller) checkBridge(ctx context.Context, addr telegram.Address) error {
	id, err := c.client.Identify(ctx, addr)
	if err != nil {
		return err
	}
	if !id.IsSAID() {
		return fmt.Errorf("%s identifies as %s: %w", addr, id, ErrWrongDevice)
	}
	on, err := c.otpBit(ctx, addr, OTPRowConfig, otpI2CBridgeEn)
	if err != nil {
		return err
	}
	if !on {
		return fmt.Errorf("%s: %w", addr, ErrNoI2CBridge)
	}
	return nil
}

// waitI2C polls the bridge until the transaction finishes.
func (c *Controller) waitI2C(ctx context.Context, addr telegram.Address) error {
	for i := 0; i < i2cPollBudget; i++ {
		cfg, err := c.client.ReadI2CCfg(ctx, addr)
		if err != nil {
			return err
		}
		if !cfg.Flags.Has(telegram.I2CBusy) {
			if cfg.Flags.Has(telegram.I2CNack) {
				return fmt.Errorf("%s: %w", addr, ErrI2CNack)
			}
			return nil
		}
		c.sleep(i2cPollInterval)
	}
	return fmt.Errorf("%s after %d polls: %w", addr, i2cPollBudget, ErrI2CTimeout)
}

func (c *Controller) emitI2C(ev I2CEvent, err error) {
	ev.Error = errText(err)
	c.events.Emit(Event{Type: EventI2C, Data: ev})
}

// I2CPower powers the I2C bus of a SAID by driving channel 2.
func (c *Controller) I2CPower(ctx context.Context, addr telegram.Address) error {
	c.procMu.Lock()
	defer c.procMu.Unlock()

	err := c.checkBridge(ctx, addr)
	if err == nil {
		cur := telegram.Current{Flags: 0, Red: 4, Green: 4, Blue: 4}
		err = c.client.SetCurChn(ctx, addr, i2cPowerChannel, cur)
	}
	c.emitI2C(I2CEvent{Addr: addr, Op: "power"}, err)
	return err
}

// I2CWrite writes data to register raddr of the I2C device daddr7 behind
// the SAID at addr.
func (c *Controller) I2CWrite(ctx context.Context, addr telegram.Address, daddr7, raddr uint8, data []byte) error {
	c.procMu.Lock()
	defer c.procMu.Unlock()

	err := c.i2cWrite(ctx, addr, daddr7, raddr, data)
	c.emitI2C(I2CEvent{Addr: addr, Op: "write", Device: daddr7, Register: raddr, Data: data}, err)
	return err
}

func (c *Controller) i2cWrite(ctx context.Context, addr telegram.Address, daddr7, raddr uint8, data []byte) error {
	if err := c.checkBridge(ctx, addr); err != nil {
		return err
	}
	if err := c.client.I2CWrite(ctx, addr, daddr7, raddr, data); err != nil {
		return err
	}
	return c.waitI2C(ctx, addr)
}

// I2CRead reads count (1..8) bytes from register raddr of the I2C device
// daddr7 behind the SAID at addr.
func (c *Controller) I2CRead(ctx context.Context, addr telegram.Address, daddr7, raddr uint8, count int) ([]byte, error) {
	c.procMu.Lock()
	defer c.procMu.Unlock()

	data, err := c.i2cRead(ctx, addr, daddr7, raddr, count)
	c.emitI2C(I2CEvent{Addr: addr, Op: "read", Device: daddr7, Register: raddr, Data: data}, err)
	return data, err
}

func (c *Controller) i2cRead(ctx context.Context, addr telegram.Address, daddr7, raddr uint8, count int) ([]byte, error) {
	if err := c.checkBridge(ctx, addr); err != nil {
		return nil, err
	}
	return c.readAfterCheck(ctx, addr, daddr7, raddr, count)
}

func (c *Controller) readAfterCheck(ctx context.Context, addr telegram.Address, daddr7, raddr uint8, count int) ([]byte, error) {
	if err := c.client.I2CRead(ctx, addr, daddr7, raddr, count); err != nil {
		return nil, err
	}
	if err := c.waitI2C(ctx, addr); err != nil {
		return nil, err
	}
	return c.client.ReadLast(ctx, addr, count)
}

// I2CScan probes every non-reserved 7-bit device address with a one byte
// read of register 0 and returns the devices that acknowledged.
func (c *Controller) I2CScan(ctx context.Context, addr telegram.Address) ([]uint8, error) {
	c.procMu.Lock()
	defer c.procMu.Unlock()

	found, err := c.i2cScan(ctx, addr)
	c.emitI2C(I2CEvent{Addr: addr, Op: "scan", Data: found}, err)
	return found, err
}

func (c *Controller) i2cScan(ctx context.Context, addr telegram.Address) ([]uint8, error) {
	if err := c.checkBridge(ctx, addr); err != nil {
		return nil, err
	}
	var found []uint8
	err := c.muted(func() error {
		for d := uint8(i2cScanFirst); d <= i2cScanLast; d++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, err := c.readAfterCheck(ctx, addr, d, 0x00, 1)
			switch {
			case err == nil:
				found = append(found, d)
			case errors.Is(err, ErrI2CNack), errors.Is(err, ErrI2CTimeout):
			default:
				return err
			}
		}
		return nil
	})
	return found, err
}
