package chain

import (
	"context"
	"fmt"
	"time"

	"osp-go-host/internal/telegram"
)

// OTP row 0x0D and 0x0E fields.
const (
	OTPRowConfig = 0x0D
	OTPRowStar   = 0x0E

	otpI2CBridgeEn = 0x01
	otpStarNetEn   = 0x02
	otpSyncPinEn   = 0x04
	otpSPIMode     = 0x08
	otpHaptic      = 0x10
)

// burnWait is how long the node needs to copy the mirror into fuses.
const burnWait = 5 * time.Millisecond

// unlock sends the test password to addr. The returned release revokes it
// with a context detached from ctx's cancellation; it only logs failures.
func (c *Controller) unlock(ctx context.Context, addr telegram.Address) (release func(), err error) {
	pw := c.currentPassword()
	if pw == telegram.TestPWUnknown {
		c.logger.Warn("test password unknown, node will not authenticate", "addr", addr.String())
	}
	if err := c.client.SetTestPW(ctx, addr, pw); err != nil {
		return nil, err
	}
	return func() {
		if err := c.client.SetTestPW(context.WithoutCancel(ctx), addr, telegram.TestPWRevoke); err != nil {
			c.logger.Warn("password revoke failed", "addr", addr.String(), "error", err)
		}
	}, nil
}

func checkCustomerRow(op string, addr telegram.Address, row uint8) error {
	if !addr.IsUnicast() {
		return fmt.Errorf("%s: %s is not unicast: %w", op, addr, telegram.ErrAddress)
	}
	if row < telegram.OTPCustomerMin || row > telegram.OTPCustomerMax {
		return fmt.Errorf("%s: row 0x%02X outside customer area: %w", op, row, telegram.ErrArgument)
	}
	return nil
}

// SetOTP updates the first byte of the OTP mirror row to (b & and) | or,
// rewriting the following 6 bytes unchanged. The password is revoked on
// every exit once it was sent; the first error is returned.
func (c *Controller) SetOTP(ctx context.Context, addr telegram.Address, row, or, and uint8) error {
	if err := checkCustomerRow("setotp", addr, row); err != nil {
		return err
	}
	c.procMu.Lock()
	defer c.procMu.Unlock()

	err := c.setOTP(ctx, addr, row, or, and)
	c.events.Emit(Event{Type: EventOTPWrite, Data: OTPWriteEvent{Addr: addr, Row: row, Or: or, And: and, Error: errText(err)}})
	return err
}

func (c *Controller) setOTP(ctx context.Context, addr telegram.Address, row, or, and uint8) error {
	release, err := c.unlock(ctx, addr)
	if err != nil {
		return err
	}
	defer release()

	buf, err := c.client.ReadOTP(ctx, addr, row)
	if err != nil {
		return err
	}
	buf[0] = buf[0]&and | or
	return c.client.SetOTP(ctx, addr, row, buf[:telegram.OTPWriteSize])
}

// otpBit reads a single bit of the OTP mirror.
func (c *Controller) otpBit(ctx context.Context, addr telegram.Address, row, mask uint8) (bool, error) {
	buf, err := c.client.ReadOTP(ctx, addr, row)
	if err != nil {
		return false, err
	}
	return buf[0]&mask != 0, nil
}

func (c *Controller) setOTPBit(ctx context.Context, addr telegram.Address, row, mask uint8, on bool) error {
	if on {
		return c.SetOTP(ctx, addr, row, mask, 0xFF)
	}
	return c.SetOTP(ctx, addr, row, 0x00, ^mask)
}

// I2CEnable reports whether the I2C bridge of a SAID is enabled in OTP.
func (c *Controller) I2CEnable(ctx context.Context, addr telegram.Address) (bool, error) {
	c.procMu.Lock()
	defer c.procMu.Unlock()
	return c.otpBit(ctx, addr, OTPRowConfig, otpI2CBridgeEn)
}

// SetI2CEnable switches the I2C bridge bit in the OTP mirror. The setting
// is lost at power off unless burned.
func (c *Controller) SetI2CEnable(ctx context.Context, addr telegram.Address, on bool) error {
	return c.setOTPBit(ctx, addr, OTPRowConfig, otpI2CBridgeEn, on)
}

func (c *Controller) SyncPinEnable(ctx context.Context, addr telegram.Address) (bool, error) {
	c.procMu.Lock()
	defer c.procMu.Unlock()
	return c.otpBit(ctx, addr, OTPRowConfig, otpSyncPinEn)
}

func (c *Controller) SetSyncPinEnable(ctx context.Context, addr telegram.Address, on bool) error {
	return c.setOTPBit(ctx, addr, OTPRowConfig, otpSyncPinEn, on)
}

// Burn copies the customer area of the OTP mirror into the fuses. Fuse
// bits can only go from 0 to 1.
func (c *Controller) Burn(ctx context.Context, addr telegram.Address) error {
	if !addr.IsUnicast() {
		return fmt.Errorf("burn: %s is not unicast: %w", addr, telegram.ErrAddress)
	}
	c.procMu.Lock()
	defer c.procMu.Unlock()

	err := c.burn(ctx, addr)
	c.events.Emit(Event{Type: EventBurn, Data: OTPWriteEvent{Addr: addr, Error: errText(err)}})
	return err
}

func (c *Controller) burn(ctx context.Context, addr telegram.Address) error {
	release, err := c.unlock(ctx, addr)
	if err != nil {
		return err
	}
	defer release()

	if err := c.client.Cust(ctx, addr); err != nil {
		return err
	}
	if err := c.client.Burn(ctx, addr); err != nil {
		return err
	}
	c.sleep(burnWait)
	return c.client.Idle(ctx, addr)
}

// OTPImage is the full 32 byte OTP mirror of a node.
type OTPImage [telegram.OTPSize]byte

// OTPDump reads the whole OTP mirror of addr with diagnostic logging muted.
func (c *Controller) OTPDump(ctx context.Context, addr telegram.Address) (OTPImage, error) {
	var img OTPImage
	c.procMu.Lock()
	defer c.procMu.Unlock()

	err := c.muted(func() error {
		for row := 0; row < telegram.OTPSize; row += telegram.OTPRowSize {
			buf, err := c.client.ReadOTP(ctx, addr, uint8(row))
			if err != nil {
				return err
			}
			copy(img[row:], buf[:])
		}
		return nil
	})
	if err != nil {
		return OTPImage{}, err
	}
	return img, nil
}

// Customer returns the customer rows 0x0D..0x1F.
func (img OTPImage) Customer() []byte {
	return img[telegram.OTPCustomerMin:]
}

func (img OTPImage) ChClustering() uint8 { return img[OTPRowConfig] >> 5 }
func (img OTPImage) HapticDriver() bool  { return img[OTPRowConfig]&otpHaptic != 0 }
func (img OTPImage) SPIMode() bool       { return img[OTPRowConfig]&otpSPIMode != 0 }
func (img OTPImage) SyncPinEn() bool     { return img[OTPRowConfig]&otpSyncPinEn != 0 }
func (img OTPImage) StarNetEn() bool     { return img[OTPRowConfig]&otpStarNetEn != 0 }
func (img OTPImage) I2CBridgeEn() bool   { return img[OTPRowConfig]&otpI2CBridgeEn != 0 }
func (img OTPImage) StarStart() bool     { return img[OTPRowStar]&0x80 != 0 }
func (img OTPImage) OTPAddrEn() bool     { return img[OTPRowStar]&0x08 != 0 }

// StarNetOTPAddr is the 3-bit star network address field; the node address
// it selects is the field shifted left by 7.
func (img OTPImage) StarNetOTPAddr() uint8 { return img[OTPRowStar] & 0x07 }

// OTPField is one decoded customer field.
type OTPField struct {
	Name  string `json:"name"`
	Pos   string `json:"pos"`
	Value int    `json:"value"`
}

// Fields lists the customer configuration fields in dump order.
func (img OTPImage) Fields() []OTPField {
	b := func(v bool) int {
		if v {
			return 1
		}
		return 0
	}
	return []OTPField{
		{"CH_CLUSTERING", "0D.7:5", int(img.ChClustering())},
		{"HAPTIC_DRIVER", "0D.4", b(img.HapticDriver())},
		{"SPI_MODE", "0D.3", b(img.SPIMode())},
		{"SYNC_PIN_EN", "0D.2", b(img.SyncPinEn())},
		{"STAR_NET_EN", "0D.1", b(img.StarNetEn())},
		{"I2C_BRIDGE_EN", "0D.0", b(img.I2CBridgeEn())},
		{"STAR_START", "0E.7", b(img.StarStart())},
		{"OTP_ADDR_EN", "0E.3", b(img.OTPAddrEn())},
		{"STAR_NET_OTP_ADDR", "0E.2:0", int(img.StarNetOTPAddr())},
	}
}
