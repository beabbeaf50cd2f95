package simulator

import "osp-go-host/internal/telegram"

// Device is a register-addressed I2C target, like an EEPROM.
type Device struct {
	regs []byte
}

// Register returns the value of register r.
func (d *Device) Register(r uint8) byte { return d.regs[r] }

// Device returns the I2C device daddr7 behind node index, or nil.
func (c *Chain) Device(index int, daddr7 uint8) *Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nodes[index].devices[daddr7]
}

func (n *node) startI2C(c *Chain, daddr7 uint8) *Device {
	n.i2cBusy = c.i2cBusy
	n.i2ccfg.Flags &^= telegram.I2CNack
	dev := n.devices[daddr7]
	if dev == nil {
		n.i2ccfg.Flags |= telegram.I2CNack
	}
	return dev
}

// i2cRead fills the READLAST buffer right aligned.
func (n *node) i2cRead(c *Chain, req telegram.I2CRequest) {
	n.last = [telegram.I2CMaxRead]byte{}
	dev := n.startI2C(c, req.Device)
	if dev == nil {
		return
	}
	off := telegram.I2CMaxRead - req.Count
	for i := 0; i < req.Count; i++ {
		n.last[off+i] = dev.regs[(int(req.Register)+i)%len(dev.regs)]
	}
}

func (n *node) i2cWrite(c *Chain, req telegram.I2CRequest) {
	dev := n.startI2C(c, req.Device)
	if dev == nil {
		return
	}
	for i, b := range req.Data {
		dev.regs[(int(req.Register)+i)%len(dev.regs)] = b
	}
}
