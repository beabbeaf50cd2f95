// Package simulator is an in-memory OSP chain. It implements osp.Transport
// by parsing each telegram, executing it on the simulated nodes and
// building the response a real chain would send.
package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"osp-go-host/internal/osp"
	"osp-go-host/internal/telegram"
)

// Wiring is how the simulated chain is cabled.
type Wiring uint8

const (
	// WiringLoop: the last node is cabled back to the host.
	WiringLoop Wiring = iota
	// WiringBidir: the chain ends in a terminator; answers come back along it.
	WiringBidir
	// WiringNone: nothing clocks back, e.g. an unplugged chain.
	WiringNone
)

func (w Wiring) String() string {
	switch w {
	case WiringLoop:
		return "loop"
	case WiringBidir:
		return "bidir"
	default:
		return "none"
	}
}

// ParseWiring accepts "loop", "bidir" and "none".
func ParseWiring(s string) (Wiring, error) {
	switch s {
	case "loop":
		return WiringLoop, nil
	case "bidir":
		return WiringBidir, nil
	case "none":
		return WiringNone, nil
	}
	return 0, fmt.Errorf("unknown wiring %q", s)
}

// DefaultPassword is the test password simulated nodes accept unless
// WithPassword says otherwise.
const DefaultPassword uint64 = 0x0000_5A5A_C3C3

// Chain is a simulated daisy chain.
type Chain struct {
	mu       sync.Mutex
	nodes    []*node
	wiring   Wiring
	dir      osp.Direction
	password uint64
	i2cBusy  int
	garbled  int
	log      []Record
	logger   *slog.Logger
}

// Record is one telegram seen by the chain.
type Record struct {
	Tx  []byte
	Rx  []byte
	Err error
}

// Option configures a Chain.
type Option func(*Chain)

// WithSAID appends n SAID nodes.
func WithSAID(n int) Option {
	return func(c *Chain) {
		for i := 0; i < n; i++ {
			c.nodes = append(c.nodes, newNode(telegram.FamilySAID))
		}
	}
}

// WithRGBI appends n RGBI nodes.
func WithRGBI(n int) Option {
	return func(c *Chain) {
		for i := 0; i < n; i++ {
			c.nodes = append(c.nodes, newNode(telegram.FamilyRGBI))
		}
	}
}

func WithWiring(w Wiring) Option {
	return func(c *Chain) { c.wiring = w }
}

// WithPassword sets the test password of every node.
func WithPassword(pw uint64) Option {
	return func(c *Chain) { c.password = pw }
}

// WithI2CBusy makes every bridged transaction report busy for n polls.
func WithI2CBusy(n int) Option {
	return func(c *Chain) { c.i2cBusy = n }
}

// WithI2CDevice attaches an I2C device with the given register contents to
// the bus of node index (0 based). The node must be a SAID; its I2C bridge
// is enabled in OTP.
func WithI2CDevice(index int, daddr7 uint8, regs []byte) Option {
	return func(c *Chain) {
		if index < 0 || index >= len(c.nodes) {
			return
		}
		n := c.nodes[index]
		if n.family != telegram.FamilySAID {
			return
		}
		n.fuses[telegram.OTPCustomerMin] |= 0x01
		n.otp = n.fuses
		dev := &Device{regs: make([]byte, 256)}
		copy(dev.regs, regs)
		n.devices[daddr7] = dev
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Chain) { c.logger = logger }
}

// New builds a chain. Without node options it holds a single SAID.
func New(opts ...Option) *Chain {
	c := &Chain{password: DefaultPassword, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	if len(c.nodes) == 0 {
		c.nodes = append(c.nodes, newNode(telegram.FamilySAID))
	}
	c.logger = c.logger.With("component", "simulator")
	return c
}

// Len returns the number of nodes.
func (c *Chain) Len() int { return len(c.nodes) }

// Garbled counts telegrams lost because an upstream node was left
// authenticated.
func (c *Chain) Garbled() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.garbled
}

// Authenticated reports whether node index currently accepts OTP writes.
func (c *Chain) Authenticated(index int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nodes[index].authenticated
}

// OTP returns the OTP mirror of node index.
func (c *Chain) OTP(index int) [telegram.OTPSize]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nodes[index].otp
}

// Fuses returns the burned OTP of node index.
func (c *Chain) Fuses(index int) [telegram.OTPSize]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nodes[index].fuses
}

// Direction returns the direction last selected by the host.
func (c *Chain) Direction() osp.Direction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dir
}

// Records returns the telegrams seen so far.
func (c *Chain) Records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Record(nil), c.log...)
}

// PowerCycle restores every node to its power-on state, reloading the OTP
// mirror from the fuses.
func (c *Chain) PowerCycle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range c.nodes {
		n.powerOn()
	}
}

// SetDirection implements osp.Transport.
func (c *Chain) SetDirection(d osp.Direction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dir = d
	return nil
}

// Transmit implements osp.Transport.
func (c *Chain) Transmit(ctx context.Context, tx []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.deliver(tx)
	c.record(tx, nil, err)
	return err
}

// TransmitReceive implements osp.Transport.
func (c *Chain) TransmitReceive(ctx context.Context, tx []byte, n int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rx, err := c.deliver(tx)
	if err == nil && (rx == nil || !c.clocks()) {
		err = osp.ErrNoClock
		rx = nil
	}
	c.record(tx, rx, err)
	return rx, err
}

func (c *Chain) record(tx, rx []byte, err error) {
	c.log = append(c.log, Record{
		Tx:  append([]byte(nil), tx...),
		Rx:  append([]byte(nil), rx...),
		Err: err,
	})
}

// clocks reports whether responses reach the host with the current wiring
// and direction.
func (c *Chain) clocks() bool {
	switch c.wiring {
	case WiringLoop:
		return c.dir == osp.DirLoop
	case WiringBidir:
		return c.dir == osp.DirBidir
	default:
		return false
	}
}

// deliver passes the telegram down the chain and returns the response of
// the addressed node, if any.
func (c *Chain) deliver(tx []byte) ([]byte, error) {
	f, err := telegram.Parse(tx)
	if err != nil {
		c.logger.Debug("dropping malformed telegram", "tx", fmt.Sprintf("% X", tx), "error", err)
		return nil, nil
	}

	switch f.TID() {
	case telegram.CmdInitBidir.TID, telegram.CmdInitLoop.TID:
		return c.initChain(f)
	}

	var resp []byte
	for i, n := range c.nodes {
		if n.accepts(f.Addr()) {
			r, err := n.exec(c, f)
			if err != nil {
				return nil, err
			}
			if r != nil {
				resp = r
			}
		}
		if n.authenticated && f.Addr() != n.addr && i < len(c.nodes)-1 {
			// Downstream nodes receive a corrupted copy.
			c.garbled++
			return resp, nil
		}
	}
	return resp, nil
}

// initChain assigns consecutive addresses starting at the telegram's
// address. The last node answers.
func (c *Chain) initChain(f *telegram.Frame) ([]byte, error) {
	loop := f.TID() == telegram.CmdInitLoop.TID
	if f.PSI() != 0 {
		return nil, nil
	}
	addr := f.Addr()
	var last *node
	for _, n := range c.nodes {
		if !addr.IsUnicast() {
			break
		}
		n.addr = addr
		n.state = telegram.StateSleep
		n.loop = loop
		last = n
		addr++
	}
	if last == nil {
		return nil, nil
	}
	resp, err := telegram.Build(last.addr, f.TID(), []byte{last.temp, uint8(last.status())})
	if err != nil {
		return nil, err
	}
	return resp.Bytes(), nil
}
