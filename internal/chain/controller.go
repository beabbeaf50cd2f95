// Package chain runs the multi-telegram procedures of an OSP chain: discovery,
// the password-guarded OTP write and I2C bridging through a SAID.
package chain

import (
	"log/slog"
	"sync"
	"time"

	"osp-go-host/internal/osp"
	"osp-go-host/internal/telegram"
)

// Controller owns the process-wide chain state: the test password and the
// result of the last discovery. Procedures are serialized so a privileged
// sequence is never interleaved with other controller traffic.
type Controller struct {
	client *osp.Client
	logger *slog.Logger
	events *EventBus

	procMu sync.Mutex

	mu         sync.RWMutex
	password   uint64
	last       telegram.Address
	dir        osp.Direction
	discovered bool

	sleep func(time.Duration)
}

// Option configures a Controller.
type Option func(*Controller)

// WithPassword sets the initial test password.
func WithPassword(pw uint64) Option {
	return func(c *Controller) { c.password = pw }
}

// WithSleep replaces the wait used for settle and poll delays.
func WithSleep(fn func(time.Duration)) Option {
	return func(c *Controller) { c.sleep = fn }
}

// NewController wraps client. Exchanges made by the client are re-published
// on the controller's event bus as EventExchange.
func NewController(client *osp.Client, logger *slog.Logger, opts ...Option) *Controller {
	c := &Controller{
		client:   client,
		logger:   logger.With("component", "chain"),
		password: telegram.TestPWUnknown,
		sleep:    time.Sleep,
	}
	c.events = NewEventBus(c.logger)
	for _, opt := range opts {
		opt(c)
	}
	client.OnExchange(func(x osp.Exchange) {
		c.events.Emit(Event{Type: EventExchange, Time: x.Time, Data: ExchangeEvent{Exchange: x, Error: x.ErrorText()}})
	})
	return c
}

// Client returns the underlying exchange driver.
func (c *Controller) Client() *osp.Client { return c.client }

// Events returns the controller's event bus.
func (c *Controller) Events() *EventBus { return c.events }

// SetPassword replaces the test password used by privileged procedures.
func (c *Controller) SetPassword(pw uint64) {
	c.mu.Lock()
	c.password = pw
	c.mu.Unlock()
	if pw == telegram.TestPWUnknown {
		c.logger.Warn("test password reset to the unknown placeholder")
	}
}

// HasPassword reports whether a real password is configured.
func (c *Controller) HasPassword() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.password != telegram.TestPWUnknown
}

func (c *Controller) currentPassword() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.password
}

// Topology is the cached discovery result.
type Topology struct {
	Discovered bool             `json:"discovered"`
	Last       telegram.Address `json:"last"`
	Direction  osp.Direction    `json:"-"`
	Dir        string           `json:"direction,omitempty"`
}

// Topology returns the result of the last ResetInit.
func (c *Controller) Topology() Topology {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t := Topology{Discovered: c.discovered, Last: c.last, Direction: c.dir}
	if c.discovered {
		t.Dir = c.dir.String()
	}
	return t
}

// Last is the address of the last node found by ResetInit, i.e. the chain
// length; 0 when no discovery succeeded.
func (c *Controller) Last() telegram.Address {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

func (c *Controller) Direction() osp.Direction {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dir
}

func (c *Controller) Discovered() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.discovered
}

// muted runs fn with the client's diagnostic logging switched off.
func (c *Controller) muted(fn func() error) error {
	prev := c.client.SetLogLevel(osp.LogNone)
	defer c.client.SetLogLevel(prev)
	return fn()
}

// Do runs fn with exclusive use of the chain, so the telegrams it sends are
// not interleaved with a running procedure.
func (c *Controller) Do(fn func(*osp.Client) error) error {
	c.procMu.Lock()
	defer c.procMu.Unlock()
	return fn(c.client)
}
