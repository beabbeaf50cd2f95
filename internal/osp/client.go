package osp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"osp-go-host/internal/telegram"
)

// ExchangeHandler receives the record of every completed exchange.
type ExchangeHandler func(Exchange)

// Client issues telegrams over a Transport. It is safe for concurrent use;
// calls are serialized because the bus admits one outstanding request.
type Client struct {
	tr     Transport
	logger *slog.Logger
	level  atomic.Int32

	busMu sync.Mutex

	obsMu     sync.RWMutex
	observers map[uint64]ExchangeHandler
	nextID    uint64
}

// NewClient creates a client with diagnostic logging off.
func NewClient(tr Transport, logger *slog.Logger) *Client {
	return &Client{
		tr:        tr,
		logger:    logger.With("component", "osp"),
		observers: make(map[uint64]ExchangeHandler),
	}
}

// OnExchange registers h for every completed exchange.
// Returns an unsubscribe function.
func (c *Client) OnExchange(h ExchangeHandler) func() {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	id := c.nextID
	c.nextID++
	c.observers[id] = h
	return func() {
		c.obsMu.Lock()
		defer c.obsMu.Unlock()
		delete(c.observers, id)
	}
}

// SetDirection forwards the direction select to the transport.
func (c *Client) SetDirection(d Direction) error {
	c.busMu.Lock()
	defer c.busMu.Unlock()
	if err := c.tr.SetDirection(d); err != nil {
		return fmt.Errorf("set direction %s: %w", d, err)
	}
	if c.LogLevel() >= LogArgs {
		c.logger.Info("direction", "dir", d.String())
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, cmd telegram.Command, tx []byte, expect bool) ([]byte, error) {
	c.busMu.Lock()
	defer c.busMu.Unlock()
	if !expect {
		if err := c.tr.Transmit(ctx, tx); err != nil {
			return nil, fmt.Errorf("%s: %w", cmd.Name, err)
		}
		return nil, nil
	}
	rx, err := c.tr.TransmitReceive(ctx, tx, cmd.RespSize+telegram.MinSize)
	if err != nil {
		return rx, fmt.Errorf("%s: %w", cmd.Name, err)
	}
	return rx, nil
}

// finish logs x and hands it to the observers.
func (c *Client) finish(x *Exchange) {
	c.logExchange(x)

	c.obsMu.RLock()
	handlers := make([]ExchangeHandler, 0, len(c.observers))
	for _, h := range c.observers {
		handlers = append(handlers, h)
	}
	c.obsMu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("exchange observer panic", "op", x.Op, "panic", r)
				}
			}()
			h(*x)
		}()
	}
}
