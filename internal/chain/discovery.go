package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"osp-go-host/internal/osp"
	"osp-go-host/internal/telegram"
)

// resetSettle is the wait after a broadcast RESET before nodes accept the
// next telegram.
const resetSettle = 150 * time.Microsecond

// ResetInit resets the chain and assigns addresses starting at 1. It tries
// loop direction first and falls back to bidir only when the loop attempt
// got no clock. A successful run caches the chain length and direction; a
// failed run clears the cache.
func (c *Controller) ResetInit(ctx context.Context) (Topology, error) {
	c.procMu.Lock()
	defer c.procMu.Unlock()

	res, dir, err := c.resetInit(ctx)

	c.mu.Lock()
	if err != nil {
		c.discovered, c.last, c.dir = false, 0, osp.DirLoop
	} else {
		c.discovered, c.last, c.dir = true, res.Last, dir
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("chain discovery failed", "error", err)
		c.events.Emit(Event{Type: EventDiscoveryFailed, Data: DiscoveryEvent{Error: err.Error()}})
		return Topology{}, err
	}
	c.logger.Info("chain discovered", "last", res.Last.String(), "direction", dir.String(),
		"temp", res.Temp, "stat", uint8(res.Stat))
	c.events.Emit(Event{Type: EventDiscovery, Data: DiscoveryEvent{Last: res.Last, Direction: dir.String()}})
	return c.Topology(), nil
}

func (c *Controller) resetInit(ctx context.Context) (telegram.InitResult, osp.Direction, error) {
	if err := c.reset(ctx, osp.DirLoop); err != nil {
		return telegram.InitResult{}, 0, err
	}
	res, err := c.client.InitLoop(ctx, telegram.UnicastMin)
	if err == nil {
		return res, osp.DirLoop, nil
	}
	if !errors.Is(err, osp.ErrNoClock) {
		return res, 0, err
	}

	c.logger.Debug("no clock in loop direction, trying bidir")
	if err := c.reset(ctx, osp.DirBidir); err != nil {
		return telegram.InitResult{}, 0, err
	}
	res, err = c.client.InitBidir(ctx, telegram.UnicastMin)
	if err == nil {
		return res, osp.DirBidir, nil
	}
	if errors.Is(err, osp.ErrNoClock) {
		return res, 0, fmt.Errorf("%w: %v", ErrCabling, err)
	}
	return res, 0, err
}

// reset broadcasts RESET, waits for the nodes to settle and selects dir.
func (c *Controller) reset(ctx context.Context, dir osp.Direction) error {
	if err := c.client.Reset(ctx, telegram.Broadcast); err != nil {
		return err
	}
	c.sleep(resetSettle)
	return c.client.SetDirection(dir)
}
