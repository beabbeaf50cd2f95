package chain

import (
	"context"
	"fmt"

	"osp-go-host/internal/pretty"
	"osp-go-host/internal/telegram"
)

// NodeInfo is a snapshot of one node's identity and status registers.
type NodeInfo struct {
	Addr      telegram.Address   `json:"addr"`
	ID        telegram.Identity  `json:"id"`
	Family    string             `json:"family"`
	Temp      uint8              `json:"temp"`
	TempC     int                `json:"temp_c"`
	Stat      telegram.Status    `json:"stat"`
	StatText  string             `json:"stat_text"`
	Setup     telegram.Setup     `json:"setup"`
	SetupText string             `json:"setup_text"`
	Com       telegram.ComStatus `json:"com"`
	ComText   string             `json:"com_text"`
}

// NodeStatus reads identity, temperature, status, setup and communication
// status of addr.
func (c *Controller) NodeStatus(ctx context.Context, addr telegram.Address) (NodeInfo, error) {
	c.procMu.Lock()
	defer c.procMu.Unlock()
	return c.nodeStatus(ctx, addr)
}

func (c *Controller) nodeStatus(ctx context.Context, addr telegram.Address) (NodeInfo, error) {
	info := NodeInfo{Addr: addr}
	id, err := c.client.Identify(ctx, addr)
	if err != nil {
		return info, err
	}
	fam := id.Family()
	info.ID, info.Family = id, fam.String()

	ts, err := c.client.ReadTempStat(ctx, addr)
	if err != nil {
		return info, err
	}
	info.Temp, info.Stat = ts.Temp, ts.Stat
	info.TempC = pretty.Temp(fam, ts.Temp)
	info.StatText = pretty.Stat(fam, ts.Stat)

	if info.Setup, err = c.client.ReadSetup(ctx, addr); err != nil {
		return info, err
	}
	info.SetupText = pretty.Setup(info.Setup)

	if info.Com, err = c.client.ReadComSt(ctx, addr); err != nil {
		return info, err
	}
	info.ComText = pretty.Com(fam, info.Com)
	return info, nil
}

// Scan reads the status of every node found by the last discovery.
func (c *Controller) Scan(ctx context.Context) ([]NodeInfo, error) {
	c.procMu.Lock()
	defer c.procMu.Unlock()

	topo := c.Topology()
	if !topo.Discovered {
		return nil, fmt.Errorf("scan: %w", ErrNotDiscovered)
	}
	last := topo.Last

	var nodes []NodeInfo
	err := c.muted(func() error {
		for a := telegram.UnicastMin; a <= last; a++ {
			info, err := c.nodeStatus(ctx, a)
			if err != nil {
				return fmt.Errorf("node %s: %w", a, err)
			}
			nodes = append(nodes, info)
		}
		return nil
	})
	return nodes, err
}

