package chain

import (
	"context"
	"errors"
	"fmt"

	"osp-go-host/internal/osp"
	"osp-go-host/internal/telegram"
)

// ErrUnknownOp is returned by Execute for an unsupported operation.
var ErrUnknownOp = errors.New("chain: unknown operation")

// Request is a chain operation in the JSON form used by the MQTT and HTTP
// surfaces. Fields not used by Op are ignored.
type Request struct {
	Op       string `json:"op"`
	Addr     string `json:"addr,omitempty"`
	Chn      uint8  `json:"chn,omitempty"`
	Row      uint8  `json:"row,omitempty"`
	Or       uint8  `json:"or,omitempty"`
	And      *uint8 `json:"and,omitempty"` // nil keeps all bits
	Red      uint16 `json:"red,omitempty"`
	Green    uint16 `json:"green,omitempty"`
	Blue     uint16 `json:"blue,omitempty"`
	Daytimes uint8  `json:"daytimes,omitempty"`
	Device   uint8  `json:"device,omitempty"`
	Register uint8  `json:"register,omitempty"`
	Count    int    `json:"count,omitempty"`
	Data     []int  `json:"data,omitempty"`
}

// Response is the outcome of Execute.
type Response struct {
	Op     string `json:"op"`
	Addr   string `json:"addr,omitempty"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	Result any    `json:"result,omitempty"`
}

// Ops lists the operations Execute accepts. Burning fuses is not offered
// remotely.
var Ops = []string{
	"resetinit", "topology", "scan", "identify", "status",
	"clrerror", "gosleep", "goactive", "godeepsleep",
	"setpwm", "setpwmchn", "otpdump", "setotp",
	"i2cpower", "i2cread", "i2cwrite", "i2cscan",
}

// Execute runs req and reports the outcome; it never panics on bad input.
func (c *Controller) Execute(ctx context.Context, req Request) Response {
	resp := Response{Op: req.Op, Addr: req.Addr}
	result, err := c.execute(ctx, req)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	resp.OK, resp.Result = true, result
	return resp
}

// addrOps are the operations that work on a node address.
var addrOps = map[string]bool{
	"identify": true, "status": true, "clrerror": true, "gosleep": true,
	"goactive": true, "godeepsleep": true, "setpwm": true, "setpwmchn": true,
	"otpdump": true, "setotp": true, "i2cpower": true, "i2cread": true,
	"i2cwrite": true, "i2cscan": true,
}

func (c *Controller) execute(ctx context.Context, req Request) (any, error) {
	var addr telegram.Address
	if addrOps[req.Op] {
		a, err := telegram.ParseAddress(req.Addr)
		if err != nil {
			return nil, err
		}
		addr = a
	}

	switch req.Op {
	case "resetinit":
		return c.ResetInit(ctx)
	case "topology":
		return c.Topology(), nil
	case "scan":
		return c.Scan(ctx)
	case "identify":
		var id telegram.Identity
		err := c.Do(func(cl *osp.Client) (err error) {
			id, err = cl.Identify(ctx, addr)
			return err
		})
		return map[string]any{"id": id, "text": id.String()}, err
	case "status":
		return c.NodeStatus(ctx, addr)
	case "clrerror":
		return nil, c.Do(func(cl *osp.Client) error { return cl.ClrError(ctx, addr) })
	case "gosleep":
		return nil, c.Do(func(cl *osp.Client) error { return cl.GoSleep(ctx, addr) })
	case "goactive":
		return nil, c.Do(func(cl *osp.Client) error { return cl.GoActive(ctx, addr) })
	case "godeepsleep":
		return nil, c.Do(func(cl *osp.Client) error { return cl.GoDeepSleep(ctx, addr) })
	case "setpwm":
		p := telegram.PWM{Red: req.Red, Green: req.Green, Blue: req.Blue, Daytimes: req.Daytimes}
		return nil, c.Do(func(cl *osp.Client) error { return cl.SetPWM(ctx, addr, p) })
	case "setpwmchn":
		p := telegram.ChannelPWM{Red: req.Red, Green: req.Green, Blue: req.Blue}
		return nil, c.Do(func(cl *osp.Client) error { return cl.SetPWMChn(ctx, addr, req.Chn, p) })
	case "otpdump":
		img, err := c.OTPDump(ctx, addr)
		if err != nil {
			return nil, err
		}
		return map[string]any{"otp": fmt.Sprintf("% X", img[:]), "fields": img.Fields()}, nil
	case "setotp":
		and := uint8(0xFF)
		if req.And != nil {
			and = *req.And
		}
		return nil, c.SetOTP(ctx, addr, req.Row, req.Or, and)
	case "i2cpower":
		return nil, c.I2CPower(ctx, addr)
	case "i2cread":
		data, err := c.I2CRead(ctx, addr, req.Device, req.Register, req.Count)
		return ints(data), err
	case "i2cwrite":
		data, err := bytesOf(req.Data)
		if err != nil {
			return nil, err
		}
		return nil, c.I2CWrite(ctx, addr, req.Device, req.Register, data)
	case "i2cscan":
		found, err := c.I2CScan(ctx, addr)
		return ints(found), err
	}
	return nil, fmt.Errorf("%q: %w", req.Op, ErrUnknownOp)
}

func ints(b []byte) []int {
	if b == nil {
		return nil
	}
	out := make([]int, len(b))
	for i, v := range b {
		out[i] = int(v)
	}
	return out
}

func bytesOf(v []int) ([]byte, error) {
	out := make([]byte, len(v))
	for i, x := range v {
		if x < 0 || x > 0xFF {
			return nil, fmt.Errorf("data[%d] = %d: %w", i, x, telegram.ErrArgument)
		}
		out[i] = byte(x)
	}
	return out, nil
}
