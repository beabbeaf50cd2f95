package osp

import (
	"context"
	"time"

	"osp-go-host/internal/telegram"
)

// Exchange records the outcome of one request. At most one of the error
// slots is set: the first failing step skips the later ones.
type Exchange struct {
	Op           string           `json:"op"`
	Addr         telegram.Address `json:"addr"`
	Args         []any            `json:"args,omitempty"`
	Request      []byte           `json:"request,omitempty"`
	Response     []byte           `json:"response,omitempty"`
	EncodeErr    error            `json:"-"`
	TransportErr error            `json:"-"`
	DecodeErr    error            `json:"-"`
	Result       any              `json:"result,omitempty"`
	Time         time.Time        `json:"time"`
	Duration     time.Duration    `json:"duration"`
}

// Exchange stages.
const (
	StageEncode    = "encode"
	StageTransport = "transport"
	StageDecode    = "decode"
)

// Err returns the error that ended the exchange, or nil.
func (x *Exchange) Err() error {
	switch {
	case x.EncodeErr != nil:
		return x.EncodeErr
	case x.TransportErr != nil:
		return x.TransportErr
	default:
		return x.DecodeErr
	}
}

// Stage names the step that failed, or "" for a successful exchange.
func (x *Exchange) Stage() string {
	switch {
	case x.EncodeErr != nil:
		return StageEncode
	case x.TransportErr != nil:
		return StageTransport
	case x.DecodeErr != nil:
		return StageDecode
	default:
		return ""
	}
}

// OK reports whether the exchange completed without error.
func (x *Exchange) OK() bool { return x.Err() == nil }

// ErrorText returns the error message, or "" for a successful exchange.
func (x *Exchange) ErrorText() string {
	if err := x.Err(); err != nil {
		return err.Error()
	}
	return ""
}

// do runs one exchange: encode, transport, decode. decode is nil for
// commands without a response.
func do[T any](c *Client, ctx context.Context, cmd telegram.Command, addr telegram.Address, args []any,
	encode func() (telegram.Frame, error), decode func(*telegram.Frame) (T, error)) (T, error) {
	var out T
	x := Exchange{Op: cmd.Name, Addr: addr, Args: args, Time: time.Now()}

	f, err := encode()
	if err != nil {
		x.EncodeErr = err
	} else {
		x.Request = append([]byte(nil), f.Bytes()...)
		x.Response, x.TransportErr = c.roundTrip(ctx, cmd, x.Request, decode != nil)
		if x.TransportErr == nil && decode != nil {
			out, x.DecodeErr = decodeResponse(x.Response, decode)
			if x.DecodeErr == nil {
				x.Result = out
			}
		}
	}
	x.Duration = time.Since(x.Time)

	c.finish(&x)
	if err := x.Err(); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

func decodeResponse[T any](b []byte, decode func(*telegram.Frame) (T, error)) (T, error) {
	f, err := telegram.FromBytes(b)
	if err != nil {
		var zero T
		return zero, err
	}
	return decode(f)
}

// send runs an exchange for a command without a response.
func (c *Client) send(ctx context.Context, cmd telegram.Command, addr telegram.Address, args []any,
	encode func() (telegram.Frame, error)) error {
	_, err := do[struct{}](c, ctx, cmd, addr, args, encode, nil)
	return err
}
