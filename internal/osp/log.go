package osp

import (
	"fmt"

	"osp-go-host/internal/telegram"
)

// LogLevel is the protocol diagnostic verbosity, independent of the slog
// handler level.
type LogLevel int32

const (
	LogNone LogLevel = iota // no exchange logging
	LogArgs                 // op, address, arguments and outcome
	LogTele                 // additionally the raw request and response
)

func (l LogLevel) String() string {
	switch l {
	case LogNone:
		return "none"
	case LogArgs:
		return "args"
	case LogTele:
		return "tele"
	default:
		return fmt.Sprintf("loglevel(%d)", int32(l))
	}
}

// ParseLogLevel accepts "none", "args" and "tele".
func ParseLogLevel(s string) (LogLevel, error) {
	switch s {
	case "", "none":
		return LogNone, nil
	case "args":
		return LogArgs, nil
	case "tele":
		return LogTele, nil
	}
	return LogNone, fmt.Errorf("unknown log level %q", s)
}

func (c *Client) LogLevel() LogLevel { return LogLevel(c.level.Load()) }

// SetLogLevel changes the diagnostic level and returns the previous one.
func (c *Client) SetLogLevel(l LogLevel) LogLevel {
	return LogLevel(c.level.Swap(int32(l)))
}

func (c *Client) logExchange(x *Exchange) {
	level := c.LogLevel()
	if level == LogNone {
		return
	}
	attrs := make([]any, 0, 8+len(x.Args))
	attrs = append(attrs, "op", x.Op, "addr", x.Addr.String())
	attrs = append(attrs, x.Args...)
	if level >= LogTele {
		attrs = append(attrs, "tx", telegram.Hex(x.Request))
		if len(x.Response) > 0 {
			attrs = append(attrs, "rx", telegram.Hex(x.Response))
		}
	}
	if err := x.Err(); err != nil {
		attrs = append(attrs, "stage", x.Stage(), "error", err)
		c.logger.Warn("exchange failed", attrs...)
		return
	}
	if x.Result != nil {
		attrs = append(attrs, "result", x.Result)
	}
	c.logger.Info("exchange", attrs...)
}
