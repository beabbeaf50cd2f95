package store

import "time"

// Trace is one recorded telegram exchange.
type Trace struct {
	ID       uint64        `json:"id"`
	Time     time.Time     `json:"time"`
	Op       string        `json:"op"`
	Addr     uint16        `json:"addr"`
	Args     []any         `json:"args,omitempty"`
	Tx       string        `json:"tx,omitempty"`
	Rx       string        `json:"rx,omitempty"`
	Stage    string        `json:"stage,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// OK reports whether the exchange succeeded.
func (t *Trace) OK() bool { return t.Error == "" }

// TraceQuery filters ListTraces. Zero values select everything; results are
// newest first.
type TraceQuery struct {
	Limit      int
	Op         string
	Addr       uint16 // 0 matches every address
	FailedOnly bool
}

func (q TraceQuery) match(t *Trace) bool {
	if q.Op != "" && t.Op != q.Op {
		return false
	}
	if q.Addr != 0 && t.Addr != q.Addr {
		return false
	}
	if q.FailedOnly && t.OK() {
		return false
	}
	return true
}

// Discovery is one chain discovery run.
type Discovery struct {
	ID        uint64    `json:"id"`
	Time      time.Time `json:"time"`
	Last      uint16    `json:"last"`
	Direction string    `json:"direction,omitempty"`
	Error     string    `json:"error,omitempty"`
}
