package store

import (
	"fmt"
	"log/slog"

	"osp-go-host/internal/chain"
)

// Recorder writes controller exchanges and discovery runs to a Store.
type Recorder struct {
	store  Store
	logger *slog.Logger
}

// NewRecorder creates a recorder for s.
func NewRecorder(s Store, logger *slog.Logger) *Recorder {
	return &Recorder{store: s, logger: logger.With("component", "recorder")}
}

// Attach subscribes to bus and returns a function that detaches again.
func (r *Recorder) Attach(bus *chain.EventBus) func() {
	offEx := bus.On(chain.EventExchange, r.onExchange)
	offOK := bus.On(chain.EventDiscovery, r.onDiscovery)
	offFail := bus.On(chain.EventDiscoveryFailed, r.onDiscovery)
	return func() {
		offEx()
		offOK()
		offFail()
	}
}

func (r *Recorder) onExchange(e chain.Event) {
	ev, ok := e.Data.(chain.ExchangeEvent)
	if !ok {
		return
	}
	t := &Trace{
		Time:     ev.Time,
		Op:       ev.Op,
		Addr:     uint16(ev.Addr),
		Args:     ev.Args,
		Stage:    ev.Stage(),
		Error:    ev.Error,
		Duration: ev.Duration,
	}
	if len(ev.Request) > 0 {
		t.Tx = fmt.Sprintf("% X", ev.Request)
	}
	if len(ev.Response) > 0 {
		t.Rx = fmt.Sprintf("% X", ev.Response)
	}
	if err := r.store.AppendTrace(t); err != nil {
		r.logger.Error("append trace failed", "op", t.Op, "err", err)
	}
}

func (r *Recorder) onDiscovery(e chain.Event) {
	ev, ok := e.Data.(chain.DiscoveryEvent)
	if !ok {
		return
	}
	d := &Discovery{
		Time:      e.Time,
		Last:      uint16(ev.Last),
		Direction: ev.Direction,
		Error:     ev.Error,
	}
	if err := r.store.AppendDiscovery(d); err != nil {
		r.logger.Error("append discovery failed", "err", err)
	}
}
