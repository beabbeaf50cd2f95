package chain

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"osp-go-host/internal/osp"
	"osp-go-host/internal/telegram"
)

// Event types
const (
	EventDiscovery       = "discovery"
	EventDiscoveryFailed = "discovery_failed"
	EventOTPWrite        = "otp_write"
	EventBurn            = "burn"
	EventI2C             = "i2c"
	EventExchange        = "exchange"
)

// Event represents a controller event.
type Event struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data"`
}

// DiscoveryEvent is the payload of EventDiscovery and EventDiscoveryFailed.
type DiscoveryEvent struct {
	Last      telegram.Address `json:"last"`
	Direction string           `json:"direction,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// OTPWriteEvent is the payload of EventOTPWrite and EventBurn.
type OTPWriteEvent struct {
	Addr  telegram.Address `json:"addr"`
	Row   uint8            `json:"row"`
	Or    uint8            `json:"or"`
	And   uint8            `json:"and"`
	Error string           `json:"error,omitempty"`
}

// I2CEvent is the payload of EventI2C.
type I2CEvent struct {
	Addr     telegram.Address `json:"addr"`
	Op       string           `json:"op"`
	Device   uint8            `json:"device"`
	Register uint8            `json:"register"`
	Data     []byte           `json:"data,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// ExchangeEvent is the payload of EventExchange: one telegram round trip.
type ExchangeEvent struct {
	osp.Exchange
	Error string `json:"error,omitempty"`
}

// MarshalJSON renders the telegram bytes as spaced hex.
func (e ExchangeEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Op         string           `json:"op"`
		Addr       telegram.Address `json:"addr"`
		Args       []any            `json:"args,omitempty"`
		Tx         string           `json:"tx,omitempty"`
		Rx         string           `json:"rx,omitempty"`
		Stage      string           `json:"stage,omitempty"`
		Error      string           `json:"error,omitempty"`
		Result     any              `json:"result,omitempty"`
		Time       time.Time        `json:"time"`
		DurationUS int64            `json:"duration_us"`
	}{
		Op:         e.Op,
		Addr:       e.Addr,
		Args:       e.Args,
		Tx:         telegram.Hex(e.Request),
		Rx:         telegram.Hex(e.Response),
		Stage:      e.Stage(),
		Error:      e.Error,
		Result:     e.Result,
		Time:       e.Time,
		DurationUS: e.Duration.Microseconds(),
	})
}

// EventHandler is a callback for events.
type EventHandler func(Event)

// EventBus provides pub/sub for controller events.
type EventBus struct {
	mu          sync.RWMutex
	handlers    map[string]map[uint64]EventHandler
	allHandlers map[uint64]EventHandler
	nextID      uint64
	logger      *slog.Logger
}

// NewEventBus creates a new event bus.
func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		handlers:    make(map[string]map[uint64]EventHandler),
		allHandlers: make(map[uint64]EventHandler),
		logger:      logger,
	}
}

// On registers a handler for a specific event type.
// Returns an unsubscribe function.
func (eb *EventBus) On(eventType string, handler EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	id := eb.nextID
	eb.nextID++
	if eb.handlers[eventType] == nil {
		eb.handlers[eventType] = make(map[uint64]EventHandler)
	}
	eb.handlers[eventType][id] = handler
	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		delete(eb.handlers[eventType], id)
	}
}

// OnAll registers a handler that receives all events.
// Returns an unsubscribe function.
func (eb *EventBus) OnAll(handler EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	id := eb.nextID
	eb.nextID++
	eb.allHandlers[id] = handler
	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		delete(eb.allHandlers, id)
	}
}

// Emit sends an event to all matching handlers, stamping Time if unset.
// Handlers are called synchronously; a panicking handler is recovered.
func (eb *EventBus) Emit(event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}
	eb.mu.RLock()
	handlers := make([]EventHandler, 0, len(eb.handlers[event.Type])+len(eb.allHandlers))
	for _, h := range eb.handlers[event.Type] {
		handlers = append(handlers, h)
	}
	for _, h := range eb.allHandlers {
		handlers = append(handlers, h)
	}
	eb.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					eb.logger.Error("event handler panic", "type", event.Type, "panic", r)
				}
			}()
			h(event)
		}()
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
