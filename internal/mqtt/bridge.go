//go:build !no_mqtt

package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"osp-go-host/internal/chain"
)

// Config holds MQTT bridge configuration.
type Config struct {
	Broker      string
	Username    string
	Password    string
	TopicPrefix string
	ClientID    string
	// Exchanges publishes every telegram exchange, not only procedure events.
	Exchanges bool
}

// Bridge publishes controller events to MQTT and accepts chain commands on
// <prefix>/set.
type Bridge struct {
	client    pahomqtt.Client
	ctrl      *chain.Controller
	prefix    string
	exchanges bool
	logger    *slog.Logger
	unsub     func()
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewBridge creates and connects an MQTT bridge.
func NewBridge(ctrl *chain.Controller, cfg Config, logger *slog.Logger) (*Bridge, error) {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		ctrl:      ctrl,
		prefix:    cfg.TopicPrefix,
		exchanges: cfg.Exchanges,
		logger:    logger.With("component", "mqtt"),
		ctx:       ctx,
		cancel:    cancel,
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "osp-host"
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(cfg.TopicPrefix+"/bridge/state", "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			b.logger.Info("MQTT connected")
			b.publishBridgeState("online")
			b.publishDiscovery()
			b.publishChainState()
			b.subscribeCommands()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			b.logger.Warn("MQTT connection lost", "err", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	b.client = client
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		cancel()
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		cancel()
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return b, nil
}

// Start subscribes to controller events and begins MQTT publishing.
func (b *Bridge) Start() {
	b.unsub = b.ctrl.Events().OnAll(b.handleEvent)
	b.logger.Info("MQTT bridge started", "prefix", b.prefix)
}

// Stop publishes offline state, unsubscribes, and disconnects.
func (b *Bridge) Stop() {
	b.cancel()
	if b.unsub != nil {
		b.unsub()
	}
	b.publishBridgeState("offline")
	b.client.Disconnect(1000)
	b.logger.Info("MQTT bridge stopped")
}

func (b *Bridge) handleEvent(event chain.Event) {
	msg, ok := eventMessage(b.prefix, event, b.exchanges)
	if !ok {
		return
	}
	b.publish(msg.Topic, msg.Payload, false)
	if event.Type == chain.EventDiscovery || event.Type == chain.EventDiscoveryFailed {
		b.publishChainState()
	}
}

func (b *Bridge) publishBridgeState(state string) {
	b.publish(b.prefix+"/bridge/state", []byte(state), true)
}

func (b *Bridge) publishChainState() {
	b.publish(chainStateTopic(b.prefix), chainState(b.ctrl.Topology()), true)
}

func (b *Bridge) publishDiscovery() {
	for _, msg := range buildDiscovery(b.prefix) {
		b.publish(msg.Topic, msg.Payload, true)
	}
	b.logger.Info("published HA discovery")
}

func (b *Bridge) subscribeCommands() {
	b.client.Subscribe(b.prefix+"/set", 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		// paho delivers messages on one goroutine; chain procedures can take
		// a while.
		payload := append([]byte(nil), msg.Payload()...)
		go b.handleCommand(payload)
	})
}

func (b *Bridge) handleCommand(payload []byte) {
	ctx, cancel := context.WithTimeout(b.ctx, 10*time.Second)
	defer cancel()
	resp := execute(ctx, b.ctrl, payload)
	if resp.Error != "" {
		b.logger.Warn("command failed", "op", resp.Op, "err", resp.Error)
	}
	b.publish(b.prefix+"/response", mustJSON(resp), false)
}

func (b *Bridge) publish(topic string, payload []byte, retained bool) {
	token := b.client.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			b.logger.Warn("MQTT publish timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			b.logger.Warn("MQTT publish error", "topic", topic, "err", err)
		}
	}()
}

type message struct {
	Topic   string
	Payload []byte
}

// eventMessage maps a controller event to its topic. Exchange events are
// only published when exchanges is set.
func eventMessage(prefix string, event chain.Event, exchanges bool) (message, bool) {
	if event.Type == chain.EventExchange && !exchanges {
		return message{}, false
	}
	return message{Topic: prefix + "/event/" + event.Type, Payload: mustJSON(event)}, true
}

func chainStateTopic(prefix string) string { return prefix + "/chain" }

// chainState is the retained chain summary HA sensors read.
func chainState(t chain.Topology) []byte {
	state := map[string]any{
		"discovered": "OFF",
		"nodes":      int(t.Last),
		"direction":  t.Dir,
	}
	if t.Discovered {
		state["discovered"] = "ON"
	}
	return mustJSON(state)
}

// execute decodes a chain.Request from payload and runs it.
func execute(ctx context.Context, ctrl *chain.Controller, payload []byte) chain.Response {
	var req chain.Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return chain.Response{Error: "invalid command JSON: " + err.Error()}
	}
	return ctrl.Execute(ctx, req)
}

func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
