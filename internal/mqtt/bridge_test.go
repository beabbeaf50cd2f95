//go:build !no_mqtt

package mqtt

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"osp-go-host/internal/chain"
	"osp-go-host/internal/osp"
	"osp-go-host/internal/simulator"
	"osp-go-host/internal/telegram"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestController(opts ...simulator.Option) *chain.Controller {
	sim := simulator.New(append(opts, simulator.WithLogger(newTestLogger()))...)
	return chain.NewController(osp.NewClient(sim, newTestLogger()), newTestLogger(),
		chain.WithSleep(func(time.Duration) {}))
}

func TestDiscoveryMessages(t *testing.T) {
	msgs := buildDiscovery("osp")
	if len(msgs) != 4 {
		t.Fatalf("got %d discovery messages, want 4", len(msgs))
	}

	byTopic := make(map[string]haDiscovery)
	for _, m := range msgs {
		var d haDiscovery
		if err := json.Unmarshal(m.Payload, &d); err != nil {
			t.Fatalf("unmarshal %s: %v", m.Topic, err)
		}
		byTopic[m.Topic] = d
	}

	nodes, ok := byTopic["homeassistant/sensor/osp_osp/nodes/config"]
	if !ok {
		t.Fatal("nodes sensor missing")
	}
	if nodes.StateTopic != "osp/chain" {
		t.Errorf("state_topic = %q, want osp/chain", nodes.StateTopic)
	}
	if nodes.AvailabilityTopic != "osp/bridge/state" {
		t.Errorf("availability_topic = %q", nodes.AvailabilityTopic)
	}
	if nodes.ValueTemplate != "{{ value_json.nodes }}" {
		t.Errorf("value_template = %q", nodes.ValueTemplate)
	}

	btn, ok := byTopic["homeassistant/button/osp_osp/resetinit/config"]
	if !ok {
		t.Fatal("reset button missing")
	}
	if btn.CommandTopic != "osp/set" {
		t.Errorf("command_topic = %q", btn.CommandTopic)
	}
	var req chain.Request
	if err := json.Unmarshal([]byte(btn.PayloadPress), &req); err != nil || req.Op != "resetinit" {
		t.Errorf("payload_press = %q", btn.PayloadPress)
	}

	if _, ok := byTopic["homeassistant/binary_sensor/osp_osp/discovered/config"]; !ok {
		t.Error("discovered binary sensor missing")
	}
}

func TestChainNodeIDSanitized(t *testing.T) {
	if got := chainNodeID("home/osp lab"); got != "osp_home_osp_lab" {
		t.Errorf("chainNodeID = %q", got)
	}
}

func TestEventMessage(t *testing.T) {
	ev := chain.Event{Type: chain.EventDiscovery, Data: chain.DiscoveryEvent{Last: 3, Direction: "loop"}}
	msg, ok := eventMessage("osp", ev, false)
	if !ok {
		t.Fatal("discovery event not published")
	}
	if msg.Topic != "osp/event/discovery" {
		t.Errorf("topic = %q", msg.Topic)
	}
	if !strings.Contains(string(msg.Payload), `"direction":"loop"`) {
		t.Errorf("payload = %s", msg.Payload)
	}

	ex := chain.Event{Type: chain.EventExchange, Data: chain.ExchangeEvent{}}
	if _, ok := eventMessage("osp", ex, false); ok {
		t.Error("exchange published without the exchanges option")
	}
	if _, ok := eventMessage("osp", ex, true); !ok {
		t.Error("exchange not published with the exchanges option")
	}
}

func TestChainState(t *testing.T) {
	tests := []struct {
		topo chain.Topology
		want map[string]any
	}{
		{chain.Topology{}, map[string]any{"discovered": "OFF", "nodes": 0.0, "direction": ""}},
		{chain.Topology{Discovered: true, Last: 5, Dir: "bidir"}, map[string]any{"discovered": "ON", "nodes": 5.0, "direction": "bidir"}},
	}
	for _, tt := range tests {
		var got map[string]any
		if err := json.Unmarshal(chainState(tt.topo), &got); err != nil {
			t.Fatal(err)
		}
		for k, v := range tt.want {
			if got[k] != v {
				t.Errorf("%s = %v, want %v", k, got[k], v)
			}
		}
	}
}

func TestExecuteCommand(t *testing.T) {
	ctrl := newTestController(simulator.WithSAID(2))
	ctx := context.Background()

	resp := execute(ctx, ctrl, []byte(`{"op":"resetinit"}`))
	if !resp.OK {
		t.Fatalf("resetinit: %s", resp.Error)
	}
	if ctrl.Last() != telegram.Address(2) {
		t.Errorf("last = %s, want 0x002", ctrl.Last())
	}

	resp = execute(ctx, ctrl, []byte(`{"op":"identify","addr":"0x002"}`))
	if !resp.OK || resp.Addr != "0x002" {
		t.Errorf("identify = %+v", resp)
	}

	resp = execute(ctx, ctrl, []byte(`{not json`))
	if resp.OK || !strings.HasPrefix(resp.Error, "invalid command JSON") {
		t.Errorf("bad JSON = %+v", resp)
	}

	resp = execute(ctx, ctrl, []byte(`{"op":"explode"}`))
	if resp.OK || resp.Op != "explode" {
		t.Errorf("unknown op = %+v", resp)
	}
}
