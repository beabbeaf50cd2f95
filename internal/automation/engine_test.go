//go:build !no_automation

package automation

import (
	"testing"
	"time"

	"osp-go-host/internal/chain"
	"osp-go-host/internal/osp"
	"osp-go-host/internal/telegram"

	lua "github.com/yuin/gopher-lua"
)

func TestGoToLua(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	tests := []struct {
		name string
		val  any
		want lua.LValueType
	}{
		{"nil", nil, lua.LTNil},
		{"bool", true, lua.LTBool},
		{"string", "hello", lua.LTString},
		{"int", 42, lua.LTNumber},
		{"int64", int64(99), lua.LTNumber},
		{"float64", 3.14, lua.LTNumber},
		{"uint8", uint8(255), lua.LTNumber},
		{"uint16", uint16(0x3EF), lua.LTNumber},
		{"map", map[string]any{"a": 1}, lua.LTTable},
		{"slice", []any{1, 2, 3}, lua.LTTable},
		{"unknown", struct{}{}, lua.LTString},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := goToLua(L, tt.val).Type(); got != tt.want {
				t.Errorf("goToLua(%v) type = %v, want %v", tt.val, got, tt.want)
			}
		})
	}
}

func TestGoToLuaNested(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	v := goToLua(L, map[string]any{"addr": 3, "data": []any{0x50, 0x68}})
	tbl, ok := v.(*lua.LTable)
	if !ok {
		t.Fatal("expected LTable")
	}
	if n, ok := tbl.RawGetString("addr").(lua.LNumber); !ok || n != 3 {
		t.Errorf("addr = %v, want 3", tbl.RawGetString("addr"))
	}
	data, ok := tbl.RawGetString("data").(*lua.LTable)
	if !ok || data.Len() != 2 {
		t.Fatalf("data = %v, want 2-element table", tbl.RawGetString("data"))
	}
	if n := data.RawGetInt(2); n != lua.LNumber(0x68) {
		t.Errorf("data[2] = %v, want 104", n)
	}
}

func TestLuaToGo(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	if err := L.DoString(`_v = {op = "setotp", addr = 2, row = 0x0D, ratio = 0.5, data = {1, 2}}`); err != nil {
		t.Fatal(err)
	}
	m, ok := luaToGo(L.GetGlobal("_v")).(map[string]any)
	if !ok {
		t.Fatalf("luaToGo = %T, want map", luaToGo(L.GetGlobal("_v")))
	}
	tests := []struct {
		key  string
		want any
	}{
		{"op", "setotp"},
		{"addr", int64(2)},
		{"row", int64(13)},
		{"ratio", 0.5},
	}
	for _, tt := range tests {
		if m[tt.key] != tt.want {
			t.Errorf("%s = %#v, want %#v", tt.key, m[tt.key], tt.want)
		}
	}
	data, ok := m["data"].([]any)
	if !ok || len(data) != 2 || data[0] != int64(1) {
		t.Errorf("data = %#v, want [1 2]", m["data"])
	}
}

func TestMatchesHandler(t *testing.T) {
	fields := map[string]any{"type": chain.EventExchange, "addr": 3, "op": "identify"}

	tests := []struct {
		name    string
		handler luaEventHandler
		evType  string
		want    bool
	}{
		{"type only", luaEventHandler{eventType: chain.EventExchange}, chain.EventExchange, true},
		{"wrong type", luaEventHandler{eventType: chain.EventI2C}, chain.EventExchange, false},
		{"addr match", luaEventHandler{eventType: chain.EventExchange, addr: 3, hasAddr: true}, chain.EventExchange, true},
		{"addr mismatch", luaEventHandler{eventType: chain.EventExchange, addr: 4, hasAddr: true}, chain.EventExchange, false},
		{"op match", luaEventHandler{eventType: chain.EventExchange, op: "identify"}, chain.EventExchange, true},
		{"op mismatch", luaEventHandler{eventType: chain.EventExchange, op: "reset"}, chain.EventExchange, false},
		{"both", luaEventHandler{eventType: chain.EventExchange, addr: 3, hasAddr: true, op: "identify"}, chain.EventExchange, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchesHandler(tt.handler, tt.evType, fields); got != tt.want {
				t.Errorf("matchesHandler = %v, want %v", got, tt.want)
			}
		})
	}

	noAddr := map[string]any{"type": chain.EventDiscovery, "last": 4}
	h := luaEventHandler{eventType: chain.EventDiscovery, addr: 4, hasAddr: true}
	if matchesHandler(h, chain.EventDiscovery, noAddr) {
		t.Error("addr filter matched an event without addr")
	}
}

func TestEventFields(t *testing.T) {
	when := time.Unix(1700000000, 0)

	tests := []struct {
		name  string
		event chain.Event
		want  map[string]any
	}{
		{
			name:  "discovery",
			event: chain.Event{Type: chain.EventDiscovery, Time: when, Data: chain.DiscoveryEvent{Last: 3, Direction: "loop"}},
			want:  map[string]any{"last": 3, "direction": "loop"},
		},
		{
			name:  "discovery failed",
			event: chain.Event{Type: chain.EventDiscoveryFailed, Time: when, Data: chain.DiscoveryEvent{Error: "cabling"}},
			want:  map[string]any{"last": 0, "error": "cabling"},
		},
		{
			name:  "otp write",
			event: chain.Event{Type: chain.EventOTPWrite, Time: when, Data: chain.OTPWriteEvent{Addr: 2, Row: 0x0D, Or: 1, And: 0xFF}},
			want:  map[string]any{"addr": 2, "row": 13, "or": 1, "and": 255},
		},
		{
			name:  "i2c",
			event: chain.Event{Type: chain.EventI2C, Time: when, Data: chain.I2CEvent{Addr: 1, Op: "read", Device: 0x50, Register: 0x10}},
			want:  map[string]any{"addr": 1, "op": "read", "device": 0x50, "register": 0x10},
		},
		{
			name: "exchange",
			event: chain.Event{Type: chain.EventExchange, Time: when, Data: chain.ExchangeEvent{Exchange: osp.Exchange{
				Op:       "identify",
				Addr:     telegram.Address(1),
				Request:  []byte{0xA0, 0x04, 0x07, 0x3A},
				Duration: 250 * time.Microsecond,
			}}},
			want: map[string]any{"addr": 1, "op": "identify", "tx": "A0 04 07 3A", "rx": "", "duration_us": int64(250)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := eventFields(tt.event)
			if got["type"] != tt.event.Type {
				t.Errorf("type = %v, want %v", got["type"], tt.event.Type)
			}
			if got["time"] != when.Unix() {
				t.Errorf("time = %v, want %v", got["time"], when.Unix())
			}
			for k, want := range tt.want {
				if got[k] != want {
					t.Errorf("%s = %#v, want %#v", k, got[k], want)
				}
			}
			if _, ok := tt.want["error"]; !ok {
				if _, has := got["error"]; has {
					t.Errorf("error = %v, want absent", got["error"])
				}
			}
		})
	}
}

func TestSandbox(t *testing.T) {
	L := newSandbox()
	defer L.Close()

	for _, name := range []string{"os", "io", "loadfile", "dofile", "require", "load", "debug", "package"} {
		if v := L.GetGlobal(name); v != lua.LNil {
			t.Errorf("global %s = %v, want nil", name, v.Type())
		}
	}
	if err := L.DoString(`_s = string.format("%03X", 1)`); err != nil {
		t.Fatalf("string library missing: %v", err)
	}
}

func TestCheckSyntax(t *testing.T) {
	tests := []struct {
		code    string
		wantErr bool
	}{
		{`osp.log("hi")`, false},
		{``, false},
		{`osp.on("i2c", function(ev) end`, true},
		{`local = 1`, true},
	}
	for _, tt := range tests {
		if err := CheckSyntax(tt.code); (err != nil) != tt.wantErr {
			t.Errorf("CheckSyntax(%q) = %v, want error %v", tt.code, err, tt.wantErr)
		}
	}
}
