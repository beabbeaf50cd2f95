package chain

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"osp-go-host/internal/osp"
	"osp-go-host/internal/simulator"
	"osp-go-host/internal/telegram"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func noSleep(time.Duration) {}

func newSimController(t *testing.T, opts ...simulator.Option) (*Controller, *simulator.Chain) {
	t.Helper()
	sim := simulator.New(append([]simulator.Option{simulator.WithLogger(newTestLogger())}, opts...)...)
	client := osp.NewClient(sim, newTestLogger())
	ctrl := NewController(client, newTestLogger(),
		WithPassword(simulator.DefaultPassword), WithSleep(noSleep))
	return ctrl, sim
}

func discover(t *testing.T, c *Controller) {
	t.Helper()
	if _, err := c.ResetInit(context.Background()); err != nil {
		t.Fatalf("ResetInit: %v", err)
	}
}

// tids returns the telegram ids the simulator saw.
func tids(sim *simulator.Chain) []uint8 {
	var out []uint8
	for _, r := range sim.Records() {
		f, err := telegram.Parse(r.Tx)
		if err == nil {
			out = append(out, f.TID())
		}
	}
	return out
}

func countTID(sim *simulator.Chain, tid uint8) int {
	n := 0
	for _, x := range tids(sim) {
		if x == tid {
			n++
		}
	}
	return n
}

// scripted is a transport answering through a per-telegram handler.
type scripted struct {
	mu      sync.Mutex
	handler func(ctx context.Context, f *telegram.Frame) ([]byte, error)
	sent    []*telegram.Frame
	dirs    []osp.Direction
}

func (s *scripted) call(ctx context.Context, tx []byte) ([]byte, error) {
	f, err := telegram.Parse(tx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.sent = append(s.sent, f)
	s.mu.Unlock()
	return s.handler(ctx, f)
}

func (s *scripted) Transmit(ctx context.Context, tx []byte) error {
	_, err := s.call(ctx, tx)
	return err
}

func (s *scripted) TransmitReceive(ctx context.Context, tx []byte, n int) ([]byte, error) {
	return s.call(ctx, tx)
}

func (s *scripted) SetDirection(d osp.Direction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirs = append(s.dirs, d)
	return nil
}

func newScriptedController(h func(ctx context.Context, f *telegram.Frame) ([]byte, error)) (*Controller, *scripted) {
	tr := &scripted{handler: h}
	client := osp.NewClient(tr, newTestLogger())
	return NewController(client, newTestLogger(), WithPassword(0x0000A1B2C3D4E5F6), WithSleep(noSleep)), tr
}

func reply(t *testing.T, addr telegram.Address, tid uint8, payload ...byte) []byte {
	t.Helper()
	f, err := telegram.Build(addr, tid, payload)
	if err != nil {
		t.Fatal(err)
	}
	return f.Bytes()
}

// --- discovery ---

func TestResetInitLoop(t *testing.T) {
	c, sim := newSimController(t, simulator.WithSAID(2), simulator.WithRGBI(2))

	topo, err := c.ResetInit(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if topo.Last != 4 || topo.Direction != osp.DirLoop || !topo.Discovered {
		t.Errorf("topology = %+v, want 4 nodes in loop", topo)
	}
	if n := countTID(sim, telegram.CmdInitBidir.TID); n != 0 {
		t.Errorf("INITBIDIR sent %d times, want 0", n)
	}
	if c.Last() != 4 || c.Direction() != osp.DirLoop || !c.Discovered() {
		t.Error("cache not updated")
	}
}

func TestResetInitBidirFallback(t *testing.T) {
	c, sim := newSimController(t, simulator.WithSAID(3), simulator.WithWiring(simulator.WiringBidir))

	var events []Event
	c.Events().On(EventDiscovery, func(e Event) { events = append(events, e) })

	topo, err := c.ResetInit(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if topo.Last != 3 || topo.Direction != osp.DirBidir {
		t.Errorf("topology = %+v, want 3 nodes bidir", topo)
	}
	want := []uint8{
		telegram.CmdReset.TID, telegram.CmdInitLoop.TID,
		telegram.CmdReset.TID, telegram.CmdInitBidir.TID,
	}
	got := tids(sim)
	if len(got) != len(want) {
		t.Fatalf("telegrams = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("telegram %d = 0x%02X, want 0x%02X", i, got[i], want[i])
		}
	}
	if len(events) != 1 || events[0].Data.(DiscoveryEvent).Direction != "bidir" {
		t.Errorf("events = %+v", events)
	}
}

func TestResetInitCabling(t *testing.T) {
	c, sim := newSimController(t, simulator.WithSAID(1), simulator.WithWiring(simulator.WiringNone))
	_, err := c.ResetInit(context.Background())
	if !errors.Is(err, ErrCabling) {
		t.Fatalf("err = %v, want ErrCabling", err)
	}
	if c.Discovered() || c.Last() != 0 {
		t.Error("failed discovery left a cached result")
	}
	if n := countTID(sim, telegram.CmdInitBidir.TID); n != 1 {
		t.Errorf("INITBIDIR sent %d times, want 1", n)
	}
}

func TestResetInitFailureClearsCache(t *testing.T) {
	fail := false
	c, _ := newScriptedController(func(_ context.Context, f *telegram.Frame) ([]byte, error) {
		if f.TID() == telegram.CmdInitLoop.TID {
			if fail {
				return nil, osp.ErrNoClock
			}
			return reply(t, 7, f.TID(), 0x80, 0x40), nil
		}
		if f.TID() == telegram.CmdInitBidir.TID {
			return nil, osp.ErrNoClock
		}
		return nil, nil
	})
	discover(t, c)
	if c.Last() != 7 {
		t.Fatalf("last = %s, want 0x007", c.Last())
	}

	var failed int
	c.Events().On(EventDiscoveryFailed, func(Event) { failed++ })
	fail = true
	if _, err := c.ResetInit(context.Background()); !errors.Is(err, ErrCabling) {
		t.Fatalf("err = %v, want ErrCabling", err)
	}
	if c.Discovered() || c.Last() != 0 {
		t.Error("cache not cleared")
	}
	if failed != 1 {
		t.Errorf("failed events = %d, want 1", failed)
	}
}

func TestResetInitOtherErrorAborts(t *testing.T) {
	usb := errors.New("usb unplugged")
	c, tr := newScriptedController(func(_ context.Context, f *telegram.Frame) ([]byte, error) {
		if f.TID() == telegram.CmdInitLoop.TID {
			return nil, usb
		}
		return nil, nil
	})
	_, err := c.ResetInit(context.Background())
	if !errors.Is(err, usb) {
		t.Errorf("err = %v, want the transport error", err)
	}
	if errors.Is(err, ErrCabling) {
		t.Error("transport failure reported as cabling")
	}
	for _, f := range tr.sent {
		if f.TID() == telegram.CmdInitBidir.TID {
			t.Error("bidir attempted after a non-clock error")
		}
	}
	if len(tr.dirs) != 1 || tr.dirs[0] != osp.DirLoop {
		t.Errorf("directions = %v, want [loop]", tr.dirs)
	}
}

func TestResetInitDecodeErrorAborts(t *testing.T) {
	c, _ := newScriptedController(func(_ context.Context, f *telegram.Frame) ([]byte, error) {
		if f.TID() == telegram.CmdInitLoop.TID {
			b := reply(t, 2, f.TID(), 0, 0)
			b[len(b)-1] ^= 0x01
			return b, nil
		}
		return nil, nil
	})
	if _, err := c.ResetInit(context.Background()); !errors.Is(err, telegram.ErrCRC) {
		t.Errorf("err = %v, want ErrCRC", err)
	}
}

// --- OTP ---

func TestSetOTP(t *testing.T) {
	c, sim := newSimController(t, simulator.WithSAID(2))
	discover(t, c)

	if err := c.SetOTP(context.Background(), 2, 0x0D, 0x05, 0xFF); err != nil {
		t.Fatal(err)
	}
	if got := sim.OTP(1)[0x0D]; got != 0x05 {
		t.Errorf("otp[0x0D] = 0x%02X, want 0x05", got)
	}
	if sim.Authenticated(1) {
		t.Error("node left authenticated")
	}

	if err := c.SetOTP(context.Background(), 2, 0x0D, 0x00, ^uint8(0x01)); err != nil {
		t.Fatal(err)
	}
	if got := sim.OTP(1)[0x0D]; got != 0x04 {
		t.Errorf("otp[0x0D] = 0x%02X, want 0x04", got)
	}
	if sim.Garbled() != 0 {
		t.Errorf("garbled = %d, want 0", sim.Garbled())
	}
}

func TestSetOTPRowRange(t *testing.T) {
	for _, row := range []uint8{0x00, 0x0C, 0x20, 0xFF} {
		c, tr := newScriptedController(func(context.Context, *telegram.Frame) ([]byte, error) { return nil, nil })
		err := c.SetOTP(context.Background(), 1, row, 0x01, 0xFF)
		if !errors.Is(err, telegram.ErrArgument) {
			t.Errorf("row 0x%02X: err = %v, want ErrArgument", row, err)
		}
		if len(tr.sent) != 0 {
			t.Errorf("row 0x%02X: %d telegrams sent, want 0", row, len(tr.sent))
		}
	}
}

// otpScript answers READOTP and fails the step named by failTID.
func otpScript(t *testing.T, failTID uint8, failErr error) func(context.Context, *telegram.Frame) ([]byte, error) {
	return func(_ context.Context, f *telegram.Frame) ([]byte, error) {
		if f.TID() == failTID {
			if pw, err := telegram.ParseSetTestPW(f); err == nil && pw == telegram.TestPWRevoke {
				return nil, nil
			}
			return nil, failErr
		}
		if f.TID() == telegram.CmdReadOTP.TID {
			r, err := telegram.EncodeReadOTPResponse(f.Addr(), [8]byte{0x10, 1, 2, 3, 4, 5, 6, 7})
			if err != nil {
				t.Fatal(err)
			}
			return r.Bytes(), nil
		}
		return nil, nil
	}
}

func lastIsRevoke(t *testing.T, sent []*telegram.Frame) {
	t.Helper()
	if len(sent) == 0 {
		t.Fatal("nothing sent")
	}
	last := sent[len(sent)-1]
	pw, err := telegram.ParseSetTestPW(last)
	if err != nil || pw != telegram.TestPWRevoke {
		t.Errorf("last telegram = %s, want SETTESTPW(0)", last)
	}
}

func TestSetOTPWriteFailureStillRevokes(t *testing.T) {
	writeErr := errors.New("write failed")
	c, tr := newScriptedController(otpScript(t, telegram.CmdSetOTP.TID, writeErr))

	err := c.SetOTP(context.Background(), 3, 0x0D, 0x01, 0xFF)
	if !errors.Is(err, writeErr) {
		t.Errorf("err = %v, want the write error", err)
	}
	want := []uint8{telegram.CmdSetTestPW.TID, telegram.CmdReadOTP.TID, telegram.CmdSetOTP.TID, telegram.CmdSetTestPW.TID}
	if len(tr.sent) != len(want) {
		t.Fatalf("sent %d telegrams, want %d", len(tr.sent), len(want))
	}
	for i, f := range tr.sent {
		if f.TID() != want[i] {
			t.Errorf("telegram %d = %s, want tid 0x%02X", i, f, want[i])
		}
	}
	lastIsRevoke(t, tr.sent)

	row, data, err := telegram.ParseSetOTP(tr.sent[2])
	if err != nil || row != 0x0D || data[0] != 0x11 || data[6] != 6 {
		t.Errorf("SETOTP = 0x%02X % X, %v", row, data, err)
	}
	pw, _ := telegram.ParseSetTestPW(tr.sent[0])
	if pw != 0x0000A1B2C3D4E5F6 {
		t.Errorf("password = 0x%012X", pw)
	}
}

func TestSetOTPReadFailureStillRevokes(t *testing.T) {
	c, tr := newScriptedController(otpScript(t, telegram.CmdReadOTP.TID, osp.ErrNoClock))
	if err := c.SetOTP(context.Background(), 3, 0x10, 0x01, 0xFF); !errors.Is(err, osp.ErrNoClock) {
		t.Errorf("err = %v, want ErrNoClock", err)
	}
	if len(tr.sent) != 3 {
		t.Errorf("sent %d telegrams, want 3", len(tr.sent))
	}
	lastIsRevoke(t, tr.sent)
}

func TestSetOTPAcquireFailureSkipsRevoke(t *testing.T) {
	c, tr := newScriptedController(otpScript(t, telegram.CmdSetTestPW.TID, errors.New("bus error")))
	if err := c.SetOTP(context.Background(), 3, 0x10, 0x01, 0xFF); err == nil {
		t.Fatal("expected error")
	}
	if len(tr.sent) != 1 {
		t.Errorf("sent %d telegrams, want only the failed SETTESTPW", len(tr.sent))
	}
}

func TestSetOTPRevokeFailureNotSurfaced(t *testing.T) {
	c, _ := newScriptedController(func(_ context.Context, f *telegram.Frame) ([]byte, error) {
		if pw, err := telegram.ParseSetTestPW(f); err == nil && pw == telegram.TestPWRevoke {
			return nil, errors.New("revoke lost")
		}
		return otpScript(t, 0x7F, nil)(context.Background(), f)
	})
	if err := c.SetOTP(context.Background(), 3, 0x10, 0x01, 0xFF); err != nil {
		t.Errorf("err = %v, want nil", err)
	}
}

func TestSetOTPRevokesAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c, tr := newScriptedController(func(ctx context.Context, f *telegram.Frame) ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f.TID() == telegram.CmdReadOTP.TID {
			cancel()
			return nil, context.Canceled
		}
		return nil, nil
	})
	if err := c.SetOTP(ctx, 3, 0x10, 0x01, 0xFF); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	lastIsRevoke(t, tr.sent)
}

func TestOTPBitAccessors(t *testing.T) {
	c, sim := newSimController(t, simulator.WithSAID(1))
	discover(t, c)
	ctx := context.Background()

	if err := c.SetSyncPinEnable(ctx, 1, true); err != nil {
		t.Fatal(err)
	}
	if err := c.SetI2CEnable(ctx, 1, true); err != nil {
		t.Fatal(err)
	}
	on, err := c.SyncPinEnable(ctx, 1)
	if err != nil || !on {
		t.Errorf("SyncPinEnable = %v, %v", on, err)
	}
	if got := sim.OTP(0)[0x0D]; got != 0x05 {
		t.Errorf("otp[0x0D] = 0x%02X, want 0x05", got)
	}
	if err := c.SetI2CEnable(ctx, 1, false); err != nil {
		t.Fatal(err)
	}
	on, err = c.I2CEnable(ctx, 1)
	if err != nil || on {
		t.Errorf("I2CEnable = %v, %v; want false", on, err)
	}
}

func TestBurn(t *testing.T) {
	c, sim := newSimController(t, simulator.WithSAID(1))
	discover(t, c)
	ctx := context.Background()

	if err := c.SetOTP(ctx, 1, 0x0E, 0x80, 0xFF); err != nil {
		t.Fatal(err)
	}
	if err := c.Burn(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if sim.Fuses(0)[0x0E] != 0x80 {
		t.Errorf("fuse 0x0E = 0x%02X, want 0x80", sim.Fuses(0)[0x0E])
	}
	if sim.Authenticated(0) {
		t.Error("node left authenticated after burn")
	}
	if err := c.Burn(ctx, telegram.Broadcast); !errors.Is(err, telegram.ErrAddress) {
		t.Errorf("broadcast burn: err = %v, want ErrAddress", err)
	}
}

func TestOTPDump(t *testing.T) {
	c, _ := newSimController(t, simulator.WithSAID(1))
	discover(t, c)
	ctx := context.Background()
	_ = c.SetOTP(ctx, 1, 0x0D, 0xA5, 0x00)
	_ = c.SetOTP(ctx, 1, 0x0E, 0x8B, 0x00)

	c.Client().SetLogLevel(osp.LogTele)
	var levels []osp.LogLevel
	c.Client().OnExchange(func(osp.Exchange) { levels = append(levels, c.Client().LogLevel()) })

	img, err := c.OTPDump(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(levels) != 4 {
		t.Fatalf("exchanges = %d, want 4", len(levels))
	}
	for _, l := range levels {
		if l != osp.LogNone {
			t.Errorf("log level during dump = %s, want none", l)
		}
	}
	if c.Client().LogLevel() != osp.LogTele {
		t.Error("log level not restored")
	}

	if img[0x0D] != 0xA5 || len(img.Customer()) != 0x13 {
		t.Errorf("image = % X", img)
	}
	if img.ChClustering() != 5 || !img.I2CBridgeEn() || !img.SyncPinEn() || img.SPIMode() {
		t.Errorf("row 0x0D fields wrong: %+v", img.Fields())
	}
	if !img.StarStart() || !img.OTPAddrEn() || img.StarNetOTPAddr() != 3 {
		t.Errorf("row 0x0E fields wrong: %+v", img.Fields())
	}
	if f := img.Fields(); len(f) != 9 || f[0].Name != "CH_CLUSTERING" || f[0].Value != 5 {
		t.Errorf("Fields = %+v", f)
	}
}

// --- I2C ---

func TestI2CPreflight(t *testing.T) {
	t.Run("rgbi", func(t *testing.T) {
		c, sim := newSimController(t, simulator.WithRGBI(1))
		discover(t, c)
		_, err := c.I2CRead(context.Background(), 1, 0x50, 0, 1)
		if !errors.Is(err, ErrWrongDevice) {
			t.Errorf("err = %v, want ErrWrongDevice", err)
		}
		if countTID(sim, telegram.CmdI2CRead.TID) != 0 {
			t.Error("I2C bus touched")
		}
	})
	t.Run("no bridge", func(t *testing.T) {
		c, sim := newSimController(t, simulator.WithSAID(1))
		discover(t, c)
		err := c.I2CWrite(context.Background(), 1, 0x50, 0, []byte{1})
		if !errors.Is(err, ErrNoI2CBridge) {
			t.Errorf("err = %v, want ErrNoI2CBridge", err)
		}
		if countTID(sim, telegram.CmdI2CWrite.TID) != 0 {
			t.Error("I2C bus touched")
		}
	})
}

func TestI2CPolling(t *testing.T) {
	ops := []struct {
		name string
		run  func(c *Controller, dev uint8) error
	}{
		{"write", func(c *Controller, dev uint8) error {
			return c.I2CWrite(context.Background(), 1, dev, 0, []byte{0xCD})
		}},
		{"read", func(c *Controller, dev uint8) error {
			_, err := c.I2CRead(context.Background(), 1, dev, 0, 1)
			return err
		}},
	}
	tests := []struct {
		name  string
		busy  int
		dev   uint8
		want  error
		polls int
	}{
		{"idle", 0, 0x50, nil, 1},
		{"busy 9", 9, 0x50, nil, 10},
		{"busy 10", 10, 0x50, ErrI2CTimeout, 10},
		{"nack", 0, 0x51, ErrI2CNack, 1},
	}
	for _, op := range ops {
		for _, tt := range tests {
			t.Run(op.name+"/"+tt.name, func(t *testing.T) {
				c, sim := newSimController(t, simulator.WithSAID(1),
					simulator.WithI2CDevice(0, 0x50, []byte{0xAB}), simulator.WithI2CBusy(tt.busy))
				discover(t, c)
				err := op.run(c, tt.dev)
				if !errors.Is(err, tt.want) {
					t.Errorf("err = %v, want %v", err, tt.want)
				}
				if n := countTID(sim, telegram.CmdReadI2CCfg.TID); n != tt.polls {
					t.Errorf("polls = %d, want %d", n, tt.polls)
				}
				wantLast := 0
				if op.name == "read" && tt.want == nil {
					wantLast = 1
				}
				if n := countTID(sim, telegram.CmdReadLast.TID); n != wantLast {
					t.Errorf("readlast sent %d times, want %d", n, wantLast)
				}
			})
		}
	}
}

func TestI2CReadWrite(t *testing.T) {
	c, sim := newSimController(t, simulator.WithSAID(2),
		simulator.WithI2CDevice(1, 0x50, []byte{0x00, 0x11, 0x22, 0x33}), simulator.WithI2CBusy(3))
	discover(t, c)
	ctx := context.Background()

	got, err := c.I2CRead(ctx, 2, 0x50, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != 0x11 || got[1] != 0x22 {
		t.Errorf("I2CRead = % X, want 11 22", got)
	}

	var ev []I2CEvent
	c.Events().On(EventI2C, func(e Event) { ev = append(ev, e.Data.(I2CEvent)) })
	if err := c.I2CWrite(ctx, 2, 0x50, 0, []byte{0xEE, 0xFF}); err != nil {
		t.Fatal(err)
	}
	if sim.Device(1, 0x50).Register(1) != 0xFF {
		t.Error("write not applied")
	}
	if len(ev) != 1 || ev[0].Op != "write" || ev[0].Error != "" {
		t.Errorf("events = %+v", ev)
	}
}

func TestI2CPowerAndScan(t *testing.T) {
	c, _ := newSimController(t, simulator.WithSAID(1),
		simulator.WithI2CDevice(0, 0x50, nil), simulator.WithI2CDevice(0, 0x68, nil))
	discover(t, c)
	ctx := context.Background()

	if err := c.I2CPower(ctx, 1); err != nil {
		t.Fatal(err)
	}
	cur, err := c.Client().ReadCurChn(ctx, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if cur.Red != 4 || cur.Green != 4 || cur.Blue != 4 || cur.Flags != 0 {
		t.Errorf("channel 2 = %+v", cur)
	}

	found, err := c.I2CScan(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 2 || found[0] != 0x50 || found[1] != 0x68 {
		t.Errorf("scan = % X, want 50 68", found)
	}
}

// --- misc ---

func TestExchangeEvents(t *testing.T) {
	c, _ := newSimController(t, simulator.WithSAID(1))
	var evs []ExchangeEvent
	c.Events().On(EventExchange, func(e Event) { evs = append(evs, e.Data.(ExchangeEvent)) })
	discover(t, c)
	if len(evs) != 2 || evs[0].Op != "reset" || evs[1].Op != "initloop" {
		t.Fatalf("events = %+v", evs)
	}

	raw, err := json.Marshal(evs[1])
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if got["op"] != "initloop" || got["addr"] != 1.0 || got["tx"] != "A0 04 03 86" {
		t.Errorf("json = %s", raw)
	}
	if rx, _ := got["rx"].(string); len(rx) != len("00 00 00 00 00 00") {
		t.Errorf("rx = %q, want 6 hex bytes", rx)
	}
	if _, ok := got["error"]; ok {
		t.Errorf("error present in %s", raw)
	}
}

func TestPassword(t *testing.T) {
	sim := simulator.New(simulator.WithLogger(newTestLogger()))
	c := NewController(osp.NewClient(sim, newTestLogger()), newTestLogger(), WithSleep(noSleep))
	if c.HasPassword() {
		t.Error("new controller should start with the unknown password")
	}
	discover(t, c)

	_ = c.SetOTP(context.Background(), 1, 0x10, 0x42, 0xFF)
	if sim.OTP(0)[0x10] != 0 {
		t.Error("write accepted with the unknown password")
	}

	c.SetPassword(simulator.DefaultPassword)
	if !c.HasPassword() {
		t.Error("HasPassword = false after SetPassword")
	}
	if err := c.SetOTP(context.Background(), 1, 0x10, 0x42, 0xFF); err != nil {
		t.Fatal(err)
	}
	if sim.OTP(0)[0x10] != 0x42 {
		t.Errorf("otp[0x10] = 0x%02X, want 0x42", sim.OTP(0)[0x10])
	}
}

func TestEventBusUnsubscribeAndPanic(t *testing.T) {
	eb := NewEventBus(newTestLogger())
	count := 0
	unsub := eb.OnAll(func(Event) { count++ })
	eb.On(EventBurn, func(Event) { panic("boom") })

	eb.Emit(Event{Type: EventBurn})
	unsub()
	eb.Emit(Event{Type: EventBurn})
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestNodeStatusAndScan(t *testing.T) {
	c, _ := newSimController(t, simulator.WithSAID(1), simulator.WithRGBI(1))
	ctx := context.Background()

	if _, err := c.Scan(ctx); !errors.Is(err, ErrNotDiscovered) {
		t.Fatalf("Scan before discovery: err = %v, want ErrNotDiscovered", err)
	}
	discover(t, c)

	info, err := c.NodeStatus(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if info.Family != "SAID" || info.TempC != 25 || info.StatText != "sleep-tv-clou" {
		t.Errorf("node 1 = %+v", info)
	}

	nodes, err := c.Scan(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 2 || nodes[1].Family != "RGBI" || nodes[1].TempC != 27 {
		t.Errorf("scan = %+v", nodes)
	}
	if nodes[1].StatText != "sleep-oL-clou" {
		t.Errorf("rgbi stat = %q, want sleep-oL-clou", nodes[1].StatText)
	}
}

func TestDoSerializes(t *testing.T) {
	c, _ := newSimController(t, simulator.WithSAID(1))
	discover(t, c)
	var id telegram.Identity
	err := c.Do(func(cl *osp.Client) error {
		var err error
		id, err = cl.Identify(context.Background(), 1)
		return err
	})
	if err != nil || !id.IsSAID() {
		t.Errorf("Do identify = %s, %v", id, err)
	}
}

func TestExecute(t *testing.T) {
	c, sim := newSimController(t, simulator.WithSAID(1), simulator.WithRGBI(1),
		simulator.WithI2CDevice(0, 0x50, []byte{0x42}))
	ctx := context.Background()
	and := uint8(0xFF)

	tests := []struct {
		name    string
		req     Request
		wantErr error
	}{
		{"resetinit", Request{Op: "resetinit"}, nil},
		{"identify", Request{Op: "identify", Addr: "1"}, nil},
		{"status", Request{Op: "status", Addr: "0x002"}, nil},
		{"goactive broadcast", Request{Op: "goactive", Addr: "broadcast"}, nil},
		{"setpwm", Request{Op: "setpwm", Addr: "2", Red: 0x100, Daytimes: 4}, nil},
		{"setotp", Request{Op: "setotp", Addr: "1", Row: 0x11, Or: 0x80, And: &and}, nil},
		{"i2cread", Request{Op: "i2cread", Addr: "1", Device: 0x50, Count: 1}, nil},
		{"i2cwrite range", Request{Op: "i2cwrite", Addr: "1", Device: 0x50, Data: []int{256}}, telegram.ErrArgument},
		{"bad addr", Request{Op: "identify", Addr: "0x3FF"}, telegram.ErrAddress},
		{"unknown", Request{Op: "burn", Addr: "1"}, ErrUnknownOp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := c.Execute(ctx, tt.req)
			if tt.wantErr == nil {
				if !resp.OK {
					t.Fatalf("%s failed: %s", tt.req.Op, resp.Error)
				}
				return
			}
			if resp.OK {
				t.Fatalf("%s succeeded, want error", tt.req.Op)
			}
			_, err := c.execute(ctx, tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if sim.OTP(0)[0x11] != 0x80 {
		t.Errorf("otp[0x11] = 0x%02X, want 0x80", sim.OTP(0)[0x11])
	}
	resp := c.Execute(ctx, Request{Op: "i2cread", Addr: "1", Device: 0x50, Count: 1})
	if got, ok := resp.Result.([]int); !ok || len(got) != 1 || got[0] != 0x42 {
		t.Errorf("i2cread result = %#v", resp.Result)
	}
}

// blockedWhileHeld runs fn in a goroutine while the procedure lock is held
// and reports whether fn finished before the lock was released. after runs
// with the lock still held, once fn has had time to start.
func blockedWhileHeld(t *testing.T, c *Controller, fn func(), after func()) bool {
	t.Helper()
	done := make(chan struct{})
	var early bool
	c.Do(func(*osp.Client) error {
		go func() {
			fn()
			close(done)
		}()
		time.Sleep(20 * time.Millisecond)
		select {
		case <-done:
			early = true
		default:
		}
		if after != nil {
			after()
		}
		return nil
	})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("call never finished")
	}
	return !early
}

func TestOTPGettersSerialized(t *testing.T) {
	c, _ := newSimController(t, simulator.WithSAID(1))
	discover(t, c)
	ctx := context.Background()

	getters := map[string]func(){
		"I2CEnable":     func() { c.I2CEnable(ctx, 1) },
		"SyncPinEnable": func() { c.SyncPinEnable(ctx, 1) },
	}
	for name, fn := range getters {
		if !blockedWhileHeld(t, c, fn, nil) {
			t.Errorf("%s ran while another procedure held the chain", name)
		}
	}
}

func TestScanReadsTopologyUnderLock(t *testing.T) {
	c, _ := newSimController(t, simulator.WithSAID(2))
	discover(t, c)

	var nodes []NodeInfo
	var err error
	blocked := blockedWhileHeld(t, c,
		func() { nodes, err = c.Scan(context.Background()) },
		func() {
			c.mu.Lock()
			c.last = 1
			c.mu.Unlock()
		})
	if !blocked {
		t.Fatal("Scan ran while another procedure held the chain")
	}
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 1 {
		t.Errorf("Scan returned %d nodes, want 1 from the topology current at lock time", len(nodes))
	}
}
