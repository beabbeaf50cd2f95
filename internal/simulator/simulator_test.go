package simulator

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"osp-go-host/internal/osp"
	"osp-go-host/internal/telegram"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestClient(t *testing.T, opts ...Option) (*Chain, *osp.Client) {
	t.Helper()
	sim := New(append([]Option{WithLogger(newTestLogger())}, opts...)...)
	return sim, osp.NewClient(sim, newTestLogger())
}

func initLoop(t *testing.T, c *osp.Client) telegram.InitResult {
	t.Helper()
	ctx := context.Background()
	if err := c.Reset(ctx, telegram.Broadcast); err != nil {
		t.Fatal(err)
	}
	res, err := c.InitLoop(ctx, 1)
	if err != nil {
		t.Fatalf("InitLoop: %v", err)
	}
	return res
}

func TestInitAssignsAddresses(t *testing.T) {
	_, c := newTestClient(t, WithSAID(2), WithRGBI(3))
	res := initLoop(t, c)
	if res.Last != 5 {
		t.Errorf("last = %s, want 0x005", res.Last)
	}
	if res.Stat.State() != telegram.StateSleep {
		t.Errorf("state = %s, want sleep", res.Stat.State())
	}
	if !res.Stat.Has(telegram.StatDirLoop) {
		t.Error("RGBI last node should report loop direction")
	}

	id, err := c.Identify(context.Background(), 1)
	if err != nil || !id.IsSAID() {
		t.Errorf("node 1 = %s, %v; want SAID", id, err)
	}
	id, err = c.Identify(context.Background(), 5)
	if err != nil || !id.IsRGBI() {
		t.Errorf("node 5 = %s, %v; want RGBI", id, err)
	}
	if _, err := c.Identify(context.Background(), 6); !errors.Is(err, osp.ErrNoClock) {
		t.Errorf("node 6: err = %v, want ErrNoClock", err)
	}
}

func TestWiringMismatchHasNoClock(t *testing.T) {
	tests := []struct {
		wiring Wiring
		dir    osp.Direction
		ok     bool
	}{
		{WiringLoop, osp.DirLoop, true},
		{WiringLoop, osp.DirBidir, false},
		{WiringBidir, osp.DirBidir, true},
		{WiringBidir, osp.DirLoop, false},
		{WiringNone, osp.DirLoop, false},
		{WiringNone, osp.DirBidir, false},
	}
	for _, tt := range tests {
		t.Run(tt.wiring.String()+"/"+tt.dir.String(), func(t *testing.T) {
			_, c := newTestClient(t, WithWiring(tt.wiring))
			ctx := context.Background()
			_ = c.Reset(ctx, telegram.Broadcast)
			if err := c.SetDirection(tt.dir); err != nil {
				t.Fatal(err)
			}
			_, err := c.InitBidir(ctx, 1)
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, osp.ErrNoClock) {
				t.Errorf("err = %v, want ErrNoClock", err)
			}
		})
	}
}

func TestStateCommands(t *testing.T) {
	_, c := newTestClient(t, WithSAID(1))
	ctx := context.Background()
	initLoop(t, c)

	if err := c.GoActive(ctx, telegram.Broadcast); err != nil {
		t.Fatal(err)
	}
	st, err := c.ReadStat(ctx, 1)
	if err != nil || st.State() != telegram.StateActive {
		t.Errorf("state = %s, %v; want active", st.State(), err)
	}
	ts, err := c.GoDeepSleepSR(ctx, 1)
	if err != nil || ts.Stat.State() != telegram.StateDeepSleep {
		t.Errorf("GoDeepSleepSR = %+v, %v", ts, err)
	}
}

func TestGroups(t *testing.T) {
	_, c := newTestClient(t, WithSAID(3))
	ctx := context.Background()
	initLoop(t, c)

	if err := c.SetMult(ctx, 2, 1<<4); err != nil {
		t.Fatal(err)
	}
	if err := c.SetPWMChn(ctx, telegram.Group(4), 1, telegram.ChannelPWM{Red: 0x1234}); err != nil {
		t.Fatal(err)
	}
	for addr, want := range map[telegram.Address]uint16{1: 0, 2: 0x1234, 3: 0} {
		p, err := c.ReadPWMChn(ctx, addr, 1)
		if err != nil {
			t.Fatal(err)
		}
		if p.Red != want {
			t.Errorf("node %s red = 0x%04X, want 0x%04X", addr, p.Red, want)
		}
	}
	mask, err := c.ReadMult(ctx, 2)
	if err != nil || mask != 1<<4 {
		t.Errorf("ReadMult = 0x%04X, %v", mask, err)
	}
}

func TestRGBIPWM(t *testing.T) {
	_, c := newTestClient(t, WithRGBI(1))
	ctx := context.Background()
	initLoop(t, c)

	want := telegram.PWM{Red: 0x7FFF, Green: 1, Blue: 0x100, Daytimes: 0b011}
	if err := c.SetPWM(ctx, 1, want); err != nil {
		t.Fatal(err)
	}
	got, err := c.ReadPWM(ctx, 1)
	if err != nil || got != want {
		t.Errorf("ReadPWM = %+v, %v; want %+v", got, err, want)
	}
}

func TestOTPRequiresPassword(t *testing.T) {
	sim, c := newTestClient(t, WithSAID(1), WithPassword(0x112233445566))
	ctx := context.Background()
	initLoop(t, c)

	data := []byte{0xAA, 1, 2, 3, 4, 5, 6}
	if err := c.SetOTP(ctx, 1, 0x10, data); err != nil {
		t.Fatal(err)
	}
	if sim.OTP(0)[0x10] != 0 {
		t.Error("OTP written without password")
	}

	if err := c.SetTestPW(ctx, 1, 0x112233445566); err != nil {
		t.Fatal(err)
	}
	if !sim.Authenticated(0) {
		t.Fatal("node not authenticated")
	}
	if err := c.SetOTP(ctx, 1, 0x10, data); err != nil {
		t.Fatal(err)
	}
	row, err := c.ReadOTP(ctx, 1, 0x10)
	if err != nil {
		t.Fatal(err)
	}
	if row[0] != 0xAA || row[6] != 6 {
		t.Errorf("row = % X", row)
	}

	// The mirror survives RESET but not a power cycle.
	_ = c.SetTestPW(ctx, 1, telegram.TestPWRevoke)
	initLoop(t, c)
	if sim.OTP(0)[0x10] != 0xAA {
		t.Error("mirror lost on reset")
	}
	sim.PowerCycle()
	if sim.OTP(0)[0x10] != 0 {
		t.Error("mirror kept over power cycle")
	}
}

func TestReadOTPBeyondEnd(t *testing.T) {
	_, c := newTestClient(t, WithSAID(1))
	initLoop(t, c)
	row, err := c.ReadOTP(context.Background(), 1, 0x1C)
	if err != nil {
		t.Fatal(err)
	}
	for i := 4; i < 8; i++ {
		if row[i] != 0 {
			t.Errorf("byte %d beyond OTP = 0x%02X, want 0", i, row[i])
		}
	}
}

func TestAuthenticatedNodeGarbles(t *testing.T) {
	sim, c := newTestClient(t, WithSAID(3))
	ctx := context.Background()
	initLoop(t, c)

	if err := c.SetTestPW(ctx, 1, DefaultPassword); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Identify(ctx, 3); !errors.Is(err, osp.ErrNoClock) {
		t.Errorf("downstream identify: err = %v, want ErrNoClock", err)
	}
	if sim.Garbled() != 1 {
		t.Errorf("garbled = %d, want 1", sim.Garbled())
	}
	if _, err := c.Identify(ctx, 1); err != nil {
		t.Errorf("authenticated node itself: %v", err)
	}

	_ = c.SetTestPW(ctx, 1, telegram.TestPWRevoke)
	if _, err := c.Identify(ctx, 3); err != nil {
		t.Errorf("after revoke: %v", err)
	}
}

func TestBurnCopiesMirror(t *testing.T) {
	sim, c := newTestClient(t, WithSAID(1))
	ctx := context.Background()
	initLoop(t, c)

	_ = c.SetTestPW(ctx, 1, DefaultPassword)
	_ = c.SetOTP(ctx, 1, 0x0D, []byte{0x04, 0, 0, 0, 0, 0, 0})
	_ = c.Cust(ctx, 1)
	_ = c.Burn(ctx, 1)
	_ = c.Idle(ctx, 1)
	_ = c.SetTestPW(ctx, 1, telegram.TestPWRevoke)

	sim.PowerCycle()
	if sim.Fuses(0)[0x0D] != 0x04 || sim.OTP(0)[0x0D] != 0x04 {
		t.Errorf("fuse 0x0D = 0x%02X, want 0x04", sim.Fuses(0)[0x0D])
	}
}

func TestI2CBridge(t *testing.T) {
	regs := []byte{0x10, 0x11, 0x12, 0x13}
	sim, c := newTestClient(t, WithSAID(1), WithI2CDevice(0, 0x50, regs), WithI2CBusy(2))
	ctx := context.Background()
	initLoop(t, c)

	if err := c.I2CRead(ctx, 1, 0x50, 1, 3); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		cfg, err := c.ReadI2CCfg(ctx, 1)
		if err != nil || !cfg.Flags.Has(telegram.I2CBusy) {
			t.Fatalf("poll %d: %+v, %v; want busy", i, cfg, err)
		}
	}
	cfg, err := c.ReadI2CCfg(ctx, 1)
	if err != nil || cfg.Flags.Has(telegram.I2CBusy) || cfg.Flags.Has(telegram.I2CNack) {
		t.Fatalf("final poll: %+v, %v", cfg, err)
	}
	got, err := c.ReadLast(ctx, 1, 3)
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != 0x11 || got[2] != 0x13 {
		t.Errorf("ReadLast = % X, want 11 12 13", got)
	}

	if err := c.I2CWrite(ctx, 1, 0x50, 0x02, []byte{0xAB, 0xCD}); err != nil {
		t.Fatal(err)
	}
	if sim.Device(0, 0x50).Register(3) != 0xCD {
		t.Errorf("register 3 = 0x%02X, want 0xCD", sim.Device(0, 0x50).Register(3))
	}

	if err := c.I2CRead(ctx, 1, 0x51, 0, 1); err != nil {
		t.Fatal(err)
	}
	for {
		cfg, err = c.ReadI2CCfg(ctx, 1)
		if err != nil {
			t.Fatal(err)
		}
		if !cfg.Flags.Has(telegram.I2CBusy) {
			break
		}
	}
	if !cfg.Flags.Has(telegram.I2CNack) {
		t.Error("missing device should NACK")
	}
}

func TestMalformedTelegramIgnored(t *testing.T) {
	sim, _ := newTestClient(t)
	_, err := sim.TransmitReceive(context.Background(), []byte{0xA0, 0x04, 0x07, 0x00}, 8)
	if !errors.Is(err, osp.ErrNoClock) {
		t.Errorf("err = %v, want ErrNoClock", err)
	}
	if len(sim.Records()) != 1 {
		t.Errorf("records = %d, want 1", len(sim.Records()))
	}
}

func TestCancelledContext(t *testing.T) {
	sim, _ := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sim.Transmit(ctx, []byte{0xA0, 0x00, 0x00, 0x00}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
