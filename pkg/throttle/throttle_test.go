//go:build linux

package throttle

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ja7ad/powerlimit/pkg/config"
	"github.com/ja7ad/powerlimit/pkg/power"
	"github.com/ja7ad/powerlimit/pkg/regs"
)

// rawTestUnits reports power unit 0.125 W, energy unit 2^-14 J and time
// unit 2^-10 s.
const rawTestUnits = uint64(3 | 14<<8 | 10<<16)

// fakeDev is an in-memory register file shared by all cores, with a
// behavioral model of the OC mailbox behind it.
type fakeDev struct {
	mu     sync.Mutex
	cores  int
	vals   map[regs.Register]uint64
	writes map[regs.Register][]uint64
	fail   map[regs.Register]error
	delay  time.Duration // per-write, outside the lock

	undervolt map[uint64]uint64
	iccmax    map[uint64]uint64
}

func newFakeDev() *fakeDev {
	return &fakeDev{
		cores: 2,
		vals: map[regs.Register]uint64{
			regs.RAPLPowerUnit: rawTestUnits,
			// critical temperature 100 C
			regs.TemperatureTarget: 100 << 16,
			// programmable tdp limit + temp target, one extra tdp profile
			regs.PlatformInfo: 1<<29 | 1<<30 | 1<<33 | 42<<8,
			regs.PkgPowerLimit: regs.PowerLimits{
				PL1: 200, TW1: 0x10, PL2: 300, TW2: 0x20,
			}.Encode(),
			regs.HWPRequest: regs.HWPDefault << 24,
			regs.PowerCtl:   0x4005B,
		},
		writes:    map[regs.Register][]uint64{},
		fail:      map[regs.Register]error{},
		undervolt: map[uint64]uint64{},
		iccmax:    map[uint64]uint64{},
	}
}

func (d *fakeDev) Write(reg regs.Register, val uint64) error {
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail[reg]; err != nil {
		return err
	}
	d.writes[reg] = append(d.writes[reg], val)
	if reg == regs.OCMailbox {
		d.mailboxCommand(val)
		return nil
	}
	d.vals[reg] = val
	return nil
}

func (d *fakeDev) mailboxCommand(cmd uint64) {
	plane := cmd >> 40 & 0x7
	switch cmd >> 32 & 0xFF {
	case 0x11:
		d.undervolt[plane] = cmd & 0xFFFFFFFF
	case 0x10:
		d.vals[regs.OCMailbox] = d.undervolt[plane]
	case 0x17:
		d.iccmax[plane] = cmd & 0x3FF
	case 0x16:
		d.vals[regs.OCMailbox] = d.iccmax[plane]
	}
}

func (d *fakeDev) Read(reg regs.Register, from, to uint) ([]uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail[reg]; err != nil {
		return nil, err
	}
	out := make([]uint64, d.cores)
	for i := range out {
		out[i] = regs.Bits(d.vals[reg], from, to)
	}
	return out, nil
}

func (d *fakeDev) ReadCore(reg regs.Register, core int, from, to uint) (uint64, error) {
	vals, err := d.Read(reg, from, to)
	if err != nil {
		return 0, err
	}
	if core < 0 || core >= len(vals) {
		return 0, fmt.Errorf("no core %d", core)
	}
	return vals[core], nil
}

func (d *fakeDev) ReadFlatten(reg regs.Register, from, to uint) (uint64, error) {
	vals, err := d.Read(reg, from, to)
	if err != nil {
		return 0, err
	}
	return vals[0], nil
}

func (d *fakeDev) written(reg regs.Register) []uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uint64(nil), d.writes[reg]...)
}

func f64(v float64) *float64 { return &v }

// testConfig mirrors a typical laptop setup: 44/44 W on AC, 29/44 W on
// battery, trip temperatures 97 and 85 C.
func testConfig() *config.Config {
	return &config.Config{
		General: config.General{Enabled: true},
		AC: config.Profile{
			UpdateRateS:  f64(5),
			PL1TdpW:      f64(44),
			PL1DurationS: f64(28),
			PL2TdpW:      f64(44),
			PL2DurationS: f64(0.002),
			TripTempC:    f64(97),
		},
		Battery: config.Profile{
			UpdateRateS:  f64(30),
			PL1TdpW:      f64(29),
			PL1DurationS: f64(28),
			PL2TdpW:      f64(44),
			PL2DurationS: f64(0.002),
			TripTempC:    f64(85),
		},
	}
}

// acDetector never finds sysfs and answers AC through the query fallback.
func acDetector(t *testing.T) *power.Detector {
	t.Helper()
	glob := filepath.Join(t.TempDir(), "none", "online")
	return power.NewDetector(glob, func() (bool, error) { return false, nil }, slog.Default())
}

func newTestController(t *testing.T, dev *fakeDev, cfg *config.Config, features Features) *Controller {
	t.Helper()
	tracker := power.NewTracker(power.AC)
	c, err := New(dev, nil, NewMailbox(dev), tracker, acDetector(t),
		cfg, "", features, false, slog.Default())
	require.NoError(t, err)
	return c
}
