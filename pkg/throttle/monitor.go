//go:build linux

package throttle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ja7ad/powerlimit/pkg/regs"
)

// Monitor is the optional read-only telemetry loop: it derives
// instantaneous power from the monotonically increasing energy counters,
// reports live thermal-limit causes and estimates the core voltage. It
// never writes configuration registers; the undervolt/IccMax queries go
// through the shared mailbox, serialized against configuration writers.
type Monitor struct {
	dev      regIO
	mailbox  *Mailbox
	features Features
	interval time.Duration
	log      *slog.Logger
}

type energyPlane struct {
	name string
	reg  regs.Register
}

var energyPlanes = []energyPlane{
	{"package_w", regs.PkgEnergyStatus},
	{"graphics_w", regs.PP1EnergyStatus},
	{"dram_w", regs.DRAMEnergyStatus},
}

// NewMonitor attaches a monitor to a controller's hardware surfaces.
func NewMonitor(c *Controller, interval time.Duration, log *slog.Logger) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	return &Monitor{
		dev:      c.dev,
		mailbox:  c.mailbox,
		features: c.features,
		interval: interval,
		log:      log,
	}
}

// Run samples until the context is cancelled. The first sample only
// establishes the energy baseline.
func (m *Monitor) Run(ctx context.Context) error {
	rawUnit, err := m.dev.ReadCore(regs.RAPLPowerUnit, 0, 0, 63)
	if err != nil {
		return err
	}
	energyUnit := regs.EnergyUnitJ(rawUnit)

	type sample struct {
		joules float64
		at     time.Time
	}
	prev := map[string]sample{}
	for _, p := range energyPlanes {
		raw, err := m.dev.ReadCore(p.reg, 0, 0, 63)
		if err != nil {
			return err
		}
		prev[p.name] = sample{joules: float64(raw) * energyUnit, at: time.Now()}
	}

	m.dumpMailboxState()

	m.log.Info("realtime monitoring of throttling causes")
	for {
		if !waitOrCancel(ctx, m.interval) {
			return nil
		}

		status, err := m.dev.ReadCore(regs.ThermStatus, 0, 0, 15)
		if err != nil {
			return err
		}
		perf, err := m.dev.ReadCore(regs.PerfStatus, 0, 0, 63)
		if err != nil {
			return err
		}

		attrs := []any{
			"thermal_limit", status&1 != 0,
			"power_limit", status>>10&1 != 0,
			"current_limit", status>>12&1 != 0,
			"cross_domain_limit", status>>14&1 != 0,
			"vcore_mv", fmt.Sprintf("%.0f", regs.CoreVoltageMV(perf)),
		}

		var total float64
		for _, p := range energyPlanes {
			raw, err := m.dev.ReadCore(p.reg, 0, 0, 63)
			if err != nil {
				return err
			}
			now := time.Now()
			joules := float64(raw) * energyUnit
			watts := (joules - prev[p.name].joules) / now.Sub(prev[p.name].at).Seconds()
			prev[p.name] = sample{joules: joules, at: now}
			total += watts
			attrs = append(attrs, p.name, fmt.Sprintf("%.1f", watts))
		}
		attrs = append(attrs, "total_w", fmt.Sprintf("%.1f", total))

		m.log.Info("monitor", attrs...)
	}
}

// dumpMailboxState logs the currently programmed undervolt offsets and
// current limits once at startup.
func (m *Monitor) dumpMailboxState() {
	if m.features.Has(FeatureUndervolt) {
		for _, plane := range regs.VoltagePlanes {
			raw, err := m.mailbox.ReadUndervolt(plane)
			if err != nil {
				m.log.Warn("unable to query undervolt offset", "plane", plane.String(), "err", err)
				return
			}
			m.log.Info("undervolt offset", "plane", plane.String(),
				"mv", fmt.Sprintf("%.2f", regs.UndervoltMV(raw)))
		}
	}
	for _, plane := range regs.CurrentPlanes {
		raw, err := m.mailbox.ReadIccMax(plane)
		if err != nil {
			m.log.Warn("unable to query iccmax", "plane", plane.String(), "err", err)
			return
		}
		m.log.Info("iccmax", "plane", plane.String(),
			"amps", fmt.Sprintf("%.2f", regs.IccMaxAmps(raw)))
	}
}
