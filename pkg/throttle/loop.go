//go:build linux

package throttle

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ja7ad/powerlimit/pkg/config"
	"github.com/ja7ad/powerlimit/pkg/power"
	"github.com/ja7ad/powerlimit/pkg/regs"
)

// Run executes the control loop until the context is cancelled. Any
// register write failure is returned as fatal: a partially applied
// register state is unsafe to keep operating under.
func (c *Controller) Run(ctx context.Context) error {
	if c.sleep == nil {
		c.sleep = waitOrCancel
	}
	for ctx.Err() == nil {
		if err := c.tick(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) tick(ctx context.Context) error {
	if c.debug {
		if err := c.dumpThermalStatus(); err != nil {
			return err
		}
	}

	if c.Config().General.Autoreload {
		if err := c.maybeReload(); err != nil {
			return err
		}
	}
	cfg := c.Config()

	if _, method := c.tracker.Get(); method == power.Polling {
		c.tracker.SetPolled(c.detector.Source())
	}
	src, _ := c.tracker.Get()

	c.mu.Lock()
	rs := c.regset[src]
	c.mu.Unlock()

	if rs.TemperatureTarget != nil {
		if err := c.dev.Write(regs.TemperatureTarget, *rs.TemperatureTarget); err != nil {
			return err
		}
		if c.debug {
			read, err := c.dev.ReadFlatten(regs.TemperatureTarget, 24, 29)
			if err != nil {
				return err
			}
			c.log.Debug("temperature target",
				"write", fmt.Sprintf("%#x", *rs.TemperatureTarget>>24),
				"read", fmt.Sprintf("%#x", read),
				"match", *rs.TemperatureTarget>>24 == read)
		}
	}

	if rs.ConfigTDPControl != nil {
		if err := c.dev.Write(regs.ConfigTDPControl, *rs.ConfigTDPControl); err != nil {
			return err
		}
		if c.debug {
			read, err := c.dev.ReadFlatten(regs.ConfigTDPControl, 0, 1)
			if err != nil {
				return err
			}
			c.log.Debug("config tdp control",
				"write", fmt.Sprintf("%#x", *rs.ConfigTDPControl),
				"read", fmt.Sprintf("%#x", read),
				"match", *rs.ConfigTDPControl == read)
		}
	}

	if rs.PkgPowerLimit != nil {
		if err := c.writePowerLimit(*rs.PkgPowerLimit); err != nil {
			return err
		}
	}

	if cfg.Profile(src).DisableBDPROCHOT {
		if err := c.disableBDProchot(); err != nil {
			return err
		}
	}

	// Opportunistic performance hint, rate limited to hwpInterval. An
	// iteration that writes the hint skips the sleep.
	enable := cfg.AC.HWPMode
	if enable != nil && *enable && src == power.AC && !c.now().Before(c.nextHWP) {
		if err := c.applyHWP(enable); err != nil {
			return err
		}
		c.nextHWP = c.now().Add(hwpInterval)
		return nil
	}

	wait := time.Duration(*cfg.Profile(src).UpdateRateS * float64(time.Second))
	c.sleep(ctx, wait)
	return nil
}

// writePowerLimit asserts the package power limit on the register and
// mirrors the identical 64-bit value into the MCHBAR window halves.
func (c *Controller) writePowerLimit(val uint64) error {
	if err := c.dev.Write(regs.PkgPowerLimit, val); err != nil {
		return err
	}
	if c.debug {
		read, err := c.dev.ReadFlatten(regs.PkgPowerLimit, 0, 55)
		if err != nil {
			return err
		}
		c.log.Debug("msr package power limit",
			"write", fmt.Sprintf("%#x", val), "read", fmt.Sprintf("%#x", read),
			"match", val == read)
	}
	if c.window == nil {
		return nil
	}
	if err := c.window.Write32(0, uint32(val)); err != nil {
		return err
	}
	if err := c.window.Write32(4, uint32(val>>32)); err != nil {
		return err
	}
	if c.debug {
		lo, err := c.window.Read32(0)
		if err != nil {
			return err
		}
		hi, err := c.window.Read32(4)
		if err != nil {
			return err
		}
		read := uint64(lo) | uint64(hi)<<32
		c.log.Debug("mchbar package power limit",
			"write", fmt.Sprintf("%#x", val), "read", fmt.Sprintf("%#x", read),
			"match", val == read)
	}
	return nil
}

// maybeReload reloads the configuration when the file's modification time
// changed since the last check. A vanished file is ignored.
func (c *Controller) maybeReload() error {
	fi, err := os.Stat(c.cfgPath)
	if err != nil {
		return nil
	}
	mt := fi.ModTime()
	if c.lastCfgMod.IsZero() {
		c.lastCfgMod = mt
		return nil
	}
	if mt.Equal(c.lastCfgMod) {
		return nil
	}
	c.lastCfgMod = mt

	cfg, err := config.Load(c.cfgPath, c.log)
	if err != nil {
		return err
	}
	if err := c.recompute(cfg); err != nil {
		return err
	}
	if err := c.applyMailboxAndHWP(cfg); err != nil {
		return err
	}
	c.log.Info("reloaded configuration changes")
	return nil
}

// waitOrCancel sleeps for d, returning early (false) when the context is
// cancelled.
func waitOrCancel(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
