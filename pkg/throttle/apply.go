//go:build linux

package throttle

import (
	"fmt"

	"github.com/ja7ad/powerlimit/pkg/config"
	"github.com/ja7ad/powerlimit/pkg/power"
	"github.com/ja7ad/powerlimit/pkg/regs"
)

// ApplyStartupSettings programs the mailbox-backed registers and the HWP
// preference once, before the control loop starts.
func (c *Controller) ApplyStartupSettings() error {
	return c.applyMailboxAndHWP(c.Config())
}

// ApplyMailboxSettings re-applies undervolt and IccMax for the current
// power source. Called on resume from sleep: firmware resets the
// mailbox-backed registers across suspend, unlike the power-limit
// register, which the control loop continuously re-asserts.
func (c *Controller) ApplyMailboxSettings() error {
	cfg := c.Config()
	src, _ := c.tracker.Get()
	if err := c.applyUndervolt(cfg, src); err != nil {
		return err
	}
	return c.applyIccMax(cfg, src)
}

func (c *Controller) applyMailboxAndHWP(cfg *config.Config) error {
	src, _ := c.tracker.Get()
	if err := c.applyUndervolt(cfg, src); err != nil {
		return err
	}
	if err := c.applyIccMax(cfg, src); err != nil {
		return err
	}
	return c.applyHWP(cfg.AC.HWPMode)
}

func (c *Controller) applyUndervolt(cfg *config.Config, src power.Source) error {
	if !c.features.Has(FeatureUndervolt) || !cfg.UndervoltConfigured() {
		return nil
	}
	for _, plane := range regs.VoltagePlanes {
		offsetMV := cfg.UndervoltMV(src, plane)
		cmd, err := regs.UndervoltWrite(plane, offsetMV)
		if err != nil {
			return err
		}
		if err := c.mailbox.WriteCommand(cmd); err != nil {
			return err
		}
		if c.debug {
			written := cmd & 0xFFFFFFFF
			read, err := c.mailbox.ReadUndervolt(plane)
			if err != nil {
				return err
			}
			c.log.Debug("undervolt",
				"plane", plane.String(),
				"write_mv", offsetMV, "write", fmt.Sprintf("%#x", written),
				"read_mv", regs.UndervoltMV(read), "read", fmt.Sprintf("%#x", read),
				"match", written == read)
		}
	}
	return nil
}

func (c *Controller) applyIccMax(cfg *config.Config, src power.Source) error {
	for _, plane := range regs.CurrentPlanes {
		amps, ok := cfg.IccMaxA(src, plane)
		if !ok {
			continue
		}
		cmd, err := regs.IccMaxWrite(plane, amps)
		if err != nil {
			// exceeds the 10-bit hardware field, skip the plane
			c.log.Warn("skipping unencodable iccmax value", "plane", plane.String(), "err", err)
			continue
		}
		if err := c.mailbox.WriteCommand(cmd); err != nil {
			return err
		}
		if c.debug {
			written := cmd & 0x3FF
			read, err := c.mailbox.ReadIccMax(plane)
			if err != nil {
				return err
			}
			c.log.Debug("iccmax",
				"plane", plane.String(),
				"write_a", amps, "write", fmt.Sprintf("%#x", written),
				"read_a", regs.IccMaxAmps(read), "read", fmt.Sprintf("%#x", read),
				"match", written == read)
		}
	}
	return nil
}

// applyHWP programs the energy-performance preference. A nil enable means
// hwp_mode is absent from the config and nothing is written.
func (c *Controller) applyHWP(enable *bool) error {
	if enable == nil || !c.features.Has(FeatureHWP) {
		return nil
	}
	pref := regs.HWPDefault
	if *enable {
		pref = regs.HWPPerformance
	}
	cur, err := c.dev.ReadCore(regs.HWPRequest, 0, 0, 63)
	if err != nil {
		return err
	}
	if err := c.dev.Write(regs.HWPRequest, regs.HWPRequestValue(cur, pref)); err != nil {
		return err
	}
	if c.debug {
		read, err := c.dev.ReadCore(regs.HWPRequest, 0, 24, 31)
		if err != nil {
			return err
		}
		c.log.Debug("hwp",
			"write", fmt.Sprintf("%#x", pref), "read", fmt.Sprintf("%#x", read),
			"match", pref == read)
	}
	return nil
}

// disableBDProchot clears the external thermal-assertion input so other
// components cannot force throttling.
func (c *Controller) disableBDProchot() error {
	cur, err := c.dev.ReadFlatten(regs.PowerCtl, 0, 63)
	if err != nil {
		return err
	}
	if err := c.dev.Write(regs.PowerCtl, regs.DisableBDProchot(cur)); err != nil {
		return err
	}
	if c.debug {
		read, err := c.dev.ReadCore(regs.PowerCtl, 0, 0, 0)
		if err != nil {
			return err
		}
		c.log.Debug("bdprochot", "write", "0x0",
			"read", fmt.Sprintf("%#x", read), "match", read == 0)
	}
	return nil
}
