// Package config loads and validates the daemon configuration. The rest of
// the daemon only ever sees the validated, range-checked values.
package config

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/BurntSushi/toml"

	"github.com/ja7ad/powerlimit/pkg/power"
	"github.com/ja7ad/powerlimit/pkg/regs"
)

// ErrMissingField indicates a mandatory configuration field is absent.
var ErrMissingField = errors.New("config: mandatory field missing")

// TripTempRange is the allowed trip temperature interval in degrees C. The
// upper bound is further reduced at runtime to critical_temp - 3.
var TripTempRange = [2]float64{40, 97}

// General holds the source-independent settings.
type General struct {
	Enabled        bool   `toml:"enabled"`
	Autoreload     bool   `toml:"autoreload"`
	SysfsPowerPath string `toml:"sysfs_power_path"`
}

// Profile holds the per-power-source settings. update_rate_s is mandatory;
// for the rest, nil means "leave the currently programmed hardware value
// alone".
type Profile struct {
	UpdateRateS      *float64 `toml:"update_rate_s"`
	PL1TdpW          *float64 `toml:"pl1_tdp_w"`
	PL1DurationS     *float64 `toml:"pl1_duration_s"`
	PL2TdpW          *float64 `toml:"pl2_tdp_w"`
	PL2DurationS     *float64 `toml:"pl2_duration_s"`
	TripTempC        *float64 `toml:"trip_temp_c"`
	CTDP             *int     `toml:"ctdp"`
	DisableBDPROCHOT bool     `toml:"disable_bdprochot"`
	HWPMode          *bool    `toml:"hwp_mode"`
}

// PlaneMV holds per-voltage-plane offsets in mV.
type PlaneMV struct {
	Core     *float64 `toml:"core"`
	GPU      *float64 `toml:"gpu"`
	Cache    *float64 `toml:"cache"`
	Uncore   *float64 `toml:"uncore"`
	AnalogIO *float64 `toml:"analogio"`
}

func (p *PlaneMV) get(plane regs.VoltagePlane) *float64 {
	if p == nil {
		return nil
	}
	switch plane {
	case regs.VoltageCore:
		return p.Core
	case regs.VoltageGPU:
		return p.GPU
	case regs.VoltageCache:
		return p.Cache
	case regs.VoltageUncore:
		return p.Uncore
	case regs.VoltageAnalogIO:
		return p.AnalogIO
	}
	return nil
}

// Undervolt holds the base offsets plus optional per-source overrides.
type Undervolt struct {
	PlaneMV
	AC      *PlaneMV `toml:"ac"`
	Battery *PlaneMV `toml:"battery"`
}

// PlaneAmps holds per-current-plane limits in Amps.
type PlaneAmps struct {
	Core  *float64 `toml:"core"`
	GPU   *float64 `toml:"gpu"`
	Cache *float64 `toml:"cache"`
}

func (p *PlaneAmps) get(plane regs.CurrentPlane) *float64 {
	if p == nil {
		return nil
	}
	switch plane {
	case regs.CurrentCore:
		return p.Core
	case regs.CurrentGPU:
		return p.GPU
	case regs.CurrentCache:
		return p.Cache
	}
	return nil
}

// IccMax holds the base current limits plus optional per-source overrides.
type IccMax struct {
	PlaneAmps
	AC      *PlaneAmps `toml:"ac"`
	Battery *PlaneAmps `toml:"battery"`
}

// Config is the whole validated configuration. Immutable once loaded;
// reloads replace the entire value.
type Config struct {
	General   General   `toml:"general"`
	AC        Profile   `toml:"ac"`
	Battery   Profile   `toml:"battery"`
	Undervolt Undervolt `toml:"undervolt"`
	IccMax    IccMax    `toml:"iccmax"`
}

// Profile returns the settings for a power source.
func (c *Config) Profile(src power.Source) *Profile {
	if src == power.Battery {
		return &c.Battery
	}
	return &c.AC
}

// UndervoltMV resolves the offset for a plane under a power source:
// per-source override first, then the base section, then zero.
func (c *Config) UndervoltMV(src power.Source, plane regs.VoltagePlane) float64 {
	override := c.Undervolt.AC
	if src == power.Battery {
		override = c.Undervolt.Battery
	}
	if v := override.get(plane); v != nil {
		return *v
	}
	if v := c.Undervolt.PlaneMV.get(plane); v != nil {
		return *v
	}
	return 0
}

// IccMaxA resolves the current limit for a plane under a power source.
// ok is false when no limit is configured.
func (c *Config) IccMaxA(src power.Source, plane regs.CurrentPlane) (amps float64, ok bool) {
	override := c.IccMax.AC
	if src == power.Battery {
		override = c.IccMax.Battery
	}
	if v := override.get(plane); v != nil {
		return *v, true
	}
	if v := c.IccMax.PlaneAmps.get(plane); v != nil {
		return *v, true
	}
	return 0, false
}

// UndervoltConfigured reports whether any undervolt section carries a
// value at all. When nothing is configured the mailbox is left untouched.
func (c *Config) UndervoltConfigured() bool {
	for _, sec := range []*PlaneMV{&c.Undervolt.PlaneMV, c.Undervolt.AC, c.Undervolt.Battery} {
		if sec == nil {
			continue
		}
		for _, plane := range regs.VoltagePlanes {
			if sec.get(plane) != nil {
				return true
			}
		}
	}
	return false
}

// HasMailboxOverrides reports whether any undervolt or IccMax setting is
// active on either source. Gates the suspend/resume subscription.
func (c *Config) HasMailboxOverrides() bool {
	for _, src := range []power.Source{power.AC, power.Battery} {
		for _, plane := range regs.VoltagePlanes {
			if c.UndervoltMV(src, plane) != 0 {
				return true
			}
		}
		for _, plane := range regs.CurrentPlanes {
			if _, ok := c.IccMaxA(src, plane); ok {
				return true
			}
		}
	}
	return false
}

// Load reads, validates and normalizes a config file. Invalid optional
// values are clamped or dropped with a log line; a missing mandatory field
// is an error.
func Load(path string, log *slog.Logger) (*Config, error) {
	if log == nil {
		log = slog.Default()
	}
	var c Config
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := c.validate(log); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate(log *slog.Logger) error {
	for _, src := range []power.Source{power.AC, power.Battery} {
		p := c.Profile(src)
		if p.UpdateRateS == nil {
			return fmt.Errorf(`%w: "update_rate_s" in [%s]`, ErrMissingField, sectionName(src))
		}
		for _, v := range []*float64{p.UpdateRateS, p.PL1TdpW, p.PL1DurationS, p.PL2TdpW, p.PL2DurationS} {
			if v != nil && *v < 0.001 {
				*v = 0.001
			}
		}
		if p.TripTempC != nil {
			clamped := min(TripTempRange[1], max(TripTempRange[0], *p.TripTempC))
			if clamped != *p.TripTempC {
				log.Warn("overriding invalid trip_temp_c",
					"source", src.String(), "from", *p.TripTempC, "to", clamped)
				*p.TripTempC = clamped
			}
		}
	}

	c.clampUndervolt(log)
	c.completeOverrides()
	c.checkCoreCacheMatch(log)
	c.validateIccMax(log)
	return nil
}

// clampUndervolt forces every configured offset to be <= 0.
func (c *Config) clampUndervolt(log *slog.Logger) {
	for _, sec := range []*PlaneMV{&c.Undervolt.PlaneMV, c.Undervolt.AC, c.Undervolt.Battery} {
		if sec == nil {
			continue
		}
		for _, plane := range regs.VoltagePlanes {
			v := sec.get(plane)
			if v != nil && *v > 0 {
				log.Warn("overriding invalid undervolt value",
					"plane", plane.String(), "from", *v, "to", 0.0)
				*v = 0
			}
		}
	}
}

// completeOverrides fills the missing per-source undervolt override with
// explicit zeros when only one of the two exists, so the sources never
// fall back asymmetrically.
func (c *Config) completeOverrides() {
	if (c.Undervolt.AC == nil) == (c.Undervolt.Battery == nil) {
		return
	}
	zero := func() *PlaneMV {
		z := 0.0
		mk := func() *float64 { v := z; return &v }
		return &PlaneMV{Core: mk(), GPU: mk(), Cache: mk(), Uncore: mk(), AnalogIO: mk()}
	}
	if c.Undervolt.AC == nil {
		c.Undervolt.AC = zero()
	} else {
		c.Undervolt.Battery = zero()
	}
}

func (c *Config) checkCoreCacheMatch(log *slog.Logger) {
	for _, src := range []power.Source{power.AC, power.Battery} {
		if c.UndervoltMV(src, regs.VoltageCore) != c.UndervoltMV(src, regs.VoltageCache) {
			log.Warn("on Skylake and newer CPUs the CORE and CACHE undervolt values should match")
			return
		}
	}
}

func (c *Config) validateIccMax(log *slog.Logger) {
	enabled := false
	for _, sec := range []*PlaneAmps{&c.IccMax.PlaneAmps, c.IccMax.AC, c.IccMax.Battery} {
		if sec == nil {
			continue
		}
		for _, plane := range regs.CurrentPlanes {
			ref := sec.get(plane)
			if ref == nil {
				continue
			}
			if *ref <= 0 || *ref >= 0x3FF {
				log.Warn("dropping invalid iccmax value", "plane", plane.String(), "amps", *ref)
				sec.drop(plane)
				continue
			}
			enabled = true
		}
	}
	if enabled {
		log.Warn("raising iccmax above design limits can damage your system")
	}
}

func (p *PlaneAmps) drop(plane regs.CurrentPlane) {
	switch plane {
	case regs.CurrentCore:
		p.Core = nil
	case regs.CurrentGPU:
		p.GPU = nil
	case regs.CurrentCache:
		p.Cache = nil
	}
}

func sectionName(src power.Source) string {
	if src == power.Battery {
		return "battery"
	}
	return "ac"
}
