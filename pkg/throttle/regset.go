//go:build linux

package throttle

import (
	"log/slog"
	"math"

	"github.com/ja7ad/powerlimit/pkg/config"
	"github.com/ja7ad/powerlimit/pkg/power"
	"github.com/ja7ad/powerlimit/pkg/regs"
)

// RegisterSet holds the computed raw register values for one power source.
// Nil fields are not written by the control loop.
type RegisterSet struct {
	TemperatureTarget *uint64
	PkgPowerLimit     *uint64
	ConfigTDPControl  *uint64
}

// computeRegSet turns the configuration into raw register values for both
// power sources. Config fields left unset fall back to the values
// currently programmed in hardware.
func computeRegSet(dev regIO, cfg *config.Config, units Units, platform PlatformInfo,
	log *slog.Logger) (map[power.Source]RegisterSet, error) {

	if !platform.ProgrammableTempTarget {
		log.Warn("setting the temperature target is not supported by this CPU")
	}

	out := map[power.Source]RegisterSet{}
	for _, src := range []power.Source{power.AC, power.Battery} {
		p := cfg.Profile(src)
		var rs RegisterSet

		if platform.ProgrammableTempTarget {
			if p.TripTempC != nil {
				// keep at least 3 degrees below the critical temperature
				trip := min(*p.TripTempC, float64(units.CriticalTempC)-3)
				v := regs.EncodeTemperatureTarget(regs.TripOffset(units.CriticalTempC, trip))
				rs.TemperatureTarget = &v
			} else {
				log.Info("trip temperature is disabled in config", "source", src.String())
			}
		}

		limits, err := powerLimits(dev, p, units, src, log)
		if err != nil {
			return nil, err
		}
		rs.PkgPowerLimit = limits

		if p.CTDP != nil {
			switch {
			case !platform.ProgrammableTDPLimit:
				log.Warn("ctdp setting not supported by this CPU")
			case platform.AdditionalTDPProfiles < uint64(max(0, *p.CTDP)):
				log.Warn("the configured ctdp profile is not supported by this CPU")
			default:
				v := uint64(max(0, *p.CTDP))
				rs.ConfigTDPControl = &v
			}
		}

		out[src] = rs
	}
	return out, nil
}

// powerLimits computes the raw MSR_PKG_POWER_LIMIT value, reading the
// currently programmed fields for whatever the config leaves unset.
// Returns nil when every field is omitted.
func powerLimits(dev regIO, p *config.Profile, units Units, src power.Source,
	log *slog.Logger) (*uint64, error) {

	if p.PL1TdpW == nil && p.PL1DurationS == nil && p.PL2TdpW == nil && p.PL2DurationS == nil {
		log.Info("package power limits are disabled in config", "source", src.String())
		return nil, nil
	}

	raw, err := dev.ReadFlatten(regs.PkgPowerLimit, 0, 55)
	if err != nil {
		return nil, err
	}
	cur := regs.DecodePowerLimits(raw)
	limits := cur

	if p.PL1TdpW != nil {
		limits.PL1 = uint64(math.Round(*p.PL1TdpW / units.PowerW))
	} else {
		log.Info("pl1_tdp_w is disabled in config", "source", src.String())
	}
	if p.PL1DurationS != nil {
		y, z, err := regs.TimeWindow(*p.PL1DurationS, units.TimeS)
		if err != nil {
			return nil, err
		}
		limits.TW1 = regs.EncodeTimeWindow(y, z)
	} else {
		log.Info("pl1_duration_s is disabled in config", "source", src.String())
	}
	if p.PL2TdpW != nil {
		limits.PL2 = uint64(math.Round(*p.PL2TdpW / units.PowerW))
	} else {
		log.Info("pl2_tdp_w is disabled in config", "source", src.String())
	}
	if p.PL2DurationS != nil {
		y, z, err := regs.TimeWindow(*p.PL2DurationS, units.TimeS)
		if err != nil {
			return nil, err
		}
		limits.TW2 = regs.EncodeTimeWindow(y, z)
	} else {
		log.Info("pl2_duration_s is disabled in config", "source", src.String())
	}

	v := limits.Encode()
	return &v, nil
}
