//go:build linux

package throttle

import (
	"log/slog"

	"github.com/ja7ad/powerlimit/pkg/regs"
)

// PlatformInfo holds the MSR_PLATFORM_INFO capability bits, read once at
// startup and replaced wholesale on reload.
type PlatformInfo struct {
	raw uint64

	MaxNonTurboRatio       uint64
	MaxEfficiencyRatio     uint64
	MinOperatingRatio      uint64
	PPINCap                bool
	ProgrammableTurboRatio bool
	ProgrammableTDPLimit   bool
	ProgrammableTempTarget bool
	LowPowerMode           bool
	AdditionalTDPProfiles  uint64
}

func loadPlatformInfo(dev regIO) (PlatformInfo, error) {
	raw, err := dev.ReadCore(regs.PlatformInfo, 0, 0, 63)
	if err != nil {
		return PlatformInfo{}, err
	}
	return PlatformInfo{
		raw:                    raw,
		MaxNonTurboRatio:       regs.Bits(raw, 8, 15),
		MaxEfficiencyRatio:     regs.Bits(raw, 40, 47),
		MinOperatingRatio:      regs.Bits(raw, 48, 55),
		PPINCap:                regs.Bits(raw, 23, 23) == 1,
		ProgrammableTurboRatio: regs.Bits(raw, 28, 28) == 1,
		ProgrammableTDPLimit:   regs.Bits(raw, 29, 29) == 1,
		ProgrammableTempTarget: regs.Bits(raw, 30, 30) == 1,
		LowPowerMode:           regs.Bits(raw, 32, 32) == 1,
		AdditionalTDPProfiles:  regs.Bits(raw, 33, 34),
	}, nil
}

func (p PlatformInfo) debugDump(log *slog.Logger) {
	for _, f := range regs.PlatformInfoFields {
		log.Debug("cpu platform info", "field", f.Name, "value", regs.Bits(p.raw, f.From, f.To))
	}
}
