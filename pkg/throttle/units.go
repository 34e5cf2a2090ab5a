//go:build linux

package throttle

import (
	"github.com/ja7ad/powerlimit/pkg/regs"
)

// Units holds the CPU-reported scale factors and the factory critical
// temperature. Read from core 0 only; uniformity across cores is assumed,
// not verified. Recomputed only on an explicit reload.
type Units struct {
	PowerW        float64
	TimeS         float64
	CriticalTempC uint64
}

func loadUnits(dev regIO) (Units, error) {
	raw, err := dev.ReadCore(regs.RAPLPowerUnit, 0, 0, 63)
	if err != nil {
		return Units{}, err
	}
	target, err := dev.ReadCore(regs.TemperatureTarget, 0, 0, 63)
	if err != nil {
		return Units{}, err
	}
	return Units{
		PowerW:        regs.PowerUnitW(raw),
		TimeS:         regs.TimeUnitS(raw),
		CriticalTempC: regs.CriticalTempC(target),
	}, nil
}
