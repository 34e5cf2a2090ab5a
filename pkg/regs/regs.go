// Package regs holds the model-specific register addresses, bit layouts and
// pure encode/decode helpers used by the daemon. Nothing in this package
// touches hardware.
package regs

import "fmt"

// Register is the address of a model-specific register, equal to the byte
// offset inside a per-core register file.
type Register uint32

const (
	PlatformInfo      Register = 0xCE
	OCMailbox         Register = 0x150
	PerfStatus        Register = 0x198
	ThermStatus       Register = 0x19C
	TemperatureTarget Register = 0x1A2
	PowerCtl          Register = 0x1FC
	RAPLPowerUnit     Register = 0x606
	PkgPowerLimit     Register = 0x610
	PkgEnergyStatus   Register = 0x611
	DRAMEnergyStatus  Register = 0x619
	PP1EnergyStatus   Register = 0x641
	ConfigTDPControl  Register = 0x64B
	HWPRequest        Register = 0x774
)

func (r Register) String() string {
	switch r {
	case PlatformInfo:
		return "MSR_PLATFORM_INFO"
	case OCMailbox:
		return "MSR_OC_MAILBOX"
	case PerfStatus:
		return "IA32_PERF_STATUS"
	case ThermStatus:
		return "IA32_THERM_STATUS"
	case TemperatureTarget:
		return "MSR_TEMPERATURE_TARGET"
	case PowerCtl:
		return "MSR_POWER_CTL"
	case RAPLPowerUnit:
		return "MSR_RAPL_POWER_UNIT"
	case PkgPowerLimit:
		return "MSR_PKG_POWER_LIMIT"
	case PkgEnergyStatus:
		return "MSR_INTEL_PKG_ENERGY_STATUS"
	case DRAMEnergyStatus:
		return "MSR_DRAM_ENERGY_STATUS"
	case PP1EnergyStatus:
		return "MSR_PP1_ENERGY_STATUS"
	case ConfigTDPControl:
		return "MSR_CONFIG_TDP_CONTROL"
	case HWPRequest:
		return "IA32_HWP_REQUEST"
	default:
		return fmt.Sprintf("MSR %#x", uint32(r))
	}
}

// Bits extracts the inclusive bit range [from, to] of v, shifted down to
// bit 0. from must be <= to and both must be < 64.
func Bits(v uint64, from, to uint) uint64 {
	width := to - from + 1
	if width >= 64 {
		return v >> from
	}
	return (v >> from) & (1<<width - 1)
}

// Field names a bit range inside a register, used for decoded dumps.
type Field struct {
	Name     string
	From, To uint
}

// PlatformInfoFields is the decoded layout of MSR_PLATFORM_INFO.
var PlatformInfoFields = []Field{
	{"maximum non turbo ratio", 8, 15},
	{"feature ppin cap", 23, 23},
	{"feature programmable turbo ratio", 28, 28},
	{"feature programmable tdp limit", 29, 29},
	{"feature programmable temperature target", 30, 30},
	{"feature low power mode", 32, 32},
	{"number of additional tdp profiles", 33, 34},
	{"maximum efficiency ratio", 40, 47},
	{"minimum operating ratio", 48, 55},
}

// ThermStatusFields is the decoded layout of IA32_THERM_STATUS. The low 16
// bits are status/log pairs; writing zero to the register clears the log
// bits.
var ThermStatusFields = []Field{
	{"thermal limit status", 0, 0},
	{"thermal limit log", 1, 1},
	{"prochot or forcepr status", 2, 2},
	{"prochot or forcepr log", 3, 3},
	{"crit temp status", 4, 4},
	{"crit temp log", 5, 5},
	{"thermal threshold1 status", 6, 6},
	{"thermal threshold1 log", 7, 7},
	{"thermal threshold2 status", 8, 8},
	{"thermal threshold2 log", 9, 9},
	{"power limit status", 10, 10},
	{"power limit log", 11, 11},
	{"current limit status", 12, 12},
	{"current limit log", 13, 13},
	{"cross domain limit status", 14, 14},
	{"cross domain limit log", 15, 15},
	{"cpu temp", 16, 22},
	{"temp resolution", 27, 30},
	{"reading valid", 31, 31},
}

// PowerUnitW returns the RAPL power unit in Watts from a raw
// MSR_RAPL_POWER_UNIT value.
func PowerUnitW(raw uint64) float64 {
	return 1.0 / float64(uint64(1)<<Bits(raw, 0, 3))
}

// TimeUnitS returns the RAPL time unit in seconds from a raw
// MSR_RAPL_POWER_UNIT value.
func TimeUnitS(raw uint64) float64 {
	return 1.0 / float64(uint64(1)<<Bits(raw, 16, 19))
}

// EnergyUnitJ returns the RAPL energy unit in Joules from a raw
// MSR_RAPL_POWER_UNIT value.
func EnergyUnitJ(raw uint64) float64 {
	return 1.0 / float64(uint64(1)<<Bits(raw, 8, 12))
}

// CriticalTempC returns the factory critical temperature in degrees C from
// a raw MSR_TEMPERATURE_TARGET value.
func CriticalTempC(raw uint64) uint64 {
	return Bits(raw, 16, 23)
}

// CoreVoltageMV returns the estimated core voltage in mV from a raw
// IA32_PERF_STATUS value.
func CoreVoltageMV(raw uint64) float64 {
	return float64(Bits(raw, 32, 47)) / 8192.0 * 1000.0
}
