package regs

import (
	"errors"
	"fmt"
	"math"
)

// ErrNoTimeWindow indicates that no (Y, Z) pair can represent the requested
// duration. The search domain covers every realistic duration, so hitting
// this is a defensive path only.
var ErrNoTimeWindow = errors.New("regs: no time window combination found")

// Mailbox command words. The plane index goes into bits 40:42, the payload
// into the low 32 bits.
const (
	mailboxUndervoltRead  = 0x8000001000000000
	mailboxUndervoltWrite = 0x8000001100000000
	mailboxIccMaxRead     = 0x8000001600000000
	mailboxIccMaxWrite    = 0x8000001700000000
)

// HWP energy-performance preference values for bits 24:31 of
// IA32_HWP_REQUEST.
const (
	HWPPerformance uint64 = 0x20
	HWPDefault     uint64 = 0x80
)

// TimeWindow returns the smallest (Y, Z) pair, minimal Y first then minimal
// Z, satisfying t <= 2^Y * (1 + Z/4) * timeUnit.
func TimeWindow(t, timeUnit float64) (y, z uint64, err error) {
	for y = 0; y < 1<<5; y++ {
		for z = 0; z < 1<<2; z++ {
			if t <= math.Pow(2, float64(y))*(1.0+float64(z)/4.0)*timeUnit {
				return y, z, nil
			}
		}
	}
	return 0, 0, fmt.Errorf("%w for %gs (unit %gs)", ErrNoTimeWindow, t, timeUnit)
}

// EncodeTimeWindow packs a (Y, Z) pair into the 7-bit TW field layout.
func EncodeTimeWindow(y, z uint64) uint64 { return y | z<<5 }

// PowerLimits holds the four raw fields of MSR_PKG_POWER_LIMIT. PL1 and PL2
// are in power-unit multiples, TW1 and TW2 are packed time windows.
type PowerLimits struct {
	PL1, TW1, PL2, TW2 uint64
}

// Encode packs the fields into a raw MSR_PKG_POWER_LIMIT value with both
// limits enabled and PL1 clamping on.
func (p PowerLimits) Encode() uint64 {
	return p.PL1 | 1<<15 | 1<<16 | p.TW1<<17 | p.PL2<<32 | 1<<47 | p.TW2<<49
}

// DecodePowerLimits extracts the four fields from a raw MSR_PKG_POWER_LIMIT
// value.
func DecodePowerLimits(raw uint64) PowerLimits {
	return PowerLimits{
		PL1: Bits(raw, 0, 14),
		TW1: Bits(raw, 17, 23),
		PL2: Bits(raw, 32, 46),
		TW2: Bits(raw, 49, 55),
	}
}

// TripOffset returns the TEMPERATURE_TARGET offset field for the given trip
// temperature, as degrees below the critical temperature.
func TripOffset(criticalTempC uint64, tripTempC float64) uint64 {
	return uint64(math.Round(float64(criticalTempC) - tripTempC))
}

// EncodeTemperatureTarget places a trip offset into bits 24:29 of
// MSR_TEMPERATURE_TARGET.
func EncodeTemperatureTarget(offset uint64) uint64 { return offset << 24 }

// UndervoltWrite returns the mailbox command setting the given voltage
// offset (in mV, must be <= 0) on a plane. The offset occupies bits 21:31
// as a two's-complement 12-bit field in 1/1.024 mV steps.
func UndervoltWrite(plane VoltagePlane, offsetMV float64) (uint64, error) {
	if offsetMV > 0 {
		return 0, fmt.Errorf("regs: positive voltage offset %.1f mV on plane %s", offsetMV, plane)
	}
	field := uint64(int64(math.Round(offsetMV*1.024))) & 0xFFF
	field = 0xFFE00000 & (field << 21)
	return mailboxUndervoltWrite | uint64(plane)<<40 | field, nil
}

// UndervoltRead returns the mailbox command querying the voltage offset of
// a plane.
func UndervoltRead(plane VoltagePlane) uint64 {
	return mailboxUndervoltRead | uint64(plane)<<40
}

// UndervoltMV decodes a mailbox response into a voltage offset in mV.
func UndervoltMV(raw uint64) float64 {
	offset := int64(Bits(raw, 21, 31))
	if offset > 0x400 {
		offset = -(0x800 - offset)
	}
	return math.Round(float64(offset) / 1.024)
}

// IccMaxWrite returns the mailbox command setting the maximum current (in
// Amps) of a plane. The hardware field is in 1/4 A steps and must stay in
// (0, 0x3FF].
func IccMaxWrite(plane CurrentPlane, amps float64) (uint64, error) {
	field := uint64(math.Round(amps * 4))
	if field == 0 || field > 0x3FF {
		return 0, fmt.Errorf("regs: icc max %.2f A out of range on plane %s", amps, plane)
	}
	return mailboxIccMaxWrite | uint64(plane)<<40 | field, nil
}

// IccMaxRead returns the mailbox command querying the maximum current of a
// plane.
func IccMaxRead(plane CurrentPlane) uint64 {
	return mailboxIccMaxRead | uint64(plane)<<40
}

// IccMaxAmps decodes a mailbox response into Amps.
func IccMaxAmps(raw uint64) float64 {
	return float64(raw&0x3FF) / 4.0
}

// HWPRequestValue overwrites the energy-performance preference bits 24:31
// of a raw IA32_HWP_REQUEST value, preserving everything else.
func HWPRequestValue(cur, pref uint64) uint64 {
	return cur&0xFFFFFFFF00FFFFFF | pref<<24
}

// DisableBDProchot clears the BDPROCHOT enable bit of a raw MSR_POWER_CTL
// value.
func DisableBDProchot(cur uint64) uint64 { return cur &^ 1 }
