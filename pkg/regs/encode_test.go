package regs

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rawUnits is a RAPL_POWER_UNIT value with power unit 0.125 W, energy unit
// 2^-14 J and time unit 2^-10 s, as reported by most mobile parts.
const rawUnits = uint64(3 | 14<<8 | 10<<16)

func TestUnitDecoding(t *testing.T) {
	assert.Equal(t, 0.125, PowerUnitW(rawUnits))
	assert.Equal(t, 1.0/1024.0, TimeUnitS(rawUnits))
	assert.Equal(t, 1.0/16384.0, EnergyUnitJ(rawUnits))
}

func TestTimeWindow(t *testing.T) {
	unit := TimeUnitS(rawUnits)

	tests := []struct {
		t    float64
		y, z uint64
	}{
		{unit, 0, 0},
		{0.002, 1, 1},     // 2 * unit < 0.002 <= 2 * 1.25 * unit
		{28, 14, 3},       // 2^14 * 1.75 * unit is exactly 28s
		{0.028, 5, 0},     // no z refinement of y=4 reaches 28ms
		{44, 15, 2},
	}
	for _, tt := range tests {
		y, z, err := TimeWindow(tt.t, unit)
		require.NoError(t, err)
		assert.Equal(t, tt.y, y, "Y for %gs", tt.t)
		assert.Equal(t, tt.z, z, "Z for %gs", tt.t)

		// the pair must actually cover the duration
		assert.GreaterOrEqual(t, math.Pow(2, float64(y))*(1+float64(z)/4)*unit, tt.t)
	}
}

func TestTimeWindowUnrepresentable(t *testing.T) {
	_, _, err := TimeWindow(1e12, TimeUnitS(rawUnits))
	require.ErrorIs(t, err, ErrNoTimeWindow)
}

func TestEncodeTimeWindow(t *testing.T) {
	assert.Equal(t, uint64(0x6E), EncodeTimeWindow(14, 3))
	assert.Equal(t, uint64(0x0F), EncodeTimeWindow(15, 0))
}

func TestPowerLimitsRoundTrip(t *testing.T) {
	p := PowerLimits{PL1: 352, TW1: 0x6E, PL2: 352, TW2: 0x21}
	raw := p.Encode()

	// enable, clamp and PL2 enable bits are always asserted
	assert.NotZero(t, raw&(1<<15))
	assert.NotZero(t, raw&(1<<16))
	assert.NotZero(t, raw&(1<<47))

	assert.Equal(t, p, DecodePowerLimits(raw))
}

func TestPowerLimitsFieldsDisjoint(t *testing.T) {
	// saturating every field must not bleed into a neighbour
	p := PowerLimits{PL1: 0x7FFF, TW1: 0x7F, PL2: 0x7FFF, TW2: 0x7F}
	assert.Equal(t, p, DecodePowerLimits(p.Encode()))

	one := PowerLimits{PL1: 1}
	assert.Equal(t, one, DecodePowerLimits(one.Encode()))
}

func TestTemperatureTarget(t *testing.T) {
	assert.Equal(t, uint64(3), TripOffset(100, 97))
	assert.Equal(t, uint64(15), TripOffset(100, 85))
	assert.Equal(t, uint64(3<<24), EncodeTemperatureTarget(3))
}

func TestCriticalTempC(t *testing.T) {
	assert.Equal(t, uint64(100), CriticalTempC(100<<16))
}

func TestUndervoltRoundTrip(t *testing.T) {
	for _, mv := range []float64{0, -50, -100, -150.5} {
		cmd, err := UndervoltWrite(VoltageCore, mv)
		require.NoError(t, err)

		// the response mirrors the payload in its low 32 bits
		got := UndervoltMV(cmd & 0xFFFFFFFF)
		assert.InDelta(t, mv, got, 1.0, "offset %g mV", mv)
	}
}

func TestUndervoltWriteRejectsOvervolt(t *testing.T) {
	_, err := UndervoltWrite(VoltageCore, 25)
	require.Error(t, err)
}

func TestUndervoltCommandLayout(t *testing.T) {
	cmd, err := UndervoltWrite(VoltageGPU, -50)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x11), Bits(cmd, 32, 39), "write command byte")
	assert.Equal(t, uint64(VoltageGPU), Bits(cmd, 40, 42), "plane index")
	assert.NotZero(t, cmd&(1<<63))

	read := UndervoltRead(VoltageCache)
	assert.Equal(t, uint64(0x10), Bits(read, 32, 39), "read command byte")
	assert.Equal(t, uint64(VoltageCache), Bits(read, 40, 42))
	assert.Zero(t, read&0xFFFFFFFF, "read carries no payload")
}

func TestUndervoltMVNegativeDecode(t *testing.T) {
	// field 0x7CD is -51 in 11-bit two's complement, -50 mV after scaling
	assert.Equal(t, -50.0, UndervoltMV(0x7CD<<21))
	assert.Equal(t, 0.0, UndervoltMV(0))
}

func TestIccMaxRoundTrip(t *testing.T) {
	for _, amps := range []float64{1.0, 10.25, 64, 255.75} {
		cmd, err := IccMaxWrite(CurrentCore, amps)
		require.NoError(t, err)
		assert.Equal(t, amps, IccMaxAmps(cmd&0xFFFFFFFF), "%g A", amps)
	}
}

func TestIccMaxWriteRange(t *testing.T) {
	_, err := IccMaxWrite(CurrentCore, 0)
	require.Error(t, err)
	_, err = IccMaxWrite(CurrentCore, 0.1) // rounds to field 0
	require.Error(t, err)
	_, err = IccMaxWrite(CurrentCore, 256) // exceeds the 10-bit field
	require.Error(t, err)
}

func TestIccMaxCommandLayout(t *testing.T) {
	cmd, err := IccMaxWrite(CurrentGPU, 10.25)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x17), Bits(cmd, 32, 39))
	assert.Equal(t, uint64(CurrentGPU), Bits(cmd, 40, 42))
	assert.Equal(t, uint64(41), cmd&0x3FF)

	read := IccMaxRead(CurrentCache)
	assert.Equal(t, uint64(0x16), Bits(read, 32, 39))
	assert.Equal(t, uint64(CurrentCache), Bits(read, 40, 42))
}

func TestHWPRequestValue(t *testing.T) {
	cur := uint64(0xAA55AA55FF2211EE)
	out := HWPRequestValue(cur, HWPPerformance)
	assert.Equal(t, HWPPerformance, Bits(out, 24, 31))

	// every other bit is preserved
	assert.Equal(t, cur&^uint64(0xFF<<24), out&^uint64(0xFF<<24))

	back := HWPRequestValue(out, HWPDefault)
	assert.Equal(t, HWPDefault, Bits(back, 24, 31))
}

func TestDisableBDProchot(t *testing.T) {
	assert.Equal(t, uint64(0x40005E), DisableBDProchot(0x40005F))
	assert.Equal(t, uint64(0x40005E), DisableBDProchot(0x40005E))
}

func TestBits(t *testing.T) {
	assert.Equal(t, uint64(0xF), Bits(0xF0, 4, 7))
	assert.Equal(t, uint64(0xAB), Bits(0xAB<<56, 56, 63))
	assert.Equal(t, uint64(1), Bits(1, 0, 0))
	assert.Equal(t, uint64(0xDEAD), Bits(0xDEAD, 0, 63))
}

func TestCoreVoltageMV(t *testing.T) {
	// ratio field 8192 is exactly 1 V
	assert.Equal(t, 1000.0, CoreVoltageMV(8192<<32))
	assert.InDelta(t, 850.0, CoreVoltageMV(6963<<32), 0.1)
}
