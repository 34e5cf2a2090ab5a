//go:build linux

package msr

import (
	"encoding/binary"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ja7ad/powerlimit/pkg/regs"
)

// newTestDev lays out a /dev/cpu lookalike with the given number of cores,
// each core's register file large enough to cover every register address.
func newTestDev(t *testing.T, cores int) (*Dev, string) {
	t.Helper()
	root := t.TempDir()
	for i := 0; i < cores; i++ {
		dir := filepath.Join(root, strconv.Itoa(i))
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "msr"), make([]byte, 0x1000), 0o644))
	}
	return NewAt(root, slog.Default()), root
}

func poke(t *testing.T, root string, core int, reg regs.Register, val uint64) {
	t.Helper()
	p := filepath.Join(root, strconv.Itoa(core), "msr")
	f, err := os.OpenFile(p, os.O_WRONLY, 0)
	require.NoError(t, err)
	defer f.Close()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], val)
	_, err = f.WriteAt(buf[:], int64(reg))
	require.NoError(t, err)
}

func TestWriteReadAllCores(t *testing.T) {
	dev, _ := newTestDev(t, 4)

	require.NoError(t, dev.Write(regs.PkgPowerLimit, 0x00DD8160))

	vals, err := dev.Read(regs.PkgPowerLimit, 0, 63)
	require.NoError(t, err)
	require.Len(t, vals, 4)
	for _, v := range vals {
		assert.Equal(t, uint64(0x00DD8160), v)
	}
}

func TestReadBitRange(t *testing.T) {
	dev, root := newTestDev(t, 1)
	poke(t, root, 0, regs.TemperatureTarget, 100<<16|3<<24)

	v, err := dev.ReadCore(regs.TemperatureTarget, 0, 16, 23)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), v)

	v, err = dev.ReadCore(regs.TemperatureTarget, 0, 24, 29)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), v)
}

func TestReadBadBitRange(t *testing.T) {
	dev, _ := newTestDev(t, 1)
	_, err := dev.Read(regs.PlatformInfo, 8, 4)
	require.ErrorIs(t, err, ErrBadBitRange)
}

func TestReadCoreOutOfRange(t *testing.T) {
	dev, _ := newTestDev(t, 2)
	_, err := dev.ReadCore(regs.PlatformInfo, 5, 0, 63)
	require.ErrorIs(t, err, ErrNoSuchCore)
}

func TestReadFlattenAgreement(t *testing.T) {
	dev, root := newTestDev(t, 2)
	poke(t, root, 0, regs.RAPLPowerUnit, 0xA0003)
	poke(t, root, 1, regs.RAPLPowerUnit, 0xA0003)

	v, err := dev.ReadFlatten(regs.RAPLPowerUnit, 0, 63)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xA0003), v)
}

func TestReadFlattenDisagreementFirstWins(t *testing.T) {
	dev, root := newTestDev(t, 2)
	poke(t, root, 0, regs.RAPLPowerUnit, 0xA0003)
	poke(t, root, 1, regs.RAPLPowerUnit, 0xB0003)

	for i := 0; i < 3; i++ {
		v, err := dev.ReadFlatten(regs.RAPLPowerUnit, 0, 63)
		require.NoError(t, err)
		assert.Equal(t, uint64(0xA0003), v)
	}
	assert.True(t, dev.warned[regs.RAPLPowerUnit], "disagreement is recorded once")
}

func TestCoreOrdering(t *testing.T) {
	// cores enumerate numerically, not lexically: 2 before 10
	root := t.TempDir()
	for _, n := range []int{10, 2, 0} {
		dir := filepath.Join(root, strconv.Itoa(n))
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "msr"), make([]byte, 0x1000), 0o644))
	}
	dev := NewAt(root, slog.Default())
	poke(t, root, 2, regs.PlatformInfo, 22)
	poke(t, root, 10, regs.PlatformInfo, 1010)

	vals, err := dev.Read(regs.PlatformInfo, 0, 63)
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 22, 1010}, vals)
}

func TestNoDevices(t *testing.T) {
	dev := NewAt(t.TempDir(), slog.Default())
	_, err := dev.Read(regs.PlatformInfo, 0, 63)
	require.ErrorIs(t, err, ErrNoDevices)

	err = dev.Write(regs.PlatformInfo, 0)
	require.ErrorIs(t, err, ErrNoDevices)
}
