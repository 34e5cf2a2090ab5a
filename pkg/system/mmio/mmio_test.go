//go:build linux

package mmio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBackingFile(t *testing.T, size int) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "mem")
	require.NoError(t, os.WriteFile(p, make([]byte, size), 0o644))
	return p
}

func TestWindowRoundTrip(t *testing.T) {
	p := newBackingFile(t, 0x2000)

	// unaligned base, as MCHBAR mirrors usually are
	w, err := OpenFile(p, 0x10A0, 8)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Write32(0, 0x00DD8160))
	require.NoError(t, w.Write32(4, 0x00DD8160))

	lo, err := w.Read32(0)
	require.NoError(t, err)
	hi, err := w.Read32(4)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x00DD8160), lo)
	assert.Equal(t, uint32(0x00DD8160), hi)

	// the bytes land at the physical address, little endian
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x81, 0xDD, 0x00}, b[0x10A0:0x10A4])
}

func TestWindowBounds(t *testing.T) {
	w, err := OpenFile(newBackingFile(t, 0x2000), 0x100, 8)
	require.NoError(t, err)
	defer w.Close()

	require.Error(t, w.Write32(-1, 0))
	require.Error(t, w.Write32(5, 0), "straddles the window end")
	_, err = w.Read32(8)
	require.Error(t, err)
}

func TestWindowCloseTwice(t *testing.T) {
	w, err := OpenFile(newBackingFile(t, 0x2000), 0, 8)
	require.NoError(t, err)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err = w.Read32(0)
	require.Error(t, err)
	require.Error(t, w.Write32(0, 1))
}
