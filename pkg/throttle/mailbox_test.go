//go:build linux

package throttle

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ja7ad/powerlimit/pkg/regs"
)

func TestMailboxRoundTrip(t *testing.T) {
	dev := newFakeDev()
	m := NewMailbox(dev)

	cmd, err := regs.UndervoltWrite(regs.VoltageCore, -105)
	require.NoError(t, err)
	require.NoError(t, m.WriteCommand(cmd))

	raw, err := m.ReadUndervolt(regs.VoltageCore)
	require.NoError(t, err)
	assert.Equal(t, cmd&0xFFFFFFFF, raw)
	assert.Equal(t, -105.0, regs.UndervoltMV(raw))

	icc, err := regs.IccMaxWrite(regs.CurrentGPU, 64)
	require.NoError(t, err)
	require.NoError(t, m.WriteCommand(icc))

	raw, err = m.ReadIccMax(regs.CurrentGPU)
	require.NoError(t, err)
	assert.Equal(t, uint64(256), raw)
	assert.Equal(t, 64.0, regs.IccMaxAmps(raw))
}

// Every request/response pair must run as one unit: concurrent readers on
// different planes may never observe each other's responses.
func TestMailboxSerializesSequences(t *testing.T) {
	dev := newFakeDev()
	dev.delay = 50 * time.Microsecond
	m := NewMailbox(dev)

	want := map[regs.VoltagePlane]uint64{}
	for i, plane := range regs.VoltagePlanes {
		cmd, err := regs.UndervoltWrite(plane, float64(-10*(i+1)))
		require.NoError(t, err)
		require.NoError(t, m.WriteCommand(cmd))
		want[plane] = cmd & 0xFFFFFFFF
	}

	var wg sync.WaitGroup
	for _, plane := range regs.VoltagePlanes {
		wg.Add(1)
		go func(plane regs.VoltagePlane) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				raw, err := m.ReadUndervolt(plane)
				assert.NoError(t, err)
				assert.Equal(t, want[plane], raw, "plane %s", plane)
			}
		}(plane)
	}
	wg.Wait()
}
