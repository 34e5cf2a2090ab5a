//go:build linux

package throttle

import (
	"sync"

	"github.com/ja7ad/powerlimit/pkg/regs"
)

// Mailbox serializes access to the OC mailbox register. The mailbox is a
// single physical request/response channel shared by the control loop,
// startup probing and the monitor; every write-request/read-result pair
// must run under one lock to prevent interleaved sequences.
type Mailbox struct {
	mu  sync.Mutex
	dev regIO
}

func NewMailbox(dev regIO) *Mailbox {
	return &Mailbox{dev: dev}
}

// WriteCommand issues a fully encoded mailbox command that expects no
// response.
func (m *Mailbox) WriteCommand(cmd uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dev.Write(regs.OCMailbox, cmd)
}

// ReadUndervolt queries the programmed voltage offset of a plane and
// returns the raw 32-bit response.
func (m *Mailbox) ReadUndervolt(plane regs.VoltagePlane) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.dev.Write(regs.OCMailbox, regs.UndervoltRead(plane)); err != nil {
		return 0, err
	}
	raw, err := m.dev.ReadFlatten(regs.OCMailbox, 0, 63)
	if err != nil {
		return 0, err
	}
	return raw & 0xFFFFFFFF, nil
}

// ReadIccMax queries the programmed current limit of a plane and returns
// the raw 10-bit response.
func (m *Mailbox) ReadIccMax(plane regs.CurrentPlane) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.dev.Write(regs.OCMailbox, regs.IccMaxRead(plane)); err != nil {
		return 0, err
	}
	raw, err := m.dev.ReadFlatten(regs.OCMailbox, 0, 63)
	if err != nil {
		return 0, err
	}
	return raw & 0x3FF, nil
}
