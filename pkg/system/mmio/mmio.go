//go:build linux

// Package mmio maps a window of physical memory and exposes 32-bit aligned
// accesses, used for the MCHBAR configuration mirror.
package mmio

import (
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

const defaultDevice = "/dev/mem"

// Window is a mapped region of physical memory.
type Window struct {
	mem  []byte
	skew int // physaddr - page-aligned physaddr
	size int
}

// Open maps size bytes of physical memory starting at physaddr through
// /dev/mem. The mapping is page aligned internally; offsets passed to
// Read32/Write32 are relative to physaddr.
func Open(physaddr uint64, size int) (*Window, error) {
	return openDevice(defaultDevice, physaddr, size)
}

// OpenFile maps a window over an arbitrary file. Used by tests in place of
// /dev/mem.
func OpenFile(path string, physaddr uint64, size int) (*Window, error) {
	return openDevice(path, physaddr, size)
}

func openDevice(path string, physaddr uint64, size int) (*Window, error) {
	pagesize := uint64(os.Getpagesize())
	aligned := physaddr - physaddr%pagesize
	skew := int(physaddr - aligned)

	f, err := os.OpenFile(path, os.O_RDWR|unix.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("mmio: open %s: %w", path, err)
	}
	defer f.Close()

	mem, err := unix.Mmap(int(f.Fd()), int64(aligned), skew+size,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmio: map %s at %#x: %w", path, physaddr, err)
	}
	return &Window{mem: mem, skew: skew, size: size}, nil
}

// Read32 returns the 32-bit value at the given byte offset from the window
// base.
func (w *Window) Read32(offset int) (uint32, error) {
	if err := w.check(offset); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(w.mem[w.skew+offset:]), nil
}

// Write32 stores a 32-bit value at the given byte offset from the window
// base.
func (w *Window) Write32(offset int, val uint32) error {
	if err := w.check(offset); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(w.mem[w.skew+offset:], val)
	return nil
}

func (w *Window) check(offset int) error {
	if w.mem == nil {
		return fmt.Errorf("mmio: window is closed")
	}
	if offset < 0 || offset+4 > w.size {
		return fmt.Errorf("mmio: offset %d out of bounds (size %d)", offset, w.size)
	}
	return nil
}

// Close unmaps the window. Safe to call twice.
func (w *Window) Close() error {
	if w.mem == nil {
		return nil
	}
	mem := w.mem
	w.mem = nil
	return unix.Munmap(mem)
}
