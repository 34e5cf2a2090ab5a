//go:build linux

// Package msr gives raw read/write access to model-specific registers
// through the per-core register files under /dev/cpu.
package msr

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"syscall"

	"github.com/ja7ad/powerlimit/pkg/regs"
)

const defaultRoot = "/dev/cpu"

const allowWritesParam = "/sys/module/msr/parameters/allow_writes"

// Dev enumerates and accesses the per-core register files. The zero value
// is not usable; use New.
type Dev struct {
	root string
	log  *slog.Logger

	mu     sync.Mutex
	warned map[regs.Register]bool
}

// New returns a Dev over /dev/cpu/*/msr.
func New(log *slog.Logger) *Dev {
	return NewAt(defaultRoot, log)
}

// NewAt returns a Dev rooted at an alternate directory tree laid out like
// /dev/cpu. Used by tests.
func NewAt(root string, log *slog.Logger) *Dev {
	if log == nil {
		log = slog.Default()
	}
	return &Dev{root: root, log: log, warned: map[regs.Register]bool{}}
}

// paths returns the per-core register file paths in core order. If none
// exist it tries to load the msr kernel module once.
func (d *Dev) paths() ([]string, error) {
	list := d.list()
	if len(list) == 0 && d.root == defaultRoot {
		if err := exec.Command("modprobe", "msr").Run(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoDevices, err)
		}
		list = d.list()
	}
	if len(list) == 0 {
		return nil, ErrNoDevices
	}
	return list, nil
}

func (d *Dev) list() []string {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil
	}
	cores := make([]int, 0, len(entries))
	for _, e := range entries {
		n, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		if _, err := os.Stat(filepath.Join(d.root, e.Name(), "msr")); err == nil {
			cores = append(cores, n)
		}
	}
	sort.Ints(cores)
	out := make([]string, len(cores))
	for i, n := range cores {
		out[i] = filepath.Join(d.root, strconv.Itoa(n), "msr")
	}
	return out
}

// Write stores the same 8-byte value into the register on every core.
func (d *Dev) Write(reg regs.Register, val uint64) error {
	paths, err := d.paths()
	if err != nil {
		return err
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], val)
	for _, p := range paths {
		f, err := os.OpenFile(p, os.O_WRONLY, 0)
		if err != nil {
			return classify("write", reg, err)
		}
		_, err = f.WriteAt(buf[:], int64(reg))
		cerr := f.Close()
		if err != nil {
			return classify("write", reg, err)
		}
		if cerr != nil {
			return classify("write", reg, cerr)
		}
	}
	return nil
}

// Read returns the value of the inclusive bit range [from, to] of the
// register on every core, in core order.
func (d *Dev) Read(reg regs.Register, from, to uint) ([]uint64, error) {
	if from > to {
		return nil, ErrBadBitRange
	}
	paths, err := d.paths()
	if err != nil {
		return nil, err
	}
	out := make([]uint64, 0, len(paths))
	var buf [8]byte
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, classify("read", reg, err)
		}
		_, err = f.ReadAt(buf[:], int64(reg))
		cerr := f.Close()
		if err != nil {
			return nil, classify("read", reg, err)
		}
		if cerr != nil {
			return nil, classify("read", reg, cerr)
		}
		out = append(out, regs.Bits(binary.LittleEndian.Uint64(buf[:]), from, to))
	}
	return out, nil
}

// ReadCore returns the bit range of the register on a single core.
func (d *Dev) ReadCore(reg regs.Register, core int, from, to uint) (uint64, error) {
	vals, err := d.Read(reg, from, to)
	if err != nil {
		return 0, err
	}
	if core < 0 || core >= len(vals) {
		return 0, fmt.Errorf("%w: %d", ErrNoSuchCore, core)
	}
	return vals[core], nil
}

// ReadFlatten returns the bit range of the register, expecting every core
// to agree. A disagreement is logged once per register and the first
// core's value wins.
func (d *Dev) ReadFlatten(reg regs.Register, from, to uint) (uint64, error) {
	vals, err := d.Read(reg, from, to)
	if err != nil {
		return 0, err
	}
	for _, v := range vals[1:] {
		if v != vals[0] {
			d.mu.Lock()
			if !d.warned[reg] {
				d.warned[reg] = true
				d.log.Warn("cores disagree on register value, this should never happen",
					"register", reg.String(), "address", fmt.Sprintf("%#x", uint32(reg)))
			}
			d.mu.Unlock()
			break
		}
	}
	return vals[0], nil
}

// AllowWrites tries to turn the msr module's allow_writes parameter on so
// that writes do not trip the kernel lockdown warning. Best effort.
func (d *Dev) AllowWrites() {
	d.log.Info("trying to unlock MSR allow_writes")
	if _, err := os.Stat("/sys/module/msr"); err != nil {
		if err := exec.Command("modprobe", "msr").Run(); err != nil {
			return
		}
	}
	if _, err := os.Stat(allowWritesParam); err != nil {
		return
	}
	if err := os.WriteFile(allowWritesParam, []byte("on"), 0o644); err != nil {
		d.log.Warn("unable to set MSR allow_writes to on, you might see warnings in kernel logs", "err", err)
	}
}

// classify maps I/O errors to the package sentinels: permission problems
// point at Secure Boot or MSR access policy, EIO is an unknown hardware
// fault, anything else propagates as-is.
func classify(op string, reg regs.Register, err error) error {
	switch {
	case errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EPERM) || errors.Is(err, syscall.EACCES):
		return fmt.Errorf("%s %s (%#x): %w", op, reg, uint32(reg), ErrPrivilege)
	case errors.Is(err, syscall.EIO):
		return fmt.Errorf("%s %s (%#x): %w", op, reg, uint32(reg), ErrHardwareFault)
	default:
		return fmt.Errorf("%s %s (%#x): %w", op, reg, uint32(reg), err)
	}
}
