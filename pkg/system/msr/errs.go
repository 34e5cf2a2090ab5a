package msr

import "errors"

var (
	// ErrPrivilege indicates that a register file rejected the access with
	// a permission error. Usually caused by Secure Boot lockdown or a
	// kernel MSR write restriction.
	ErrPrivilege = errors.New("msr: permission denied (try disabling Secure Boot and check that the kernel does not restrict MSR access)")

	// ErrHardwareFault indicates that the register access failed with an
	// I/O error of unknown hardware origin.
	ErrHardwareFault = errors.New("msr: hardware i/o fault")

	// ErrNoDevices indicates that no per-core register files exist and the
	// msr kernel module could not be loaded.
	ErrNoDevices = errors.New("msr: no register files and the msr module could not be loaded")

	// ErrBadBitRange indicates a read with from > to.
	ErrBadBitRange = errors.New("msr: invalid bit range")

	// ErrNoSuchCore indicates a read for a core index outside the
	// enumerated register files.
	ErrNoSuchCore = errors.New("msr: no such core")
)
