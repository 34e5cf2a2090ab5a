package cpuid

import "errors"

var (
	// ErrNotIntel indicates a vendor other than GenuineIntel.
	ErrNotIntel = errors.New("cpuid: this tool is designed for Intel CPUs only")

	// ErrUnknownCPU indicates an identity missing from the known-good
	// table.
	ErrUnknownCPU = errors.New("cpuid: unsupported CPU model")

	// ErrNoIdentity indicates that /proc/cpuinfo could not be parsed into
	// a family/model/stepping triple.
	ErrNoIdentity = errors.New("cpuid: unable to identify CPU model")

	// ErrKernelConfig indicates a kernel built without the interfaces this
	// daemon needs.
	ErrKernelConfig = errors.New("cpuid: bad kernel config, CONFIG_X86_MSR must be builtin or a module")
)
